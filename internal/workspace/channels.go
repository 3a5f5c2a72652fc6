package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/authz"
	"github.com/lalith-99/huddle/internal/cache"
	"github.com/lalith-99/huddle/internal/cachekey"
	"github.com/lalith-99/huddle/internal/events"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/users"
)

// CreateChannelInput is what a new channel needs. Type defaults to public.
type CreateChannelInput struct {
	Name        string             `json:"name"`
	Slug        string             `json:"slug"`
	Description string             `json:"description"`
	Type        models.ChannelType `json:"type"`
}

func (in CreateChannelInput) validate() error {
	return apperr.FromValidation(validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 80)),
		validation.Field(&in.Slug, validation.Required, validation.Length(1, 80), validation.Match(slugPattern)),
		validation.Field(&in.Description, validation.Length(0, 250)),
		validation.Field(&in.Type, validation.In(models.ChannelPublic, models.ChannelPrivate)),
	))
}

// CreateChannel creates a channel in the workspace. The creator always
// joins. A public channel also auto-joins every current workspace member.
func (s *Service) CreateChannel(ctx context.Context, actorID, workspaceID uuid.UUID, in CreateChannelInput) (*models.Channel, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if in.Type == "" {
		in.Type = models.ChannelPublic
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, authz.WorkspaceRef(workspaceID), authz.ActionCreateChannel); err != nil {
		return nil, err
	}

	ch, err := s.repos.Channels.Create(ctx, &models.Channel{
		WorkspaceID: workspaceID,
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		Type:        in.Type,
		CreatedBy:   actorID,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.AlreadyExists("channel")
	}
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	joiners := []uuid.UUID{actorID}
	if !ch.IsPrivate() {
		if joiners, err = s.memberIDs(ctx, workspaceID); err != nil {
			return nil, err
		}
	}
	if err := s.repos.Memberships.AddMembers(ctx, ch.ID, joiners); err != nil {
		return nil, fmt.Errorf("add channel members: %w", err)
	}

	// Every member's workspace list carries the channel count.
	s.invalidateWorkspace(ctx, workspaceID)
	return ch, nil
}

// ListChannels returns the channels actorID may see in the workspace. The
// cached list under channel_list:{id} is shared by all members and holds
// every channel; private channels are filtered out here for non-members.
func (s *Service) ListChannels(ctx context.Context, actorID, workspaceID uuid.UUID) ([]models.ChannelView, error) {
	if err := s.authorize(ctx, actorID, authz.WorkspaceRef(workspaceID), authz.ActionView); err != nil {
		return nil, err
	}
	all, err := cache.ReadThrough(ctx, s.cache, cachekey.ForChannelList(workspaceID), func(ctx context.Context) ([]models.ChannelSummary, error) {
		list, err := s.repos.Channels.ListByWorkspace(ctx, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("list channels: %w", err)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}

	// Membership comes from the system of record, never from the cache.
	joined, err := s.repos.Memberships.ListChannelIDs(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list joined channels: %w", err)
	}
	in := make(map[uuid.UUID]bool, len(joined))
	for _, id := range joined {
		in[id] = true
	}

	out := make([]models.ChannelView, 0, len(all))
	for _, ch := range all {
		if ch.IsPrivate() && !in[ch.ID] {
			continue
		}
		out = append(out, models.ChannelView{ChannelSummary: ch, IsMember: in[ch.ID]})
	}
	return out, nil
}

// GetChannel returns one channel. A private channel is off limits to
// non-members (PRIVATE_CHANNEL).
func (s *Service) GetChannel(ctx context.Context, actorID, channelID uuid.UUID) (*models.Channel, error) {
	if err := s.authorize(ctx, actorID, authz.ChannelRef(channelID), authz.ActionView); err != nil {
		return nil, err
	}
	ch, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("load channel: %w", err)
	}
	if ch == nil {
		return nil, apperr.NotFound("channel")
	}
	return ch, nil
}

// JoinChannel self-joins a public channel. Joining twice is not an error:
// joined reports false when actorID was already a member.
func (s *Service) JoinChannel(ctx context.Context, actorID, channelID uuid.UUID) (joined bool, err error) {
	access, err := s.authz.Channel(ctx, actorID, channelID)
	if err != nil {
		return false, err
	}
	if access.InChannel {
		return false, nil
	}
	if err := authz.JoinChannel(access.Channel, access.Member).Err(); err != nil {
		return false, err
	}
	added, err := s.repos.Memberships.AddMember(ctx, channelID, actorID)
	if err != nil {
		return false, fmt.Errorf("join channel: %w", err)
	}
	if added {
		s.afterChannelMembership(ctx, access.Channel, actorID, actorID, events.MemberJoined)
	}
	return added, nil
}

// LeaveChannel removes actorID from the channel. Leaving a channel one is
// not in is rejected as a bad request.
func (s *Service) LeaveChannel(ctx context.Context, actorID, channelID uuid.UUID) error {
	access, err := s.authz.Channel(ctx, actorID, channelID)
	if err != nil {
		return err
	}
	if !access.InChannel {
		return &apperr.ValidationError{Field: "channel_id", Message: "not a member of this channel", Reason: apperr.ReasonNotMember}
	}
	removed, err := s.repos.Memberships.RemoveMember(ctx, channelID, actorID)
	if err != nil {
		return fmt.Errorf("leave channel: %w", err)
	}
	if removed {
		s.afterChannelMembership(ctx, access.Channel, actorID, actorID, events.MemberLeft)
	}
	return nil
}

// InviteToChannel adds inviteeID to the channel. The inviter must be in
// the channel and the invitee in the workspace. Inviting an existing member
// is a conflict.
func (s *Service) InviteToChannel(ctx context.Context, actorID, channelID, inviteeID uuid.UUID) error {
	if err := s.authorize(ctx, actorID, authz.ChannelRef(channelID).On(inviteeID), authz.ActionInvite); err != nil {
		return err
	}
	added, err := s.repos.Memberships.AddMember(ctx, channelID, inviteeID)
	if err != nil {
		return fmt.Errorf("invite to channel: %w", err)
	}
	if !added {
		return apperr.AlreadyExists("channel member")
	}
	ch, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		return fmt.Errorf("load channel: %w", err)
	}
	if ch != nil {
		s.afterChannelMembership(ctx, ch, actorID, inviteeID, events.MemberJoined)
	}
	return nil
}

// ChannelMembers lists the members of a channel the caller may view.
func (s *Service) ChannelMembers(ctx context.Context, actorID, channelID uuid.UUID) ([]models.ChannelMemberView, error) {
	if err := s.authorize(ctx, actorID, authz.ChannelRef(channelID), authz.ActionView); err != nil {
		return nil, err
	}
	members, err := s.repos.Memberships.ListMembers(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list channel members: %w", err)
	}
	ids := make([]uuid.UUID, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	profiles, err := users.LoadProfiles(ctx, s.repos.Users, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.ChannelMemberView, 0, len(members))
	for _, m := range members {
		if p, ok := profiles[m.UserID]; ok {
			out = append(out, models.ChannelMemberView{User: p, JoinedAt: m.JoinedAt, LastReadAt: m.LastReadAt})
		}
	}
	return out, nil
}

// MarkRead moves the caller's read marker in the channel to now.
func (s *Service) MarkRead(ctx context.Context, actorID, channelID uuid.UUID) error {
	if err := s.authorize(ctx, actorID, authz.ChannelRef(channelID), authz.ActionMarkRead); err != nil {
		return err
	}
	if err := s.repos.Memberships.MarkRead(ctx, channelID, actorID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark channel read: %w", err)
	}
	s.cache.InvalidateUnread(ctx, actorID)
	return nil
}

func (s *Service) afterChannelMembership(ctx context.Context, ch *models.Channel, actorID, userID uuid.UUID, typ events.Type) {
	s.cache.InvalidateMembership(ctx, ch.WorkspaceID, userID)
	s.cache.InvalidateUnread(ctx, userID)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:      typ,
		ActorID:   actorID,
		ChannelID: ch.ID,
		Subject:   userID.String(),
	})
}
