package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/authz"
	"github.com/lalith-99/huddle/internal/events"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/users"
)

const maxConversationPage = 100

// SendDirect sends a one-to-one message. Messaging oneself is SELF_TARGET.
func (s *Service) SendDirect(ctx context.Context, actorID, recipientID uuid.UUID, content string) (*models.DirectMessage, error) {
	content = strings.TrimSpace(content)
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if err := authz.SendDirect(actorID, recipientID).Err(); err != nil {
		return nil, err
	}
	if err := s.throttle(ctx, actorID); err != nil {
		return nil, err
	}
	recipient, err := s.repos.Users.GetByID(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	if recipient == nil {
		return nil, apperr.NotFound("user")
	}

	dm, err := s.repos.DirectMessages.Create(ctx, &models.DirectMessage{
		SenderID:    actorID,
		RecipientID: recipientID,
		Content:     content,
	})
	if err != nil {
		return nil, fmt.Errorf("create direct message: %w", err)
	}
	s.cache.InvalidateUnread(ctx, recipientID)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:    events.DirectMessageCreated,
		ActorID: actorID,
		Subject: fmt.Sprint(dm.ID),
		Data:    dm,
		At:      dm.CreatedAt,
	})
	return dm, nil
}

// Conversation returns messages between the actor and partnerID, newest
// first. before is a message id cursor; 0 starts from the latest.
func (s *Service) Conversation(ctx context.Context, actorID, partnerID uuid.UUID, before int64, limit int) ([]models.DirectMessageView, error) {
	if limit <= 0 || limit > maxConversationPage {
		limit = DefaultPageSize
	}
	dms, err := s.repos.DirectMessages.ListConversation(ctx, actorID, partnerID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return s.decorateDirect(ctx, dms)
}

// Conversations lists the actor's DM partners, most recent first.
func (s *Service) Conversations(ctx context.Context, actorID uuid.UUID) ([]models.UserProfile, error) {
	ids, err := s.repos.DirectMessages.ListPartners(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list conversation partners: %w", err)
	}
	profiles, err := users.LoadProfiles(ctx, s.repos.Users, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserProfile, 0, len(ids))
	for _, id := range ids {
		if p, ok := profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// MarkDirectRead flips the read flag. Recipient only.
func (s *Service) MarkDirectRead(ctx context.Context, actorID uuid.UUID, id int64) (*models.DirectMessage, error) {
	if err := s.authorize(ctx, actorID, authz.DirectMessageRef(id), authz.ActionMarkRead); err != nil {
		return nil, err
	}
	dm, err := s.repos.DirectMessages.MarkRead(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark direct message read: %w", err)
	}
	if dm == nil {
		return nil, apperr.NotFound("direct message")
	}
	s.cache.InvalidateUnread(ctx, actorID)
	return dm, nil
}

// ReactDirect toggles the actor's emoji on a direct message.
func (s *Service) ReactDirect(ctx context.Context, actorID uuid.UUID, id int64, emoji string) (ReactionResult, error) {
	emoji = strings.TrimSpace(emoji)
	if err := validateEmoji(emoji); err != nil {
		return ReactionResult{}, err
	}
	if err := s.authorize(ctx, actorID, authz.DirectMessageRef(id), authz.ActionReact); err != nil {
		return ReactionResult{}, err
	}
	res, err := s.toggle(ctx, models.DirectMessageTarget(id), actorID, emoji)
	if err != nil {
		return ReactionResult{}, err
	}
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:    events.ReactionToggled,
		ActorID: actorID,
		Subject: fmt.Sprintf("dm:%d", id),
		Data:    res,
	})
	return res, nil
}

func (s *Service) decorateDirect(ctx context.Context, dms []models.DirectMessage) ([]models.DirectMessageView, error) {
	out := make([]models.DirectMessageView, 0, len(dms))
	if len(dms) == 0 {
		return out, nil
	}
	ids := make([]int64, len(dms))
	for i, dm := range dms {
		ids[i] = dm.ID
	}
	var (
		reactions   map[int64][]models.Reaction
		attachments map[int64][]models.Attachment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		reactions, err = s.repos.Reactions.ListFor(gctx, models.TargetDirectMessage, ids)
		return wrap("list reactions", err)
	})
	g.Go(func() (err error) {
		attachments, err = s.repos.Attachments.ListFor(gctx, models.TargetDirectMessage, ids)
		return wrap("list attachments", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, dm := range dms {
		files := attachments[dm.ID]
		if files == nil {
			files = []models.Attachment{}
		}
		out = append(out, models.DirectMessageView{
			DirectMessage: dm,
			Reactions:     models.SummarizeReactions(reactions[dm.ID]),
			Attachments:   files,
		})
	}
	return out, nil
}
