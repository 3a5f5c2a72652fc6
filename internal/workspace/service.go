// Package workspace orchestrates workspaces, channels and their membership:
// authorize through authz, mutate the system of record, then invalidate the
// affected cache keys.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/authz"
	"github.com/lalith-99/huddle/internal/cache"
	"github.com/lalith-99/huddle/internal/cachekey"
	"github.com/lalith-99/huddle/internal/events"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/users"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Repositories groups the system-of-record dependencies.
type Repositories struct {
	Users       repository.UserRepository
	Workspaces  repository.WorkspaceRepository
	Channels    repository.ChannelRepository
	Memberships repository.MembershipRepository
}

// Service implements workspace and channel operations.
type Service struct {
	repos     Repositories
	authz     *authz.Authority
	cache     *cache.Coordinator
	publisher events.Publisher
	logger    *zap.Logger
}

func NewService(repos Repositories, authority *authz.Authority, coordinator *cache.Coordinator, publisher events.Publisher, logger *zap.Logger) *Service {
	return &Service{
		repos:     repos,
		authz:     authority,
		cache:     coordinator,
		publisher: publisher,
		logger:    logger,
	}
}

// authorize turns a denied decision into an *apperr.AuthorizationError.
func (s *Service) authorize(ctx context.Context, actorID uuid.UUID, ref authz.ResourceRef, action authz.Action) error {
	d, err := s.authz.Authorize(ctx, actorID, ref, action)
	if err != nil {
		return err
	}
	return d.Err()
}

// CreateWorkspaceInput is what a new workspace needs.
type CreateWorkspaceInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

func (in CreateWorkspaceInput) validate() error {
	return apperr.FromValidation(validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 80)),
		validation.Field(&in.Slug, validation.Required, validation.Length(2, 50), validation.Match(slugPattern)),
		validation.Field(&in.Description, validation.Length(0, 500)),
	))
}

// CreateWorkspace creates a workspace owned by actorID.
func (s *Service) CreateWorkspace(ctx context.Context, actorID uuid.UUID, in CreateWorkspaceInput) (*models.Workspace, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if err := in.validate(); err != nil {
		return nil, err
	}
	ws, err := s.repos.Workspaces.Create(ctx, &models.Workspace{
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		OwnerID:     actorID,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.AlreadyExists("workspace")
	}
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	s.cache.Invalidate(ctx, cachekey.ForWorkspaceList(actorID))
	return ws, nil
}

// ListWorkspaces returns the caller's workspaces through workspace_list:{id}.
func (s *Service) ListWorkspaces(ctx context.Context, actorID uuid.UUID) ([]models.WorkspaceSummary, error) {
	return cache.ReadThrough(ctx, s.cache, cachekey.ForWorkspaceList(actorID), func(ctx context.Context) ([]models.WorkspaceSummary, error) {
		list, err := s.repos.Workspaces.ListForUser(ctx, actorID)
		if err != nil {
			return nil, fmt.Errorf("list workspaces: %w", err)
		}
		return list, nil
	})
}

// GetWorkspace returns the workspace with its members through
// workspace_detail:{id}. The membership check runs first, on every call:
// the cached detail is shared by all members and proves nothing about the
// caller.
func (s *Service) GetWorkspace(ctx context.Context, actorID, workspaceID uuid.UUID) (models.WorkspaceDetail, error) {
	if err := s.authorize(ctx, actorID, authz.WorkspaceRef(workspaceID), authz.ActionView); err != nil {
		return models.WorkspaceDetail{}, err
	}
	return cache.ReadThrough(ctx, s.cache, cachekey.ForWorkspaceDetail(workspaceID), func(ctx context.Context) (models.WorkspaceDetail, error) {
		return s.loadDetail(ctx, workspaceID)
	})
}

// loadDetail runs the three independent queries concurrently.
func (s *Service) loadDetail(ctx context.Context, workspaceID uuid.UUID) (models.WorkspaceDetail, error) {
	var (
		ws       *models.Workspace
		members  []models.WorkspaceMemberView
		channels []models.ChannelSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ws, err = s.repos.Workspaces.GetByID(gctx, workspaceID)
		if err != nil {
			return fmt.Errorf("load workspace: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		members, err = s.memberViews(gctx, workspaceID)
		return err
	})
	g.Go(func() error {
		var err error
		channels, err = s.repos.Channels.ListByWorkspace(gctx, workspaceID)
		if err != nil {
			return fmt.Errorf("list channels: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.WorkspaceDetail{}, err
	}
	if ws == nil {
		return models.WorkspaceDetail{}, apperr.NotFound("workspace")
	}
	return models.WorkspaceDetail{
		WorkspaceSummary: models.WorkspaceSummary{
			Workspace:    *ws,
			MemberCount:  len(members),
			ChannelCount: len(channels),
		},
		Members: members,
	}, nil
}

// UpdateWorkspaceInput carries the editable fields.
type UpdateWorkspaceInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateWorkspace edits name and description. Owner or admin.
func (s *Service) UpdateWorkspace(ctx context.Context, actorID, workspaceID uuid.UUID, in UpdateWorkspaceInput) (*models.Workspace, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := apperr.FromValidation(validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 80)),
		validation.Field(&in.Description, validation.Length(0, 500)),
	)); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, authz.WorkspaceRef(workspaceID), authz.ActionUpdate); err != nil {
		return nil, err
	}
	ws, err := s.repos.Workspaces.Update(ctx, workspaceID, in.Name, in.Description)
	if err != nil {
		return nil, fmt.Errorf("update workspace: %w", err)
	}
	if ws == nil {
		return nil, apperr.NotFound("workspace")
	}
	s.invalidateWorkspace(ctx, workspaceID)
	return ws, nil
}

// DeleteWorkspace removes the workspace with everything in it. Owner only.
func (s *Service) DeleteWorkspace(ctx context.Context, actorID, workspaceID uuid.UUID) error {
	if err := s.authorize(ctx, actorID, authz.WorkspaceRef(workspaceID), authz.ActionDelete); err != nil {
		return err
	}
	// Collected before the delete: afterwards nothing says who was affected.
	memberIDs, err := s.memberIDs(ctx, workspaceID)
	if err != nil {
		return err
	}
	channels, err := s.repos.Channels.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	if err := s.repos.Workspaces.Delete(ctx, workspaceID); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	s.cache.InvalidateWorkspace(ctx, workspaceID, memberIDs)
	s.cache.InvalidateUnread(ctx, memberIDs...)
	for _, ch := range channels {
		s.cache.InvalidateChannelMessages(ctx, ch.ID)
	}
	return nil
}

// ListMembers returns the workspace's members with profiles.
func (s *Service) ListMembers(ctx context.Context, actorID, workspaceID uuid.UUID) ([]models.WorkspaceMemberView, error) {
	if err := s.authorize(ctx, actorID, authz.WorkspaceRef(workspaceID), authz.ActionView); err != nil {
		return nil, err
	}
	return s.memberViews(ctx, workspaceID)
}

// assignableRole validates a role given to a member. Ownership is never
// granted through membership changes.
func assignableRole(role models.Role) error {
	return validation.Validate(string(role), validation.Required, validation.In(
		string(models.RoleAdmin), string(models.RoleMember), string(models.RoleGuest),
	))
}

// AddMember adds userID to the workspace and back-fills every public
// channel, so the invariant "public channel membership covers the
// workspace" holds for members who join later too. Owner or admin.
func (s *Service) AddMember(ctx context.Context, actorID, workspaceID, userID uuid.UUID, role models.Role) (*models.WorkspaceMember, error) {
	if role == "" {
		role = models.RoleMember
	}
	if err := assignableRole(role); err != nil {
		return nil, apperr.Validation("role", err.Error())
	}
	if err := s.authorize(ctx, actorID, authz.WorkspaceRef(workspaceID), authz.ActionAddMember); err != nil {
		return nil, err
	}
	u, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return nil, apperr.NotFound("user")
	}

	m, err := s.repos.Workspaces.AddMember(ctx, workspaceID, userID, role)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.AlreadyExists("workspace member")
	}
	if err != nil {
		return nil, fmt.Errorf("add workspace member: %w", err)
	}

	if err := s.backfillPublicChannels(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	s.cache.InvalidateMembership(ctx, workspaceID, userID)
	s.cache.InvalidateUnread(ctx, userID)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:    events.WorkspaceMemberAdded,
		ActorID: actorID,
		Subject: userID.String(),
		Data:    map[string]string{"workspace_id": workspaceID.String(), "role": string(role)},
	})
	return m, nil
}

func (s *Service) backfillPublicChannels(ctx context.Context, workspaceID, userID uuid.UUID) error {
	channels, err := s.repos.Channels.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	for _, ch := range channels {
		if ch.IsPrivate() {
			continue
		}
		if _, err := s.repos.Memberships.AddMember(ctx, ch.ID, userID); err != nil {
			return fmt.Errorf("join public channel %s: %w", ch.ID, err)
		}
	}
	return nil
}

// RemoveMember removes targetID from the workspace and all its channels.
// Owner or admin; the owner can never be removed.
func (s *Service) RemoveMember(ctx context.Context, actorID, workspaceID, targetID uuid.UUID) error {
	if err := s.authorize(ctx, actorID, authz.WorkspaceRef(workspaceID).On(targetID), authz.ActionRemoveMember); err != nil {
		return err
	}
	if err := s.repos.Workspaces.RemoveMember(ctx, workspaceID, targetID); err != nil {
		return fmt.Errorf("remove workspace member: %w", err)
	}
	s.cache.InvalidateMembership(ctx, workspaceID, targetID)
	s.cache.InvalidateUnread(ctx, targetID)
	return nil
}

// UpdateMemberRole changes targetID's role. Owner only.
func (s *Service) UpdateMemberRole(ctx context.Context, actorID, workspaceID, targetID uuid.UUID, role models.Role) (*models.WorkspaceMember, error) {
	if err := assignableRole(role); err != nil {
		return nil, apperr.Validation("role", err.Error())
	}
	if err := s.authorize(ctx, actorID, authz.WorkspaceRef(workspaceID).On(targetID), authz.ActionChangeRole); err != nil {
		return nil, err
	}
	m, err := s.repos.Workspaces.UpdateMemberRole(ctx, workspaceID, targetID, role)
	if err != nil {
		return nil, fmt.Errorf("update member role: %w", err)
	}
	s.cache.InvalidateMembership(ctx, workspaceID, targetID)
	return m, nil
}

func (s *Service) memberIDs(ctx context.Context, workspaceID uuid.UUID) ([]uuid.UUID, error) {
	members, err := s.repos.Workspaces.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workspace members: %w", err)
	}
	ids := make([]uuid.UUID, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return ids, nil
}

func (s *Service) memberViews(ctx context.Context, workspaceID uuid.UUID) ([]models.WorkspaceMemberView, error) {
	members, err := s.repos.Workspaces.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workspace members: %w", err)
	}
	ids := make([]uuid.UUID, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	profiles, err := users.LoadProfiles(ctx, s.repos.Users, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.WorkspaceMemberView, 0, len(members))
	for _, m := range members {
		p, ok := profiles[m.UserID]
		if !ok {
			continue
		}
		out = append(out, models.WorkspaceMemberView{User: p, Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return out, nil
}

// invalidateWorkspace drops everything derived from the workspace row for
// every member. A failure to list members leaves their lists to expire.
func (s *Service) invalidateWorkspace(ctx context.Context, workspaceID uuid.UUID) {
	ids, err := s.memberIDs(ctx, workspaceID)
	if err != nil {
		s.logger.Warn("workspace invalidation limited to workspace keys",
			zap.Stringer("workspace_id", workspaceID),
			zap.Error(err),
		)
	}
	s.cache.InvalidateWorkspace(ctx, workspaceID, ids)
}
