// Package users owns accounts, profiles and presence.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/cache"
	"github.com/lalith-99/huddle/internal/cachekey"
	"github.com/lalith-99/huddle/internal/events"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/ratelimit"
	"github.com/lalith-99/huddle/internal/repository"
)

const (
	// MinSearchLength is the shortest query Search accepts.
	MinSearchLength = 2
	searchLimit     = 20
	minPassword     = 8
)

// ErrInvalidCredentials is returned by Login for an unknown email and for a
// wrong password alike, so callers cannot probe which emails are registered.
var ErrInvalidCredentials = errors.New("invalid email or password")

// WorkspaceLister finds the workspaces a user belongs to. Their cached
// details embed the user's profile, so profile and status changes clear them.
type WorkspaceLister interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.WorkspaceSummary, error)
}

// Service implements the account and profile operations.
type Service struct {
	users      repository.UserRepository
	workspaces WorkspaceLister
	cache      *cache.Coordinator
	limiter    *ratelimit.Limiter
	publisher  events.Publisher
	logger     *zap.Logger
	now        func() time.Time
	cost       int
}

// Option configures a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(
	users repository.UserRepository,
	workspaces WorkspaceLister,
	coordinator *cache.Coordinator,
	limiter *ratelimit.Limiter,
	publisher events.Publisher,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		users:      users,
		workspaces: workspaces,
		cache:      coordinator,
		limiter:    limiter,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
		cost:       bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignupInput is what a new account needs.
type SignupInput struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (in SignupInput) validate() error {
	return apperr.FromValidation(validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.EmailFormat),
		validation.Field(&in.Username, validation.Required, validation.Length(3, 32), is.Alphanumeric),
		validation.Field(&in.Password, validation.Required, validation.Length(minPassword, 72)),
		validation.Field(&in.DisplayName, validation.Length(0, 64)),
	))
}

// Signup creates an account. clientKey identifies the caller for the
// registration rate limit (the client IP: there is no principal yet).
func (s *Service) Signup(ctx context.Context, in SignupInput, clientKey string) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if err := in.validate(); err != nil {
		return nil, err
	}

	res, err := s.limiter.Check(ctx, ratelimit.ScopeRegistration, clientKey)
	if err != nil {
		return nil, fmt.Errorf("check registration rate: %w", err)
	}
	if err := res.Err(ratelimit.ScopeRegistration); err != nil {
		return nil, err
	}

	// bcrypt salts each hash, so two users with the same password still get
	// different hashes.
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	displayName := in.DisplayName
	if displayName == "" {
		displayName = in.Username
	}
	u, err := s.users.Create(ctx, &models.User{
		Email:        in.Email,
		Username:     in.Username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Status:       models.StatusOffline,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperr.AlreadyExists("user")
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login checks credentials and returns the user.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	// Constant-time comparison; a mismatch gives the same error as a
	// missing user.
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Profile returns the public profile of userID through user_profile:{id}.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (models.UserProfile, error) {
	return cache.ReadThrough(ctx, s.cache, cachekey.ForUserProfile(userID), func(ctx context.Context) (models.UserProfile, error) {
		u, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return models.UserProfile{}, fmt.Errorf("load user: %w", err)
		}
		if u == nil {
			return models.UserProfile{}, apperr.NotFound("user")
		}
		return models.ProfileOf(u), nil
	})
}

// UpdateProfile edits the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd repository.ProfileUpdate) (models.UserProfile, error) {
	if err := apperr.FromValidation(validation.ValidateStruct(&upd,
		validation.Field(&upd.DisplayName, validation.NilOrNotEmpty, validation.Length(1, 64)),
		validation.Field(&upd.Bio, validation.Length(0, 500)),
		validation.Field(&upd.AvatarURL, is.URL),
	)); err != nil {
		return models.UserProfile{}, err
	}

	u, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("update profile: %w", err)
	}
	if u == nil {
		return models.UserProfile{}, apperr.NotFound("user")
	}
	s.cache.InvalidateProfile(ctx, userID, s.memberOf(ctx, userID)...)
	return models.ProfileOf(u), nil
}

// memberOf lists the workspaces whose cached detail shows userID. On error
// the details are left to expire at their TTL.
func (s *Service) memberOf(ctx context.Context, userID uuid.UUID) []uuid.UUID {
	list, err := s.workspaces.ListForUser(ctx, userID)
	if err != nil {
		s.logger.Warn("list workspaces for profile invalidation",
			zap.Stringer("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	ids := make([]uuid.UUID, len(list))
	for i, ws := range list {
		ids[i] = ws.ID
	}
	return ids
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if err := validation.Validate(next, validation.Required, validation.Length(minPassword, 72)); err != nil {
		return apperr.Validation("new_password", err.Error())
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return apperr.NotFound("user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return apperr.Validation("current_password", "is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetStatus records a status change. The profile cache is dropped and the
// presence fact is written with its own TTL.
func (s *Service) SetStatus(ctx context.Context, userID uuid.UUID, status models.UserStatus) (models.UserProfile, error) {
	if err := validation.Validate(string(status), validation.Required, validation.In(
		string(models.StatusOnline), string(models.StatusAway), string(models.StatusBusy), string(models.StatusOffline),
	)); err != nil {
		return models.UserProfile{}, apperr.Validation("status", err.Error())
	}

	now := s.now().UTC()
	u, err := s.users.UpdateStatus(ctx, userID, status, now)
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("update status: %w", err)
	}
	if u == nil {
		return models.UserProfile{}, apperr.NotFound("user")
	}
	s.cache.SetOnlineStatus(ctx, userID, status, now, s.memberOf(ctx, userID)...)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:    events.StatusChanged,
		ActorID: userID,
		Subject: userID.String(),
		Data:    map[string]string{"status": string(status)},
		At:      now,
	})
	return models.ProfileOf(u), nil
}

// Online returns the presence of userID. A lapsed presence reads as offline.
func (s *Service) Online(ctx context.Context, userID uuid.UUID) models.OnlineStatus {
	st, _ := s.cache.OnlineStatus(ctx, userID)
	return st
}

// Heartbeat keeps the caller's presence alive. The status already cached is
// kept, including an explicit offline; only a lapsed entry comes back as
// online.
func (s *Service) Heartbeat(ctx context.Context, userID uuid.UUID) models.OnlineStatus {
	st, ok := s.cache.OnlineStatus(ctx, userID)
	if !ok {
		st.Status = models.StatusOnline
	}
	st.UserID = userID
	st.UpdatedAt = s.now().UTC()
	s.cache.TouchOnline(ctx, userID, st.Status, st.UpdatedAt)
	return st
}

// Search finds users sharing a workspace with actorID.
func (s *Service) Search(ctx context.Context, actorID uuid.UUID, query string) ([]models.UserProfile, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSearchLength {
		return nil, apperr.Validation("q", fmt.Sprintf("must be at least %d characters", MinSearchLength))
	}
	found, err := s.users.SearchVisible(ctx, actorID, query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	out := make([]models.UserProfile, 0, len(found))
	for i := range found {
		out = append(out, models.ProfileOf(&found[i]))
	}
	return out, nil
}

// Profiles loads many profiles at once, keyed by id. Missing users are
// skipped. Used to decorate member lists.
func (s *Service) Profiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.UserProfile, error) {
	return LoadProfiles(ctx, s.users, ids)
}

// LoadProfiles is Profiles without a Service, for packages that only hold a
// UserRepository.
func LoadProfiles(ctx context.Context, repo repository.UserRepository, ids []uuid.UUID) (map[uuid.UUID]models.UserProfile, error) {
	out := make(map[uuid.UUID]models.UserProfile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	found, err := repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for i := range found {
		out[found[i].ID] = models.ProfileOf(&found[i])
	}
	return out, nil
}
