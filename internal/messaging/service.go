// Package messaging is the message, reaction and thread core.
//
// Every mutation follows the same order: rate check, authorize, write to the
// system of record, invalidate derived cache keys, publish an event. Reads
// go through the cache coordinator.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/authz"
	"github.com/lalith-99/huddle/internal/cache"
	"github.com/lalith-99/huddle/internal/events"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/ratelimit"
	"github.com/lalith-99/huddle/internal/repository"
)

const (
	DefaultPageSize = 50
	MaxContentRunes = 4000
	MaxEmojiRunes   = 32

	// MinSearchLength and MaxSearchResults bound message search.
	MinSearchLength  = 3
	MaxSearchResults = 50
)

// Repositories groups the system-of-record dependencies.
type Repositories struct {
	Users          repository.UserRepository
	Memberships    repository.MembershipRepository
	Messages       repository.MessageRepository
	DirectMessages repository.DirectMessageRepository
	Reactions      repository.ReactionRepository
	Attachments    repository.AttachmentRepository
}

// Service implements the messaging operations.
type Service struct {
	repos     Repositories
	authz     *authz.Authority
	cache     *cache.Coordinator
	limiter   *ratelimit.Limiter
	publisher events.Publisher
	logger    *zap.Logger
	pageSize  int
}

// Option configures a Service.
type Option func(*Service)

// WithPageSize sets how many top-level messages one cached page holds.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func NewService(
	repos Repositories,
	authority *authz.Authority,
	coordinator *cache.Coordinator,
	limiter *ratelimit.Limiter,
	publisher events.Publisher,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		repos:     repos,
		authz:     authority,
		cache:     coordinator,
		limiter:   limiter,
		publisher: publisher,
		logger:    logger,
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) authorize(ctx context.Context, actorID uuid.UUID, ref authz.ResourceRef, action authz.Action) error {
	d, err := s.authz.Authorize(ctx, actorID, ref, action)
	if err != nil {
		return err
	}
	return d.Err()
}

// throttle applies the messages scope to actorID.
func (s *Service) throttle(ctx context.Context, actorID uuid.UUID) error {
	res, err := s.limiter.Check(ctx, ratelimit.ScopeMessages, actorID.String())
	if err != nil {
		return fmt.Errorf("check message rate: %w", err)
	}
	return res.Err(ratelimit.ScopeMessages)
}

func validateContent(content string) error {
	if err := validation.Validate(content,
		validation.Required,
		validation.RuneLength(1, MaxContentRunes),
	); err != nil {
		return apperr.Validation("content", err.Error())
	}
	return nil
}

func validateEmoji(emoji string) error {
	if err := validation.Validate(emoji,
		validation.Required,
		validation.RuneLength(1, MaxEmojiRunes),
	); err != nil {
		return apperr.Validation("emoji", err.Error())
	}
	return nil
}

// SendInput is a new channel message. ParentID makes it a thread reply.
type SendInput struct {
	Content  string `json:"content"`
	ParentID *int64 `json:"parent_id"`
}

// Send posts a message to a channel the actor belongs to.
//
// Threads are one level deep: replying to a reply is rejected with
// NESTED_THREAD rather than silently re-parented.
func (s *Service) Send(ctx context.Context, actorID, channelID uuid.UUID, in SendInput) (*models.Message, error) {
	in.Content = strings.TrimSpace(in.Content)
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	if err := s.throttle(ctx, actorID); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, authz.ChannelRef(channelID), authz.ActionPost); err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		parent, err := s.repos.Messages.GetByID(ctx, *in.ParentID)
		if err != nil {
			return nil, fmt.Errorf("load parent message: %w", err)
		}
		if parent == nil || parent.ChannelID != channelID {
			return nil, apperr.NotFound("parent message")
		}
		if parent.ParentID != nil {
			return nil, &apperr.ValidationError{
				Field:   "parent_id",
				Message: "replies cannot have replies",
				Reason:  apperr.ReasonNestedThread,
			}
		}
	}

	msg, err := s.repos.Messages.Create(ctx, &models.Message{
		ChannelID: channelID,
		SenderID:  actorID,
		Content:   in.Content,
		ParentID:  in.ParentID,
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	s.afterChannelWrite(ctx, channelID, actorID, true)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:      events.MessageCreated,
		ActorID:   actorID,
		ChannelID: channelID,
		Subject:   fmt.Sprint(msg.ID),
		Data:      msg,
		At:        msg.CreatedAt,
	})
	return msg, nil
}

// Edit replaces the content of the actor's own message.
func (s *Service) Edit(ctx context.Context, actorID uuid.UUID, messageID int64, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, authz.MessageRef(messageID), authz.ActionEdit); err != nil {
		return nil, err
	}
	msg, err := s.repos.Messages.UpdateContent(ctx, messageID, content)
	if err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	if msg == nil {
		return nil, apperr.NotFound("message")
	}
	s.afterChannelWrite(ctx, msg.ChannelID, actorID, false)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:      events.MessageEdited,
		ActorID:   actorID,
		ChannelID: msg.ChannelID,
		Subject:   fmt.Sprint(msg.ID),
		Data:      msg,
	})
	return msg, nil
}

// Delete removes the actor's own message with its replies.
func (s *Service) Delete(ctx context.Context, actorID uuid.UUID, messageID int64) error {
	msg, err := s.authz.Message(ctx, actorID, messageID)
	if err != nil {
		return err
	}
	if err := s.authz.CanMutateMessage(msg, actorID).Err(); err != nil {
		return err
	}
	if err := s.repos.Messages.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.afterChannelWrite(ctx, msg.ChannelID, actorID, true)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:      events.MessageDeleted,
		ActorID:   actorID,
		ChannelID: msg.ChannelID,
		Subject:   fmt.Sprint(messageID),
	})
	return nil
}

// TogglePin flips the pinned flag. Any channel member may pin.
func (s *Service) TogglePin(ctx context.Context, actorID uuid.UUID, messageID int64) (*models.Message, error) {
	msg, err := s.authz.Message(ctx, actorID, messageID)
	if err != nil {
		return nil, err
	}
	updated, err := s.repos.Messages.SetPinned(ctx, messageID, !msg.Pinned)
	if err != nil {
		return nil, fmt.Errorf("pin message: %w", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("message")
	}
	s.afterChannelWrite(ctx, msg.ChannelID, actorID, false)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:      events.MessagePinned,
		ActorID:   actorID,
		ChannelID: msg.ChannelID,
		Subject:   fmt.Sprint(messageID),
		Data:      map[string]bool{"pinned": updated.Pinned},
	})
	return updated, nil
}

// ReactionResult reports which way a toggle went.
type ReactionResult struct {
	Added bool   `json:"added"`
	Emoji string `json:"emoji"`
}

// React toggles the actor's emoji on a channel message: reacting with the
// same emoji again removes it.
func (s *Service) React(ctx context.Context, actorID uuid.UUID, messageID int64, emoji string) (ReactionResult, error) {
	emoji = strings.TrimSpace(emoji)
	if err := validateEmoji(emoji); err != nil {
		return ReactionResult{}, err
	}
	msg, err := s.authz.Message(ctx, actorID, messageID)
	if err != nil {
		return ReactionResult{}, err
	}
	res, err := s.toggle(ctx, models.MessageTarget(messageID), actorID, emoji)
	if err != nil {
		return ReactionResult{}, err
	}
	s.afterChannelWrite(ctx, msg.ChannelID, actorID, false)
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:      events.ReactionToggled,
		ActorID:   actorID,
		ChannelID: msg.ChannelID,
		Subject:   fmt.Sprint(messageID),
		Data:      res,
	})
	return res, nil
}

// toggle inserts the reaction, or removes it when the triple already exists.
func (s *Service) toggle(ctx context.Context, target models.Target, userID uuid.UUID, emoji string) (ReactionResult, error) {
	added, err := s.repos.Reactions.Add(ctx, &models.Reaction{Target: target, UserID: userID, Emoji: emoji})
	if err != nil {
		return ReactionResult{}, fmt.Errorf("add reaction: %w", err)
	}
	if added {
		return ReactionResult{Added: true, Emoji: emoji}, nil
	}
	if _, err := s.repos.Reactions.Remove(ctx, target, userID, emoji); err != nil {
		return ReactionResult{}, fmt.Errorf("remove reaction: %w", err)
	}
	return ReactionResult{Added: false, Emoji: emoji}, nil
}

// Thread returns the replies to a message, oldest first.
func (s *Service) Thread(ctx context.Context, actorID uuid.UUID, messageID int64) ([]models.MessageView, error) {
	if _, err := s.authz.Message(ctx, actorID, messageID); err != nil {
		return nil, err
	}
	replies, err := s.repos.Messages.ListReplies(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	return s.decorate(ctx, replies)
}

// afterChannelWrite invalidates every cached page of the channel. When the
// write changes what is unread, the members' counters go too; the author's
// own messages never count as unread for them.
func (s *Service) afterChannelWrite(ctx context.Context, channelID, actorID uuid.UUID, unread bool) {
	s.cache.InvalidateChannelMessages(ctx, channelID)
	if !unread {
		return
	}
	members, err := s.repos.Memberships.ListMembers(ctx, channelID)
	if err != nil {
		s.logger.Warn("unread invalidation skipped",
			zap.Stringer("channel_id", channelID),
			zap.Error(err),
		)
		return
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if m.UserID != actorID {
			ids = append(ids, m.UserID)
		}
	}
	s.cache.InvalidateUnread(ctx, ids...)
}

// decorate attaches reactions, attachments and reply counts. The three
// lookups are independent and run concurrently.
func (s *Service) decorate(ctx context.Context, msgs []models.Message) ([]models.MessageView, error) {
	out := make([]models.MessageView, 0, len(msgs))
	if len(msgs) == 0 {
		return out, nil
	}
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}

	var (
		reactions   map[int64][]models.Reaction
		attachments map[int64][]models.Attachment
		replies     map[int64]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		reactions, err = s.repos.Reactions.ListFor(gctx, models.TargetMessage, ids)
		return wrap("list reactions", err)
	})
	g.Go(func() (err error) {
		attachments, err = s.repos.Attachments.ListFor(gctx, models.TargetMessage, ids)
		return wrap("list attachments", err)
	})
	g.Go(func() (err error) {
		replies, err = s.repos.Messages.CountReplies(gctx, ids)
		return wrap("count replies", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, m := range msgs {
		files := attachments[m.ID]
		if files == nil {
			files = []models.Attachment{}
		}
		out = append(out, models.MessageView{
			Message:     m,
			Reactions:   models.SummarizeReactions(reactions[m.ID]),
			Attachments: files,
			ReplyCount:  replies[m.ID],
		})
	}
	return out, nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
