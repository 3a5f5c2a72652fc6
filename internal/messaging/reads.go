package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/authz"
	"github.com/lalith-99/huddle/internal/cache"
	"github.com/lalith-99/huddle/internal/cachekey"
	"github.com/lalith-99/huddle/internal/models"
)

// List returns one page of a channel's top-level messages, newest first,
// through channel_messages:{id}:page:{n}. Pages start at 1.
//
// Membership is checked against the system of record on every call; the
// cached page is shared by all members.
func (s *Service) List(ctx context.Context, actorID, channelID uuid.UUID, page int) (models.MessagePage, error) {
	if page < 1 {
		return models.MessagePage{}, apperr.Validation("page", "must be at least 1")
	}
	if err := s.authorize(ctx, actorID, authz.ChannelRef(channelID), authz.ActionRead); err != nil {
		return models.MessagePage{}, err
	}
	key := cachekey.ForChannelMessages(channelID, page)
	return cache.ReadThrough(ctx, s.cache, key, func(ctx context.Context) (models.MessagePage, error) {
		return s.loadPage(ctx, channelID, page)
	})
}

func (s *Service) loadPage(ctx context.Context, channelID uuid.UUID, page int) (models.MessagePage, error) {
	// One extra row tells whether another page exists.
	msgs, err := s.repos.Messages.ListTopLevel(ctx, channelID, (page-1)*s.pageSize, s.pageSize+1)
	if err != nil {
		return models.MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	hasMore := len(msgs) > s.pageSize
	if hasMore {
		msgs = msgs[:s.pageSize]
	}
	views, err := s.decorate(ctx, msgs)
	if err != nil {
		return models.MessagePage{}, err
	}
	return models.MessagePage{
		ChannelID: channelID,
		Page:      page,
		PageSize:  s.pageSize,
		HasMore:   hasMore,
		Messages:  views,
	}, nil
}

// Search finds messages in the channels the actor belongs to.
func (s *Service) Search(ctx context.Context, actorID uuid.UUID, query string) ([]models.Message, error) {
	query = strings.TrimSpace(query)
	if runeLen(query) < MinSearchLength {
		return nil, apperr.Validation("q", fmt.Sprintf("must be at least %d characters", MinSearchLength))
	}
	channelIDs, err := s.repos.Memberships.ListChannelIDs(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list joined channels: %w", err)
	}
	if len(channelIDs) == 0 {
		return []models.Message{}, nil
	}
	found, err := s.repos.Messages.Search(ctx, channelIDs, query, MaxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return found, nil
}

// Unread returns the actor's unread counters through unread_count:{id}.
func (s *Service) Unread(ctx context.Context, actorID uuid.UUID) (models.UnreadCounts, error) {
	return cache.ReadThrough(ctx, s.cache, cachekey.ForUnreadCount(actorID), func(ctx context.Context) (models.UnreadCounts, error) {
		channels, err := s.repos.Messages.CountUnread(ctx, actorID)
		if err != nil {
			return models.UnreadCounts{}, fmt.Errorf("count unread messages: %w", err)
		}
		direct, err := s.repos.DirectMessages.CountUnread(ctx, actorID)
		if err != nil {
			return models.UnreadCounts{}, fmt.Errorf("count unread direct messages: %w", err)
		}
		out := models.UnreadCounts{
			UserID:   actorID,
			Direct:   direct,
			Channels: make(map[uuid.UUID]int, len(channels)),
			Total:    direct,
		}
		for id, n := range channels {
			if n == 0 {
				continue
			}
			out.Channels[id] = n
			out.Total += n
		}
		return out, nil
	})
}
