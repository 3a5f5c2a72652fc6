package messaging

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/lalith-99/huddle/internal/apperr"
	"github.com/lalith-99/huddle/internal/authz"
	"github.com/lalith-99/huddle/internal/models"
)

// MaxAttachmentSize caps the size recorded for one file (25 MiB).
const MaxAttachmentSize = 25 << 20

// AttachmentInput is the metadata of a file already stored in the blob
// store under StorageKey.
type AttachmentInput struct {
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	FileSize   int64  `json:"file_size"`
	StorageKey string `json:"storage_key"`
}

func (in AttachmentInput) validate() error {
	return apperr.FromValidation(validation.ValidateStruct(&in,
		validation.Field(&in.Filename, validation.Required, validation.Length(1, 255)),
		validation.Field(&in.FileType, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.FileSize, validation.Required, validation.Min(int64(1)), validation.Max(int64(MaxAttachmentSize))),
		validation.Field(&in.StorageKey, validation.Required, validation.Length(1, 512)),
	))
}

// Attach records an attachment on a message or direct message. Only the
// sender of the target may attach to it.
func (s *Service) Attach(ctx context.Context, actorID uuid.UUID, target models.Target, in AttachmentInput) (*models.Attachment, error) {
	in.Filename = strings.TrimSpace(in.Filename)
	if err := in.validate(); err != nil {
		return nil, err
	}

	var channelID uuid.UUID
	switch target.Kind {
	case models.TargetMessage:
		msg, err := s.authz.Message(ctx, actorID, target.ID)
		if err != nil {
			return nil, err
		}
		if err := s.authz.CanMutateMessage(msg, actorID).Err(); err != nil {
			return nil, err
		}
		channelID = msg.ChannelID
	case models.TargetDirectMessage:
		dm, err := s.authz.DirectMessage(ctx, actorID, target.ID)
		if err != nil {
			return nil, err
		}
		if dm.SenderID != actorID {
			return nil, authz.Deny(apperr.ReasonNotOwner).Err()
		}
	default:
		return nil, apperr.Validation("target", fmt.Sprintf("unknown kind %q", target.Kind))
	}

	a, err := s.repos.Attachments.Create(ctx, &models.Attachment{
		Target:     target,
		Filename:   in.Filename,
		FileType:   in.FileType,
		FileSize:   in.FileSize,
		StorageKey: in.StorageKey,
		UploadedBy: actorID,
	})
	if err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}
	if channelID != uuid.Nil {
		s.cache.InvalidateChannelMessages(ctx, channelID)
	}
	return a, nil
}

// MyUploads lists what the actor has uploaded, newest first.
func (s *Service) MyUploads(ctx context.Context, actorID uuid.UUID) ([]models.Attachment, error) {
	list, err := s.repos.Attachments.ListByUploader(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return list, nil
}
