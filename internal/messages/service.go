package messages

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/bcblevins/storyteller-stream-relay/internal/common"
)

// ErrNotRerollable: only assistant-authored messages accept
// alternatives.
var ErrNotRerollable = errors.New("message is not rerollable")

type Service struct {
	repo *Repo

	// tempIDPrefix marks client-side placeholder ids for messages the
	// client has not seen persisted yet; the remainder is a stream id.
	tempIDPrefix string
}

func NewService(repo *Repo, tempIDPrefix string) *Service {
	if tempIDPrefix == "" {
		tempIDPrefix = "temp-"
	}
	return &Service{repo: repo, tempIDPrefix: tempIDPrefix}
}

// ResolveParent turns a client-supplied parent id (durable numeric id
// or temporary placeholder) into the durable message.
func (s *Service) ResolveParent(ctx context.Context, userID, rawID string) (*Message, error) {
	rawID = strings.TrimSpace(rawID)
	if rest, ok := strings.CutPrefix(rawID, s.tempIDPrefix); ok {
		return s.repo.GetMessageByStreamID(ctx, userID, rest)
	}
	n, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetMessage(ctx, userID, n)
}

// InitiateReroll creates the empty, still-streaming alternative record
// before the reroll stream opens. The caller then streams with
// is_alternative=true and the returned record's id.
func (s *Service) InitiateReroll(ctx context.Context, userID, rawParentID string, conversationID uint64) (*MessageAlternative, error) {
	parent, err := s.ResolveParent(ctx, userID, rawParentID)
	if err != nil {
		return nil, err
	}
	if parent.IsUserAuthor {
		return nil, ErrNotRerollable
	}
	if conversationID == 0 {
		conversationID = parent.ConversationID
	}

	streamID, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	alt := &MessageAlternative{
		ParentMessageID: parent.ID,
		ConversationID:  conversationID,
		UserID:          userID,
		Content:         "",
		IsStreaming:     true,
		IsComplete:      false,
		StreamID:        streamID,
		IsActive:        true,
	}
	if err := s.repo.CreateAlternative(ctx, alt); err != nil {
		return nil, err
	}
	return alt, nil
}

func (s *Service) GetAlternative(ctx context.Context, userID string, id uint64) (*MessageAlternative, error) {
	return s.repo.GetAlternative(ctx, userID, id)
}

// FindByStreamID returns (nil, nil) when no message carries the
// stream id, so replay callers can distinguish absence from failure.
func (s *Service) FindByStreamID(ctx context.Context, userID, streamID string) (*Message, error) {
	m, err := s.repo.GetMessageByStreamID(ctx, userID, streamID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (s *Service) ListAlternatives(ctx context.Context, userID string, parentMessageID uint64) ([]MessageAlternative, error) {
	// parent ownership check doubles as an existence check
	if _, err := s.repo.GetMessage(ctx, userID, parentMessageID); err != nil {
		return nil, err
	}
	return s.repo.ListAlternatives(ctx, userID, parentMessageID)
}

// CreateMessage implements the stream persister's create-message kind.
func (s *Service) CreateMessage(ctx context.Context, userID string, conversationID uint64, content string, complete bool, streamID string) (uint64, error) {
	m := &Message{
		UserID:         userID,
		ConversationID: conversationID,
		Content:        content,
		IsUserAuthor:   false,
		IsStreaming:    false,
		IsComplete:     complete,
		StreamID:       streamID,
	}
	if err := s.repo.CreateMessage(ctx, m); err != nil {
		return 0, err
	}
	return m.ID, nil
}

// UpdateAlternative implements the stream persister's
// update-alternative kind.
func (s *Service) UpdateAlternative(ctx context.Context, alternativeID uint64, content string, complete bool) (uint64, error) {
	err := s.repo.UpdateAlternative(ctx, alternativeID, map[string]any{
		"content":      content,
		"is_streaming": false,
		"is_complete":  complete,
	})
	if err != nil {
		return 0, err
	}
	return alternativeID, nil
}
