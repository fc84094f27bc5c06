package messages

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound: the record does not exist or belongs to another
	// user. Not distinguished, so existence never leaks.
	ErrNotFound = errors.New("message not found or unauthorized")

	// ErrStoreFailed wraps transport/storage failures.
	ErrStoreFailed = errors.New("message store failed")
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func wrap(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrStoreFailed, err)
}

func (r *Repo) GetMessage(ctx context.Context, userID string, id uint64) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&m).Error; err != nil {
		return nil, wrap(err)
	}
	return &m, nil
}

// GetMessageByStreamID resolves temporary client-side ids: a message
// that was persisted under a known stream id can be found before the
// client ever learned its durable id.
func (r *Repo) GetMessageByStreamID(ctx context.Context, userID, streamID string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).
		Where("stream_id = ? AND user_id = ?", streamID, userID).
		Order("id DESC").
		First(&m).Error; err != nil {
		return nil, wrap(err)
	}
	return &m, nil
}

func (r *Repo) CreateMessage(ctx context.Context, m *Message) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return nil
}

func (r *Repo) CreateAlternative(ctx context.Context, a *MessageAlternative) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return nil
}

func (r *Repo) GetAlternative(ctx context.Context, userID string, id uint64) (*MessageAlternative, error) {
	var a MessageAlternative
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&a).Error; err != nil {
		return nil, wrap(err)
	}
	return &a, nil
}

func (r *Repo) UpdateAlternative(ctx context.Context, id uint64, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&MessageAlternative{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) ListAlternatives(ctx context.Context, userID string, parentMessageID uint64) ([]MessageAlternative, error) {
	var alts []MessageAlternative
	if err := r.db.WithContext(ctx).
		Where("parent_message_id = ? AND user_id = ?", parentMessageID, userID).
		Order("id ASC").
		Find(&alts).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return alts, nil
}

func (r *Repo) GetConversation(ctx context.Context, userID string, id uint64) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&c).Error; err != nil {
		return nil, wrap(err)
	}
	return &c, nil
}

func (r *Repo) CreateConversation(ctx context.Context, c *Conversation) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return nil
}
