package bots

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFoundOrUnauthorized: the bot does not exist or is not owned
	// by the caller. Deliberately indistinguishable to the client.
	ErrNotFoundOrUnauthorized = errors.New("bot not found or unauthorized")

	// ErrNoBotConfigured: the user has no bot at all.
	ErrNoBotConfigured = errors.New("no bot configured for this user")

	// ErrLookupFailed wraps transient storage failures, distinct from
	// not-found.
	ErrLookupFailed = errors.New("bot lookup failed")
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetBot(ctx context.Context, userID string, botID uint64) (*BotConfig, error) {
	var b BotConfig
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", botID, userID).
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFoundOrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return &b, nil
}

// GetDefaultBot prefers the newest bot marked default, then the newest
// bot of any kind.
func (r *Repo) GetDefaultBot(ctx context.Context, userID string) (*BotConfig, error) {
	var b BotConfig
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ?", userID, true).
		Order("updated_at DESC, created_at DESC").
		First(&b).Error
	if err == nil {
		return &b, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	err = r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, created_at DESC").
		First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoBotConfigured
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return &b, nil
}

// GetConversationBot returns the bot bound to a conversation, or
// (nil, nil) when the conversation has no binding so the caller can
// fall through to the default.
func (r *Repo) GetConversationBot(ctx context.Context, userID string, conversationID uint64) (*BotConfig, error) {
	// The conversation row lives in the messages package; only its
	// bot_id column matters here.
	var row struct {
		BotID *uint64
	}
	err := r.db.WithContext(ctx).
		Table("conversations").
		Select("bot_id").
		Where("id = ? AND user_id = ?", conversationID, userID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if row.BotID == nil {
		return nil, nil
	}
	return r.GetBot(ctx, userID, *row.BotID)
}

func (r *Repo) CreateBot(ctx context.Context, b *BotConfig) error {
	return r.db.WithContext(ctx).Create(b).Error
}
