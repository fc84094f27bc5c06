package bots

import "time"

// BotConfig is an upstream provider configuration owned by a user.
// Read-only to the streaming core; resolved once per session.
type BotConfig struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID string `gorm:"type:varchar(64);index;not null" json:"-"`
	Name   string `gorm:"type:varchar(128)" json:"name"`

	AccessKey  string  `gorm:"type:varchar(256);not null" json:"-"`
	AccessPath *string `gorm:"type:varchar(256)" json:"-"`

	Model       string  `gorm:"type:varchar(128)" json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`

	// alternate provider routing
	OpenRouterKey *string `gorm:"type:varchar(256)" json:"-"`
	UseOpenRouter bool    `json:"use_openrouter"`

	IsDefault bool      `gorm:"index" json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BotConfig) TableName() string { return "bots" }

const (
	DefaultModel       = "deepseek-chat"
	DefaultTemperature = float32(0.7)
	DefaultMaxTokens   = 1000
)

// EffectiveModel returns the bot's model with the stack-wide fallback.
func (b *BotConfig) EffectiveModel() string {
	if b.Model == "" {
		return DefaultModel
	}
	return b.Model
}

func (b *BotConfig) EffectiveTemperature() float32 {
	if b.Temperature <= 0 {
		return DefaultTemperature
	}
	return b.Temperature
}

func (b *BotConfig) EffectiveMaxTokens() int {
	if b.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return b.MaxTokens
}

// Provider names the upstream wire family, used by request transforms.
func (b *BotConfig) Provider() string {
	if b.UseOpenRouter {
		return "openrouter"
	}
	return "openai"
}
