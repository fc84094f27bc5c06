package bots

import (
	"context"
	"errors"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// conversation mirrors the messages-package table; only the columns
// the resolver touches.
type conversation struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	UserID string `gorm:"type:varchar(64)"`
	BotID  *uint64
}

func (conversation) TableName() string { return "conversations" }

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&BotConfig{}, &conversation{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedBot(t *testing.T, db *gorm.DB, b *BotConfig) *BotConfig {
	t.Helper()
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("seed bot: %v", err)
	}
	return b
}

func u64(n uint64) *uint64 { return &n }

func TestResolve_ExplicitIDWins(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	seedBot(t, db, &BotConfig{UserID: "alice", Name: "default", IsDefault: true})
	want := seedBot(t, db, &BotConfig{UserID: "alice", Name: "explicit"})

	got, err := r.Resolve(context.Background(), "alice", u64(want.ID), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != want.ID {
		t.Fatalf("expected bot %d, got %d", want.ID, got.ID)
	}
}

// An explicit id owned by someone else fails even when the caller has
// a perfectly good default bot.
func TestResolve_ExplicitIDUnauthorizedDoesNotFallBack(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	seedBot(t, db, &BotConfig{UserID: "alice", Name: "default", IsDefault: true})
	other := seedBot(t, db, &BotConfig{UserID: "bob", Name: "bobs"})

	_, err := r.Resolve(context.Background(), "alice", u64(other.ID), nil)
	if !errors.Is(err, ErrNotFoundOrUnauthorized) {
		t.Fatalf("expected ErrNotFoundOrUnauthorized, got %v", err)
	}
}

func TestResolve_ConversationBinding(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	seedBot(t, db, &BotConfig{UserID: "alice", Name: "default", IsDefault: true})
	bound := seedBot(t, db, &BotConfig{UserID: "alice", Name: "bound"})

	conv := &conversation{UserID: "alice", BotID: &bound.ID}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	got, err := r.Resolve(context.Background(), "alice", nil, u64(conv.ID))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != bound.ID {
		t.Fatalf("expected bound bot %d, got %d", bound.ID, got.ID)
	}
}

func TestResolve_UnboundConversationFallsThroughToDefault(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	def := seedBot(t, db, &BotConfig{UserID: "alice", Name: "default", IsDefault: true})
	conv := &conversation{UserID: "alice"}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	got, err := r.Resolve(context.Background(), "alice", nil, u64(conv.ID))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != def.ID {
		t.Fatalf("expected default bot %d, got %d", def.ID, got.ID)
	}
}

func TestResolve_DefaultPrefersNewestDefault(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	old := time.Now().Add(-time.Hour)
	stale := seedBot(t, db, &BotConfig{UserID: "alice", Name: "stale", IsDefault: true})
	if err := db.Model(stale).UpdateColumn("updated_at", old).Error; err != nil {
		t.Fatalf("age bot: %v", err)
	}
	fresh := seedBot(t, db, &BotConfig{UserID: "alice", Name: "fresh", IsDefault: true})

	got, err := r.Resolve(context.Background(), "alice", nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != fresh.ID {
		t.Fatalf("expected freshest default %d, got %d", fresh.ID, got.ID)
	}
}

func TestResolve_NoDefaultFallsBackToNewestBot(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	only := seedBot(t, db, &BotConfig{UserID: "alice", Name: "only"})

	got, err := r.Resolve(context.Background(), "alice", nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != only.ID {
		t.Fatalf("expected %d, got %d", only.ID, got.ID)
	}
}

func TestResolve_NoBotConfigured(t *testing.T) {
	db := openTestDB(t)
	r := NewResolver(NewRepo(db), nil)

	_, err := r.Resolve(context.Background(), "alice", nil, nil)
	if !errors.Is(err, ErrNoBotConfigured) {
		t.Fatalf("expected ErrNoBotConfigured, got %v", err)
	}
}

func TestResolve_ExplicitIDUsesCache(t *testing.T) {
	db := openTestDB(t)
	cache := NewMemCache(time.Minute)
	r := NewResolver(NewRepo(db), cache)

	b := seedBot(t, db, &BotConfig{UserID: "alice", Name: "cached"})

	if _, err := r.Resolve(context.Background(), "alice", u64(b.ID), nil); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	// remove the row; the cache must answer now
	if err := db.Delete(&BotConfig{}, b.ID).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := r.Resolve(context.Background(), "alice", u64(b.ID), nil)
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if got.Name != "cached" {
		t.Fatalf("unexpected cached bot: %v", got)
	}
}
