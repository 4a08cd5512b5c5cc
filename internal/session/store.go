// Package session implements the Session Store: the mapping from a chat
// identity to its conversation state and accumulated backend identities.
// This is the only durable state the core keeps; everything else lives in
// the commerce backend. Persistence is SQLite via GORM (pure Go driver),
// with an in-memory implementation for tests and single-run tooling.
//
// The store does no locking of its own beyond what GORM provides: the
// dispatcher guarantees that events for one chat identity are processed one
// at a time, so each read-modify-write of a session is a single logical step.
package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/seliverstovmd/go-storefront-bot/internal/domain"
)

// Store is the session persistence contract used by the conversation
// controller and the dispatcher.
type Store interface {
	// Get returns the session for chatID, creating a fresh one in the menu
	// state on first contact.
	Get(ctx context.Context, chatID string) (domain.Session, error)

	// Put upserts the session.
	Put(ctx context.Context, s domain.Session) error
}

// Open opens (or creates) the SQLite session database, applies PRAGMAs and
// pool settings, and optionally attaches the OpenTelemetry tracing plugin.
func Open(path string, traced bool) (*gorm.DB, error) {
	// Fail early if the parent directory does not exist (instead of a cryptic
	// sqlite "out of memory (14)" later).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(4)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	if traced {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// AutoMigrate creates or updates the sessions table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Session{})
}

// DBStore persists sessions in the SQLite database opened by Open.
type DBStore struct {
	db *gorm.DB
}

// NewDBStore wraps a GORM handle in a Store.
func NewDBStore(db *gorm.DB) *DBStore { return &DBStore{db: db} }

// Get fetches the session for chatID. A chat identity seen for the first
// time gets a fresh menu-state session, created here.
func (s *DBStore) Get(ctx context.Context, chatID string) (domain.Session, error) {
	var sess domain.Session
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sess = domain.Session{ChatID: chatID, State: domain.StateMenu}
		if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
			return domain.Session{}, err
		}
		return sess, nil
	}
	if err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

// Put upserts the session row.
func (s *DBStore) Put(ctx context.Context, sess domain.Session) error {
	return s.db.WithContext(ctx).Save(&sess).Error
}

// MemoryStore is a map-backed Store for tests and local development.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]domain.Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]domain.Session)}
}

// Get returns the stored session or a fresh menu-state one.
func (s *MemoryStore) Get(ctx context.Context, chatID string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.m[chatID]; ok {
		return sess, nil
	}
	sess := domain.Session{ChatID: chatID, State: domain.StateMenu, CreatedAt: time.Now().UTC()}
	s.m[chatID] = sess
	return sess, nil
}

// Put stores the session.
func (s *MemoryStore) Put(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.UpdatedAt = time.Now().UTC()
	s.m[sess.ChatID] = sess
	return nil
}
