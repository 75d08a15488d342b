// Package store persists conversations and messages in a relational database.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/support-chat/support-agent/internal/config"
	"github.com/support-chat/support-agent/internal/model"
)

// Options selects and configures the database backend.
type Options struct {
	Driver string
	DSN    string
	// SSL toggles TLS for the Postgres connection.
	SSL bool
}

// Store is the conversation and message repository.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database. The returned Store owns the
// connection pool; call Close at shutdown.
func Open(opts Options) (*Store, error) {
	var dialector gorm.Dialector
	switch opts.Driver {
	case config.DriverPostgres:
		dsn, err := postgresDSN(opts.DSN, opts.SSL)
		if err != nil {
			return nil, err
		}
		dialector = postgres.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(opts.DSN))
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", opts.Driver, err)
	}

	return New(db), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the conversations and messages tables if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.Conversation{}, &model.Message{}); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateConversation inserts a new, empty conversation.
func (s *Store) CreateConversation(ctx context.Context) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("store: create conversation: %w", err)
	}
	return conv, nil
}

// ConversationExists reports whether a conversation with id is stored.
func (s *Store) ConversationExists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: lookup conversation: %w", err)
	}
	return count > 0, nil
}

// AppendMessage stores one message under an existing conversation.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, sender model.Sender, content string) (*model.Message, error) {
	if conversationID == "" {
		return nil, errors.New("store: append message: conversation id is required")
	}
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Omit("Conversation").Create(msg).Error; err != nil {
		return nil, fmt.Errorf("store: append message: %w", err)
	}
	return msg, nil
}

// RecentMessages returns at most limit messages of a conversation, newest
// selected first and returned in chronological order. When beforeID is set
// only messages created before it are considered.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int, beforeID string) ([]model.Message, error) {
	msgs := make([]model.Message, 0, limit)
	if limit <= 0 {
		return msgs, nil
	}

	q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if beforeID != "" {
		q = q.Where("id < ?", beforeID)
	}
	if err := q.Order("id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Messages returns every message of a conversation in creation order. An
// unknown conversation yields an empty slice.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	msgs := make([]model.Message, 0)
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// postgresDSN applies the TLS toggle unless the DSN already sets sslmode.
func postgresDSN(dsn string, ssl bool) (string, error) {
	mode := "disable"
	if ssl {
		mode = "require"
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("store: parse DATABASE_URL: %w", err)
		}
		q := u.Query()
		if q.Get("sslmode") == "" {
			q.Set("sslmode", mode)
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	}

	if strings.Contains(dsn, "sslmode=") {
		return dsn, nil
	}
	return strings.TrimSpace(dsn + " sslmode=" + mode), nil
}

// sqliteDSN turns on foreign keys and a busy timeout for SQLite files.
func sqliteDSN(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk=") {
		params = append(params, "_foreign_keys=on")
	}
	if !strings.Contains(dsn, "_busy_timeout") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
