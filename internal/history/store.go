// Package history implements the isolation-keyed conversation store.
//
// It persists feedback exchanges (AI prompt, user feedback, command
// logs, attached images) in SQLite, partitioned by the isolation key
// derived in internal/isolation, and serves four progressively broader
// browsing modes plus free-text search and multi-format export.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trilayer/trilayer/internal/isolation"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrEmptyPrompt is returned by Save when ai_prompt is missing. The
// record is rejected before any write happens.
var ErrEmptyPrompt = errors.New("history: ai_prompt is required")

// ─── Types ───────────────────────────────────────────────────────────────────

// ConversationRecord is one persisted feedback exchange. The identity
// fields (client, worker, project) are stored denormalized next to the
// isolation key so the browsing modes can filter on them directly.
type ConversationRecord struct {
	ID               int64  `json:"-"`
	SessionID        string `json:"session_id"`
	IsolationKey     string `json:"isolation_key"`
	ClientName       string `json:"client_name"`
	Worker           string `json:"worker"`
	ProjectName      string `json:"project_name"`
	ProjectDirectory string `json:"project_directory"`
	AIPrompt         string `json:"ai_prompt"`
	UserFeedback     string `json:"user_feedback"`
	CommandLogs      string `json:"command_logs"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// ConversationImage is an image attached to a record. It is owned by
// its parent conversation and deleted with it. ImagePath is the
// original filesystem path at capture time and may no longer exist.
type ConversationImage struct {
	ID             int64
	ConversationID int64
	ImagePath      string
	ImageName      string
	ImageData      []byte
	CreatedAt      string
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds history store configuration.
type Config struct {
	DataDir string
}

// DefaultConfig returns the default configuration: one database file
// per installation under the user's home directory.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".trilayer")}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the conversation history engine backed by SQLite. It is
// constructed once at process start and closed explicitly; a mutex
// serializes writers on the shared connection so in-process concurrent
// callers do not have to coordinate themselves.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a Store with the given configuration. It creates the data
// directory if needed, opens SQLite with WAL mode, and creates the
// schema idempotently.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "history.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT NOT NULL UNIQUE,
			isolation_key     TEXT NOT NULL,
			client_name       TEXT NOT NULL,
			worker            TEXT NOT NULL,
			project_name      TEXT NOT NULL,
			project_directory TEXT NOT NULL,
			ai_prompt         TEXT NOT NULL,
			user_feedback     TEXT,
			command_logs      TEXT,
			created_at        TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS conversation_images (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			image_path      TEXT NOT NULL,
			image_name      TEXT NOT NULL,
			image_data      BLOB,
			created_at      TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_conv_created   ON conversations(created_at);
		CREATE INDEX IF NOT EXISTS idx_conv_session   ON conversations(session_id);
		CREATE INDEX IF NOT EXISTS idx_conv_isolation ON conversations(isolation_key);
		CREATE INDEX IF NOT EXISTS idx_conv_client    ON conversations(client_name);
		CREATE INDEX IF NOT EXISTS idx_conv_worker    ON conversations(worker);
		CREATE INDEX IF NOT EXISTS idx_conv_project   ON conversations(project_name);
		CREATE INDEX IF NOT EXISTS idx_img_conv       ON conversation_images(conversation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Write path ──────────────────────────────────────────────────────────────

// Save upserts a record by session_id together with its attached
// images, atomically: either the record and all images commit, or
// nothing does. A missing session_id is generated from the isolation
// key, prompt, and current time. Re-saving an existing session_id
// replaces the content in place, preserves the stored created_at, and
// refreshes updated_at.
func (s *Store) Save(record *ConversationRecord, images []ConversationImage) (string, error) {
	if strings.TrimSpace(record.AIPrompt) == "" {
		return "", ErrEmptyPrompt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record.SessionID == "" {
		record.SessionID = newSessionID(record.IsolationKey, record.AIPrompt)
	}
	now := Now()
	if record.CreatedAt == "" {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(
		`INSERT INTO conversations
		 (session_id, isolation_key, client_name, worker, project_name,
		  project_directory, ai_prompt, user_feedback, command_logs,
		  created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			isolation_key     = excluded.isolation_key,
			client_name       = excluded.client_name,
			worker            = excluded.worker,
			project_name      = excluded.project_name,
			project_directory = excluded.project_directory,
			ai_prompt         = excluded.ai_prompt,
			user_feedback     = excluded.user_feedback,
			command_logs      = excluded.command_logs,
			updated_at        = excluded.updated_at`,
		record.SessionID, record.IsolationKey, record.ClientName,
		record.Worker, record.ProjectName, record.ProjectDirectory,
		record.AIPrompt, nullableString(record.UserFeedback),
		nullableString(record.CommandLogs),
		record.CreatedAt, record.UpdatedAt,
	); err != nil {
		return "", fmt.Errorf("history: save conversation: %w", err)
	}

	if err := tx.QueryRow(
		`SELECT id FROM conversations WHERE session_id = ?`, record.SessionID,
	).Scan(&record.ID); err != nil {
		return "", fmt.Errorf("history: resolve conversation id: %w", err)
	}

	for i := range images {
		img := &images[i]
		img.ConversationID = record.ID
		if img.CreatedAt == "" {
			img.CreatedAt = now
		}
		if _, err := tx.Exec(
			`INSERT INTO conversation_images
			 (conversation_id, image_path, image_name, image_data, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			img.ConversationID, img.ImagePath, img.ImageName, img.ImageData, img.CreatedAt,
		); err != nil {
			return "", fmt.Errorf("history: save image %q: %w", img.ImageName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("history: commit: %w", err)
	}
	return record.SessionID, nil
}

// Delete removes a record and its images transactionally. It returns
// false without error when no matching record exists, so repeated
// deletes are safe.
func (s *Store) Delete(sessionID, isolationKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var conversationID int64
	err = tx.QueryRow(
		`SELECT id FROM conversations WHERE session_id = ? AND isolation_key = ?`,
		sessionID, isolationKey,
	).Scan(&conversationID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("history: locate conversation: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM conversation_images WHERE conversation_id = ?`, conversationID,
	); err != nil {
		return false, fmt.Errorf("history: delete images: %w", err)
	}
	if _, err := tx.Exec(
		`DELETE FROM conversations WHERE id = ?`, conversationID,
	); err != nil {
		return false, fmt.Errorf("history: delete conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("history: commit: %w", err)
	}
	return true, nil
}

// ─── Read path ───────────────────────────────────────────────────────────────

// selectRecord is the shared projection for all record queries.
// Optional text fields come back as empty strings, not NULL markers.
const selectRecord = `
	SELECT id, session_id, isolation_key, client_name, worker,
	       project_name, project_directory, ai_prompt,
	       ifnull(user_feedback, ''), ifnull(command_logs, ''),
	       created_at, updated_at
	FROM conversations`

// Conversations returns one partition's records, newest first.
func (s *Store) Conversations(isolationKey string, limit, offset int) ([]ConversationRecord, error) {
	limit, offset = clampPage(limit, offset)
	return s.queryRecords(selectRecord+`
		WHERE isolation_key = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		isolationKey, limit, offset)
}

// Images returns the images attached to one record. The isolation key
// scopes the lookup so a guessed conversation id from another partition
// returns nothing.
func (s *Store) Images(conversationID int64, isolationKey string) ([]ConversationImage, error) {
	rows, err := s.db.Query(
		`SELECT ci.id, ci.conversation_id, ci.image_path, ci.image_name,
		        ci.image_data, ci.created_at
		 FROM conversation_images ci
		 JOIN conversations c ON c.id = ci.conversation_id
		 WHERE ci.conversation_id = ? AND c.isolation_key = ?`,
		conversationID, isolationKey,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query images: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ConversationImage
	for rows.Next() {
		var img ConversationImage
		if err := rows.Scan(
			&img.ID, &img.ConversationID, &img.ImagePath,
			&img.ImageName, &img.ImageData, &img.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, img)
	}
	return results, rows.Err()
}

// Search does a case-insensitive substring match across prompt,
// feedback, and logs within one partition, newest first.
func (s *Store) Search(isolationKey, query string, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	pattern := "%" + query + "%"
	return s.queryRecords(selectRecord+`
		WHERE isolation_key = ? AND (
			ai_prompt LIKE ? OR
			user_feedback LIKE ? OR
			command_logs LIKE ?
		)
		ORDER BY created_at DESC
		LIMIT ?`,
		isolationKey, pattern, pattern, pattern, limit)
}

// IsolationKeys returns the distinct partition keys present, for
// administrative enumeration.
func (s *Store) IsolationKeys() ([]string, error) {
	return s.queryStrings(`SELECT DISTINCT isolation_key FROM conversations ORDER BY isolation_key`)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

const defaultLimit = 100

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Store) queryRecords(query string, args ...any) ([]ConversationRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ConversationRecord
	for rows.Next() {
		var r ConversationRecord
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.IsolationKey, &r.ClientName, &r.Worker,
			&r.ProjectName, &r.ProjectDirectory, &r.AIPrompt,
			&r.UserFeedback, &r.CommandLogs,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) queryStrings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}

// newSessionID derives a session id from the isolation key, prompt, and
// current time, matching the stability contract of the isolation key
// itself (hex, fixed length).
func newSessionID(isolationKey, prompt string) string {
	content := isolationKey + "_" + prompt + "_" + time.Now().Format(time.RFC3339Nano)
	return isolation.Hash(content, 0)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Now returns the current time formatted for SQLite.
func Now() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}
