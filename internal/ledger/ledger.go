package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrUnauthorized       = errors.New("invalid or missing API token")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrInsufficientTokens = errors.New("insufficient tokens")
)

// DownloadRecord is one row of a user's download history.
type DownloadRecord struct {
	ID         string
	UserID     string
	VideoURL   string
	VideoID    string
	VideoTitle string
	Quality    string
	Strategy   string
	Cost       int
	CreatedAt  time.Time
}

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id     TEXT PRIMARY KEY,
    tokens      INTEGER NOT NULL DEFAULT 0 CHECK (tokens >= 0),
    created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS api_tokens (
    token       TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
    created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS downloads (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL REFERENCES profiles(user_id) ON DELETE CASCADE,
    video_url    TEXT NOT NULL DEFAULT '',
    video_id     TEXT NOT NULL DEFAULT '',
    video_title  TEXT NOT NULL DEFAULT '',
    quality      TEXT NOT NULL DEFAULT '',
    strategy     TEXT NOT NULL DEFAULT '',
    cost         INTEGER NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
CREATE INDEX IF NOT EXISTS idx_downloads_user_created ON downloads(user_id, created_at);
`

// Ledger stores credit balances, API tokens and download history in SQLite.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the ledger database at the given path.
func Open(path string) (*Ledger, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger at %s: %w", path, err)
	}

	// Pragmas such as foreign_keys apply per connection.
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	if _, err := sqlDB.Exec(createSchemaSQL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Ledger{db: sqlDB}, nil
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Ledger) ready() error {
	if l == nil || l.db == nil {
		return fmt.Errorf("ledger not initialized")
	}
	return nil
}

// Authenticate maps a bearer token to its user.
func (l *Ledger) Authenticate(ctx context.Context, token string) (string, error) {
	if err := l.ready(); err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	var userID string
	err := l.db.QueryRowContext(ctx, "SELECT user_id FROM api_tokens WHERE token = ?", token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", fmt.Errorf("looking up token: %w", err)
	}
	return userID, nil
}

// Balance returns the user's current token balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	var tokens int
	err := l.db.QueryRowContext(ctx, "SELECT tokens FROM profiles WHERE user_id = ?", userID).Scan(&tokens)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying balance: %w", err)
	}
	return tokens, nil
}

// Debit atomically subtracts cost from the user's balance and returns what
// remains. The balance never goes negative.
func (l *Ledger) Debit(ctx context.Context, userID string, cost int) (int, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	if cost < 0 {
		return 0, fmt.Errorf("negative cost %d", cost)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning debit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE profiles SET tokens = tokens - ?, updated_at = datetime('now')
		WHERE user_id = ? AND tokens >= ?
	`, cost, userID, cost)
	if err != nil {
		return 0, fmt.Errorf("debiting tokens: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("debiting tokens: %w", err)
	}

	var remaining int
	err = tx.QueryRowContext(ctx, "SELECT tokens FROM profiles WHERE user_id = ?", userID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying balance: %w", err)
	}
	if affected == 0 {
		return remaining, fmt.Errorf("%w: need %d, have %d", ErrInsufficientTokens, cost, remaining)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing debit: %w", err)
	}
	return remaining, nil
}

// Grant adds tokens to a user, creating the profile if needed, and returns
// the new balance.
func (l *Ledger) Grant(ctx context.Context, userID string, tokens int) (int, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}
	if tokens < 0 {
		return 0, fmt.Errorf("cannot grant negative tokens")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, tokens) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			tokens = tokens + excluded.tokens,
			updated_at = datetime('now')
	`, userID, tokens)
	if err != nil {
		return 0, fmt.Errorf("granting tokens: %w", err)
	}

	var balance int
	if err := l.db.QueryRowContext(ctx, "SELECT tokens FROM profiles WHERE user_id = ?", userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("querying balance: %w", err)
	}
	return balance, nil
}

// IssueToken creates a new API token for the user. The profile must exist.
func (l *Ledger) IssueToken(ctx context.Context, userID string) (string, error) {
	if err := l.ready(); err != nil {
		return "", err
	}
	if _, err := l.Balance(ctx, userID); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	token := uuid.NewString()
	if _, err := l.db.ExecContext(ctx, "INSERT INTO api_tokens (token, user_id) VALUES (?, ?)", token, userID); err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return token, nil
}

// RecordDownload appends a history row and returns its ID.
func (l *Ledger) RecordDownload(ctx context.Context, record DownloadRecord) (string, error) {
	if err := l.ready(); err != nil {
		return "", err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if strings.TrimSpace(record.VideoTitle) == "" {
		record.VideoTitle = "Untitled"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO downloads (
			id, user_id, video_url, video_id, video_title,
			quality, strategy, cost, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID, record.UserID, record.VideoURL, record.VideoID, record.VideoTitle,
		record.Quality, record.Strategy, record.Cost, record.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("recording download: %w", err)
	}
	return record.ID, nil
}

// History returns the user's downloads, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]DownloadRecord, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, video_url, video_id, video_title,
			quality, strategy, cost, created_at
		FROM downloads
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []DownloadRecord
	for rows.Next() {
		var r DownloadRecord
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.VideoURL, &r.VideoID, &r.VideoTitle,
			&r.Quality, &r.Strategy, &r.Cost, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning download row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
