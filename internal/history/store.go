package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    image_url TEXT NOT NULL,
    prompt TEXT NOT NULL,
    original_prompt TEXT NOT NULL,
    revised_prompt TEXT,
    model TEXT NOT NULL,
    size TEXT NOT NULL,
    quality TEXT,
    style TEXT,
    cost TEXT NOT NULL DEFAULT '0',
    favorite INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);
CREATE INDEX IF NOT EXISTS idx_records_favorite ON records(favorite);
`

var ErrRecordNotFound = errors.New("record not found")

// Store is the append-mostly local history of generation records. Appends are
// synchronous so a billed generation is on disk before the call returns.
type Store struct {
	db *sql.DB
}

func NewStore() (*Store, error) {
	dbPath, err := defaultDBPath()
	if err != nil {
		return nil, err
	}
	return NewStoreWithPath(dbPath)
}

func NewStoreWithPath(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func defaultDBPath() (string, error) {
	if testDir := os.Getenv("IMGSTUDIO_DATA_DIR"); testDir != "" {
		return filepath.Join(testDir, "history.db"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".imgstudio", "history.db"), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, image_url, prompt, original_prompt, revised_prompt, model, size, quality, style, cost, favorite, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ImageURL, rec.Prompt, rec.OriginalPrompt, nullString(rec.RevisedPrompt),
		rec.Model, rec.Size, nullString(rec.Quality), nullString(rec.Style),
		rec.Cost.String(), boolToInt(rec.Favorite), rec.CreatedAt)
	return err
}

// List returns records most recent first. A limit below one means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit < 1 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM records ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) ListFavorites(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM records WHERE favorite = 1 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return rec, err
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Store) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET favorite = 1 - favorite WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, ErrRecordNotFound
	}

	var favorite int
	if err := s.db.QueryRowContext(ctx,
		`SELECT favorite FROM records WHERE id = ?`, id).Scan(&favorite); err != nil {
		return false, err
	}
	return favorite == 1, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	return count, err
}

// TotalSpend sums the recorded cost of every record.
func (s *Store) TotalSpend(ctx context.Context) (decimal.Decimal, error) {
	records, err := s.List(ctx, 0)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(rec.Cost)
	}
	return total, nil
}

// ExportAll writes a JSON snapshot of the full history, most recent first.
func (s *Store) ExportAll(ctx context.Context, w io.Writer) error {
	records, err := s.List(ctx, 0)
	if err != nil {
		return err
	}
	if records == nil {
		records = []*Record{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

const selectColumns = `SELECT id, image_url, prompt, original_prompt, revised_prompt, model, size, quality, style, cost, favorite, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	rec := &Record{}
	var revisedPrompt, quality, style sql.NullString
	var cost string
	var favorite int
	var createdAt time.Time

	err := row.Scan(&rec.ID, &rec.ImageURL, &rec.Prompt, &rec.OriginalPrompt, &revisedPrompt,
		&rec.Model, &rec.Size, &quality, &style, &cost, &favorite, &createdAt)
	if err != nil {
		return nil, err
	}

	rec.RevisedPrompt = revisedPrompt.String
	rec.Quality = quality.String
	rec.Style = style.String
	rec.Favorite = favorite == 1
	rec.CreatedAt = createdAt

	rec.Cost, err = decimal.NewFromString(cost)
	if err != nil {
		rec.Cost = decimal.Zero
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
