// Package store persists run records, a paragraph-level translation
// memory, and per-run glossary snapshots in SQLite.
//
// The translation memory lets an interrupted book run resume: paragraphs
// already translated with the same language pair and profile are served
// from the database instead of re-billed. Memory keys are NFC-normalized
// so visually identical source text hits the same row.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	-- runs records one book translation run and its final statistics
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		book_file TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		profile_name TEXT,
		model TEXT,
		status TEXT DEFAULT 'running',
		requests INTEGER DEFAULT 0,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		cache_read_tokens INTEGER DEFAULT 0,
		cache_write_tokens INTEGER DEFAULT 0,
		pass1_only INTEGER DEFAULT 0,
		full_3pass INTEGER DEFAULT 0,
		reviews_clean INTEGER DEFAULT 0,
		reviews_fixed INTEGER DEFAULT 0,
		batch_adjustments INTEGER DEFAULT 0,
		units_total INTEGER DEFAULT 0,
		units_failed INTEGER DEFAULT 0,
		glossary_terms INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP
	);

	-- memory caches translated paragraphs for resume support
	CREATE TABLE IF NOT EXISTS memory (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		profile_name TEXT NOT NULL DEFAULT '',
		translated_text TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_text, source_lang, target_lang, profile_name)
	);

	-- run_glossary snapshots the accumulated glossary of a finished run
	CREATE TABLE IF NOT EXISTS run_glossary (
		run_id TEXT NOT NULL,
		source_term TEXT NOT NULL,
		target_term TEXT NOT NULL,
		PRIMARY KEY (run_id, source_term),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeKey canonicalizes source text used as a memory key.
func normalizeKey(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// RunRecord mirrors one row of the runs table.
type RunRecord struct {
	ID          string
	BookFile    string
	SourceLang  string
	TargetLang  string
	ProfileName string
	Model       string
	Status      string

	Requests         int64
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	Pass1Only        int64
	Full3Pass        int64
	ReviewsClean     int64
	ReviewsFixed     int64
	BatchAdjustments int64
	UnitsTotal       int64
	UnitsFailed      int64
	GlossaryTerms    int64

	CreatedAt  time.Time
	FinishedAt sql.NullTime
}

// CreateRun inserts a new run in 'running' status and returns its ID.
func (s *Store) CreateRun(ctx context.Context, bookFile, sourceLang, targetLang, profileName, model string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, book_file, source_lang, target_lang, profile_name, model)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, bookFile, sourceLang, targetLang, profileName, model)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// FinishRun stores the final statistics and marks the run completed (or
// failed, per status).
func (s *Store) FinishRun(ctx context.Context, rec RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?,
			requests = ?, input_tokens = ?, output_tokens = ?,
			cache_read_tokens = ?, cache_write_tokens = ?,
			pass1_only = ?, full_3pass = ?, reviews_clean = ?, reviews_fixed = ?,
			batch_adjustments = ?, units_total = ?, units_failed = ?, glossary_terms = ?,
			finished_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		rec.Status,
		rec.Requests, rec.InputTokens, rec.OutputTokens,
		rec.CacheReadTokens, rec.CacheWriteTokens,
		rec.Pass1Only, rec.Full3Pass, rec.ReviewsClean, rec.ReviewsFixed,
		rec.BatchAdjustments, rec.UnitsTotal, rec.UnitsFailed, rec.GlossaryTerms,
		rec.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

const runColumns = `id, book_file, source_lang, target_lang, profile_name, model, status,
	requests, input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
	pass1_only, full_3pass, reviews_clean, reviews_fixed, batch_adjustments,
	units_total, units_failed, glossary_terms, created_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (RunRecord, error) {
	var rec RunRecord
	err := row.Scan(
		&rec.ID, &rec.BookFile, &rec.SourceLang, &rec.TargetLang,
		&rec.ProfileName, &rec.Model, &rec.Status,
		&rec.Requests, &rec.InputTokens, &rec.OutputTokens,
		&rec.CacheReadTokens, &rec.CacheWriteTokens,
		&rec.Pass1Only, &rec.Full3Pass, &rec.ReviewsClean, &rec.ReviewsFixed,
		&rec.BatchAdjustments, &rec.UnitsTotal, &rec.UnitsFailed, &rec.GlossaryTerms,
		&rec.CreatedAt, &rec.FinishedAt)
	return rec, err
}

// GetRun fetches one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return rec, nil
}

// LatestRun fetches the most recently created run.
func (s *Store) LatestRun(ctx context.Context) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT 1`)
	rec, err := scanRun(row)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to get latest run: %w", err)
	}
	return rec, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetCachedParagraph looks up a previously translated paragraph. Hits bump
// the usage counter.
func (s *Store) GetCachedParagraph(ctx context.Context, sourceText, sourceLang, targetLang, profileName string) (string, bool, error) {
	key := normalizeKey(sourceText)

	var translated string
	err := s.db.QueryRowContext(ctx, `
		SELECT translated_text FROM memory
		WHERE source_text = ? AND source_lang = ? AND target_lang = ? AND profile_name = ?`,
		key, sourceLang, targetLang, profileName).Scan(&translated)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query memory: %w", err)
	}

	_, _ = s.db.ExecContext(ctx, `
		UPDATE memory SET usage_count = usage_count + 1, last_used = CURRENT_TIMESTAMP
		WHERE source_text = ? AND source_lang = ? AND target_lang = ? AND profile_name = ?`,
		key, sourceLang, targetLang, profileName)

	return translated, true, nil
}

// SaveParagraph stores one translated paragraph, replacing any previous
// translation for the same key.
func (s *Store) SaveParagraph(ctx context.Context, sourceText, sourceLang, targetLang, profileName, translatedText string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory (id, source_text, source_lang, target_lang, profile_name, translated_text)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_text, source_lang, target_lang, profile_name)
		DO UPDATE SET translated_text = excluded.translated_text, last_used = CURRENT_TIMESTAMP`,
		uuid.New().String(), normalizeKey(sourceText), sourceLang, targetLang, profileName, translatedText)
	if err != nil {
		return fmt.Errorf("failed to save paragraph: %w", err)
	}
	return nil
}

// MemoryStats returns the number of cached paragraphs.
func (s *Store) MemoryStats(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count memory: %w", err)
	}
	return count, nil
}

// ClearMemory deletes the entire translation memory.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear memory: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SaveRunGlossary snapshots a run's accumulated glossary.
func (s *Store) SaveRunGlossary(ctx context.Context, runID string, glossary map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for src, tgt := range glossary {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_glossary (run_id, source_term, target_term)
			VALUES (?, ?, ?)
			ON CONFLICT(run_id, source_term) DO UPDATE SET target_term = excluded.target_term`,
			runID, src, tgt); err != nil {
			return fmt.Errorf("failed to save glossary term %q: %w", src, err)
		}
	}
	return tx.Commit()
}

// RunGlossary loads a run's glossary snapshot.
func (s *Store) RunGlossary(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_term, target_term FROM run_glossary WHERE run_id = ? ORDER BY source_term`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run glossary: %w", err)
	}
	defer rows.Close()

	glossary := make(map[string]string)
	for rows.Next() {
		var src, tgt string
		if err := rows.Scan(&src, &tgt); err != nil {
			return nil, fmt.Errorf("failed to scan glossary term: %w", err)
		}
		glossary[src] = tgt
	}
	return glossary, rows.Err()
}
