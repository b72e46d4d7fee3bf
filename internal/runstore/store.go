// Package runstore persists the loop's durable control state in SQLite: the
// checkpoint promotion registry, evaluation history, and curriculum
// snapshots. In-memory state remains authoritative; the store exists for
// restart continuity and inspection.
package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	version_id   TEXT PRIMARY KEY,
	step         INTEGER NOT NULL,
	perplexity   REAL NOT NULL,
	path         TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS eval_history (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	step            INTEGER NOT NULL,
	perplexity      REAL NOT NULL,
	hit_rate        REAL NOT NULL DEFAULT 0,
	adapter_norm    REAL NOT NULL DEFAULT 0,
	tag_report_json TEXT,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS curriculum_snapshots (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	quality_floor      REAL NOT NULL,
	priority_tags_json TEXT NOT NULL,
	created_at         TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store manages control-loop state in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by inspection tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region checkpoints

// RecordPromotion inserts a promoted checkpoint and returns its record.
func (s *Store) RecordPromotion(step int, perplexity float64, path string) (CheckpointRecord, error) {
	rec := CheckpointRecord{
		VersionID:  uuid.New().String(),
		Step:       step,
		Perplexity: perplexity,
		Path:       path,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO checkpoints (version_id, step, perplexity, path, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.VersionID, rec.Step, rec.Perplexity, rec.Path,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return CheckpointRecord{}, fmt.Errorf("insert checkpoint: %w", err)
	}
	return rec, nil
}

// BestCheckpoint returns the lowest-perplexity promotion. sql.ErrNoRows when
// nothing has been promoted yet.
func (s *Store) BestCheckpoint() (CheckpointRecord, error) {
	row := s.db.QueryRow(
		`SELECT version_id, step, perplexity, path, created_at
		 FROM checkpoints ORDER BY perplexity ASC LIMIT 1`)
	return scanCheckpoint(row)
}

// ListCheckpoints returns the most recent promotions, newest first.
func (s *Store) ListCheckpoints(limit int) ([]CheckpointRecord, error) {
	rows, err := s.db.Query(
		`SELECT version_id, step, perplexity, path, created_at
		 FROM checkpoints ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var records []CheckpointRecord
	for rows.Next() {
		rec, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (CheckpointRecord, error) {
	var rec CheckpointRecord
	var createdStr string
	if err := row.Scan(&rec.VersionID, &rec.Step, &rec.Perplexity, &rec.Path, &createdStr); err != nil {
		return CheckpointRecord{}, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion checkpoints

// #region eval-history

// RecordEval appends one evaluation result.
func (s *Store) RecordEval(rec EvalRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var tagJSON any
	if len(rec.TagPerplexity) > 0 {
		data, err := json.Marshal(rec.TagPerplexity)
		if err != nil {
			return fmt.Errorf("marshal tag report: %w", err)
		}
		tagJSON = string(data)
	}
	_, err := s.db.Exec(
		`INSERT INTO eval_history (step, perplexity, hit_rate, adapter_norm, tag_report_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Step, rec.Perplexity, rec.HitRate, rec.AdapterNorm, tagJSON,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert eval: %w", err)
	}
	return nil
}

// RecentEvals returns the most recent evaluations, newest first.
func (s *Store) RecentEvals(limit int) ([]EvalRecord, error) {
	rows, err := s.db.Query(
		`SELECT step, perplexity, hit_rate, adapter_norm, tag_report_json, created_at
		 FROM eval_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list evals: %w", err)
	}
	defer rows.Close()

	var records []EvalRecord
	for rows.Next() {
		var rec EvalRecord
		var tagJSON sql.NullString
		var createdStr string
		if err := rows.Scan(&rec.Step, &rec.Perplexity, &rec.HitRate, &rec.AdapterNorm, &tagJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan eval: %w", err)
		}
		if tagJSON.Valid {
			if err := json.Unmarshal([]byte(tagJSON.String), &rec.TagPerplexity); err != nil {
				return nil, fmt.Errorf("unmarshal tag report: %w", err)
			}
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion eval-history

// #region curriculum

// RecordCurriculum appends one curriculum snapshot.
func (s *Store) RecordCurriculum(qualityFloor float64, priorityTags []string) error {
	tagsJSON, err := json.Marshal(priorityTags)
	if err != nil {
		return fmt.Errorf("marshal priority tags: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO curriculum_snapshots (quality_floor, priority_tags_json, created_at)
		 VALUES (?, ?, ?)`,
		qualityFloor, string(tagsJSON), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert curriculum: %w", err)
	}
	return nil
}

// LatestCurriculum returns the newest snapshot, or found=false when none
// has been recorded.
func (s *Store) LatestCurriculum() (CurriculumRecord, bool, error) {
	var rec CurriculumRecord
	var tagsJSON string
	var createdStr string
	err := s.db.QueryRow(
		`SELECT quality_floor, priority_tags_json, created_at
		 FROM curriculum_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&rec.QualityFloor, &tagsJSON, &createdStr)
	if err == sql.ErrNoRows {
		return CurriculumRecord{}, false, nil
	}
	if err != nil {
		return CurriculumRecord{}, false, fmt.Errorf("latest curriculum: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &rec.PriorityTags); err != nil {
		return CurriculumRecord{}, false, fmt.Errorf("unmarshal priority tags: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, true, nil
}

// #endregion curriculum
