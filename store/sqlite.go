// Package store persists plant records to SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-plants/models"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const upsertPlantSQL = `
	INSERT INTO plants (url, name, common_names, scientific_name, family, toxicity, toxic_principles, clinical_signs, image_url, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
	  name = excluded.name,
	  common_names = excluded.common_names,
	  scientific_name = excluded.scientific_name,
	  family = excluded.family,
	  toxicity = excluded.toxicity,
	  toxic_principles = excluded.toxic_principles,
	  clinical_signs = excluded.clinical_signs,
	  image_url = excluded.image_url,
	  updated_at = excluded.updated_at
`

// SQLiteStore upserts plants keyed by URL. It satisfies pipeline.OutputWriter.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Writes come from concurrent batch tasks; a single connection keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Write upserts plants in a single transaction.
func (s *SQLiteStore) Write(plants []*models.Plant) error {
	return s.Upsert(context.Background(), plants)
}

// Upsert inserts plants or refreshes existing rows with the same URL.
func (s *SQLiteStore) Upsert(ctx context.Context, plants []*models.Plant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPlantSQL)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	updatedAt := s.now().UTC().Format(time.RFC3339)
	for _, p := range plants {
		commonNames, err := json.Marshal(nonNil(p.CommonNames))
		if err != nil {
			return fmt.Errorf("marshal common names for %s: %w", p.URL, err)
		}
		toxicity, err := json.Marshal(nonNil(p.Toxicity))
		if err != nil {
			return fmt.Errorf("marshal toxicity for %s: %w", p.URL, err)
		}

		if _, err := stmt.ExecContext(ctx,
			p.URL,
			p.Name,
			string(commonNames),
			p.ScientificName,
			p.Family,
			string(toxicity),
			p.ToxicPrinciples,
			p.ClinicalSigns,
			p.ImageURL,
			updatedAt,
		); err != nil {
			return fmt.Errorf("exec upsert for %s: %w", p.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Plants returns every stored plant ordered by name.
func (s *SQLiteStore) Plants(ctx context.Context) ([]*models.Plant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, name, common_names, scientific_name, family, toxicity, toxic_principles, clinical_signs, image_url
		FROM plants ORDER BY name, url`)
	if err != nil {
		return nil, fmt.Errorf("query plants: %w", err)
	}
	defer rows.Close()

	var plants []*models.Plant
	for rows.Next() {
		var (
			p           models.Plant
			commonNames string
			toxicity    string
		)
		if err := rows.Scan(&p.URL, &p.Name, &commonNames, &p.ScientificName, &p.Family, &toxicity, &p.ToxicPrinciples, &p.ClinicalSigns, &p.ImageURL); err != nil {
			return nil, fmt.Errorf("scan plant: %w", err)
		}
		if err := json.Unmarshal([]byte(commonNames), &p.CommonNames); err != nil {
			return nil, fmt.Errorf("decode common names for %s: %w", p.URL, err)
		}
		if err := json.Unmarshal([]byte(toxicity), &p.Toxicity); err != nil {
			return nil, fmt.Errorf("decode toxicity for %s: %w", p.URL, err)
		}
		plants = append(plants, &p)
	}
	return plants, rows.Err()
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Validate checks the database is reachable.
func (s *SQLiteStore) Validate() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
