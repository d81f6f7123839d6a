package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"stealthcompany.com/complaints/internal/cfpb"
	"stealthcompany.com/complaints/internal/metrics"
)

// SQLite stores complaints in a local database file, one
// raw_<entity>_complaints table per entity with complaint_id as primary key.
// It is the default backend and what the downstream SQL models read from.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite database: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite store opened")
	return &SQLite{db: db}, nil
}

func tableName(entity string) string {
	return "raw_" + EntityKey(entity) + "_complaints"
}

func (s *SQLite) EnsureEntity(ctx context.Context, entity string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		complaint_id TEXT PRIMARY KEY,
		date_received TEXT,
		company TEXT,
		product TEXT,
		sub_product TEXT,
		issue TEXT,
		sub_issue TEXT,
		submitted_via TEXT,
		company_response TEXT,
		timely TEXT,
		consumer_disputed TEXT,
		state TEXT,
		zip_code TEXT,
		company_public_response TEXT,
		consumer_consent_provided TEXT,
		date_sent_to_company TEXT,
		complaint_what_happened TEXT,
		tags TEXT,
		extra TEXT,
		loaded_at TEXT NOT NULL
	)`, tableName(entity))

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table for %q: %w", entity, err)
	}
	return nil
}

const insertComplaintSQL = `INSERT OR IGNORE INTO %s (
	complaint_id, date_received, company, product, sub_product, issue,
	sub_issue, submitted_via, company_response, timely, consumer_disputed,
	state, zip_code, company_public_response, consumer_consent_provided,
	date_sent_to_company, complaint_what_happened, tags, extra, loaded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertComplaints writes each record in its own implicit transaction so the
// write path stays safe to interleave with other writers.
func (s *SQLite) InsertComplaints(ctx context.Context, entity string, records []cfpb.Record) (int, int, error) {
	query := fmt.Sprintf(insertComplaintSQL, tableName(entity))
	loadedAt := time.Now().UTC().Format(time.RFC3339)

	var inserted, ignored int
	for _, rec := range records {
		if rec.ComplaintID == "" {
			log.Warn().Str("entity", entity).Msg("Record without complaint_id, not stored")
			ignored++
			continue
		}

		extra := "{}"
		if len(rec.Extra) > 0 {
			raw, err := json.Marshal(rec.Extra)
			if err != nil {
				return inserted, ignored, fmt.Errorf("failed to encode extra fields for %s: %w", rec.ComplaintID, err)
			}
			extra = string(raw)
		}

		start := time.Now()
		res, err := s.db.ExecContext(ctx, query,
			rec.ComplaintID, rec.DateReceived, rec.Company, rec.Product,
			rec.SubProduct, rec.Issue, rec.SubIssue, rec.SubmittedVia,
			rec.CompanyResponse, rec.Timely, rec.ConsumerDisputed, rec.State,
			rec.ZipCode, rec.CompanyPublicResponse, rec.ConsumerConsentProvided,
			rec.DateSentToCompany, rec.ComplaintWhatHappened, rec.Tags,
			extra, loadedAt,
		)
		if err != nil {
			metrics.RecordStoreOperation("sqlite", "insert", "error", time.Since(start))
			return inserted, ignored, fmt.Errorf("failed to insert complaint %s: %w", rec.ComplaintID, err)
		}

		if n, err := res.RowsAffected(); err == nil && n > 0 {
			metrics.RecordStoreOperation("sqlite", "insert", "success", time.Since(start))
			inserted++
		} else {
			metrics.RecordStoreOperation("sqlite", "insert", "ignored", time.Since(start))
			ignored++
		}
	}

	return inserted, ignored, nil
}

func (s *SQLite) CountComplaints(ctx context.Context, entity string) (int64, error) {
	table := tableName(entity)

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to check table for %q: %w", entity, err)
	}
	if exists == 0 {
		return 0, nil
	}

	var count int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count complaints for %q: %w", entity, err)
	}
	return count, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
