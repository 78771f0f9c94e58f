package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/classlens/classroom-transcriber/internal/types"
)

// HistoryDB keeps the operational record of processed jobs in SQLite.
// Only counts, durations and outcomes are stored; transcript content never
// touches the database.
type HistoryDB struct {
	db *sql.DB
}

// NewHistoryDB opens (and if needed creates) the job history database.
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		audio_duration REAL,
		utterance_count INTEGER,
		speaker_count INTEGER,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &HistoryDB{db: db}, nil
}

// SaveJob inserts one job record.
func (h *HistoryDB) SaveJob(rec types.JobRecord) error {
	query := `
	INSERT INTO jobs (job_id, filename, status, error, audio_duration, utterance_count, speaker_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := h.db.Exec(query, rec.JobID, rec.Filename, rec.Status, rec.Error,
		rec.AudioDuration, rec.UtteranceCount, rec.SpeakerCount, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save job record: %w", err)
	}
	return nil
}

// GetJob retrieves one job record by its id.
func (h *HistoryDB) GetJob(jobID string) (types.JobRecord, error) {
	query := `
	SELECT job_id, filename, status, error, audio_duration, utterance_count, speaker_count, created_at
	FROM jobs WHERE job_id = ?
	`

	var rec types.JobRecord
	row := h.db.QueryRow(query, jobID)
	err := row.Scan(&rec.JobID, &rec.Filename, &rec.Status, &rec.Error,
		&rec.AudioDuration, &rec.UtteranceCount, &rec.SpeakerCount, &rec.CreatedAt)
	if err != nil {
		return types.JobRecord{}, fmt.Errorf("failed to get job record: %w", err)
	}
	return rec, nil
}

// ListJobs returns the most recent job records, newest first.
func (h *HistoryDB) ListJobs(limit int) ([]types.JobRecord, error) {
	query := `
	SELECT job_id, filename, status, error, audio_duration, utterance_count, speaker_count, created_at
	FROM jobs ORDER BY created_at DESC LIMIT ?
	`

	rows, err := h.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}
	defer rows.Close()

	records := make([]types.JobRecord, 0, limit)
	for rows.Next() {
		var rec types.JobRecord
		if err := rows.Scan(&rec.JobID, &rec.Filename, &rec.Status, &rec.Error,
			&rec.AudioDuration, &rec.UtteranceCount, &rec.SpeakerCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}
