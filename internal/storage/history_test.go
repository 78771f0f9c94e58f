package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/classlens/classroom-transcriber/internal/types"
)

func newTestDB(t *testing.T) *HistoryDB {
	t.Helper()
	db, err := NewHistoryDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGetJob(t *testing.T) {
	db := newTestDB(t)

	rec := types.JobRecord{
		JobID:          "job-abc",
		Filename:       "lesson.wav",
		Status:         types.StatusCompleted,
		AudioDuration:  123.5,
		UtteranceCount: 42,
		SpeakerCount:   3,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	if err := db.SaveJob(rec); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	got, err := db.GetJob("job-abc")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Filename != rec.Filename || got.Status != rec.Status {
		t.Errorf("got %+v, want %+v", got, rec)
	}
	if got.UtteranceCount != 42 || got.SpeakerCount != 3 {
		t.Errorf("counts lost: %+v", got)
	}
	if got.AudioDuration != 123.5 {
		t.Errorf("duration = %f, want 123.5", got.AudioDuration)
	}
}

func TestSaveFailedJobKeepsError(t *testing.T) {
	db := newTestDB(t)

	rec := types.JobRecord{
		JobID:     "job-err",
		Filename:  "broken.mp3",
		Status:    types.StatusFailed,
		Error:     "diarization failed: sidecar down",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.SaveJob(rec); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	got, err := db.GetJob("job-err")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Error != rec.Error {
		t.Errorf("error = %q, want %q", got.Error, rec.Error)
	}
}

func TestGetJobMissing(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetJob("nope"); err == nil {
		t.Error("expected error for missing job")
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"job-old", "job-mid", "job-new"} {
		rec := types.JobRecord{
			JobID:     id,
			Filename:  id + ".wav",
			Status:    types.StatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.SaveJob(rec); err != nil {
			t.Fatalf("SaveJob(%s): %v", id, err)
		}
	}

	records, err := db.ListJobs(2)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].JobID != "job-new" || records[1].JobID != "job-mid" {
		t.Errorf("wrong order: %s, %s", records[0].JobID, records[1].JobID)
	}

	if err := db.SaveJob(types.JobRecord{JobID: "job-new", CreatedAt: time.Now()}); err == nil {
		t.Error("expected unique constraint violation for duplicate job_id")
	}
}
