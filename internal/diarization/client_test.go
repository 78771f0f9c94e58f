package diarization

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func stageAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lesson.wav")
	if err := os.WriteFile(path, []byte("RIFF fake wav payload"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiarizeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/diarize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer hf_test_token" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("bad multipart body: %v", err)
		}
		if got := r.FormValue("num_speakers"); got != "2" {
			t.Errorf("num_speakers = %q, want 2", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"turns":[
			{"start":0.0,"end":4.2,"speaker":"SPEAKER_00"},
			{"start":4.2,"end":6.0,"speaker":"SPEAKER_01"}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "hf_test_token", 5*time.Second)
	turns, err := client.Diarize(context.Background(), stageAudio(t), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Speaker != "SPEAKER_00" || turns[1].Speaker != "SPEAKER_01" {
		t.Errorf("unexpected speakers: %+v", turns)
	}
	if turns[0].End != 4.2 {
		t.Errorf("turns[0].End = %f, want 4.2", turns[0].End)
	}
}

func TestDiarizeRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "model warming up", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"turns":[{"start":0,"end":1,"speaker":"SPEAKER_00"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 10*time.Second)
	turns, err := client.Diarize(context.Background(), stageAudio(t), 2)
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
	if len(turns) != 1 {
		t.Errorf("got %d turns, want 1", len(turns))
	}
}

func TestDiarizeClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unsupported codec", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)
	_, err := client.Diarize(context.Background(), stageAudio(t), 2)
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server called %d times, want 1", got)
	}
}

func TestDiarizeMissingFileFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should never be reached")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second)
	_, err := client.Diarize(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), 2)
	if err == nil {
		t.Fatal("expected error for missing audio file")
	}
}
