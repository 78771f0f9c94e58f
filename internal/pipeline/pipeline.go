package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/classlens/classroom-transcriber/internal/fusion"
	"github.com/classlens/classroom-transcriber/internal/logger"
	"github.com/classlens/classroom-transcriber/internal/transcription"
	"github.com/classlens/classroom-transcriber/internal/types"
)

// ErrModelUnavailable is returned when a collaborator model failed to
// initialize at startup and a request arrives anyway.
var ErrModelUnavailable = errors.New("a required model is not loaded")

// Pipeline stages, used to tell the caller which collaborator failed.
const (
	StageNormalize     = "normalize"
	StageDiarization   = "diarization"
	StageTranscription = "transcription"
	StageFusion        = "fusion"
)

// StageError wraps a failure with the pipeline stage that produced it, so
// diarization, transcription and fusion failures stay distinguishable at the
// request boundary.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Diarizer segments audio into labeled speaker turns for a known number of
// speakers.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, numSpeakers int) ([]types.SpeakerTurn, error)
}

// Transcriber converts audio into ordered, timestamped text segments and
// reports the covered duration.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]types.Segment, float64, error)
}

// HistoryStore records per-job operational metadata.
type HistoryStore interface {
	SaveJob(rec types.JobRecord) error
}

// Processor runs the full analysis for one staged audio file: normalize,
// diarize, transcribe, fuse, assign roles. Model inference dwarfs the fusion
// step and the underlying models are not reentrant-safe, so concurrent
// requests contend for a fixed number of slots; the fusion core itself is
// pure and needs no synchronization.
type Processor struct {
	diarizer    Diarizer
	transcriber Transcriber
	history     HistoryStore
	slots       chan struct{}
	tempDir     string
	log         *logger.Logger

	// normalize stages the upload as 16kHz mono WAV; swapped out in tests.
	normalize func(inputPath, tempDir string) (string, error)
}

// NewProcessor wires the collaborators together. Either collaborator may be
// nil when its model failed to load; Process then refuses requests with
// ErrModelUnavailable instead of crashing mid-pipeline. history may be nil
// to disable job records.
func NewProcessor(d Diarizer, t Transcriber, history HistoryStore, maxConcurrent int, tempDir string, log *logger.Logger) *Processor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Processor{
		diarizer:    d,
		transcriber: t,
		history:     history,
		slots:       make(chan struct{}, maxConcurrent),
		tempDir:     tempDir,
		log:         log,
		normalize:   transcription.NormalizeAudio,
	}
}

// Process runs the pipeline over the staged upload at audioPath and returns
// the role-labeled transcript. The staged file is left in place; the caller
// owns its cleanup. numSpeakers is the expected speaker count handed through
// to diarization (never auto-detected).
func (p *Processor) Process(ctx context.Context, jobID, audioPath, filename string, numSpeakers int) (result []types.LabeledUtterance, err error) {
	if p.diarizer == nil || p.transcriber == nil {
		return nil, ErrModelUnavailable
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.slots }()

	log := p.log.WithJob(jobID)

	var duration float64
	var utteranceCount, speakerCount int
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic during processing: %v\n%s", r, string(debug.Stack()))
			err = fmt.Errorf("internal error during processing: %v", r)
		}
		p.record(jobID, filename, duration, utteranceCount, speakerCount, err)
	}()

	started := time.Now()
	log.WithField("file", filename).Info("processing started")

	normalizedPath, err := p.normalize(audioPath, p.tempDir)
	if err != nil {
		return nil, &StageError{Stage: StageNormalize, Err: err}
	}
	defer os.Remove(normalizedPath)

	turns, err := p.diarizer.Diarize(ctx, normalizedPath, numSpeakers)
	if err != nil {
		return nil, &StageError{Stage: StageDiarization, Err: err}
	}
	log.WithField("turns", len(turns)).Debug("diarization completed")

	segments, audioDuration, err := p.transcriber.Transcribe(ctx, normalizedPath)
	if err != nil {
		return nil, &StageError{Stage: StageTranscription, Err: err}
	}
	duration = audioDuration
	log.WithField("segments", len(segments)).Debug("transcription completed")

	utterances, err := fusion.Fuse(segments, turns)
	if err != nil {
		return nil, &StageError{Stage: StageFusion, Err: err}
	}
	labeled := fusion.AssignRoles(utterances)

	utteranceCount = len(labeled)
	speakerCount = countSpeakers(utterances)
	log.WithField("utterances", utteranceCount).
		WithField("speakers", speakerCount).
		WithField("elapsed", time.Since(started).Round(time.Millisecond).String()).
		Info("processing completed")
	return labeled, nil
}

// record writes the job outcome to the history store. The transcript itself
// is never persisted.
func (p *Processor) record(jobID, filename string, duration float64, utterances, speakers int, procErr error) {
	if p.history == nil {
		return
	}

	rec := types.JobRecord{
		JobID:          jobID,
		Filename:       filename,
		Status:         types.StatusCompleted,
		AudioDuration:  duration,
		UtteranceCount: utterances,
		SpeakerCount:   speakers,
		CreatedAt:      time.Now(),
	}
	if procErr != nil {
		rec.Status = types.StatusFailed
		rec.Error = procErr.Error()
	}
	if err := p.history.SaveJob(rec); err != nil {
		p.log.WithJob(jobID).Warnf("failed to save job record: %v", err)
	}
}

func countSpeakers(utterances []types.Utterance) int {
	seen := make(map[string]struct{})
	for _, u := range utterances {
		if u.Speaker != types.UnknownSpeaker {
			seen[u.Speaker] = struct{}{}
		}
	}
	return len(seen)
}
