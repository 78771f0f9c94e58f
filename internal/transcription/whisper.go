package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/classlens/classroom-transcriber/internal/logger"
	"github.com/classlens/classroom-transcriber/internal/types"
)

// WhisperTranscriber runs OpenAI Whisper through its Python CLI and parses
// the JSON output. One transcription runs at a time: the model is not
// reentrant-safe and loading it twice would exhaust memory on small hosts.
type WhisperTranscriber struct {
	modelName string
	language  string
	tempDir   string
	log       *logger.Logger
	mu        sync.Mutex
}

// NewWhisperTranscriber creates a transcriber for the given Whisper model
// name (tiny, base, small, medium, large). Availability of the Python
// toolchain is verified up front so a broken install surfaces at startup
// rather than on the first request.
func NewWhisperTranscriber(modelName, language, tempDir string, log *logger.Logger) (*WhisperTranscriber, error) {
	if modelName == "" {
		modelName = "base"
	}
	if language == "" {
		language = "en"
	}

	if _, err := exec.LookPath("python"); err != nil {
		return nil, fmt.Errorf("whisper unavailable: %w", err)
	}

	log.WithField("model", modelName).Info("whisper transcriber ready")
	return &WhisperTranscriber{
		modelName: modelName,
		language:  language,
		tempDir:   tempDir,
		log:       log,
	}, nil
}

// Transcribe processes an audio file and returns its ordered, timestamped
// segments plus the audio duration covered by them.
func (wt *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) ([]types.Segment, float64, error) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	outDir, err := os.MkdirTemp(wt.tempDir, "whisper_out_")
	if err != nil {
		return nil, 0, fmt.Errorf("whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	absAudioPath, err := filepath.Abs(audioPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get absolute path: %w", err)
	}

	cmd := exec.CommandContext(ctx, "python", "-m", "whisper",
		absAudioPath,
		"--model", wt.modelName,
		"--output_dir", outDir,
		"--output_format", "json",
		"--language", wt.language,
		"--fp16", "False", // CPU hosts choke on fp16
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, 0, fmt.Errorf("whisper transcription failed: %w\noutput: %s", err, string(output))
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outDir, baseName+".json")

	jsonData, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read whisper output: %w", err)
	}

	segments, duration, err := parseWhisperOutput(jsonData)
	if err != nil {
		return nil, 0, err
	}

	wt.log.WithField("segments", len(segments)).WithField("duration", duration).
		Debug("transcription completed")
	return segments, duration, nil
}

// parseWhisperOutput converts Whisper's JSON document into ordered segments.
// Segment order and count are preserved exactly as Whisper emitted them.
func parseWhisperOutput(data []byte) ([]types.Segment, float64, error) {
	var doc whisperOutput
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("failed to parse whisper JSON: %w", err)
	}

	segments := make([]types.Segment, len(doc.Segments))
	for i, seg := range doc.Segments {
		segments[i] = types.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		}
	}

	var duration float64
	if len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}
	return segments, duration, nil
}

// whisperOutput matches Python Whisper's JSON output format
type whisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
