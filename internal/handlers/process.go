package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/classlens/classroom-transcriber/internal/logger"
	"github.com/classlens/classroom-transcriber/internal/pipeline"
	"github.com/classlens/classroom-transcriber/internal/transcription"
	"github.com/classlens/classroom-transcriber/internal/types"
)

// AudioProcessor runs the analysis pipeline over one staged audio file.
type AudioProcessor interface {
	Process(ctx context.Context, jobID, audioPath, filename string, numSpeakers int) ([]types.LabeledUtterance, error)
}

// ProcessHandler serves the audio analysis endpoint: one multipart upload
// in, one role-labeled transcript out.
type ProcessHandler struct {
	processor       AudioProcessor
	tempDir         string
	defaultSpeakers int
	maxSizeMB       int
	log             *logger.Logger
}

// NewProcessHandler creates the handler. defaultSpeakers is the expected
// speaker count forwarded to diarization when the request does not override
// it with a "speakers" form value.
func NewProcessHandler(processor AudioProcessor, tempDir string, defaultSpeakers, maxSizeMB int, log *logger.Logger) *ProcessHandler {
	return &ProcessHandler{
		processor:       processor,
		tempDir:         tempDir,
		defaultSpeakers: defaultSpeakers,
		maxSizeMB:       maxSizeMB,
		log:             log,
	}
}

// Handle stages the uploaded file, runs the pipeline and writes the labeled
// transcript as a JSON array. The staged file is removed on every exit path.
func (h *ProcessHandler) Handle(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file part in the request",
			"code":  "ERR_NO_FILE",
		})
	}
	if file.Filename == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No selected file",
			"code":  "ERR_NO_FILE",
		})
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
			"code":  "ERR_FILE_TOO_LARGE",
		})
	}

	if !transcription.ValidateAudioFormat(file.Filename) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported audio format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	speakers := h.defaultSpeakers
	if v := c.FormValue("speakers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "speakers must be a positive integer",
				"code":  "ERR_BAD_SPEAKER_COUNT",
			})
		}
		speakers = n
	}

	jobID := uuid.New().String()
	tempPath := filepath.Join(h.tempDir, jobID+filepath.Ext(file.Filename))

	if err := c.SaveFile(file, tempPath); err != nil {
		h.log.WithJob(jobID).Errorf("failed to stage upload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			h.log.WithJob(jobID).Warnf("failed to remove staged upload: %v", err)
		}
	}()

	labeled, err := h.processor.Process(c.UserContext(), jobID, tempPath, file.Filename, speakers)
	if err != nil {
		return h.processingError(c, jobID, err)
	}

	return c.JSON(labeled)
}

// processingError maps pipeline failures onto the wire. Model unavailability
// and each pipeline stage stay distinguishable in the response code field.
func (h *ProcessHandler) processingError(c *fiber.Ctx, jobID string, err error) error {
	log := h.log.WithJob(jobID)

	if errors.Is(err, pipeline.ErrModelUnavailable) {
		log.Error("request rejected: model not loaded")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "A required model is not loaded. Check server logs.",
			"code":  "ERR_MODEL_UNAVAILABLE",
		})
	}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		log.Errorf("processing failed at %s: %v", stageErr.Stage, stageErr.Err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("An error occurred during processing: %v", stageErr.Err),
			"code":  "ERR_" + toCode(stageErr.Stage),
		})
	}

	log.Errorf("processing failed: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fmt.Sprintf("An error occurred during processing: %v", err),
		"code":  "ERR_PROCESSING",
	})
}

func toCode(stage string) string {
	switch stage {
	case pipeline.StageNormalize:
		return "NORMALIZE_FAILED"
	case pipeline.StageDiarization:
		return "DIARIZATION_FAILED"
	case pipeline.StageTranscription:
		return "TRANSCRIPTION_FAILED"
	case pipeline.StageFusion:
		return "FUSION_FAILED"
	}
	return "PROCESSING"
}
