package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/classlens/classroom-transcriber/internal/cleanup"
	"github.com/classlens/classroom-transcriber/internal/diarization"
	"github.com/classlens/classroom-transcriber/internal/handlers"
	"github.com/classlens/classroom-transcriber/internal/logger"
	"github.com/classlens/classroom-transcriber/internal/pipeline"
	"github.com/classlens/classroom-transcriber/internal/storage"
	"github.com/classlens/classroom-transcriber/internal/transcription"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Whisper struct {
		Model    string `yaml:"model"`
		Language string `yaml:"language"`
	} `yaml:"whisper"`

	Diarization struct {
		URL            string `yaml:"url"`
		NumSpeakers    int    `yaml:"num_speakers"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"diarization"`

	Pipeline struct {
		MaxConcurrent int `yaml:"max_concurrent"`
	} `yaml:"pipeline"`

	Storage struct {
		TempDir  string `yaml:"temp_dir"`
		Database string `yaml:"database"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`
}

func main() {
	_ = godotenv.Load() // loads .env when present

	log := logger.New()

	config, err := loadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := cleanup.EnsureTempDirExists(config.Storage.TempDir); err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}

	log.Info("Initializing components...")

	// Whisper transcriber. A failed load is captured, not fatal: the server
	// still answers requests with an explicit model-unavailable error.
	var transcriber pipeline.Transcriber
	if wt, err := transcription.NewWhisperTranscriber(
		config.Whisper.Model,
		config.Whisper.Language,
		config.Storage.TempDir,
		log,
	); err != nil {
		log.Errorf("Whisper model not available: %v", err)
	} else {
		transcriber = wt
	}

	// Diarization sidecar client. HUGGING_FACE_TOKEN is forwarded as-is for
	// the sidecar's gated pyannote model.
	var diarizer pipeline.Diarizer
	if config.Diarization.URL == "" {
		log.Error("Diarization sidecar URL not configured")
	} else {
		diarizer = diarization.NewClient(
			config.Diarization.URL,
			os.Getenv("HUGGING_FACE_TOKEN"),
			time.Duration(config.Diarization.TimeoutSeconds)*time.Second,
		)
		log.WithField("url", config.Diarization.URL).Info("Diarization sidecar configured")
	}

	// Job history database
	db, err := storage.NewHistoryDB(config.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	processor := pipeline.NewProcessor(
		diarizer,
		transcriber,
		db,
		config.Pipeline.MaxConcurrent,
		config.Storage.TempDir,
		log,
	)

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		config.Storage.TempDir,
		time.Duration(config.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(config.Cleanup.MaxAgeHours)*time.Hour,
		log,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: config.Limits.MaxFileSizeMB * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	processHandler := handlers.NewProcessHandler(
		processor,
		config.Storage.TempDir,
		config.Diarization.NumSpeakers,
		config.Limits.MaxFileSizeMB,
		log,
	)

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Post("/process_audio", processHandler.Handle)

	// Job history (operational metadata only)
	app.Get("/history", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 50)
		records, err := db.ListJobs(limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(records)
	})

	app.Get("/history/:id", func(c *fiber.Ctx) error {
		rec, err := db.GetJob(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found"})
		}
		return c.JSON(rec)
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	log.WithField("addr", addr).Info("Server starting")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig loads configuration from YAML file
func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
