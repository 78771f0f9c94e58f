// Package cleanup sweeps the staging directory for leftover files. Every
// request removes its own temp files, so anything old enough to be swept
// was orphaned by a crash or kill mid-request.
package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"github.com/classlens/classroom-transcriber/internal/logger"
)

// Scheduler periodically deletes orphaned staging files.
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	stopChan chan struct{}
	log      *logger.Logger
}

// NewScheduler creates a sweep scheduler over tempDir.
func NewScheduler(tempDir string, interval, maxAge time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		stopChan: make(chan struct{}),
		log:      log,
	}
}

// Start runs one sweep immediately, then sweeps on the configured interval
// until Stop is called.
func (s *Scheduler) Start() {
	s.sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.log.WithField("interval", s.interval.String()).
		WithField("max_age", s.maxAge.String()).
		Info("cleanup scheduler started")
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// sweep removes staging files older than maxAge.
func (s *Scheduler) sweep() {
	now := time.Now()
	var deleted int

	err := filepath.Walk(s.tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if now.Sub(info.ModTime()) > s.maxAge {
			if err := os.Remove(path); err != nil {
				s.log.Warnf("failed to delete orphaned file %s: %v", path, err)
			} else {
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warnf("staging sweep error: %v", err)
	}

	if deleted > 0 {
		s.log.WithField("deleted", deleted).Info("removed orphaned staging files")
	}
}

// EnsureTempDirExists creates the staging directory if it doesn't exist.
func EnsureTempDirExists(tempDir string) error {
	return os.MkdirAll(tempDir, 0755)
}
