// Package diarization talks to the pyannote speaker-diarization sidecar.
// The sidecar wraps pyannote.audio behind a small HTTP API and needs a
// Hugging Face token to pull its gated model; the token is passed through
// from our environment, never interpreted here.
package diarization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/classlens/classroom-transcriber/internal/types"
)

type diarizeResponse struct {
	Turns []types.SpeakerTurn `json:"turns"`
}

// Client calls the diarization sidecar over HTTP.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	maxWait   time.Duration
}

// NewClient builds a client for the sidecar at baseURL. authToken is the
// Hugging Face token forwarded as a bearer credential; it may be empty when
// the sidecar holds its own credentials.
func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		http:      &http.Client{Timeout: timeout},
		maxWait:   timeout,
	}
}

// Diarize uploads the staged audio file and returns the speaker turns for
// the expected number of speakers. Transient failures (connection errors,
// 5xx) are retried with exponential backoff; any terminal failure is
// returned as an error so the caller never mistakes it for silence.
func (c *Client) Diarize(ctx context.Context, audioPath string, numSpeakers int) ([]types.SpeakerTurn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxWait

	var turns []types.SpeakerTurn
	operation := func() error {
		result, err := c.diarizeOnce(ctx, audioPath, numSpeakers)
		if err != nil {
			return err
		}
		turns = result
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("diarization request failed: %w", err)
	}
	return turns, nil
}

func (c *Client) diarizeOnce(ctx context.Context, audioPath string, numSpeakers int) ([]types.SpeakerTurn, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	fd, err := os.Open(audioPath)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	defer fd.Close()

	if _, err = io.Copy(fw, fd); err != nil {
		return nil, err
	}
	if err = w.WriteField("num_speakers", strconv.Itoa(numSpeakers)); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diarize", &b)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("diarize %s: %s", resp.Status, string(body))
		if resp.StatusCode >= 500 {
			return nil, err // worth retrying
		}
		return nil, backoff.Permanent(err)
	}

	var out diarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("diarize decode: %w", err))
	}
	return out.Turns, nil
}
