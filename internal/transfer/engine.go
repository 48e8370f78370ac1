package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/abshelf/abs-offline/internal/logutils"
)

const partSuffix = ".part"

// StatusError reports a non-2xx response for a transfer request.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transfer failed with status %d from %s", e.Code, e.URL)
}

// Engine performs single-attempt network-to-disk transfers. It has no notion
// of items or retries; callers own both.
type Engine struct {
	client *http.Client
}

func NewEngine() *Engine {
	// Timeouts are enforced per call via context so one engine can serve
	// both short metadata transfers and long track transfers.
	return &Engine{client: &http.Client{}}
}

// Transfer streams the resource at url into dest. The body is written to
// dest+".part" and renamed into place only after a complete copy, so a file
// at dest always holds a fully transferred payload. On failure the partial
// file is removed best-effort and dest is left untouched.
func (e *Engine) Transfer(ctx context.Context, url string, header http.Header, dest string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, URL: url}
	}

	partPath := dest + partSuffix
	outFile, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	written, err := io.Copy(outFile, resp.Body)
	if err != nil {
		outFile.Close()
		removePartial(partPath)
		return fmt.Errorf("failed to write response body: %w", err)
	}
	if err := outFile.Close(); err != nil {
		removePartial(partPath)
		return fmt.Errorf("failed to close output file: %w", err)
	}

	if err := os.Rename(partPath, dest); err != nil {
		removePartial(partPath)
		return fmt.Errorf("failed to finalize output file: %w", err)
	}

	logutils.Log.WithFields(map[string]any{
		"url":   url,
		"dest":  dest,
		"bytes": written,
	}).Debug("Transfer completed")

	return nil
}

func removePartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logutils.Log.WithError(err).WithField("path", path).Warn("Failed to remove partial file")
	}
}
