package ota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"device-agent/models"
	"device-agent/utils"
)

// ErrNoUpdate reports that the update server holds no newer image for
// this device.
var ErrNoUpdate = errors.New("no update available")

// IsNoUpdate reports whether err is the no-update outcome.
func IsNoUpdate(err error) bool {
	return errors.Is(err, ErrNoUpdate)
}

// Fetcher is the blocking fetch-and-flash primitive. It has exactly
// three outcomes: nil (image staged, device should reboot into it),
// ErrNoUpdate, or a transfer/verification failure.
type Fetcher interface {
	FetchAndFlash(ctx context.Context, req *models.UpdateRequest) error
}

// HTTPFetcher downloads a firmware image over HTTP(S), verifies its
// SHA-256 digest against the request checksum, and only then writes it
// to the staging slot the bootloader flashes from.
type HTTPFetcher struct {
	stagingFile string
	client      *http.Client
	logger      *utils.Logger
}

func NewHTTPFetcher(stagingFile string, timeout time.Duration, logger *utils.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		stagingFile: stagingFile,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

func (f *HTTPFetcher) FetchAndFlash(ctx context.Context, req *models.UpdateRequest) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fmt.Errorf("invalid image URL: %w", err)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified, resp.StatusCode == http.StatusNotFound:
		return ErrNoUpdate
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("update server returned %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(f.stagingFile), 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.stagingFile), ".firmware-*")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	defer os.Remove(tmp.Name())

	// Hash while streaming so the image is verified before it ever
	// reaches the staging slot.
	hash := sha256.New()
	size, err := io.Copy(tmp, io.TeeReader(resp.Body, hash))
	if err != nil {
		tmp.Close()
		return fmt.Errorf("image download interrupted: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to finish staging file: %w", err)
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	if !strings.EqualFold(digest, req.Checksum) {
		return fmt.Errorf("checksum mismatch: image is %s, request says %s", digest, req.Checksum)
	}

	if err := os.Rename(tmp.Name(), f.stagingFile); err != nil {
		return fmt.Errorf("failed to stage verified image: %w", err)
	}

	f.logger.Infof("Staged firmware image %s (%d bytes, sha256 verified)", req.Version, size)
	return nil
}
