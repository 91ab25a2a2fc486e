package ota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"device-agent/models"
	"device-agent/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T) (*HTTPFetcher, string) {
	t.Helper()
	staging := filepath.Join(t.TempDir(), "firmware.staged")
	return NewHTTPFetcher(staging, 5*time.Second, utils.NewLogger("error", "")), staging
}

func TestFetchAndFlashStagesVerifiedImage(t *testing.T) {
	image := []byte("firmware image bytes")
	digest := sha256.Sum256(image)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(image)
	}))
	defer server.Close()

	fetcher, staging := newTestFetcher(t)
	err := fetcher.FetchAndFlash(context.Background(), &models.UpdateRequest{
		URL:      server.URL,
		Version:  "1.3.0",
		Checksum: hex.EncodeToString(digest[:]),
	})
	require.NoError(t, err)

	staged, err := os.ReadFile(staging)
	require.NoError(t, err)
	assert.Equal(t, image, staged)
}

func TestFetchAndFlashRejectsChecksumMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered image"))
	}))
	defer server.Close()

	wrong := sha256.Sum256([]byte("expected image"))

	fetcher, staging := newTestFetcher(t)
	err := fetcher.FetchAndFlash(context.Background(), &models.UpdateRequest{
		URL:      server.URL,
		Version:  "1.3.0",
		Checksum: hex.EncodeToString(wrong[:]),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")

	// The unverified image must never reach the staging slot.
	_, statErr := os.Stat(staging)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchAndFlashMapsMissingImageToNoUpdate(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusNotModified} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		fetcher, _ := newTestFetcher(t)
		err := fetcher.FetchAndFlash(context.Background(), &models.UpdateRequest{
			URL:      server.URL,
			Version:  "1.3.0",
			Checksum: validChecksum,
		})
		assert.True(t, IsNoUpdate(err), "status %d must map to no-update", code)
		server.Close()
	}
}

func TestFetchAndFlashReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher, _ := newTestFetcher(t)
	err := fetcher.FetchAndFlash(context.Background(), &models.UpdateRequest{
		URL:      server.URL,
		Version:  "1.3.0",
		Checksum: validChecksum,
	})
	require.Error(t, err)
	assert.False(t, IsNoUpdate(err))
}
