// Package checksum verifies a downloaded file against the hash declared in
// a remote pointer descriptor.
package checksum

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"zipfetch/internal/domain"
	"zipfetch/internal/infra/logger"
)

// Verifier computes SHA-256 digests and compares them against pointer
// descriptors. It performs no retries: a transient pointer fetch failure
// propagates to the caller, which owns the retry policy.
type Verifier struct {
	client *http.Client
	log    logger.Log
}

func NewVerifier(pointerTimeout time.Duration, log logger.Log) *Verifier {
	if pointerTimeout <= 0 {
		pointerTimeout = 10 * time.Second
	}
	return &Verifier{
		client: &http.Client{Timeout: pointerTimeout},
		log:    logger.OrNop(log),
	}
}

// HashFile computes the SHA-256 digest of the file, streaming it once in
// full regardless of size. The digest is returned as lowercase hex.
func (v *Verifier) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FetchPointer retrieves the pointer descriptor and extracts the expected
// hash. Any transport failure or non-2xx status wraps domain.ErrPointerFetch.
func (v *Verifier) FetchPointer(ctx context.Context, pointerURL string) (PointerHash, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pointerURL, nil)
	if err != nil {
		return PointerHash{}, fmt.Errorf("%w: %v", domain.ErrPointerFetch, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return PointerHash{}, fmt.Errorf("%w: %v", domain.ErrPointerFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PointerHash{}, fmt.Errorf("%w: %s returned %s", domain.ErrPointerFetch, pointerURL, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PointerHash{}, fmt.Errorf("%w: read body: %v", domain.ErrPointerFetch, err)
	}

	return ParsePointer(body), nil
}

// Verify reports whether the file's digest matches the hash declared by the
// pointer descriptor at pointerURL. A descriptor with no hash line yields
// matches=false, never an accidental match.
func (v *Verifier) Verify(ctx context.Context, filePath, pointerURL string) (bool, error) {
	v.log.Info("Calculating file hash for: %s", filePath)
	fileHash, err := v.HashFile(filePath)
	if err != nil {
		return false, err
	}
	v.log.Info("File hash: %s", fileHash)

	v.log.Info("Requesting pointer file from: %s", pointerURL)
	expected, err := v.FetchPointer(ctx, pointerURL)
	if err != nil {
		return false, err
	}

	if !expected.Present {
		v.log.Warn("Pointer file at %s declares no sha256 hash", pointerURL)
		return false, nil
	}

	v.log.Info("Expected hash: %s", expected.Hex)

	return fileHash == expected.Hex, nil
}
