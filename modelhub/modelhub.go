// Package modelhub resolves a "hf://owner/repo" model reference into a
// local directory containing the files a letsearch-compatible model
// variant needs, downloading from the Hugging Face Hub on first use and
// reusing the local cache afterward.
package modelhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/time/rate"
)

const (
	hfPrefix      = "hf://"
	apiBase       = "https://huggingface.co"
	metadataFile  = "metadata.json"
	supportedVers = 1
)

var (
	// ErrInvalidRef is returned when a ref isn't a "hf://owner/repo" path.
	ErrInvalidRef = errors.New("modelhub: ref must be of the form hf://owner/repo")
	// ErrIncompatibleModel is returned when metadata.json is missing the
	// letsearch_version field or carries an unsupported version.
	ErrIncompatibleModel = errors.New("modelhub: not a letsearch-compatible model")
	// ErrVariantNotFound is returned when the requested variant isn't
	// listed in metadata.json.
	ErrVariantNotFound = errors.New("modelhub: variant not found")
)

// Metadata mirrors a model repo's metadata.json.
type Metadata struct {
	LetsearchVersion int       `json:"letsearch_version"`
	Variants         []Variant `json:"variants"`
	RequiredFiles    []string  `json:"required_files"`
}

// Variant is one entry in metadata.json's variants array.
type Variant struct {
	Variant string `json:"variant"`
	Path    string `json:"path"`
	Dim     int    `json:"dim"`
	Dtype   string `json:"dtype"`
}

// ModelInfo is one entry returned by List, mirroring the Hub's
// /api/models response.
type ModelInfo struct {
	ID        string   `json:"_id"`
	ModelID   string   `json:"modelId"`
	Downloads int64    `json:"downloads"`
	Likes     int64    `json:"likes"`
	Private   bool     `json:"private"`
	Tags      []string `json:"tags"`
}

// Hub resolves and downloads letsearch-compatible models from the
// Hugging Face Hub. Construct one with NewHub, which lets callers override
// the cache directory, HTTP client, or rate limiter; the zero value has no
// HTTP client, limiter or base URL and is not usable.
type Hub struct {
	cacheDir string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
}

// Option configures a Hub.
type Option func(*Hub)

// WithCacheDir overrides the local model cache directory (default:
// os.UserCacheDir()/letsearch/models, falling back to the system temp
// directory).
func WithCacheDir(dir string) Option {
	return func(h *Hub) { h.cacheDir = dir }
}

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Hub) { h.client = c }
}

// WithRateLimiter overrides the token-bucket limiter that every Hub request
// (file downloads and List) waits on (default: 4 requests/second, burst 4).
func WithRateLimiter(l *rate.Limiter) Option {
	return func(h *Hub) { h.limiter = l }
}

// WithBaseURL overrides the Hub API base (default: https://huggingface.co).
// Used by tests to point at a local httptest server.
func WithBaseURL(url string) Option {
	return func(h *Hub) { h.baseURL = url }
}

// NewHub constructs a Hub with sane defaults, applying any opts.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		client:  http.DefaultClient,
		limiter: rate.NewLimiter(rate.Limit(4), 4),
		baseURL: apiBase,
	}
	if dir, err := os.UserCacheDir(); err == nil {
		h.cacheDir = filepath.Join(dir, "letsearch", "models")
	} else {
		h.cacheDir = filepath.Join(os.TempDir(), "letsearch", "models")
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Resolve downloads (or reuses a cached copy of) the given variant of a
// "hf://owner/repo" model and returns the local directory and the primary
// model file's name within it.
func (h *Hub) Resolve(ctx context.Context, ref, variant, token string) (dir, file string, err error) {
	repoID, err := parseRef(ref)
	if err != nil {
		return "", "", err
	}
	owner, repo, _ := strings.Cut(repoID, "/")
	destDir := filepath.Join(h.cacheDir, owner, repo)

	metaPath, err := h.downloadFile(ctx, repoID, metadataFile, destDir, token)
	if err != nil {
		return "", "", fmt.Errorf("modelhub: resolve %s: %w", ref, err)
	}

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return "", "", fmt.Errorf("modelhub: resolve %s: %w", ref, err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrIncompatibleModel, err)
	}
	if meta.LetsearchVersion != supportedVers {
		return "", "", fmt.Errorf("%w: letsearch_version=%d", ErrIncompatibleModel, meta.LetsearchVersion)
	}

	var picked *Variant
	for i := range meta.Variants {
		if meta.Variants[i].Variant == variant {
			picked = &meta.Variants[i]
			break
		}
	}
	if picked == nil {
		return "", "", fmt.Errorf("%w: %s", ErrVariantNotFound, variant)
	}

	modelPath, err := h.downloadFile(ctx, repoID, picked.Path, destDir, token)
	if err != nil {
		return "", "", fmt.Errorf("modelhub: resolve %s: %w", ref, err)
	}

	for _, required := range meta.RequiredFiles {
		if _, err := h.downloadFile(ctx, repoID, required, destDir, token); err != nil {
			return "", "", fmt.Errorf("modelhub: resolve %s: required file %s: %w", ref, required, err)
		}
	}

	return filepath.Dir(modelPath), filepath.Base(modelPath), nil
}

// List queries the Hub for letsearch-compatible models, sorted by
// descending download count.
func (h *Hub) List(ctx context.Context, token string) ([]ModelInfo, error) {
	url := h.baseURL + "/api/models?filter=letsearch"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("modelhub: list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("modelhub: list: unexpected status %s", resp.Status)
	}

	var models []ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("modelhub: list: %w", err)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Downloads > models[j].Downloads })
	return models, nil
}

// downloadFile fetches repoID/fileName into destDir, reusing an existing
// local copy if present.
func (h *Hub) downloadFile(ctx context.Context, repoID, fileName, destDir, token string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	destPath := filepath.Join(destDir, fileName)
	if _, err := os.Stat(destPath); err == nil {
		return destPath, nil
	}

	url := fmt.Sprintf("%s/%s/resolve/main/%s", h.baseURL, repoID, fileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if err := h.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %s", fileName, resp.Status)
	}

	tmp, err := os.CreateTemp(destDir, fileName+".tmp-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return destPath, nil
}

func parseRef(ref string) (string, error) {
	if !strings.HasPrefix(ref, hfPrefix) {
		return "", ErrInvalidRef
	}
	repoID := strings.TrimPrefix(ref, hfPrefix)
	owner, repo, ok := strings.Cut(repoID, "/")
	if !ok || owner == "" || repo == "" {
		return "", ErrInvalidRef
	}
	return repoID, nil
}
