package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-trainer/internal/cache"
)

// HTTPSource loads experiment runs from a mirador-core style JSON API.
// Run payloads are immutable once recorded and are cached by run id.
type HTTPSource struct {
	baseURL    string
	runsPath   string
	runPath    string
	httpClient *http.Client
	cache      cache.Provider
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewHTTPSource constructs a source targeting baseURL. provider may be nil.
func NewHTTPSource(baseURL, runsPath, runPath string, timeout time.Duration, provider cache.Provider, cacheTTL time.Duration, logger *slog.Logger) *HTTPSource {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		runsPath: runsPath,
		runPath:  runPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:    provider,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// ListRuns queries the run index.
func (c *HTTPSource) ListRuns(ctx context.Context) ([]RunSummary, error) {
	if c == nil {
		return nil, fmt.Errorf("http source not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("http source base URL not configured")
	}

	var response struct {
		Runs []RunSummary `json:"runs"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.runsPath), map[string]any{}, &response); err != nil {
		return nil, fmt.Errorf("list runs request failed: %w", err)
	}
	return response.Runs, nil
}

// LoadRun fetches all records of one run, consulting the cache first.
func (c *HTTPSource) LoadRun(ctx context.Context, id string) (RunRecord, error) {
	if c == nil {
		return RunRecord{}, fmt.Errorf("http source not initialised")
	}
	if c.baseURL == "" {
		return RunRecord{}, fmt.Errorf("http source base URL not configured")
	}

	key := runCacheKey(id)
	if payload, err := c.cache.Get(ctx, key); err == nil {
		var rec RunRecord
		if err := json.Unmarshal(payload, &rec); err == nil {
			return rec, nil
		}
		c.logger.Warn("discarding corrupt cached run", slog.String("run", id))
		_ = c.cache.Del(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("run cache lookup failed", slog.String("run", id), slog.Any("error", err))
	}

	var rec RunRecord
	if err := c.postJSON(ctx, c.resolvePath(c.runPath), map[string]any{"run_id": id}, &rec); err != nil {
		return RunRecord{}, fmt.Errorf("load run %s request failed: %w", id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.ID != id {
		return RunRecord{}, fmt.Errorf("load run %s: response carries run %s", id, rec.ID)
	}

	if payload, err := json.Marshal(rec); err == nil {
		if err := c.cache.Set(ctx, key, payload, c.cacheTTL); err != nil {
			c.logger.Warn("run cache store failed", slog.String("run", id), slog.Any("error", err))
		}
	}
	return rec, nil
}

func runCacheKey(id string) string {
	return "mirador-trainer:run:" + id
}

func (c *HTTPSource) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *HTTPSource) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrRunNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("experiment source returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
