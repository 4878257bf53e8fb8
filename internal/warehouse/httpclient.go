package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ClientConfig configures the REST warehouse client.
type ClientConfig struct {
	BaseURL string
	Token   string

	PollInterval      time.Duration
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration

	HTTPClient *http.Client
}

// Client talks to a warehouse that exposes the async SQL job API: submit a
// statement, poll the job until it settles, then page through results.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient}
}

type submitResponse struct {
	ID string `json:"id"`
}

type jobStatus struct {
	JobState     string `json:"jobState"`
	ErrorMessage string `json:"errorMessage"`
	RowCount     int64  `json:"rowCount"`
}

type jobResults struct {
	RowCount int64 `json:"rowCount"`
	Schema   []struct {
		Name string `json:"name"`
	} `json:"schema"`
	Rows []map[string]any `json:"rows"`
}

const resultsPageSize = 500

// Execute submits the SQL as a job and blocks until it settles, returning
// the full result set.
func (c *Client) Execute(ctx context.Context, sql string) (*QueryResult, error) {
	start := time.Now()

	var submitted submitResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/sql", map[string]string{"sql": sql}, &submitted); err != nil {
		return nil, fmt.Errorf("submit query: %w", err)
	}
	log.Debug().Str("job_id", submitted.ID).Msg("query submitted")

	status, err := c.waitForJob(ctx, submitted.ID)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{JobID: submitted.ID}
	for offset := int64(0); ; offset += resultsPageSize {
		var page jobResults
		path := fmt.Sprintf("/api/v3/job/%s/results?offset=%d&limit=%d", submitted.ID, offset, resultsPageSize)
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, fmt.Errorf("fetch results for job %s: %w", submitted.ID, err)
		}
		if result.Columns == nil {
			for _, col := range page.Schema {
				result.Columns = append(result.Columns, col.Name)
			}
		}
		for _, row := range page.Rows {
			result.Rows = append(result.Rows, Row(row))
		}
		if offset+int64(len(page.Rows)) >= page.RowCount || len(page.Rows) == 0 {
			break
		}
	}

	result.RuntimeMs = time.Since(start).Milliseconds()
	log.Info().Str("job_id", submitted.ID).Int("rows", len(result.Rows)).
		Int64("runtime_ms", result.RuntimeMs).Str("state", status.JobState).Msg("query completed")
	return result, nil
}

// ExplainPlan wraps the SQL in EXPLAIN PLAN FOR and parses the plan text
// the warehouse returns.
func (c *Client) ExplainPlan(ctx context.Context, sql string) (*PlanEstimate, error) {
	result, err := c.Execute(ctx, "EXPLAIN PLAN FOR "+sql)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, row := range result.Rows {
		if text, ok := row["text"].(string); ok {
			lines = append(lines, text)
			continue
		}
		// Some backends name the plan column differently; take any string.
		for _, v := range row {
			if s, ok := v.(string); ok {
				lines = append(lines, s)
				break
			}
		}
	}
	return ParsePlanText(lines), nil
}

func (c *Client) waitForJob(ctx context.Context, jobID string) (*jobStatus, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var status jobStatus
		if err := c.do(ctx, http.MethodGet, "/api/v3/job/"+jobID, nil, &status); err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}

		switch status.JobState {
		case "COMPLETED":
			return &status, nil
		case "FAILED":
			return nil, fmt.Errorf("job %s: %s: %w", jobID, status.ErrorMessage, ErrJobFailed)
		case "CANCELED", "CANCELLED":
			return nil, fmt.Errorf("job %s canceled: %w", jobID, ErrJobFailed)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// do issues one request with automatic retry on 429. The retry delay is
// exponential, bounded by the server's Retry-After header when present and
// by the configured maximum.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.cfg.MaxRetries {
			delay := c.retryDelay(resp.Header.Get("Retry-After"), attempt)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			log.Warn().Str("path", path).Int("attempt", attempt+1).
				Dur("delay", delay).Msg("rate limited, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %s %s returned %d", ErrUnavailable, method, path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode response from %s: %w", path, err)
			}
		}
		return nil
	}
}

func (c *Client) retryDelay(retryAfter string, attempt int) time.Duration {
	delay := time.Duration(float64(c.cfg.InitialDelay) * pow(c.cfg.BackoffMultiplier, attempt))
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			if server := time.Duration(secs) * time.Second; server < delay {
				delay = server
			}
		}
	}
	if delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	return delay
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}
