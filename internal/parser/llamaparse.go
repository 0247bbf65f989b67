package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/dgallion1/deckgest/internal/retry"
)

// LlamaParseConfig configures the LlamaCloud parsing client.
type LlamaParseConfig struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	Timeout      time.Duration
	Retry        retry.Policy
}

// LlamaParse uploads a PDF to LlamaCloud, polls the parsing job and
// fetches its markdown result.
type LlamaParse struct {
	cfg        LlamaParseConfig
	httpClient *http.Client
	log        *slog.Logger
}

func NewLlamaParse(cfg LlamaParseConfig, log *slog.Logger) *LlamaParse {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &LlamaParse{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}
}

type llamaJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error_message,omitempty"`
}

type llamaMarkdown struct {
	Markdown string `json:"markdown"`
}

// Job states reported by LlamaCloud.
const (
	jobPending        = "PENDING"
	jobSuccess        = "SUCCESS"
	jobPartialSuccess = "PARTIAL_SUCCESS"
	jobError          = "ERROR"
	jobCanceled       = "CANCELED"
	jobCancelled      = "CANCELLED"
)

// ExtractText parses data as markdown. The whole job, including polling,
// is bounded by the configured timeout.
func (c *LlamaParse) ExtractText(ctx context.Context, data []byte, fileName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	log := c.log.With("file_name", fileName)
	log.Info("llamaparse.upload.start", "bytes", len(data))

	job, err := c.upload(ctx, data, fileName)
	if err != nil {
		return "", err
	}
	log = log.With("job_id", job.ID)

	if err := c.waitForJob(ctx, job.ID, log); err != nil {
		return "", err
	}

	var res llamaMarkdown
	if err := c.getJSON(ctx, "/api/parsing/job/"+job.ID+"/result/markdown", &res); err != nil {
		return "", fmt.Errorf("fetch result: %w", err)
	}

	text := strings.TrimSpace(res.Markdown)
	if text == "" {
		return "", ErrEmptyText
	}
	log.Info("llamaparse.ok", "chars", len(text), "duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

func (c *LlamaParse) upload(ctx context.Context, data []byte, fileName string) (llamaJob, error) {
	var job llamaJob
	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
		h.Set("Content-Type", PDFContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return fmt.Errorf("write form file: %w", err)
		}
		if err := mw.WriteField("result_type", "markdown"); err != nil {
			return fmt.Errorf("write result type: %w", err)
		}
		if err := mw.Close(); err != nil {
			return fmt.Errorf("close multipart: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/parsing/upload", &body)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return c.do(req, &job)
	}, c.onRetry("upload"))
	if err != nil {
		return llamaJob{}, fmt.Errorf("llamaparse upload: %w", err)
	}
	if job.ID == "" {
		return llamaJob{}, errors.New("llamaparse upload: response has no job id")
	}
	return job, nil
}

// waitForJob polls until the job leaves PENDING. Partial success still
// has a usable result; any status it does not know ends the wait.
func (c *LlamaParse) waitForJob(ctx context.Context, id string, log *slog.Logger) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var job llamaJob
		if err := c.getJSON(ctx, "/api/parsing/job/"+id, &job); err != nil {
			return fmt.Errorf("poll job: %w", err)
		}
		switch strings.ToUpper(job.Status) {
		case jobPending:
		case jobSuccess:
			return nil
		case jobPartialSuccess:
			log.Warn("llamaparse.partial_success")
			return nil
		case jobError, jobCanceled, jobCancelled:
			return fmt.Errorf("llamaparse job %s ended with status %s: %s", id, job.Status, job.Error)
		default:
			log.Warn("llamaparse.unknown_status", "status", job.Status)
			return fmt.Errorf("llamaparse job %s: unexpected status %q", id, job.Status)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("llamaparse job %s: %w", id, ctx.Err())
		}
	}
}

func (c *LlamaParse) getJSON(ctx context.Context, path string, out any) error {
	return c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		return c.do(req, out)
	}, c.onRetry(path))
}

func (c *LlamaParse) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llamaparse api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &retry.RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llamaparse api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *LlamaParse) onRetry(op string) func(int, error) {
	return func(attempt int, err error) {
		c.log.Warn("llamaparse.retry", "op", op, "attempt", attempt, "error", err)
	}
}

// Close releases resources.
func (c *LlamaParse) Close() {
	c.httpClient.CloseIdleConnections()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
