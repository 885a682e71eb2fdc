package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultBaseURL   = "https://api.capsolver.com"
	pollInterval     = 3 * time.Second
	solveTimeout     = 120 * time.Second
	balanceWarnLevel = 5.0 // USD
)

// Capsolver implements Solver using the Capsolver task API.
type Capsolver struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	solveTimeout time.Duration
}

// Option configures a Capsolver.
type Option func(*Capsolver)

// WithBaseURL points the client at another API host.
func WithBaseURL(u string) Option {
	return func(c *Capsolver) { c.baseURL = u }
}

// WithHTTPClient replaces the default 10s-timeout HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Capsolver) { c.client = hc }
}

// WithPollInterval sets how often task results are polled.
func WithPollInterval(d time.Duration) Option {
	return func(c *Capsolver) { c.pollInterval = d }
}

// NewCapsolver creates a Capsolver client with the given API key.
func NewCapsolver(apiKey string, opts ...Option) *Capsolver {
	c := &Capsolver{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		pollInterval: pollInterval,
		solveTimeout: solveTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// taskError is the error block every Capsolver response carries.
type taskError struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
}

func (e taskError) err(call string) error {
	if e.ErrorID == 0 {
		return nil
	}
	return fmt.Errorf("capsolver %s error %s: %s", call, e.ErrorCode, e.ErrorDescription)
}

// Solve submits a proxyless FunCaptcha task and polls until it is ready.
func (c *Capsolver) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	if bal, err := c.Balance(ctx); err == nil && bal < balanceWarnLevel {
		slog.Warn("Capsolver balance low", slog.Float64("balance", bal))
	}

	taskID, err := c.createTask(ctx, siteKey, pageURL)
	if err != nil {
		return "", err
	}
	slog.Info("CAPTCHA task created", slog.String("taskId", taskID))

	ctx, cancel := context.WithTimeout(ctx, c.solveTimeout)
	defer cancel()

	for {
		token, ready, err := c.taskResult(ctx, taskID)
		if err != nil {
			return "", err
		}
		if ready {
			slog.Info("CAPTCHA solved", slog.String("taskId", taskID))
			return token, nil
		}
		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return "", fmt.Errorf("capsolver task %s: %w", taskID, ctx.Err())
		}
	}
}

func (c *Capsolver) createTask(ctx context.Context, siteKey, pageURL string) (string, error) {
	req := map[string]any{
		"clientKey": c.apiKey,
		"task": map[string]any{
			"type":             "FunCaptchaTaskProxyLess",
			"websiteURL":       pageURL,
			"websitePublicKey": siteKey,
		},
	}
	var resp struct {
		taskError
		TaskID string `json:"taskId"`
	}
	if err := c.post(ctx, "/createTask", req, &resp); err != nil {
		return "", fmt.Errorf("capsolver createTask: %w", err)
	}
	if err := resp.err("createTask"); err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("capsolver: empty taskId in response")
	}
	return resp.TaskID, nil
}

// taskResult reports the token once the task is ready.
func (c *Capsolver) taskResult(ctx context.Context, taskID string) (token string, ready bool, err error) {
	req := map[string]any{"clientKey": c.apiKey, "taskId": taskID}
	var resp struct {
		taskError
		Status   string `json:"status"`
		Solution struct {
			Token string `json:"token"`
		} `json:"solution"`
	}
	if err := c.post(ctx, "/getTaskResult", req, &resp); err != nil {
		return "", false, fmt.Errorf("capsolver getTaskResult: %w", err)
	}
	if err := resp.err("getTaskResult"); err != nil {
		return "", false, err
	}

	switch resp.Status {
	case "ready":
		if resp.Solution.Token == "" {
			return "", false, fmt.Errorf("capsolver: ready but empty token")
		}
		return resp.Solution.Token, true, nil
	case "idle", "processing":
		return "", false, nil
	default:
		return "", false, fmt.Errorf("capsolver: unexpected status %q", resp.Status)
	}
}

// Balance returns the Capsolver account balance in USD.
func (c *Capsolver) Balance(ctx context.Context) (float64, error) {
	var resp struct {
		taskError
		Balance float64 `json:"balance"`
	}
	if err := c.post(ctx, "/getBalance", map[string]any{"clientKey": c.apiKey}, &resp); err != nil {
		return 0, fmt.Errorf("capsolver getBalance: %w", err)
	}
	if err := resp.err("getBalance"); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// post sends a JSON POST to the API and decodes the response into result.
func (c *Capsolver) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, data[:min(200, len(data))])
	}
	return json.Unmarshal(data, result)
}
