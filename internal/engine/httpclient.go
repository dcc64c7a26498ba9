package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fetchq/fetchq/internal/logger"
	"github.com/fetchq/fetchq/internal/task"
)

// Error codes the engine reports in command envelopes.
const (
	codeNotFound       = "not_found"
	codeInvalidRequest = "invalid_request"
)

// HTTPClient talks to an engine daemon over JSON HTTP: one POST per
// command and an NDJSON stream for events.
type HTTPClient struct {
	baseURL     string
	httpClient  *http.Client
	eventBuffer int
}

// NewHTTPClient creates a client for the engine at baseURL. eventBuffer
// bounds the event channel; a slow consumer stalls the stream reader
// rather than growing memory.
func NewHTTPClient(baseURL string, eventBuffer int) *HTTPClient {
	if eventBuffer <= 0 {
		eventBuffer = 256
	}

	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		eventBuffer: eventBuffer,
	}
}

type envelope struct {
	OK    bool            `json:"ok"`
	Error *commandError   `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type commandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// call performs one command round trip. Transport failures map to
// ErrUnavailable; engine-reported failures map onto the error taxonomy.
func (c *HTTPClient) call(ctx context.Context, method string, params, out any) error {
	body := []byte("{}")

	if params != nil {
		var err error

		body, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode %s params: %w", method, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s: bad response: %v", ErrUnavailable, method, err)
	}

	if !env.OK {
		if env.Error == nil {
			return fmt.Errorf("engine rejected %s", method)
		}

		switch env.Error.Code {
		case codeNotFound:
			return fmt.Errorf("%w: %s", ErrTaskNotFound, env.Error.Message)
		case codeInvalidRequest:
			return fmt.Errorf("%w: %s", task.ErrInvalidRequest, env.Error.Message)
		default:
			return fmt.Errorf("engine rejected %s: %s", method, env.Error.Message)
		}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", method, err)
		}
	}

	return nil
}

type idParam struct {
	ID uuid.UUID `json:"id"`
}

type idResult struct {
	ID uuid.UUID `json:"id"`
}

type countResult struct {
	Count int `json:"count"`
}

func (c *HTTPClient) Add(ctx context.Context, req task.Request) (uuid.UUID, error) {
	var res idResult
	if err := c.call(ctx, "add", req, &res); err != nil {
		return uuid.Nil, err
	}

	return res.ID, nil
}

func (c *HTTPClient) Pause(ctx context.Context, id uuid.UUID) error {
	return c.call(ctx, "pause", idParam{ID: id}, nil)
}

func (c *HTTPClient) Resume(ctx context.Context, id uuid.UUID) error {
	return c.call(ctx, "resume", idParam{ID: id}, nil)
}

func (c *HTTPClient) Cancel(ctx context.Context, id uuid.UUID) error {
	return c.call(ctx, "cancel", idParam{ID: id}, nil)
}

func (c *HTTPClient) Remove(ctx context.Context, id uuid.UUID) error {
	return c.call(ctx, "remove", idParam{ID: id}, nil)
}

func (c *HTTPClient) Retry(ctx context.Context, id uuid.UUID) error {
	return c.call(ctx, "retry", idParam{ID: id}, nil)
}

func (c *HTTPClient) PauseAll(ctx context.Context) (int, error) {
	var res countResult
	if err := c.call(ctx, "pauseAll", nil, &res); err != nil {
		return 0, err
	}

	return res.Count, nil
}

func (c *HTTPClient) ResumeAll(ctx context.Context) (int, error) {
	var res countResult
	if err := c.call(ctx, "resumeAll", nil, &res); err != nil {
		return 0, err
	}

	return res.Count, nil
}

func (c *HTTPClient) CancelAll(ctx context.Context) (int, error) {
	var res countResult
	if err := c.call(ctx, "cancelAll", nil, &res); err != nil {
		return 0, err
	}

	return res.Count, nil
}

func (c *HTTPClient) ClearFinished(ctx context.Context) (int, error) {
	var res countResult
	if err := c.call(ctx, "clearFinished", nil, &res); err != nil {
		return 0, err
	}

	return res.Count, nil
}

func (c *HTTPClient) RetryFailed(ctx context.Context) (int, error) {
	var res countResult
	if err := c.call(ctx, "retryFailed", nil, &res); err != nil {
		return 0, err
	}

	return res.Count, nil
}

func (c *HTTPClient) SetPriority(ctx context.Context, id uuid.UUID, priority int) error {
	params := struct {
		ID       uuid.UUID `json:"id"`
		Priority int       `json:"priority"`
	}{ID: id, Priority: priority}

	return c.call(ctx, "setPriority", params, nil)
}

func (c *HTTPClient) SetSpeedLimit(ctx context.Context, bytesPerSec int64) error {
	params := struct {
		BytesPerSec int64 `json:"bytesPerSec"`
	}{BytesPerSec: bytesPerSec}

	return c.call(ctx, "setSpeedLimit", params, nil)
}

func (c *HTTPClient) SetMaxConcurrent(ctx context.Context, n int) error {
	params := struct {
		MaxConcurrent int `json:"maxConcurrent"`
	}{MaxConcurrent: n}

	return c.call(ctx, "setMaxConcurrent", params, nil)
}

func (c *HTTPClient) SpeedLimit(ctx context.Context) (int64, error) {
	var res struct {
		BytesPerSec int64 `json:"bytesPerSec"`
	}
	if err := c.call(ctx, "getSpeedLimit", nil, &res); err != nil {
		return 0, err
	}

	return res.BytesPerSec, nil
}

func (c *HTTPClient) MaxConcurrent(ctx context.Context) (int, error) {
	var res struct {
		MaxConcurrent int `json:"maxConcurrent"`
	}
	if err := c.call(ctx, "getMaxConcurrent", nil, &res); err != nil {
		return 0, err
	}

	return res.MaxConcurrent, nil
}

func (c *HTTPClient) VerifyFile(ctx context.Context, path, checksum string) (bool, error) {
	params := struct {
		Path     string `json:"path"`
		Checksum string `json:"checksum"`
	}{Path: path, Checksum: checksum}

	var res struct {
		Valid bool `json:"valid"`
	}
	if err := c.call(ctx, "verifyFile", params, &res); err != nil {
		return false, err
	}

	return res.Valid, nil
}

func (c *HTTPClient) CalculateChecksum(ctx context.Context, path string) (string, error) {
	params := struct {
		Path string `json:"path"`
	}{Path: path}

	var res struct {
		Checksum string `json:"checksum"`
	}
	if err := c.call(ctx, "calculateChecksum", params, &res); err != nil {
		return "", err
	}

	return res.Checksum, nil
}

func (c *HTTPClient) ListTasks(ctx context.Context) ([]task.Task, error) {
	var res struct {
		Tasks []task.Task `json:"tasks"`
	}
	if err := c.call(ctx, "listTasks", nil, &res); err != nil {
		return nil, err
	}

	return res.Tasks, nil
}

func (c *HTTPClient) Stats(ctx context.Context) (task.QueueStats, error) {
	var res task.QueueStats
	if err := c.call(ctx, "getStats", nil, &res); err != nil {
		return task.QueueStats{}, err
	}

	return res, nil
}

// wireEvent is the NDJSON shape of one engine event.
type wireEvent struct {
	Kind            string           `json:"kind"`
	TaskID          uuid.UUID        `json:"taskId,omitempty"`
	DownloadedBytes int64            `json:"downloadedBytes,omitempty"`
	TotalBytes      int64            `json:"totalBytes,omitempty"`
	SpeedBPS        int64            `json:"speedBytesPerSec,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	Stats           *task.QueueStats `json:"stats,omitempty"`
}

// decode maps a wire event onto the sealed union. Unknown kinds return
// nil and are dropped by the pump.
func (w *wireEvent) decode() Event {
	switch w.Kind {
	case "added":
		return Added{}
	case "started":
		return Started{TaskID: w.TaskID}
	case "progress":
		return Progress{
			TaskID:          w.TaskID,
			DownloadedBytes: w.DownloadedBytes,
			TotalBytes:      w.TotalBytes,
			SpeedBPS:        w.SpeedBPS,
		}
	case "completed":
		return Completed{TaskID: w.TaskID}
	case "failed":
		return Failed{TaskID: w.TaskID, Reason: w.Reason}
	case "paused":
		return Paused{TaskID: w.TaskID}
	case "resumed":
		return Resumed{TaskID: w.TaskID}
	case "cancelled":
		return Cancelled{TaskID: w.TaskID}
	case "extracting":
		return Extracting{TaskID: w.TaskID}
	case "extracted":
		return Extracted{TaskID: w.TaskID}
	case "queueSnapshot":
		if w.Stats == nil {
			return nil
		}
		return QueueSnapshot{Stats: *w.Stats}
	default:
		return nil
	}
}

// Events opens the engine's NDJSON stream and pumps decoded events into a
// bounded channel. The channel closes when the stream or ctx ends.
func (c *HTTPClient) Events(ctx context.Context) (<-chan Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build events request: %w", err)
	}

	// The stream is long-lived; the command timeout must not apply.
	streamClient := &http.Client{}

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: events: %v", ErrUnavailable, err)
	}

	ch := make(chan Event, c.eventBuffer)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			var w wireEvent
			if err := json.Unmarshal(line, &w); err != nil {
				logger.Warnf("Dropping undecodable engine event: %v", err)
				continue
			}

			ev := w.decode()
			if ev == nil {
				logger.Warnf("Dropping engine event of unknown kind %q", w.Kind)
				continue
			}

			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logger.Errorf("Engine event stream ended: %v", err)
		}
	}()

	return ch, nil
}
