package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppiankov/toolgate/internal/config"
	"github.com/ppiankov/toolgate/internal/retry"
	"github.com/ppiankov/toolgate/internal/store"
)

const deliveryTimeout = 10 * time.Second

// Result is what the caller gets back from a push. Delivery failure
// is state, not a Go error: the caller inspects and moves on.
type Result struct {
	// Delivered is true when the filtered batch reached the endpoint,
	// including the trivial case where nothing needed sending.
	Delivered bool

	// Accepted is the per-category count the endpoint acknowledged.
	Accepted map[string]int

	// Queued is true when delivery failed and the original batch was
	// durably enqueued for a later drain.
	Queued bool

	// LastError describes the final failure, if any.
	LastError string
}

type pushResponse struct {
	Accepted map[string]int `json:"accepted"`
}

// Client delivers record batches to the telemetry endpoint.
type Client struct {
	cfg    config.Config
	queue  *store.Store
	httpc  *http.Client
	policy retry.Policy
	log    *slog.Logger
	now    func() time.Time
}

// NewClient creates a telemetry client over the given config and
// durable queue.
func NewClient(cfg config.Config, queue *store.Store, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		queue:  queue,
		httpc:  &http.Client{Timeout: deliveryTimeout},
		policy: retry.Default(),
		log:    log,
		now:    time.Now,
	}
}

// Push applies category filtering and attempts delivery. Unconfigured
// installs get a silent Delivered result; transient exhaustion
// enqueues the ORIGINAL unfiltered batch so drain can re-filter under
// whatever configuration is current then. A terminal rejection is
// surfaced without enqueueing; retrying an invalid request cannot
// help.
func (c *Client) Push(ctx context.Context, batch Batch) Result {
	if !c.cfg.SyncConfigured() {
		return Result{Delivered: true, Accepted: map[string]int{}}
	}

	filtered := batch.Filter(c.cfg.SyncInclude)
	if filtered.Empty() {
		return Result{Delivered: true, Accepted: map[string]int{}}
	}

	accepted, err := c.deliver(ctx, filtered)
	if err == nil {
		return Result{Delivered: true, Accepted: accepted}
	}

	if retry.IsTerminal(err) {
		return Result{LastError: err.Error()}
	}

	raw, merr := json.Marshal(batch)
	if merr != nil {
		return Result{LastError: fmt.Sprintf("%v (marshal for queue: %v)", err, merr)}
	}
	if _, qerr := c.queue.Enqueue(ctx, raw, c.now().UTC()); qerr != nil {
		// Best effort: a dead queue must not take the caller down
		// with it. The records are lost; say so and return.
		c.log.Warn("telemetry enqueue failed, dropping batch",
			"error", qerr, "delivery_error", err)
		return Result{LastError: fmt.Sprintf("%v (enqueue failed: %v)", err, qerr)}
	}

	return Result{Queued: true, LastError: err.Error()}
}

// deliver runs the retry loop around one filtered batch.
func (c *Client) deliver(ctx context.Context, filtered Batch) (map[string]int, error) {
	var accepted map[string]int
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		a, err := c.deliverOnce(ctx, filtered)
		if err != nil {
			return err
		}
		accepted = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

func (c *Client) deliverOnce(ctx context.Context, batch Batch) (map[string]int, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("marshal batch: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SyncEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.LicenseKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telemetry push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to parse
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, retry.Terminal(fmt.Errorf("telemetry endpoint rejected batch: HTTP %d", resp.StatusCode))
	default:
		return nil, fmt.Errorf("telemetry endpoint error: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var pr pushResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		// Accepted counts are informational; a 2xx with an opaque
		// body still counts as delivered.
		return batch.Counts(), nil
	}
	if pr.Accepted == nil {
		return batch.Counts(), nil
	}
	return pr.Accepted, nil
}
