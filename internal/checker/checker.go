// Package checker executes credential health probes against upstream
// providers and records the outcome.
package checker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	gateway "github.com/keyhub-gw/keyhub/internal"
	"github.com/keyhub-gw/keyhub/internal/provider"
	"github.com/keyhub-gw/keyhub/internal/proxydial"
	"github.com/keyhub-gw/keyhub/internal/storage"
)

const (
	probeTimeout = 30 * time.Second
	batchSize    = 5
	batchDelay   = time.Second
	channelDelay = 500 * time.Millisecond
)

// Result is the outcome of a single probe. Status is always one of
// active, invalid, or quota_exceeded.
type Result struct {
	Status  gateway.KeyStatus
	Balance *float64
	Error   string
}

// Checker probes keys using each channel's dialect, test method, and proxy.
type Checker struct {
	store  storage.Store
	dialer *proxydial.Dialer
	base   http.RoundTripper // transport for channels without a proxy
}

// New returns a Checker. base may be nil, in which case the process default
// transport is used for direct upstreams.
func New(store storage.Store, dialer *proxydial.Dialer, base http.RoundTripper) *Checker {
	return &Checker{store: store, dialer: dialer, base: base}
}

// Check executes exactly one probe with a 30 s budget. Transport failures
// classify as invalid with the error captured.
func (c *Checker) Check(ctx context.Context, ch *gateway.Channel, key *gateway.APIKey) Result {
	adapter := provider.ForType(ch.Type)
	if adapter == nil {
		return Result{Status: gateway.KeyInvalid, Error: fmt.Sprintf("unknown channel type %q", ch.Type)}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := c.buildProbe(ctx, adapter, ch)
	if err != nil {
		return Result{Status: gateway.KeyInvalid, Error: err.Error()}
	}
	adapter.ApplyAuth(req, key.Key)

	transport, err := c.transportFor(ctx, ch)
	if err != nil {
		return Result{Status: gateway.KeyInvalid, Error: err.Error()}
	}

	client := &http.Client{Transport: transport}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Status: gateway.KeyInvalid, Error: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	status, errMsg := provider.Classify(resp.StatusCode, body)

	res := Result{Status: status, Error: errMsg}
	if status == gateway.KeyActive && ch.TestMethod == gateway.TestBalance {
		if v := gjson.GetBytes(body, "total_available"); v.Exists() {
			bal := v.Float()
			res.Balance = &bal
		}
	}
	return res
}

// buildProbe shapes the request per the channel's test method. Dialects
// without a balance endpoint fall back to the models listing.
func (c *Checker) buildProbe(ctx context.Context, adapter provider.Adapter, ch *gateway.Channel) (*http.Request, error) {
	model := ch.TestModel
	if model == "" {
		model = adapter.DefaultProbeModel()
	}

	switch ch.TestMethod {
	case gateway.TestChat:
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			adapter.ChatURL(ch.BaseURL, model), bytes.NewReader(adapter.ProbeBody(model)))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	case gateway.TestBalance:
		if u := adapter.BalanceURL(ch.BaseURL); u != "" {
			return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		}
		fallthrough
	default: // models
		return http.NewRequestWithContext(ctx, http.MethodGet, adapter.ModelsURL(ch.BaseURL), nil)
	}
}

func (c *Checker) transportFor(ctx context.Context, ch *gateway.Channel) (http.RoundTripper, error) {
	if ch.ProxyID == "" {
		return c.base, nil
	}
	p, err := c.store.GetProxy(ctx, ch.ProxyID)
	if err != nil {
		return nil, err
	}
	t, err := c.dialer.Transport(p)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return c.base, nil
	}
	return t, nil
}

// CheckKey probes one key by id and persists the result. Unknown ids are a
// no-op so a key deleted mid-schedule does not fail the job.
func (c *Checker) CheckKey(ctx context.Context, keyID string) error {
	key, err := c.store.GetKey(ctx, keyID)
	if err != nil || key == nil {
		return err
	}
	ch, err := c.store.GetChannel(ctx, key.ChannelID)
	if err != nil || ch == nil {
		return err
	}
	res := c.Check(ctx, ch, key)
	return c.store.ApplyCheckResult(ctx, key.ID, res.Status, res.Balance)
}

// CheckChannel probes the given keys in batches of 5 concurrent probes with
// a 1 s delay between batches. Each result is persisted as it arrives.
func (c *Checker) CheckChannel(ctx context.Context, ch *gateway.Channel, keys []*gateway.APIKey) error {
	for start := 0; start < len(keys); start += batchSize {
		if start > 0 {
			select {
			case <-time.After(batchDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		end := min(start+batchSize, len(keys))

		g, gctx := errgroup.WithContext(ctx)
		for _, key := range keys[start:end] {
			g.Go(func() error {
				res := c.Check(gctx, ch, key)
				if err := c.store.ApplyCheckResult(gctx, key.ID, res.Status, res.Balance); err != nil {
					return fmt.Errorf("apply check result for %s: %w", key.ID, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// CheckAll probes every non-disabled key of every enabled channel. Channels
// are processed sequentially with a 500 ms pause between them to pace the
// whole job. In-flight probes run to completion on cancellation; no new
// batch starts.
func (c *Checker) CheckAll(ctx context.Context) error {
	channels, err := c.store.ListChannels(ctx)
	if err != nil {
		return err
	}

	first := true
	for _, ch := range channels {
		if !ch.Enabled {
			continue
		}
		if !first {
			select {
			case <-time.After(channelDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		first = false

		keys, err := c.store.ListKeys(ctx, ch.ID)
		if err != nil {
			return err
		}
		checkable := keys[:0]
		for _, k := range keys {
			if k.Status != gateway.KeyDisabled {
				checkable = append(checkable, k)
			}
		}
		if err := c.CheckChannel(ctx, ch, checkable); err != nil {
			slog.LogAttrs(ctx, slog.LevelError, "channel check failed",
				slog.String("channel", ch.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
