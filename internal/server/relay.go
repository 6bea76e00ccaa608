package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	gateway "github.com/keyhub-gw/keyhub/internal"
	"github.com/keyhub-gw/keyhub/internal/provider"
)

// maxRelayBody caps the buffered client request body (10 MB).
const maxRelayBody = 10 << 20

// streamCopyBuf is the chunk size for streaming relay copies.
const streamCopyBuf = 32 << 10

// bookkeepTimeout bounds the post-relay store writes, which must complete
// even after the client has gone away.
const bookkeepTimeout = 5 * time.Second

// handleRelay forwards an OpenAI-format request to an upstream channel. The
// client body is passed byte-for-byte; only headers and the endpoint URL are
// rewritten for the provider dialect.
func (s *server) handleRelay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRelayBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, invalidRequestError("failed to read request body"))
		return
	}

	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		writeJSON(w, http.StatusBadRequest, invalidRequestError("model is required"))
		return
	}
	streaming := gjson.GetBytes(body, "stream").Bool()

	tok := gateway.TokenFromContext(r.Context())
	channel, key, err := s.selectUpstream(r.Context(), model, tok)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, serverError("failed to select upstream"))
		return
	}
	if key == nil {
		writeJSON(w, http.StatusServiceUnavailable, serverError("No available API keys for this model"))
		return
	}

	adapter := provider.ForType(channel.Type)
	target := adapter.EndpointURL(channel.BaseURL, r.URL.Path, model)

	upReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, serverError("failed to build upstream request"))
		return
	}
	upReq.Header["Content-Type"] = jsonCT
	adapter.ApplyAuth(upReq, key.Key)

	transport, err := s.transportFor(r.Context(), channel)
	if err != nil {
		slog.LogAttrs(r.Context(), slog.LevelError, "proxy transport unavailable",
			slog.String("channel", channel.ID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, serverError("proxy unavailable"))
		return
	}

	start := time.Now()
	resp, err := (&http.Client{Transport: transport}).Do(upReq)
	if err != nil {
		s.finishTransportFailure(r, channel, key, tok, model, streaming, start, err)
		writeJSON(w, http.StatusInternalServerError, serverError("upstream request failed"))
		return
	}
	defer resp.Body.Close()

	if streaming {
		s.relayStream(w, r, resp, channel, key, tok, model, start)
		return
	}
	s.relayUnary(w, r, resp, channel, key, tok, model, start)
}

// selectUpstream picks the first enabled channel of a matching type that has
// an active key, honoring the token's channel allowlist. Channels are tried
// in insertion order.
func (s *server) selectUpstream(ctx context.Context, model string, tok *gateway.Token) (*gateway.Channel, *gateway.APIKey, error) {
	types := typesForModel(model)

	channels, err := s.deps.Store.ListChannels(ctx)
	if err != nil {
		return nil, nil, err
	}

	for _, ch := range channels {
		if !ch.Enabled || !slices.Contains(types, ch.Type) {
			continue
		}
		if tok != nil && len(tok.AllowedChannels) > 0 && !slices.Contains(tok.AllowedChannels, ch.ID) {
			continue
		}
		keys, err := s.deps.Store.ActiveKeysFor(ctx, ch.ID)
		if err != nil {
			return nil, nil, err
		}
		if key := s.deps.Balancer.Pick(keys, ch.LoadBalanceStrategy, ch.ID); key != nil {
			return ch, key, nil
		}
	}
	return nil, nil, nil
}

// transportFor resolves the channel's proxy, if any, to a cached transport.
func (s *server) transportFor(ctx context.Context, ch *gateway.Channel) (http.RoundTripper, error) {
	if ch.ProxyID == "" {
		return s.transport(), nil
	}
	p, err := s.deps.Store.GetProxy(ctx, ch.ProxyID)
	if err != nil {
		return nil, err
	}
	t, err := s.deps.Dialer.Transport(p)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return s.transport(), nil
	}
	return t, nil
}

func (s *server) relayUnary(w http.ResponseWriter, r *http.Request, resp *http.Response, ch *gateway.Channel, key *gateway.APIKey, tok *gateway.Token, model string, start time.Time) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		s.finishTransportFailure(r, ch, key, tok, model, false, start, err)
		writeJSON(w, http.StatusInternalServerError, serverError("failed to read upstream response"))
		return
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	relayErr := ""
	if !success {
		relayErr = string(respBody)
	}
	s.finishRelay(r, ch, key, tok, model, false, start, resp.StatusCode, success, relayErr)

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header()["Content-Type"] = jsonCT
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(respBody)
}

// relayStream copies the upstream body to the client chunk by chunk as bytes
// arrive. Client disconnects cancel the request context, which aborts the
// upstream read within one chunk.
func (s *server) relayStream(w http.ResponseWriter, r *http.Request, resp *http.Response, ch *gateway.Channel, key *gateway.APIKey, tok *gateway.Token, model string, start time.Time) {
	writeSSEHeaders(w, resp.StatusCode)
	flusher, _ := w.(http.Flusher)

	buf := make([]byte, streamCopyBuf)
	var copyErr error
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				copyErr = werr
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				copyErr = err
			}
			break
		}
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	relayErr := ""
	if copyErr != nil && r.Context().Err() == nil {
		relayErr = copyErr.Error()
	}
	s.finishRelay(r, ch, key, tok, model, true, start, resp.StatusCode, success, relayErr)
}

// finishRelay applies per-key bookkeeping and records the request log. It
// runs on a detached context so a client disconnect cannot skip accounting.
func (s *server) finishRelay(r *http.Request, ch *gateway.Channel, key *gateway.APIKey, tok *gateway.Token, model string, streaming bool, start time.Time, status int, success bool, relayErr string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), bookkeepTimeout)
	defer cancel()

	if err := s.deps.Store.MarkKeyUsed(ctx, key.ID, success); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "key bookkeeping failed",
			slog.String("key", key.ID),
			slog.String("error", err.Error()),
		)
	}

	elapsed := time.Since(start)
	if m := s.deps.Metrics; m != nil {
		m.RelayDuration.WithLabelValues(ch.Type, model).Observe(elapsed.Seconds())
		if !success {
			m.RelayErrors.WithLabelValues(ch.Type, http.StatusText(status)).Inc()
		}
	}

	if s.deps.Recorder == nil {
		return
	}
	log := gateway.RequestLog{
		Timestamp: gateway.Now(),
		ChannelID: ch.ID,
		KeyID:     key.ID,
		Model:     model,
		Path:      r.URL.Path,
		Method:    r.Method,
		Status:    status,
		Latency:   elapsed.Milliseconds(),
		Error:     truncateError(relayErr),
		Streaming: streaming,
	}
	if tok != nil {
		log.TokenID = tok.ID
	}
	s.deps.Recorder.Record(log)
}

// finishTransportFailure handles the no-response path: only errorCount moves,
// and the log row carries status 500 with the transport error.
func (s *server) finishTransportFailure(r *http.Request, ch *gateway.Channel, key *gateway.APIKey, tok *gateway.Token, model string, streaming bool, start time.Time, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), bookkeepTimeout)
	defer cancel()

	if err := s.deps.Store.BumpKeyError(ctx, key.ID); err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "key bookkeeping failed",
			slog.String("key", key.ID),
			slog.String("error", err.Error()),
		)
	}

	if m := s.deps.Metrics; m != nil {
		m.RelayErrors.WithLabelValues(ch.Type, "transport").Inc()
	}

	if s.deps.Recorder == nil {
		return
	}
	log := gateway.RequestLog{
		Timestamp: gateway.Now(),
		ChannelID: ch.ID,
		KeyID:     key.ID,
		Model:     model,
		Path:      r.URL.Path,
		Method:    r.Method,
		Status:    http.StatusInternalServerError,
		Latency:   time.Since(start).Milliseconds(),
		Error:     truncateError(cause.Error()),
		Streaming: streaming,
	}
	if tok != nil {
		log.TokenID = tok.ID
	}
	s.deps.Recorder.Record(log)
}

// maxLoggedError bounds the error column in request logs.
const maxLoggedError = 2048

func truncateError(s string) string {
	if len(s) > maxLoggedError {
		return strings.ToValidUTF8(s[:maxLoggedError], "")
	}
	return s
}
