// Package proxydial builds outbound HTTP transports that tunnel through a
// configured proxy. SOCKS5 and SOCKS5H use golang.org/x/net/proxy dialers;
// HTTP and HTTPS use CONNECT via http.Transport.Proxy. Transports are cached
// per proxy id to preserve connection pooling across requests.
package proxydial

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

// testTarget is probed by TestProxy to verify the tunnel end-to-end.
const testTarget = "https://api.openai.com/v1/models"

// testTimeout is the overall budget for one proxy test.
const testTimeout = 10 * time.Second

// URL composes the proxy URL: "{type}://[{user}:{pass}@]{host}:{port}".
func URL(p *gateway.Proxy) *url.URL {
	u := &url.URL{
		Scheme: p.Type,
		Host:   net.JoinHostPort(p.Host, fmt.Sprint(p.Port)),
	}
	if p.Username != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.Username, p.Password)
		} else {
			u.User = url.User(p.Username)
		}
	}
	return u
}

// Dialer owns per-proxy transports. Invalidate must be called when a proxy
// is updated or deleted so stale pools are dropped.
type Dialer struct {
	mu         sync.Mutex
	transports map[string]*http.Transport
}

// NewDialer returns an empty Dialer.
func NewDialer() *Dialer {
	return &Dialer{transports: make(map[string]*http.Transport)}
}

// Transport returns a RoundTripper routed through p. A nil or disabled proxy
// yields a nil transport, which http.Client treats as the process default.
func (d *Dialer) Transport(p *gateway.Proxy) (*http.Transport, error) {
	if p == nil || !p.Enabled {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.transports[p.ID]; ok {
		return t, nil
	}

	t, err := build(p)
	if err != nil {
		return nil, err
	}
	d.transports[p.ID] = t
	return t, nil
}

// Invalidate drops the cached transport for a proxy id, closing its idle
// connections.
func (d *Dialer) Invalidate(proxyID string) {
	d.mu.Lock()
	t, ok := d.transports[proxyID]
	if ok {
		delete(d.transports, proxyID)
	}
	d.mu.Unlock()
	if ok {
		t.CloseIdleConnections()
	}
}

func build(p *gateway.Proxy) (*http.Transport, error) {
	t := &http.Transport{
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	switch p.Type {
	case gateway.ProxySOCKS5, gateway.ProxySOCKS5H:
		var auth *xproxy.Auth
		if p.Username != "" {
			auth = &xproxy.Auth{User: p.Username, Password: p.Password}
		}
		// The SOCKS dialer receives the target host unresolved, so DNS
		// resolution happens at the proxy for both variants; socks5h merely
		// makes that contract explicit.
		sd, err := xproxy.SOCKS5("tcp", net.JoinHostPort(p.Host, fmt.Sprint(p.Port)), auth, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks dialer: %w", err)
		}
		cd, ok := sd.(xproxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks dialer does not support context")
		}
		t.DialContext = cd.DialContext

	case gateway.ProxyHTTP, gateway.ProxyHTTPS:
		u := URL(p)
		t.Proxy = http.ProxyURL(u)

	default:
		return nil, fmt.Errorf("unsupported proxy type %q", p.Type)
	}

	return t, nil
}

// Test issues a HEAD request to a well-known endpoint through the proxy with
// a 10 s overall budget and reports the observed latency.
func (d *Dialer) Test(ctx context.Context, p *gateway.Proxy) (latencyMs int64, err error) {
	t, err := build(p)
	if err != nil {
		return 0, err
	}
	defer t.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, testTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, testTarget, nil)
	if err != nil {
		return 0, err
	}

	client := &http.Client{Transport: t}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return time.Since(start).Milliseconds(), nil
}
