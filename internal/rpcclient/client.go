// Package rpcclient builds proxy-aware ethclient.Client instances and
// exposes the small surface the engine's other layers (nonce, submit,
// tasks) need from them, the same RPC calls taught across the teacher's
// 02-rpc-basics/05-tx-nonces/06-eip1559 modules.
package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/tempospam/engine/internal/proxy"
)

// Client wraps an *ethclient.Client dialed (optionally) through a proxy.
type Client struct {
	*ethclient.Client
	URL   string
	Proxy *proxy.Proxy

	limits *rateLimitWatcher
}

// Dial connects to rpcURL, routing through p if non-nil. Matches the
// teacher's ethclient.DialContext usage, generalized with a timeout-bounded
// transport (and an optional proxy) via rpc.WithHTTPClient. timeout is the
// per-request HTTP deadline; zero means no deadline.
func Dial(ctx context.Context, rpcURL string, p *proxy.Proxy, timeout time.Duration) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	var rt http.RoundTripper = transport
	if p != nil {
		transport.Proxy = http.ProxyURL(p.URL)
		if p.Username != "" {
			rt = &proxyAuthRoundTripper{proxy: p, base: transport}
		}
	}
	limits := &rateLimitWatcher{base: rt}
	httpClient := &http.Client{Timeout: timeout, Transport: limits}

	rc, err := rpc.DialOptions(ctx, rpcURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("rpcclient: dial %s: %w", rpcURL, err)
	}
	return &Client{Client: ethclient.NewClient(rc), URL: rpcURL, Proxy: p, limits: limits}, nil
}

// proxyAuthRoundTripper injects the proxy's basic-auth credentials on every
// request; the proxy routing itself lives on the underlying transport.
type proxyAuthRoundTripper struct {
	proxy *proxy.Proxy
	base  http.RoundTripper
}

func (t *proxyAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.proxy.Username, t.proxy.Password)
	return t.base.RoundTrip(req)
}

// rateLimitWatcher sits outermost on the transport chain and remembers the
// Retry-After header of the most recent 429 response. The rpc layer
// surfaces only the status code, so the header has to be captured before
// the response reaches it.
type rateLimitWatcher struct {
	base http.RoundTripper

	mu         sync.Mutex
	retryAfter time.Duration
}

func (t *rateLimitWatcher) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		t.mu.Lock()
		t.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		t.mu.Unlock()
	}
	return resp, err
}

// take returns and clears the last captured Retry-After.
func (t *rateLimitWatcher) take() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.retryAfter
	t.retryAfter = 0
	return d
}

// parseRetryAfter accepts both header forms: delay-seconds and an HTTP
// date. Anything unparseable yields 0, leaving the retry loop on its
// default rate-limit delay.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// rateLimitedError surfaces a throttled submission together with the
// status and Retry-After the transport observed, in the shape
// internal/submit's HTTPStatusOf/RetryAfterOf probe for.
type rateLimitedError struct {
	retryAfter time.Duration
	err        error
}

func (e *rateLimitedError) Error() string { return e.err.Error() }

func (e *rateLimitedError) Unwrap() error { return e.err }

func (e *rateLimitedError) HTTPStatus() int { return http.StatusTooManyRequests }

func (e *rateLimitedError) RetryAfter() time.Duration { return e.retryAfter }

// SuggestFees returns (maxFeePerGas, maxPriorityFeePerGas), clamping the
// priority fee to the caller-provided default the way the original
// TempoTxSender.get_gas_price does, generalized for EIP-1559 chains. Both
// values are derived from a single SuggestGasPrice (eth_gasPrice) call: the
// priority fee is the lower of the default and the gas price, the max fee
// the higher of the default and the gas price.
func (c *Client) SuggestFees(ctx context.Context, defaultPriorityFee, defaultMaxFee *big.Int) (maxFee, priorityFee *big.Int, err error) {
	gasPrice, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return defaultMaxFee, defaultPriorityFee, fmt.Errorf("rpcclient: suggest gas price: %w", err)
	}
	priorityFee = defaultPriorityFee
	if gasPrice.Cmp(priorityFee) < 0 {
		priorityFee = gasPrice
	}
	maxFee = gasPrice
	if maxFee.Cmp(defaultMaxFee) < 0 {
		maxFee = defaultMaxFee
	}
	return maxFee, priorityFee, nil
}

// ProxyKey returns the banlist key for the proxy this client is routed
// through, or "" if it dials the RPC endpoint directly. It satisfies the
// internal/submit pipeline's proxyKeyed interface.
func (c *Client) ProxyKey() string {
	if c.Proxy == nil {
		return ""
	}
	return c.Proxy.Key()
}

// SendRawTransaction broadcasts a pre-encoded, signed transaction of any
// envelope type — go-ethereum's own typed transactions and Tempo's 0x76
// envelope alike go over the wire as opaque bytes. It satisfies
// internal/submit.RawSender. A 429 rejection comes back carrying the HTTP
// status and any Retry-After the transport saw, so the submission
// pipeline can wait out exactly what the endpoint asked for.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) error {
	err := c.Client.Client().CallContext(ctx, nil, "eth_sendRawTransaction", hexutil.Encode(raw))
	if err == nil {
		return nil
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return &rateLimitedError{retryAfter: c.limits.take(), err: err}
	}
	return err
}
