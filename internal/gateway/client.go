package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// maxBodyBytes bounds how much of a response is read. A DuetWifi
// rr_status?type=3 reply is a few kilobytes.
const maxBodyBytes = 64 << 10

// Doer is the subset of *http.Client used by the gateways.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns a client suited to small embedded web servers:
// one request per connection, no keep-alive, bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
		DisableKeepAlives:   true,
		TLSHandshakeTimeout: timeout,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// get performs a single GET and returns the status code and a bounded body.
func get(ctx context.Context, doer Doer, op, url string, timeout time.Duration) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, &PollError{Op: op, URL: url, Kind: KindTransport, Err: err}
	}
	// Older printer firmware answers HTTP/1.0 without chunking; closing
	// after each reply keeps us off half-open sockets.
	req.Close = true
	req.Header.Set("Connection", "close")

	resp, err := doer.Do(req)
	if err != nil {
		return 0, nil, &PollError{Op: op, URL: url, Kind: classify(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, &PollError{Op: op, URL: url, Kind: classify(ctx, err), StatusCode: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, body, nil
}

func classify(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindTransport
}
