package vcr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Tries and Timeout implement spec §4.4's "Request pipeline": "Attempt up to TRIES=5,
// with per-attempt timeout TIMEOUT=10 seconds."
const (
	Tries   = 5
	Timeout = 10 * time.Second
)

// ErrReplayFailure is the sentinel spec §4.4 requires: "A ReplayFailure in any action
// restores the previous state (pop) and propagates." Both network failures on a
// state-changing action and assertion/match failures during replay surface as this
// error; Session.Apply is responsible for the pop.
var ErrReplayFailure = errors.New("vcr: replay failure")

// Client performs HTTP requests on behalf of a Session: it owns the retry/timeout
// pipeline, the Basic-Auth scoping table, and a net/http.Client sharing the State
// chain's cookie jar.
type Client struct {
	http *http.Client
	auth *authTable
}

// NewClient builds a Client whose cookie jar is shared with the given root State, per
// spec §5's "Cookie jar: shared along a VCR state chain by reference."
func NewClient(jar http.CookieJar) *Client {
	return &Client{
		http: &http.Client{Jar: jar},
		auth: newAuthTable(),
	}
}

// request describes one HTTP fetch for the retry pipeline to execute.
type request struct {
	method  string
	url     string
	body    []byte
	referer string
	agent   string
	// refreshHop marks the automatic meta-refresh request, whose own meta refresh is
	// not followed.
	refreshHop bool
}

// do executes req with up to Tries attempts at Timeout each, per spec §4.4's request
// pipeline: "Retry on transport timeouts and transport-level errors; do not retry
// non-401 HTTP status failures. Treat 401 as a non-fatal terminal response." After a
// successful response it reads the body (itself retried up to Tries times on a
// mid-read transport error) and follows one meta-refresh hop if present.
func (c *Client) do(ctx context.Context, req request) (status int, body []byte, finalURL string, err error) {
	httpReq, err := http.NewRequest(req.method, req.url, bodyReader(req.body))
	if err != nil {
		return 0, nil, "", fmt.Errorf("vcr: build request: %w", err)
	}
	if req.method == http.MethodPost {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if req.referer != "" {
		httpReq.Header.Set("Referer", req.referer)
	}
	httpReq.Header.Set("User-Agent", req.agent)
	if handler, ok := c.auth.lookup(req.url); ok {
		httpReq.SetBasicAuth(handler.username, handler.password)
	}

	var resp *http.Response
	for attempt := 0; attempt < Tries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, Timeout)
		attemptReq := httpReq.Clone(attemptCtx)
		resp, err = c.http.Do(attemptReq)
		cancel()
		if err == nil {
			break
		}
		// Transport-level failures (timeout, connection refused, DNS) are all
		// retried; only HTTP status failures are excluded from the retry loop.
	}
	if err != nil {
		return 0, nil, "", fmt.Errorf("%w: exhausted %d attempts: %v", ErrReplayFailure, Tries, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode >= 400 {
		return resp.StatusCode, nil, "", fmt.Errorf("%w: unexpected status %d", ErrReplayFailure, resp.StatusCode)
	}

	data, err := readBodyWithRetry(resp)
	if err != nil {
		return resp.StatusCode, nil, "", err
	}

	finalURL = resp.Request.URL.String()
	if !req.refreshHop {
		if refreshURL, ok := parseMetaRefresh(data, finalURL); ok {
			return c.do(ctx, request{method: http.MethodGet, url: refreshURL, referer: finalURL, agent: req.agent, refreshHop: true})
		}
	}

	return resp.StatusCode, data, finalURL, nil
}

func readBodyWithRetry(resp *http.Response) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < Tries; attempt++ {
		data, err := io.ReadAll(resp.Body)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: reading body: %v", ErrReplayFailure, lastErr)
}

func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return strings.NewReader(string(body))
}

// resolveURL joins a possibly-relative href against base.
func resolveURL(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
