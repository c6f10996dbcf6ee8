package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Source tells the dashboard where a section came from.
type Source string

const (
	SourceLive        Source = "live"
	SourceCached      Source = "cached"
	SourceUnavailable Source = "unavailable"
)

// StatusError is a non-2xx answer of an upstream. Client errors do not count
// against the breaker.
type StatusError struct {
	Upstream string
	Code     int
}

func (e *StatusError) Error() string { return fmt.Sprintf("%s upstream status %d", e.Upstream, e.Code) }

func mkCB(name string, fails int, openFor, interval time.Duration) *gobreaker.CircuitBreaker {
	if fails < 1 {
		fails = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: interval,
		Timeout:  openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil
		},
	})
}

// Upstream is a JSON client of one service with a breaker and the last good
// answer per path.
type Upstream struct {
	name   string
	base   string
	client *http.Client
	cb     *gobreaker.CircuitBreaker

	mu       sync.Mutex
	lastGood map[string][]byte
}

func NewUpstream(name, base string, timeout time.Duration, cb *gobreaker.CircuitBreaker) *Upstream {
	return &Upstream{
		name:     name,
		base:     strings.TrimRight(strings.TrimSpace(base), "/"),
		client:   &http.Client{Timeout: timeout},
		cb:       cb,
		lastGood: make(map[string][]byte),
	}
}

func (u *Upstream) State() gobreaker.State { return u.cb.State() }

// GetJSON decodes the answer of GET base+path into out. When the call fails and a
// previous answer for the same path exists, that one is decoded instead and
// SourceCached is returned along with the error.
func (u *Upstream) GetJSON(ctx context.Context, path string, out any) (Source, error) {
	if u == nil || u.base == "" {
		return SourceUnavailable, fmt.Errorf("upstream not configured")
	}
	res, err := u.cb.Execute(func() (any, error) { return u.fetch(ctx, path) })
	if err == nil {
		body := res.([]byte)
		if err := json.Unmarshal(body, out); err != nil {
			return SourceUnavailable, fmt.Errorf("%s decode error: %w", u.name, err)
		}
		u.mu.Lock()
		u.lastGood[path] = body
		u.mu.Unlock()
		return SourceLive, nil
	}

	var se *StatusError
	if errors.As(err, &se) && se.Code < 500 {
		return SourceUnavailable, err
	}
	u.mu.Lock()
	body, ok := u.lastGood[path]
	u.mu.Unlock()
	if ok && json.Unmarshal(body, out) == nil {
		return SourceCached, err
	}
	return SourceUnavailable, err
}

func (u *Upstream) fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request error: %w", u.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Upstream: u.name, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s read error: %w", u.name, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s returned invalid JSON", u.name)
	}
	return body, nil
}
