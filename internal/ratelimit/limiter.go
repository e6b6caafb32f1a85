// Package ratelimit provides token-bucket limiters keyed by client. Memory
// keeps buckets in process; Redis shares them across instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Policy is a token bucket: Burst tokens, refilled at RefillPerSecond.
type Policy struct {
	Burst           int
	RefillPerSecond float64
}

var ErrInvalidPolicy = errors.New("invalid rate limit policy")

func (p Policy) Validate() error {
	if p.Burst < 1 {
		return fmt.Errorf("%w: burst must be at least 1, got %d", ErrInvalidPolicy, p.Burst)
	}
	if p.RefillPerSecond <= 0 {
		return fmt.Errorf("%w: refill must be positive, got %v", ErrInvalidPolicy, p.RefillPerSecond)
	}
	return nil
}

// ParseLegacy reads the "limit:window-seconds" form: limit requests per
// window, i.e. burst = limit and refill = limit / window.
func ParseLegacy(s string) (Policy, error) {
	limitStr, windowStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Policy{}, fmt.Errorf("%w: %q is not limit:window", ErrInvalidPolicy, s)
	}
	limit, err := strconv.Atoi(strings.TrimSpace(limitStr))
	if err != nil {
		return Policy{}, fmt.Errorf("%w: limit %q: %v", ErrInvalidPolicy, limitStr, err)
	}
	window, err := strconv.ParseFloat(strings.TrimSpace(windowStr), 64)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: window %q: %v", ErrInvalidPolicy, windowStr, err)
	}
	if window <= 0 {
		return Policy{}, fmt.Errorf("%w: window must be positive", ErrInvalidPolicy)
	}
	p := Policy{Burst: limit, RefillPerSecond: float64(limit) / window}
	return p, p.Validate()
}

const (
	cleanupInterval = time.Minute
	staleAfter      = 3 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Memory keeps one rate.Limiter per key and drops keys idle for a while.
type Memory struct {
	policy   Policy
	mu       sync.Mutex
	visitors map[string]*visitor
	stop     chan struct{}
	once     sync.Once
}

func NewMemory(p Policy) (*Memory, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	m := &Memory{
		policy:   p,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go m.cleanup()
	return m, nil
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	return m.visitor(key).Allow(), nil
}

// Close stops the cleanup loop.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) visitor(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(m.policy.RefillPerSecond), m.policy.Burst)}
		m.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (m *Memory) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

func (m *Memory) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, v := range m.visitors {
		if now.Sub(v.lastSeen) > staleAfter {
			delete(m.visitors, key)
		}
	}
}
