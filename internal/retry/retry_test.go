package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock records requested sleeps instead of blocking.
type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func TestPolicyDo_StopsAfterMaxAttempts(t *testing.T) {
	clock := &fakeClock{}
	p := Fixed(3, 2*time.Second)
	p.Sleep = clock.Sleep

	calls := 0
	boom := errors.New("connection refused")
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		return boom
	}, func(error) bool { return true })

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.slept)
}

func TestPolicyDo_NonRetryableAbortsImmediately(t *testing.T) {
	clock := &fakeClock{}
	p := Fixed(3, time.Second)
	p.Sleep = clock.Sleep

	calls := 0
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("invalid_grant")
	}, func(error) bool { return false })

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.slept)
}

func TestPolicyDo_SucceedsAfterRetry(t *testing.T) {
	clock := &fakeClock{}
	p := Fixed(3, time.Second)
	p.Sleep = clock.Sleep

	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt < 2 {
			return errors.New("reset")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, clock.slept, 1)
}

func TestPolicyDo_ZeroAttemptsRunsOnce(t *testing.T) {
	p := Policy{}
	calls := 0
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestPolicyDo_CancelledSleepStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Fixed(5, time.Hour)
	calls := 0
	attempts, err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("refused")
	}, func(error) bool { return true })

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", refused, true},
		{"refused wrapped in url error", &url.Error{Op: "Get", URL: "http://x", Err: refused}, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", &url.Error{Op: "Get", URL: "http://x", Err: context.Canceled}, false},
		{"unsupported scheme", &url.Error{Op: "Get", URL: "ftp://x", Err: errors.New("unsupported protocol scheme")}, false},
		{"plain error", errors.New("bad request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
