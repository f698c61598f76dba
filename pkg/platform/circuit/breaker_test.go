package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type step struct {
	fail     bool
	fallback bool
	opened   bool
	closed   bool
}

func replay(t *testing.T, b *Breaker, steps []step) {
	t.Helper()
	for i, s := range steps {
		if s.fail {
			fallback, change := b.RecordFailure()
			assert.Equal(t, s.fallback, fallback, "step %d fallback", i)
			assert.Equal(t, s.opened, change.Opened, "step %d opened", i)
			continue
		}
		primary, change := b.RecordSuccess()
		assert.Equal(t, !s.fallback, primary, "step %d primary", i)
		assert.Equal(t, s.closed, change.Closed, "step %d closed", i)
	}
}

func TestBreaker(t *testing.T) {
	cases := []struct {
		name  string
		opts  []Option
		steps []step
		open  bool
	}{
		{
			name: "opens on the third consecutive failure",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{fail: true},
				{fail: true},
				{fail: true, fallback: true, opened: true},
				{fail: true, fallback: true},
			},
			open: true,
		},
		{
			name: "a success between failures starts the count again",
			opts: []Option{WithFailureThreshold(2)},
			steps: []step{
				{fail: true},
				{},
				{fail: true},
			},
		},
		{
			name: "closes after enough consecutive successes",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{fail: true, fallback: true, opened: true},
				{fallback: true},
				{closed: true},
				{},
			},
		},
		{
			name: "a failure while open discards earlier successes",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{fail: true, fallback: true, opened: true},
				{fallback: true},
				{fail: true, fallback: true},
				{fallback: true},
			},
			open: true,
		},
		{
			name: "non-positive thresholds keep the defaults",
			opts: []Option{WithFailureThreshold(0), WithSuccessThreshold(-1)},
			steps: []step{
				{fail: true},
				{fail: true},
				{fail: true},
				{fail: true},
				{fail: true, fallback: true, opened: true},
			},
			open: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New("audit_sink", tc.opts...)
			assert.Equal(t, StateClosed, b.State())
			replay(t, b, tc.steps)
			assert.Equal(t, tc.open, b.IsOpen())
			assert.Equal(t, "audit_sink", b.Name())
		})
	}
}
