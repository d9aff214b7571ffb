package circuit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	fail        bool
	wantPrimary bool
	opened      bool
	closed      bool
	wantState   State
}

func TestBreakerSequences(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		steps []step
	}{
		{
			name: "opens on the threshold failure",
			opts: []Option{WithFailureThreshold(2)},
			steps: []step{
				{fail: true, wantPrimary: true, wantState: StateClosed},
				{fail: true, opened: true, wantState: StateOpen},
				{fail: true, wantState: StateOpen},
			},
		},
		{
			name: "a success between failures restarts the count",
			opts: []Option{WithFailureThreshold(2)},
			steps: []step{
				{fail: true, wantPrimary: true, wantState: StateClosed},
				{wantPrimary: true, wantState: StateClosed},
				{fail: true, wantPrimary: true, wantState: StateClosed},
				{fail: true, opened: true, wantState: StateOpen},
			},
		},
		{
			name: "closes after consecutive successes",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{fail: true, opened: true, wantState: StateOpen},
				{wantState: StateOpen},
				{fail: true, wantState: StateOpen},
				{wantState: StateOpen},
				{wantPrimary: true, closed: true, wantState: StateClosed},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("audit", tt.opts...)
			for i, st := range tt.steps {
				var primary bool
				var change StateChange
				if st.fail {
					var fallback bool
					fallback, change = b.RecordFailure()
					primary = !fallback
				} else {
					primary, change = b.RecordSuccess()
				}
				assert.Equal(t, st.wantPrimary, primary, "step %d primary", i)
				assert.Equal(t, st.opened, change.Opened, "step %d opened", i)
				assert.Equal(t, st.closed, change.Closed, "step %d closed", i)
				assert.Equal(t, st.wantState, b.State(), "step %d state", i)
			}
		})
	}
}

func TestBreakerDefaultsAndReset(t *testing.T) {
	b := New("audit", WithFailureThreshold(0), WithSuccessThreshold(-1))
	assert.Equal(t, "audit", b.Name())
	assert.Equal(t, "closed", b.State().String())

	for range defaultFailureThreshold {
		b.RecordFailure()
	}
	require.True(t, b.IsOpen())
	assert.Equal(t, "open", b.State().String())

	b.Reset()
	assert.False(t, b.IsOpen())
	fallback, _ := b.RecordFailure()
	assert.False(t, fallback, "reset clears the failure count")
}

func TestBreakerConcurrentFailuresOpenOnce(t *testing.T) {
	b := New("audit", WithFailureThreshold(10))
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, change := b.RecordFailure(); change.Opened {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, opened)
	assert.True(t, b.IsOpen())
}
