package host

import (
	"testing"
	"time"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		Initial: 5 * time.Second,
		Max:     time.Minute,
	})

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		time.Minute,
		time.Minute,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}
	if b.Attempts() != len(want) {
		t.Errorf("Attempts() = %d, want %d", b.Attempts(), len(want))
	}

	b.Reset()
	if b.Current() != 5*time.Second {
		t.Errorf("Current() after Reset = %v, want 5s", b.Current())
	}
	if b.Attempts() != 0 {
		t.Errorf("Attempts() after Reset = %d, want 0", b.Attempts())
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoff(BackoffConfig{Initial: time.Second, Max: time.Second, Jitter: 0.25})

	for i := 0; i < 100; i++ {
		d := b.Next()
		if d < time.Second || d > 1250*time.Millisecond {
			t.Fatalf("Next() = %v, outside [1s, 1.25s]", d)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff(BackoffConfig{})
	if b.Current() != InitialRetryDelay {
		t.Errorf("Current() = %v, want %v", b.Current(), InitialRetryDelay)
	}
}
