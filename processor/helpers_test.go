package processor

import (
	"testing"
	"time"
)

// pump polls step until it reports done or deadline passes, matching the
// idiom used by stream/stream_test.go for exercising loop-driven state
// machines without a fixed sleep.
func pump(t *testing.T, deadline time.Time, step func() bool) {
	t.Helper()
	for time.Now().Before(deadline) {
		if step() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("pump: deadline exceeded")
}
