package jobqueue

import (
	"testing"
	"time"
)

func TestSweepWorkerStopsAfterChannelClose(t *testing.T) {
	m := &Manager{
		stopCh:      make(chan struct{}),
		sweepTicker: time.NewTicker(time.Hour),
	}
	defer m.sweepTicker.Stop()

	m.wg.Add(1)
	go m.sweepWorker(m.stopCh, time.Hour)

	close(m.stopCh)
	// Recycling the field must not strand the running worker; it holds its
	// own reference to the closed channel.
	m.stopCh = make(chan struct{})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep worker did not stop after the stop channel closed")
	}
}
