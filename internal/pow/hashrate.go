package pow

import (
	"sync"
	"sync/atomic"
	"time"
)

// Meter counts hashes for rate reporting. Add is safe to call from the hot loop;
// Sample is called by a reporter on its own timer and never blocks Add.
type Meter struct {
	total atomic.Uint64

	mu         sync.Mutex
	lastTotal  uint64
	lastSample time.Time
	now        func() time.Time
}

// NewMeter creates a meter whose first sample window starts now
func NewMeter() *Meter {
	return newMeterWithClock(time.Now)
}

func newMeterWithClock(now func() time.Time) *Meter {
	return &Meter{
		lastSample: now(),
		now:        now,
	}
}

// Add records n hashes
func (m *Meter) Add(n uint64) {
	m.total.Add(n)
}

// Total returns all hashes recorded since creation
func (m *Meter) Total() uint64 {
	return m.total.Load()
}

// Sample returns the hashes recorded and the time elapsed since the previous sample
func (m *Meter) Sample() (uint64, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	total := m.total.Load()

	hashes := total - m.lastTotal
	elapsed := now.Sub(m.lastSample)

	m.lastTotal = total
	m.lastSample = now
	return hashes, elapsed
}

// Rate converts a sample to hashes per second
func Rate(hashes uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(hashes) / elapsed.Seconds()
}
