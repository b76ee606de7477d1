package agentproc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drmixer/emergence/internal/clock"
)

func TestBackoffSuppressesRepeatChecksWithinWindow(t *testing.T) {
	p := &Processor{backoff: make(map[int]time.Time)}

	assert.False(t, p.isBackedOff(1))

	p.installBackoff(1, clock.Now().Add(time.Minute))
	assert.True(t, p.isBackedOff(1), "agent must be backed off immediately after installBackoff")

	// A second call within the window must not clear or reset the
	// backoff — it stays suppressed until expiry.
	assert.True(t, p.isBackedOff(1))
}

func TestBackoffExpiresAndClearsState(t *testing.T) {
	p := &Processor{backoff: make(map[int]time.Time)}
	p.installBackoff(1, clock.Now().Add(-time.Second)) // already expired

	assert.False(t, p.isBackedOff(1))
	p.mu.Lock()
	_, stillPresent := p.backoff[1]
	p.mu.Unlock()
	assert.False(t, stillPresent, "expired backoff entries are cleared on check")
}
