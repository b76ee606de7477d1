package agentloop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drmixer/emergence/internal/models"
)

type countingProcessor struct {
	calls   int32
	maxSeen int32
	active  int32
	mu      sync.Mutex
}

func (p *countingProcessor) ProcessTurn(ctx context.Context, agent models.Agent) error {
	atomic.AddInt32(&p.calls, 1)
	n := atomic.AddInt32(&p.active, 1)
	p.mu.Lock()
	if n > p.maxSeen {
		p.maxSeen = n
	}
	p.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&p.active, -1)
	return nil
}

func TestRunTurnsProcessesEveryAgentExactlyOnce(t *testing.T) {
	proc := &countingProcessor{}
	agents := make([]models.Agent, 20)
	for i := range agents {
		agents[i] = models.Agent{AgentNumber: i + 1}
	}

	runTurns(context.Background(), proc, agents, 4)

	assert.EqualValues(t, 20, proc.calls)
}

func TestRunTurnsRespectsConcurrencyCap(t *testing.T) {
	proc := &countingProcessor{}
	agents := make([]models.Agent, 10)
	for i := range agents {
		agents[i] = models.Agent{AgentNumber: i + 1}
	}

	runTurns(context.Background(), proc, agents, 3)

	assert.LessOrEqual(t, proc.maxSeen, int32(3))
}

func TestRunTurnsDefaultsConcurrencyWhenNonPositive(t *testing.T) {
	proc := &countingProcessor{}
	agents := []models.Agent{{AgentNumber: 1}}

	runTurns(context.Background(), proc, agents, 0)

	assert.EqualValues(t, 1, proc.calls)
}
