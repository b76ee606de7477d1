package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodenameAgentOne(t *testing.T) {
	assert.Equal(t, "Tensor-01", Codename(1))
}

func TestCodenameIsDeterministic(t *testing.T) {
	for n := 1; n <= 200; n++ {
		assert.Equal(t, Codename(n), Codename(n), "codename must be a pure function of agent_number")
	}
}

func TestCodenameUniqueAcrossLargePopulation(t *testing.T) {
	seen := make(map[string]int, 500)
	for n := 1; n <= 500; n++ {
		name := Codename(n)
		if prev, ok := seen[name]; ok {
			t.Fatalf("codename collision: agent %d and %d both produced %q", prev, n, name)
		}
		seen[name] = n
	}
}

func TestIsImmutableAliasRequest(t *testing.T) {
	assert.True(t, IsImmutableAliasRequest(1, "Tensor-01"))
	assert.False(t, IsImmutableAliasRequest(1, "NewName"))
}
