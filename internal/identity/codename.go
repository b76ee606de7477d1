// Package identity implements the canonical, immutable agent codename
// policy. An agent's display_name is a pure function of its agent_number
// and never changes once assigned — see spec §3 invariant
// "agent.display_name == codename(agent_number)".
package identity

import "fmt"

// words is the fixed word bank cycled by agent_number. It is fixed at
// compile time: Codename indexes it modulo its length, so any edit —
// reordering, pruning, or appending — changes existing agents'
// codenames, which the invariant forbids.
var words = []string{
	"Tensor", "Quartz", "Ember", "Lumen", "Cobalt", "Orbit", "Marrow", "Silt",
	"Birch", "Flint", "Gale", "Haze", "Ivory", "Jasper", "Kestrel", "Lattice",
	"Warden", "Harbor", "Compass", "Anchor", "Ridge", "Meridian", "Hollow",
	"Vector", "Cipher", "Foundry", "Grove", "Reach", "Spire", "Thicket",
	"Vale", "Wren",
}

// Codename deterministically derives the immutable display name for an
// agent_number. Numbers are 1-indexed per spec §3. The word is chosen by
// cycling through the word bank; appending the zero-padded agent_number
// itself guarantees global uniqueness regardless of population size.
func Codename(agentNumber int) string {
	if agentNumber < 1 {
		agentNumber = 1
	}
	word := words[(agentNumber-1)%len(words)]
	return fmt.Sprintf("%s-%02d", word, agentNumber)
}

// IsImmutableAliasRequest reports whether a proposed display name matches
// the agent's own canonical codename. The action engine does not call it:
// handleSetName treats every set_name request as a no-op (spec §4.4).
func IsImmutableAliasRequest(agentNumber int, proposed string) bool {
	return proposed == Codename(agentNumber)
}
