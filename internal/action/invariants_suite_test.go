package action

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/drmixer/emergence/internal/models"
)

func TestInvariants(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "action invariants suite")
}

var _ = Describe("work yield", func() {
	It("keeps the unfloored yield curve above zero regardless of existing quantity", func() {
		for job, spec := range workYield {
			for _, existing := range []float64{0, 1, spec.Scale, spec.Scale * 100} {
				yield := spec.Base / (1 + existing/spec.Scale)
				Expect(yield).To(BeNumerically(">", 0), "job %s existing %v", job, existing)
			}
		}
	})

	It("produces strictly fewer resources as existing quantity grows", func() {
		for _, spec := range workYield {
			low := spec.Base / (1 + 10/spec.Scale)
			high := spec.Base / (1 + 1000/spec.Scale)
			Expect(high).To(BeNumerically("<", low))
		}
	})
})

var _ = Describe("engine dispatch", func() {
	It("routes every declared action kind to a registered handler", func() {
		e := New(nil)
		kinds := []Kind{
			KindIdle, KindWork, KindTrade, KindConsume, KindProduce,
			KindPropose, KindVote, KindMessage, KindEnforceInitiate,
			KindEnforceVote, KindSetName,
		}
		for _, k := range kinds {
			_, ok := e.handlers[k]
			Expect(ok).To(BeTrue(), "missing handler for kind %s", k)
		}
	})
})

var _ = Describe("resource amount validity", func() {
	It("rejects zero or negative trade legs in validation before touching storage", func() {
		act := Action{
			Kind:              KindTrade,
			TargetAgentNumber: 2,
			Give:              &ResourceAmount{Resource: models.ResourceFood, Qty: 0},
			Receive:           &ResourceAmount{Resource: models.ResourceEnergy, Qty: 1},
		}
		// A nil transaction proves the rejection happens before any query.
		result, err := handleTrade(context.Background(), nil, 1, act)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Valid).To(BeFalse())
	})
})
