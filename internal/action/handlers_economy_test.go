package action

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drmixer/emergence/internal/models"
)

func TestInventoryLockOrderSortsByAgentThenResource(t *testing.T) {
	keys := inventoryLockOrder([]inventoryKey{
		{agent: 2, resource: models.ResourceFood},
		{agent: 1, resource: models.ResourceMaterials},
		{agent: 2, resource: models.ResourceEnergy},
		{agent: 1, resource: models.ResourceEnergy},
	})

	assert.Equal(t, []inventoryKey{
		{agent: 1, resource: models.ResourceEnergy},
		{agent: 1, resource: models.ResourceMaterials},
		{agent: 2, resource: models.ResourceEnergy},
		{agent: 2, resource: models.ResourceFood},
	}, keys)
}

func TestInventoryLockOrderIsDirectionIndependent(t *testing.T) {
	// A trade and its mirror image must acquire locks in the same order,
	// which is what rules out deadlock between reciprocal trades.
	forward := inventoryLockOrder([]inventoryKey{
		{agent: 1, resource: models.ResourceFood},
		{agent: 2, resource: models.ResourceFood},
		{agent: 2, resource: models.ResourceEnergy},
		{agent: 1, resource: models.ResourceEnergy},
	})
	reverse := inventoryLockOrder([]inventoryKey{
		{agent: 2, resource: models.ResourceEnergy},
		{agent: 1, resource: models.ResourceEnergy},
		{agent: 1, resource: models.ResourceFood},
		{agent: 2, resource: models.ResourceFood},
	})

	assert.Equal(t, forward, reverse)
}

func TestInventoryLockOrderDeduplicatesSameResourceTrade(t *testing.T) {
	// food-for-food between two agents names each row twice.
	keys := inventoryLockOrder([]inventoryKey{
		{agent: 1, resource: models.ResourceFood},
		{agent: 2, resource: models.ResourceFood},
		{agent: 2, resource: models.ResourceFood},
		{agent: 1, resource: models.ResourceFood},
	})

	assert.Len(t, keys, 2)
	assert.Equal(t, 1, keys[0].agent)
	assert.Equal(t, 2, keys[1].agent)
}
