package action

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/drmixer/emergence/internal/models"
)

// workYield maps a job to its base resource and diminishing-returns curve:
// yield = base / (1 + existing_quantity/scale), floored at 1. Repeated
// work on a saturated resource still produces something, but less.
var workYield = map[string]struct {
	Resource models.ResourceType
	Base     float64
	Scale    float64
}{
	JobFarm:     {Resource: models.ResourceFood, Base: 12, Scale: 200},
	JobGenerate: {Resource: models.ResourceEnergy, Base: 10, Scale: 150},
	JobGather:   {Resource: models.ResourceMaterials, Base: 8, Scale: 250},
}

func handleWork(ctx context.Context, tx pgx.Tx, agentNumber int, act Action) (Result, error) {
	spec, ok := workYield[act.Job]
	if !ok {
		return invalid(fmt.Sprintf("unknown work job %q", act.Job))
	}

	var existing int64
	err := tx.QueryRow(ctx, `
		SELECT quantity FROM agent_inventory WHERE agent_number = $1 AND resource_type = $2
	`, agentNumber, spec.Resource).Scan(&existing)
	if err != nil && err != pgx.ErrNoRows {
		return Result{}, err
	}

	yield := int64(math.Max(1, spec.Base/(1+float64(existing)/spec.Scale)))

	if _, err := tx.Exec(ctx, `
		INSERT INTO agent_inventory (agent_number, resource_type, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_number, resource_type)
		DO UPDATE SET quantity = agent_inventory.quantity + EXCLUDED.quantity
	`, agentNumber, spec.Resource, yield); err != nil {
		return Result{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (transaction_type, to_agent, resource_type, quantity, created_at)
		VALUES ('work', $1, $2, $3, now())
	`, agentNumber, spec.Resource, yield); err != nil {
		return Result{}, err
	}

	return valid()
}

func handleConsume(ctx context.Context, tx pgx.Tx, agentNumber int, act Action) (Result, error) {
	if act.Qty <= 0 {
		return invalid("consume quantity must be positive")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE agent_inventory SET quantity = quantity - $3
		WHERE agent_number = $1 AND resource_type = $2 AND quantity >= $3
	`, agentNumber, act.Resource, act.Qty)
	if err != nil {
		return Result{}, err
	}
	if tag.RowsAffected() == 0 {
		return invalid("insufficient inventory to consume")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (transaction_type, from_agent, resource_type, quantity, created_at)
		VALUES ('consume', $1, $2, $3, now())
	`, agentNumber, act.Resource, act.Qty); err != nil {
		return Result{}, err
	}

	return valid()
}

// handleProduce converts raw materials into a finished-goods proxy: it is
// modeled as a consume-then-credit pair (materials in, energy out) inside
// the same transaction, matching the work/consume ledger shape rather than
// introducing a distinct table.
func handleProduce(ctx context.Context, tx pgx.Tx, agentNumber int, act Action) (Result, error) {
	if act.Qty <= 0 {
		return invalid("produce quantity must be positive")
	}
	if act.Resource != models.ResourceMaterials {
		return invalid("produce currently only accepts materials as input")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE agent_inventory SET quantity = quantity - $2
		WHERE agent_number = $1 AND resource_type = 'materials' AND quantity >= $2
	`, agentNumber, act.Qty)
	if err != nil {
		return Result{}, err
	}
	if tag.RowsAffected() == 0 {
		return invalid("insufficient materials to produce")
	}

	output := act.Qty / 2
	if output < 1 {
		output = 1
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO agent_inventory (agent_number, resource_type, quantity)
		VALUES ($1, 'energy', $2)
		ON CONFLICT (agent_number, resource_type)
		DO UPDATE SET quantity = agent_inventory.quantity + EXCLUDED.quantity
	`, agentNumber, output); err != nil {
		return Result{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (transaction_type, from_agent, to_agent, resource_type, quantity, created_at)
		VALUES ('work', $1, $1, 'energy', $2, now())
	`, agentNumber, output); err != nil {
		return Result{}, err
	}

	return valid()
}

// handleTrade atomically moves act.Give from agentNumber to the target and
// act.Receive the other way. Both legs succeed or the whole transaction
// rolls back — there is no window where only one side of the trade lands.
func handleTrade(ctx context.Context, tx pgx.Tx, agentNumber int, act Action) (Result, error) {
	if act.Give == nil || act.Receive == nil {
		return invalid("trade requires both give and receive")
	}
	if act.TargetAgentNumber == agentNumber {
		return invalid("cannot trade with self")
	}
	if act.Give.Qty <= 0 || act.Receive.Qty <= 0 {
		return invalid("trade quantities must be positive")
	}

	var targetExists bool
	if err := tx.QueryRow(ctx,
		`SELECT true FROM agents WHERE agent_number = $1`, act.TargetAgentNumber,
	).Scan(&targetExists); err != nil {
		if err == pgx.ErrNoRows {
			return invalid("trade target does not exist")
		}
		return Result{}, err
	}

	keys := inventoryLockOrder([]inventoryKey{
		{agent: agentNumber, resource: act.Give.Resource},
		{agent: act.TargetAgentNumber, resource: act.Give.Resource},
		{agent: act.TargetAgentNumber, resource: act.Receive.Resource},
		{agent: agentNumber, resource: act.Receive.Resource},
	})
	if err := lockInventoryRows(ctx, tx, keys); err != nil {
		return Result{}, err
	}

	if err := moveResource(ctx, tx, agentNumber, act.TargetAgentNumber, act.Give.Resource, act.Give.Qty); err != nil {
		if err == errInsufficientInventory {
			return invalid("insufficient inventory for give leg")
		}
		return Result{}, err
	}
	if err := moveResource(ctx, tx, act.TargetAgentNumber, agentNumber, act.Receive.Resource, act.Receive.Qty); err != nil {
		if err == errInsufficientInventory {
			return invalid("insufficient counterparty inventory for receive leg")
		}
		return Result{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (transaction_type, from_agent, to_agent, resource_type, quantity, created_at)
		VALUES ('trade', $1, $2, $3, $4, now())
	`, agentNumber, act.TargetAgentNumber, act.Give.Resource, act.Give.Qty); err != nil {
		return Result{}, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (transaction_type, from_agent, to_agent, resource_type, quantity, created_at)
		VALUES ('trade', $1, $2, $3, $4, now())
	`, act.TargetAgentNumber, agentNumber, act.Receive.Resource, act.Receive.Qty); err != nil {
		return Result{}, err
	}

	return valid()
}

var errInsufficientInventory = fmt.Errorf("insufficient inventory")

// inventoryKey identifies one agent_inventory row for lock acquisition.
type inventoryKey struct {
	agent    int
	resource models.ResourceType
}

// inventoryLockOrder deduplicates keys and sorts them ascending by
// (agent_id, resource_type) — the canonical lock order every multi-party
// mutation must acquire rows in so two concurrent reciprocal trades can
// never deadlock.
func inventoryLockOrder(keys []inventoryKey) []inventoryKey {
	seen := make(map[inventoryKey]bool, len(keys))
	out := make([]inventoryKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].agent != out[j].agent {
			return out[i].agent < out[j].agent
		}
		return out[i].resource < out[j].resource
	})
	return out
}

// lockInventoryRows takes FOR UPDATE locks on every existing inventory row
// in keys, in the order given. Rows that do not exist yet cannot be locked;
// they are created later by the credit leg's upsert, which conflicts on the
// primary key rather than a row lock.
func lockInventoryRows(ctx context.Context, tx pgx.Tx, keys []inventoryKey) error {
	for _, k := range keys {
		if _, err := tx.Exec(ctx, `
			SELECT quantity FROM agent_inventory
			WHERE agent_number = $1 AND resource_type = $2 FOR UPDATE
		`, k.agent, k.resource); err != nil {
			return err
		}
	}
	return nil
}

func moveResource(ctx context.Context, tx pgx.Tx, from, to int, resource models.ResourceType, qty int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE agent_inventory SET quantity = quantity - $3
		WHERE agent_number = $1 AND resource_type = $2 AND quantity >= $3
	`, from, resource, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errInsufficientInventory
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO agent_inventory (agent_number, resource_type, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_number, resource_type)
		DO UPDATE SET quantity = agent_inventory.quantity + EXCLUDED.quantity
	`, to, resource, qty)
	return err
}
