package usage

import (
	"fmt"
	"time"
)

// ResetLog records a counter reset so the value wiped from the live
// aggregate stays auditable.
type ResetLog struct {
	id        uint
	category  Category
	entityID  uint
	value     uint64
	snapshot  map[string]uint64
	reason    string
	createdAt time.Time
}

// NewResetLog creates a reset record for the given entity. Snapshot holds
// the counter values at the moment of reset, keyed by counter name.
func NewResetLog(category Category, entityID uint, value uint64, snapshot map[string]uint64, reason string) (*ResetLog, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("invalid usage category: %s", category)
	}
	if entityID == 0 {
		return nil, fmt.Errorf("entity ID is required")
	}
	if reason == "" {
		return nil, fmt.Errorf("reset reason is required")
	}
	return &ResetLog{
		category:  category,
		entityID:  entityID,
		value:     value,
		snapshot:  snapshot,
		reason:    reason,
		createdAt: time.Now(),
	}, nil
}

// ReconstructResetLog rebuilds a reset record from persistence.
func ReconstructResetLog(
	id uint,
	category Category,
	entityID uint,
	value uint64,
	snapshot map[string]uint64,
	reason string,
	createdAt time.Time,
) (*ResetLog, error) {
	if id == 0 {
		return nil, fmt.Errorf("reset log ID cannot be zero")
	}
	if !category.IsValid() {
		return nil, fmt.Errorf("invalid usage category: %s", category)
	}
	return &ResetLog{
		id:        id,
		category:  category,
		entityID:  entityID,
		value:     value,
		snapshot:  snapshot,
		reason:    reason,
		createdAt: createdAt,
	}, nil
}

func (rl *ResetLog) ID() uint             { return rl.id }
func (rl *ResetLog) Category() Category   { return rl.category }
func (rl *ResetLog) EntityID() uint       { return rl.entityID }
func (rl *ResetLog) Value() uint64        { return rl.value }
func (rl *ResetLog) Reason() string       { return rl.reason }
func (rl *ResetLog) CreatedAt() time.Time { return rl.createdAt }

// Snapshot returns a copy of the counter snapshot.
func (rl *ResetLog) Snapshot() map[string]uint64 {
	if rl.snapshot == nil {
		return nil
	}
	out := make(map[string]uint64, len(rl.snapshot))
	for k, v := range rl.snapshot {
		out[k] = v
	}
	return out
}

// SetID sets the record ID after insertion.
func (rl *ResetLog) SetID(id uint) error {
	if rl.id != 0 {
		return fmt.Errorf("reset log ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("reset log ID cannot be zero")
	}
	rl.id = id
	return nil
}
