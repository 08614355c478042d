// Package difficulty retargets the proof of work difficulty from the
// realized block interval timing.
package difficulty

import (
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// AncestorFunc returns the header at the specified number on the branch
// being evaluated.
type AncestorFunc func(number uint64) (database.BlockHeader, bool)

// Controller holds the retarget parameters of a chain.
type Controller struct {
	Interval   uint64        // Number of blocks between retargets.
	TargetTime time.Duration // Desired time between blocks.
	Min        uint          // Lowest difficulty allowed.
	Max        uint          // Highest difficulty allowed.
}

// Retarget moves the difficulty at most one step based on how long the last
// interval took compared to the expected time.
func (c Controller) Retarget(current uint, actual time.Duration) uint {
	expected := time.Duration(c.Interval) * c.TargetTime

	switch {
	case actual*4 < expected*3 && current < c.Max:
		return current + 1
	case actual*2 > expected*3 && current > c.Min:
		return current - 1
	}

	return current
}

// IsRetargetHeight reports whether the block at this number closes an
// interval.
func (c Controller) IsRetargetHeight(number uint64) bool {
	return c.Interval > 0 && number > 0 && number%c.Interval == 0
}

// Next returns the difficulty required of the child of the specified parent.
// The result only depends on the parent and the ancestor Interval blocks
// before it, so evaluating the same parent twice always agrees.
func (c Controller) Next(parent database.BlockHeader, ancestor AncestorFunc) uint {
	if !c.IsRetargetHeight(parent.Number) {
		return parent.Difficulty
	}

	base, exists := ancestor(parent.Number - c.Interval)
	if !exists {
		return parent.Difficulty
	}

	actual := time.Duration(int64(parent.TimeStamp)-int64(base.TimeStamp)) * time.Millisecond

	return c.Retarget(parent.Difficulty, actual)
}
