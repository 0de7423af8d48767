package btree

import (
	"sync/atomic"

	"github.com/FocuswithJustin/sqlforensic/internal/logging"
)

// Unowned is returned by Owner for pages nobody has claimed.
const Unowned = -1

// Assignments maps page numbers to the index of the descriptor that owns
// them. Each slot is written at most once; later claims by a different
// owner are logged and ignored.
type Assignments struct {
	owners    []atomic.Int32 // owner+1, 0 means unowned
	conflicts atomic.Int64
}

// NewAssignments creates an assignment table for pages 1..pageCount.
func NewAssignments(pageCount uint32) *Assignments {
	return &Assignments{owners: make([]atomic.Int32, int(pageCount)+1)}
}

// Claim assigns pageNum to owner if it is still unowned. It returns the
// owner that holds the page afterwards and whether that is the caller.
func (a *Assignments) Claim(pageNum uint32, owner int) (int, bool) {
	if int(pageNum) >= len(a.owners) || pageNum == 0 || owner < 0 {
		return Unowned, false
	}
	slot := &a.owners[pageNum]
	if slot.CompareAndSwap(0, int32(owner+1)) {
		return owner, true
	}
	existing := int(slot.Load()) - 1
	if existing == owner {
		return owner, true
	}
	a.conflicts.Add(1)
	logging.Anomaly("page_claimed_twice", pageNum, "owner", existing, "claimant", owner)
	return existing, false
}

// Owner returns the owner of pageNum or Unowned.
func (a *Assignments) Owner(pageNum uint32) int {
	if int(pageNum) >= len(a.owners) {
		return Unowned
	}
	return int(a.owners[pageNum].Load()) - 1
}

// Conflicts returns how many claims lost to an earlier, different owner.
func (a *Assignments) Conflicts() int64 {
	return a.conflicts.Load()
}

// Pages returns the number of page slots.
func (a *Assignments) Pages() uint32 {
	return uint32(len(a.owners) - 1)
}
