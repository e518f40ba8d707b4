package scope

import (
	"golang.org/x/exp/slices"
)

// sortIds keeps subscribers notified in subscription order.
func sortIds(ids []uint64) {
	slices.Sort(ids)
}
