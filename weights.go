package hashgraph

import (
	"errors"
	"fmt"
	"sort"
)

const (
	// MaxTotalWeight keeps 3*total comfortably inside a uint64
	MaxTotalWeight = uint64(1) << 60
)

var (
	ErrEmptyWeightTable  = errors.New("empty weight table")
	ErrZeroWeight        = errors.New("node weight must be positive")
	ErrTotalWeightTooBig = errors.New("total weight overflow")
)

// WeightTable is the stake table consensus runs against. Nodes are assigned
// a dense index in ascending node id order so that every node derives the same
// indices from the same table.
type WeightTable struct {
	ids     []Hash
	weights []uint64
	index   map[Hash]int
	total   uint64
}

// NewWeightTable creates a WeightTable from the node id -> weight map supplied
// by membership.
func NewWeightTable(weights map[Hash]uint64) (*WeightTable, error) {
	if len(weights) == 0 {
		return nil, ErrEmptyWeightTable
	}

	wt := &WeightTable{
		ids:     make([]Hash, 0, len(weights)),
		weights: make([]uint64, len(weights)),
		index:   make(map[Hash]int, len(weights)),
	}
	for id := range weights {
		wt.ids = append(wt.ids, id)
	}
	sort.Slice(wt.ids, func(i, j int) bool { return wt.ids[i].Less(wt.ids[j]) })

	for i, id := range wt.ids {
		w := weights[id]
		if w == 0 {
			return nil, fmt.Errorf("node %s: %w", id.HexShort(), ErrZeroWeight)
		}
		if wt.total > MaxTotalWeight-w {
			return nil, fmt.Errorf("%w: exceeds %d", ErrTotalWeightTooBig, MaxTotalWeight)
		}
		wt.weights[i] = w
		wt.index[id] = i
		wt.total += w
	}
	return wt, nil
}

// Len is the number of nodes
func (wt *WeightTable) Len() int { return len(wt.ids) }

// Total is the sum of all weights
func (wt *WeightTable) Total() uint64 { return wt.total }

// Index returns the dense index for id
func (wt *WeightTable) Index(id Hash) (int, bool) {
	i, ok := wt.index[id]
	return i, ok
}

// ID returns the node id at index i
func (wt *WeightTable) ID(i int) Hash { return wt.ids[i] }

// Weight returns the weight of the node at index i
func (wt *WeightTable) Weight(i int) uint64 { return wt.weights[i] }

// IDs returns a copy of the node ids in index order
func (wt *WeightTable) IDs() []Hash {
	ids := make([]Hash, len(wt.ids))
	copy(ids, wt.ids)
	return ids
}

// IsSupermajority is true if w is strictly more than 2/3 of the total weight
func (wt *WeightTable) IsSupermajority(w uint64) bool {
	return w*3 > wt.total*2
}
