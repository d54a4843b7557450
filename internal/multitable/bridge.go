package multitable

import "movieetl/internal/transformer/builtin"

// Association links a movie to a dimension entity.
type Association struct {
	Left  string // movie id
	Right int64  // entity id
}

// Bridge accumulates the rows of one many-to-many table. Exact duplicate
// pairs collapse to the first one recorded.
type Bridge struct {
	seen *builtin.KeySet[Association]
	rows []Association
}

func NewBridge() *Bridge {
	return &Bridge{seen: builtin.NewKeySet[Association](1024)}
}

// Record adds a candidate pair.
func (b *Bridge) Record(left string, right int64) {
	a := Association{Left: left, Right: right}
	if b.seen.Add(a) {
		b.rows = append(b.rows, a)
	}
}

// Finalize returns the distinct pairs in first-seen order.
func (b *Bridge) Finalize() []Association {
	out := make([]Association, len(b.rows))
	copy(out, b.rows)
	return out
}

func (b *Bridge) Len() int { return len(b.rows) }
