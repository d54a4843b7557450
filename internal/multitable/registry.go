package multitable

import "movieetl/internal/transformer/builtin"

// Entity is one row of a dimension table (genres, production companies).
type Entity struct {
	ID   int64
	Name string
}

// Registry accumulates the entities of one dimension. The first name recorded
// for an id wins; later records with the same id are ignored.
type Registry struct {
	seen *builtin.KeySet[int64]
	rows []Entity
}

func NewRegistry() *Registry {
	return &Registry{seen: builtin.NewKeySet[int64](256)}
}

// Record adds a candidate entity.
func (r *Registry) Record(id int64, name string) {
	if r.seen.Add(id) {
		r.rows = append(r.rows, Entity{ID: id, Name: name})
	}
}

// Finalize returns the distinct entities in first-seen order.
func (r *Registry) Finalize() []Entity {
	out := make([]Entity, len(r.rows))
	copy(out, r.rows)
	return out
}

func (r *Registry) Len() int { return len(r.rows) }
