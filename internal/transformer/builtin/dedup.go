package builtin

// KeySet tracks keys already seen so callers can keep the first occurrence of
// each key and drop the rest (keep-first dedup).
//
// The zero value is not usable; call NewKeySet.
type KeySet[K comparable] struct {
	seen map[K]struct{}
}

// NewKeySet returns an empty KeySet with room for sizeHint keys.
func NewKeySet[K comparable](sizeHint int) *KeySet[K] {
	return &KeySet[K]{seen: make(map[K]struct{}, sizeHint)}
}

// Add records k and reports whether it was new.
func (s *KeySet[K]) Add(k K) bool {
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}

// Has reports whether k was added before.
func (s *KeySet[K]) Has(k K) bool {
	_, ok := s.seen[k]
	return ok
}

// Len returns the number of distinct keys added.
func (s *KeySet[K]) Len() int { return len(s.seen) }
