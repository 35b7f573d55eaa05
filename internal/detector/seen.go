package detector

// SeenSet is the ordered, append-only record of txids already processed on
// one chain. It is owned by a single reconciler and is not safe for
// concurrent use.
type SeenSet struct {
	order []string
	index map[string]struct{}
}

func NewSeenSet(txids ...string) *SeenSet {
	s := &SeenSet{index: make(map[string]struct{}, len(txids))}
	s.Add(txids...)
	return s
}

// Add appends txids that are not yet present and returns the ones added.
func (s *SeenSet) Add(txids ...string) []string {
	added := make([]string, 0, len(txids))
	for _, txid := range txids {
		if txid == "" {
			continue
		}
		if _, ok := s.index[txid]; ok {
			continue
		}
		s.index[txid] = struct{}{}
		s.order = append(s.order, txid)
		added = append(added, txid)
	}
	return added
}

func (s *SeenSet) Has(txid string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[txid]
	return ok
}

func (s *SeenSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// IDs returns the txids in insertion order.
func (s *SeenSet) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Last returns the most recently added txid.
func (s *SeenSet) Last() (string, bool) {
	if s == nil || len(s.order) == 0 {
		return "", false
	}
	return s.order[len(s.order)-1], true
}
