package engine

// A Reorder is one row of the end-of-run reorder attribution table: the
// number of packets for a flow that arrived after their sequence numbers had
// already been recorded lost in an older aggregation group.
type Reorder struct {
	Source string
	Group  uint32
	Count  uint32
}

type reorderKey struct {
	source string
	group  uint32
}

// A reorderTable accumulates reorder counts per (flow, group), preserving
// first-seen order for the final dump.
type reorderTable struct {
	index map[reorderKey]int
	rows  []Reorder
}

func newReorderTable() reorderTable {
	return reorderTable{index: make(map[reorderKey]int)}
}

func (t *reorderTable) add(source string, group uint32) {
	k := reorderKey{source, group}
	if i, ok := t.index[k]; ok {
		t.rows[i].Count++
		return
	}
	t.index[k] = len(t.rows)
	t.rows = append(t.rows, Reorder{source, group, 1})
}

// snapshot returns a copy of the table rows in first-seen order.
func (t *reorderTable) snapshot() (rs []Reorder) {
	rs = make([]Reorder, len(t.rows))
	copy(rs, t.rows)
	return
}
