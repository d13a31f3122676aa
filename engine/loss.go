package engine

import "sort"

// An interval is an inclusive range of sequence numbers presumed lost, tagged
// with the aggregation group that was current when the gap was detected.
type interval struct {
	start uint32
	end   uint32
	group uint32
}

func (iv interval) len() uint32 {
	return iv.end - iv.start + 1
}

// A lossList is a flow's open loss intervals, sorted ascending by start and
// mutually disjoint. Because the intervals are disjoint, the ends are sorted
// too, which both binary searches below rely on.
type lossList []interval

// insert records [start, end] as lost under group. Overlapping or contiguous
// ranges from the same group are merged. Overlap with another group's range
// is clipped so an already recorded loss keeps its original attribution.
func (l *lossList) insert(start, end, group uint32) {
	if start > end {
		return
	}
	s := *l

	i := sort.Search(len(s), func(i int) bool { return s[i].start > start })

	if i > 0 {
		p := s[i-1]
		if p.group == group && uint64(p.end)+1 >= uint64(start) {
			if end <= p.end {
				return // already covered
			}
			start = p.start
			i-- // absorb the predecessor into the merged range
		} else if p.end >= start {
			if p.end >= end {
				return
			}
			start = p.end + 1
		}
	}

	// absorb successors covered by or contiguous with the new range
	j := i
	for j < len(s) {
		n := s[j]
		if uint64(n.start) > uint64(end)+1 {
			break
		}
		if n.group != group {
			if n.start > end {
				break
			}
			end = n.start - 1 // clip at the next foreign range
			break
		}
		if n.end > end {
			end = n.end
		}
		j++
	}
	if start > end {
		return
	}

	iv := interval{start, end, group}
	if j > i {
		s[i] = iv
		s = append(s[:i+1], s[j:]...)
	} else {
		s = append(s, interval{})
		copy(s[i+1:], s[i:])
		s[i] = iv
	}
	*l = s
}

// fill marks seq as observed after all. If seq lies in an open interval, the
// interval is removed, trimmed or split, and the interval's group tag is
// returned with found true.
func (l *lossList) fill(seq uint32) (group uint32, found bool) {
	s := *l

	i := sort.Search(len(s), func(i int) bool { return s[i].end >= seq })
	if i == len(s) || s[i].start > seq {
		return
	}

	iv := s[i]
	group = iv.group
	found = true

	switch {
	case iv.start == seq && iv.end == seq:
		*l = append(s[:i], s[i+1:]...)
	case iv.start == seq:
		s[i].start = seq + 1
	case iv.end == seq:
		s[i].end = seq - 1
	default:
		// interior hit: split, both halves keep the group tag
		s = append(s, interval{})
		copy(s[i+1:], s[i:])
		s[i].end = seq - 1
		s[i+1].start = seq + 1
		*l = s
	}

	return
}

// lostInGroup returns the number of sequence numbers recorded lost under
// group.
func (l lossList) lostInGroup(group uint32) (n uint32) {
	for _, iv := range l {
		if iv.group == group {
			n += iv.len()
		}
	}
	return
}

// dropGroups removes every interval whose group tag lies in [gpStart, gpEnd]
// and returns the number of intervals removed.
func (l *lossList) dropGroups(gpStart, gpEnd uint32) (removed int) {
	s := (*l)[:0]
	for _, iv := range *l {
		if iv.group >= gpStart && iv.group <= gpEnd {
			removed++
			continue
		}
		s = append(s, iv)
	}
	*l = s
	return
}
