package diffreport

// ring holds the last few common lines seen in-between hunks, so a new hunk
// can be backfilled with context when it opens. It will happily overwrite
// values past its capacity, it won't complain about exceeding the size.
type ring struct {
	lines []string
	ridx  int
	widx  int
	len   int
	sz    int
}

func newRing(sz int) *ring {
	return &ring{
		lines: make([]string, sz),
		sz:    sz,
	}
}

func (r *ring) incr(val int) int {
	return (val + 1) % r.sz
}

func (r *ring) enqueue(line string) {
	if r.len == r.sz {
		r.ridx = r.incr(r.ridx)
	} else {
		r.len++
	}
	r.lines[r.widx] = line
	r.widx = r.incr(r.widx)
}

func (r *ring) dequeueAll() []string {
	var lines []string
	for r.len > 0 {
		lines = append(lines, r.lines[r.ridx])
		r.ridx = r.incr(r.ridx)
		r.len--
	}
	return lines
}
