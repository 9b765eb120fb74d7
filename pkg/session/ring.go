package session

// Ring is the bounded output buffer behind one session. Every appended byte
// gets the next absolute cursor; the head is evicted once the buffer exceeds
// its cap, but cursors are never reused or renumbered.
//
// Cursor convention: after n bytes total have been appended the latest cursor
// is n, and the byte appended i-th (1-based) carries cursor i. ReadSince(c)
// returns the bytes with cursors in (c, latest].
type Ring struct {
	cap   int
	buf   []byte
	end   int64 // cursor of the last byte in buf
	total int64 // == end; kept separate for clarity when buf is empty
}

// NewRing creates a ring retaining at most cap bytes. cap must be positive.
func NewRing(cap int) *Ring {
	return &Ring{cap: cap}
}

// Append adds bytes and returns the cursor of the chunk's last byte.
func (r *Ring) Append(p []byte) int64 {
	if len(p) == 0 {
		return r.end
	}
	r.buf = append(r.buf, p...)
	r.end += int64(len(p))
	r.total = r.end
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
	return r.end
}

// Latest returns the cursor of the most recently appended byte; zero when
// nothing was appended yet.
func (r *Ring) Latest() int64 { return r.end }

// Oldest returns the cursor of the oldest retained byte; zero when the ring
// is empty.
func (r *Ring) Oldest() int64 {
	if len(r.buf) == 0 {
		return 0
	}
	return r.end - int64(len(r.buf)) + 1
}

// ReadSince returns the retained bytes with cursors strictly greater than
// since, the cursor of the returned chunk's last byte, and whether bytes
// below the retention horizon were requested (truncated replay).
func (r *Ring) ReadSince(since int64) (chunk []byte, endCursor int64, truncated bool) {
	if len(r.buf) == 0 {
		return nil, r.end, since < r.end
	}
	first := r.end - int64(len(r.buf)) + 1
	if since+1 < first {
		truncated = true
		since = first - 1
	}
	if since >= r.end {
		return nil, r.end, truncated
	}
	offset := since - (first - 1)
	out := make([]byte, int64(len(r.buf))-offset)
	copy(out, r.buf[offset:])
	return out, r.end, truncated
}
