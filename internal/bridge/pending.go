package bridge

import (
	"sort"
	"sync"
	"time"
)

// QueryCallback receives the outcome of a submitted query exactly once.
// result holds the decoded payload on success; err is non-nil on failure.
type QueryCallback func(result any, err error)

// pendingQuery is one in-flight request awaiting its reply.
type pendingQuery struct {
	id  int64
	sql string

	// submittedAt is captured at submission and carries both the wall
	// clock (for transport math against worker epoch timestamps) and the
	// monotonic reading (for end-to-end elapsed).
	submittedAt time.Time

	done QueryCallback
}

// pendingTable tracks in-flight queries by message id. Inserts happen on
// submitter goroutines while removals happen on the run loop; the mutex
// is held for map operations only, never across a callback.
type pendingTable struct {
	mu sync.Mutex
	m  map[int64]*pendingQuery
}

func newPendingTable() *pendingTable {
	return &pendingTable{m: make(map[int64]*pendingQuery)}
}

func (t *pendingTable) put(pq *pendingQuery) {
	t.mu.Lock()
	t.m[pq.id] = pq
	t.mu.Unlock()
}

// take removes and returns the entry for id. A missing id means the query
// was already settled or never existed; the caller drops such replies.
func (t *pendingTable) take(id int64) (*pendingQuery, bool) {
	t.mu.Lock()
	pq, ok := t.m[id]
	if ok {
		delete(t.m, id)
	}
	t.mu.Unlock()
	return pq, ok
}

// drain empties the table and returns the removed entries in submission
// order.
func (t *pendingTable) drain() []*pendingQuery {
	t.mu.Lock()
	out := make([]*pendingQuery, 0, len(t.m))
	for _, pq := range t.m {
		out = append(out, pq)
	}
	t.m = make(map[int64]*pendingQuery)
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
