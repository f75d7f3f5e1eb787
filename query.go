package beacon

import (
	"sync"
	"time"
)

// queryDeadline is the maximum time a broadcast query waits for replies
// before it is considered expired, matching the original's MAX_WAIT.
const queryDeadline = 2 * time.Second

// BroadcastQuery tracks the replies to one "query" operation: a request the
// coordinator fans out to every connected subscriber and then waits on,
// bounded by queryDeadline, for as many replies as were expected at
// creation time.
//
// Grounded on the original's QueryResponses, which pairs a
// threading.Condition with a plain list of replies. Wait here uses a
// closed-channel signal instead of sync.Cond: a close is visible to a
// select arriving either before or after it, so there is no window in
// which a reply arriving between an expiry check and a park on the
// condition variable gets lost.
type BroadcastQuery struct {
	ID       string
	created  time.Time
	expected int

	mu      sync.Mutex
	replied map[string]bool
	replies []any
	changed chan struct{}
}

func newBroadcastQuery(id string, expected int, now time.Time) *BroadcastQuery {
	return &BroadcastQuery{
		ID:       id,
		created:  now,
		expected: expected,
		replied:  make(map[string]bool),
		changed:  make(chan struct{}),
	}
}

// expired reports whether the query has outlived queryDeadline as of now.
func (q *BroadcastQuery) expired(now time.Time) bool {
	return now.Sub(q.created) >= queryDeadline
}

// addResponse records one subscriber's reply and reports whether it was
// accepted. It is rejected — "not accepted" in spec.md §4.4's terms — when
// the query has already expired or subscriberAddr has already replied;
// the caller (the coordinator's msg operation) treats a rejection as "try
// the next query". An accepted reply wakes any goroutine blocked in Wait.
func (q *BroadcastQuery) addResponse(subscriberAddr string, reply any) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.expired(time.Now()) || q.replied[subscriberAddr] {
		return false
	}
	q.replied[subscriberAddr] = true
	q.replies = append(q.replies, reply)
	close(q.changed)
	q.changed = make(chan struct{})
	return true
}

// Wait blocks until either expected replies have arrived or the deadline
// passes, then returns the replies collected so far. Each iteration
// snapshots the current "changed" channel under the lock and then selects
// on it against the remaining time budget, so a reply recorded at any
// point — including between the snapshot and the select — is never
// missed: a closed channel is always immediately receivable.
//
// Called from the HTTP handler goroutine that issued the query, never
// from the Coordinator.
func (q *BroadcastQuery) Wait() []any {
	deadline := q.created.Add(queryDeadline)
	for {
		q.mu.Lock()
		done := len(q.replies) >= q.expected
		changed := q.changed
		q.mu.Unlock()
		if done {
			break
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		select {
		case <-changed:
		case <-time.After(remaining):
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]any, len(q.replies))
	copy(out, q.replies)
	return out
}

// queryTracker owns the set of in-flight broadcast queries, in insertion
// order (needed so the msg operation can walk them oldest-first per
// spec.md §4.1). It is mutated only by the Coordinator goroutine via
// add/clean; the BroadcastQuery values themselves are safe for
// concurrent use by any HTTP handler goroutine that is waiting on one.
type queryTracker struct {
	order []string
	byID  map[string]*BroadcastQuery
}

func newQueryTracker() *queryTracker {
	return &queryTracker{byID: make(map[string]*BroadcastQuery)}
}

func (t *queryTracker) add(q *BroadcastQuery) {
	if _, exists := t.byID[q.ID]; !exists {
		t.order = append(t.order, q.ID)
	}
	t.byID[q.ID] = q
}

func (t *queryTracker) get(id string) (*BroadcastQuery, bool) {
	q, ok := t.byID[id]
	return q, ok
}

// list returns the tracked queries oldest-first.
func (t *queryTracker) list() []*BroadcastQuery {
	queries := make([]*BroadcastQuery, 0, len(t.order))
	for _, id := range t.order {
		queries = append(queries, t.byID[id])
	}
	return queries
}

// clean drops every tracked query that has passed its deadline, matching
// the coordinator's clean_queries operation. Called before add_query so a
// stale query never lingers past a fresh one for the same id.
func (t *queryTracker) clean(now time.Time) {
	kept := t.order[:0]
	for _, id := range t.order {
		if t.byID[id].expired(now) {
			delete(t.byID, id)
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
}
