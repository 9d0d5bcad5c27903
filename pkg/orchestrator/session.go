package orchestrator

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

// verdictRecord is the most recent eligibility result for a session,
// keyed by what was evaluated. Authorization creation re-validates its
// precondition against this record rather than re-running the evaluator.
type verdictRecord struct {
	OrderNumber string
	ItemsKey    string
	Reason      string
	Verdict     contracts.Verdict
}

// session is the per-session orchestrator state. Steps within one session
// are strictly sequential: the mutex is held for the whole step, audit
// append included.
type session struct {
	mu          sync.Mutex
	steps       uint64
	failures    int
	escalated   bool
	lastVerdict *verdictRecord
}

// sessionIdleTimeout bounds how long abandoned session state is retained.
// Session ids arrive from the HTTP boundary, so the registry cannot grow
// with them forever. Escalated sessions are exempt: they must keep
// rejecting steps for as long as the ticket is open.
const sessionIdleTimeout = 30 * time.Minute

type sessionEntry struct {
	session  *session
	lastSeen time.Time
}

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	now      func() time.Time
}

func newSessionRegistry() *sessionRegistry {
	r := &sessionRegistry{
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
	go r.cleanupLoop()
	return r
}

func (r *sessionRegistry) get(sessionID string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		e = &sessionEntry{session: &session{}}
		r.sessions[sessionID] = e
	}
	e.lastSeen = r.now()
	return e.session
}

// cleanupLoop removes idle sessions to keep the registry bounded. Checks
// every minute.
func (r *sessionRegistry) cleanupLoop() {
	for {
		time.Sleep(1 * time.Minute)
		r.evictIdle(sessionIdleTimeout)
	}
}

func (r *sessionRegistry) evictIdle(maxIdle time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-maxIdle)
	for id, e := range r.sessions {
		if !e.lastSeen.Before(cutoff) {
			continue
		}
		e.session.mu.Lock()
		escalated := e.session.escalated
		e.session.mu.Unlock()
		if !escalated {
			delete(r.sessions, id)
		}
	}
}

func (r *sessionRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// itemsKey builds an order-insensitive key for a selected item set.
func itemsKey(itemIDs []string) string {
	ids := make([]string, len(itemIDs))
	copy(ids, itemIDs)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func (v *verdictRecord) matches(orderNumber string, itemIDs []string, reason string) bool {
	return v.OrderNumber == orderNumber && v.ItemsKey == itemsKey(itemIDs) && v.Reason == reason
}
