package audit

import (
	"context"
	"sync"
	"time"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

// MemoryLog is an in-process Log for tests and single-node development.
type MemoryLog struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
	clock    func() time.Time
}

// NewMemoryLog returns an empty in-memory audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		sessions: make(map[string][]Entry),
		clock:    time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (l *MemoryLog) WithClock(clock func() time.Time) *MemoryLog {
	l.clock = clock
	return l
}

func (l *MemoryLog) Append(ctx context.Context, sessionID string, actor contracts.ActorRole, typ contracts.AuditEntryType, payload any) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var prev *Entry
	if chain := l.sessions[sessionID]; len(chain) > 0 {
		prev = &chain[len(chain)-1]
	}

	e, err := build(sessionID, actor, typ, payload, prev, l.clock())
	if err != nil {
		return nil, err
	}

	l.sessions[sessionID] = append(l.sessions[sessionID], *e)
	out := *e
	return &out, nil
}

func (l *MemoryLog) Session(ctx context.Context, sessionID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	chain := l.sessions[sessionID]
	out := make([]Entry, len(chain))
	copy(out, chain)
	return out, nil
}

func (l *MemoryLog) VerifyChain(ctx context.Context, sessionID string) error {
	entries, err := l.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	return verify(entries)
}
