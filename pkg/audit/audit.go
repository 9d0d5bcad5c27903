// Package audit implements the append-only session audit trail.
//
// Entries are keyed by (session id, sequence) and hash-chained per session:
// each entry carries the SHA-256 digest of the canonical form of the
// preceding entry, making after-the-fact mutation detectable. The log is
// write-only from the core's perspective; queries never mutate it.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/returns-core/pkg/canonicalize"
	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

var (
	ErrChainBroken = errors.New("audit chain is broken")
)

// Entry is one immutable audit record.
type Entry struct {
	SessionID   string                   `json:"session_id"`
	Seq         uint64                   `json:"seq"`
	Timestamp   time.Time                `json:"timestamp"`
	Actor       contracts.ActorRole      `json:"actor"`
	Type        contracts.AuditEntryType `json:"type"`
	Payload     json.RawMessage          `json:"payload"`
	PayloadHash string                   `json:"payload_hash"`
	PrevHash    string                   `json:"prev_hash"`
	EntryHash   string                   `json:"entry_hash"`
}

// Log is the append-only audit interface. Append must be durable before
// the orchestrator begins the next step of the same session.
type Log interface {
	// Append serializes payload and appends one entry for the session,
	// assigning the next sequence number and chaining the hash.
	Append(ctx context.Context, sessionID string, actor contracts.ActorRole, typ contracts.AuditEntryType, payload any) (*Entry, error)

	// Session returns all entries for a session in sequence order.
	Session(ctx context.Context, sessionID string) ([]Entry, error)

	// VerifyChain checks sequence continuity and hash linkage for one
	// session, returning ErrChainBroken on any mismatch.
	VerifyChain(ctx context.Context, sessionID string) error
}

// build assembles and hashes a new entry following prev (which may be nil
// for the genesis entry of a session).
func build(sessionID string, actor contracts.ActorRole, typ contracts.AuditEntryType, payload any, prev *Entry, now time.Time) (*Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("audit: encode payload: %w", err)
	}

	e := &Entry{
		SessionID:   sessionID,
		Seq:         1,
		Timestamp:   now.UTC(),
		Actor:       actor,
		Type:        typ,
		Payload:     raw,
		PayloadHash: canonicalize.HashBytes(raw),
	}
	if prev != nil {
		e.Seq = prev.Seq + 1
		e.PrevHash = prev.EntryHash
	}

	hash, err := entryHash(e)
	if err != nil {
		return nil, err
	}
	e.EntryHash = hash
	return e, nil
}

// entryHash digests the canonical form of the entry minus its own hash.
func entryHash(e *Entry) (string, error) {
	hashable := struct {
		SessionID   string                   `json:"session_id"`
		Seq         uint64                   `json:"seq"`
		Timestamp   time.Time                `json:"timestamp"`
		Actor       contracts.ActorRole      `json:"actor"`
		Type        contracts.AuditEntryType `json:"type"`
		PayloadHash string                   `json:"payload_hash"`
		PrevHash    string                   `json:"prev_hash"`
	}{e.SessionID, e.Seq, e.Timestamp, e.Actor, e.Type, e.PayloadHash, e.PrevHash}

	hash, err := canonicalize.Hash(hashable)
	if err != nil {
		return "", fmt.Errorf("audit: hash entry: %w", err)
	}
	return hash, nil
}

// verify checks an ordered slice of entries for one session.
func verify(entries []Entry) error {
	for i := range entries {
		e := &entries[i]
		if e.Seq != uint64(i+1) {
			return fmt.Errorf("%w: entry %d has seq %d", ErrChainBroken, i, e.Seq)
		}
		if i == 0 {
			if e.PrevHash != "" {
				return fmt.Errorf("%w: genesis entry has prev hash", ErrChainBroken)
			}
		} else if e.PrevHash != entries[i-1].EntryHash {
			return fmt.Errorf("%w: link mismatch at seq %d", ErrChainBroken, e.Seq)
		}
		if e.PayloadHash != canonicalize.HashBytes(e.Payload) {
			return fmt.Errorf("%w: payload tampered at seq %d", ErrChainBroken, e.Seq)
		}
		computed, err := entryHash(e)
		if err != nil {
			return err
		}
		if computed != e.EntryHash {
			return fmt.Errorf("%w: entry hash mismatch at seq %d", ErrChainBroken, e.Seq)
		}
	}
	return nil
}
