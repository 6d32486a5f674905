package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sophosia/internal/domain"
)

// EventEmitter allows the approval queue to notify the frontend.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// Approval events.
const (
	EventApprovalRequired  = "mcp:approval-required"
	EventApprovalDismissed = "mcp:approval-dismissed"
)

// Approval statuses of stored requests.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// PendingAction represents a destructive operation awaiting user approval.
type PendingAction struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Metadata    string `json:"metadata"` // JSON with extra context (e.g. annotation IDs)
}

// storedApproval is the body of an approval record in the document store.
type storedApproval struct {
	PendingAction
	Status string `json:"status"`
}

// actionResult is sent through the channel when user approves/rejects.
type actionResult struct {
	approved bool
}

// ApprovalQueue manages human-in-the-loop approval for destructive MCP tool calls.
// It supports two modes:
//   - In-process (Wails app running MCP): uses channels + Wails events
//   - Store-based (standalone MCP): writes approval records to the document
//     store and polls them until the app resolves them
type ApprovalQueue struct {
	mu      sync.Mutex
	pending map[string]chan actionResult
	ctx     context.Context
	emitter EventEmitter
	timeout time.Duration
	poll    time.Duration
	// Store-based mode for standalone MCP (cross-process IPC)
	docs domain.DocStore
}

func NewApprovalQueue(ctx context.Context, emitter EventEmitter) *ApprovalQueue {
	return &ApprovalQueue{
		pending: make(map[string]chan actionResult),
		ctx:     ctx,
		emitter: emitter,
		timeout: 120 * time.Second,
		poll:    500 * time.Millisecond,
	}
}

// SetStore enables store-based approval mode for standalone MCP.
func (q *ApprovalQueue) SetStore(docs domain.DocStore) {
	q.docs = docs
}

// Request sends an approval request and blocks until approved/rejected.
// metadata is optional JSON with extra context (e.g. annotation IDs for highlighting).
func (q *ApprovalQueue) Request(tool, description string, metadata ...string) (bool, error) {
	id := uuid.New().String()
	meta := "{}"
	if len(metadata) > 0 && metadata[0] != "" {
		meta = metadata[0]
	}
	action := PendingAction{
		ID:          id,
		Tool:        tool,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Metadata:    meta,
	}

	if q.docs != nil {
		return q.requestViaStore(action)
	}
	return q.requestViaChannel(action)
}

// requestViaStore writes a pending approval record and polls until resolved.
func (q *ApprovalQueue) requestViaStore(action PendingAction) (bool, error) {
	if err := putApproval(q.ctx, q.docs, "", storedApproval{PendingAction: action, Status: StatusPending}); err != nil {
		return false, fmt.Errorf("insert approval: %w", err)
	}
	defer q.discard(action.ID)

	deadline := time.Now().Add(q.timeout)
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if time.Now().After(deadline) {
				return false, fmt.Errorf("action timed out after %s: %s", q.timeout, action.Tool)
			}
			rec, _, err := getApproval(q.ctx, q.docs, action.ID)
			if err != nil {
				continue
			}
			switch rec.Status {
			case StatusApproved:
				return true, nil
			case StatusRejected:
				return false, fmt.Errorf("action rejected by user: %s", action.Tool)
			}
			// Still pending, keep polling
		case <-q.ctx.Done():
			return false, fmt.Errorf("context cancelled")
		}
	}
}

// discard removes a resolved or abandoned approval record.
func (q *ApprovalQueue) discard(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if doc, err := q.docs.Get(ctx, id); err == nil {
		_ = q.docs.Remove(ctx, id, doc.Rev)
	}
}

// requestViaChannel is the in-process mode using Wails events.
func (q *ApprovalQueue) requestViaChannel(action PendingAction) (bool, error) {
	ch := make(chan actionResult, 1)

	q.mu.Lock()
	q.pending[action.ID] = ch
	q.mu.Unlock()

	// Notify frontend
	q.emitter.Emit(q.ctx, EventApprovalRequired, action)

	// Block until approved, rejected, or timeout
	select {
	case result := <-ch:
		q.cleanup(action.ID)
		if !result.approved {
			return false, fmt.Errorf("action rejected by user: %s", action.Tool)
		}
		return true, nil
	case <-time.After(q.timeout):
		q.cleanup(action.ID)
		// Notify frontend to dismiss
		q.emitter.Emit(q.ctx, EventApprovalDismissed, map[string]string{"id": action.ID})
		return false, fmt.Errorf("action timed out after %s: %s", q.timeout, action.Tool)
	case <-q.ctx.Done():
		q.cleanup(action.ID)
		return false, fmt.Errorf("context cancelled")
	}
}

// Approve marks a pending action as approved (in-process mode).
func (q *ApprovalQueue) Approve(actionID string) {
	q.resolve(actionID, true)
}

// Reject marks a pending action as rejected (in-process mode).
func (q *ApprovalQueue) Reject(actionID string) {
	q.resolve(actionID, false)
}

func (q *ApprovalQueue) resolve(actionID string, approved bool) {
	q.mu.Lock()
	ch, ok := q.pending[actionID]
	q.mu.Unlock()
	if ok {
		select {
		case ch <- actionResult{approved: approved}:
		default:
		}
	}
}

func (q *ApprovalQueue) cleanup(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}

// ── Store-side helpers used by the app process ────────────

// PendingApprovals lists the approval requests written by a standalone
// MCP process that are still waiting for the user.
func PendingApprovals(ctx context.Context, docs domain.DocStore) ([]PendingAction, error) {
	found, err := docs.Find(ctx, domain.Selector{DataType: domain.DataTypeApproval})
	if err != nil {
		return nil, err
	}
	var out []PendingAction
	for _, d := range found {
		var rec storedApproval
		if err := json.Unmarshal(d.Body, &rec); err != nil || rec.Status != StatusPending {
			continue
		}
		out = append(out, rec.PendingAction)
	}
	return out, nil
}

// ResolveApproval records the user's decision on a stored request.
func ResolveApproval(ctx context.Context, docs domain.DocStore, id string, approved bool) error {
	rec, rev, err := getApproval(ctx, docs, id)
	if err != nil {
		return err
	}
	if rec.Status != StatusPending {
		return nil
	}
	rec.Status = StatusRejected
	if approved {
		rec.Status = StatusApproved
	}
	return putApproval(ctx, docs, rev, *rec)
}

func getApproval(ctx context.Context, docs domain.DocStore, id string) (*storedApproval, string, error) {
	doc, err := docs.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if doc.DataType != domain.DataTypeApproval {
		return nil, "", fmt.Errorf("approval %s: %w", id, domain.ErrNotFound)
	}
	var rec storedApproval
	if err := json.Unmarshal(doc.Body, &rec); err != nil {
		return nil, "", fmt.Errorf("decode approval %s: %w", id, err)
	}
	return &rec, doc.Rev, nil
}

func putApproval(ctx context.Context, docs domain.DocStore, rev string, rec storedApproval) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = docs.Put(ctx, &domain.Doc{
		ID:        rec.ID,
		Rev:       rev,
		DataType:  domain.DataTypeApproval,
		Body:      body,
		UpdatedAt: time.Now().UTC(),
	})
	if errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("approval %s changed concurrently: %w", rec.ID, err)
	}
	return err
}
