package queue

import (
	"errors"
	"sort"
	"time"

	"github.com/relaydesk/backend/internal/types"
)

// ErrQueueFull is surfaced to the hand-off caller so it can apply backpressure
var ErrQueueFull = errors.New("queue is full")

// TenantQueue is the ordered set of one tenant's waiting conversations.
// It is not internally locked: all access is serialized through the tenant's
// mutual-exclusion boundary in the engine, mirroring how assignment and
// capacity bookkeeping are kept consistent.
type TenantQueue struct {
	tenantID  string
	maxSize   int
	waiting   []*types.Conversation // ranked: priority desc, queued_at asc
	completed int
	abandoned int
	stats     *WaitStats
}

// NewTenantQueue creates an empty queue with the given size limit
func NewTenantQueue(tenantID string, maxSize int) *TenantQueue {
	return &TenantQueue{
		tenantID: tenantID,
		maxSize:  maxSize,
		waiting:  make([]*types.Conversation, 0),
		stats:    NewWaitStats(),
	}
}

// Enqueue appends a conversation and re-ranks the queue.
// The caller has already folded the tag priority boost into conv.Priority.
func (q *TenantQueue) Enqueue(conv *types.Conversation) error {
	if len(q.waiting) >= q.maxSize {
		return ErrQueueFull
	}
	conv.Status = types.ConversationQueued
	q.waiting = append(q.waiting, conv)
	q.rerank()
	return nil
}

// rerank applies the ordering guarantee: priority desc, then FIFO within
// equal priority. Stable sort keeps arrival order for ties.
func (q *TenantQueue) rerank() {
	sort.SliceStable(q.waiting, func(i, j int) bool {
		if q.waiting[i].Priority != q.waiting[j].Priority {
			return q.waiting[i].Priority > q.waiting[j].Priority
		}
		return q.waiting[i].QueuedAt.Before(q.waiting[j].QueuedAt)
	})
	for i, conv := range q.waiting {
		conv.QueuePosition = i + 1
	}
}

// Rerank re-sorts after an external priority or tag update
func (q *TenantQueue) Rerank() {
	q.rerank()
}

// Candidates returns detached copies of the waiting conversations in
// routing order, without mutating the queue. Scoring reads candidates
// outside the tenant boundary, so the queue never hands out its live
// pointers; removal happens only on successful assignment.
func (q *TenantQueue) Candidates() []types.Conversation {
	out := make([]types.Conversation, len(q.waiting))
	for i, conv := range q.waiting {
		out[i] = *conv
		out[i].DetectedTags = append([]types.DetectedTag(nil), conv.DetectedTags...)
	}
	return out
}

// Get returns a waiting conversation by ID
func (q *TenantQueue) Get(conversationID string) (*types.Conversation, bool) {
	for _, conv := range q.waiting {
		if conv.ID == conversationID {
			return conv, true
		}
	}
	return nil, false
}

// Remove takes a conversation out of the queue (on assignment or expiry)
func (q *TenantQueue) Remove(conversationID string) *types.Conversation {
	for i, conv := range q.waiting {
		if conv.ID == conversationID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			q.rerank()
			return conv
		}
	}
	return nil
}

// MarkAnswered records queue stats when a conversation is assigned
func (q *TenantQueue) MarkAnswered(waitSeconds float64) {
	q.stats.RecordAnswer(waitSeconds)
}

// MarkCompleted records a terminal resolved/transferred conversation
func (q *TenantQueue) MarkCompleted(handleSeconds float64) {
	q.completed++
	q.stats.RecordHandle(handleSeconds)
}

// ExpireOverdue transitions conversations waiting past maxWait to abandoned
// and removes them. Expiry always wins over in-flight scoring.
func (q *TenantQueue) ExpireOverdue(maxWait time.Duration, now time.Time) []*types.Conversation {
	var expired []*types.Conversation
	kept := q.waiting[:0]
	for _, conv := range q.waiting {
		if now.Sub(conv.QueuedAt) > maxWait {
			closed := now
			conv.Status = types.ConversationAbandoned
			conv.ClosedAt = &closed
			conv.QueuePosition = 0
			q.abandoned++
			expired = append(expired, conv)
			continue
		}
		kept = append(kept, conv)
	}
	q.waiting = kept
	if len(expired) > 0 {
		q.rerank()
	}
	return expired
}

// MarkAbandoned counts an abandonment reported from outside the queue
// (customer left while already waiting, before expiry)
func (q *TenantQueue) MarkAbandoned() {
	q.abandoned++
}

// EstimateWait is the coarse linear wait estimate for a queue position:
// position x average handle time / online agents accepting new chats.
// Recomputed on demand, never persisted as a guarantee.
func (q *TenantQueue) EstimateWait(position, onlineAgents int) time.Duration {
	if position <= 0 {
		return 0
	}
	if onlineAgents < 1 {
		onlineAgents = 1
	}
	avg := q.stats.AvgHandleSeconds()
	return time.Duration(float64(position) * avg / float64(onlineAgents) * float64(time.Second))
}

// LongestWait returns the wait of the oldest queued conversation
func (q *TenantQueue) LongestWait(now time.Time) time.Duration {
	longest := time.Duration(0)
	for _, conv := range q.waiting {
		if w := now.Sub(conv.QueuedAt); w > longest {
			longest = w
		}
	}
	return longest
}

// Len returns the number of waiting conversations
func (q *TenantQueue) Len() int {
	return len(q.waiting)
}

// Snapshot summarizes the queue for monitoring; activeCount and
// availableAgents come from the registry side of the tenant boundary.
func (q *TenantQueue) Snapshot(activeCount, availableAgents int, now time.Time) types.QueueSnapshot {
	return types.QueueSnapshot{
		TenantID:        q.tenantID,
		WaitingCount:    len(q.waiting),
		ActiveCount:     activeCount,
		CompletedCount:  q.completed,
		AbandonedCount:  q.abandoned,
		LongestWaitSecs: q.LongestWait(now).Seconds(),
		AvailableAgents: availableAgents,
		WaitStats:       q.stats.Snapshot(),
	}
}
