package server

import (
	"fmt"
	"sync"
	"time"
)

// InputBroker parks a running task's question until an HTTP client answers
// it. The task goroutine blocks on Ask() until an answer is posted via
// Answer() or the timeout expires.
//
// There is at most one pending question at a time since a task runs its
// turns sequentially (the task loop calls Ask synchronously).
type InputBroker struct {
	mu       sync.Mutex
	pending  *pendingInput
	timeout  time.Duration
	qidSeq   uint64
	cancelCh chan struct{}
}

type pendingInput struct {
	ID       string
	Text     string
	AskedAt  time.Time
	answerCh chan Answer
}

// Answer is what a client posts to resume a parked task. End marks the
// conversation finished instead of supplying another user turn.
type Answer struct {
	Text     string
	End      bool
	TimedOut bool
}

// PendingInput is the JSON shape of an unanswered question.
type PendingInput struct {
	QuestionID string    `json:"question_id"`
	Text       string    `json:"text"`
	AskedAt    time.Time `json:"asked_at"`
}

// NewInputBroker creates a broker with the given wait timeout.
// If timeout <= 0, defaults to 30 minutes.
func NewInputBroker(timeout time.Duration) *InputBroker {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &InputBroker{timeout: timeout, cancelCh: make(chan struct{})}
}

// Ask parks text as the pending question and blocks until an answer is
// posted or the timeout expires.
func (ib *InputBroker) Ask(text string) Answer {
	ib.mu.Lock()
	ib.qidSeq++
	qid := fmt.Sprintf("q-%d", ib.qidSeq)
	ch := make(chan Answer, 1)
	pq := &pendingInput{
		ID:       qid,
		Text:     text,
		AskedAt:  time.Now().UTC(),
		answerCh: ch,
	}
	ib.pending = pq
	ib.mu.Unlock()

	defer func() {
		ib.mu.Lock()
		if ib.pending == pq {
			ib.pending = nil
		}
		ib.mu.Unlock()
	}()

	timer := time.NewTimer(ib.timeout)
	defer timer.Stop()

	select {
	case ans := <-ch:
		return ans
	case <-timer.C:
		return Answer{TimedOut: true}
	case <-ib.cancelCh:
		return Answer{TimedOut: true}
	}
}

// Pending returns the current pending question, or nil if none.
func (ib *InputBroker) Pending() *PendingInput {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if ib.pending == nil {
		return nil
	}
	return &PendingInput{
		QuestionID: ib.pending.ID,
		Text:       ib.pending.Text,
		AskedAt:    ib.pending.AskedAt,
	}
}

// Cancel unblocks any in-flight Ask() call, causing it to return a
// timed-out answer. Safe to call multiple times.
func (ib *InputBroker) Cancel() {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	select {
	case <-ib.cancelCh:
		// already closed
	default:
		close(ib.cancelCh)
	}
}

// Answer delivers an answer to the pending question. Returns false if qid
// doesn't match or no question is pending.
func (ib *InputBroker) Answer(qid string, ans Answer) bool {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if ib.pending == nil || ib.pending.ID != qid {
		return false
	}
	select {
	case ib.pending.answerCh <- ans:
		ib.pending = nil // prevent duplicate answers via race with Ask()'s defer
		return true
	default:
		return false // already answered
	}
}
