package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/eduramirezh/adk-go/internal/a2a"
	"github.com/eduramirezh/adk-go/internal/config"
	"github.com/eduramirezh/adk-go/internal/notify"
)

func decodeStatusFrame(t *testing.T, f sseFrame) *a2a.TaskStatusUpdateEvent {
	t.Helper()
	var ev a2a.TaskStatusUpdateEvent
	if err := json.Unmarshal([]byte(f.data), &ev); err != nil {
		t.Fatalf("unmarshal status frame %q: %v", f.data, err)
	}
	return &ev
}

func TestHandleTask_SingleTurn(t *testing.T) {
	h := newTestServer(t)

	resp := h.postJSON(t, "/v1/tasks", TaskRequest{
		TaskID:    "task-st",
		ContextID: "ctx-st",
		Message:   a2a.NewUserMessage("ship it"),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("task status = %d", resp.StatusCode)
	}
	frames := readSSE(t, resp.Body)
	resp.Body.Close()

	if len(frames) < 3 {
		t.Fatalf("got %d frames, want at least 3", len(frames))
	}
	for _, f := range frames[:len(frames)-1] {
		ev := decodeStatusFrame(t, f)
		if ev.TaskID != "task-st" || ev.ContextID != "ctx-st" {
			t.Fatalf("frame ids = %q/%q", ev.TaskID, ev.ContextID)
		}
		if ev.Status.State != a2a.TaskStateWorking {
			t.Fatalf("forwarded frame state = %q, want working", ev.Status.State)
		}
		if ev.Final {
			t.Fatal("forwarded frame marked final")
		}
	}

	done := frames[len(frames)-1]
	if done.event != "done" {
		t.Fatalf("last frame event = %q, want done", done.event)
	}
	final := decodeStatusFrame(t, done)
	if !final.Final {
		t.Fatal("done frame not marked final")
	}
	if final.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("done state = %q, want completed", final.Status.State)
	}
	if got := final.Status.Message.Text(); got != "ship it" {
		t.Fatalf("done message = %q", got)
	}

	sess, err := h.sessions.Get(context.Background(), "adk", "A2A_USER_ctx-st", "ctx-st")
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	if len(sess.Events) != 2 {
		t.Fatalf("session has %d events, want 2", len(sess.Events))
	}

	events := h.notifier.all()
	if len(events) != 1 || events[0].Outcome != notify.OutcomeCompleted {
		t.Fatalf("completion events = %+v", events)
	}
	if events[0].SessionID != "ctx-st" {
		t.Fatalf("completion session = %q", events[0].SessionID)
	}
}

func TestHandleTask_MultiTurnConversation(t *testing.T) {
	h := newTestServer(t)

	resp := h.postJSON(t, "/v1/tasks", TaskRequest{
		TaskID:    "task-mt",
		ContextID: "ctx-mt",
		MultiTurn: true,
		Message:   a2a.NewUserMessage("round one"),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("task status = %d", resp.StatusCode)
	}

	type streamResult struct {
		frames []sseFrame
		err    error
	}
	streamed := make(chan streamResult, 1)
	go func() {
		frames, err := parseSSE(resp.Body)
		streamed <- streamResult{frames, err}
	}()
	defer resp.Body.Close()

	first := waitForPending(t, h, "task-mt")
	if first.Text != "round one" {
		t.Fatalf("first question = %q", first.Text)
	}

	ansResp := h.postJSON(t, "/v1/tasks/task-mt/inputs/"+first.QuestionID, AnswerRequest{Text: "round two"})
	if ansResp.StatusCode != http.StatusOK {
		t.Fatalf("answer status = %d", ansResp.StatusCode)
	}
	ansResp.Body.Close()

	second := waitForPending(t, h, "task-mt")
	if second.QuestionID == first.QuestionID {
		t.Fatalf("second question reused id %q", second.QuestionID)
	}
	if second.Text != "round two" {
		t.Fatalf("second question = %q", second.Text)
	}

	endResp := h.postJSON(t, "/v1/tasks/task-mt/inputs/"+second.QuestionID, AnswerRequest{End: true})
	if endResp.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d", endResp.StatusCode)
	}
	endResp.Body.Close()

	var result streamResult
	select {
	case result = <-streamed:
	case <-time.After(10 * time.Second):
		t.Fatal("stream did not finish")
	}
	if result.err != nil {
		t.Fatalf("read stream: %v", result.err)
	}

	frames := result.frames
	if len(frames) < 5 {
		t.Fatalf("got %d frames, want at least 5", len(frames))
	}
	done := frames[len(frames)-1]
	if done.event != "done" {
		t.Fatalf("last frame event = %q, want done", done.event)
	}
	final := decodeStatusFrame(t, done)
	if final.Status.State != a2a.TaskStateCompleted || !final.Final {
		t.Fatalf("done frame = %+v", final)
	}

	sess, err := h.sessions.Get(context.Background(), "adk", "A2A_USER_ctx-mt", "ctx-mt")
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	if len(sess.Events) != 4 {
		t.Fatalf("session has %d events, want 4", len(sess.Events))
	}

	events := h.notifier.all()
	if len(events) != 1 || events[0].Outcome != notify.OutcomeCompleted {
		t.Fatalf("completion events = %+v", events)
	}

	// The broker unregisters with the request, so the task is gone now.
	gone := h.do(t, http.MethodGet, "/v1/tasks/task-mt/inputs")
	if gone.StatusCode != http.StatusNotFound {
		t.Fatalf("inputs after finish status = %d, want 404", gone.StatusCode)
	}
	gone.Body.Close()
}

func TestHandleTask_InputTimeoutFailsTask(t *testing.T) {
	h := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.InputTimeout = config.Duration{Duration: 50 * time.Millisecond}
	})

	resp := h.postJSON(t, "/v1/tasks", TaskRequest{
		TaskID:    "task-to",
		ContextID: "ctx-to",
		MultiTurn: true,
		Message:   a2a.NewUserMessage("anyone there"),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("task status = %d", resp.StatusCode)
	}
	frames := readSSE(t, resp.Body)
	resp.Body.Close()

	if len(frames) == 0 {
		t.Fatal("no frames received")
	}
	done := frames[len(frames)-1]
	if done.event != "done" {
		t.Fatalf("last frame event = %q, want done", done.event)
	}
	final := decodeStatusFrame(t, done)
	if final.Status.State != a2a.TaskStateFailed {
		t.Fatalf("done state = %q, want failed", final.Status.State)
	}
	if got := final.Status.Message.Text(); got != "input wait timed out" {
		t.Fatalf("done message = %q", got)
	}

	events := h.notifier.all()
	if len(events) != 1 || events[0].Outcome != notify.OutcomeFailed {
		t.Fatalf("completion events = %+v", events)
	}
	if events[0].ErrorCode != "input_timeout" {
		t.Fatalf("error code = %q", events[0].ErrorCode)
	}
}

func TestHandleTask_DuplicateTaskIDConflict(t *testing.T) {
	h := newTestServer(t)

	resp := h.postJSON(t, "/v1/tasks", TaskRequest{
		TaskID:    "task-dup",
		ContextID: "ctx-dup",
		MultiTurn: true,
		Message:   a2a.NewUserMessage("hold the line"),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("task status = %d", resp.StatusCode)
	}
	streamed := make(chan struct{})
	go func() {
		defer close(streamed)
		parseSSE(resp.Body)
	}()
	defer resp.Body.Close()

	pending := waitForPending(t, h, "task-dup")

	dup := h.postJSON(t, "/v1/tasks", TaskRequest{
		TaskID:    "task-dup",
		ContextID: "ctx-dup",
		Message:   a2a.NewUserMessage("again"),
	})
	if dup.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate task status = %d, want 409", dup.StatusCode)
	}
	dup.Body.Close()

	end := h.postJSON(t, "/v1/tasks/task-dup/inputs/"+pending.QuestionID, AnswerRequest{End: true})
	end.Body.Close()
	select {
	case <-streamed:
	case <-time.After(10 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func TestHandleTaskAnswer_Validation(t *testing.T) {
	h := newTestServer(t)

	resp := h.postJSON(t, "/v1/tasks", TaskRequest{
		TaskID:    "task-val",
		ContextID: "ctx-val",
		MultiTurn: true,
		Message:   a2a.NewUserMessage("question time"),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("task status = %d", resp.StatusCode)
	}
	streamed := make(chan struct{})
	go func() {
		defer close(streamed)
		parseSSE(resp.Body)
	}()
	defer resp.Body.Close()

	pending := waitForPending(t, h, "task-val")

	empty := h.postJSON(t, "/v1/tasks/task-val/inputs/"+pending.QuestionID, AnswerRequest{})
	if empty.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty answer status = %d, want 400", empty.StatusCode)
	}
	empty.Body.Close()

	wrong := h.postJSON(t, "/v1/tasks/task-val/inputs/q-999", AnswerRequest{Text: "hi"})
	if wrong.StatusCode != http.StatusConflict {
		t.Fatalf("wrong qid status = %d, want 409", wrong.StatusCode)
	}
	wrong.Body.Close()

	end := h.postJSON(t, "/v1/tasks/task-val/inputs/"+pending.QuestionID, AnswerRequest{End: true})
	if end.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d", end.StatusCode)
	}
	end.Body.Close()
	select {
	case <-streamed:
	case <-time.After(10 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func TestHandleTask_BadRequests(t *testing.T) {
	h := newTestServer(t)

	resp := h.postJSON(t, "/v1/tasks", TaskRequest{TaskID: "task-bad"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("no message status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = h.do(t, http.MethodGet, "/v1/tasks/never-started/inputs")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown task inputs status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = h.postJSON(t, "/v1/tasks/never-started/inputs/q-1", AnswerRequest{Text: "hi"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown task answer status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}
