package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eduramirezh/adk-go/internal/a2a"
	"github.com/eduramirezh/adk-go/internal/ids"
	"github.com/eduramirezh/adk-go/internal/llm"
	"github.com/eduramirezh/adk-go/internal/notify"
)

// TaskRequest is the body of POST /v1/tasks. MultiTurn keeps the task
// alive after each model turn: the run parks on the input broker and the
// client drives the next turn through the inputs endpoints.
type TaskRequest struct {
	AppName   string       `json:"app_name,omitempty"`
	User      string       `json:"user,omitempty"`
	ContextID string       `json:"context_id,omitempty"`
	TaskID    string       `json:"task_id,omitempty"`
	Model     string       `json:"model,omitempty"`
	System    string       `json:"system,omitempty"`
	MultiTurn bool         `json:"multi_turn,omitempty"`
	Message   *a2a.Message `json:"message"`
}

// taskRun is one live task: the run goroutine feeds the broadcaster,
// the handler streams it, and the broker carries answers in.
type taskRun struct {
	s         *Server
	b         *Broadcaster
	broker    *InputBroker
	taskID    string
	contextID string
	rc        *runContext
	multiTurn bool
	done      chan struct{}

	mu       sync.Mutex
	agg      *a2a.TaskResultAggregator
	endState a2a.TaskState
	endMsg   *a2a.Message
	runErr   error
	usage    *llm.Usage
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	contextID := req.ContextID
	if contextID == "" {
		contextID = ids.Make()
	}
	taskID := req.TaskID
	if taskID == "" {
		taskID = ids.Make()
	}

	call := &a2a.CallContext{User: req.User, ContextID: contextID, TaskID: taskID}
	args, err := a2a.ConvertRequest(call, req.Message)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	args.AppName = req.AppName

	broker := NewInputBroker(s.cfg.Server.InputTimeout.Duration)
	if !s.registerBroker(taskID, broker) {
		writeError(w, http.StatusConflict, "task is already running")
		return
	}
	defer s.unregisterBroker(taskID)

	rc, status, err := s.prepareRun(r.Context(), &RunRequest{
		AppName:    args.AppName,
		UserID:     args.UserID,
		SessionID:  args.SessionID,
		Model:      req.Model,
		System:     req.System,
		NewMessage: &args.Message,
	})
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	t := &taskRun{
		s:         s,
		b:         NewBroadcaster(),
		broker:    broker,
		taskID:    taskID,
		contextID: contextID,
		rc:        rc,
		multiTurn: req.MultiTurn,
		done:      make(chan struct{}),
	}

	go t.run(r.Context())

	WriteSSE(w, r, t.b, t.finalFrame)

	broker.Cancel() // unblock a parked Ask if the client went away
	<-t.done
	s.publishTaskCompletion(t)
}

// run executes generation legs until the task ends. Each leg gets a fresh
// aggregator, so an answered input restarts severity tracking while the
// broadcast stream stays continuous.
func (t *taskRun) run(ctx context.Context) {
	defer close(t.done)
	defer t.b.Close()

	for {
		t.startLeg()
		t.emit(a2a.TaskStateWorking, nil)

		stream, err := llm.StreamGenerate(ctx, t.s.generateOptions(t.rc))
		if err != nil {
			t.fail(err)
			return
		}
		for ev := range stream.Events() {
			if ev.Err != nil || ev.Response.Content == nil {
				continue
			}
			t.emit(a2a.TaskStateWorking, a2a.FromLLMContent(*ev.Response.Content))
		}

		final, err := stream.Response()
		if err != nil {
			t.fail(err)
			return
		}
		var question *a2a.Message
		if final != nil {
			t.setUsage(final.Usage)
			if final.Content != nil {
				question = a2a.FromLLMContent(*final.Content)
			}
			if aerr := t.s.appendModelEvent(context.Background(), t.rc, final); aerr != nil {
				t.s.log.Warn("model event append failed",
					zap.String("invocation_id", t.rc.inv), zap.Error(aerr))
			}
		}

		if !t.multiTurn {
			t.finishFromAggregate()
			return
		}

		t.emit(a2a.TaskStateInputRequired, question)
		ans := t.broker.Ask(question.Text())
		switch {
		case ans.TimedOut:
			t.emit(a2a.TaskStateFailed, a2a.NewAgentMessage("input wait timed out"))
			t.finishFromAggregate()
			return
		case ans.End:
			// Ending the conversation is a clean completion, not a leg
			// that stalled on input.
			t.finishCompleted()
			return
		default:
			userContent := llm.UserContent(ans.Text)
			t.rc.contents = append(t.rc.contents, userContent)
			t.appendUserTurn(userContent)
		}
	}
}

func (t *taskRun) appendUserTurn(content llm.Content) {
	ev, err := sessionUserEvent(t.rc.inv, content)
	if err == nil {
		err = t.s.sessions.Append(context.Background(), t.rc.sess, ev)
	}
	if err != nil {
		t.s.log.Warn("user event append failed",
			zap.String("invocation_id", t.rc.inv), zap.Error(err))
	}
}

func (t *taskRun) startLeg() {
	t.mu.Lock()
	t.agg = a2a.NewTaskResultAggregator()
	t.mu.Unlock()
}

// emit folds the event into the current leg's aggregate and broadcasts
// the normalized copy.
func (t *taskRun) emit(state a2a.TaskState, msg *a2a.Message) {
	t.mu.Lock()
	ev := t.agg.Process(a2a.NewStatusEvent(t.taskID, t.contextID, state, msg))
	t.mu.Unlock()
	t.b.Send(ev)
}

func (t *taskRun) fail(err error) {
	t.mu.Lock()
	t.runErr = err
	t.mu.Unlock()
	t.emit(a2a.TaskStateFailed, a2a.NewAgentMessage(err.Error()))
	t.finishFromAggregate()
}

// finishFromAggregate resolves the task's result from the current leg:
// an aggregate still at working means the run ended cleanly.
func (t *taskRun) finishFromAggregate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := t.agg.State()
	if state == a2a.TaskStateWorking {
		state = a2a.TaskStateCompleted
	}
	t.endState = state
	t.endMsg = t.agg.Message()
}

func (t *taskRun) finishCompleted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endState = a2a.TaskStateCompleted
	t.endMsg = t.agg.Message()
}

func (t *taskRun) setUsage(u *llm.Usage) {
	t.mu.Lock()
	if u != nil {
		t.usage = u
	}
	t.mu.Unlock()
}

// finalFrame is the done-event payload: the task's resolved terminal
// status.
func (t *taskRun) finalFrame() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := t.endState
	if state == "" {
		state = a2a.TaskStateFailed
	}
	ev := a2a.NewStatusEvent(t.taskID, t.contextID, state, t.endMsg)
	ev.Final = true
	return ev
}

func (s *Server) publishTaskCompletion(t *taskRun) {
	t.mu.Lock()
	endState := t.endState
	runErr := t.runErr
	usage := t.usage
	t.mu.Unlock()

	outcome := notify.OutcomeCompleted
	code := ""
	switch {
	case runErr != nil:
		outcome = outcomeForError(runErr)
		code = errorCode(runErr)
	case endState == a2a.TaskStateFailed:
		outcome = notify.OutcomeFailed
		code = "input_timeout"
	}
	s.publishCompletion(t.rc, outcome, code, usage)
}

// AnswerRequest is the body of POST /v1/tasks/{id}/inputs/{qid}. End
// closes the conversation instead of supplying another turn.
type AnswerRequest struct {
	Text string `json:"text,omitempty"`
	End  bool   `json:"end,omitempty"`
}

func (s *Server) handleTaskInputs(w http.ResponseWriter, r *http.Request) {
	broker := s.broker(chi.URLParam(r, "id"))
	if broker == nil {
		writeNotFound(w, "unknown task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]*PendingInput{"pending": broker.Pending()})
}

func (s *Server) handleTaskAnswer(w http.ResponseWriter, r *http.Request) {
	broker := s.broker(chi.URLParam(r, "id"))
	if broker == nil {
		writeNotFound(w, "unknown task")
		return
	}

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if !req.End && req.Text == "" {
		writeBadRequest(w, "text or end is required")
		return
	}

	if !broker.Answer(chi.URLParam(r, "qid"), Answer{Text: req.Text, End: req.End}) {
		writeError(w, http.StatusConflict, "no matching pending question")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}
