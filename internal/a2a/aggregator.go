package a2a

// TaskResultAggregator folds a task's status-update events into the single
// authoritative result state. Precedence, highest first:
//
//	failed > auth_required > input_required > working
//
// A state, once captured, is only replaced by a higher-precedence event,
// so failed is irreversible. The aggregator is the sole owner of terminal
// interpretation: every event it forwards downstream reads as working.
//
// One instance serves one task execution and is driven by a single
// goroutine; it is not safe for concurrent use.
type TaskResultAggregator struct {
	state   TaskState
	message *Message
}

func NewTaskResultAggregator() *TaskResultAggregator {
	return &TaskResultAggregator{state: TaskStateWorking}
}

// Process folds ev into the aggregate and returns a normalized copy for
// publication: identical to ev except Status.State is forced to working.
// The input event is never modified. A nil event returns nil and changes
// nothing.
func (a *TaskResultAggregator) Process(ev *TaskStatusUpdateEvent) *TaskStatusUpdateEvent {
	if ev == nil {
		return nil
	}
	switch {
	case ev.Status.State == TaskStateFailed:
		a.state = TaskStateFailed
		a.message = ev.Status.Message
	case ev.Status.State == TaskStateAuthRequired && a.state != TaskStateFailed:
		a.state = TaskStateAuthRequired
		a.message = ev.Status.Message
	case ev.Status.State == TaskStateInputRequired &&
		a.state != TaskStateFailed && a.state != TaskStateAuthRequired:
		a.state = TaskStateInputRequired
		a.message = ev.Status.Message
	case a.state == TaskStateWorking && ev.Status.Message != nil:
		a.message = ev.Status.Message
	}

	out := *ev
	out.Status.State = TaskStateWorking
	return &out
}

// State returns the highest-precedence status observed so far; working
// before any event is processed.
func (a *TaskResultAggregator) State() TaskState { return a.state }

// Message returns the message of the event that set or last refreshed the
// aggregate state, or nil.
func (a *TaskResultAggregator) Message() *Message { return a.message }
