// Package a2a carries the agent-to-agent task surface: task status
// events, the aggregation that folds them into one definitive result, and
// conversion between a2a messages and the model content types.
package a2a

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eduramirezh/adk-go/internal/ids"
	"github.com/eduramirezh/adk-go/internal/llm"
)

type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input_required"
	TaskStateAuthRequired  TaskState = "auth_required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
)

// Terminal reports whether state ends a task's lifecycle.
func Terminal(state TaskState) bool {
	switch state {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed:
		return true
	}
	return false
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

type PartKind string

const (
	PartText PartKind = "text"
	PartData PartKind = "data"
	PartFile PartKind = "file"
)

type Part struct {
	Kind PartKind `json:"kind"`

	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
	File *FilePart      `json:"file,omitempty"`
}

type FilePart struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Bytes    []byte `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

type Message struct {
	MessageID string `json:"message_id"`
	Role      Role   `json:"role"`
	Parts     []Part `json:"parts"`
}

func NewUserMessage(text string) *Message {
	return &Message{MessageID: ids.Make(), Role: RoleUser, Parts: []Part{{Kind: PartText, Text: text}}}
}

func NewAgentMessage(text string) *Message {
	return &Message{MessageID: ids.Make(), Role: RoleAgent, Parts: []Part{{Kind: PartText, Text: text}}}
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartText {
			out += p.Text
		}
	}
	return out
}

type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskStatusUpdateEvent is one status transition of a long-running task.
// Final marks the producer's last event for the task.
type TaskStatusUpdateEvent struct {
	TaskID    string     `json:"task_id"`
	ContextID string     `json:"context_id,omitempty"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final,omitempty"`
}

func NewStatusEvent(taskID, contextID string, state TaskState, msg *Message) *TaskStatusUpdateEvent {
	return &TaskStatusUpdateEvent{
		TaskID:    taskID,
		ContextID: contextID,
		Status:    TaskStatus{State: state, Message: msg, Timestamp: time.Now().UTC()},
	}
}

// ToLLMContent converts a2a message parts into model content. Text parts
// map to text, inline file bytes to blobs, and data parts to their JSON
// rendering.
func ToLLMContent(role llm.Role, parts []Part) (llm.Content, error) {
	out := llm.Content{Role: role}
	for i, p := range parts {
		switch p.Kind {
		case PartText:
			out.Parts = append(out.Parts, llm.TextPart(p.Text))
		case PartFile:
			if p.File == nil || len(p.File.Bytes) == 0 {
				return llm.Content{}, fmt.Errorf("file part %d has no inline bytes", i)
			}
			out.Parts = append(out.Parts, llm.BlobPart(p.File.MIMEType, p.File.Bytes))
		case PartData:
			b, err := json.Marshal(p.Data)
			if err != nil {
				return llm.Content{}, fmt.Errorf("data part %d: %w", i, err)
			}
			out.Parts = append(out.Parts, llm.TextPart(string(b)))
		default:
			return llm.Content{}, fmt.Errorf("unsupported part kind %q", p.Kind)
		}
	}
	return out, nil
}

// FromLLMContent converts model content into an agent message. Thought
// parts travel as data parts so downstream consumers can keep them apart
// from the answer text.
func FromLLMContent(c llm.Content) *Message {
	msg := &Message{MessageID: ids.Make(), Role: RoleAgent}
	for _, p := range c.Parts {
		switch p.Kind {
		case llm.PartText:
			msg.Parts = append(msg.Parts, Part{Kind: PartText, Text: p.Text})
		case llm.PartThought:
			msg.Parts = append(msg.Parts, Part{Kind: PartData, Data: map[string]any{"type": "thought", "text": p.Text}})
		case llm.PartBlob:
			if p.Blob == nil {
				continue
			}
			msg.Parts = append(msg.Parts, Part{Kind: PartFile, File: &FilePart{MIMEType: p.Blob.MIMEType, Bytes: p.Blob.Data}})
		}
	}
	return msg
}
