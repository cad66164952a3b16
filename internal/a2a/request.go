package a2a

import (
	"fmt"

	"github.com/eduramirezh/adk-go/internal/llm"
)

// CallContext identifies one inbound a2a call: the task and conversation
// it belongs to, and the authenticated caller when transport-level auth
// established one.
type CallContext struct {
	User      string
	ContextID string
	TaskID    string
}

// RunArgs is what the runner needs to execute one a2a message.
type RunArgs struct {
	UserID    string
	SessionID string
	AppName   string
	Message   llm.Content
}

// ConvertRequest maps an inbound a2a message onto runner arguments. The
// session is the a2a context; an unauthenticated call gets a synthetic
// per-context user id so distinct conversations never share session state.
func ConvertRequest(call *CallContext, msg *Message) (*RunArgs, error) {
	if call == nil {
		return nil, fmt.Errorf("call context is required")
	}
	if call.ContextID == "" {
		return nil, fmt.Errorf("call context has no context id")
	}
	if msg == nil || len(msg.Parts) == 0 {
		return nil, fmt.Errorf("request message has no parts")
	}

	userID := call.User
	if userID == "" {
		userID = "A2A_USER_" + call.ContextID
	}

	content, err := ToLLMContent(llm.RoleUser, msg.Parts)
	if err != nil {
		return nil, err
	}

	return &RunArgs{
		UserID:    userID,
		SessionID: call.ContextID,
		Message:   content,
	}, nil
}
