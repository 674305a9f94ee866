package engine

import (
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

// Role identifies the author of a message record.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-proposed invocation of a named tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ResultKind classifies how a tool call was resolved.
type ResultKind string

const (
	ResultOK        ResultKind = "ok"
	ResultError     ResultKind = "error"
	ResultDenied    ResultKind = "denied"
	ResultCancelled ResultKind = "cancelled"
)

// ToolResult answers exactly one ToolCall, matched by CallID.
type ToolResult struct {
	CallID  string     `json:"call_id"`
	Name    string     `json:"name"`
	Kind    ResultKind `json:"kind"`
	Content string     `json:"content"`
}

// Message is a role-tagged conversation record. Only the fields valid for
// the role are ever set; use the constructors below instead of struct
// literals.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// Assistant messages may carry proposed tool calls.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool messages reference the call they answer.
	CallID string     `json:"call_id,omitempty"`
	Name   string     `json:"name,omitempty"`
	Kind   ResultKind `json:"kind,omitempty"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

func ToolResultMessage(res ToolResult) Message {
	return Message{
		Role:    RoleTool,
		Content: res.Content,
		CallID:  res.CallID,
		Name:    res.Name,
		Kind:    res.Kind,
	}
}

// NewCallID mints an identifier for synthetic tool calls (e.g. when a
// provider returns calls without ids).
func NewCallID() string {
	return "call_" + uuid.NewString()
}

// History is an append-only sequence of messages. A step's history is
// destroyed once the step has been summarized; after Destroy the contents
// are gone and any further append panics, which is the point: nothing may
// write to or read from a concluded step.
type History struct {
	msgs      []Message
	destroyed bool
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(msg Message) {
	if h.destroyed {
		panic("engine: append to destroyed history")
	}
	h.msgs = append(h.msgs, msg)
}

// Messages returns a copy so callers cannot mutate appended records.
func (h *History) Messages() []Message {
	if h.destroyed {
		return nil
	}
	out := make([]Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

func (h *History) Len() int {
	return len(h.msgs)
}

func (h *History) Destroyed() bool {
	return h.destroyed
}

// Destroy wipes the backing slice. Irreversible.
func (h *History) Destroy() {
	h.msgs = nil
	h.destroyed = true
}

// Last returns the most recent message with the given role, if any.
func (h *History) Last(role Role) (Message, bool) {
	for i := len(h.msgs) - 1; i >= 0; i-- {
		if h.msgs[i].Role == role {
			return h.msgs[i], true
		}
	}
	return Message{}, false
}

// ToLLM converts the history into the wire format the model collaborator
// expects.
func (h *History) ToLLM() []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(h.msgs))
	for _, msg := range h.msgs {
		out = append(out, toLLMContent(msg))
	}
	return out
}

func toLLMContent(msg Message) llms.MessageContent {
	switch msg.Role {
	case RoleSystem:
		return llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(msg.Content)},
		}
	case RoleUser:
		return llms.MessageContent{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(msg.Content)},
		}
	case RoleAssistant:
		var parts []llms.ContentPart
		if msg.Content != "" {
			parts = append(parts, llms.TextContent{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			parts = append(parts, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts}
	case RoleTool:
		return llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{
				llms.ToolCallResponse{
					ToolCallID: msg.CallID,
					Name:       msg.Name,
					Content:    msg.Content,
				},
			},
		}
	default:
		return llms.MessageContent{
			Role:  llms.ChatMessageTypeGeneric,
			Parts: []llms.ContentPart{llms.TextPart(msg.Content)},
		}
	}
}
