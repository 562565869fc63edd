package conversation

import (
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// ToolCall is a single tool invocation requested by an agent.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Message is one entry in a conversation transcript.
// Sender carries the agent name for assistant and tool messages and is
// empty for user and system messages.
type Message struct {
	Role       string     `json:"role"`
	Sender     string     `json:"sender,omitempty"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SystemMessage builds a system message. The engine uses these to record
// internal failures and termination notices in the transcript.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// AssistantMessage builds an assistant message attributed to an agent.
func AssistantMessage(sender, content string) Message {
	return Message{Role: RoleAssistant, Sender: sender, Content: content}
}

// ToolMessage builds a tool result message correlated to a tool call.
func ToolMessage(sender, callID, toolName, output string) Message {
	return Message{
		Role:       RoleTool,
		Sender:     sender,
		Content:    output,
		ToolCallID: callID,
		ToolName:   toolName,
	}
}
