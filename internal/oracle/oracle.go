// Package oracle defines the classification oracle consumed by the
// annotation engine and provides an HTTP chat adapter plus a scripted
// substitute for tests.
package oracle

import "context"

// Role identifies the speaker of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultSystemPrompt is the system prompt used for every classification question.
const DefaultSystemPrompt = "You are a helpful assistant."

// Message is one turn of a conversation with the oracle.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Oracle answers natural-language questions. Ask blocks until a reply is
// available or ctx is done. Replies are not guaranteed to be stable across
// calls.
type Oracle interface {
	Ask(ctx context.Context, system string, history []Message) (string, error)
}

// Func adapts an ordinary function to the Oracle interface.
type Func func(ctx context.Context, system string, history []Message) (string, error)

// Ask calls f.
func (f Func) Ask(ctx context.Context, system string, history []Message) (string, error) {
	return f(ctx, system, history)
}

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }
