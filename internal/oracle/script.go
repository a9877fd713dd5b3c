package oracle

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by Script when more questions are asked
// than replies were queued.
var ErrScriptExhausted = errors.New("oracle script exhausted")

// Reply is one scripted answer.
type Reply struct {
	Text string
	Err  error
}

// Call records a question asked of a Script.
type Call struct {
	System  string
	History []Message
}

// Last returns the final message of the recorded conversation.
func (c Call) Last() Message {
	if len(c.History) == 0 {
		return Message{}
	}
	return c.History[len(c.History)-1]
}

// Script is a deterministic Oracle that replays queued replies in order.
type Script struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

// NewScript returns a Script that answers with texts in order.
func NewScript(texts ...string) *Script {
	s := &Script{}
	for _, t := range texts {
		s.replies = append(s.replies, Reply{Text: t})
	}
	return s
}

// Queue appends replies to the script.
func (s *Script) Queue(replies ...Reply) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
	return s
}

// Ask implements Oracle.
func (s *Script) Ask(ctx context.Context, system string, history []Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{System: system, History: append([]Message(nil), history...)})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.replies) == 0 {
		return "", ErrScriptExhausted
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.Text, r.Err
}

// Calls returns the questions asked so far.
func (s *Script) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Remaining returns the number of unused replies.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}
