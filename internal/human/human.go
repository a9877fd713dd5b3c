// Package human provides the operator prompt used when the oracle cannot
// settle a classification.
package human

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// None is the answer an operator gives to reject every offered option.
const None = "NONE"

// Prompter asks a human a question and blocks until an answer arrives.
type Prompter interface {
	Prompt(ctx context.Context, text string) (string, error)
	// Notify shows a message that needs no answer.
	Notify(ctx context.Context, text string)
}

// Console prompts on a writer and reads single-line answers from a reader.
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole creates a console prompter, typically over os.Stdin and os.Stdout.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// Prompt implements Prompter.
func (c *Console) Prompt(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := io.WriteString(c.out, text); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Notify implements Prompter.
func (c *Console) Notify(_ context.Context, text string) {
	fmt.Fprintln(c.out, text)
}

// Decline answers every prompt with None. It stands in for an operator when
// annotation runs unattended.
type Decline struct{}

// Prompt implements Prompter. It fails once ctx is done, so a cancelled run
// never reads as an operator rejecting every option.
func (Decline) Prompt(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return None, nil
}

// Notify implements Prompter.
func (Decline) Notify(context.Context, string) {}

// Serialized wraps a Prompter so that concurrent callers take turns; a
// whole question-and-answer exchange holds the lock.
type Serialized struct {
	mu sync.Mutex
	p  Prompter
}

// NewSerialized wraps p.
func NewSerialized(p Prompter) *Serialized {
	return &Serialized{p: p}
}

// Prompt implements Prompter.
func (s *Serialized) Prompt(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Prompt(ctx, text)
}

// Notify implements Prompter.
func (s *Serialized) Notify(ctx context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Notify(ctx, text)
}

// ErrScriptExhausted is returned by Script when it runs out of answers.
var ErrScriptExhausted = errors.New("human script exhausted")

// Script replays queued answers and records every prompt and notice.
type Script struct {
	mu      sync.Mutex
	answers []string
	prompts []string
	notices []string
}

// NewScript returns a Script answering with answers in order.
func NewScript(answers ...string) *Script {
	return &Script{answers: answers}
}

// Prompt implements Prompter.
func (s *Script) Prompt(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, text)
	if len(s.answers) == 0 {
		return "", ErrScriptExhausted
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

// Notify implements Prompter.
func (s *Script) Notify(_ context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, text)
}

// Prompts returns the prompts shown so far.
func (s *Script) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Notices returns the notices shown so far.
func (s *Script) Notices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notices...)
}
