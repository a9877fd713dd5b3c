package core

// classifier.go implements the escalation ladder used for every
// classification decision:
//
//  1. Ask the oracle, offering the options plus UNSURE.
//  2. On an invalid reply (or a failed call) re-prompt once, quoting the
//     reply back and restating the options.
//  3. Still invalid: treat as UNSURE.
//  4. UNSURE: ask the operator until they pick an option or NONE.
//
// NONE is the only way a column ends up without a classification.

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/colannotate/internal/human"
	"github.com/JonMunkholm/colannotate/internal/oracle"
)

// Source records which rung of the ladder produced a decision.
type Source string

const (
	SourceOracle   Source = "oracle"
	SourceReprompt Source = "reprompt"
	SourceHuman    Source = "human"
)

// Question is one classification request.
type Question struct {
	Dataset Dataset
	Column  Column
	Options []string
	// Prompt is the free-text clarification placed after the column values.
	Prompt string
	// Topic names the decision in operator prompts, e.g. "date type".
	Topic string
}

// Decision is the outcome of Classify. OK is false when the operator chose
// NONE; Choice is then empty.
type Decision struct {
	Choice string
	OK     bool
	Source Source
}

// Classifier runs the escalation ladder against an oracle and an operator.
type Classifier struct {
	oracle  oracle.Oracle
	human   human.Prompter
	timeout time.Duration
	logger  *slog.Logger
}

// NewClassifier creates a classifier. A zero timeout leaves oracle calls
// bounded only by the caller's context.
func NewClassifier(o oracle.Oracle, h human.Prompter, timeout time.Duration, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{oracle: o, human: h, timeout: timeout, logger: logger}
}

// Classify returns exactly one of q.Options, or OK=false for NONE.
// Errors come from the operator prompt (for example a closed input) or from
// ctx ending; an expired per-call oracle timeout still escalates.
func (c *Classifier) Classify(ctx context.Context, q Question) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, fmt.Errorf("classify column %q: %w", q.Column.Name, err)
	}
	log := c.logger.With("column", q.Column.Name, "topic", q.Topic)

	history := []oracle.Message{
		oracle.User(columnPreamble(q.Dataset, q.Column) + "\n" + q.Prompt + "\n" + selectOneInstruction(q.Options)),
	}

	reply, err := askOracle(ctx, c.oracle, c.timeout, history)
	if err != nil {
		log.Warn("oracle call failed", "attempt", 1, "error", err)
	}
	if slices.Contains(q.Options, reply) {
		return Decision{Choice: reply, OK: true, Source: SourceOracle}, nil
	}

	if reply != Unsure {
		if err == nil {
			history = append(history, oracle.Assistant(reply))
		}
		history = append(history, oracle.System(fmt.Sprintf(
			"`%s` is not a valid answer. %s", reply, selectOneInstruction(q.Options))))

		reply, err = askOracle(ctx, c.oracle, c.timeout, history)
		if err != nil {
			log.Warn("oracle call failed", "attempt", 2, "error", err)
		}
		if slices.Contains(q.Options, reply) {
			return Decision{Choice: reply, OK: true, Source: SourceReprompt}, nil
		}
	}

	// A failed oracle call under a done run context is not UNSURE.
	if err := ctx.Err(); err != nil {
		return Decision{}, fmt.Errorf("classify column %q: %w", q.Column.Name, err)
	}
	log.Warn("oracle unsure, asking operator", "reply", reply)
	return c.askHuman(ctx, q)
}

func (c *Classifier) askHuman(ctx context.Context, q Question) (Decision, error) {
	text := fmt.Sprintf(`The classifier was unsure about the %s for "%s" with the following values (first %d rows):
%s
Question: %s
Select one of the following options: %s or None: `,
		q.Topic, q.Column.Name, len(q.Column.Values), formatValues(q.Column.Values),
		q.Prompt, listOptions(q.Options))

	for {
		answer, err := c.human.Prompt(ctx, text)
		if err != nil {
			return Decision{}, fmt.Errorf("operator input for column %q: %w", q.Column.Name, err)
		}
		answer = strings.ToUpper(strings.TrimSpace(answer))

		if answer == human.None {
			return Decision{Source: SourceHuman}, nil
		}
		if slices.Contains(q.Options, answer) {
			return Decision{Choice: answer, OK: true, Source: SourceHuman}, nil
		}
		c.human.Notify(ctx, fmt.Sprintf("invalid option: `%s` out of options=[%s]", answer, listOptions(q.Options)))
	}
}

// askOracle performs one bounded oracle call and trims the reply.
func askOracle(ctx context.Context, o oracle.Oracle, timeout time.Duration, history []oracle.Message) (string, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	reply, err := o.Ask(callCtx, oracle.DefaultSystemPrompt, history)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// callFailure wraps a failed oracle call on a step with no escalation path.
// A done run context is reported as itself rather than as an oracle outage.
func callFailure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
}
