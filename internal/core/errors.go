package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/colannotate/internal/annotation"
)

var (
	// ErrAmbiguousMatch means pairing or grouping found several equally valid
	// partners for a column and has no rule to choose between them.
	ErrAmbiguousMatch = errors.New("ambiguous column match")

	// ErrOracleContract means the oracle answered outside the allowed set on
	// a step that has no escalation path.
	ErrOracleContract = errors.New("oracle reply outside allowed answers")

	// ErrOracleUnavailable means the oracle call failed or timed out on a
	// step that has no escalation path.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrInvalidSelection means a primary-candidate reply was not an integer
	// in range. The engine recovers from it by leaving primaries unset.
	ErrInvalidSelection = errors.New("invalid primary selection")
)

// Step names the pipeline stage an error or issue came from.
type Step string

const (
	StepRole         Step = "role"
	StepSubtype      Step = "subtype"
	StepGeoPairing   Step = "geo-pairing"
	StepCoordFormat  Step = "coord-format"
	StepDateGrouping Step = "date-grouping"
	StepPrimary      Step = "primary"
	StepTimeFormat   Step = "time-format"
)

// StageError carries the diagnostic context of a failed step.
type StageError struct {
	Role   annotation.ColumnType
	Step   Step
	Column string
	// Input lists what the step was deciding between (candidate columns,
	// allowed tokens, or the enumerated primary candidates).
	Input []string
	Reply string
	Err   error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Role, e.Step)
	if e.Column != "" {
		fmt.Fprintf(&b, " for column %q", e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if len(e.Input) > 0 {
		fmt.Fprintf(&b, " (input: %s)", strings.Join(e.Input, ", "))
	}
	if e.Reply != "" {
		fmt.Fprintf(&b, " (reply: %q)", e.Reply)
	}
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Err }

// Fatal reports whether err must abort the run.
func Fatal(err error) bool {
	return err != nil && !errors.Is(err, ErrInvalidSelection)
}

// Issue is a recoverable problem recorded during a run.
type Issue struct {
	Role    annotation.ColumnType `json:"role"`
	Step    Step                  `json:"step"`
	Column  string                `json:"column,omitempty"`
	Message string                `json:"message"`
	Code    string                `json:"code,omitempty"`
}

func issueFrom(err error) Issue {
	iss := Issue{Message: err.Error(), Code: MapError(err).Code}
	var se *StageError
	if errors.As(err, &se) {
		iss.Role, iss.Step, iss.Column = se.Role, se.Step, se.Column
	}
	return iss
}
