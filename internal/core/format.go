package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/colannotate/internal/annotation"
	"github.com/JonMunkholm/colannotate/internal/oracle"
	"github.com/JonMunkholm/colannotate/internal/timefmt"
)

// InferTimeFormat asks the oracle for the strftime pattern of a date-like
// column. ok is false when the oracle answers UNSURE. Wrapping quotes are
// stripped; a reply that is not a valid pattern fails with
// ErrOracleContract.
func InferTimeFormat(ctx context.Context, o oracle.Oracle, timeout time.Duration, ds Dataset, col Column, t annotation.DateType) (string, bool, error) {
	question := columnPreamble(ds, col) + "\n" +
		fmt.Sprintf("The column has been identified as containing date/time information of type %s.\n", t) +
		"I need the strftime format string that parses and formats these values (for example %Y-%m-%d).\n" +
		fmt.Sprintf("Reply with only the format string, or %s if you cannot tell. %s", Unsure, answerOnly)

	reply, err := askOracle(ctx, o, timeout, []oracle.Message{oracle.User(question)})
	if err != nil {
		return "", false, &StageError{
			Role: annotation.ColumnDate, Step: StepTimeFormat, Column: col.Name,
			Err: callFailure(ctx, err),
		}
	}
	if strings.EqualFold(reply, Unsure) {
		return "", false, nil
	}

	format := timefmt.StripQuotes(reply)
	if err := timefmt.Validate(format); err != nil {
		return "", false, &StageError{
			Role: annotation.ColumnDate, Step: StepTimeFormat, Column: col.Name,
			Reply: reply, Err: fmt.Errorf("%w: %w", ErrOracleContract, err),
		}
	}
	return format, true, nil
}
