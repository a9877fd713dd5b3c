package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/colannotate/internal/annotation"
	"github.com/JonMunkholm/colannotate/internal/oracle"
)

// Candidate is one option for the primary column of a role: either a
// single column or a whole pair/group.
type Candidate struct {
	Columns []string `json:"columns"`
}

// Label renders the candidate for enumeration.
func (c Candidate) Label() string { return strings.Join(c.Columns, ", ") }

// NoPrimary is returned by SelectPrimary when there are no candidates.
const NoPrimary = -1

// SelectPrimary picks the primary candidate for a role and returns its
// index. A single candidate is chosen without asking the oracle. With
// several, the oracle must reply with an in-range zero-based index;
// anything else is an ErrInvalidSelection.
func SelectPrimary(ctx context.Context, o oracle.Oracle, timeout time.Duration, ds Dataset, role annotation.ColumnType, candidates []Candidate) (int, error) {
	switch len(candidates) {
	case 0:
		return NoPrimary, nil
	case 1:
		return 0, nil
	}

	labels := make([]string, len(candidates))
	var list strings.Builder
	for i, c := range candidates {
		labels[i] = fmt.Sprintf("%d: %s", i, c.Label())
		fmt.Fprintf(&list, "%s\n", labels[i])
	}

	question := fmt.Sprintf(`I have a dataset called "%s" with the following description:
"%s"
The following %s columns (or column groups) could serve as the primary %s reference for the dataset:
%sWhich one is the primary %s reference? Answer with the number only, between 0 and %d. %s`,
		ds.Name, ds.Description, roleNoun(role), roleNoun(role), list.String(), roleNoun(role), len(candidates)-1, answerOnly)

	reply, err := askOracle(ctx, o, timeout, []oracle.Message{oracle.User(question)})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return NoPrimary, &StageError{Role: role, Step: StepPrimary, Input: labels, Err: ctxErr}
		}
		return NoPrimary, &StageError{
			Role: role, Step: StepPrimary, Input: labels,
			Err: fmt.Errorf("%w: %w", ErrInvalidSelection, err),
		}
	}

	idx, err := strconv.Atoi(reply)
	if err != nil || idx < 0 || idx >= len(candidates) {
		return NoPrimary, &StageError{
			Role: role, Step: StepPrimary, Input: labels, Reply: reply,
			Err: fmt.Errorf("%w: want integer in [0, %d]", ErrInvalidSelection, len(candidates)-1),
		}
	}
	return idx, nil
}

func roleNoun(role annotation.ColumnType) string {
	switch role {
	case annotation.ColumnGeo:
		return "geographic"
	case annotation.ColumnDate:
		return "date/time"
	}
	return strings.ToLower(string(role))
}
