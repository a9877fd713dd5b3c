package core

import (
	"fmt"

	"github.com/JonMunkholm/colannotate/internal/annotation"
)

// DateGroup is a set of YEAR/MONTH/DAY columns read together. Members[0]
// is the host and carries associated_columns for the others.
type DateGroup struct {
	Members []annotation.DateAnnotation
}

// Host returns the member carrying the associated columns.
func (g DateGroup) Host() annotation.DateAnnotation { return g.Members[0] }

// Names returns member names, host first.
func (g DateGroup) Names() []string {
	out := make([]string, len(g.Members))
	for i, m := range g.Members {
		out[i] = m.Name
	}
	return out
}

// DateGrouping is the result of GroupDates.
type DateGrouping struct {
	Groups   []DateGroup
	Isolated []annotation.DateAnnotation
}

// GroupDates partitions date annotations into year/month/day groups and
// isolated columns. The component pool is consumed from the end; a popped
// column groups with the remaining columns of other subtypes when there
// are one or two of them and no two share a subtype. Any other non-empty
// candidate set fails with ErrAmbiguousMatch.
func GroupDates(anns []annotation.DateAnnotation) (DateGrouping, error) {
	var out DateGrouping
	var pool []annotation.DateAnnotation
	for _, a := range anns {
		if a.DateType.IsComponent() {
			pool = append(pool, a)
		} else {
			out.Isolated = append(out.Isolated, a)
		}
	}

	for len(pool) > 0 {
		cur := pool[len(pool)-1]
		pool = pool[:len(pool)-1]

		var candidates, rest []annotation.DateAnnotation
		for _, p := range pool {
			if p.DateType != cur.DateType {
				candidates = append(candidates, p)
			} else {
				rest = append(rest, p)
			}
		}

		if len(candidates) == 0 {
			out.Isolated = append(out.Isolated, cur)
			continue
		}
		if len(candidates) > 2 || !distinctSubtypes(candidates) {
			names := make([]string, len(candidates))
			for i, c := range candidates {
				names[i] = fmt.Sprintf("%s:%s", c.Name, c.DateType)
			}
			return out, &StageError{
				Role:   annotation.ColumnDate,
				Step:   StepDateGrouping,
				Column: cur.Name,
				Input:  names,
				Err:    fmt.Errorf("%w: %d candidates for %s", ErrAmbiguousMatch, len(candidates), cur.DateType),
			}
		}

		assoc := make(map[annotation.TimeField]string, len(candidates))
		for _, c := range candidates {
			field, _ := c.DateType.TimeField()
			assoc[field] = c.Name
		}
		members := append([]annotation.DateAnnotation{cur.WithAssociated(assoc)}, candidates...)
		out.Groups = append(out.Groups, DateGroup{Members: members})
		pool = rest
	}
	return out, nil
}

func distinctSubtypes(anns []annotation.DateAnnotation) bool {
	seen := make(map[annotation.DateType]bool, len(anns))
	for _, a := range anns {
		if seen[a.DateType] {
			return false
		}
		seen[a.DateType] = true
	}
	return true
}

// Candidates returns the groups and isolated columns as primary candidates.
func (g DateGrouping) Candidates() []Candidate {
	out := make([]Candidate, 0, len(g.Groups)+len(g.Isolated))
	for _, grp := range g.Groups {
		out = append(out, Candidate{Columns: grp.Names()})
	}
	for _, a := range g.Isolated {
		out = append(out, Candidate{Columns: []string{a.Name}})
	}
	return out
}
