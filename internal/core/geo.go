package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/colannotate/internal/annotation"
	"github.com/JonMunkholm/colannotate/internal/oracle"
)

// GeoPair is a matched latitude/longitude pair. First carries the
// is_geo_pair back-reference to Second; Second is left unlinked.
type GeoPair struct {
	First  annotation.GeoAnnotation
	Second annotation.GeoAnnotation
}

// GeoPairing is the result of PairGeo.
type GeoPairing struct {
	Pairs    []GeoPair
	Isolated []annotation.GeoAnnotation
}

// PairGeo partitions geo annotations into latitude/longitude pairs and
// isolated columns. The lat/lon pool is consumed from the end (reverse
// insertion order); each popped column pairs with its only remaining
// opposite-axis column, stays isolated when there is none, and fails with
// ErrAmbiguousMatch when there are several.
func PairGeo(anns []annotation.GeoAnnotation) (GeoPairing, error) {
	var out GeoPairing
	var pool []annotation.GeoAnnotation
	for _, a := range anns {
		if _, ok := a.GeoType.Complement(); ok {
			pool = append(pool, a)
		} else {
			out.Isolated = append(out.Isolated, a)
		}
	}

	for len(pool) > 0 {
		cur := pool[len(pool)-1]
		pool = pool[:len(pool)-1]

		want, _ := cur.GeoType.Complement()
		var candidates []int
		for i, p := range pool {
			if p.GeoType == want {
				candidates = append(candidates, i)
			}
		}

		switch len(candidates) {
		case 0:
			out.Isolated = append(out.Isolated, cur)
		case 1:
			mate := pool[candidates[0]]
			pool = append(pool[:candidates[0]], pool[candidates[0]+1:]...)
			out.Pairs = append(out.Pairs, GeoPair{First: cur.WithPair(mate.Name), Second: mate})
		default:
			names := make([]string, len(candidates))
			for i, idx := range candidates {
				names[i] = pool[idx].Name
			}
			return out, &StageError{
				Role:   annotation.ColumnGeo,
				Step:   StepGeoPairing,
				Column: cur.Name,
				Input:  names,
				Err:    fmt.Errorf("%w: %d %s candidates", ErrAmbiguousMatch, len(candidates), want),
			}
		}
	}
	return out, nil
}

// Candidates returns the pairs and isolated columns as primary candidates.
func (p GeoPairing) Candidates() []Candidate {
	out := make([]Candidate, 0, len(p.Pairs)+len(p.Isolated))
	for _, pair := range p.Pairs {
		out = append(out, Candidate{Columns: []string{pair.First.Name, pair.Second.Name}})
	}
	for _, a := range p.Isolated {
		out = append(out, Candidate{Columns: []string{a.Name}})
	}
	return out
}

var coordTokens = []string{string(annotation.CoordLatLon), string(annotation.CoordLonLat), Unsure}

// ResolveCoordOrder asks the oracle whether a combined coordinate column is
// latitude-first or longitude-first. It returns ok=false for UNSURE.
// Replies outside LATLON/LONLAT/UNSURE fail with ErrOracleContract.
func ResolveCoordOrder(ctx context.Context, o oracle.Oracle, timeout time.Duration, ds Dataset, col Column) (annotation.CoordFormat, bool, error) {
	history := []oracle.Message{
		oracle.User(columnPreamble(ds, col) + "\n" + promptCoordOrder + "\n" +
			fmt.Sprintf("Please answer with exactly one of: %s. %s", listOptions(coordTokens), answerOnly)),
	}

	reply, err := askOracle(ctx, o, timeout, history)
	if err != nil {
		return "", false, &StageError{
			Role: annotation.ColumnGeo, Step: StepCoordFormat, Column: col.Name,
			Err: callFailure(ctx, err),
		}
	}

	switch reply {
	case string(annotation.CoordLatLon):
		return annotation.CoordLatLon, true, nil
	case string(annotation.CoordLonLat):
		return annotation.CoordLonLat, true, nil
	case Unsure:
		return "", false, nil
	}
	return "", false, &StageError{
		Role: annotation.ColumnGeo, Step: StepCoordFormat, Column: col.Name,
		Input: coordTokens, Reply: reply, Err: ErrOracleContract,
	}
}
