package core

import (
	"strconv"
	"strings"

	"github.com/golang/geo/s2"

	"github.com/JonMunkholm/colannotate/internal/annotation"
)

// CoordEvidence summarizes how sample values of a combined coordinate
// column read under each axis order. It never overrides the oracle; the
// engine only logs disagreements.
type CoordEvidence struct {
	Parsed      int
	ValidLatLon int
	ValidLonLat int
}

// Contradicts reports whether every parsed sample is out of range under f
// while at least one is in range under the other order.
func (e CoordEvidence) Contradicts(f annotation.CoordFormat) bool {
	if e.Parsed == 0 {
		return false
	}
	switch f {
	case annotation.CoordLatLon:
		return e.ValidLatLon == 0 && e.ValidLonLat > 0
	case annotation.CoordLonLat:
		return e.ValidLonLat == 0 && e.ValidLatLon > 0
	}
	return false
}

// coordEvidence parses values such as "12.5, -70.1", "(12.5 -70.1)" or
// "[12.5;-70.1]" and checks both readings with s2.
func coordEvidence(values []string) CoordEvidence {
	var e CoordEvidence
	for _, v := range values {
		a, b, ok := splitCoordPair(v)
		if !ok {
			continue
		}
		e.Parsed++
		if s2.LatLngFromDegrees(a, b).IsValid() {
			e.ValidLatLon++
		}
		if s2.LatLngFromDegrees(b, a).IsValid() {
			e.ValidLonLat++
		}
	}
	return e
}

func splitCoordPair(v string) (float64, float64, bool) {
	v = strings.Trim(strings.TrimSpace(v), "()[]{}")
	parts := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}

// axisOutOfRange counts numeric samples that cannot be a latitude (or a
// longitude) value.
func axisOutOfRange(t annotation.GeoType, values []string) int {
	bad := 0
	for _, v := range values {
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		var ll s2.LatLng
		switch t {
		case annotation.GeoLatitude:
			ll = s2.LatLngFromDegrees(x, 0)
		case annotation.GeoLongitude:
			ll = s2.LatLngFromDegrees(0, x)
		default:
			return 0
		}
		if !ll.IsValid() {
			bad++
		}
	}
	return bad
}
