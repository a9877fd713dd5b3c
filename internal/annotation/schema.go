package annotation

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicateColumn is returned when a column is added to the schema twice,
	// in the same role or in another one.
	ErrDuplicateColumn = errors.New("column already annotated")

	// ErrUnknownColumn is returned when replacing an annotation that was never
	// added under that role.
	ErrUnknownColumn = errors.New("column not annotated")
)

type slot struct {
	role ColumnType
	pos  int
}

// Schema collects annotations per role. Entries are appended once and then
// only swapped for a new value at the same position; nothing is removed.
// Schema is safe for concurrent readers while a single writer fills it.
type Schema struct {
	mu      sync.RWMutex
	geo     []GeoAnnotation
	date    []DateAnnotation
	feature []FeatureAnnotation
	index   map[string]slot
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{index: make(map[string]slot)}
}

func (s *Schema) claim(name string, role ColumnType, pos int) error {
	if prev, ok := s.index[name]; ok {
		return fmt.Errorf("%w: %q (already %s)", ErrDuplicateColumn, name, prev.role)
	}
	s.index[name] = slot{role: role, pos: pos}
	return nil
}

func (s *Schema) lookup(name string, role ColumnType) (int, error) {
	sl, ok := s.index[name]
	if !ok || sl.role != role {
		return 0, fmt.Errorf("%w: %s %q", ErrUnknownColumn, role, name)
	}
	return sl.pos, nil
}

// AddGeo appends a geo annotation.
func (s *Schema) AddGeo(a GeoAnnotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(a.Name, ColumnGeo, len(s.geo)); err != nil {
		return err
	}
	s.geo = append(s.geo, a)
	return nil
}

// AddDate appends a date annotation.
func (s *Schema) AddDate(a DateAnnotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(a.Name, ColumnDate, len(s.date)); err != nil {
		return err
	}
	s.date = append(s.date, cloneDate(a))
	return nil
}

// AddFeature appends a feature annotation.
func (s *Schema) AddFeature(a FeatureAnnotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(a.Name, ColumnFeature, len(s.feature)); err != nil {
		return err
	}
	s.feature = append(s.feature, a)
	return nil
}

// ReplaceGeo swaps the stored annotation with the same name for a.
func (s *Schema) ReplaceGeo(a GeoAnnotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, err := s.lookup(a.Name, ColumnGeo)
	if err != nil {
		return err
	}
	s.geo[pos] = a
	return nil
}

// ReplaceDate swaps the stored annotation with the same name for a.
func (s *Schema) ReplaceDate(a DateAnnotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, err := s.lookup(a.Name, ColumnDate)
	if err != nil {
		return err
	}
	s.date[pos] = cloneDate(a)
	return nil
}

// ReplaceFeature swaps the stored annotation with the same name for a.
func (s *Schema) ReplaceFeature(a FeatureAnnotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, err := s.lookup(a.Name, ColumnFeature)
	if err != nil {
		return err
	}
	s.feature[pos] = a
	return nil
}

// Geo returns the current geo annotation for name.
func (s *Schema) Geo(name string) (GeoAnnotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, err := s.lookup(name, ColumnGeo)
	if err != nil {
		return GeoAnnotation{}, false
	}
	return s.geo[pos], true
}

// Date returns the current date annotation for name.
func (s *Schema) Date(name string) (DateAnnotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, err := s.lookup(name, ColumnDate)
	if err != nil {
		return DateAnnotation{}, false
	}
	return cloneDate(s.date[pos]), true
}

// Feature returns the current feature annotation for name.
func (s *Schema) Feature(name string) (FeatureAnnotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, err := s.lookup(name, ColumnFeature)
	if err != nil {
		return FeatureAnnotation{}, false
	}
	return s.feature[pos], true
}

// Role reports which sequence holds name, if any.
func (s *Schema) Role(name string) (ColumnType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.index[name]
	return sl.role, ok
}

// GeoAnnotations returns the geo sequence in insertion order.
func (s *Schema) GeoAnnotations() []GeoAnnotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]GeoAnnotation(nil), s.geo...)
}

// DateAnnotations returns the date sequence in insertion order.
func (s *Schema) DateAnnotations() []DateAnnotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DateAnnotation, len(s.date))
	for i, d := range s.date {
		out[i] = cloneDate(d)
	}
	return out
}

// FeatureAnnotations returns the feature sequence in insertion order.
func (s *Schema) FeatureAnnotations() []FeatureAnnotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]FeatureAnnotation(nil), s.feature...)
}

// Len returns the number of annotated columns across all roles.
func (s *Schema) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Snapshot returns a detached copy of the three sequences.
func (s *Schema) Snapshot() Result {
	return Result{
		Geo:     s.GeoAnnotations(),
		Date:    s.DateAnnotations(),
		Feature: s.FeatureAnnotations(),
	}
}

// Result is the finalized annotation output handed to callers.
type Result struct {
	Geo     []GeoAnnotation     `json:"geo"`
	Date    []DateAnnotation    `json:"date"`
	Feature []FeatureAnnotation `json:"feature"`
}

// Names returns every annotated column name, geo first, then date, then feature.
func (r Result) Names() []string {
	names := make([]string, 0, len(r.Geo)+len(r.Date)+len(r.Feature))
	for _, g := range r.Geo {
		names = append(names, g.Name)
	}
	for _, d := range r.Date {
		names = append(names, d.Name)
	}
	for _, f := range r.Feature {
		names = append(names, f.Name)
	}
	return names
}

func cloneDate(d DateAnnotation) DateAnnotation {
	if d.AssociatedColumns != nil {
		d = d.WithAssociated(d.AssociatedColumns)
	}
	return d
}
