package core

import (
	"context"
	"errors"
	"testing"

	"github.com/JonMunkholm/colannotate/internal/annotation"
	"github.com/JonMunkholm/colannotate/internal/human"
	"github.com/JonMunkholm/colannotate/internal/oracle"
	"github.com/JonMunkholm/colannotate/internal/table"
)

func mustFrame(t *testing.T, names []string, values map[string][]string) *table.Frame {
	t.Helper()
	f, err := table.FromColumns(names, values)
	if err != nil {
		t.Fatalf("FromColumns() error = %v", err)
	}
	return f
}

func boolValue(b *bool) string {
	switch {
	case b == nil:
		return "unset"
	case *b:
		return "true"
	}
	return "false"
}

func assertDisjoint(t *testing.T, r annotation.Result) {
	t.Helper()
	seen := make(map[string]bool)
	for _, name := range r.Names() {
		if seen[name] {
			t.Errorf("column %q annotated in more than one role", name)
		}
		seen[name] = true
	}
}

func TestAnnotate_FullPipeline(t *testing.T) {
	tbl := mustFrame(t,
		[]string{"lat", "lon", "year", "month", "rain_mm"},
		map[string][]string{
			"lat":     {"51.5", "48.8"},
			"lon":     {"-0.12", "2.35"},
			"year":    {"2020", "2021"},
			"month":   {"01", "02"},
			"rain_mm": {"12.5", "3.0"},
		})

	o := oracle.NewScript(
		// roles in column order
		"GEO", "GEO", "DATE", "DATE", "FEATURE",
		// subtypes: date, geo, feature
		"YEAR", "MONTH",
		"LATITUDE", "LONGITUDE",
		"FLOAT",
		// time formats for year, month
		"%Y", "'%m'",
	)
	h := human.NewScript()

	var steps []Step
	e := NewEngine(o, h, Options{OnStep: func(s Step) { steps = append(steps, s) }})
	report, err := e.Annotate(context.Background(), tbl, testDataset)
	if err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	if n := len(o.Calls()); n != 12 {
		t.Errorf("oracle calls = %d, want 12", n)
	}
	if n := o.Remaining(); n != 0 {
		t.Errorf("unused replies = %d, want 0", n)
	}
	if n := len(h.Prompts()); n != 0 {
		t.Errorf("human prompts = %d, want 0", n)
	}
	if len(steps) != 7 || steps[0] != StepRole || steps[6] != StepTimeFormat {
		t.Errorf("steps = %v, want the seven stages in order", steps)
	}

	s := report.Schema
	assertDisjoint(t, s)
	if len(s.Geo) != 2 || len(s.Date) != 2 || len(s.Feature) != 1 {
		t.Fatalf("schema sizes = %d/%d/%d, want 2/2/1", len(s.Geo), len(s.Date), len(s.Feature))
	}

	lat, lon := s.Geo[0], s.Geo[1]
	if lat.Name != "lat" || lon.Name != "lon" {
		t.Errorf("geo order = %s, %s, want lat, lon", lat.Name, lon.Name)
	}
	if lon.IsGeoPair == nil || *lon.IsGeoPair != "lat" {
		t.Errorf("lon.IsGeoPair = %v, want lat", lon.IsGeoPair)
	}
	if lat.IsGeoPair != nil {
		t.Errorf("lat.IsGeoPair = %q, want unset", *lat.IsGeoPair)
	}
	if boolValue(lat.PrimaryGeo) != "true" || boolValue(lon.PrimaryGeo) != "true" {
		t.Errorf("primary_geo = %s/%s, want true/true", boolValue(lat.PrimaryGeo), boolValue(lon.PrimaryGeo))
	}

	year, month := s.Date[0], s.Date[1]
	if year.TimeFormat != "%Y" || month.TimeFormat != "%m" {
		t.Errorf("time formats = %q/%q, want %%Y/%%m", year.TimeFormat, month.TimeFormat)
	}
	if got := month.AssociatedColumns[annotation.FieldYear]; got != "year" {
		t.Errorf("month associated YEAR = %q, want year", got)
	}
	if year.AssociatedColumns != nil {
		t.Errorf("year.AssociatedColumns = %v, want nil", year.AssociatedColumns)
	}
	if boolValue(year.PrimaryDate) != "true" || boolValue(month.PrimaryDate) != "true" {
		t.Errorf("primary_date = %s/%s, want true/true", boolValue(year.PrimaryDate), boolValue(month.PrimaryDate))
	}

	rain := s.Feature[0]
	if rain.FeatureType != annotation.FeatureFloat || rain.Description != annotation.DescriptionPending {
		t.Errorf("feature = %+v, want FLOAT with placeholder description", rain)
	}
}

func TestAnnotate_PrimaryAmongIsolatedDates(t *testing.T) {
	names := []string{"d1", "d2", "d3"}
	values := map[string][]string{"d1": {"2020-01-01"}, "d2": {"2020-01-02"}, "d3": {"2020-01-03"}}

	tests := []struct {
		name       string
		selection  string
		want       []string
		wantIssues int
	}{
		{"selects second", "1", []string{"false", "true", "false"}, 0},
		{"out of range", "5", []string{"unset", "unset", "unset"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := oracle.NewScript(
				"DATE", "DATE", "DATE",
				"DATE", "DATE", "DATE",
				tt.selection,
				"%Y-%m-%d", "%Y-%m-%d", "%Y-%m-%d",
			)
			report, err := NewEngine(o, human.NewScript(), Options{}).Annotate(context.Background(), mustFrame(t, names, values), testDataset)
			if err != nil {
				t.Fatalf("Annotate() error = %v", err)
			}
			for i, d := range report.Schema.Date {
				if got := boolValue(d.PrimaryDate); got != tt.want[i] {
					t.Errorf("%s primary_date = %s, want %s", d.Name, got, tt.want[i])
				}
				if d.TimeFormat != "%Y-%m-%d" {
					t.Errorf("%s time_format = %q, want %%Y-%%m-%%d", d.Name, d.TimeFormat)
				}
			}
			if len(report.Issues) != tt.wantIssues {
				t.Fatalf("issues = %v, want %d", report.Issues, tt.wantIssues)
			}
			if tt.wantIssues > 0 && report.Issues[0].Code != "ANN003" {
				t.Errorf("issue code = %q, want ANN003", report.Issues[0].Code)
			}
		})
	}
}

func TestAnnotate_PrimaryCandidatesInTableOrder(t *testing.T) {
	// lat2 pairs with lon, so the candidates are [lat1] and [lat2, lon];
	// lat1 comes first in the table and is enumerated as index 0.
	tbl := mustFrame(t,
		[]string{"lat1", "lon", "lat2"},
		map[string][]string{"lat1": {"1"}, "lon": {"2"}, "lat2": {"3"}})
	o := oracle.NewScript(
		"GEO", "GEO", "GEO",
		"LATITUDE", "LONGITUDE", "LATITUDE",
		"1",
	)
	report, err := NewEngine(o, human.NewScript(), Options{}).Annotate(context.Background(), tbl, testDataset)
	if err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}

	want := map[string]string{"lat1": "false", "lon": "true", "lat2": "true"}
	for _, g := range report.Schema.Geo {
		if got := boolValue(g.PrimaryGeo); got != want[g.Name] {
			t.Errorf("%s primary_geo = %s, want %s", g.Name, got, want[g.Name])
		}
	}
}

func TestAnnotate_AmbiguousPairingKeepsCommitted(t *testing.T) {
	tbl := mustFrame(t,
		[]string{"lat_a", "lat_b", "lon", "temp"},
		map[string][]string{"lat_a": {"1"}, "lat_b": {"2"}, "lon": {"3"}, "temp": {"20"}})
	o := oracle.NewScript(
		"GEO", "GEO", "GEO", "FEATURE",
		"LATITUDE", "LATITUDE", "LONGITUDE",
		"FLOAT",
	)

	report, err := NewEngine(o, human.NewScript(), Options{}).Annotate(context.Background(), tbl, testDataset)
	if !errors.Is(err, ErrAmbiguousMatch) {
		t.Fatalf("Annotate() error = %v, want ErrAmbiguousMatch", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Step != StepGeoPairing || se.Column != "lon" {
		t.Errorf("StageError = %+v, want geo-pairing on lon", se)
	}
	if len(report.Schema.Geo) != 3 || len(report.Schema.Feature) != 1 {
		t.Errorf("committed = %d geo, %d feature, want 3, 1", len(report.Schema.Geo), len(report.Schema.Feature))
	}
	assertDisjoint(t, report.Schema)
}

func TestAnnotate_HumanDeclinesColumn(t *testing.T) {
	tbl := mustFrame(t,
		[]string{"notes", "count"},
		map[string][]string{"notes": {"ok", "late"}, "count": {"1", "2"}})
	o := oracle.NewScript(
		"TEXT", "TEXT", // notes: invalid twice
		"FEATURE",
		"INT",
	)
	h := human.NewScript("none")

	report, err := NewEngine(o, h, Options{}).Annotate(context.Background(), tbl, testDataset)
	if err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	if len(report.Dropped) != 1 || report.Dropped[0] != "notes" {
		t.Errorf("Dropped = %v, want [notes]", report.Dropped)
	}
	if got := report.Schema.Names(); len(got) != 1 || got[0] != "count" {
		t.Errorf("annotated = %v, want [count]", got)
	}
}

func TestAnnotate_TimeFormatContractViolation(t *testing.T) {
	tbl := mustFrame(t, []string{"when"}, map[string][]string{"when": {"2024-01-15"}})
	o := oracle.NewScript("DATE", "DATE", "not-a-format")

	report, err := NewEngine(o, human.NewScript(), Options{}).Annotate(context.Background(), tbl, testDataset)
	if !errors.Is(err, ErrOracleContract) {
		t.Fatalf("Annotate() error = %v, want ErrOracleContract", err)
	}
	if len(report.Schema.Date) != 1 || report.Schema.Date[0].TimeFormat != annotation.TimeFormatPending {
		t.Errorf("date = %+v, want committed with placeholder format", report.Schema.Date)
	}
}

func TestAnnotate_CoordinateOrder(t *testing.T) {
	tbl := mustFrame(t, []string{"pos"}, map[string][]string{"pos": {"51.5, -0.12"}})
	o := oracle.NewScript("GEO", "COORDINATES", "LATLON")

	report, err := NewEngine(o, human.NewScript(), Options{}).Annotate(context.Background(), tbl, testDataset)
	if err != nil {
		t.Fatalf("Annotate() error = %v", err)
	}
	g := report.Schema.Geo[0]
	if g.CoordFormat == nil || *g.CoordFormat != annotation.CoordLatLon {
		t.Errorf("coord_format = %v, want LATLON", g.CoordFormat)
	}
	if boolValue(g.PrimaryGeo) != "true" {
		t.Errorf("primary_geo = %s, want true", boolValue(g.PrimaryGeo))
	}
}
