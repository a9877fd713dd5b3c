package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/JonMunkholm/colannotate/internal/annotation"
	"github.com/JonMunkholm/colannotate/internal/human"
	"github.com/JonMunkholm/colannotate/internal/logging"
	"github.com/JonMunkholm/colannotate/internal/oracle"
	"github.com/JonMunkholm/colannotate/internal/table"
	"github.com/JonMunkholm/colannotate/internal/timefmt"
)

// DefaultSampleRows is how many leading values are shown per column.
const DefaultSampleRows = 5

// Options tunes an Engine.
type Options struct {
	// SampleRows is the number of leading values used as evidence.
	SampleRows int
	// OracleTimeout bounds each oracle call. Zero means no extra bound.
	OracleTimeout time.Duration
	// OnStep, if set, is called as each pipeline stage starts.
	OnStep func(Step)
}

// Report is the outcome of an annotation run.
type Report struct {
	Dataset Dataset           `json:"dataset"`
	Schema  annotation.Result `json:"schema"`
	// Dropped lists columns the operator declined to classify.
	Dropped []string `json:"dropped,omitempty"`
	Issues  []Issue  `json:"issues,omitempty"`
}

// Engine annotates tables. It runs each table strictly sequentially; a
// single Engine may be shared by concurrent runs when its Prompter is
// safe for concurrent use (see human.Serialized).
type Engine struct {
	oracle oracle.Oracle
	human  human.Prompter
	opts   Options
}

// NewEngine creates an engine over an oracle and an operator prompt.
func NewEngine(o oracle.Oracle, h human.Prompter, opts Options) *Engine {
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultSampleRows
	}
	return &Engine{oracle: o, human: h, opts: opts}
}

// WithStepHook returns a copy of the engine that calls fn as each stage
// starts, in addition to any hook set in Options.
func (e *Engine) WithStepHook(fn func(Step)) *Engine {
	cp := *e
	prev := e.opts.OnStep
	cp.opts.OnStep = func(s Step) {
		if prev != nil {
			prev(s)
		}
		fn(s)
	}
	return &cp
}

// Annotate classifies, groups and annotates every column of tbl.
//
// On a fatal error the returned report still holds every annotation
// committed before the failure.
func (e *Engine) Annotate(ctx context.Context, tbl table.Table, ds Dataset) (Report, error) {
	return e.AnnotateInto(ctx, tbl, ds, annotation.NewSchema())
}

// AnnotateInto is Annotate writing into a caller-provided schema, which lets
// callers observe annotations while the run progresses.
func (e *Engine) AnnotateInto(ctx context.Context, tbl table.Table, ds Dataset, schema *annotation.Schema) (Report, error) {
	log := logging.WithFields(ctx, "dataset", ds.Name)
	r := &run{
		engine:     e,
		tbl:        tbl,
		ds:         ds,
		schema:     schema,
		log:        log,
		classifier: NewClassifier(e.oracle, e.human, e.opts.OracleTimeout, log),
		columns:    make(map[string]Column),
		order:      make(map[string]int),
	}
	for i, name := range tbl.Columns() {
		r.order[name] = i
	}

	start := time.Now()
	err := r.execute(ctx)

	report := Report{Dataset: ds, Schema: schema.Snapshot(), Dropped: r.dropped, Issues: r.issues}
	if err != nil {
		log.Error("annotation failed", "error", err, "annotated", schema.Len())
		return report, err
	}
	log.Info("annotation complete",
		"geo", len(report.Schema.Geo),
		"date", len(report.Schema.Date),
		"feature", len(report.Schema.Feature),
		"dropped", len(report.Dropped),
		"issues", len(report.Issues),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

type run struct {
	engine     *Engine
	tbl        table.Table
	ds         Dataset
	schema     *annotation.Schema
	log        *slog.Logger
	classifier *Classifier
	columns    map[string]Column
	order      map[string]int
	dropped    []string
	issues     []Issue
}

func (r *run) execute(ctx context.Context) error {
	r.step(StepRole)
	roles, err := r.classifyRoles(ctx)
	if err != nil {
		return err
	}

	r.step(StepSubtype)
	if err := r.classifyDates(ctx, roles[annotation.ColumnDate]); err != nil {
		return err
	}
	if err := r.classifyGeos(ctx, roles[annotation.ColumnGeo]); err != nil {
		return err
	}
	if err := r.classifyFeatures(ctx, roles[annotation.ColumnFeature]); err != nil {
		return err
	}

	r.step(StepGeoPairing)
	pairing, err := r.pairGeo()
	if err != nil {
		return err
	}

	r.step(StepCoordFormat)
	if err := r.resolveCoordFormats(ctx); err != nil {
		return err
	}

	r.step(StepDateGrouping)
	grouping, err := r.groupDates()
	if err != nil {
		return err
	}

	r.step(StepPrimary)
	if err := r.selectPrimary(ctx, annotation.ColumnGeo, pairing.Candidates(), r.markGeo); err != nil {
		return err
	}
	if err := r.selectPrimary(ctx, annotation.ColumnDate, grouping.Candidates(), r.markDate); err != nil {
		return err
	}

	r.step(StepTimeFormat)
	return r.inferTimeFormats(ctx)
}

func (r *run) step(s Step) {
	r.log.Debug("stage started", "step", s)
	if r.engine.opts.OnStep != nil {
		r.engine.opts.OnStep(s)
	}
}

// column returns the cached evidence for a column.
func (r *run) column(name string) Column {
	if c, ok := r.columns[name]; ok {
		return c
	}
	c := Column{Name: name, Values: r.tbl.Head(name, r.engine.opts.SampleRows)}
	r.columns[name] = c
	return c
}

func (r *run) classify(ctx context.Context, role annotation.ColumnType, step Step, name, topic, prompt string, options []string) (Decision, error) {
	d, err := r.classifier.Classify(ctx, Question{
		Dataset: r.ds,
		Column:  r.column(name),
		Options: options,
		Prompt:  prompt,
		Topic:   topic,
	})
	if err != nil {
		return d, &StageError{Role: role, Step: step, Column: name, Input: options, Err: err}
	}
	if !d.OK {
		r.log.Info("column left unclassified", "column", name, "topic", topic)
		return d, nil
	}
	r.log.Info("column classified", "column", name, "topic", topic, "choice", d.Choice, "source", d.Source)
	return d, nil
}

func (r *run) classifyRoles(ctx context.Context) (map[annotation.ColumnType][]string, error) {
	roles := make(map[annotation.ColumnType][]string, len(annotation.ColumnTypes))
	for _, name := range r.tbl.Columns() {
		d, err := r.classify(ctx, "", StepRole, name, "column type", promptRole, annotation.Options(annotation.ColumnTypes))
		if err != nil {
			return nil, err
		}
		if !d.OK {
			r.dropped = append(r.dropped, name)
			continue
		}
		role := annotation.ColumnType(d.Choice)
		roles[role] = append(roles[role], name)
	}
	return roles, nil
}

func (r *run) classifyDates(ctx context.Context, names []string) error {
	for _, name := range names {
		d, err := r.classify(ctx, annotation.ColumnDate, StepSubtype, name, "date type", promptDateType, annotation.Options(annotation.DateTypes))
		if err != nil {
			return err
		}
		if !d.OK {
			r.dropped = append(r.dropped, name)
			continue
		}
		if err := r.schema.AddDate(annotation.NewDate(name, annotation.DateType(d.Choice))); err != nil {
			return &StageError{Role: annotation.ColumnDate, Step: StepSubtype, Column: name, Err: err}
		}
	}
	return nil
}

func (r *run) classifyGeos(ctx context.Context, names []string) error {
	for _, name := range names {
		d, err := r.classify(ctx, annotation.ColumnGeo, StepSubtype, name, "geo type", promptGeoType, annotation.Options(annotation.GeoTypes))
		if err != nil {
			return err
		}
		if !d.OK {
			r.dropped = append(r.dropped, name)
			continue
		}
		if err := r.schema.AddGeo(annotation.NewGeo(name, annotation.GeoType(d.Choice))); err != nil {
			return &StageError{Role: annotation.ColumnGeo, Step: StepSubtype, Column: name, Err: err}
		}
	}
	return nil
}

func (r *run) classifyFeatures(ctx context.Context, names []string) error {
	for _, name := range names {
		d, err := r.classify(ctx, annotation.ColumnFeature, StepSubtype, name, "feature type", promptFeatureType, annotation.Options(annotation.FeatureTypes))
		if err != nil {
			return err
		}
		if !d.OK {
			r.dropped = append(r.dropped, name)
			continue
		}
		if err := r.schema.AddFeature(annotation.NewFeature(name, annotation.FeatureType(d.Choice))); err != nil {
			return &StageError{Role: annotation.ColumnFeature, Step: StepSubtype, Column: name, Err: err}
		}
	}
	return nil
}

func (r *run) pairGeo() (GeoPairing, error) {
	anns := r.schema.GeoAnnotations()
	for _, a := range anns {
		if bad := axisOutOfRange(a.GeoType, r.column(a.Name).Values); bad > 0 {
			r.log.Warn("sample values out of range for axis", "column", a.Name, "geo_type", a.GeoType, "count", bad)
		}
	}

	pairing, err := PairGeo(anns)
	if err != nil {
		return pairing, err
	}
	for _, p := range pairing.Pairs {
		if err := r.schema.ReplaceGeo(p.First); err != nil {
			return pairing, &StageError{Role: annotation.ColumnGeo, Step: StepGeoPairing, Column: p.First.Name, Err: err}
		}
		r.log.Info("geo columns paired", "column", p.First.Name, "pair", p.Second.Name)
	}
	return pairing, nil
}

func (r *run) resolveCoordFormats(ctx context.Context) error {
	for _, a := range r.schema.GeoAnnotations() {
		if a.GeoType != annotation.GeoCoordinates {
			continue
		}
		col := r.column(a.Name)
		format, ok, err := ResolveCoordOrder(ctx, r.engine.oracle, r.engine.opts.OracleTimeout, r.ds, col)
		if err != nil {
			return err
		}
		if !ok {
			r.log.Info("coordinate order left unset", "column", a.Name)
			continue
		}
		if ev := coordEvidence(col.Values); ev.Contradicts(format) {
			r.log.Warn("coordinate order disagrees with sample ranges",
				"column", a.Name, "coord_format", format,
				"parsed", ev.Parsed, "valid_latlon", ev.ValidLatLon, "valid_lonlat", ev.ValidLonLat)
		}
		if err := r.schema.ReplaceGeo(a.WithCoordFormat(format)); err != nil {
			return &StageError{Role: annotation.ColumnGeo, Step: StepCoordFormat, Column: a.Name, Err: err}
		}
	}
	return nil
}

func (r *run) groupDates() (DateGrouping, error) {
	grouping, err := GroupDates(r.schema.DateAnnotations())
	if err != nil {
		return grouping, err
	}
	for _, g := range grouping.Groups {
		host := g.Host()
		if err := r.schema.ReplaceDate(host); err != nil {
			return grouping, &StageError{Role: annotation.ColumnDate, Step: StepDateGrouping, Column: host.Name, Err: err}
		}
		r.log.Info("date columns grouped", "host", host.Name, "members", g.Names())
	}
	return grouping, nil
}

// selectPrimary orders candidates by their first column's table position,
// asks for the primary one and marks every candidate column.
// Invalid selections are recorded as issues and leave primaries unset.
func (r *run) selectPrimary(ctx context.Context, role annotation.ColumnType, candidates []Candidate, mark func(string, bool) error) error {
	sort.SliceStable(candidates, func(i, j int) bool {
		return r.firstPosition(candidates[i]) < r.firstPosition(candidates[j])
	})

	idx, err := SelectPrimary(ctx, r.engine.oracle, r.engine.opts.OracleTimeout, r.ds, role, candidates)
	if err != nil {
		if Fatal(err) {
			return err
		}
		r.log.Warn("primary selection skipped", "role", role, "error", err)
		r.issues = append(r.issues, issueFrom(err))
		return nil
	}
	if idx == NoPrimary {
		return nil
	}

	for i, c := range candidates {
		for _, name := range c.Columns {
			if err := mark(name, i == idx); err != nil {
				return &StageError{Role: role, Step: StepPrimary, Column: name, Err: err}
			}
		}
	}
	r.log.Info("primary selected", "role", role, "columns", candidates[idx].Columns)
	return nil
}

func (r *run) firstPosition(c Candidate) int {
	pos := len(r.order)
	for _, name := range c.Columns {
		if p, ok := r.order[name]; ok && p < pos {
			pos = p
		}
	}
	return pos
}

func (r *run) markGeo(name string, primary bool) error {
	a, ok := r.schema.Geo(name)
	if !ok {
		return fmt.Errorf("%w: %q", annotation.ErrUnknownColumn, name)
	}
	return r.schema.ReplaceGeo(a.WithPrimary(primary))
}

func (r *run) markDate(name string, primary bool) error {
	a, ok := r.schema.Date(name)
	if !ok {
		return fmt.Errorf("%w: %q", annotation.ErrUnknownColumn, name)
	}
	return r.schema.ReplaceDate(a.WithPrimary(primary))
}

func (r *run) inferTimeFormats(ctx context.Context) error {
	for _, a := range r.schema.DateAnnotations() {
		switch a.DateType {
		case annotation.DateYear, annotation.DateMonth, annotation.DateDay, annotation.DateDate:
		default:
			continue
		}

		col := r.column(a.Name)
		format, ok, err := InferTimeFormat(ctx, r.engine.oracle, r.engine.opts.OracleTimeout, r.ds, col, a.DateType)
		if err != nil {
			return err
		}
		if !ok {
			r.log.Info("time format skipped", "column", a.Name)
			continue
		}

		current, _ := r.schema.Date(a.Name)
		if err := r.schema.ReplaceDate(current.WithTimeFormat(format)); err != nil {
			return &StageError{Role: annotation.ColumnDate, Step: StepTimeFormat, Column: a.Name, Err: err}
		}
		r.log.Info("time format inferred", "column", a.Name, "time_format", format, "example", timefmt.Example(format))

		bad, err := timefmt.CheckSamples(format, col.Values)
		switch {
		case errors.Is(err, timefmt.ErrNoGoLayout):
			r.log.Debug("time format not checked against samples", "column", a.Name, "error", err)
		case len(bad) > 0:
			r.log.Warn("sample values do not parse with time format",
				"column", a.Name, "time_format", format, "first", bad[0].Value, "count", len(bad))
		}
	}
	return nil
}
