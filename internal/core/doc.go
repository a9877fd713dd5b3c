// Package core annotates the columns of a table with semantic roles.
//
// The package holds all annotation logic independent of any UI or
// transport layer. It is used by the CLI, the web handlers and tests
// without modification; the oracle and the human operator are injected.
//
// # Pipeline
//
// [Engine.Annotate] runs these stages strictly in order:
//
//  1. Role: every column is classified as GEO, DATE or FEATURE through the
//     [Classifier] escalation ladder. Columns the operator declines are
//     dropped.
//  2. Subtype: date, then geo, then feature columns get their subtype and
//     a fresh annotation is appended to the schema.
//  3. Geo pairing: LATITUDE/LONGITUDE columns are paired by [PairGeo].
//  4. Coordinate order: COORDINATES columns are resolved to LATLON or
//     LONLAT by [ResolveCoordOrder].
//  5. Date grouping: YEAR/MONTH/DAY columns are grouped by [GroupDates].
//  6. Primary: one geo and one date candidate is marked primary by
//     [SelectPrimary].
//  7. Time format: every date column gets a strftime pattern from
//     [InferTimeFormat].
//
// Annotations are never edited in place. A stage that changes one builds a
// new value and replaces it in the [annotation.Schema] at the same position.
//
// # Runs
//
// [Service] executes annotations in the background for the web layer. The
// number of concurrent runs is bounded by a [RunLimiter]; progress is
// broadcast to subscribers via [Service.Subscribe] and finished runs are
// handed to an optional [RunStore]. [RunHistory] is the PostgreSQL store;
// [Service.StartPruneScheduler] deletes stored runs past their retention.
//
// # Error Handling
//
// Ambiguous pairings, oracle contract violations and oracle outages on
// steps without an escalation path abort the run with a [*StageError]
// naming the role, step and column. The report returned alongside still
// holds every committed annotation. Invalid primary selections are
// recorded as [Issue] values and the run continues.
//
// Technical errors are mapped to operator-facing messages using [MapError]:
//
//   - ANN001-ANN005: annotation errors (ambiguity, oracle contract, outages)
//   - TBL001-TBL004: table loading errors
//   - RUN001-RUN004: run management errors
package core
