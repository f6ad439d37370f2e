// Package etl drives one synchronization run end to end: mapping lookup,
// schema reconciliation, row transformation, and batched idempotent loading.
package etl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldsync/fieldsync/internal/driver"
	"github.com/fieldsync/fieldsync/internal/logging"
	"github.com/fieldsync/fieldsync/internal/mapping"
	"github.com/fieldsync/fieldsync/internal/schema"
	"github.com/fieldsync/fieldsync/internal/transform"
)

// RowFailure records one source row that could not be transformed. The run
// continues past it; failures surface in the report only.
type RowFailure struct {
	Index  int    `json:"index"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

// Report summarizes one run.
type Report struct {
	RunID       string        `json:"run_id"`
	Table       string        `json:"table"`
	MappingKey  string        `json:"mapping_key"`
	SchemaMode  string        `json:"schema_mode"`
	Received    int           `json:"received"`
	Transformed int           `json:"transformed"`
	Loaded      int64         `json:"loaded"`
	Failed      int           `json:"failed"`
	Failures    []RowFailure  `json:"failures,omitempty"`
	Statements  []string      `json:"statements,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Options tunes a run without changing its semantics.
type Options struct {
	// DryRun generates and reports all SQL without executing anything.
	DryRun bool

	// Progress, when set, is called after each loaded batch with the number
	// of records loaded so far and the total to load.
	Progress func(done, total int)
}

// Orchestrator runs synchronizations against one destination store.
type Orchestrator struct {
	reg   mapping.Registry
	store driver.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns an orchestrator over the given registry and store.
func New(reg mapping.Registry, store driver.Store) *Orchestrator {
	return &Orchestrator{
		reg:   reg,
		store: store,
		locks: map[string]*sync.Mutex{},
	}
}

// tableLock serializes runs against the same destination table so the
// introspect-then-alter sequence never races a concurrent run.
func (o *Orchestrator) tableLock(table string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[strings.ToLower(table)]
	if !ok {
		l = &sync.Mutex{}
		o.locks[strings.ToLower(table)] = l
	}
	return l
}

// Run executes one synchronization. Steps run in a fixed order: resolve
// mappings, introspect the destination, reconcile schema, transform rows,
// load. A row that fails to transform is recorded and skipped; it never
// aborts the run. Mapping resolution and SQL execution errors do abort.
func (o *Orchestrator) Run(ctx context.Context, mappingKey string, rows []map[string]any, opts Options) (*Report, error) {
	start := time.Now()

	fields, tm, err := o.resolve(ctx, mappingKey)
	if err != nil {
		return nil, err
	}

	lock := o.tableLock(tm.TableName)
	lock.Lock()
	defer lock.Unlock()

	rep := &Report{
		RunID:      uuid.NewString(),
		Table:      tm.TableName,
		MappingKey: mappingKey,
		Received:   len(rows),
	}
	logging.Info("run %s: %d rows -> %s (%d mapped columns)",
		rep.RunID, len(rows), tm.TableName, len(fields))

	if err := o.reconcileSchema(ctx, tm, fields, rep, opts.DryRun); err != nil {
		return nil, err
	}

	syncedAt := time.Now().UTC()
	records := make([]transform.Record, 0, len(rows))
	for i, row := range rows {
		rec, err := transform.Row(row, fields, syncedAt)
		if err != nil {
			f := RowFailure{Index: i, Reason: err.Error()}
			var fe *transform.FieldError
			if errors.As(err, &fe) {
				f.Column = fe.Column
				f.Reason = fe.Reason
			}
			rep.Failures = append(rep.Failures, f)
			continue
		}
		// A record without its conflict key cannot be matched on redelivery;
		// it fails individually rather than aborting the batch it rides in.
		if tm.ConflictKey != "" {
			if _, ok := rec[tm.ConflictKey]; !ok {
				rep.Failures = append(rep.Failures, RowFailure{
					Index:  i,
					Column: tm.ConflictKey,
					Reason: "conflict key value missing from source row",
				})
				continue
			}
		}
		records = append(records, rec)
	}
	rep.Transformed = len(records)
	rep.Failed = len(rep.Failures)

	if err := o.load(ctx, tm, fields, records, rep, opts); err != nil {
		return nil, err
	}

	rep.Elapsed = time.Since(start)
	logging.Info("run %s: loaded %d, failed %d, elapsed %s",
		rep.RunID, rep.Loaded, rep.Failed, rep.Elapsed.Round(time.Millisecond))
	return rep, nil
}

// Plan resolves mappings and returns the schema reconciliation plan for a
// mapping key without executing or loading anything.
func (o *Orchestrator) Plan(ctx context.Context, mappingKey string) (*schema.Plan, error) {
	fields, tm, err := o.resolve(ctx, mappingKey)
	if err != nil {
		return nil, err
	}
	existing, err := o.store.ListColumns(ctx, tm.TableName)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s: %w", tm.TableName, err)
	}
	return schema.BuildPlan(o.store.Dialect(), tm, fields, existing)
}

// resolve loads the active field mappings and the table mapping for a key.
// A key with no active mappings is a configuration error, caught here before
// any destination work happens.
func (o *Orchestrator) resolve(ctx context.Context, mappingKey string) ([]mapping.FieldMapping, mapping.TableMapping, error) {
	fields, err := o.reg.GetActiveMappings(ctx, mappingKey)
	if err != nil {
		return nil, mapping.TableMapping{}, fmt.Errorf("resolving mappings for %s: %w", mappingKey, err)
	}
	if len(fields) == 0 {
		return nil, mapping.TableMapping{}, fmt.Errorf("%w: %s", mapping.ErrNoMappings, mappingKey)
	}
	tm, err := o.reg.GetTableMapping(ctx, mappingKey)
	if err != nil {
		return nil, mapping.TableMapping{}, fmt.Errorf("resolving table mapping for %s: %w", mappingKey, err)
	}
	return fields, tm, nil
}

func (o *Orchestrator) reconcileSchema(ctx context.Context, tm mapping.TableMapping, fields []mapping.FieldMapping, rep *Report, dryRun bool) error {
	existing, err := o.store.ListColumns(ctx, tm.TableName)
	if err != nil {
		return fmt.Errorf("introspecting %s: %w", tm.TableName, err)
	}
	plan, err := schema.BuildPlan(o.store.Dialect(), tm, fields, existing)
	if err != nil {
		return fmt.Errorf("planning schema for %s: %w", tm.TableName, err)
	}
	rep.SchemaMode = string(plan.Mode)
	rep.Statements = append(rep.Statements, plan.Statements...)

	if dryRun {
		return nil
	}
	for _, stmt := range plan.Statements {
		if _, err := o.store.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement %q: %w", firstLine(stmt), err)
		}
	}
	if len(plan.Statements) > 0 {
		logging.Info("run %s: schema %s, %d statements", rep.RunID, plan.Mode, len(plan.Statements))
	}
	return nil
}

// load groups records by their column signature and issues one batched upsert
// per group. Records that omit columns (absent source fields) get their own
// narrower statement instead of forcing nulls into untouched columns.
func (o *Orchestrator) load(ctx context.Context, tm mapping.TableMapping, fields []mapping.FieldMapping, records []transform.Record, rep *Report, opts Options) error {
	groups := map[string][]transform.Record{}
	var order []string
	for _, rec := range records {
		sig := strings.Join(rec.Columns(fields), ",")
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], rec)
	}
	sort.Strings(order)

	done := 0
	for _, sig := range order {
		batch := groups[sig]
		if sig == "" {
			// Every mapped field was omitted; nothing to write.
			done += len(batch)
			continue
		}
		cols := strings.Split(sig, ",")
		up, err := schema.BuildUpsert(o.store.Dialect(), tm.TableName, cols, tm.ConflictKey)
		if err != nil {
			return fmt.Errorf("building upsert for %s: %w", tm.TableName, err)
		}
		rep.Statements = append(rep.Statements, up.SQL)

		if opts.DryRun {
			done += len(batch)
			continue
		}

		argSets := make([][]any, len(batch))
		for i, rec := range batch {
			args := make([]any, len(up.Columns))
			for j, c := range up.Columns {
				args[j] = rec[c]
			}
			argSets[i] = args
		}
		n, err := o.store.ExecBatch(ctx, up.SQL, argSets)
		if err != nil {
			return fmt.Errorf("loading %d rows into %s: %w", len(batch), tm.TableName, err)
		}
		// Some stores report upsert counts above the input size (an update
		// can count as two); clamp to the batch so totals stay meaningful.
		if n > int64(len(batch)) {
			n = int64(len(batch))
		}
		rep.Loaded += n
		done += len(batch)
		if opts.Progress != nil {
			opts.Progress(done, len(records))
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + "..."
	}
	return s
}
