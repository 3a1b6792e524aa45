package rowstore

import (
	"context"
	"regexp"
	"strings"

	"rowstore/storage"
)

// reservedPrefix is used by the catalog tables and hidden columns.
const reservedPrefix = "rowstore_"

var identRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Execute runs cmd against the handle. Commands may be passed by value or by
// pointer.
//
// Every failure is an *Error, except for an InsertBatch under
// ContinueOnError, which reports failing tuples through a *BatchError along
// with the count of rows that were persisted.
func (h *Handle) Execute(ctx context.Context, cmd Command) (Result, error) {
	cmd, ok := deref(cmd)
	if !ok {
		if _, _, e := h.driver("execute", ""); e != nil {
			return Result{}, e
		}
		return Result{}, validationf("execute", "", "nil command")
	}

	op, table := cmd.op(), cmd.table()
	drv, gen, e := h.driver(op, table)
	if e != nil {
		return Result{}, e
	}

	cfg := h.Config
	if cfg.Verbose {
		h.log().Debug("execute", "op", op, "table", table)
	}

	var (
		res Result
		err error
	)
	switch c := cmd.(type) {
	case CreateTable:
		res, err = h.createTable(ctx, drv, gen, c)
	case Insert:
		res, err = h.insert(ctx, drv, gen, c)
	case InsertBatch:
		res, err = h.insertBatch(ctx, drv, gen, c)
	case Select:
		res, err = h.query(ctx, drv, gen, c)
	}
	if err != nil && cfg.Verbose {
		h.log().Warn("execute failed", "op", op, "table", table, "err", err)
	}
	return res, err
}

func deref(cmd Command) (Command, bool) {
	switch c := cmd.(type) {
	case nil:
		return nil, false
	case *CreateTable:
		if c == nil {
			return nil, false
		}
		return *c, true
	case *Insert:
		if c == nil {
			return nil, false
		}
		return *c, true
	case *InsertBatch:
		if c == nil {
			return nil, false
		}
		return *c, true
	case *Select:
		if c == nil {
			return nil, false
		}
		return *c, true
	}
	return cmd, true
}

func checkIdent(op, table, what, name string) *Error {
	if !identRE.MatchString(name) {
		return validationf(op, table, "invalid %s name %q", what, name)
	}
	if strings.HasPrefix(strings.ToLower(name), reservedPrefix) {
		return validationf(op, table, "%s name %q uses the reserved prefix %q", what, name, reservedPrefix)
	}
	return nil
}

func (h *Handle) createTable(ctx context.Context, drv storage.Driver, gen uint64, c CreateTable) (Result, error) {
	const op = "create table"
	if e := checkIdent(op, c.Table, "table", c.Table); e != nil {
		return Result{}, e
	}
	if len(c.Columns) == 0 {
		return Result{}, validationf(op, c.Table, "table needs at least one column")
	}

	// Column names are compared case-insensitively: SQLite does.
	seen := make(map[string]bool, len(c.Columns))
	keys := 0
	for _, col := range c.Columns {
		if e := checkIdent(op, c.Table, "column", col.Name); e != nil {
			e.Column = col.Name
			return Result{}, e
		}
		folded := strings.ToLower(col.Name)
		if seen[folded] {
			e := validationf(op, c.Table, "duplicate column %q", col.Name)
			e.Column = col.Name
			return Result{}, e
		}
		seen[folded] = true
		if !col.Type.Valid() {
			e := validationf(op, c.Table, "column %q has no valid type", col.Name)
			e.Column = col.Name
			return Result{}, e
		}
		if col.PrimaryKey {
			keys++
		}
	}
	if keys > 1 {
		return Result{}, validationf(op, c.Table, "table has %d primary key columns, at most one is allowed", keys)
	}

	// A name differing from an existing table only by case is that table.
	def := storage.TableDef{Name: c.Table, Columns: append([]Column(nil), c.Columns...)}
	created, err := drv.CreateTable(ctx, def)
	if err != nil {
		return Result{}, h.fail(op, c.Table, gen, err)
	}
	if created {
		h.remember(gen, def)
	}
	return Result{Created: created}, nil
}

func (h *Handle) insert(ctx context.Context, drv storage.Driver, gen uint64, c Insert) (Result, error) {
	const op = "insert"
	def, e := h.table(ctx, drv, gen, op, c.Table)
	if e != nil {
		return Result{}, e
	}
	args, e := bindRow(op, def, c.Columns, c.Values)
	if e != nil {
		return Result{}, e
	}
	if err := drv.Insert(ctx, def, args); err != nil {
		return Result{}, h.insertFailure(op, def, gen, args, err)
	}
	return Result{RowsAffected: 1}, nil
}

func (h *Handle) insertBatch(ctx context.Context, drv storage.Driver, gen uint64, c InsertBatch) (Result, error) {
	const op = "insert batch"
	if c.Policy != ContinueOnError && c.Policy != AllOrNothing {
		return Result{}, validationf(op, c.Table, "batch policy must be ContinueOnError or AllOrNothing")
	}
	def, e := h.table(ctx, drv, gen, op, c.Table)
	if e != nil {
		return Result{}, e
	}
	if c.Policy == AllOrNothing {
		return h.insertAll(ctx, drv, gen, def, c)
	}

	var (
		affected int64
		batchErr = &BatchError{Table: c.Table}
	)
	for i, values := range c.Rows {
		args, e := bindRow(op, def, c.Columns, values)
		if e == nil {
			if err := drv.Insert(ctx, def, args); err != nil {
				e = h.insertFailure(op, def, gen, args, err)
			}
		}
		if e == nil {
			affected++
			continue
		}
		e.Tuple = i
		batchErr.Failures = append(batchErr.Failures, e)
		// Only rejected tuples are skipped; a broken backend ends the batch.
		if e.Kind == KindIO || e.Kind == KindState {
			batchErr.Aborted = true
			break
		}
	}
	res := Result{RowsAffected: affected}
	if len(batchErr.Failures) > 0 {
		return res, batchErr
	}
	return res, nil
}

// insertAll validates every tuple before touching storage, then inserts them
// in a single transaction.
func (h *Handle) insertAll(ctx context.Context, drv storage.Driver, gen uint64, def storage.TableDef, c InsertBatch) (Result, error) {
	const op = "insert batch"
	bound := make([][]any, len(c.Rows))
	for i, values := range c.Rows {
		args, e := bindRow(op, def, c.Columns, values)
		if e != nil {
			e.Tuple = i
			return Result{}, e
		}
		bound[i] = args
	}

	var failed *Error
	err := drv.Atomic(ctx, func(w storage.Writer) error {
		for i, args := range bound {
			if err := w.Insert(ctx, def, args); err != nil {
				failed = h.insertFailure(op, def, gen, args, err)
				failed.Tuple = i
				return failed
			}
		}
		return nil
	})
	if err != nil {
		if failed == nil {
			failed = h.fail(op, def.Name, gen, err)
		}
		return Result{}, failed
	}
	return Result{RowsAffected: int64(len(bound))}, nil
}

// insertFailure classifies a failed insert and, for constraint violations,
// attaches the value that collided.
func (h *Handle) insertFailure(op string, def storage.TableDef, gen uint64, args []any, err error) *Error {
	e := h.fail(op, def.Name, gen, err)
	if e.Kind != KindConstraint || e.Column == "" {
		return e
	}
	if i := def.Index(e.Column); i >= 0 {
		if v, err := valueFromRaw(args[i], def.Columns[i].Type); err == nil {
			e.Value = &v
		}
	}
	return e
}

// bindRow checks values against the table definition and returns them in
// table column order, ready to be bound. Columns left out of an explicit
// column list are NULL.
func bindRow(op string, def storage.TableDef, columns []string, values []Value) ([]any, *Error) {
	row := make([]Value, len(def.Columns))
	if len(columns) == 0 {
		if len(values) != len(def.Columns) {
			return nil, validationf(op, def.Name, "expected %d values, got %d", len(def.Columns), len(values))
		}
		copy(row, values)
	} else {
		if len(values) != len(columns) {
			return nil, validationf(op, def.Name, "%d columns listed but %d values given", len(columns), len(values))
		}
		set := make([]bool, len(def.Columns))
		for i, name := range columns {
			idx := def.Index(name)
			if idx < 0 {
				e := validationf(op, def.Name, "unknown column %q", name)
				e.Column = name
				return nil, e
			}
			if set[idx] {
				e := validationf(op, def.Name, "column %q listed twice", name)
				e.Column = name
				return nil, e
			}
			set[idx] = true
			row[idx] = values[i]
		}
	}

	args := make([]any, len(def.Columns))
	for i, col := range def.Columns {
		v := row[i]
		if !v.fits(col.Type) {
			e := validationf(op, def.Name, "column %q is %s, got %s", col.Name, col.Type, v.Type())
			e.Column = col.Name
			e.Value = &v
			return nil, e
		}
		if v.IsNull() && col.Required() {
			e := validationf(op, def.Name, "column %q may not be NULL", col.Name)
			e.Column = col.Name
			e.Value = &v
			return nil, e
		}
		args[i] = v.raw()
	}
	return args, nil
}

func (h *Handle) query(ctx context.Context, drv storage.Driver, gen uint64, c Select) (Result, error) {
	const op = "select"
	def, e := h.table(ctx, drv, gen, op, c.Table)
	if e != nil {
		return Result{}, e
	}

	var filter *storage.Filter
	if c.Where != nil {
		idx := def.Index(c.Where.Column)
		if idx < 0 {
			e := validationf(op, def.Name, "unknown column %q", c.Where.Column)
			e.Column = c.Where.Column
			return Result{}, e
		}
		v := c.Where.Value
		if col := def.Columns[idx]; !v.fits(col.Type) {
			e := validationf(op, def.Name, "column %q is %s, cannot compare with %s", col.Name, col.Type, v.Type())
			e.Column = col.Name
			e.Value = &v
			return Result{}, e
		}
		filter = &storage.Filter{Column: def.Columns[idx].Name, Value: v.raw()}
	}

	cur, err := drv.Scan(ctx, def, filter)
	if err != nil {
		return Result{}, h.fail(op, def.Name, gen, err)
	}
	r := newReader(h, gen, def, cur)
	if !h.track(r) {
		_ = cur.Close()
		return Result{}, newError(KindState, op, def.Name, errHandleClosed)
	}
	return Result{Rows: r}, nil
}
