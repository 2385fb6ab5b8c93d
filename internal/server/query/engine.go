// Package query builds and runs equality-constraint statements. Constraints
// whose value is a wildcard are dropped before the predicate is built, every
// value is bound as a parameter and identifiers are checked against a fixed
// pattern, so no caller-supplied text ever reaches the SQL string.
package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/dbx"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Join selects how column predicates are combined.
type Join int

const (
	Intersection Join = iota // AND
	Union                    // OR
)

func (j Join) keyword() string {
	if j == Union {
		return " OR "
	}
	return " AND "
}

// Optional is a value that may be a wildcard. wildcard.Value satisfies it.
type Optional interface {
	Interface() (any, bool)
}

type fixed struct{ v any }

func (f fixed) Interface() (any, bool) { return f.v, true }

// Value wraps a concrete value that is never a wildcard.
func Value(v any) Optional { return fixed{v} }

// Constraint binds a column to an optional value.
type Constraint struct {
	Column string
	Value  Optional
}

// Constraints keep their order so generated SQL is stable.
type Constraints []Constraint

func Eq(column string, v Optional) Constraint {
	return Constraint{Column: column, Value: v}
}

type term struct {
	column string
	value  any
}

func (cs Constraints) terms() ([]term, error) {
	out := make([]term, 0, len(cs))
	for _, c := range cs {
		if !identRe.MatchString(c.Column) {
			return nil, fmt.Errorf("%w: bad column name %q", common.ErrIllegalOperation, c.Column)
		}
		if c.Value == nil {
			continue
		}
		if v, ok := c.Value.Interface(); ok {
			out = append(out, term{column: c.Column, value: v})
		}
	}
	return out, nil
}

// Bounds are post-conditions on a select result. Zero fields are unchecked.
type Bounds struct {
	MinRecords int
	MaxRecords int
	Fields     int
}

type Engine struct {
	dialect dbx.Dialect
}

func New(d dbx.Dialect) *Engine {
	return &Engine{dialect: d}
}

func (e *Engine) Dialect() dbx.Dialect { return e.dialect }

// where renders the predicate for ts with placeholders numbered from start.
// An empty ts renders no WHERE clause and so matches every row.
func (e *Engine) where(ts []term, join Join, start int) (string, []any) {
	if len(ts) == 0 {
		return "", nil
	}
	parts := make([]string, len(ts))
	args := make([]any, len(ts))
	for i, t := range ts {
		parts[i] = t.column + " = " + e.dialect.Placeholder(start+i)
		args[i] = t.value
	}
	return " WHERE " + strings.Join(parts, join.keyword()), args
}

func checkTable(table string) error {
	if !identRe.MatchString(table) {
		return fmt.Errorf("%w: bad table name %q", common.ErrIllegalOperation, table)
	}
	return nil
}

// Select returns the rows of table matching where, one []any per row in the
// order of columns (all columns when columns is empty).
func (e *Engine) Select(ctx context.Context, db dbx.DBTX, table string, columns []string, where Constraints, join Join, b Bounds) ([][]any, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	projection := "*"
	if len(columns) > 0 {
		for _, c := range columns {
			if !identRe.MatchString(c) {
				return nil, fmt.Errorf("%w: bad column name %q", common.ErrIllegalOperation, c)
			}
		}
		projection = strings.Join(columns, ", ")
	}
	ts, err := where.terms()
	if err != nil {
		return nil, err
	}
	clause, args := e.where(ts, join, 1)
	query := "SELECT " + projection + " FROM " + table + clause

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, wrap(ctx, err)
	}
	if b.Fields > 0 && len(cols) != b.Fields {
		return nil, fmt.Errorf("%w: %s rows have %d fields, expected %d", common.ErrStorageState, table, len(cols), b.Fields)
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrap(ctx, err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ctx, err)
	}

	if len(out) < b.MinRecords {
		return nil, fmt.Errorf("%w: %s returned %d records, expected at least %d", common.ErrStorageState, table, len(out), b.MinRecords)
	}
	if b.MaxRecords > 0 && len(out) > b.MaxRecords {
		return nil, fmt.Errorf("%w: %s returned %d records, expected at most %d", common.ErrStorageState, table, len(out), b.MaxRecords)
	}
	return out, nil
}

// Update sets the non-wildcard entries of set on the rows matching where.
// An empty set is a no-op.
func (e *Engine) Update(ctx context.Context, db dbx.DBTX, table string, where Constraints, join Join, set Constraints) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	updates, err := set.terms()
	if err != nil {
		return 0, err
	}
	ts, err := where.terms()
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}

	assignments := make([]string, len(updates))
	args := make([]any, 0, len(updates)+len(ts))
	for i, u := range updates {
		assignments[i] = u.column + " = " + e.dialect.Placeholder(i+1)
		args = append(args, u.value)
	}
	clause, whereArgs := e.where(ts, join, len(updates)+1)
	args = append(args, whereArgs...)

	query := "UPDATE " + table + " SET " + strings.Join(assignments, ", ") + clause
	return exec(ctx, db, query, args)
}

// Delete removes the rows matching where.
func (e *Engine) Delete(ctx context.Context, db dbx.DBTX, table string, where Constraints, join Join) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	ts, err := where.terms()
	if err != nil {
		return 0, err
	}
	clause, args := e.where(ts, join, 1)
	return exec(ctx, db, "DELETE FROM "+table+clause, args)
}

// Insert adds one row from the non-wildcard entries of values.
func (e *Engine) Insert(ctx context.Context, db dbx.DBTX, table string, values Constraints) error {
	if err := checkTable(table); err != nil {
		return err
	}
	ts, err := values.terms()
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		return fmt.Errorf("%w: insert into %s without values", common.ErrIllegalOperation, table)
	}
	cols := make([]string, len(ts))
	marks := make([]string, len(ts))
	args := make([]any, len(ts))
	for i, t := range ts {
		cols[i] = t.column
		marks[i] = e.dialect.Placeholder(i + 1)
		args[i] = t.value
	}
	query := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	_, err = exec(ctx, db, query, args)
	return err
}

func exec(ctx context.Context, db dbx.DBTX, query string, args []any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrap(ctx, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap(ctx, err)
	}
	return n, nil
}

// wrap keeps the driver error in the chain for callers that inspect it, and
// tags timeouts and lock contention as storage unavailability.
func wrap(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) || dbx.IsRetryable(err) {
		return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("db error: %w", err)
}
