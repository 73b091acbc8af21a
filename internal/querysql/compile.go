// Package querysql compiles query predicate trees to parameterized SQLite
// WHERE clauses over JSON documents.
//
// Records are stored as canonical JSON text in a single column. Each leaf
// predicate becomes a json_type guard plus a json_extract comparison, so SQL
// evaluation agrees with query.Matches: a value of another JSON type never
// compares equal, and a missing path makes the leaf false (never NULL).
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/recordstore/internal/ir"
	"github.com/roach88/recordstore/query"
)

// SQLCompiler compiles predicate trees for one table layout.
//
// CRITICAL: ALL queries include ORDER BY seq for storage-order results.
// CRITICAL: All values and paths are parameterized (never interpolated).
type SQLCompiler struct {
	// Table is the records table name.
	Table string

	// Column is the TEXT column holding each record's JSON document.
	Column string
}

// NewSQLCompiler creates a compiler for the default "records(id, seq, doc)" layout.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "records", Column: "doc"}
}

// CompileSelect returns a SELECT of (id, doc) rows matching p in storage order.
// A nil predicate selects every row.
func (c *SQLCompiler) CompileSelect(p query.Predicate) (string, []any, error) {
	var where string
	var params []any
	if p != nil {
		sql, args, err := c.CompileWhere(p)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where = " WHERE " + sql
		params = args
	}
	sql := fmt.Sprintf("SELECT id, %s FROM %s%s ORDER BY %s", c.Column, c.Table, where, stableOrderKey())
	return sql, params, nil
}

// stableOrderKey is the ORDER BY clause every query uses.
// seq is unique, the id tiebreaker keeps the clause total if it ever is not.
func stableOrderKey() string {
	return "seq ASC, id COLLATE BINARY ASC"
}

// CompileWhere compiles p to a boolean SQL expression that is never NULL.
// It fails for predicates outside the pushdown fragment (see query.Portable).
func (c *SQLCompiler) CompileWhere(p query.Predicate) (string, []any, error) {
	if res := query.Portable(p); !res.IsPortable {
		return "", nil, fmt.Errorf("predicate not pushable: %s", strings.Join(res.Warnings, "; "))
	}
	return c.compilePredicate(p)
}

func (c *SQLCompiler) compilePredicate(p query.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1", nil, nil
	case query.Compare:
		return c.compileCompare(pred)
	case query.In:
		if len(pred.Values) == 0 {
			return "0", nil, nil
		}
		var parts []string
		var params []any
		for _, v := range pred.Values {
			sql, args, err := c.compileCompare(query.Compare{Path: pred.Path, Op: query.OpEqual, Value: v})
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "("+sql+")")
			params = append(params, args...)
		}
		return strings.Join(parts, " OR "), params, nil
	case query.Exists:
		return fmt.Sprintf("json_type(%s, ?) IS NOT NULL", c.Column), []any{jsonPath(pred.Path)}, nil
	case query.And:
		return c.compileJunction(pred.Predicates, " AND ", "1")
	case query.Or:
		return c.compileJunction(pred.Predicates, " OR ", "0")
	case query.Not:
		sql, params, err := c.compilePredicate(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileJunction(preds []query.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(preds))
	var params []any
	for _, sub := range preds {
		sql, args, err := c.compilePredicate(sub)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, args...)
	}
	return strings.Join(parts, sep), params, nil
}

// compileCompare emits "<type guard> AND json_extract(doc, path) <op> ?".
// The guard keeps the comparison within one JSON type, matching ir.Compare.
func (c *SQLCompiler) compileCompare(cmp query.Compare) (string, []any, error) {
	path := jsonPath(cmp.Path)
	guard, types := c.typeGuard(cmp.Value)

	if cmp.Op == query.OpNotEqual {
		eq, params, err := c.compileCompare(query.Compare{Path: cmp.Path, Op: query.OpEqual, Value: cmp.Value})
		if err != nil {
			return "", nil, err
		}
		sql := fmt.Sprintf("json_type(%s, ?) IS NOT NULL AND NOT (%s)", c.Column, eq)
		return sql, append([]any{path}, params...), nil
	}

	if _, isNull := cmp.Value.(ir.IRNull); isNull {
		if cmp.Op != query.OpEqual {
			return "", nil, fmt.Errorf("null is unordered: %s", cmp)
		}
		return guard, types(path), nil
	}

	op, err := sqlOperator(cmp.Op)
	if err != nil {
		return "", nil, err
	}
	param, err := irValueToParam(cmp.Value)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	sql := fmt.Sprintf("%s AND json_extract(%s, ?) %s ?", guard, c.Column, op)
	return sql, append(types(path), path, param), nil
}

// typeGuard returns the SQL that checks the JSON type at a path, and a
// function producing its parameters.
func (c *SQLCompiler) typeGuard(v ir.IRValue) (string, func(path string) []any) {
	expr := fmt.Sprintf("IFNULL(json_type(%s, ?), '')", c.Column)
	params := func(path string) []any { return []any{path} }
	switch v.(type) {
	case ir.IRString:
		return expr + " = 'text'", params
	case ir.IRInt, ir.IRFloat:
		return expr + " IN ('integer', 'real')", params
	case ir.IRBool:
		return expr + " IN ('true', 'false')", params
	default:
		return expr + " = 'null'", params
	}
}

func sqlOperator(op query.Op) (string, error) {
	switch op {
	case query.OpEqual:
		return "=", nil
	case query.OpLess:
		return "<", nil
	case query.OpLessOrEqual:
		return "<=", nil
	case query.OpGreater:
		return ">", nil
	case query.OpGreaterOrEqual:
		return ">=", nil
	default:
		return "", fmt.Errorf("unsupported operator: %s", op)
	}
}

// jsonPath renders a pointer as an SQLite JSON path with every key quoted.
// Portable has already rejected segments that would need escaping.
func jsonPath(p ir.Pointer) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range p {
		b.WriteString(`."`)
		b.WriteString(seg)
		b.WriteString(`"`)
	}
	return b.String()
}

// irValueToParam converts a scalar ir.IRValue to a SQL parameter.
// Booleans become 1/0, the values json_extract yields for JSON true/false.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRFloat:
		return float64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRNull:
		return nil, nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
