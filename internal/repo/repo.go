package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Repo is a document store over SQLite. Each document is a JSON object
// addressed by (collection, id).
type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type Op string

const (
	OpEq  Op = "=="
	OpIn  Op = "in"
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

type Order struct {
	Field string
	Desc  bool
}

// Query selects documents from one collection. Results are ordered by
// OrderBy and then by insertion sequence.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    []Order
	AfterSeq   int64
	Limit      int
}

type Document struct {
	Collection string
	ID         string
	Seq        int64
	Data       json.RawMessage
}

// Decode unmarshals the document body into dst.
func (d Document) Decode(dst any) error {
	return json.Unmarshal(d.Data, dst)
}

// Writer is the set of mutations available both directly on Repo and
// inside a Batch.
type Writer interface {
	Create(ctx context.Context, collection, id string, doc any) error
	Set(ctx context.Context, collection, id string, doc any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339Nano)
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (r Repo) Get(ctx context.Context, collection, id string, dst any) error {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT data_json FROM documents WHERE collection=? AND id=?`, collection, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(payload), dst)
}

func (r Repo) Query(ctx context.Context, q Query) ([]Document, error) {
	if q.Collection == "" {
		return nil, errors.New("collection required")
	}
	clauses := []string{"collection=?"}
	args := []any{q.Collection}
	for _, f := range q.Where {
		clause, fargs, err := filterClause(f)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, fargs...)
	}
	if q.AfterSeq > 0 {
		clauses = append(clauses, "seq>?")
		args = append(args, q.AfterSeq)
	}
	var order []string
	for _, o := range q.OrderBy {
		if !fieldPattern.MatchString(o.Field) {
			return nil, fmt.Errorf("invalid order field %q", o.Field)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		order = append(order, fmt.Sprintf("json_extract(data_json, '$.%s') %s", o.Field, dir))
	}
	order = append(order, "seq ASC")
	query := `SELECT seq,id,data_json FROM documents WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY ` + strings.Join(order, ", ")
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Document
	for rows.Next() {
		d := Document{Collection: q.Collection}
		var payload string
		if err := rows.Scan(&d.Seq, &d.ID, &payload); err != nil {
			return nil, err
		}
		d.Data = json.RawMessage(payload)
		res = append(res, d)
	}
	return res, rows.Err()
}

func filterClause(f Filter) (string, []any, error) {
	if !fieldPattern.MatchString(f.Field) {
		return "", nil, fmt.Errorf("invalid filter field %q", f.Field)
	}
	path := "json_extract(data_json, '$." + f.Field + "')"
	switch f.Op {
	case OpEq:
		if f.Value == nil {
			return path + " IS NULL", nil, nil
		}
		return path + "=?", []any{f.Value}, nil
	case OpGt, OpGte, OpLt, OpLte:
		return path + string(f.Op) + "?", []any{f.Value}, nil
	case OpIn:
		values, ok := toSlice(f.Value)
		if !ok {
			return "", nil, fmt.Errorf("filter %s in: value must be a slice", f.Field)
		}
		if len(values) == 0 {
			return "0", nil, nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		return path + " IN (" + marks + ")", values, nil
	default:
		return "", nil, fmt.Errorf("unsupported filter op %q", f.Op)
	}
}

func toSlice(v any) ([]any, bool) {
	switch vals := v.(type) {
	case []any:
		return vals, true
	case []string:
		out := make([]any, 0, len(vals))
		for _, s := range vals {
			out = append(out, s)
		}
		return out, true
	case []int:
		out := make([]any, 0, len(vals))
		for _, n := range vals {
			out = append(out, n)
		}
		return out, true
	}
	return nil, false
}

func (r Repo) Create(ctx context.Context, collection, id string, doc any) error {
	return create(ctx, r.DB, collection, id, doc, r.now())
}

func (r Repo) Set(ctx context.Context, collection, id string, doc any) error {
	return set(ctx, r.DB, collection, id, doc, r.now())
}

func (r Repo) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return r.Batch(ctx, func(w Writer) error {
		return w.Update(ctx, collection, id, fields)
	})
}

func (r Repo) Delete(ctx context.Context, collection, id string) error {
	return remove(ctx, r.DB, collection, id)
}

// Batch runs fn inside one transaction. Either every write fn issues is
// committed or none is.
func (r Repo) Batch(ctx context.Context, fn func(w Writer) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(txWriter{tx: tx, now: r.now()}); err != nil {
		return err
	}
	return tx.Commit()
}

type txWriter struct {
	tx  *sql.Tx
	now string
}

func (w txWriter) Create(ctx context.Context, collection, id string, doc any) error {
	return create(ctx, w.tx, collection, id, doc, w.now)
}

func (w txWriter) Set(ctx context.Context, collection, id string, doc any) error {
	return set(ctx, w.tx, collection, id, doc, w.now)
}

func (w txWriter) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	var payload string
	err := w.tx.QueryRowContext(ctx, `SELECT data_json FROM documents WHERE collection=? AND id=?`, collection, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	merged := map[string]any{}
	if err := json.Unmarshal([]byte(payload), &merged); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	_, err = w.tx.ExecContext(ctx, `UPDATE documents SET data_json=?, updated_at=? WHERE collection=? AND id=?`,
		string(data), w.now, collection, id)
	return err
}

func (w txWriter) Delete(ctx context.Context, collection, id string) error {
	return remove(ctx, w.tx, collection, id)
}

func create(ctx context.Context, db execer, collection, id string, doc any, now string) error {
	data, err := encode(collection, id, doc)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `INSERT INTO documents(collection,id,data_json,created_at,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(collection,id) DO NOTHING`, collection, id, data, now, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	return nil
}

func set(ctx context.Context, db execer, collection, id string, doc any, now string) error {
	data, err := encode(collection, id, doc)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO documents(collection,id,data_json,created_at,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(collection,id) DO UPDATE SET data_json=excluded.data_json, updated_at=excluded.updated_at`, collection, id, data, now, now)
	return err
}

func remove(ctx context.Context, db execer, collection, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM documents WHERE collection=? AND id=?`, collection, id)
	return err
}

func encode(collection, id string, doc any) (string, error) {
	if collection == "" || id == "" {
		return "", errors.New("collection and id required")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return string(data), nil
}
