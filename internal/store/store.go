package store

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"devhub/internal/dbctx"
	"devhub/internal/logger"
	"devhub/internal/query"
)

var ErrNotFound = errors.New("not found")

// Store is the gorm-backed table access for one entity type.
type Store[T any] struct {
	db  *gorm.DB
	log *logger.Logger
}

func New[T any](db *gorm.DB, baseLog *logger.Logger) *Store[T] {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	var zero T
	table := ""
	if s, err := query.SchemaOf(&zero); err == nil {
		table = s.Table
	}
	return &Store[T]{db: db, log: baseLog.With("store", table)}
}

// Transaction runs fn in a transaction bound to dbc. An existing transaction is reused.
func (s *Store[T]) Transaction(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return dbc.DB(s.db).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}

func scoped(t *gorm.DB, f query.Filter) *gorm.DB {
	if len(f.Where) > 0 {
		t = t.Clauses(clause.Where{Exprs: f.Where})
	}
	return t
}

func (s *Store[T]) Create(dbc dbctx.Context, rows ...*T) error {
	if len(rows) == 0 {
		return nil
	}
	return dbc.DB(s.db).Create(rows).Error
}

func (s *Store[T]) Get(dbc dbctx.Context, id string) (*T, error) {
	var out T
	err := dbc.DB(s.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Find returns rows matching f. A non-positive limit means no limit.
func (s *Store[T]) Find(dbc dbctx.Context, f query.Filter, limit, offset int) ([]T, error) {
	t := scoped(dbc.DB(s.db).Model(new(T)), f)
	for _, o := range f.Order {
		t = t.Order(o)
	}
	if limit > 0 {
		t = t.Limit(limit)
	}
	if offset > 0 {
		t = t.Offset(offset)
	}
	out := []T{}
	if err := t.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store[T]) Count(dbc dbctx.Context, f query.Filter) (int64, error) {
	var n int64
	err := scoped(dbc.DB(s.db).Model(new(T)), f).Count(&n).Error
	return n, err
}

// Update writes the non-zero fields of row onto the record with the given id, never
// touching the omitted columns. It reports the number of matched rows.
func (s *Store[T]) Update(dbc dbctx.Context, id string, row *T, omit ...string) (int64, error) {
	t := dbc.DB(s.db).Model(new(T)).Where("id = ?", id)
	if len(omit) > 0 {
		t = t.Omit(omit...)
	}
	res := t.Updates(row)
	return res.RowsAffected, res.Error
}

// UpdateColumns sets the given columns on one record.
func (s *Store[T]) UpdateColumns(dbc dbctx.Context, id string, values map[string]any) (int64, error) {
	res := dbc.DB(s.db).Model(new(T)).Where("id = ?", id).UpdateColumns(values)
	return res.RowsAffected, res.Error
}

// Delete removes the records with the given ids permanently.
func (s *Store[T]) Delete(dbc dbctx.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(s.db).Where("id IN ?", ids).Delete(new(T))
	return res.RowsAffected, res.Error
}

// DeleteWhere removes every record matching f. An empty filter deletes nothing.
func (s *Store[T]) DeleteWhere(dbc dbctx.Context, f query.Filter) (int64, error) {
	if len(f.Where) == 0 {
		return 0, nil
	}
	res := scoped(dbc.DB(s.db), f).Delete(new(T))
	return res.RowsAffected, res.Error
}
