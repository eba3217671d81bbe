package record

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"gorm.io/gorm"

	"devhub/internal/dbctx"
	"devhub/internal/domain"
	"devhub/internal/logger"
	"devhub/internal/query"
	"devhub/internal/store"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// Entity is the pointer form of a record type.
type Entity[T any] interface {
	*T
	Meta() *domain.Base
	TableName() string
}

// Auditor records mutations inside the caller's transaction.
type Auditor interface {
	Append(dbc dbctx.Context, action, module, entityID, actorID string, payload map[string]any) error
}

type Page[T any] struct {
	Records []T   `json:"records"`
	Total   int64 `json:"total"`
	Size    int   `json:"size"`
	Current int   `json:"current"`
	Pages   int64 `json:"pages"`
}

type Options struct {
	Module string
	Audit  Auditor
	Log    *logger.Logger
	Now    func() time.Time
	NewID  func() string
}

// Service implements the generic record lifecycle for one entity type.
type Service[T any, PT Entity[T]] struct {
	module string
	store  *store.Store[T]
	schema *query.Schema
	audit  Auditor
	log    *logger.Logger
	now    func() time.Time
	newID  func() string
}

func New[T any, PT Entity[T]](db *gorm.DB, opts Options) (*Service[T, PT], error) {
	var zero T
	schema, err := query.SchemaOf(&zero)
	if err != nil {
		return nil, err
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Module == "" {
		opts.Module = schema.Table
	}
	return &Service[T, PT]{
		module: opts.Module,
		store:  store.New[T](db, opts.Log),
		schema: schema,
		audit:  opts.Audit,
		log:    opts.Log.With("module", opts.Module),
		now:    opts.Now,
		newID:  opts.NewID,
	}, nil
}

func (s *Service[T, PT]) Module() string { return s.module }

func (s *Service[T, PT]) Schema() *query.Schema { return s.schema }

func (s *Service[T, PT]) Store() *store.Store[T] { return s.store }

// Now is the service clock in UTC.
func (s *Service[T, PT]) Now() time.Time { return s.now().UTC() }

// List returns one page of records matching c.
func (s *Service[T, PT]) List(ctx context.Context, c query.Criteria, page, pageSize int) (Page[T], error) {
	if page == 0 {
		page = DefaultPage
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	dbc := dbctx.New(ctx)
	f := s.schema.Compile(c)
	total, err := s.store.Count(dbc, f)
	if err != nil {
		return Page[T]{}, persistence("count "+s.module, err)
	}
	rows, err := s.store.Find(dbc, f, pageSize, (page-1)*pageSize)
	if err != nil {
		return Page[T]{}, persistence("list "+s.module, err)
	}
	pages := int64(0)
	if pageSize > 0 {
		pages = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return Page[T]{Records: rows, Total: total, Size: pageSize, Current: page, Pages: pages}, nil
}

// ListAll returns every record matching c.
func (s *Service[T, PT]) ListAll(ctx context.Context, c query.Criteria) ([]T, error) {
	rows, err := s.store.Find(dbctx.New(ctx), s.schema.Compile(c), 0, 0)
	if err != nil {
		return nil, persistence("list "+s.module, err)
	}
	return rows, nil
}

// Export returns the records to write to a spreadsheet.
func (s *Service[T, PT]) Export(ctx context.Context, c query.Criteria) ([]T, error) {
	return s.ListAll(ctx, c)
}

func (s *Service[T, PT]) stampNew(rec PT, actor string, now time.Time) {
	meta := rec.Meta()
	if strings.TrimSpace(meta.ID) == "" {
		meta.ID = s.newID()
	}
	meta.CreateBy, meta.CreateTime = actor, &now
	meta.UpdateBy, meta.UpdateTime = actor, &now
}

// Create inserts rec and returns its id.
func (s *Service[T, PT]) Create(ctx context.Context, actor string, rec PT) (string, error) {
	if rec == nil {
		return "", &ValidationError{Reason: "record is required"}
	}
	if err := validate(rec); err != nil {
		return "", err
	}
	s.schema.ToUTC(rec)
	s.stampNew(rec, actor, s.Now())
	id := rec.Meta().ID
	err := s.store.Transaction(dbctx.New(ctx), func(dbc dbctx.Context) error {
		if err := s.store.Create(dbc, (*T)(rec)); err != nil {
			return err
		}
		return s.appendAudit(dbc, "create", id, actor, nil)
	})
	if err != nil {
		return "", persistence("create "+s.module, err)
	}
	s.log.Debug("record created", "id", id, "actor_id", actor)
	return id, nil
}

// Update writes the non-empty fields of rec onto the stored record with the same id.
func (s *Service[T, PT]) Update(ctx context.Context, actor string, rec PT) error {
	if rec == nil || strings.TrimSpace(rec.Meta().ID) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if err := validate(rec); err != nil {
		return err
	}
	s.schema.ToUTC(rec)
	meta := rec.Meta()
	now := s.Now()
	meta.CreateBy, meta.CreateTime = "", nil
	meta.UpdateBy, meta.UpdateTime = actor, &now
	err := s.store.Transaction(dbctx.New(ctx), func(dbc dbctx.Context) error {
		n, err := s.store.Update(dbc, meta.ID, (*T)(rec), "id", "create_by", "create_time")
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return s.appendAudit(dbc, "update", meta.ID, actor, nil)
	})
	return persistence("update "+s.module, err)
}

// Patch sets columns on one record and restamps its update fields.
func (s *Service[T, PT]) Patch(ctx context.Context, actor, id string, values map[string]any) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	cols := make(map[string]any, len(values)+2)
	for k, v := range values {
		cols[k] = v
	}
	cols["update_by"] = actor
	cols["update_time"] = s.Now()
	err := s.store.Transaction(dbctx.New(ctx), func(dbc dbctx.Context) error {
		n, err := s.store.UpdateColumns(dbc, id, cols)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return s.appendAudit(dbc, "update", id, actor, values)
	})
	return persistence("update "+s.module, err)
}

// Delete removes one record. A missing id is not an error.
func (s *Service[T, PT]) Delete(ctx context.Context, actor, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	return s.deleteIDs(ctx, actor, "delete", []string{id})
}

// DeleteMany removes every listed record; missing ids are skipped.
func (s *Service[T, PT]) DeleteMany(ctx context.Context, actor string, ids []string) error {
	if len(ids) == 0 {
		return &ValidationError{Field: "ids", Reason: "is required"}
	}
	return s.deleteIDs(ctx, actor, "deleteBatch", ids)
}

func (s *Service[T, PT]) deleteIDs(ctx context.Context, actor, action string, ids []string) error {
	err := s.store.Transaction(dbctx.New(ctx), func(dbc dbctx.Context) error {
		n, err := s.store.Delete(dbc, ids...)
		if err != nil || n == 0 {
			return err
		}
		entityID := ""
		if len(ids) == 1 {
			entityID = ids[0]
		}
		return s.appendAudit(dbc, action, entityID, actor, map[string]any{"ids": ids, "deleted": n})
	})
	return persistence("delete "+s.module, err)
}

// GetByID returns the record, or None when it does not exist.
func (s *Service[T, PT]) GetByID(ctx context.Context, id string) (mo.Option[T], error) {
	if strings.TrimSpace(id) == "" {
		return mo.None[T](), nil
	}
	rec, err := s.store.Get(dbctx.New(ctx), id)
	if errors.Is(err, store.ErrNotFound) {
		return mo.None[T](), nil
	}
	if err != nil {
		return mo.None[T](), persistence("get "+s.module, err)
	}
	return mo.Some(*rec), nil
}

// Exists reports whether another record has field = value. The check is advisory:
// concurrent writers may both observe false.
func (s *Service[T, PT]) Exists(ctx context.Context, field string, value any, excludeID string) (bool, error) {
	if _, ok := s.schema.Field(field); !ok {
		return false, &ValidationError{Field: field, Reason: "unknown field"}
	}
	c := query.Exact(field, value)
	if excludeID != "" {
		c = c.Where("id", query.OpNe, excludeID)
	}
	n, err := s.store.Count(dbctx.New(ctx), s.schema.Compile(c))
	if err != nil {
		return false, persistence("exists "+s.module, err)
	}
	return n > 0, nil
}

// Row is one imported record and the worksheet row it was read from.
type Row[T any] struct {
	Line   int
	Record T
}

// Import validates every row, then inserts them all in one transaction. The first invalid
// row aborts the import with an ImportError naming its line and column.
func (s *Service[T, PT]) Import(ctx context.Context, actor string, lines []Row[T]) (int, error) {
	rows := make([]T, len(lines))
	for i := range lines {
		rows[i] = lines[i].Record
		if err := validate(PT(&rows[i])); err != nil {
			column := ""
			var ve *ValidationError
			if errors.As(err, &ve) && ve.Field != "" {
				column = ve.Field
				if f, ok := s.schema.Field(ve.Field); ok {
					column = f.Label
				}
			}
			return 0, &ImportError{Row: lines[i].Line, Column: column, Err: err}
		}
		s.schema.ToUTC(PT(&rows[i]))
	}
	if len(rows) == 0 {
		return 0, nil
	}
	now := s.Now()
	ptrs := make([]*T, len(rows))
	for i := range rows {
		s.stampNew(PT(&rows[i]), actor, now)
		ptrs[i] = &rows[i]
	}
	err := s.store.Transaction(dbctx.New(ctx), func(dbc dbctx.Context) error {
		if err := s.store.Create(dbc, ptrs...); err != nil {
			return err
		}
		return s.appendAudit(dbc, "import", "", actor, map[string]any{"rows": len(rows)})
	})
	if err != nil {
		return 0, persistence("import "+s.module, err)
	}
	s.log.Info("records imported", "rows", len(rows), "actor_id", actor)
	return len(rows), nil
}

// ReplaceWhere deletes every record matching c and inserts rows in their place, in one
// transaction. An empty filter is rejected.
func (s *Service[T, PT]) ReplaceWhere(ctx context.Context, actor string, c query.Criteria, rows []T) (int, error) {
	f := s.schema.Compile(c)
	if len(f.Where) == 0 {
		return 0, &ValidationError{Reason: "replace requires a filter"}
	}
	for i := range rows {
		if err := validate(PT(&rows[i])); err != nil {
			return 0, err
		}
		s.schema.ToUTC(PT(&rows[i]))
	}
	now := s.Now()
	ptrs := make([]*T, len(rows))
	for i := range rows {
		PT(&rows[i]).Meta().ID = ""
		s.stampNew(PT(&rows[i]), actor, now)
		ptrs[i] = &rows[i]
	}
	err := s.store.Transaction(dbctx.New(ctx), func(dbc dbctx.Context) error {
		removed, err := s.store.DeleteWhere(dbc, f)
		if err != nil {
			return err
		}
		if err := s.store.Create(dbc, ptrs...); err != nil {
			return err
		}
		return s.appendAudit(dbc, "replace", "", actor, map[string]any{"removed": removed, "inserted": len(rows)})
	})
	if err != nil {
		return 0, persistence("replace "+s.module, err)
	}
	return len(rows), nil
}

// Transaction runs fn in one transaction on this service's store.
func (s *Service[T, PT]) Transaction(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return persistence("transaction "+s.module, s.store.Transaction(dbctx.New(ctx), fn))
}

func (s *Service[T, PT]) appendAudit(dbc dbctx.Context, action, entityID, actor string, payload map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Append(dbc, action, s.module, entityID, actor, payload)
}
