package audit

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"devhub/internal/dbctx"
	"devhub/internal/domain"
	"devhub/internal/query"
	"devhub/internal/store"
)

type Writer struct {
	DB  *gorm.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append inserts one audit event using the transaction carried by dbc, if any.
func (w Writer) Append(dbc dbctx.Context, action, module, entityID, actorID string, payload map[string]any) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	evt := domain.AuditEvent{
		TS:       w.Now().UTC(),
		Action:   action,
		Module:   module,
		EntityID: entityID,
		ActorID:  actorID,
		Payload:  datatypes.JSONMap(payload),
	}
	return dbc.DB(w.DB).Create(&evt).Error
}

// Filter narrows a listing of audit events. Empty fields match everything.
type Filter struct {
	Module   string
	EntityID string
	ActorID  string
}

func (f Filter) criteria() query.Criteria {
	var c query.Criteria
	if f.Module != "" {
		c = c.Where("module", query.OpIs, f.Module)
	}
	if f.EntityID != "" {
		c = c.Where("entityId", query.OpIs, f.EntityID)
	}
	if f.ActorID != "" {
		c = c.Where("actorId", query.OpIs, f.ActorID)
	}
	return c.OrderBy("id", true)
}

// List returns the newest events first. A non-positive limit returns all of them.
func (w Writer) List(dbc dbctx.Context, f Filter, limit, offset int) ([]domain.AuditEvent, int64, error) {
	s := store.New[domain.AuditEvent](w.DB, nil)
	compiled := query.MustSchema(&domain.AuditEvent{}).Compile(f.criteria())
	total, err := s.Count(dbc, compiled)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.Find(dbc, compiled, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// After returns up to limit events with an id greater than afterID, oldest first.
func (w Writer) After(dbc dbctx.Context, afterID int64, limit int) ([]domain.AuditEvent, error) {
	s := store.New[domain.AuditEvent](w.DB, nil)
	c := query.Criteria{}.Where("id", query.OpGt, afterID).OrderBy("id", false)
	return s.Find(dbc, query.MustSchema(&domain.AuditEvent{}).Compile(c), limit, 0)
}

// LatestID returns the id of the newest event, or 0 when there is none.
func (w Writer) LatestID(dbc dbctx.Context) (int64, error) {
	var id int64
	err := dbc.DB(w.DB).Model(&domain.AuditEvent{}).Select("COALESCE(MAX(id), 0)").Scan(&id).Error
	return id, err
}
