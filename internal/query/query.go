package query

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

type Op string

const (
	OpEq   Op = "eq"
	OpIs   Op = "is" // equality without wildcard expansion
	OpNe   Op = "ne"
	OpIn   Op = "in"
	OpLike Op = "like"
	OpGe   Op = "ge"
	OpLe   Op = "le"
	OpGt   Op = "gt"
	OpLt   Op = "lt"
)

// Condition restricts one field. Field is the JSON name of the attribute.
type Condition struct {
	Field  string
	Op     Op
	Values []any
}

type Order struct {
	Field string
	Desc  bool
}

// Criteria is an AND of conditions plus an ordering.
type Criteria struct {
	Conditions []Condition
	Orders     []Order
}

// Merge returns c AND other; orders of other are appended.
func (c Criteria) Merge(other Criteria) Criteria {
	out := Criteria{
		Conditions: make([]Condition, 0, len(c.Conditions)+len(other.Conditions)),
		Orders:     make([]Order, 0, len(c.Orders)+len(other.Orders)),
	}
	out.Conditions = append(append(out.Conditions, c.Conditions...), other.Conditions...)
	out.Orders = append(append(out.Orders, c.Orders...), other.Orders...)
	return out
}

// Where adds a condition and returns the criteria for chaining.
func (c Criteria) Where(field string, op Op, values ...any) Criteria {
	c.Conditions = append(append([]Condition(nil), c.Conditions...), Condition{Field: field, Op: op, Values: values})
	return c
}

// OrderBy appends an ordering.
func (c Criteria) OrderBy(field string, desc bool) Criteria {
	c.Orders = append(append([]Order(nil), c.Orders...), Order{Field: field, Desc: desc})
	return c
}

// Eq is shorthand for a single equality criteria.
func Eq(field string, value any) Criteria {
	return Criteria{}.Where(field, OpEq, value)
}

// Exact matches value literally, '*' included.
func Exact(field string, value any) Criteria {
	return Criteria{}.Where(field, OpIs, value)
}

type Kind int

const (
	KindString Kind = iota
	KindInt
	KindTime
	KindOther
)

type Field struct {
	Name   string
	Column string
	// Label is the spreadsheet header of the attribute, or Name when it has none.
	Label string
	Kind  Kind
	field *schema.Field
}

// Schema maps the JSON attribute names of an entity onto columns.
type Schema struct {
	Table  string
	fields map[string]Field
	order  []string
}

// Filter is a compiled criteria ready to hand to gorm.
type Filter struct {
	Where []clause.Expression
	Order []clause.OrderByColumn
}

var cacheStore sync.Map

var (
	timeType = reflect.TypeOf(time.Time{})
	schemas  sync.Map
)

// SchemaOf parses the gorm schema of model once and caches the result.
func SchemaOf(model any) (*Schema, error) {
	typ := reflect.TypeOf(model)
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if s, ok := schemas.Load(typ); ok {
		return s.(*Schema), nil
	}
	parsed, err := schema.Parse(model, &cacheStore, schema.NamingStrategy{})
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", typ.Name(), err)
	}
	s := &Schema{Table: parsed.Table, fields: map[string]Field{}}
	for _, f := range parsed.Fields {
		if f.DBName == "" {
			continue
		}
		name := jsonName(f)
		if name == "" {
			continue
		}
		s.fields[name] = Field{Name: name, Column: f.DBName, Label: label(f, name), Kind: kindOf(f.FieldType), field: f}
		s.order = append(s.order, name)
	}
	actual, _ := schemas.LoadOrStore(typ, s)
	return actual.(*Schema), nil
}

// MustSchema is SchemaOf for package-level initialisation.
func MustSchema(model any) *Schema {
	s, err := SchemaOf(model)
	if err != nil {
		panic(err)
	}
	return s
}

func jsonName(f *schema.Field) string {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return f.Name
}

func label(f *schema.Field, name string) string {
	header, _, _ := strings.Cut(f.Tag.Get("excel"), ",")
	if header = strings.TrimSpace(header); header != "" && header != "-" {
		return header
	}
	return name
}

func kindOf(t reflect.Type) Kind {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return KindTime
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt
	default:
		return KindOther
	}
}

// Field looks up an attribute by JSON name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Column returns the column of a JSON attribute, or "" when unknown.
func (s *Schema) Column(name string) string {
	return s.fields[name].Column
}

// ToUTC converts every date attribute of entity, a pointer to the schema's model, to UTC
// in place. Stored dates then compare correctly as text on SQLite.
func (s *Schema) ToUTC(entity any) {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return
	}
	rv = rv.Elem()
	ctx := context.Background()
	for _, name := range s.order {
		f := s.fields[name]
		if f.Kind != KindTime {
			continue
		}
		v := f.field.ReflectValueOf(ctx, rv)
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				continue
			}
			v = v.Elem()
		}
		if t, ok := v.Interface().(time.Time); ok && v.CanSet() {
			v.Set(reflect.ValueOf(t.UTC()))
		}
	}
}

// Compile turns criteria into gorm clauses. Unknown fields are dropped. An equality on a
// string containing '*' matches as a LIKE pattern with '*' standing for any run of
// characters. Without an explicit ordering rows come newest first; id breaks ties.
func (s *Schema) Compile(c Criteria) Filter {
	var f Filter
	for _, cond := range c.Conditions {
		field, ok := s.fields[cond.Field]
		if !ok || len(cond.Values) == 0 {
			continue
		}
		col := clause.Column{Name: field.Column}
		switch cond.Op {
		case OpEq:
			if str, ok := stringValue(cond.Values[0]); ok && strings.Contains(str, "*") {
				f.Where = append(f.Where, clause.Like{Column: col, Value: strings.ReplaceAll(str, "*", "%")})
				continue
			}
			f.Where = append(f.Where, clause.Eq{Column: col, Value: cond.Values[0]})
		case OpIs:
			f.Where = append(f.Where, clause.Eq{Column: col, Value: cond.Values[0]})
		case OpNe:
			f.Where = append(f.Where, clause.Neq{Column: col, Value: cond.Values[0]})
		case OpIn:
			f.Where = append(f.Where, clause.IN{Column: col, Values: cond.Values})
		case OpLike:
			f.Where = append(f.Where, clause.Like{Column: col, Value: cond.Values[0]})
		case OpGe:
			f.Where = append(f.Where, clause.Gte{Column: col, Value: cond.Values[0]})
		case OpLe:
			f.Where = append(f.Where, clause.Lte{Column: col, Value: cond.Values[0]})
		case OpGt:
			f.Where = append(f.Where, clause.Gt{Column: col, Value: cond.Values[0]})
		case OpLt:
			f.Where = append(f.Where, clause.Lt{Column: col, Value: cond.Values[0]})
		}
	}
	for _, o := range c.Orders {
		field, ok := s.fields[o.Field]
		if !ok {
			continue
		}
		f.Order = append(f.Order, clause.OrderByColumn{Column: clause.Column{Name: field.Column}, Desc: o.Desc})
	}
	if len(f.Order) == 0 {
		if _, ok := s.fields["createTime"]; ok {
			f.Order = []clause.OrderByColumn{{Column: clause.Column{Name: "create_time"}, Desc: true}}
		}
	}
	if id, ok := s.fields["id"]; ok && !orderedBy(f.Order, id.Column) {
		f.Order = append(f.Order, clause.OrderByColumn{Column: clause.Column{Name: id.Column}, Desc: true})
	}
	return f
}

func orderedBy(orders []clause.OrderByColumn, column string) bool {
	for _, o := range orders {
		if o.Column.Name == column {
			return true
		}
	}
	return false
}
