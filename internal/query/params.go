package query

import (
	"context"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Request parameters that never name a field.
var reserved = map[string]bool{
	"pageNo":   true,
	"pageSize": true,
	"column":   true,
	"order":    true,
	"_t":       true,
}

var suffixes = []struct {
	suffix string
	op     Op
}{
	{"_begin", OpGe},
	{"_end", OpLe},
	{"_like", OpLike},
	{"_ne", OpNe},
	{"_in", OpIn},
}

// FromExample turns every non-zero attribute of entity into an equality condition.
func (s *Schema) FromExample(entity any) Criteria {
	var c Criteria
	if entity == nil {
		return c
	}
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return c
		}
		rv = rv.Elem()
	}
	ctx := context.Background()
	for _, name := range s.order {
		f := s.fields[name]
		v, zero := f.field.ValueOf(ctx, rv)
		if zero {
			continue
		}
		v = deref(v)
		if v == nil {
			continue
		}
		c = c.Where(name, OpEq, v)
	}
	return c
}

// FromParams reads filter and ordering parameters. Unknown fields and values that do not
// parse for the column type are skipped.
func (s *Schema) FromParams(params url.Values) Criteria {
	var c Criteria
	keys := lo.Keys(params)
	sort.Strings(keys)
	for _, key := range keys {
		if reserved[key] {
			continue
		}
		raw := strings.TrimSpace(params.Get(key))
		if raw == "" {
			continue
		}
		name, op := key, OpEq
		if _, ok := s.fields[key]; !ok {
			for _, sf := range suffixes {
				if strings.HasSuffix(key, sf.suffix) {
					name, op = strings.TrimSuffix(key, sf.suffix), sf.op
					break
				}
			}
		}
		field, ok := s.fields[name]
		if !ok || field.Kind == KindOther {
			continue
		}
		switch op {
		case OpIn:
			var values []any
			for _, part := range SplitIDs(raw) {
				if v, ok := convert(field.Kind, strings.TrimSpace(part), false); ok {
					values = append(values, v)
				}
			}
			if len(values) > 0 {
				c = c.Where(name, OpIn, values...)
			}
		case OpLike:
			if field.Kind == KindString {
				c = c.Where(name, OpLike, "%"+raw+"%")
			}
		case OpEq:
			if v, ok := convert(field.Kind, raw, false); ok {
				c = c.Where(name, OpEq, v)
			}
		default:
			if v, ok := convert(field.Kind, raw, op == OpLe); ok {
				c = c.Where(name, op, v)
			}
		}
	}
	return c.Merge(s.ordersFromParams(params))
}

func (s *Schema) ordersFromParams(params url.Values) Criteria {
	var c Criteria
	column := strings.TrimSpace(params.Get("column"))
	if column == "" {
		return c
	}
	desc := true
	switch strings.ToLower(strings.TrimSpace(params.Get("order"))) {
	case "", "desc":
	case "asc":
		desc = false
	default:
		return c
	}
	for _, name := range strings.Split(column, ",") {
		name = strings.TrimSpace(name)
		if _, ok := s.fields[name]; ok {
			c = c.OrderBy(name, desc)
		}
	}
	return c
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// convert parses raw for a column kind. A date-only upper bound is widened to the end of
// that day.
func convert(kind Kind, raw string, upper bool) (any, bool) {
	switch kind {
	case KindString:
		return raw, true
	case KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, false
		}
		return n, true
	case KindTime:
		for _, layout := range dateLayouts {
			t, err := time.Parse(layout, raw)
			if err != nil {
				continue
			}
			if upper && layout == "2006-01-02" {
				t = t.Add(24*time.Hour - time.Nanosecond)
			}
			return t.UTC(), true
		}
	}
	return nil, false
}

// SplitIDs splits a comma joined id list, dropping empty segments. Ids containing a
// comma cannot be expressed.
func SplitIDs(s string) []string {
	return lo.Filter(strings.Split(s, ","), func(id string, _ int) bool {
		return strings.TrimSpace(id) != ""
	})
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func stringValue(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}
