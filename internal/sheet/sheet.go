package sheet

import (
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"devhub/internal/record"
)

const (
	// TitleRows precede the header row: a title line and an "exported by" line.
	TitleRows = 2
	HeadRows  = 1

	sheetName    = "Sheet1"
	defaultWidth = 15
	dateLayout   = "2006-01-02"
	timeLayout   = "2006-01-02 15:04:05"
)

var (
	timeType   = reflect.TypeOf(time.Time{})
	readLayout = []string{dateLayout, timeLayout, time.RFC3339, "2006/01/02", "2006/1/2", "01-02-06"}
)

type column struct {
	header string
	width  float64
	date   bool
	index  []int
	typ    reflect.Type
}

// columns reads the `excel:"Header,width=N,format=date"` tags of T, including embedded
// structs, in declaration order.
func columns(t reflect.Type) []column {
	var out []column
	var walk func(t reflect.Type, prefix []int)
	walk = func(t reflect.Type, prefix []int) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			idx := append(append([]int(nil), prefix...), i)
			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				walk(f.Type, idx)
				continue
			}
			tag := f.Tag.Get("excel")
			if tag == "" || tag == "-" {
				continue
			}
			parts := strings.Split(tag, ",")
			c := column{header: strings.TrimSpace(parts[0]), width: defaultWidth, index: idx, typ: f.Type}
			for _, opt := range parts[1:] {
				k, v, _ := strings.Cut(strings.TrimSpace(opt), "=")
				switch k {
				case "width":
					if w, err := strconv.ParseFloat(v, 64); err == nil {
						c.width = w
					}
				case "format":
					c.date = v == "date"
				}
			}
			out = append(out, c)
		}
	}
	walk(t, nil)
	return out
}

// Headers lists the spreadsheet headers of T.
func Headers[T any]() []string {
	cols := columns(reflect.TypeOf((*T)(nil)).Elem())
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.header
	}
	return out
}

// Export writes rows as an XLSX workbook: a merged title row, an "exported by" row, the
// header row, then one row per record.
func Export[T any](w io.Writer, title, exportedBy string, rows []T) error {
	cols := columns(reflect.TypeOf((*T)(nil)).Elem())
	if len(cols) == 0 {
		return fmt.Errorf("no spreadsheet columns on %T", *new(T))
	}
	f := excelize.NewFile()
	defer f.Close()

	lastCol, err := excelize.ColumnNumberToName(len(cols))
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, "A1", title); err != nil {
		return err
	}
	if err := f.MergeCell(sheetName, "A1", lastCol+"1"); err != nil {
		return err
	}
	subtitle := "Exported by " + exportedBy + " at " + time.Now().UTC().Format(timeLayout)
	if err := f.SetCellValue(sheetName, "A2", subtitle); err != nil {
		return err
	}
	if err := f.MergeCell(sheetName, "A2", lastCol+"2"); err != nil {
		return err
	}
	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", titleStyle); err != nil {
		return err
	}
	headStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	headRow := TitleRows + 1
	header := make([]interface{}, len(cols))
	for i, c := range cols {
		header[i] = c.header
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, name, name, c.width); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", headRow), &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, fmt.Sprintf("A%d", headRow), fmt.Sprintf("%s%d", lastCol, headRow), headStyle); err != nil {
		return err
	}

	for r := range rows {
		rv := reflect.ValueOf(&rows[r]).Elem()
		values := make([]interface{}, len(cols))
		for i, c := range cols {
			values[i] = cellValue(rv.FieldByIndex(c.index), c)
		}
		if err := f.SetSheetRow(sheetName, fmt.Sprintf("A%d", headRow+1+r), &values); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func cellValue(v reflect.Value, c column) interface{} {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		if c.date {
			return t.Format(dateLayout)
		}
		return t.Format(timeLayout)
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	default:
		return fmt.Sprint(v.Interface())
	}
}

// Import reads records from the first sheet of an XLSX workbook laid out as Export
// writes it. Headers are matched by name; unknown headers and blank rows are skipped.
// Each record carries its 1-based worksheet row.
func Import[T any](r io.Reader) ([]record.Row[T], error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &record.ImportError{Row: 0, Err: fmt.Errorf("open workbook: %w", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &record.ImportError{Err: fmt.Errorf("workbook has no sheets")}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &record.ImportError{Err: err}
	}
	if len(rows) < TitleRows+HeadRows {
		return []record.Row[T]{}, nil
	}

	byHeader := map[string]column{}
	for _, c := range columns(reflect.TypeOf((*T)(nil)).Elem()) {
		byHeader[strings.ToLower(c.header)] = c
	}
	header := rows[TitleRows+HeadRows-1]
	mapped := make([]*column, len(header))
	for i, h := range header {
		if c, ok := byHeader[strings.ToLower(strings.TrimSpace(h))]; ok {
			c := c
			mapped[i] = &c
		}
	}

	out := []record.Row[T]{}
	for n, row := range rows[TitleRows+HeadRows:] {
		line := TitleRows + HeadRows + n + 1
		if blank(row) {
			continue
		}
		var rec T
		rv := reflect.ValueOf(&rec).Elem()
		for i, cell := range row {
			if i >= len(mapped) || mapped[i] == nil {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if err := setCell(rv.FieldByIndex(mapped[i].index), cell); err != nil {
				return nil, &record.ImportError{Row: line, Column: mapped[i].header, Err: err}
			}
		}
		out = append(out, record.Row[T]{Line: line, Record: rec})
	}
	return out, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func setCell(v reflect.Value, cell string) error {
	if v.Kind() == reflect.Ptr {
		p := reflect.New(v.Type().Elem())
		if err := setCell(p.Elem(), cell); err != nil {
			return err
		}
		v.Set(p)
		return nil
	}
	if v.Type() == timeType {
		for _, layout := range readLayout {
			if t, err := time.Parse(layout, cell); err == nil {
				v.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return fmt.Errorf("invalid date %q", cell)
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(cell)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			fl, ferr := strconv.ParseFloat(cell, 64)
			if ferr != nil || fl != float64(int64(fl)) {
				return fmt.Errorf("invalid number %q", cell)
			}
			n = int64(fl)
		}
		v.SetInt(n)
	default:
		return fmt.Errorf("unsupported column type %s", v.Type())
	}
	return nil
}
