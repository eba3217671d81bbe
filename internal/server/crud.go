package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/samber/lo"

	"devhub/internal/query"
	"devhub/internal/record"
	"devhub/internal/sheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// resource binds one record service to its route prefix.
type resource[T any, PT record.Entity[T]] struct {
	module string
	prefix string
	title  string
	svc    *record.Service[T, PT]
}

func (r resource[T, PT]) op(name, method, suffix, summary string) huma.Operation {
	return huma.Operation{
		OperationID: r.module + "-" + name,
		Method:      method,
		Path:        r.prefix + suffix,
		Summary:     summary,
		Tags:        []string{r.module},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}
}

// registerCRUD exposes the standard list/add/edit/delete/query/export/import routes.
func registerCRUD[T any, PT record.Entity[T]](api huma.API, s *server, r resource[T, PT]) {
	huma.Register(api, r.op("list", http.MethodGet, "/list", "List "+r.title+" page by page"),
		func(ctx context.Context, input *pageInput) (*resultOutput[record.Page[T]], error) {
			if _, err := s.require(ctx, r.module, "list"); err != nil {
				return nil, s.handleError(err)
			}
			c := r.svc.Schema().FromParams(queryParams(ctx))
			page, err := r.svc.List(ctx, c, input.PageNo, input.PageSize)
			if err != nil {
				return nil, s.handleError(err)
			}
			page.Records = nonNilSlice(page.Records)
			return ok(page), nil
		})

	huma.Register(api, r.op("add", http.MethodPost, "/add", "Add a "+r.title+" record"),
		func(ctx context.Context, input *bodyInput[T]) (*resultOutput[string], error) {
			p, err := s.require(ctx, r.module, "add")
			if err != nil {
				return nil, s.handleError(err)
			}
			if _, err := r.svc.Create(ctx, p.ActorID, PT(&input.Body)); err != nil {
				return nil, s.handleError(err)
			}
			return okMessage("add succeeded"), nil
		})

	edit := func(ctx context.Context, input *bodyInput[T]) (*resultOutput[string], error) {
		p, err := s.require(ctx, r.module, "edit")
		if err != nil {
			return nil, s.handleError(err)
		}
		if err := r.svc.Update(ctx, p.ActorID, PT(&input.Body)); err != nil {
			return nil, s.handleError(err)
		}
		return okMessage("edit succeeded"), nil
	}
	huma.Register(api, r.op("edit", http.MethodPut, "/edit", "Edit a "+r.title+" record"), edit)
	huma.Register(api, r.op("edit-post", http.MethodPost, "/edit", "Edit a "+r.title+" record"), edit)

	huma.Register(api, r.op("delete", http.MethodDelete, "/delete", "Delete a "+r.title+" record"),
		func(ctx context.Context, input *idInput) (*resultOutput[string], error) {
			p, err := s.require(ctx, r.module, "delete")
			if err != nil {
				return nil, s.handleError(err)
			}
			if err := r.svc.Delete(ctx, p.ActorID, input.ID); err != nil {
				return nil, s.handleError(err)
			}
			return okMessage("delete succeeded"), nil
		})

	huma.Register(api, r.op("deleteBatch", http.MethodDelete, "/deleteBatch", "Delete several "+r.title+" records"),
		func(ctx context.Context, input *idsInput) (*resultOutput[string], error) {
			p, err := s.require(ctx, r.module, "deleteBatch")
			if err != nil {
				return nil, s.handleError(err)
			}
			if err := r.svc.DeleteMany(ctx, p.ActorID, query.SplitIDs(input.IDs)); err != nil {
				return nil, s.handleError(err)
			}
			return okMessage("batch delete succeeded"), nil
		})

	huma.Register(api, r.op("queryById", http.MethodGet, "/queryById", "Get a "+r.title+" record by id"),
		func(ctx context.Context, input *idInput) (*resultOutput[T], error) {
			if _, err := s.require(ctx, r.module, "queryById"); err != nil {
				return nil, s.handleError(err)
			}
			rec, err := r.svc.GetByID(ctx, input.ID)
			if err != nil {
				return nil, s.handleError(err)
			}
			found, present := rec.Get()
			if !present {
				return nil, newAPIError(http.StatusNotFound, "record not found")
			}
			return ok(found), nil
		})

	huma.Register(api, r.op("exportXls", http.MethodGet, "/exportXls", "Export "+r.title+" records to XLSX"),
		func(ctx context.Context, input *struct {
			Selections string `query:"selections" doc:"comma separated ids to export instead of the filter"`
		}) (*exportOutput, error) {
			p, err := s.require(ctx, r.module, "exportXls")
			if err != nil {
				return nil, s.handleError(err)
			}
			c := r.svc.Schema().FromParams(withoutKey(queryParams(ctx), "selections"))
			if ids := query.SplitIDs(input.Selections); len(ids) > 0 {
				c = c.Where("id", query.OpIn, lo.ToAnySlice(ids)...)
			}
			rows, err := r.svc.Export(ctx, c)
			if err != nil {
				return nil, s.handleError(err)
			}
			var buf bytes.Buffer
			if err := sheet.Export(&buf, r.title, p.ActorID, rows); err != nil {
				return nil, s.handleError(err)
			}
			return &exportOutput{
				ContentType:        xlsxContentType,
				ContentDisposition: fmt.Sprintf("attachment; filename=%q", fileName(r.title)),
				Body:               buf.Bytes(),
			}, nil
		})

	huma.Register(api, r.op("importExcel", http.MethodPost, "/importExcel", "Import "+r.title+" records from XLSX"),
		func(ctx context.Context, input *importInput) (*resultOutput[int], error) {
			p, err := s.require(ctx, r.module, "importExcel")
			if err != nil {
				return nil, s.handleError(err)
			}
			files := input.RawBody.File["file"]
			if len(files) == 0 {
				return nil, newAPIError(http.StatusBadRequest, "file is required")
			}
			var rows []record.Row[T]
			for _, fh := range files {
				f, err := fh.Open()
				if err != nil {
					return nil, newAPIError(http.StatusBadRequest, "cannot read "+fh.Filename)
				}
				parsed, err := sheet.Import[T](f)
				f.Close()
				if err != nil {
					return nil, s.handleError(err)
				}
				rows = append(rows, parsed...)
			}
			total, err := r.svc.Import(ctx, p.ActorID, rows)
			if err != nil {
				return nil, s.handleError(err)
			}
			return &resultOutput[int]{Body: Result[int]{
				Message: fmt.Sprintf("file import succeeded, rows: %d", total),
				Data:    total,
			}}, nil
		})
}

func withoutKey(params url.Values, key string) url.Values {
	out := url.Values{}
	for k, v := range params {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func fileName(title string) string {
	name := strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' {
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	return name + ".xlsx"
}
