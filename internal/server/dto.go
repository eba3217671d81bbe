package server

import (
	"mime/multipart"

	"devhub/internal/domain"
)

// Result is the success envelope. Code is always 0.
type Result[T any] struct {
	Code    int    `json:"code" example:"0"`
	Message string `json:"message" example:"ok"`
	Data    T      `json:"data"`
}

type resultOutput[T any] struct {
	Body Result[T]
}

func ok[T any](data T) *resultOutput[T] {
	return &resultOutput[T]{Body: Result[T]{Message: "ok", Data: data}}
}

func okMessage(msg string) *resultOutput[string] {
	return &resultOutput[string]{Body: Result[string]{Message: msg, Data: msg}}
}

type pageInput struct {
	PageNo   int `query:"pageNo" minimum:"0" doc:"1-based page number; 0 means 1"`
	PageSize int `query:"pageSize" minimum:"0" doc:"page size; 0 means 10"`
}

type idInput struct {
	ID string `query:"id" required:"true"`
}

type idsInput struct {
	IDs string `query:"ids" required:"true" doc:"comma separated ids"`
}

type bodyInput[T any] struct {
	Body T
}

type exportOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type importInput struct {
	RawBody multipart.Form
}

type DevLoginRequest struct {
	ActorID     string   `json:"actorId" minLength:"1"`
	Permissions []string `json:"permissions,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type AuditPage struct {
	Records []domain.AuditEvent `json:"records"`
	Total   int64               `json:"total"`
	Size    int                 `json:"size"`
	Current int                 `json:"current"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actorId"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
