// Package httputil writes JSON and RFC 7807 problem responses and maps domain
// error codes onto HTTP status codes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	dErrors "crm/pkg/domain-errors"
	"crm/pkg/requestcontext"
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeProblem = "application/problem+json"
)

// Problem is the error body returned by every endpoint.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code"`
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteProblem writes a problem body.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, code dErrors.Code, detail string) {
	p := Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Code:   string(code),
	}
	if r != nil {
		p.Instance = r.URL.Path
	}
	w.Header().Set("Content-Type", ContentTypeProblem)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteError translates err into a problem response. Persistence and internal
// failures never leak their message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)
	detail := dErrors.MessageOf(err)
	if status >= http.StatusInternalServerError && code != dErrors.CodeTimeout {
		detail = ""
	}
	WriteProblem(w, r, status, code, detail)
}

// StatusFor maps a domain code to its HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeInvalidTransition, dErrors.CodeValidation, dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, ContentTypeJSON) {
		return dErrors.New(dErrors.CodeBadRequest, "content type must be application/json")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed JSON body")
		}
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// Preparable is implemented by request types that normalize and validate themselves.
type Preparable interface {
	Normalize()
	Validate() error
}

// DecodeAndPrepare decodes the body into T, then normalizes and validates it.
func DecodeAndPrepare[T any, PT interface {
	*T
	Preparable
}](r *http.Request) (*T, error) {
	var req T
	if err := DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	p := PT(&req)
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// LogAttrs returns the request-scoped attributes every handler log line carries.
func LogAttrs(r *http.Request) []any {
	ctx := r.Context()
	return []any{
		"request_id", requestcontext.RequestID(ctx),
		"org_id", requestcontext.OrgID(ctx).String(),
	}
}
