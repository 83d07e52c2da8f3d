// Package testutil holds helpers for handler and router tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm/pkg/platform/httputil"
)

// NewJSONRequest builds a request whose body is body marshalled as JSON.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err, "marshal request body")
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", httputil.ContentTypeJSON)
	return req
}

func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// DoRequest serves req and returns the recorded response.
func DoRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func ReadBody(t *testing.T, rr *httptest.ResponseRecorder) []byte {
	t.Helper()
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err, "read response body")
	return body
}

// UnmarshalResponse decodes a JSON response body into T.
func UnmarshalResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) *T {
	t.Helper()
	body := ReadBody(t, rr)
	var out T
	require.NoError(t, json.Unmarshal(body, &out), "decode response: %s", body)
	return &out
}

// UnmarshalProblem decodes an application/problem+json body.
func UnmarshalProblem(t *testing.T, rr *httptest.ResponseRecorder) httputil.Problem {
	t.Helper()
	assert.Equal(t, httputil.ContentTypeProblem, rr.Header().Get("Content-Type"))
	var p httputil.Problem
	require.NoError(t, json.Unmarshal(ReadBody(t, rr), &p), "decode problem")
	return p
}

func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, rr.Code, "unexpected status, body: %s", rr.Body.String())
}

func AssertStatusOK(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	AssertStatus(t, rr, http.StatusOK)
}

// AssertStatusAndError checks the status and the problem code, and that the
// problem repeats the status.
func AssertStatusAndError(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus int, expectedCode string) {
	t.Helper()
	AssertStatus(t, rr, expectedStatus)
	p := UnmarshalProblem(t, rr)
	assert.Equal(t, expectedCode, p.Code, "unexpected problem code")
	assert.Equal(t, expectedStatus, p.Status, "problem status")
}
