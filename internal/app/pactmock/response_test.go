package pactmock

import (
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileResponseRejectsInvalidStatus(t *testing.T) {
	for _, status := range []int{0, 99, 600} {
		_, err := compileResponse(Response{Status: status})
		assert.Error(t, err, "status %d", status)
	}
}

func TestCompileResponseRejectsUnencodableBody(t *testing.T) {
	_, err := compileResponse(Response{Status: 200, Body: map[string]interface{}{"x": math.NaN()}})
	assert.ErrorContains(t, err, "unable to encode response body")

	r := NewInteractions()
	err = r.Register(Interaction{
		Description: "d",
		Request:     Request{Method: http.MethodGet, Path: "/d"},
		Response:    Response{Status: 200, Body: map[string]interface{}{"x": math.Inf(1)}},
	})
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestRenderResponse(t *testing.T) {
	req := newRequestDocument(t, "POST", "/users?trace=abc", "application/json", `{"name":"sam","tags":["a","b"]}`)

	tests := []struct {
		name            string
		response        Response
		wantContentType string
		wantBody        string
	}{
		{
			name:     "no body",
			response: Response{Status: http.StatusNoContent},
		},
		{
			name:            "string body is plain text",
			response:        Response{Status: 200, Body: "hello"},
			wantContentType: "text/plain; charset=utf-8",
			wantBody:        "hello",
		},
		{
			name: "string body with json content type is encoded",
			response: Response{
				Status:  200,
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    "hello",
			},
			wantContentType: "application/json",
			wantBody:        `"hello"`,
		},
		{
			name:            "object body is json",
			response:        Response{Status: 200, Body: map[string]interface{}{"id": 1}},
			wantContentType: "application/json; charset=utf-8",
			wantBody:        `{"id":1}`,
		},
		{
			name: "matchers are replaced by their examples",
			response: Response{Status: 200, Body: map[string]interface{}{
				"id":    Regex("1", `\d+`),
				"owner": Structure(map[string]Matcher{"name": String("sam")}),
			}},
			wantContentType: "application/json; charset=utf-8",
			wantBody:        `{"id":"1","owner":{"name":"sam"}}`,
		},
		{
			name: "templates are resolved from the request",
			response: Response{Status: 201, Body: map[string]interface{}{
				"id":    1,
				"name":  FromRequest("$.body.name", "example"),
				"trace": FromRequest("$.query.trace", "none"),
				"tags":  []interface{}{FromRequest("$.body.tags[1]", "x")},
			}},
			wantContentType: "application/json; charset=utf-8",
			wantBody:        `{"id":1,"name":"sam","trace":"abc","tags":["b"]}`,
		},
		{
			name: "unresolved templates use the example",
			response: Response{Status: 201, Body: map[string]interface{}{
				"name": FromRequest("$.body.missing", "example"),
			}},
			wantContentType: "application/json; charset=utf-8",
			wantBody:        `{"name":"example"}`,
		},
		{
			name:            "top level template",
			response:        Response{Status: 200, Body: FromRequest("$.body", nil)},
			wantContentType: "application/json; charset=utf-8",
			wantBody:        `{"name":"sam","tags":["a","b"]}`,
		},
		{
			name: "keys needing escaping",
			response: Response{Status: 200, Body: map[string]interface{}{
				"a.b": FromRequest("$.body.name", ""),
				"1":   FromRequest("$.query.trace", ""),
			}},
			wantContentType: "application/json; charset=utf-8",
			wantBody:        `{"a.b":"sam","1":"abc"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := compileResponse(tt.response)
			require.NoError(t, err)

			res, err := tmpl.render(req)
			require.NoError(t, err)

			assert.Equal(t, tt.response.Status, res.status)
			assert.Equal(t, tt.wantContentType, res.headers.Get("Content-Type"))
			if tt.wantBody == "" {
				assert.Empty(t, res.body)
				return
			}
			if tt.wantContentType == "text/plain; charset=utf-8" {
				assert.Equal(t, tt.wantBody, string(res.body))
				return
			}
			assert.JSONEq(t, tt.wantBody, string(res.body))
		})
	}
}

func TestResponseTemplatesAreRecordedWithExamples(t *testing.T) {
	i, err := newInteraction(Interaction{
		Description: "create user",
		Request:     Request{Method: "POST", Path: "/users"},
		Response: Response{Status: 201, Body: map[string]interface{}{
			"name": FromRequest("$.body.name", "example"),
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"name": "example"}, i.document().Response.Body)
}

func TestSjsonPath(t *testing.T) {
	assert.Equal(t, "a.0.b", sjsonPath([]interface{}{"a", 0, "b"}))
	assert.Equal(t, `a\.b.:1`, sjsonPath([]interface{}{"a.b", "1"}))
}
