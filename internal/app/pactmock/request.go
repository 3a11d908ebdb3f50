package pactmock

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const (
	mediaTypeJSON = "application/json"
	mediaTypeText = "text/plain"
)

// requestDocument is the actual request as seen by matchers and constraints:
// {method, path, query, headers, body}.
type requestDocument map[string]interface{}

func parseRequest(req *http.Request, data []byte) requestDocument {
	doc := requestDocument{
		"method":  strings.ToUpper(req.Method),
		"path":    req.URL.Path,
		"query":   parseQueryValues(req.URL.Query()),
		"headers": parseHeaders(req.Header),
	}
	if len(data) > 0 {
		doc["body"] = parseBody(req.Header.Get("Content-Type"), data)
	}
	return doc
}

func parseBody(contentType string, data []byte) interface{} {
	mediaType := ""
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			mediaType = mt
		}
	}

	if isJSONMediaType(mediaType) || (mediaType == "" && json.Valid(data)) {
		var body interface{}
		if err := json.Unmarshal(data, &body); err == nil {
			return body
		}
	}
	return string(data)
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == mediaTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// parseQueryValues keeps a single value as a string and repeated values as a list.
func parseQueryValues(values url.Values) map[string]interface{} {
	query := make(map[string]interface{}, len(values))
	for k, v := range values {
		query[k] = queryValue(v)
	}
	return query
}

func queryValue(v []string) interface{} {
	if len(v) == 1 {
		return v[0]
	}
	list := make([]interface{}, len(v))
	for i, s := range v {
		list[i] = s
	}
	return list
}

func parseHeaders(header http.Header) map[string]interface{} {
	headers := make(map[string]interface{}, len(header))
	for name, values := range header {
		headers[http.CanonicalHeaderKey(name)] = strings.Join(values, ", ")
	}
	return headers
}

func (r requestDocument) method() string {
	s, _ := r["method"].(string)
	return s
}

func (r requestDocument) path() string {
	s, _ := r["path"].(string)
	return s
}

func (r requestDocument) query() map[string]interface{} {
	q, _ := r["query"].(map[string]interface{})
	return q
}

func (r requestDocument) headers() map[string]interface{} {
	h, _ := r["headers"].(map[string]interface{})
	return h
}

func (r requestDocument) body() (interface{}, bool) {
	b, ok := r["body"]
	return b, ok
}

// String renders the request line, e.g. "GET /api/provider?validDateTime=lolz".
func (r requestDocument) String() string {
	q := r.query()
	if len(q) == 0 {
		return fmt.Sprintf("%s %s", r.method(), r.path())
	}

	keys := sortedKeys(q)
	values := url.Values{}
	for _, k := range keys {
		switch v := q[k].(type) {
		case string:
			values.Add(k, v)
		case []interface{}:
			for _, e := range v {
				values.Add(k, fmt.Sprint(e))
			}
		}
	}
	return fmt.Sprintf("%s %s?%s", r.method(), r.path(), values.Encode())
}
