package pactmock

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

// Template is a response body value copied from the matched request. Example
// is written to the pact file and used when the expression finds nothing.
type Template struct {
	Expression string
	Example    interface{}
}

// FromRequest returns a template that resolves expression, a jsonpath over
// {method, path, query, headers, body}, against the actual request.
func FromRequest(expression string, example interface{}) Template {
	return Template{Expression: expression, Example: example}
}

type bodyTemplate struct {
	path       []interface{}
	expression string
}

type responseTemplate struct {
	status    int
	headers   map[string]string
	body      interface{}
	templates []bodyTemplate
}

// servedResponse is the fully rendered answer for one request.
type servedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

func compileResponse(r Response) (*responseTemplate, error) {
	if r.Status < 100 || r.Status > 599 {
		return nil, errors.Errorf("response status %d is not a valid http status", r.Status)
	}

	t := &responseTemplate{status: r.Status, headers: r.Headers}
	t.body = resolveBody(r.Body, nil, &t.templates)
	if t.body != nil {
		if _, err := json.Marshal(t.body); err != nil {
			return nil, errors.Wrap(err, "unable to encode response body")
		}
	}
	return t, nil
}

// resolveBody replaces matchers with examples and collects templates.
func resolveBody(v interface{}, path []interface{}, templates *[]bodyTemplate) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case Matcher:
		return val.Example()
	case Template:
		*templates = append(*templates, bodyTemplate{
			path:       append([]interface{}(nil), path...),
			expression: val.Expression,
		})
		return normalize(val.Example)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, f := range val {
			out[k] = resolveBody(f, append(path, k), templates)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = resolveBody(e, append(path, i), templates)
		}
		return out
	}
	return normalize(v)
}

func (t *responseTemplate) render(req requestDocument) (*servedResponse, error) {
	headers := http.Header{}
	for k, v := range t.headers {
		headers.Set(k, v)
	}

	body := t.body
	nested := t.templates
	if len(nested) > 0 && len(nested[0].path) == 0 {
		if v, ok := resolveTemplate(nested[0], req); ok {
			body = v
		}
		nested = nested[1:]
	}

	if body == nil {
		return &servedResponse{status: t.status, headers: headers}, nil
	}

	if s, ok := body.(string); ok && !isJSONMediaType(contentMediaType(headers)) {
		if headers.Get("Content-Type") == "" {
			headers.Set("Content-Type", mediaTypeText+"; charset=utf-8")
		}
		return &servedResponse{status: t.status, headers: headers, body: []byte(s)}, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode response body")
	}
	for _, bt := range nested {
		v, ok := resolveTemplate(bt, req)
		if !ok {
			continue
		}
		data, err = sjson.SetBytes(data, sjsonPath(bt.path), v)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to apply response template %s", bt.expression)
		}
	}

	if headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", mediaTypeJSON+"; charset=utf-8")
	}
	return &servedResponse{status: t.status, headers: headers, body: data}, nil
}

func resolveTemplate(bt bodyTemplate, req requestDocument) (interface{}, bool) {
	v, err := jsonpath.Get(bt.expression, map[string]interface{}(req))
	if err != nil {
		log.Warnf("response template %s did not resolve, using example. %s", bt.expression, err)
		return nil, false
	}
	return v, true
}

func contentMediaType(headers http.Header) string {
	ct := headers.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}

// sjsonPath escapes object keys and renders array indexes for sjson.
func sjsonPath(path []interface{}) string {
	parts := make([]string, len(path))
	for i, p := range path {
		switch v := p.(type) {
		case int:
			parts[i] = strconv.Itoa(v)
		default:
			key := fmt.Sprint(v)
			if _, err := strconv.Atoi(key); err == nil {
				key = ":" + key
			}
			parts[i] = sjsonEscaper.Replace(key)
		}
	}
	return strings.Join(parts, ".")
}

var sjsonEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
	`!`, `\!`,
	`=`, `\=`,
)
