package pactmock

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var httpVerbs = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
	http.MethodConnect: true,
}

// Interaction is one expected request and the response the mock provider
// answers it with.
type Interaction struct {
	ProviderState string
	Description   string
	Request       Request
	Response      Response
}

// Request describes the expected request. Method and Path are required, every
// other field left empty matches anything.
//
// Path is a string or a Matcher. Query is a raw query string, url.Values,
// map[string]string or map[string]interface{} whose values may be matchers.
// Header and body values may be matchers or plain values.
type Request struct {
	Method  string
	Path    interface{}
	Query   interface{}
	Headers map[string]interface{}
	Body    interface{}
}

// Response is returned verbatim for a matched request. Matchers in Body are
// replaced by their examples and FromRequest templates by request values.
type Response struct {
	Status  int
	Headers map[string]string
	Body    interface{}
}

type expectation struct {
	method  string
	path    Matcher
	query   map[string]Matcher
	headers map[string]Matcher
	body    Matcher
}

func compileRequest(r Request) (*expectation, error) {
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		return nil, errors.New("request method is required")
	}
	if !httpVerbs[method] {
		return nil, errors.Errorf("unsupported request method %s", r.Method)
	}

	e := &expectation{method: method}

	switch p := r.Path.(type) {
	case string:
		if p == "" {
			return nil, errors.New("request path is required")
		}
		e.path = String(p)
	case Matcher:
		e.path = p
	case nil:
		return nil, errors.New("request path is required")
	default:
		return nil, errors.Errorf("request path must be a string or a matcher, got %T", r.Path)
	}

	query, err := compileQuery(r.Query)
	if err != nil {
		return nil, err
	}
	e.query = query

	if len(r.Headers) > 0 {
		e.headers = make(map[string]Matcher, len(r.Headers))
		for name, v := range r.Headers {
			e.headers[http.CanonicalHeaderKey(name)] = paramMatcher(v)
		}
	}

	e.body = toMatcher(r.Body)
	return e, nil
}

// ParseQuery turns a raw query string into a parameter map usable as Request.Query.
func ParseQuery(raw string) map[string]interface{} {
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return nil
	}
	return parseQueryValues(values)
}

func compileQuery(q interface{}) (map[string]Matcher, error) {
	var params map[string]interface{}
	switch v := q.(type) {
	case nil:
		return nil, nil
	case string:
		values, err := url.ParseQuery(strings.TrimPrefix(v, "?"))
		if err != nil {
			return nil, errors.Wrap(err, "unable to parse request query")
		}
		params = parseQueryValues(values)
	case url.Values:
		params = parseQueryValues(v)
	case map[string]string:
		params = make(map[string]interface{}, len(v))
		for k, s := range v {
			params[k] = s
		}
	case map[string][]string:
		params = parseQueryValues(url.Values(v))
	case map[string]interface{}:
		params = v
	case map[string]Matcher:
		return v, nil
	default:
		return nil, errors.Errorf("unsupported request query type %T", q)
	}

	if len(params) == 0 {
		return nil, nil
	}
	query := make(map[string]Matcher, len(params))
	for k, v := range params {
		query[k] = paramMatcher(v)
	}
	return query, nil
}

// paramMatcher compiles a declared header or query value. A nil value
// declares the key with an empty value.
func paramMatcher(v interface{}) Matcher {
	if v == nil {
		return String("")
	}
	return nestedMatcher(v)
}

// document renders the expectation as it is recorded in a pact file.
func (e *expectation) document() (method, path, query string, headers map[string]string, body interface{}, rules map[string]interface{}) {
	rules = map[string]interface{}{}

	method = e.method
	path = fmt.Sprint(e.path.Example())
	e.path.rules("$.path", rules)

	if len(e.query) > 0 {
		values := url.Values{}
		for _, k := range sortedMatcherKeys(e.query) {
			m := e.query[k]
			switch ex := m.Example().(type) {
			case []interface{}:
				for _, v := range ex {
					values.Add(k, fmt.Sprint(v))
				}
			default:
				values.Add(k, fmt.Sprint(ex))
			}
			m.rules("$.query."+k, rules)
		}
		query = values.Encode()
	}

	if len(e.headers) > 0 {
		headers = make(map[string]string, len(e.headers))
		for name, m := range e.headers {
			headers[name] = fmt.Sprint(m.Example())
			m.rules("$.headers."+name, rules)
		}
	}

	if e.body != nil {
		body = e.body.Example()
		e.body.rules("$.body", rules)
	}

	if len(rules) == 0 {
		rules = nil
	}
	return
}
