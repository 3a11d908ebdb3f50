package pactmock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/form3tech-oss/pact-mock/internal/app/pactfile"
	"github.com/pkg/errors"
)

// LoadInteraction parses an interaction in pact file format. Regex matching
// rules on the path, query parameters, headers and body become Regex matchers.
func LoadInteraction(data []byte) (Interaction, error) {
	doc := pactfile.Interaction{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Interaction{}, errors.Wrap(err, "unable to parse interaction definition")
	}
	return InteractionFromDocument(doc)
}

func InteractionFromDocument(doc pactfile.Interaction) (Interaction, error) {
	if doc.Description == "" {
		return Interaction{}, errors.New("unable to parse interaction definition, no description defined")
	}
	if doc.Request.Method == "" || doc.Request.Path == "" {
		return Interaction{}, errors.New("unable to parse interaction definition, request method and path are required")
	}

	rules := doc.Request.MatchingRules

	var path interface{} = doc.Request.Path
	pathRegex, err := getPathRegex(rules)
	if err != nil {
		return Interaction{}, err
	}
	if pathRegex != "" {
		m, err := newRegexMatcher(doc.Request.Path, pathRegex)
		if err != nil {
			return Interaction{}, errors.Wrap(err, "unable to parse interaction definition, cannot parse path regex rule")
		}
		path = m
	}

	var query map[string]interface{}
	if doc.Request.Query != "" {
		values, err := url.ParseQuery(doc.Request.Query)
		if err != nil {
			return Interaction{}, errors.Wrap(err, "unable to parse interaction query")
		}
		query = make(map[string]interface{}, len(values))
		for k, v := range values {
			query[k], err = withRules(queryValue(v), "$.query."+k, rules)
			if err != nil {
				return Interaction{}, err
			}
		}
	}

	var headers map[string]interface{}
	if len(doc.Request.Headers) > 0 {
		headers = make(map[string]interface{}, len(doc.Request.Headers))
		for name, v := range doc.Request.Headers {
			p := "$.headers." + name
			if _, ok := rules[p]; !ok {
				p = "$.headers." + http.CanonicalHeaderKey(name)
			}
			headers[name], err = withRules(v, p, rules)
			if err != nil {
				return Interaction{}, err
			}
		}
	}

	body, err := withRules(doc.Request.Body, "$.body", bodyRules(rules))
	if err != nil {
		return Interaction{}, err
	}

	return Interaction{
		ProviderState: doc.ProviderState,
		Description:   doc.Description,
		Request: Request{
			Method:  doc.Request.Method,
			Path:    path,
			Query:   query,
			Headers: headers,
			Body:    body,
		},
		Response: Response{
			Status:  doc.Response.Status,
			Headers: doc.Response.Headers,
			Body:    doc.Response.Body,
		},
	}, nil
}

// withRules replaces values that have a regex rule at path with Regex matchers.
func withRules(v interface{}, path string, rules map[string]interface{}) (interface{}, error) {
	if pattern, ok, err := regexRule(rules, path); err != nil {
		return nil, err
	} else if ok {
		m, err := newRegexMatcher(v, pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid matching rule for %s", path)
		}
		return m, nil
	}

	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, f := range val {
			r, err := withRules(f, path+"."+k, rules)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			r, err := withRules(e, path+"["+strconv.Itoa(i)+"]", rules)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

// regexRule understands the v2 rule shapes {"regex": ...} and
// {"match": "regex", "regex": ...}. Other match types are ignored.
func regexRule(rules map[string]interface{}, path string) (string, bool, error) {
	rule, ok := rules[path]
	if !ok {
		return "", false, nil
	}
	val, ok := rule.(map[string]interface{})
	if !ok {
		return "", false, fmt.Errorf("invalid matching rule for %s", path)
	}
	if match, ok := val["match"]; ok && match != "regex" {
		return "", false, nil
	}
	regex, ok := val["regex"].(string)
	if !ok {
		return "", false, fmt.Errorf("invalid matching rule for %s, no regex value", path)
	}
	return regex, true, nil
}

// bodyRules merges v3 style body rules ("body": {"$.a": {"matchers": [...]}})
// into v2 style keys ("$.body.a").
func bodyRules(rules map[string]interface{}) map[string]interface{} {
	body, ok := rules["body"].(map[string]interface{})
	if !ok {
		return rules
	}

	merged := make(map[string]interface{}, len(rules)+len(body))
	for k, v := range rules {
		merged[k] = v
	}
	for prop, v := range body {
		regex, ok := firstRegexMatcher(v)
		if !ok {
			continue
		}
		key := "$.body"
		if p := strings.TrimPrefix(prop, "$"); p != "" {
			key += p
		}
		merged[key] = map[string]interface{}{"match": "regex", "regex": regex}
	}
	return merged
}

func firstRegexMatcher(v interface{}) (string, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return "", false
	}
	matchers, ok := m["matchers"].([]interface{})
	if !ok {
		return "", false
	}
	for _, matcher := range matchers {
		ms, ok := matcher.(map[string]interface{})
		if !ok || ms["match"] != "regex" {
			continue
		}
		if regex, ok := ms["regex"].(string); ok {
			return regex, true
		}
	}
	return "", false
}

// looks for a matching rule for key "$.path" in the supplied map
// if the found element is a map, it is treated as a pact v2 style matching rule (i.e. "$.path": { "regex": "<expression>" } )
// if the found element is an array, it is treated as a pact v3 list of matchers (i.e. "path": { "matchers": [ {"match": "regex", "regex": "<exp>"}]} )
func getPathRegex(matchingRules map[string]interface{}) (string, error) {
	if _, hasPathV2Rule := matchingRules["$.path"]; hasPathV2Rule {
		regex, ok, err := regexRule(matchingRules, "$.path")
		if err != nil {
			return "", fmt.Errorf("invalid v2 pathRegex: %w", err)
		}
		if !ok {
			return "", nil
		}
		return regex, nil
	}

	if rule, hasPathV3Rule := matchingRules["path"]; hasPathV3Rule {
		if _, ok := rule.(map[string]interface{}); !ok {
			return "", fmt.Errorf("invalid v3 pathRegex invalid content")
		}
		regex, ok := firstRegexMatcher(rule)
		if !ok {
			return "", fmt.Errorf("invalid v3 pathRegex - regex matcher is not found")
		}
		return regex, nil
	}

	// no path rule present
	return "", nil
}
