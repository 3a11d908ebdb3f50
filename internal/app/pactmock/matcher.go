package pactmock

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
)

// Matcher decides whether an actual request value satisfies an expected one.
// It is one of Literal, Regex or Structure; nested matchers are applied recursively.
type Matcher interface {
	// Example is the concrete value written to the pact file and used when the
	// matcher appears in a response.
	Example() interface{}

	match(path string, actual interface{}) error
	rules(path string, rules map[string]interface{})
}

type literalMatcher struct {
	value interface{}
}

// Literal matches by equality. Objects match when every expected key is present
// with an equal value; extra actual keys are ignored.
func Literal(value interface{}) Matcher {
	return &literalMatcher{value: normalize(value)}
}

// String is shorthand for a literal string.
func String(value string) Matcher {
	return &literalMatcher{value: value}
}

func (m *literalMatcher) Example() interface{} {
	return m.value
}

func (m *literalMatcher) match(path string, actual interface{}) error {
	return compareLiteral(path, m.value, actual)
}

func (m *literalMatcher) rules(string, map[string]interface{}) {}

func compareLiteral(path string, expected, actual interface{}) error {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected an object at %s but got %s", path, describe(actual))
		}
		for _, k := range sortedKeys(exp) {
			v, present := act[k]
			if !present {
				return fmt.Errorf("expected key %q at %s but it was missing", k, path)
			}
			if err := compareLiteral(path+"."+k, exp[k], v); err != nil {
				return err
			}
		}
		return nil
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return fmt.Errorf("expected an array at %s but got %s", path, describe(actual))
		}
		if len(exp) != len(act) {
			return fmt.Errorf("expected an array of length %d at %s but got length %d", len(exp), path, len(act))
		}
		for i := range exp {
			if err := compareLiteral(path+"["+strconv.Itoa(i)+"]", exp[i], act[i]); err != nil {
				return err
			}
		}
		return nil
	}

	if !reflect.DeepEqual(expected, actual) {
		return fmt.Errorf("expected %s at %s but got %s", describe(expected), path, describe(actual))
	}
	return nil
}

type regexMatcher struct {
	example interface{}
	pattern string
	re      *regexp.Regexp
}

// Regex matches strings against pattern, anchored at both ends. The example
// is recorded in the pact file and must itself match.
func Regex(example, pattern string) Matcher {
	m, err := newRegexMatcher(example, pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func newRegexMatcher(example interface{}, pattern string) (*regexMatcher, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	if s := fmt.Sprint(example); !re.MatchString(s) {
		return nil, fmt.Errorf("example %q does not match regex %q", s, pattern)
	}
	return &regexMatcher{example: example, pattern: pattern, re: re}, nil
}

func (m *regexMatcher) Example() interface{} {
	return m.example
}

func (m *regexMatcher) match(path string, actual interface{}) error {
	var s string
	switch v := actual.(type) {
	case string:
		s = v
	case float64, bool:
		s = fmt.Sprint(v)
	case []interface{}:
		for i, e := range v {
			if err := m.match(path+"["+strconv.Itoa(i)+"]", e); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("expected a value matching /%s/ at %s but got %s", m.pattern, path, describe(actual))
	}
	if !m.re.MatchString(s) {
		return fmt.Errorf("expected a value matching /%s/ at %s but got %q", m.pattern, path, s)
	}
	return nil
}

func (m *regexMatcher) rules(path string, rules map[string]interface{}) {
	rules[path] = map[string]interface{}{"match": "regex", "regex": m.pattern}
}

type structMatcher struct {
	fields map[string]Matcher
}

// Structure matches objects key by key. Keys absent from fields are ignored.
func Structure(fields map[string]Matcher) Matcher {
	return &structMatcher{fields: fields}
}

func (m *structMatcher) Example() interface{} {
	out := make(map[string]interface{}, len(m.fields))
	for k, f := range m.fields {
		out[k] = f.Example()
	}
	return out
}

func (m *structMatcher) match(path string, actual interface{}) error {
	act, ok := actual.(map[string]interface{})
	if !ok {
		return fmt.Errorf("expected an object at %s but got %s", path, describe(actual))
	}
	for _, k := range sortedMatcherKeys(m.fields) {
		v, present := act[k]
		if !present {
			return fmt.Errorf("expected key %q at %s but it was missing", k, path)
		}
		if err := m.fields[k].match(path+"."+k, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *structMatcher) rules(path string, rules map[string]interface{}) {
	for k, f := range m.fields {
		f.rules(path+"."+k, rules)
	}
}

// elementsMatcher is produced for arrays that contain matchers.
type elementsMatcher struct {
	elements []Matcher
}

func (m *elementsMatcher) Example() interface{} {
	out := make([]interface{}, len(m.elements))
	for i, e := range m.elements {
		out[i] = e.Example()
	}
	return out
}

func (m *elementsMatcher) match(path string, actual interface{}) error {
	act, ok := actual.([]interface{})
	if !ok {
		return fmt.Errorf("expected an array at %s but got %s", path, describe(actual))
	}
	if len(act) != len(m.elements) {
		return fmt.Errorf("expected an array of length %d at %s but got length %d", len(m.elements), path, len(act))
	}
	for i, e := range m.elements {
		if err := e.match(path+"["+strconv.Itoa(i)+"]", act[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *elementsMatcher) rules(path string, rules map[string]interface{}) {
	for i, e := range m.elements {
		e.rules(path+"["+strconv.Itoa(i)+"]", rules)
	}
}

// toMatcher turns a declared value into a matcher. Maps and slices holding
// matchers become structural matchers, anything else a literal.
func toMatcher(v interface{}) Matcher {
	switch val := v.(type) {
	case nil:
		return nil
	case Matcher:
		return val
	case map[string]interface{}:
		if containsMatcher(val) {
			fields := make(map[string]Matcher, len(val))
			for k, f := range val {
				fields[k] = nestedMatcher(f)
			}
			return Structure(fields)
		}
	case []interface{}:
		if containsMatcher(val) {
			elements := make([]Matcher, len(val))
			for i, e := range val {
				elements[i] = nestedMatcher(e)
			}
			return &elementsMatcher{elements: elements}
		}
	}
	return Literal(v)
}

func nestedMatcher(v interface{}) Matcher {
	if m := toMatcher(v); m != nil {
		return m
	}
	return &literalMatcher{}
}

func containsMatcher(v interface{}) bool {
	switch val := v.(type) {
	case Matcher:
		return true
	case map[string]interface{}:
		for _, f := range val {
			if containsMatcher(f) {
				return true
			}
		}
	case []interface{}:
		for _, e := range val {
			if containsMatcher(e) {
				return true
			}
		}
	}
	return false
}

// normalize converts v into the shape encoding/json produces when decoding,
// so expected values compare equal to decoded request bodies.
func normalize(v interface{}) interface{} {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func describe(v interface{}) string {
	if v == nil {
		return "nothing"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMatcherKeys(m map[string]Matcher) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
