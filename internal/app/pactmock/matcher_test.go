package pactmock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiteralMatch(t *testing.T) {
	for _, tt := range []struct {
		name     string
		expected interface{}
		actual   interface{}
		wantErr  string
	}{
		{name: "equal strings", expected: "lolz", actual: "lolz"},
		{name: "different strings", expected: "lolz", actual: "nope", wantErr: `expected "lolz" at $ but got "nope"`},
		{name: "int against decoded number", expected: 42, actual: 42.0},
		{name: "extra actual keys are ignored",
			expected: map[string]interface{}{"name": "sam"},
			actual:   map[string]interface{}{"name": "sam", "age": 3.0}},
		{name: "missing key",
			expected: map[string]interface{}{"name": "sam"},
			actual:   map[string]interface{}{"age": 3.0},
			wantErr:  `expected key "name" at $ but it was missing`},
		{name: "nested value differs",
			expected: map[string]interface{}{"user": map[string]string{"name": "sam"}},
			actual:   map[string]interface{}{"user": map[string]interface{}{"name": "bob"}},
			wantErr:  `expected "sam" at $.user.name but got "bob"`},
		{name: "object against string", expected: map[string]interface{}{"a": 1}, actual: "a", wantErr: "expected an object"},
		{name: "arrays must have equal length",
			expected: []string{"line 1", "line 2"},
			actual:   []interface{}{"line 1"},
			wantErr:  "expected an array of length 2 at $ but got length 1"},
		{name: "array elements compared in order",
			expected: []string{"line 1", "line 2"},
			actual:   []interface{}{"line 2", "line 1"},
			wantErr:  `expected "line 1" at $[0] but got "line 2"`},
		{name: "struct is compared by its json form",
			expected: struct {
				Message string `json:"message"`
			}{Message: "hi"},
			actual: map[string]interface{}{"message": "hi"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := Literal(tt.expected).match("$", tt.actual)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegexMatch(t *testing.T) {
	m := Regex("2020-01-01", `\d{4}-\d{2}-\d{2}`)

	assert.NoError(t, m.match("$.query.date", "2021-12-31"))
	assert.Error(t, m.match("$.query.date", "2021-12-31T00:00"), "regex must be anchored")
	assert.Error(t, m.match("$.query.date", "lolz"))
	assert.NoError(t, m.match("$.query.date", []interface{}{"2021-12-31", "2022-01-01"}))
	assert.Error(t, m.match("$.query.date", map[string]interface{}{}))
	assert.Equal(t, "2020-01-01", m.Example())

	assert.NoError(t, Regex("1", `\d+`).match("$.body.id", 12.0))
}

func TestRegexPanicsOnInvalidDefinition(t *testing.T) {
	assert.Panics(t, func() { Regex("x", "(") })
	assert.Panics(t, func() { Regex("abc", `\d+`) })
}

func TestStructureMatch(t *testing.T) {
	m := Structure(map[string]Matcher{
		"name": Regex("any", ".*"),
		"address": Structure(map[string]Matcher{
			"postcode": Regex("SW1A 1AA", "[A-Z0-9 ]+"),
		}),
	})

	assert.NoError(t, m.match("$.body", map[string]interface{}{
		"name":    "sam",
		"extra":   true,
		"address": map[string]interface{}{"postcode": "EC1 2AB"},
	}))

	err := m.match("$.body", map[string]interface{}{
		"name":    "sam",
		"address": map[string]interface{}{"postcode": "lower case"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.body.address.postcode")

	assert.Equal(t, map[string]interface{}{
		"name":    "any",
		"address": map[string]interface{}{"postcode": "SW1A 1AA"},
	}, m.Example())
}

func TestToMatcher(t *testing.T) {
	assert.Nil(t, toMatcher(nil))

	literal := toMatcher(map[string]interface{}{"a": 1})
	assert.IsType(t, &literalMatcher{}, literal)

	structural := toMatcher(map[string]interface{}{
		"name":  Regex("any", ".*"),
		"lines": []interface{}{"line 1", Regex("line 2", "line .")},
		"none":  nil,
	})
	require.IsType(t, &structMatcher{}, structural)
	assert.NoError(t, structural.match("$.body", map[string]interface{}{
		"name":  "bob",
		"lines": []interface{}{"line 1", "line 9"},
		"none":  nil,
	}))
	assert.Error(t, structural.match("$.body", map[string]interface{}{
		"name":  "bob",
		"lines": []interface{}{"line 2", "line 9"},
		"none":  nil,
	}))
}

func TestMatchingRules(t *testing.T) {
	m := toMatcher(map[string]interface{}{
		"name":  Regex("any", ".*"),
		"lines": []interface{}{"line 1", Regex("line 2", "line .")},
		"plain": "x",
	})

	rules := map[string]interface{}{}
	m.rules("$.body", rules)

	assert.Equal(t, map[string]interface{}{
		"$.body.name":     map[string]interface{}{"match": "regex", "regex": ".*"},
		"$.body.lines[1]": map[string]interface{}{"match": "regex", "regex": "line ."},
	}, rules)
}
