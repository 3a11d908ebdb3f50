package pactmock

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
)

const fmtLen = "_length_"

// interactionConstraint is an extra predicate on the request document,
// evaluated after the expectation matched.
type interactionConstraint struct {
	Interaction string        `json:"interaction"`
	Path        string        `json:"path"`
	Values      []interface{} `json:"values"`
	Format      string        `json:"format"`
	Source      string        `json:"source"`
}

func loadConstraint(data []byte) (interactionConstraint, error) {
	c := interactionConstraint{}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, errors.Wrap(err, "unable to parse constraint")
	}
	if c.Interaction == "" || c.Path == "" {
		return c, errors.New("constraint requires interaction and path")
	}
	if c.Format == "" {
		c.Format = "%v"
	}
	return c, nil
}

func (c interactionConstraint) Key() string {
	return strings.Join([]string{c.Interaction, c.Path}, "_")
}

// evaluate checks the constraint against req. When the constraint has a
// source, its values are jsonpath expressions over the source interaction's
// last request.
func (c interactionConstraint) evaluate(req requestDocument, source func(string) (requestDocument, bool)) error {
	expected, err := c.expectedValues(source)
	if err != nil {
		return err
	}

	actual, err := jsonpath.Get(c.Path, map[string]interface{}(req))
	if err != nil {
		actual = nil
	}
	if c.Format == fmtLen {
		return c.checkLength(expected, actual)
	}
	// a path selecting several values has nothing single to compare against
	if _, ok := actual.([]interface{}); ok {
		return nil
	}

	want := fmt.Sprintf(c.Format, expected...)
	got := fmt.Sprintf("%v", actual)
	if want != got {
		return fmt.Errorf("value %q at path %q does not match constraint %q", got, c.Path, want)
	}
	return nil
}

func (c interactionConstraint) expectedValues(source func(string) (requestDocument, bool)) ([]interface{}, error) {
	if c.Source == "" {
		return c.Values, nil
	}
	sourceRequest, ok := source(c.Source)
	if !ok {
		return nil, errors.Errorf("source interaction '%s' has no requests", c.Source)
	}
	values := make([]interface{}, len(c.Values))
	for i, v := range c.Values {
		expr, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("constraint value %v for source '%s' is not a jsonpath", v, c.Source)
		}
		values[i], _ = jsonpath.Get(expr, map[string]interface{}(sourceRequest))
	}
	return values, nil
}

func (c interactionConstraint) checkLength(expected []interface{}, actual interface{}) error {
	if len(expected) != 1 {
		return fmt.Errorf(
			"expected single positive integer value for path %q length constraint, but there are %v expected values",
			c.Path, len(expected))
	}
	want, ok := toInt(expected[0])
	if !ok || want < 0 {
		return fmt.Errorf("expected value for %q length constraint must be a positive integer", c.Path)
	}

	list, ok := actual.([]interface{})
	if !ok {
		return fmt.Errorf("value at path %q must be an array due to length constraint", c.Path)
	}
	if want != len(list) {
		return fmt.Errorf("value of length %v at path %q does not match length constraint %v",
			len(list), c.Path, want)
	}
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
