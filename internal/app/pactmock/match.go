package pactmock

import (
	"fmt"
	"strings"
)

type Outcome int

const (
	NoMatch Outcome = iota
	Matched
)

func (o Outcome) String() string {
	if o == Matched {
		return "Matched"
	}
	return "NoMatch"
}

// Stages in evaluation order. A later failing stage means a nearer miss.
const (
	stageMethod = iota + 1
	stagePath
	stageQuery
	stageHeaders
	stageBody
	stageConstraints
	stageMatched
)

var stageNames = map[int]string{
	stageMethod:      "method",
	stagePath:        "path",
	stageQuery:       "query",
	stageHeaders:     "headers",
	stageBody:        "body",
	stageConstraints: "constraints",
}

// MatchResult is the outcome of comparing one request against one
// expectation. Field and Diagnostic describe the first field that failed.
type MatchResult struct {
	Outcome    Outcome `json:"outcome"`
	Field      string  `json:"field,omitempty"`
	Diagnostic string  `json:"diagnostic,omitempty"`
	stage      int
}

func matched() MatchResult {
	return MatchResult{Outcome: Matched, stage: stageMatched}
}

func noMatch(stage int, format string, args ...interface{}) MatchResult {
	return MatchResult{
		Outcome:    NoMatch,
		Field:      stageNames[stage],
		Diagnostic: fmt.Sprintf(format, args...),
		stage:      stage,
	}
}

// matchRequest evaluates method, path, query, headers and body in that order
// and stops at the first mismatch. Fields the expectation leaves empty match
// anything; undeclared query parameters, headers and body keys are ignored.
func matchRequest(e *expectation, req requestDocument) MatchResult {
	if !strings.EqualFold(e.method, req.method()) {
		return noMatch(stageMethod, "expected method %s but got %s", e.method, req.method())
	}

	if err := e.path.match("$.path", req.path()); err != nil {
		return noMatch(stagePath, "%s", err)
	}

	if len(e.query) > 0 {
		actual := req.query()
		for _, k := range sortedMatcherKeys(e.query) {
			v, ok := actual[k]
			if !ok {
				return noMatch(stageQuery, "expected query parameter %q but it was missing", k)
			}
			if err := e.query[k].match("$.query."+k, v); err != nil {
				return noMatch(stageQuery, "%s", err)
			}
		}
	}

	if len(e.headers) > 0 {
		actual := req.headers()
		for _, name := range sortedMatcherKeys(e.headers) {
			v, ok := actual[name]
			if !ok {
				return noMatch(stageHeaders, "expected header %q but it was missing", name)
			}
			if err := e.headers[name].match("$.headers."+name, v); err != nil {
				return noMatch(stageHeaders, "%s", err)
			}
		}
	}

	if e.body != nil {
		actual, ok := req.body()
		if !ok {
			return noMatch(stageBody, "expected a request body but the request had none")
		}
		if err := e.body.match("$.body", actual); err != nil {
			return noMatch(stageBody, "%s", err)
		}
	}

	return matched()
}
