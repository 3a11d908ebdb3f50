package pactfile

import (
	"fmt"
	"strings"
)

// UnfulfilledInteractionsError is returned when a strict session ends with
// registered interactions that were never called, or with requests that
// matched nothing.
type UnfulfilledInteractionsError struct {
	Missing    []string
	Unexpected []string
}

func (e *UnfulfilledInteractionsError) Error() string {
	var b strings.Builder
	b.WriteString("unfulfilled interactions")
	if len(e.Missing) > 0 {
		b.WriteString("\n\nmissing requests:")
		for _, m := range e.Missing {
			b.WriteString("\n\t" + m)
		}
	}
	if len(e.Unexpected) > 0 {
		b.WriteString("\n\nunexpected requests:")
		for _, u := range e.Unexpected {
			b.WriteString("\n\t" + u)
		}
	}
	return b.String()
}

type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("unable to write pact file %s: %s", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
