package pactfile

import (
	"fmt"
	"strings"
)

const DefaultSpecVersion = "2.0.0"

// Fields are declared in json key order so that encoding is canonical.
type Document struct {
	Consumer     Pacticipant   `json:"consumer"`
	Interactions []Interaction `json:"interactions"`
	Metadata     Metadata      `json:"metadata"`
	Provider     Pacticipant   `json:"provider"`
}

type Pacticipant struct {
	Name string `json:"name"`
}

type Metadata struct {
	PactSpecification PactSpecification `json:"pactSpecification"`
}

type PactSpecification struct {
	Version string `json:"version"`
}

type Interaction struct {
	Description   string   `json:"description"`
	ProviderState string   `json:"providerState,omitempty"`
	Request       Request  `json:"request"`
	Response      Response `json:"response"`
}

type Request struct {
	Body          interface{}            `json:"body,omitempty"`
	Headers       map[string]string      `json:"headers,omitempty"`
	MatchingRules map[string]interface{} `json:"matchingRules,omitempty"`
	Method        string                 `json:"method"`
	Path          string                 `json:"path"`
	Query         string                 `json:"query,omitempty"`
}

type Response struct {
	Body    interface{}       `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Status  int               `json:"status"`
}

// Record is one registered interaction as seen at teardown.
type Record struct {
	Interaction Interaction
	Consumed    bool
}

// FileName returns the canonical file name for a consumer/provider pair.
func FileName(consumer, provider string) string {
	return fmt.Sprintf("%s-%s.json", sanitize(consumer), sanitize(provider))
}

func sanitize(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}
