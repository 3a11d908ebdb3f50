package pactfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// State is the registry snapshot handed over at teardown.
type State struct {
	Records    []Record
	Unexpected []string
}

// Build assembles the document from the consumed records, in registration
// order. In strict mode any unconsumed record or unexpected request fails the
// build and no document is returned.
func Build(consumer, provider, specVersion string, state State, strict bool) (*Document, error) {
	if specVersion == "" {
		specVersion = DefaultSpecVersion
	}

	var missing []string
	interactions := make([]Interaction, 0, len(state.Records))
	for _, r := range state.Records {
		if !r.Consumed {
			missing = append(missing, fmt.Sprintf("%s %s (%s)", r.Interaction.Request.Method, r.Interaction.Request.Path, r.Interaction.Description))
			continue
		}
		interactions = append(interactions, r.Interaction)
	}

	if strict && (len(missing) > 0 || len(state.Unexpected) > 0) {
		return nil, &UnfulfilledInteractionsError{
			Missing:    missing,
			Unexpected: append([]string(nil), state.Unexpected...),
		}
	}

	return &Document{
		Consumer:     Pacticipant{Name: consumer},
		Interactions: interactions,
		Metadata:     Metadata{PactSpecification: PactSpecification{Version: specVersion}},
		Provider:     Pacticipant{Name: provider},
	}, nil
}

// Marshal encodes the document deterministically.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrap(err, "unable to encode pact document")
	}
	return buf.Bytes(), nil
}

// Write replaces target with the encoded document. The content is written to a
// temporary file in the same directory and renamed over the target. A nil
// logger logs through the standard logger.
func Write(doc *Document, target string, logger *log.Entry) error {
	data, err := Marshal(doc)
	if err != nil {
		return &WriteError{Path: target, Err: err}
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: target, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return &WriteError{Path: target, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Path: target, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Path: target, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: target, Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: target, Err: err}
	}

	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger.WithFields(log.Fields{
		"path":         target,
		"interactions": len(doc.Interactions),
	}).Info("pact file written")
	return nil
}

// Read loads a document previously produced by Write.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read pact file %s", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("pact file is not valid json")
	}

	version := gjson.GetBytes(data, "metadata.pactSpecification.version")
	if !version.Exists() {
		return nil, errors.New("pact file has no metadata.pactSpecification.version")
	}
	if !SupportedVersion(version.String()) {
		return nil, errors.Errorf("unsupported pact specification version %s", version.String())
	}

	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, errors.Wrap(err, "unable to parse pact file")
	}
	if doc.Interactions == nil {
		doc.Interactions = []Interaction{}
	}
	return doc, nil
}

// SupportedVersion reports whether documents of version v can be written and read back.
func SupportedVersion(v string) bool {
	major := strings.SplitN(v, ".", 2)[0]
	return major == "1" || major == "2"
}
