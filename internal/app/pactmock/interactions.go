package pactmock

import (
	"fmt"
	"sort"
	"sync"

	"github.com/form3tech-oss/pact-mock/internal/app/pactfile"
	"github.com/pkg/errors"
)

type interaction struct {
	Interaction
	expectation *expectation
	response    *responseTemplate
	constraints map[string]interactionConstraint
	consumed    bool
	lastRequest requestDocument
}

func newInteraction(def Interaction) (*interaction, error) {
	if def.Description == "" {
		return nil, errors.New("interaction description is required")
	}

	e, err := compileRequest(def.Request)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid request for interaction '%s'", def.Description)
	}

	r, err := compileResponse(def.Response)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid response for interaction '%s'", def.Description)
	}

	return &interaction{
		Interaction: def,
		expectation: e,
		response:    r,
		constraints: map[string]interactionConstraint{},
	}, nil
}

func (i *interaction) match(req requestDocument, source func(string) (requestDocument, bool)) MatchResult {
	result := matchRequest(i.expectation, req)
	if result.Outcome != Matched {
		return result
	}

	for _, key := range sortedConstraintKeys(i.constraints) {
		if err := i.constraints[key].evaluate(req, source); err != nil {
			return noMatch(stageConstraints, "%s", err)
		}
	}
	return result
}

func (i *interaction) document() pactfile.Interaction {
	method, path, query, headers, body, rules := i.expectation.document()
	return pactfile.Interaction{
		Description:   i.Description,
		ProviderState: i.ProviderState,
		Request: pactfile.Request{
			Body:          body,
			Headers:       headers,
			MatchingRules: rules,
			Method:        method,
			Path:          path,
			Query:         query,
		},
		Response: pactfile.Response{
			Body:    i.response.body,
			Headers: i.response.headers,
			Status:  i.response.status,
		},
	}
}

// Document returns i as it is recorded in a pact file. Response templates are
// recorded with their examples.
func (i Interaction) Document() (pactfile.Interaction, error) {
	compiled, err := newInteraction(i)
	if err != nil {
		return pactfile.Interaction{}, err
	}
	return compiled.document(), nil
}

// InteractionStatus is the externally visible state of a registered interaction.
type InteractionStatus struct {
	Description   string `json:"description"`
	ProviderState string `json:"providerState,omitempty"`
	Consumed      bool   `json:"consumed"`
}

// NearMiss is the registered interaction that came closest to matching.
type NearMiss struct {
	Description string      `json:"description"`
	Result      MatchResult `json:"result"`
}

type mismatchError struct {
	Request string
	Nearest *NearMiss
}

func (e *mismatchError) Error() string {
	if e.Nearest == nil {
		return fmt.Sprintf("no interaction found for %s, no interactions registered", e.Request)
	}
	return fmt.Sprintf("no interaction found for %s, nearest is '%s': %s",
		e.Request, e.Nearest.Description, e.Nearest.Result.Diagnostic)
}

// Interactions is the ordered set of interactions expected in a session. It
// is the only state shared between concurrent requests; every operation holds
// its lock for the whole read-match-consume sequence.
type Interactions struct {
	mu            sync.Mutex
	ordered       []*interaction
	byDescription map[string]*interaction
	frozen        bool
	unexpected    []string
}

func NewInteractions() *Interactions {
	return &Interactions{byDescription: map[string]*interaction{}}
}

// Register appends def. It fails once a request has been matched against the
// registry, until the next Clear.
func (r *Interactions) Register(def Interaction) error {
	i, err := newInteraction(def)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return &LateRegistrationError{Description: def.Description}
	}
	if _, exists := r.byDescription[def.Description]; exists {
		return &DuplicateInteractionError{Description: def.Description}
	}

	r.ordered = append(r.ordered, i)
	r.byDescription[def.Description] = i
	return nil
}

func (r *Interactions) Clear() {
	r.drain()
}

// drain returns the registry content and resets it in one step.
func (r *Interactions) drain() pactfile.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.stateLocked()
	r.ordered = nil
	r.byDescription = map[string]*interaction{}
	r.unexpected = nil
	r.frozen = false
	return state
}

func (r *Interactions) snapshot() pactfile.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Interactions) stateLocked() pactfile.State {
	state := pactfile.State{
		Records:    make([]pactfile.Record, 0, len(r.ordered)),
		Unexpected: append([]string(nil), r.unexpected...),
	}
	for _, i := range r.ordered {
		state.Records = append(state.Records, pactfile.Record{
			Interaction: i.document(),
			Consumed:    i.consumed,
		})
	}
	return state
}

// FindMatch returns the earliest registered unconsumed interaction matching req.
func (r *Interactions) FindMatch(req requestDocument) (*interaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
	found, _, _ := r.findLocked(req)
	return found, found != nil
}

func (r *Interactions) MarkConsumed(i *interaction, req requestDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markLocked(i, req)
}

func (r *Interactions) markLocked(i *interaction, req requestDocument) error {
	if i.consumed {
		return &AlreadyConsumedError{Description: i.Description, Request: req.String()}
	}
	i.consumed = true
	i.lastRequest = req
	return nil
}

// Consume matches req and marks the winning interaction consumed atomically,
// returning the rendered response. Requests that match nothing, or only
// interactions already consumed, are recorded as unexpected.
func (r *Interactions) Consume(req requestDocument) (*interaction, *servedResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true

	found, consumed, nearest := r.findLocked(req)
	if found == nil {
		var err error
		if consumed != nil {
			err = &AlreadyConsumedError{Description: consumed.Description, Request: req.String()}
		} else {
			err = &mismatchError{Request: req.String(), Nearest: nearest}
		}
		r.unexpected = append(r.unexpected, err.Error())
		return consumed, nil, err
	}

	res, err := found.response.render(req)
	if err != nil {
		return found, nil, err
	}
	if err := r.markLocked(found, req); err != nil {
		return found, nil, err
	}
	return found, res, nil
}

// findLocked returns the first unconsumed match, the first consumed match and
// the nearest miss.
func (r *Interactions) findLocked(req requestDocument) (found, consumed *interaction, nearest *NearMiss) {
	for _, i := range r.ordered {
		result := i.match(req, r.sourceLocked)
		if result.Outcome == Matched {
			if !i.consumed {
				return i, nil, nil
			}
			if consumed == nil {
				consumed = i
			}
			continue
		}
		if nearest == nil || result.stage > nearest.Result.stage {
			nearest = &NearMiss{Description: i.Description, Result: result}
		}
	}
	return nil, consumed, nearest
}

func (r *Interactions) sourceLocked(description string) (requestDocument, bool) {
	i, ok := r.byDescription[description]
	if !ok || i.lastRequest == nil {
		return nil, false
	}
	return i.lastRequest, true
}

func (r *Interactions) AddConstraint(c interactionConstraint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byDescription[c.Interaction]
	if !ok {
		return &InteractionNotFoundError{Description: c.Interaction}
	}
	i.constraints[c.Key()] = c
	return nil
}

func (r *Interactions) IsConsumed(description string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byDescription[description]
	if !ok {
		return false, &InteractionNotFoundError{Description: description}
	}
	return i.consumed, nil
}

func (r *Interactions) AllConsumed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, i := range r.ordered {
		if !i.consumed {
			return false
		}
	}
	return true
}

func (r *Interactions) All() []InteractionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]InteractionStatus, 0, len(r.ordered))
	for _, i := range r.ordered {
		statuses = append(statuses, InteractionStatus{
			Description:   i.Description,
			ProviderState: i.ProviderState,
			Consumed:      i.consumed,
		})
	}
	return statuses
}

func (r *Interactions) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

func (r *Interactions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ordered)
}

func sortedConstraintKeys(m map[string]interactionConstraint) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
