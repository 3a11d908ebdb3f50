package pactmock

import (
	"fmt"

	"github.com/form3tech-oss/pact-mock/internal/app/pactfile"
)

type (
	UnfulfilledInteractionsError = pactfile.UnfulfilledInteractionsError
	WriteError                   = pactfile.WriteError
)

type PortInUseError struct {
	Address string
	Err     error
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("mock provider cannot listen on %s, address already in use", e.Address)
}

func (e *PortInUseError) Unwrap() error {
	return e.Err
}

type DuplicateInteractionError struct {
	Description string
}

func (e *DuplicateInteractionError) Error() string {
	return fmt.Sprintf("interaction '%s' is already registered", e.Description)
}

// LateRegistrationError is returned when an interaction is registered after the
// mock provider started matching requests.
type LateRegistrationError struct {
	Description string
}

func (e *LateRegistrationError) Error() string {
	return fmt.Sprintf("cannot register interaction '%s', the mock provider is already serving requests", e.Description)
}

type AlreadyConsumedError struct {
	Description string
	Request     string
}

func (e *AlreadyConsumedError) Error() string {
	return fmt.Sprintf("interaction '%s' was already consumed, duplicate request %s", e.Description, e.Request)
}

// InteractionNotFoundError is returned by operations addressing an interaction
// by description.
type InteractionNotFoundError struct {
	Description string
}

func (e *InteractionNotFoundError) Error() string {
	return fmt.Sprintf("unable to find interaction '%s'", e.Description)
}
