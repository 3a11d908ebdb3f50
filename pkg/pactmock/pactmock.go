package pactmock

import (
	"time"

	"github.com/form3tech-oss/pact-mock/internal/app/pactfile"
	"github.com/form3tech-oss/pact-mock/internal/app/pactmock"
)

type (
	Interaction        = pactmock.Interaction
	Request            = pactmock.Request
	Response           = pactmock.Response
	Matcher            = pactmock.Matcher
	Template           = pactmock.Template
	InteractionBuilder = pactmock.InteractionBuilder
	Document           = pactfile.Document

	PortInUseError               = pactmock.PortInUseError
	DuplicateInteractionError    = pactmock.DuplicateInteractionError
	LateRegistrationError        = pactmock.LateRegistrationError
	AlreadyConsumedError         = pactmock.AlreadyConsumedError
	UnfulfilledInteractionsError = pactmock.UnfulfilledInteractionsError
	WriteError                   = pactmock.WriteError
)

var (
	Literal     = pactmock.Literal
	String      = pactmock.String
	Regex       = pactmock.Regex
	Structure   = pactmock.Structure
	FromRequest = pactmock.FromRequest
	ParseQuery  = pactmock.ParseQuery
)

type PactConfig struct {
	PactDir      string
	LogDir       string
	Host         string
	SpecVersion  string
	AllowPartial bool
	WaitDelay    time.Duration
	WaitDuration time.Duration
}

// PactBuilder names the two sides of a pact before its mock provider is started.
type PactBuilder struct {
	config   PactConfig
	consumer string
	provider string
}

func NewPactBuilder(config PactConfig) *PactBuilder {
	return &PactBuilder{config: config}
}

func (b *PactBuilder) ServiceConsumer(name string) *PactBuilder {
	b.consumer = name
	return b
}

func (b *PactBuilder) HasPactWith(name string) *PactBuilder {
	b.provider = name
	return b
}

// MockService starts the mock provider on port, 0 picks a free port.
func (b *PactBuilder) MockService(port int) (*MockService, error) {
	session, err := pactmock.NewSession(pactmock.Config{
		Consumer:     b.consumer,
		Provider:     b.provider,
		Host:         b.config.Host,
		Port:         port,
		PactDir:      b.config.PactDir,
		LogDir:       b.config.LogDir,
		SpecVersion:  b.config.SpecVersion,
		AllowPartial: b.config.AllowPartial,
		WaitDelay:    b.config.WaitDelay,
		WaitDuration: b.config.WaitDuration,
	})
	if err != nil {
		return nil, err
	}
	if err := session.Start(); err != nil {
		return nil, err
	}
	return &MockService{Session: session}, nil
}

// MockService is a running mock provider. Build ends it and writes the pact file.
type MockService struct {
	*pactmock.Session
}

func (m *MockService) Build() error {
	return m.Close()
}
