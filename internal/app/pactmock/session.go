package pactmock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/form3tech-oss/pact-mock/internal/app/pactfile"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	defaultHost         = "localhost"
	defaultPactDir      = "pacts"
	defaultWaitDelay    = 500 * time.Millisecond
	defaultWaitDuration = 15 * time.Second
)

type Config struct {
	Consumer string
	Provider string
	Host     string
	Port     int
	PactDir  string
	// LogDir receives a per-session log file. Empty logs to the standard logger.
	LogDir      string
	SpecVersion string
	// AllowPartial writes the pact file with the consumed interactions even
	// when some were never called.
	AllowPartial    bool
	ShutdownTimeout time.Duration
	WaitDelay       time.Duration
	WaitDuration    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.PactDir == "" {
		c.PactDir = defaultPactDir
	}
	if c.SpecVersion == "" {
		c.SpecVersion = pactfile.DefaultSpecVersion
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.WaitDelay == 0 {
		c.WaitDelay = defaultWaitDelay
	}
	if c.WaitDuration == 0 {
		c.WaitDuration = defaultWaitDuration
	}
	return c
}

type State int

const (
	Idle State = iota
	Configuring
	Serving
	Verifying
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Configuring:
		return "Configuring"
	case Serving:
		return "Serving"
	case Verifying:
		return "Verifying"
	case Closed:
		return "Closed"
	case Failed:
		return "Failed"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

var ErrSessionNotConfiguring = errors.New("session is not accepting interactions")

// Session owns one mock provider for the lifetime of a test: its listener,
// its interaction registry and the pact file written at teardown.
type Session struct {
	id           string
	config       Config
	interactions *Interactions
	server       *Server
	logger       *log.Entry
	logFile      *os.File

	mu       sync.Mutex
	state    State
	archived pactfile.State
}

func NewSession(config Config) (*Session, error) {
	config = config.withDefaults()
	if strings.TrimSpace(config.Consumer) == "" || strings.TrimSpace(config.Provider) == "" {
		return nil, errors.New("consumer and provider names are required")
	}
	if !pactfile.SupportedVersion(config.SpecVersion) {
		return nil, fmt.Errorf("unsupported pact specification version %s", config.SpecVersion)
	}

	s := &Session{
		id:           uuid.NewString(),
		config:       config,
		interactions: NewInteractions(),
	}

	logger, logFile, err := newLogger(config)
	if err != nil {
		return nil, err
	}
	s.logFile = logFile
	s.logger = logger.WithFields(log.Fields{
		"session":  s.id,
		"consumer": config.Consumer,
		"provider": config.Provider,
	})

	s.server = NewServer(config.Host, s.interactions, s.logger)
	s.server.shutdownTimeout = config.ShutdownTimeout
	s.server.admin = s.adminHandler()
	return s, nil
}

func newLogger(config Config) (*log.Logger, *os.File, error) {
	if config.LogDir == "" {
		return log.StandardLogger(), nil, nil
	}

	if err := os.MkdirAll(config.LogDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("unable to create log dir: %w", err)
	}
	name := strings.TrimSuffix(pactfile.FileName(config.Consumer, config.Provider), ".json") + "-mock.log"
	f, err := os.OpenFile(filepath.Join(config.LogDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open log file: %w", err)
	}

	logger := log.New()
	logger.SetOutput(f)
	logger.SetLevel(log.GetLevel())
	logger.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	return logger, f, nil
}

// Start binds the mock provider and opens the session for registrations.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return fmt.Errorf("session cannot start from state %s", s.state)
	}

	s.interactions.Clear()
	if err := s.server.Start(s.config.Port); err != nil {
		s.state = Failed
		s.closeLog()
		return err
	}
	s.state = Configuring
	return nil
}

// State reports Serving once the first request was matched against the registry.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	if s.state == Configuring && s.interactions.Frozen() {
		return Serving
	}
	return s.state
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Config() Config {
	return s.config
}

func (s *Session) Port() int {
	return s.server.Port()
}

func (s *Session) URL() string {
	return "http://" + net.JoinHostPort(s.config.Host, strconv.Itoa(s.Port()))
}

func (s *Session) PactPath() string {
	return filepath.Join(s.config.PactDir, pactfile.FileName(s.config.Consumer, s.config.Provider))
}

// AddInteraction registers i. Registration is only possible while the
// session is configuring.
func (s *Session) AddInteraction(i Interaction) error {
	s.mu.Lock()
	state := s.stateLocked()
	s.mu.Unlock()

	switch state {
	case Configuring:
	case Serving:
		return &LateRegistrationError{Description: i.Description}
	default:
		return fmt.Errorf("%w: state %s", ErrSessionNotConfiguring, state)
	}

	if err := s.interactions.Register(i); err != nil {
		return err
	}
	s.logger.WithField("interaction", i.Description).Info("registered interaction")
	return nil
}

// ClearInteractions drops the registered interactions and reopens
// registration. Interactions consumed so far are kept for the pact file,
// unconsumed ones and unexpected requests are kept for teardown verification.
func (s *Session) ClearInteractions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := s.interactions.drain()
	s.archived = mergeState(s.archived, drained)
	s.logger.Infof("cleared %d interactions", len(drained.Records))
}

// VerifyInteractions checks the currently registered interactions: every one
// must have been consumed and no unexpected request received.
func (s *Session) VerifyInteractions() error {
	state := s.interactions.snapshot()

	var missing []string
	for _, r := range state.Records {
		if !r.Consumed {
			missing = append(missing, fmt.Sprintf("%s %s (%s)", r.Interaction.Request.Method, r.Interaction.Request.Path, r.Interaction.Description))
		}
	}
	if len(missing) > 0 || len(state.Unexpected) > 0 {
		return &UnfulfilledInteractionsError{Missing: missing, Unexpected: state.Unexpected}
	}
	return nil
}

// AddConstraint requires the value at path (jsonpath over the request) to equal
// fmt.Sprintf(format, values...).
func (s *Session) AddConstraint(description, path, format string, values ...interface{}) error {
	if format == "" {
		format = "%v"
	}
	return s.addConstraint(interactionConstraint{
		Interaction: description,
		Path:        path,
		Format:      format,
		Values:      values,
	})
}

// AddConstraintFrom is AddConstraint with values read, as jsonpath
// expressions, from the last request of the source interaction.
func (s *Session) AddConstraintFrom(description, path, source, format string, values ...string) error {
	c := interactionConstraint{
		Interaction: description,
		Path:        path,
		Format:      format,
		Source:      source,
	}
	for _, v := range values {
		c.Values = append(c.Values, v)
	}
	return s.addConstraint(c)
}

func (s *Session) addConstraint(c interactionConstraint) error {
	if err := s.interactions.AddConstraint(c); err != nil {
		return err
	}
	s.logger.WithField("interaction", c.Interaction).Infof("added constraint on %s", c.Path)
	return nil
}

var ErrWaitTimeout = errors.New("timeout waiting for interactions to be met")

// WaitForInteraction blocks until the interaction is consumed or the wait
// duration elapses.
func (s *Session) WaitForInteraction(description string) error {
	if _, err := s.interactions.IsConsumed(description); err != nil {
		return err
	}

	consumed := func() bool {
		ok, _ := s.interactions.IsConsumed(description)
		return ok
	}
	ok := retryFor(func(timeLeft time.Duration) bool {
		return s.server.consumptions.waitUntil(consumed, timeLeft)
	}, s.config.WaitDelay, s.config.WaitDuration)
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrWaitTimeout, description)
	}
	return nil
}

// WaitForAll blocks until every registered interaction is consumed or the
// wait duration elapses.
func (s *Session) WaitForAll() error {
	ok := retryFor(func(timeLeft time.Duration) bool {
		return s.server.consumptions.waitUntil(s.interactions.AllConsumed, timeLeft)
	}, s.config.WaitDelay, s.config.WaitDuration)
	if !ok {
		for _, i := range s.interactions.All() {
			if !i.Consumed {
				s.logger.Infof("'%s' has no requests", i.Description)
			}
		}
		return ErrWaitTimeout
	}
	return nil
}

// WritePact writes the consumed interactions so far without ending the session.
func (s *Session) WritePact() (*pactfile.Document, error) {
	s.mu.Lock()
	state := mergeState(s.archived, s.interactions.snapshot())
	s.mu.Unlock()

	doc, err := pactfile.Build(s.config.Consumer, s.config.Provider, s.config.SpecVersion, state, false)
	if err != nil {
		return nil, err
	}
	if err := pactfile.Write(doc, s.PactPath(), s.logger); err != nil {
		return nil, err
	}
	return doc, nil
}

// Close stops the mock provider, verifies that every interaction was consumed
// and writes the pact file. The listener is released on every path. Stop,
// verification and write failures are all reported.
func (s *Session) Close() error {
	s.mu.Lock()
	switch s.state {
	case Idle:
		s.state = Closed
		s.closeLog()
		s.mu.Unlock()
		return nil
	case Verifying, Closed, Failed:
		s.mu.Unlock()
		return nil
	}
	s.state = Verifying
	s.mu.Unlock()

	var errs []error
	if err := s.server.Stop(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("unable to stop mock provider: %w", err))
	}

	s.mu.Lock()
	state := mergeState(s.archived, s.interactions.drain())
	s.archived = pactfile.State{}
	s.mu.Unlock()

	strict := !s.config.AllowPartial
	doc, err := pactfile.Build(s.config.Consumer, s.config.Provider, s.config.SpecVersion, state, strict)
	if err != nil {
		s.logger.Error(err)
		errs = append(errs, err)
	} else if err := pactfile.Write(doc, s.PactPath(), s.logger); err != nil {
		s.logger.Error(err)
		errs = append(errs, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(errs) > 0 {
		s.state = Failed
	} else {
		s.state = Closed
	}
	s.logger.Infof("session %s", s.state)
	s.closeLog()
	return errors.Join(errs...)
}

func (s *Session) closeLog() {
	if s.logFile != nil {
		s.logFile.Close()
		s.logFile = nil
	}
}

// mergeState appends next to prev. A consumed interaction already recorded
// under the same description is not recorded twice.
func mergeState(prev, next pactfile.State) pactfile.State {
	consumed := map[string]bool{}
	for _, r := range prev.Records {
		if r.Consumed {
			consumed[r.Interaction.Description] = true
		}
	}

	merged := pactfile.State{
		Records:    append([]pactfile.Record(nil), prev.Records...),
		Unexpected: append(append([]string(nil), prev.Unexpected...), next.Unexpected...),
	}
	for _, r := range next.Records {
		if r.Consumed && consumed[r.Interaction.Description] {
			continue
		}
		if r.Consumed {
			consumed[r.Interaction.Description] = true
		}
		merged.Records = append(merged.Records, r)
	}
	return merged
}
