package configuration

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/form3tech-oss/pact-mock/internal/app/pactmock"
	log "github.com/sirupsen/logrus"
)

// MockRequest asks for a new mock provider session.
type MockRequest struct {
	Consumer     string `json:"consumer"`
	Provider     string `json:"provider"`
	Port         int    `json:"port"`
	AllowPartial *bool  `json:"allowPartial,omitempty"`
}

// MockInfo describes a running mock provider session.
type MockInfo struct {
	Session  string `json:"session"`
	Consumer string `json:"consumer"`
	Provider string `json:"provider"`
	Port     int    `json:"port"`
	URL      string `json:"url"`
	State    string `json:"state"`
	PactFile string `json:"pactFile"`
}

type MockNotFoundError struct {
	Port int
}

func (e *MockNotFoundError) Error() string {
	return fmt.Sprintf("no mock provider running on port %d", e.Port)
}

// Manager keeps the mock provider sessions started through the admin API,
// keyed by the port they listen on.
type Manager struct {
	config Config

	mu       sync.Mutex
	sessions map[int]*pactmock.Session
}

func NewManager(config Config) *Manager {
	return &Manager{
		config:   config,
		sessions: map[int]*pactmock.Session{},
	}
}

func (m *Manager) StartMock(req MockRequest) (MockInfo, error) {
	config := m.config.SessionConfig(req.Consumer, req.Provider, req.Port)
	if req.AllowPartial != nil {
		config.AllowPartial = *req.AllowPartial
	}

	session, err := pactmock.NewSession(config)
	if err != nil {
		return MockInfo{}, err
	}
	if err := session.Start(); err != nil {
		return MockInfo{}, err
	}

	m.mu.Lock()
	m.sessions[session.Port()] = session
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"consumer": req.Consumer,
		"provider": req.Provider,
		"port":     session.Port(),
	}).Info("mock provider started")
	return mockInfo(session), nil
}

func (m *Manager) Mock(port int) (*pactmock.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[port]
	return s, ok
}

func (m *Manager) Mocks() []MockInfo {
	m.mu.Lock()
	ports := make([]int, 0, len(m.sessions))
	for port := range m.sessions {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	sessions := make([]*pactmock.Session, 0, len(ports))
	for _, port := range ports {
		sessions = append(sessions, m.sessions[port])
	}
	m.mu.Unlock()

	infos := make([]MockInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, mockInfo(s))
	}
	return infos
}

// CloseMock closes the session on port and writes its pact file. The session
// is removed even when verification fails.
func (m *Manager) CloseMock(port int) error {
	m.mu.Lock()
	session, ok := m.sessions[port]
	delete(m.sessions, port)
	m.mu.Unlock()

	if !ok {
		return &MockNotFoundError{Port: port}
	}
	return session.Close()
}

func (m *Manager) CloseAll() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[int]*pactmock.Session{}
	m.mu.Unlock()

	var errs []error
	for port, s := range sessions {
		if err := s.Close(); err != nil {
			log.WithField("port", port).Error(err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func mockInfo(s *pactmock.Session) MockInfo {
	config := s.Config()
	return MockInfo{
		Session:  s.ID(),
		Consumer: config.Consumer,
		Provider: config.Provider,
		Port:     s.Port(),
		URL:      s.URL(),
		State:    s.State().String(),
		PactFile: s.PactPath(),
	}
}
