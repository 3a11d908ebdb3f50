package pactmock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/form3tech-oss/pact-mock/internal/app/httpresponse"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// MockServiceHeader marks requests addressed to the mock service itself
// rather than to the mocked provider.
const MockServiceHeader = "X-Pact-Mock-Service"

const defaultShutdownTimeout = 5 * time.Second

// Server is the mock provider: an HTTP listener answering every request from
// the interaction registry.
type Server struct {
	host            string
	interactions    *Interactions
	consumptions    *consumptions
	logger          *log.Entry
	admin           http.Handler
	shutdownTimeout time.Duration

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

func NewServer(host string, interactions *Interactions, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Server{
		host:            host,
		interactions:    interactions,
		consumptions:    newConsumptions(),
		logger:          logger,
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// Start binds host:port, port 0 picks a free port. Requests are served on
// their own goroutines by net/http.
func (s *Server) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("mock provider already listening on %s", s.listener.Addr())
	}

	address := net.JoinHostPort(s.host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return &PortInUseError{Address: address, Err: err}
		}
		return fmt.Errorf("mock provider cannot listen on %s: %w", address, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error(err)
		}
	}(s.server, s.done)

	s.logger.Infof("mock provider listening on %s", listener.Addr())
	return nil
}

// Stop stops accepting connections and waits up to the shutdown timeout for
// in-flight requests, after which they are aborted. Stopping a server that is
// not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	if err != nil {
		s.logger.Warnf("mock provider did not drain in time, closing connections. %s", err)
		err = s.server.Close()
	}
	<-s.done

	s.logger.Infof("mock provider on %s stopped", s.listener.Addr())
	s.server = nil
	s.listener = nil
	return err
}

// Port returns the bound port, or 0 when not listening.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

// Handler routes requests carrying MockServiceHeader to the admin handler and
// everything else to the interaction registry.
func (s *Server) Handler() http.Handler {
	mock := echo.New()
	mock.HideBanner = true
	mock.HidePort = true
	mock.Any("/*", s.interactionHandler)

	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		if s.admin != nil && req.Header.Get(MockServiceHeader) != "" {
			s.admin.ServeHTTP(res, req)
			return
		}
		mock.ServeHTTP(res, req)
	})
}

func (s *Server) interactionHandler(c echo.Context) error {
	req := c.Request()

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read request body. %s", err.Error()))
	}

	doc := parseRequest(req, data)
	logger := s.logger.WithField("request", doc.String())

	matched, res, err := s.interactions.Consume(doc)
	if err != nil {
		var consumed *AlreadyConsumedError
		var mismatch *mismatchError
		switch {
		case errors.As(err, &consumed):
			logger.Warnf("interaction '%s' already consumed", consumed.Description)
			return c.JSON(http.StatusInternalServerError, &Diagnostic{
				Message:     err.Error(),
				Request:     doc,
				Interaction: consumed.Description,
			})
		case errors.As(err, &mismatch):
			logger.Warn(err.Error())
			return c.JSON(http.StatusInternalServerError, &Diagnostic{
				Message: err.Error(),
				Request: doc,
				Nearest: mismatch.Nearest,
			})
		default:
			if matched != nil {
				logger = logger.WithField("interaction", matched.Description)
			}
			logger.Error(err)
			return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to render response. %s", err.Error()))
		}
	}

	logger.WithField("interaction", matched.Description).Info("matched interaction")
	s.consumptions.consumed()

	for name, values := range res.headers {
		for _, v := range values {
			c.Response().Header().Add(name, v)
		}
	}
	c.Response().WriteHeader(res.status)
	if len(res.body) > 0 && req.Method != http.MethodHead {
		if _, err := c.Response().Write(res.body); err != nil {
			logger.Warnf("unable to write response body. %s", err)
		}
	}
	return nil
}

// Diagnostic is the body of the 500 response sent for requests that match no
// interaction.
type Diagnostic struct {
	Message     string                 `json:"message"`
	Request     map[string]interface{} `json:"request"`
	Interaction string                 `json:"interaction,omitempty"`
	Nearest     *NearMiss              `json:"nearest,omitempty"`
}
