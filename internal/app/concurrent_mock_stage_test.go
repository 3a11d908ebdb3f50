package app

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-mock/pkg/pactmock"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

const (
	postAddressPact = "A request to create an address"
	postUserPact    = "A request to create user %d"
)

type ConcurrentMockStage struct {
	t              *testing.T
	assert         *assert.Assertions
	config         *pactmock.MockConfiguration
	mock           *pactmock.MockServiceClient
	users          int
	addressClients int
	mu             sync.Mutex
	userStatuses   map[int]int
	addressResults []int
	buildErr       error
}

func NewConcurrentMockStage(t *testing.T) (*ConcurrentMockStage, *ConcurrentMockStage, *ConcurrentMockStage) {
	config := pactmock.Configuration(adminURL.String())
	mock, err := config.SetupMock("consumer", "concurrent-"+strconv.FormatInt(time.Now().UnixNano(), 10), 0)
	if err != nil {
		t.Fatalf("Error setting up mock: %v", err)
	}

	s := &ConcurrentMockStage{
		t:            t,
		assert:       assert.New(t),
		config:       config,
		mock:         mock,
		userStatuses: map[int]int{},
	}

	t.Cleanup(func() {
		config.Close(mock.Info.Port)
	})

	return s, s, s
}

func (s *ConcurrentMockStage) and() *ConcurrentMockStage {
	return s
}

func (s *ConcurrentMockStage) a_pact_per_user(n int) *ConcurrentMockStage {
	s.users = n
	for i := 0; i < n; i++ {
		err := s.mock.AddInteraction(pactmock.Interaction{
			Description: fmt.Sprintf(postUserPact, i),
			Request: pactmock.Request{
				Method:  http.MethodPost,
				Path:    "/users",
				Headers: map[string]interface{}{"Content-Type": "application/json"},
				Body:    map[string]interface{}{"id": i},
			},
			Response: pactmock.Response{
				Status: http.StatusCreated,
				Body:   map[string]interface{}{"id": i},
			},
		})
		s.assert.NoError(err)
	}
	return s
}

func (s *ConcurrentMockStage) a_single_pact_for_an_address() *ConcurrentMockStage {
	err := s.mock.AddInteraction(pactmock.Interaction{
		Description: postAddressPact,
		Request: pactmock.Request{
			Method: http.MethodPost,
			Path:   "/addresses",
			Body:   map[string]interface{}{"address": pactmock.Regex("any", ".*")},
		},
		Response: pactmock.Response{
			Status: http.StatusCreated,
			Body:   map[string]string{"address": "any"},
		},
	})
	s.assert.NoError(err)
	return s
}

func (s *ConcurrentMockStage) x_clients_send_the_address_request(x int) *ConcurrentMockStage {
	s.addressClients = x
	return s
}

func (s *ConcurrentMockStage) the_concurrent_requests_are_sent() *ConcurrentMockStage {
	log.Infof("sending %d user requests and %d address requests concurrently", s.users, s.addressClients)

	start := make(chan struct{})
	wg := sync.WaitGroup{}

	for i := 0; i < s.users; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			<-start
			status := s.post("/users", fmt.Sprintf(`{"id":%d}`, id))
			s.mu.Lock()
			s.userStatuses[id] = status
			s.mu.Unlock()
		}(i)
	}

	for i := 0; i < s.addressClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			status := s.post("/addresses", `{"address":"test"}`)
			s.mu.Lock()
			s.addressResults = append(s.addressResults, status)
			s.mu.Unlock()
		}()
	}

	close(start)
	wg.Wait()
	return s
}

func (s *ConcurrentMockStage) post(path, body string) int {
	req, err := http.NewRequest(http.MethodPost, s.mock.URL()+path, strings.NewReader(body))
	s.assert.NoError(err)

	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if !s.assert.NoError(err) {
		return 0
	}
	res.Body.Close()
	return res.StatusCode
}

func (s *ConcurrentMockStage) the_pact_is_built() *ConcurrentMockStage {
	s.buildErr = s.config.Close(s.mock.Info.Port)
	return s
}

func (s *ConcurrentMockStage) every_user_request_is_answered_by_its_own_interaction() *ConcurrentMockStage {
	s.assert.Len(s.userStatuses, s.users)
	for id, status := range s.userStatuses {
		s.assert.Equalf(http.StatusCreated, status, "unexpected status for user %d", id)
	}
	return s
}

func (s *ConcurrentMockStage) exactly_one_address_request_is_matched() *ConcurrentMockStage {
	created, rejected := 0, 0
	for _, status := range s.addressResults {
		switch status {
		case http.StatusCreated:
			created++
		case http.StatusInternalServerError:
			rejected++
		}
	}
	s.assert.Equal(1, created, "address interaction matched more than once")
	s.assert.Equal(s.addressClients-1, rejected)
	return s
}

func (s *ConcurrentMockStage) all_interactions_are_verified() *ConcurrentMockStage {
	s.assert.NoError(s.mock.WaitForAll())
	return s
}

func (s *ConcurrentMockStage) pact_build_fails_with_(message string) *ConcurrentMockStage {
	if s.assert.Error(s.buildErr) {
		s.assert.Contains(s.buildErr.Error(), message)
	}
	return s
}
