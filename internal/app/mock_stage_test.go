package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-mock/internal/app/pactfile"
	"github.com/form3tech-oss/pact-mock/pkg/pactmock"
	"github.com/stretchr/testify/assert"
)

const (
	invalidDatePact = "A request with an invalid date parameter"
	anyNamePact     = "A request to create a user with any name"
)

type MockStage struct {
	t              *testing.T
	assert         *assert.Assertions
	config         *pactmock.MockConfiguration
	mock           *pactmock.MockServiceClient
	consumer       string
	provider       string
	setupErr       error
	buildErr       error
	waitErr        error
	requestsSent   int32
	responses      []*http.Response
	responseBodies [][]byte
}

func NewMockStage(t *testing.T) (*MockStage, *MockStage, *MockStage) {
	s := &MockStage{
		t:        t,
		assert:   assert.New(t),
		config:   pactmock.Configuration(adminURL.String()),
		consumer: "consumer",
		provider: "provider-" + strconv.FormatInt(time.Now().UnixNano(), 10),
	}

	mock, err := s.config.SetupMock(s.consumer, s.provider, 0)
	if err != nil {
		t.Fatalf("Error setting up mock: %v", err)
	}
	s.mock = mock

	t.Cleanup(func() {
		s.config.Close(mock.Info.Port)
	})

	return s, s, s
}

func (s *MockStage) and() *MockStage {
	return s
}

func (s *MockStage) a_pact_for_an_invalid_date_request() *MockStage {
	s.setupErr = s.mock.AddInteraction(pactmock.Interaction{
		ProviderState: "There is data",
		Description:   invalidDatePact,
		Request: pactmock.Request{
			Method:  http.MethodGet,
			Path:    "/api/provider",
			Query:   pactmock.ParseQuery("validDateTime=lolz"),
			Headers: map[string]interface{}{"Accept": "application/json"},
		},
		Response: pactmock.Response{
			Status:  http.StatusBadRequest,
			Headers: map[string]string{"Content-Type": "application/json; charset=utf-8"},
			Body:    map[string]interface{}{"message": "validDateTime is not a date or time"},
		},
	})
	s.assert.NoError(s.setupErr)
	return s
}

func (s *MockStage) a_pact_that_allows_any_names() *MockStage {
	s.setupErr = s.mock.AddInteraction(pactmock.Interaction{
		Description: anyNamePact,
		Request: pactmock.Request{
			Method:  http.MethodPost,
			Path:    "/users",
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]interface{}{"name": pactmock.Regex("any", ".*")},
		},
		Response: pactmock.Response{
			Status:  http.StatusOK,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    map[string]string{"name": "any"},
		},
	})
	s.assert.NoError(s.setupErr)
	return s
}

func (s *MockStage) a_name_constraint_is_added(name string) *MockStage {
	s.assert.NoError(s.mock.ForInteraction(anyNamePact).AddConstraint("$.body.name", name))
	return s
}

func (s *MockStage) the_same_pact_is_added_again() *MockStage {
	s.setupErr = s.mock.AddInteraction(pactmock.Interaction{
		Description: anyNamePact,
		Request:     pactmock.Request{Method: http.MethodGet, Path: "/other"},
		Response:    pactmock.Response{Status: http.StatusOK},
	})
	return s
}

func (s *MockStage) the_interactions_are_cleared() *MockStage {
	s.assert.NoError(s.mock.ClearInteractions())
	return s
}

func (s *MockStage) the_invalid_date_request_is_sent() *MockStage {
	return s.a_get_request_is_sent("/api/provider?validDateTime=lolz")
}

func (s *MockStage) a_get_request_is_sent(path string) *MockStage {
	req, err := http.NewRequest(http.MethodGet, s.mock.URL()+path, nil)
	s.assert.NoError(err, "request creation failed")
	req.Header.Set("Accept", "application/json")
	s.send_request_and_collect_response(req)
	return s
}

func (s *MockStage) a_request_is_sent_using_the_name(name string) *MockStage {
	req, err := http.NewRequest(http.MethodPost, s.mock.URL()+"/users", strings.NewReader(fmt.Sprintf(`{"name":%q}`, name)))
	s.assert.NoError(err, "request creation failed")
	req.Header.Set("Content-Type", "application/json")
	s.send_request_and_collect_response(req)
	return s
}

func (s *MockStage) the_request_is_sent_asynchronously_after(d time.Duration) *MockStage {
	go func() {
		time.Sleep(d)
		atomic.AddInt32(&s.requestsSent, 1)
		req, _ := http.NewRequest(http.MethodGet, s.mock.URL()+"/api/provider?validDateTime=lolz", nil)
		req.Header.Set("Accept", "application/json")
		if res, err := http.DefaultClient.Do(req); err == nil {
			res.Body.Close()
		}
	}()
	return s
}

func (s *MockStage) the_consumer_waits_for_the_interaction() *MockStage {
	s.waitErr = s.mock.WaitForInteraction(invalidDatePact)
	return s
}

func (s *MockStage) send_request_and_collect_response(req *http.Request) {
	res, err := http.DefaultClient.Do(req)
	if !s.assert.NoError(err, "sending request failed") {
		return
	}
	defer res.Body.Close()

	s.responses = append(s.responses, res)
	bodyBytes, err := io.ReadAll(res.Body)
	s.assert.NoError(err, "unable to read response body")
	s.responseBodies = append(s.responseBodies, bodyBytes)
}

func (s *MockStage) the_pact_is_built() *MockStage {
	s.buildErr = s.config.Close(s.mock.Info.Port)
	return s
}

func (s *MockStage) registration_is_rejected() *MockStage {
	var resErr *pactmock.ResponseError
	if s.assert.True(errors.As(s.setupErr, &resErr), "registration was not rejected: %v", s.setupErr) {
		s.assert.Equal(http.StatusConflict, resErr.StatusCode)
	}
	return s
}

func (s *MockStage) the_response_is_(statusCode int) *MockStage {
	return s.the_nth_response_is_(1, statusCode)
}

func (s *MockStage) the_nth_response_is_(n, statusCode int) *MockStage {
	if s.assert.GreaterOrEqual(len(s.responses), n, "number of responses is less than expected") {
		s.assert.Equalf(statusCode, s.responses[n-1].StatusCode, "Expected status code on attempt %d: %d, got : %d", n, statusCode, s.responses[n-1].StatusCode)
	}
	return s
}

func (s *MockStage) the_response_message_is_(message string) *MockStage {
	if !s.assert.NotEmpty(s.responseBodies, "no response received") {
		return s
	}

	var body map[string]string
	err := json.Unmarshal(s.responseBodies[0], &body)
	s.assert.NoError(err, "unable to parse response body, %v", err)
	s.assert.Equal(message, body["message"])
	return s
}

func (s *MockStage) the_nearest_interaction_is_(description string) *MockStage {
	if !s.assert.NotEmpty(s.responseBodies, "no response received") {
		return s
	}

	var diagnostic struct {
		Nearest struct {
			Description string `json:"description"`
		} `json:"nearest"`
	}
	s.assert.NoError(json.Unmarshal(s.responseBodies[0], &diagnostic))
	s.assert.Equal(description, diagnostic.Nearest.Description)
	return s
}

func (s *MockStage) interaction_verification_is_successful() *MockStage {
	s.assert.NoError(s.mock.VerifyInteractions())
	return s
}

func (s *MockStage) interaction_verification_is_not_successful() *MockStage {
	s.assert.Error(s.mock.VerifyInteractions(), "interaction verification did not fail")
	return s
}

func (s *MockStage) the_wait_is_successful() *MockStage {
	s.assert.NoError(s.waitErr)
	s.assert.Equal(int32(1), atomic.LoadInt32(&s.requestsSent), "mock did not wait for the request")
	return s
}

func (s *MockStage) pact_build_is_successful() *MockStage {
	s.assert.NoError(s.buildErr)
	return s
}

func (s *MockStage) pact_build_fails_with_(message string) *MockStage {
	if s.assert.Error(s.buildErr, "pact build did not fail") {
		s.assert.Contains(s.buildErr.Error(), message)
	}
	return s
}

func (s *MockStage) the_pact_file_has_interactions(descriptions ...string) *MockStage {
	doc, err := pactfile.Read(s.mock.Info.PactFile)
	if !s.assert.NoError(err) {
		return s
	}

	actual := make([]string, 0, len(doc.Interactions))
	for _, i := range doc.Interactions {
		actual = append(actual, i.Description)
	}
	s.assert.Equal(descriptions, actual)
	return s
}

func (s *MockStage) the_pact_file_is_not_written() *MockStage {
	s.assert.NoFileExists(s.mock.Info.PactFile)
	return s
}
