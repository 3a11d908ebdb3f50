package pactmock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pact-mock/internal/app/configuration"
	"github.com/form3tech-oss/pact-mock/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-mock/internal/app/pactmock"
	"github.com/pkg/errors"
)

type (
	MockRequest = configuration.MockRequest
	MockInfo    = configuration.MockInfo
)

// MockConfiguration is a client of the pact-mock process admin API.
type MockConfiguration struct {
	client http.Client
	url    string
}

func Configuration(url string) *MockConfiguration {
	return &MockConfiguration{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: url,
	}
}

// SetupMock starts a mock provider in the pact-mock process and waits until
// it is ready.
func (conf *MockConfiguration) SetupMock(consumer, provider string, port int) (*MockServiceClient, error) {
	return conf.SetupMockWithRequest(MockRequest{Consumer: consumer, Provider: provider, Port: port})
}

func (conf *MockConfiguration) SetupMockWithRequest(mockRequest MockRequest) (*MockServiceClient, error) {
	content, err := json.Marshal(mockRequest)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal mock request")
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimSuffix(conf.url, "/")+"/mocks", bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := conf.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, responseError(res.StatusCode, responseBody)
	}

	info := MockInfo{}
	if err := json.Unmarshal(responseBody, &info); err != nil {
		return nil, errors.Wrap(err, "failed to parse mock info")
	}

	mock := New(info.URL)
	mock.Info = info

	retryOpts := []retry.Option{
		retry.Attempts(10),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(100 * time.Millisecond),
	}
	if err := retry.Do(mock.IsReady, retryOpts...); err != nil {
		return nil, errors.Wrap(err, "mock readiness wait failed")
	}
	return mock, nil
}

// Close ends the mock provider on port and writes its pact file.
func (conf *MockConfiguration) Close(port int) error {
	return conf.delete(fmt.Sprintf("/mocks/%d", port))
}

// Reset ends every mock provider of the process.
func (conf *MockConfiguration) Reset() error {
	return conf.delete("/mocks")
}

func (conf *MockConfiguration) delete(path string) error {
	req, err := http.NewRequest(http.MethodDelete, strings.TrimSuffix(conf.url, "/")+path, nil)
	if err != nil {
		return err
	}

	res, err := conf.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return responseError(res.StatusCode, body)
	}
	return nil
}

// MockServiceClient drives a mock provider through its admin endpoints.
type MockServiceClient struct {
	Info   MockInfo
	client http.Client
	url    string
}

type InteractionSetup struct {
	interaction string
	mock        *MockServiceClient
}

func New(url string) *MockServiceClient {
	return &MockServiceClient{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: url,
	}
}

func (m *MockServiceClient) URL() string {
	return m.url
}

func (m *MockServiceClient) ForInteraction(interaction string) *InteractionSetup {
	return &InteractionSetup{
		interaction: interaction,
		mock:        m,
	}
}

func (m *MockServiceClient) IsReady() error {
	_, err := m.do(http.MethodGet, "/ready", nil)
	return err
}

// AddInteraction registers i. Response templates are sent with their examples.
func (m *MockServiceClient) AddInteraction(i Interaction) error {
	doc, err := i.Document()
	if err != nil {
		return err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal interaction")
	}
	_, err = m.do(http.MethodPost, "/interactions", b)
	return err
}

func (m *MockServiceClient) ClearInteractions() error {
	_, err := m.do(http.MethodDelete, "/interactions", nil)
	return err
}

func (m *MockServiceClient) VerifyInteractions() error {
	_, err := m.do(http.MethodGet, "/interactions/verification", nil)
	return err
}

func (m *MockServiceClient) WritePact() (*Document, error) {
	body, err := m.do(http.MethodPost, "/pact", nil)
	if err != nil {
		return nil, err
	}
	doc := &Document{}
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse pact document")
	}
	return doc, nil
}

func (m *MockServiceClient) WaitForAll() error {
	_, err := m.do(http.MethodGet, "/interactions/wait", nil)
	return err
}

func (m *MockServiceClient) WaitForInteraction(interaction string) error {
	q := url.Values{}
	q.Add("interaction", interaction)

	_, err := m.do(http.MethodGet, "/interactions/wait?"+q.Encode(), nil)
	return err
}

func (m *MockServiceClient) addConstraint(constraint map[string]interface{}) error {
	b, err := json.Marshal(constraint)
	if err != nil {
		return errors.Wrap(err, "failed to marshal constraint")
	}
	_, err = m.do(http.MethodPost, "/interactions/constraints", b)
	return err
}

func (m *MockServiceClient) do(method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(m.url, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set(pactmock.MockServiceHeader, "true")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, responseError(res.StatusCode, responseBody)
	}
	return responseBody, nil
}

func (s *InteractionSetup) AddConstraint(path, value string) error {
	return s.mock.addConstraint(map[string]interface{}{
		"interaction": s.interaction,
		"path":        path,
		"format":      "%s",
		"values":      []string{value},
	})
}

func (s *InteractionSetup) AddConstraintFrom(path, fromInteraction, format string, values ...string) error {
	return s.mock.addConstraint(map[string]interface{}{
		"interaction": s.interaction,
		"path":        path,
		"source":      fromInteraction,
		"format":      format,
		"values":      values,
	})
}

// ResponseError is returned for non 2xx answers of the mock service.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("mock service responded %d: %s", e.StatusCode, e.Message)
}

func responseError(status int, body []byte) error {
	apiErr := httpresponse.APIError{}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorMessage != "" {
		return &ResponseError{StatusCode: status, Message: apiErr.ErrorMessage}
	}
	return &ResponseError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}
