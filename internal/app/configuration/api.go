package configuration

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/form3tech-oss/pact-mock/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-mock/internal/app/pactmock"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

func ServeAdminAPI(port int, manager *Manager) *echo.Echo {
	adminServer := NewAdminAPI(manager)

	go func() {
		address := fmt.Sprintf(":%d", port)
		if err := adminServer.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	return adminServer
}

// NewAdminAPI returns the process admin API, which starts and stops mock
// provider sessions.
func NewAdminAPI(manager *Manager) *echo.Echo {
	adminServer := echo.New()
	adminServer.HideBanner = true

	h := &adminHandlers{manager: manager}
	adminServer.GET("/mocks", h.getMocksHandler)
	adminServer.POST("/mocks", h.postMocksHandler)
	adminServer.DELETE("/mocks", h.deleteMocksHandler)
	adminServer.DELETE("/mocks/:port", h.deleteMockHandler)
	return adminServer
}

type adminHandlers struct {
	manager *Manager
}

func (h *adminHandlers) getMocksHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Mocks())
}

func (h *adminHandlers) postMocksHandler(c echo.Context) error {
	req := MockRequest{}
	err := c.Bind(&req)
	if err != nil {
		return c.JSON(
			http.StatusBadRequest,
			httpresponse.Errorf("unable to parse mock request from data. %s", err.Error()),
		)
	}

	log.Infof("setting up mock provider %s for %s on port %d", req.Provider, req.Consumer, req.Port)

	info, err := h.manager.StartMock(req)
	if err != nil {
		var inUse *pactmock.PortInUseError
		if errors.As(err, &inUse) {
			return c.JSON(http.StatusConflict, httpresponse.Error(err.Error()))
		}
		return c.JSON(
			http.StatusBadRequest,
			httpresponse.Errorf("unable to create mock provider from request. %s", err.Error()),
		)
	}

	return c.JSON(http.StatusCreated, info)
}

func (h *adminHandlers) deleteMocksHandler(c echo.Context) error {
	log.Infof("closing all mock providers")
	if err := h.manager.CloseAll(); err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Error(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *adminHandlers) deleteMockHandler(c echo.Context) error {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("invalid port %s", c.Param("port")))
	}

	log.Infof("closing mock provider on port %d", port)
	err = h.manager.CloseMock(port)

	var notFound *MockNotFoundError
	switch {
	case errors.As(err, &notFound):
		return c.JSON(http.StatusNotFound, httpresponse.Error(err.Error()))
	case err != nil:
		return c.JSON(http.StatusInternalServerError, httpresponse.Error(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}
