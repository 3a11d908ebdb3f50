package pactmock

import (
	"errors"
	"io"
	"net/http"

	"github.com/form3tech-oss/pact-mock/internal/app/httpresponse"
	"github.com/labstack/echo/v4"
)

// adminHandler serves the mock service API on the mock provider's own port,
// selected by MockServiceHeader.
func (s *Session) adminHandler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/ready", s.readinessHandler)
	e.GET("/interactions", s.getInteractionsHandler)
	e.POST("/interactions", s.postInteractionHandler)
	e.DELETE("/interactions", s.deleteInteractionsHandler)
	e.GET("/interactions/verification", s.verificationHandler)
	e.GET("/interactions/wait", s.interactionsWaitHandler)
	e.POST("/interactions/constraints", s.interactionsConstraintsHandler)
	e.POST("/pact", s.pactHandler)
	return e
}

func (s *Session) readinessHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Session) getInteractionsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session":      s.id,
		"state":        s.State().String(),
		"interactions": s.interactions.All(),
	})
}

func (s *Session) postInteractionHandler(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read interaction. %s", err.Error()))
	}

	interaction, err := LoadInteraction(data)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load interaction. %s", err.Error()))
	}

	if err := s.AddInteraction(interaction); err != nil {
		var duplicate *DuplicateInteractionError
		var late *LateRegistrationError
		if errors.As(err, &duplicate) || errors.As(err, &late) || errors.Is(err, ErrSessionNotConfiguring) {
			return c.JSON(http.StatusConflict, httpresponse.Error(err.Error()))
		}
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to register interaction. %s", err.Error()))
	}
	return c.NoContent(http.StatusOK)
}

func (s *Session) deleteInteractionsHandler(c echo.Context) error {
	s.ClearInteractions()
	return c.NoContent(http.StatusOK)
}

func (s *Session) verificationHandler(c echo.Context) error {
	if err := s.VerifyInteractions(); err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Error(err.Error()))
	}
	return c.NoContent(http.StatusOK)
}

func (s *Session) interactionsWaitHandler(c echo.Context) error {
	var err error
	if waitFor := c.QueryParam("interaction"); waitFor != "" {
		s.logger.WithField("wait_for", waitFor).Info("waiting")
		err = s.WaitForInteraction(waitFor)
	} else {
		s.logger.Info("waiting for all")
		err = s.WaitForAll()
	}

	var notFound *InteractionNotFoundError
	switch {
	case errors.As(err, &notFound):
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("cannot wait for interaction '%s', interaction not found.", notFound.Description))
	case err != nil:
		return c.JSON(http.StatusRequestTimeout, httpresponse.Error(err.Error()))
	}
	return c.NoContent(http.StatusOK)
}

func (s *Session) interactionsConstraintsHandler(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read constraint. %s", err.Error()))
	}

	constraint, err := loadConstraint(data)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load constraint. %s", err.Error()))
	}

	if err := s.addConstraint(constraint); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Error(err.Error()))
	}
	return c.NoContent(http.StatusOK)
}

func (s *Session) pactHandler(c echo.Context) error {
	doc, err := s.WritePact()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to write pact file. %s", err.Error()))
	}
	return c.JSON(http.StatusOK, doc)
}
