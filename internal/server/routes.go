package server

import (
	"net/http"
	"time"

	"github.com/berfenger/ecodevices2mqtt/internal/core/coordinator"
	"github.com/berfenger/ecodevices2mqtt/internal/core/domain"
	"github.com/berfenger/ecodevices2mqtt/internal/core/metric"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type StateResponse struct {
	Status     string            `json:"status"`
	CapturedAt *time.Time        `json:"captured_at,omitempty"`
	UpdatedAt  *time.Time        `json:"updated_at,omitempty"`
	LastError  *string           `json:"last_error"`
	AuthFailed bool              `json:"auth_failure"`
	Readings   []ReadingResponse `json:"readings"`
}

type ReadingResponse struct {
	Id         string         `json:"id"`
	Name       string         `json:"name"`
	Channel    string         `json:"channel"`
	Unit       string         `json:"unit,omitempty"`
	Available  bool           `json:"available"`
	Value      any            `json:"value"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/state", s.StateHandler)
	api.POST("/refresh", s.RefreshHandler)

	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// StateHandler returns the last poll state. It never polls the gateway.
func (s *Server) StateHandler(c echo.Context) error {
	ctrl, err := s.controllers.Controller()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	}
	state := ctrl.Current()
	return c.JSON(http.StatusOK, stateResponse(state, ctrl.Readings(state)))
}

// RefreshHandler polls the gateway, joining a refresh already in flight, and
// has the poller publish the result.
func (s *Server) RefreshHandler(c echo.Context) error {
	ctrl, err := s.controllers.Controller()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	}
	state := ctrl.Refresh(c.Request().Context())
	s.logger.Debug("http refresh", zap.Stringer("status", state.Status))
	if s.masterActor != nil {
		s.rootContext.Send(s.masterActor, domain.PublishStateRequest{})
	}
	return c.JSON(http.StatusOK, stateResponse(state, ctrl.PollReadings(state)))
}

func stateResponse(state coordinator.PollState, readings []metric.Reading) StateResponse {
	resp := StateResponse{
		Status:     state.Status.String(),
		AuthFailed: state.IsAuthFailure(),
		Readings:   make([]ReadingResponse, 0, len(readings)),
	}
	if state.HasSnapshot() {
		capturedAt := state.Snapshot.CapturedAt()
		resp.CapturedAt = &capturedAt
	}
	if !state.UpdatedAt.IsZero() {
		resp.UpdatedAt = &state.UpdatedAt
	}
	if state.Err != nil {
		lastError := state.Err.Error()
		resp.LastError = &lastError
	}
	for _, r := range readings {
		resp.Readings = append(resp.Readings, ReadingResponse{
			Id:         r.Spec.Id,
			Name:       r.Spec.Name,
			Channel:    r.Spec.Channel,
			Unit:       r.Spec.Unit,
			Available:  r.Value.Available,
			Value:      readingValue(r.Value),
			Attributes: r.Value.Attributes,
		})
	}
	return resp
}

func readingValue(v metric.Value) any {
	if !v.Available {
		return nil
	}
	switch v.Type {
	case metric.ValueText:
		return v.Text
	case metric.ValueBool:
		return v.Bool
	default:
		return v.Number
	}
}
