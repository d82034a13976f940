// Package httpapi — HTTP-управление пэдами: нажатия с планшета или
// другой машины, остановка и список звучащих экземпляров.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Roman77St/padboard"
	"github.com/Roman77St/padboard/dispatch"
)

// Engine — часть движка, нужная API.
type Engine interface {
	Instances() []padboard.Instance
	Stop(target string, fadeOut float64) bool
	StopAll(fadeOut float64)
	SetInstanceVolume(id string, volume, ramp float64) bool
}

// HandleFunc передаёт событие диспетчеру.
type HandleFunc func(ctx context.Context, ev dispatch.Event) error

// Server обслуживает /api/*.
type Server struct {
	echo     *echo.Echo
	resolver *dispatch.Resolver
	engine   Engine
	handle   HandleFunc
	stopFade float64
	log      *slog.Logger
}

// InstanceView — экземпляр в ответе GET /api/instances.
type InstanceView struct {
	ID      string  `json:"id"`
	PadID   string  `json:"pad_id"`
	ClipID  string  `json:"clip_id"`
	Group   string  `json:"group,omitempty"`
	Mode    string  `json:"mode"`
	Loop    bool    `json:"loop"`
	Gain    float64 `json:"gain"`
	StartAt float64 `json:"start_at"`
	StopAt  float64 `json:"stop_at,omitempty"`
}

// volumeRequest — тело PUT /api/instances/:id/volume. Ramp в секундах.
type volumeRequest struct {
	Volume *float64 `json:"volume"`
	Ramp   float64  `json:"ramp"`
}

type bankRequest struct {
	Bank int `json:"bank"`
}

type bankResponse struct {
	Bank int `json:"bank"`
}

// DefaultRateLimit — запросов в секунду на клиента.
const DefaultRateLimit = 50

// New собирает сервер. stopFade — затухание для stop без параметра fade.
func New(r *dispatch.Resolver, e Engine, handle HandleFunc, stopFade float64, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		echo:     echo.New(),
		resolver: r,
		engine:   e,
		handle:   handle,
		stopFade: stopFade,
		log:      log,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(DefaultRateLimit))))
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"error", v.Error)
			return nil
		},
	}))

	api := s.echo.Group("/api")
	api.POST("/pads/:id/press", s.press)
	api.POST("/pads/:id/release", s.release)
	api.GET("/instances", s.instances)
	api.DELETE("/instances/:id", s.stopInstance)
	api.PUT("/instances/:id/volume", s.setVolume)
	api.POST("/stop", s.stopAll)
	api.GET("/bank", s.bank)
	api.PUT("/bank", s.setBank)
	return s
}

// ServeHTTP позволяет использовать Server как http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// ListenAndServe обслуживает addr, пока не отменён ctx.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", "addr", addr)
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) press(c echo.Context) error {
	return s.trigger(c, dispatch.Press)
}

func (s *Server) release(c echo.Context) error {
	return s.trigger(c, dispatch.Release)
}

func (s *Server) trigger(c echo.Context, action dispatch.Action) error {
	ev := dispatch.Event{
		Source: dispatch.SourcePointer,
		PadID:  c.Param("id"),
		CueID:  c.QueryParam("cue"),
		Action: action,
	}
	if err := s.handle(c.Request().Context(), ev); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) instances(c echo.Context) error {
	list := s.engine.Instances()
	out := make([]InstanceView, len(list))
	for i, inst := range list {
		out[i] = InstanceView{
			ID:      inst.ID,
			PadID:   inst.PadID,
			ClipID:  inst.ClipID,
			Group:   inst.Group,
			Mode:    string(inst.Mode),
			Loop:    inst.Loop,
			Gain:    inst.Schedule.Gain,
			StartAt: inst.Schedule.StartAt,
			StopAt:  inst.Schedule.StopAt,
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) stopInstance(c echo.Context) error {
	fade, err := s.fade(c)
	if err != nil {
		return err
	}
	if !s.engine.Stop(c.Param("id"), fade) {
		return echo.NewHTTPError(http.StatusNotFound, "instance not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) setVolume(c echo.Context) error {
	var req volumeRequest
	if err := c.Bind(&req); err != nil || req.Volume == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid volume request")
	}
	if *req.Volume < 0 || req.Ramp < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "volume and ramp must be non-negative")
	}
	if !s.engine.SetInstanceVolume(c.Param("id"), *req.Volume, req.Ramp) {
		return echo.NewHTTPError(http.StatusNotFound, "instance not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) stopAll(c echo.Context) error {
	fade, err := s.fade(c)
	if err != nil {
		return err
	}
	s.engine.StopAll(fade)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) bank(c echo.Context) error {
	return c.JSON(http.StatusOK, bankResponse{Bank: s.resolver.Bank()})
}

func (s *Server) setBank(c echo.Context) error {
	var req bankRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bank request")
	}
	return c.JSON(http.StatusOK, bankResponse{Bank: s.resolver.SetBank(req.Bank)})
}

// fade читает ?fade=секунды; без параметра — затухание по умолчанию.
func (s *Server) fade(c echo.Context) (float64, error) {
	raw := c.QueryParam("fade")
	if raw == "" {
		return s.stopFade, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "fade must be a non-negative number of seconds")
	}
	return v, nil
}

func toHTTPError(err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, dispatch.ErrUnknownPad), errors.Is(err, dispatch.ErrUnknownCue):
		code = http.StatusNotFound
	case errors.Is(err, dispatch.ErrRemoteNotReady), errors.Is(err, padboard.ErrNotArmed):
		code = http.StatusServiceUnavailable
	case errors.Is(err, padboard.ErrNoSound), errors.Is(err, padboard.ErrDecode),
		errors.Is(err, padboard.ErrClipNotFound):
		code = http.StatusUnprocessableEntity
	}
	return echo.NewHTTPError(code, err.Error())
}
