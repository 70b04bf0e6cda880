// Package api exposes the room coordination surface over HTTP. The server is
// a thin adapter: request parsing, error-to-status mapping, and JSON shaping
// live here, every decision belongs to the directory service underneath.
package api

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/goccy/go-json"
	fiber "github.com/gofiber/fiber/v3"
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/pkg/directory"
	"github.com/hyp3rd/roomcast/pkg/health"
	"github.com/hyp3rd/roomcast/pkg/metrics"
	"github.com/hyp3rd/roomcast/pkg/pingagg"
)

const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second

	userIDHeader = "x-user-id"

	avgPingWindow = 5 * time.Minute
)

// AvgPingReader reads the fleet-wide latency aggregate from the metrics store.
type AvgPingReader interface {
	AveragePing(ctx context.Context, bucket string, window time.Duration) (float64, bool)
}

// ShardStatusReader reports each metrics shard's reachability.
type ShardStatusReader interface {
	ShardStatus(ctx context.Context) []metrics.ShardStatus
}

// Option configures the HTTP server.
type Option func(*Server)

// Server holds the Fiber app and settings.
type Server struct {
	addr         string
	app          *fiber.App
	readTimeout  time.Duration
	writeTimeout time.Duration
	authFunc     func(fiber.Ctx) error
	ln           net.Listener
	started      bool

	svc       directory.Service
	agg       *pingagg.Aggregator
	healthReg *health.Registry

	pingReader  AvgPingReader
	pingBucket  string
	shardReader ShardStatusReader
}

// WithAuth sets an auth function (return error to block).
func WithAuth(fn func(fiber.Ctx) error) Option {
	return func(s *Server) { s.authFunc = fn }
}

// WithReadTimeout sets read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithWriteTimeout sets write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// WithAvgPingReader enables the fleet latency aggregate on the monitoring
// endpoint, read from the given metrics bucket.
func WithAvgPingReader(reader AvgPingReader, bucket string) Option {
	return func(s *Server) {
		s.pingReader = reader
		s.pingBucket = bucket
	}
}

// WithShardStatusReader enables the per-shard health endpoint on the
// monitoring surface.
func WithShardStatusReader(reader ShardStatusReader) Option {
	return func(s *Server) { s.shardReader = reader }
}

// NewServer builds the HTTP adapter over the service (lazy start).
func NewServer(addr string, svc directory.Service, agg *pingagg.Aggregator, healthReg *health.Registry, opts ...Option) *Server {
	srv := &Server{
		addr:         addr,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		svc:          svc,
		agg:          agg,
		healthReg:    healthReg,
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.app = fiber.New(fiber.Config{
		ReadTimeout:  srv.readTimeout,
		WriteTimeout: srv.writeTimeout,
	})

	return srv
}

// Start launches the listener (idempotent).
func (s *Server) Start(ctx context.Context) error {
	if s.started {
		return nil
	}

	s.mountRoutes()

	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return ewrap.Wrap(err, "api listen")
	}

	s.ln = ln

	go func() {
		err := s.app.Listener(ln)
		if err != nil {
			_ = err
		}
	}()

	s.started = true

	return nil
}

// Address returns the bound address (useful when passing ":0" for an
// ephemeral port). Empty if not started yet.
func (s *Server) Address() string {
	if s.ln == nil {
		return ""
	}

	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.started {
		return nil
	}

	ch := make(chan error, 1)

	go func() {
		ch <- s.app.Shutdown()
	}()

	select {
	case <-ctx.Done():
		return sentinel.ErrHTTPShutdownTimeout
	case err := <-ch:
		return err
	}
}

// App exposes the Fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	if !s.started {
		s.mountRoutes()
		s.started = true
	}

	return s.app
}

func (s *Server) mountRoutes() {
	useAuth := s.wrapAuth
	s.registerHealth(useAuth)
	s.registerRooms(useAuth)
	s.registerMonitoring(useAuth)
}

// wrapAuth returns an auth-wrapped handler if authFunc provided.
func (s *Server) wrapAuth(handler fiber.Handler) fiber.Handler { //nolint:ireturn
	if s.authFunc == nil {
		return handler
	}

	return func(fiberCtx fiber.Ctx) error {
		authErr := s.authFunc(fiberCtx)
		if authErr != nil {
			return authErr
		}

		return handler(fiberCtx)
	}
}

func (s *Server) registerHealth(useAuth func(fiber.Handler) fiber.Handler) {
	s.app.Get("/health", useAuth(func(fiberCtx fiber.Ctx) error {
		report := s.healthReg.Report(fiberCtx.Context())

		code := fiber.StatusOK
		if report.Status == health.StatusUnhealthy {
			code = fiber.StatusServiceUnavailable
		}

		return fiberCtx.Status(code).JSON(report)
	}))
}

func (s *Server) registerRooms(useAuth func(fiber.Handler) fiber.Handler) {
	s.app.Get("/api/rooms", useAuth(func(fiberCtx fiber.Ctx) error {
		rooms, err := s.svc.ListRooms(fiberCtx.Context())
		if err != nil {
			return failure(fiberCtx, err)
		}

		return fiberCtx.JSON(fiber.Map{"success": true, "rooms": rooms, "count": len(rooms)})
	}))

	s.app.Post("/api/rooms", useAuth(func(fiberCtx fiber.Ctx) error {
		var body struct {
			Name string `json:"name"`
		}

		err := json.Unmarshal(fiberCtx.Body(), &body)
		if err != nil {
			return badRequest(fiberCtx, "invalid request body")
		}

		created, err := s.svc.CreateRoom(fiberCtx.Context(), body.Name, callerID(fiberCtx))
		if err != nil {
			return failure(fiberCtx, err)
		}

		return fiberCtx.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "room": created})
	}))

	s.app.Get("/api/rooms/:roomId", useAuth(func(fiberCtx fiber.Ctx) error {
		r, err := s.svc.GetRoom(fiberCtx.Context(), fiberCtx.Params("roomId"))
		if err != nil {
			return failure(fiberCtx, err)
		}

		return fiberCtx.JSON(fiber.Map{"success": true, "room": r})
	}))

	s.app.Post("/api/rooms/:roomId/join", useAuth(func(fiberCtx fiber.Ctx) error {
		var body struct {
			Ping *float64 `json:"ping"`
		}

		if len(fiberCtx.Body()) > 0 {
			_ = json.Unmarshal(fiberCtx.Body(), &body)
		}

		roomID := fiberCtx.Params("roomId")
		userID := callerID(fiberCtx)

		r, err := s.svc.JoinRoom(fiberCtx.Context(), roomID, userID)
		if err != nil {
			return failure(fiberCtx, err)
		}

		// A joiner may report its current latency so the room aggregate
		// reflects the new member before the next sample arrives.
		if body.Ping != nil && *body.Ping >= 0 {
			_ = s.agg.RecordSample(roomID, userID, *body.Ping)
		}

		return fiberCtx.JSON(fiber.Map{"success": true, "room": r})
	}))

	s.app.Post("/api/rooms/:roomId/leave", useAuth(func(fiberCtx fiber.Ctx) error {
		existed, err := s.svc.LeaveRoom(fiberCtx.Context(), fiberCtx.Params("roomId"), callerID(fiberCtx))
		if err != nil {
			return failure(fiberCtx, err)
		}

		if !existed {
			return notFound(fiberCtx)
		}

		return fiberCtx.JSON(fiber.Map{"success": true})
	}))

	s.app.Put("/api/rooms/:roomId/ping", useAuth(func(fiberCtx fiber.Ctx) error {
		var body struct {
			Ping *float64 `json:"ping"`
		}

		err := json.Unmarshal(fiberCtx.Body(), &body)
		if err != nil || body.Ping == nil {
			return badRequest(fiberCtx, "valid ping value is required")
		}

		roomID := fiberCtx.Params("roomId")

		// The room must exist before a sample is accepted.
		_, err = s.svc.GetRoom(fiberCtx.Context(), roomID)
		if err != nil {
			return failure(fiberCtx, err)
		}

		err = s.agg.RecordSample(roomID, callerID(fiberCtx), *body.Ping)
		if err != nil {
			return failure(fiberCtx, err)
		}

		return fiberCtx.JSON(fiber.Map{"success": true, "message": "ping sample recorded"})
	}))

	s.app.Get("/api/rooms/:roomId/suggestion", useAuth(func(fiberCtx fiber.Ctx) error {
		r, err := s.svc.GetRoom(fiberCtx.Context(), fiberCtx.Params("roomId"))
		if err != nil {
			return failure(fiberCtx, err)
		}

		suggestion := pingagg.SuggestFor(r.AvgPing)

		return fiberCtx.JSON(fiber.Map{
			"success":     true,
			"category":    suggestion.Category,
			"games":       suggestion.Games,
			"reason":      suggestion.Reason,
			"pingRange":   suggestion.PingRange,
			"color":       suggestion.Color,
			"roomPing":    r.AvgPing,
			"memberCount": r.MemberCount,
		})
	}))
}

func (s *Server) registerMonitoring(useAuth func(fiber.Handler) fiber.Handler) {
	s.app.Get("/api/monitoring/stats", useAuth(func(fiberCtx fiber.Ctx) error {
		stats := s.svc.Stats(fiberCtx.Context())

		payload := fiber.Map{"success": true, "stats": stats}

		if s.pingReader != nil {
			avg, ok := s.pingReader.AveragePing(fiberCtx.Context(), s.pingBucket, avgPingWindow)
			if ok {
				payload["averagePing"] = avg
			}
		}

		return fiberCtx.JSON(payload)
	}))

	s.app.Get("/api/monitoring/shards", useAuth(func(fiberCtx fiber.Ctx) error {
		if s.shardReader == nil {
			return fiberCtx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "metrics shards not configured",
			})
		}

		return fiberCtx.JSON(fiber.Map{
			"success": true,
			"shards":  s.shardReader.ShardStatus(fiberCtx.Context()),
		})
	}))
}

func callerID(fiberCtx fiber.Ctx) string {
	return fiberCtx.Get(userIDHeader)
}

func badRequest(fiberCtx fiber.Ctx, msg string) error {
	return fiberCtx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": msg})
}

func notFound(fiberCtx fiber.Ctx) error {
	return fiberCtx.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": "room not found"})
}

// failure maps service errors onto HTTP statuses.
func failure(fiberCtx fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrRoomNotFound):
		return notFound(fiberCtx)
	case errors.Is(err, sentinel.ErrInvalidRoomName),
		errors.Is(err, sentinel.ErrNegativePing),
		errors.Is(err, sentinel.ErrParamCannotBeEmpty):
		return badRequest(fiberCtx, err.Error())
	case errors.Is(err, sentinel.ErrBreakerOpen):
		return fiberCtx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"success": false, "error": "dependency unavailable"})
	default:
		return fiberCtx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": "internal error"})
	}
}
