package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/oarkflow/dipper"
	"github.com/oarkflow/log"
	"github.com/oarkflow/xid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oarkflow/hl7/pkg/cache"
	"github.com/oarkflow/hl7/pkg/config"
	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/parsers"
)

const requestIDHeader = "X-Request-ID"

type Option func(*Server)

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithoutRequestLog disables the per-request access log.
func WithoutRequestLog() Option {
	return func(s *Server) {
		s.accessLog = false
	}
}

// Server exposes parsing, field lookup and document rendering over HTTP.
type Server struct {
	app       *fiber.App
	engine    *hl7.Parser
	parser    *parsers.HL7Parser
	envelopes *parsers.JSONParser
	cache     *cache.MessageCache
	metrics   *metrics
	logger    *log.Logger
	version   string
	accessLog bool
}

type metrics struct {
	registry *prometheus.Registry
	parses   *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hl7_parse_total",
			Help: "Messages parsed over HTTP by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hl7_parse_duration_seconds",
			Help:    "Time spent parsing one message.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.parses, m.duration)
	return m
}

type QueryResponse struct {
	ControlID   string              `json:"control_id"`
	MessageType string              `json:"message_type"`
	Values      map[string][]string `json:"values"`
}

// New builds the server from cfg: delimiters, custom segments, cache and
// body limit all come from the configuration.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	parserOpts, err := cfg.ParserOptions()
	if err != nil {
		return nil, err
	}
	s := &Server{
		engine:    hl7.NewParser(parserOpts...),
		envelopes: parsers.NewJSONParser(),
		metrics:   newMetrics(),
		logger:    &log.DefaultLogger,
		version:   "dev",
		accessLog: true,
	}
	s.parser = parsers.NewHL7ParserWith(s.engine)
	if cfg.Cache.Enabled {
		ttl, err := cfg.CacheTTL()
		if err != nil {
			return nil, err
		}
		s.cache, err = cache.New(s.engine, cfg.Cache.MaxMessages, ttl)
		if err != nil {
			return nil, err
		}
		s.parser = parsers.NewHL7ParserWith(s.cache)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.app = fiber.New(fiber.Config{
		BodyLimit:             cfg.Server.MaxBodyBytes,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	s.setupRoutes()
	return s, nil
}

// App returns the underlying fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Str("version", s.version).Msg("HL7 server listening")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cache != nil {
		defer s.cache.Close()
	}
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) setupRoutes() {
	s.app.Use(cors.New())
	s.app.Use(requestID)
	if s.accessLog {
		s.app.Use(logger.New())
	}

	s.app.Get("/api/health", s.healthHandler)
	s.app.Get("/api/segments", s.segmentsHandler)
	s.app.Post("/api/parse", s.parseHandler)
	s.app.Post("/api/query", s.queryHandler)
	s.app.Post("/api/render", s.renderHandler)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))
}

func requestID(c *fiber.Ctx) error {
	id := c.Get(requestIDHeader)
	if id == "" {
		id = xid.New().String()
	}
	c.Set(requestIDHeader, id)
	c.Locals("request_id", id)
	return c.Next()
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":    "healthy",
		"version":   s.version,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if s.cache != nil {
		resp["cache"] = fiber.Map{"hits": s.cache.Hits(), "misses": s.cache.Misses()}
	}
	return c.JSON(resp)
}

func (s *Server) segmentsHandler(c *fiber.Ctx) error {
	reg := s.engine.Registry()
	out := make(map[string][]string)
	for _, code := range reg.Codes() {
		table, _ := reg.Lookup(code)
		out[code] = table.Names()
	}
	return c.JSON(out)
}

// readEnvelope accepts a JSON envelope, a raw or MLLP-framed HL7 body, or any
// other text, which is handed to the parser so the caller sees its error code.
func (s *Server) readEnvelope(c *fiber.Ctx) (parsers.Envelope, error) {
	body := c.Body()
	if strings.TrimSpace(string(body)) == "" {
		return parsers.Envelope{}, fmt.Errorf("request body is empty")
	}
	p, err := parsers.Detect(body, s.parser, s.envelopes, parsers.NewPlainTextParser())
	if err != nil {
		return parsers.Envelope{}, err
	}
	if _, ok := p.(*parsers.JSONParser); ok {
		return s.envelopes.ParseEnvelope(body)
	}
	return parsers.Envelope{Message: parsers.Unframe(body)}, nil
}

func (s *Server) parse(message string) (*hl7.Message, error) {
	start := time.Now()
	msg, err := s.parser.ParseMessage(message)
	s.metrics.duration.Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = string(hl7.CodeOf(err))
		if result == "" {
			result = "error"
		}
	}
	s.metrics.parses.WithLabelValues(result).Inc()
	return msg, err
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	code := hl7.CodeOf(err)
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	status := fiber.StatusUnprocessableEntity
	if code == hl7.ErrCodeSelector || code == hl7.ErrCodeUnsupportedFieldName {
		status = fiber.StatusBadRequest
	}
	s.logger.Warn().Str("request_id", fmt.Sprint(c.Locals("request_id"))).Str("code", string(code)).Msg(err.Error())
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}

func (s *Server) parseHandler(c *fiber.Ctx) error {
	env, err := s.readEnvelope(c)
	if err != nil {
		return s.fail(c, err)
	}
	msg, err := s.parse(env.Message)
	if err != nil {
		return s.fail(c, err)
	}
	doc := parsers.NewDocument(msg)
	if path := c.Query("path"); path != "" {
		data, err := doc.Map()
		if err != nil {
			return err
		}
		value, err := dipper.Get(data, path)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": fmt.Sprintf("path %q not found", path)})
		}
		return c.JSON(fiber.Map{"path": path, "value": value})
	}
	return s.send(c, doc, "json")
}

func (s *Server) queryHandler(c *fiber.Ctx) error {
	env, err := s.envelopes.ParseEnvelope(c.Body())
	if err != nil {
		return s.fail(c, err)
	}
	if len(env.Selectors) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "selectors are required"})
	}
	msg, err := s.parse(env.Message)
	if err != nil {
		return s.fail(c, err)
	}
	resp := QueryResponse{
		ControlID:   msg.ControlID(),
		MessageType: msg.MessageType(),
		Values:      make(map[string][]string, len(env.Selectors)),
	}
	for _, expr := range env.Selectors {
		values, err := msg.Lookup(expr)
		if err != nil {
			return s.fail(c, err)
		}
		if values == nil {
			values = []string{}
		}
		resp.Values[expr] = values
	}
	return c.JSON(resp)
}

func (s *Server) renderHandler(c *fiber.Ctx) error {
	env, err := s.readEnvelope(c)
	if err != nil {
		return s.fail(c, err)
	}
	msg, err := s.parse(env.Message)
	if err != nil {
		return s.fail(c, err)
	}
	return s.send(c, parsers.NewDocument(msg), c.Query("format", "json"))
}

func (s *Server) send(c *fiber.Ctx, doc *parsers.Document, format string) error {
	data, contentType, err := parsers.Render(doc, format)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(data)
}
