package gateway

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/mtrqq/amf/pkg/amf"
	"github.com/mtrqq/amf/pkg/packet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	ContentType = "application/x-amf"

	instrumentationName = "github.com/mtrqq/amf/pkg/gateway"

	DefaultCrossDomain = `<cross-domain-policy><allow-access-from domain="*" to-ports="*" /></cross-domain-policy>`
	DefaultMaxBodySize = 8 << 20
)

// HeaderFunc handles a packet header before any message is dispatched.
type HeaderFunc func(ctx context.Context, content any) error

type ServerOptions struct {
	Codec amf.Config
	// CrossDomain is served at /crossdomain.xml, "-" disables it.
	CrossDomain string
	// MaxBodySize bounds the decoded request body.
	MaxBodySize int64
	// Encodings lists reply codings by preference.
	Encodings []string
	// Namespace prefixes the metric names.
	Namespace  string
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator
}

type Server struct {
	options    ServerOptions
	codec      *amf.Codec
	metrics    *metrics
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	lock     sync.RWMutex
	services map[string]*Service
	headers  map[string]HeaderFunc
}

func NewServer(options ServerOptions) (*Server, error) {
	if options.CrossDomain == "" {
		options.CrossDomain = DefaultCrossDomain
	}
	if options.MaxBodySize <= 0 {
		options.MaxBodySize = DefaultMaxBodySize
	}
	if options.Encodings == nil {
		options.Encodings = DefaultEncodings
	}
	for _, encoding := range options.Encodings {
		if !supported(encoding) {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
		}
	}
	if options.Registerer == nil {
		options.Registerer = prometheus.DefaultRegisterer
	}
	if options.Tracer == nil {
		options.Tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	if options.Propagator == nil {
		options.Propagator = otel.GetTextMapPropagator()
	}

	m, err := newMetrics(options.Registerer, options.Namespace)
	if err != nil {
		return nil, fmt.Errorf("unable to register gateway metrics: %w", err)
	}

	return &Server{
		options:    options,
		codec:      amf.New(options.Codec),
		metrics:    m,
		tracer:     options.Tracer,
		propagator: options.Propagator,
		services:   make(map[string]*Service),
		headers:    make(map[string]HeaderFunc),
	}, nil
}

func (s *Server) Codec() *amf.Codec {
	return s.codec
}

func (s *Server) RegisterService(service *Service) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.services[service.Name()]; ok {
		return fmt.Errorf("%w: %q", ErrServiceExists, service.Name())
	}
	s.services[service.Name()] = service
	log.Info().Str("service", service.Name()).Strs("methods", service.Methods()).Msg("registered service")
	return nil
}

// Register adds method to the named service, creating the service when
// needed.
func (s *Server) Register(service, method string, handler HandlerFunc) error {
	s.lock.Lock()
	svc, ok := s.services[service]
	if !ok {
		svc = NewService(service)
		s.services[service] = svc
	}
	s.lock.Unlock()

	return svc.Register(method, handler)
}

// HandleHeader installs the handler of headers called name. Required
// headers without a handler fail every message of their packet.
func (s *Server) HandleHeader(name string, handler HeaderFunc) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.headers[name] = handler
}

func (s *Server) lookup(target string) (HandlerFunc, error) {
	serviceName, method, ok := splitTarget(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, target)
	}

	s.lock.RLock()
	service, ok := s.services[serviceName]
	s.lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, target)
	}

	handler, ok := service.Handler(method)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, target)
	}
	return handler, nil
}

func (s *Server) fail(w http.ResponseWriter, status int, reason string, err error) {
	s.metrics.errors.WithLabelValues(reason).Inc()
	log.Warn().Err(err).Str("reason", reason).Msg("rejecting remoting request")
	http.Error(w, http.StatusText(status), status)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && path.Base(r.URL.Path) == "crossdomain.xml" && s.options.CrossDomain != "-" {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(s.options.CrossDomain))
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.fail(w, http.StatusMethodNotAllowed, "method", fmt.Errorf("unexpected http method %s", r.Method))
		return
	}

	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != ContentType {
		s.fail(w, http.StatusUnsupportedMediaType, "content_type", fmt.Errorf("unexpected content type %q", r.Header.Get("Content-Type")))
		return
	}

	body, err := decompress(r.Header.Get("Content-Encoding"), r.Body, s.options.MaxBodySize)
	switch {
	case errors.Is(err, ErrUnsupportedEncoding):
		s.fail(w, http.StatusUnsupportedMediaType, "encoding", err)
		return
	case errors.Is(err, ErrBodyTooLarge):
		s.fail(w, http.StatusRequestEntityTooLarge, "size", err)
		return
	case err != nil:
		s.fail(w, http.StatusBadRequest, "body", err)
		return
	}

	request, err := packet.Decode(body, s.codec.Registry(), s.codec.AMF0Options())
	if err != nil {
		s.fail(w, http.StatusBadRequest, "packet", err)
		return
	}

	ctx := s.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	reply := s.Process(ctx, request)

	data, err := reply.Encode(s.codec.Registry(), s.codec.AMF0Options())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "reply", err)
		return
	}

	encoding := negotiate(r.Header.Get("Accept-Encoding"), s.options.Encodings)
	if data, err = compress(encoding, data); err != nil {
		s.fail(w, http.StatusInternalServerError, "encoding", err)
		return
	}

	w.Header().Set("Content-Type", ContentType)
	if encoding != EncodingIdentity {
		w.Header().Set("Content-Encoding", encoding)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		log.Debug().Err(err).Msg("failed to write remoting reply")
	}
}

// Process handles the headers of request and answers each of its
// messages in order.
func (s *Server) Process(ctx context.Context, request *packet.Packet) *packet.Packet {
	reply := packet.New(amf.AMF3)

	headerErr := s.processHeaders(ctx, request.Headers)
	for i := range request.Messages {
		message := &request.Messages[i]
		if headerErr != nil {
			s.metrics.messages.WithLabelValues(unknownTarget, outcomeStatus).Inc()
			reply.Messages = append(reply.Messages, message.Status(packet.StatusFromError(headerErr)))
			continue
		}
		reply.Messages = append(reply.Messages, s.dispatch(ctx, message))
	}
	return reply
}

func (s *Server) processHeaders(ctx context.Context, headers []packet.Header) error {
	for _, header := range headers {
		s.lock.RLock()
		handler, ok := s.headers[header.Name]
		s.lock.RUnlock()

		if !ok {
			if header.Required {
				return fmt.Errorf("%w: %s", ErrHeaderNotHandled, header.Name)
			}
			log.Debug().Str("header", header.Name).Msg("ignoring unhandled header")
			continue
		}

		if err := handler(ctx, header.Content); err != nil {
			return fmt.Errorf("header %s: %w", header.Name, err)
		}
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, message *packet.Message) packet.Message {
	handler, err := s.lookup(message.TargetURI)
	if err != nil {
		log.Warn().Str("target", message.TargetURI).Msg("call to unknown method")
		s.metrics.messages.WithLabelValues(unknownTarget, outcomeStatus).Inc()
		return message.Status(packet.StatusFromError(err))
	}

	target := message.TargetURI
	ctx, span := s.tracer.Start(ctx, target,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("amf.target", target),
			attribute.String("amf.response_uri", message.ResponseURI),
		))
	defer span.End()

	active := s.metrics.active.WithLabelValues(target)
	active.Inc()
	start := time.Now()

	result, err := call(ctx, handler, message.Args())

	s.metrics.duration.WithLabelValues(target).Observe(time.Since(start).Seconds())
	active.Dec()

	if err != nil {
		span.SetStatus(codes.Error, "call failed")
		span.RecordError(err)
		log.Error().Err(err).Str("target", target).Msg("remoting call failed")
		s.metrics.messages.WithLabelValues(target, outcomeStatus).Inc()
		return message.Status(packet.StatusFromError(err))
	}

	span.SetStatus(codes.Ok, "")
	s.metrics.messages.WithLabelValues(target, outcomeResult).Inc()
	return message.Result(result)
}

// call turns a handler panic into an error answered with a status.
func call(ctx context.Context, handler HandlerFunc, args []any) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panicked: %v", recovered)
		}
	}()
	return handler(ctx, args)
}
