package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mtrqq/amf/pkg/amf"
	"github.com/mtrqq/amf/pkg/packet"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoReply = errors.New("no reply for message")

type ClientOptions struct {
	Codec      amf.Config
	HTTPClient *http.Client
	// Version of request packets, AMF3 escapes bodies into the current
	// format.
	Version amf.Version
	// Encoding compresses request bodies, empty sends them as is.
	Encoding    string
	MaxBodySize int64
	Tracer      trace.Tracer
	Propagator  propagation.TextMapPropagator
}

type Client struct {
	url     string
	options ClientOptions
	codec   *amf.Codec
	headers []packet.Header
}

// Call is one message of a batch.
type Call struct {
	Target string
	Args   []any
}

// Result is the reply to a Call, Err is a *StatusError for onStatus
// replies.
type Result struct {
	Content any
	Err     error
}

func NewClient(url string, options ClientOptions) (*Client, error) {
	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}
	if !options.Version.Valid() {
		return nil, fmt.Errorf("%w: %d", amf.ErrUnsupportedVersion, uint16(options.Version))
	}
	if options.Encoding != "" && !supported(options.Encoding) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, options.Encoding)
	}
	if options.MaxBodySize <= 0 {
		options.MaxBodySize = DefaultMaxBodySize
	}
	if options.Tracer == nil {
		options.Tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	if options.Propagator == nil {
		options.Propagator = otel.GetTextMapPropagator()
	}

	return &Client{
		url:     url,
		options: options,
		codec:   amf.New(options.Codec),
	}, nil
}

func (c *Client) Codec() *amf.Codec {
	return c.codec
}

// AddHeader sends a header with every following request.
func (c *Client) AddHeader(name string, required bool, content any) {
	c.headers = append(c.headers, packet.Header{Name: name, Required: required, Content: content})
}

// Call invokes target with args and returns the result content.
func (c *Client) Call(ctx context.Context, target string, args ...any) (any, error) {
	results, err := c.Batch(ctx, Call{Target: target, Args: args})
	if err != nil {
		return nil, err
	}
	return results[0].Content, results[0].Err
}

// Batch sends calls in one packet, results are in call order.
func (c *Client) Batch(ctx context.Context, calls ...Call) (results []Result, err error) {
	ctx, span := c.options.Tracer.Start(ctx, "amf.batch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("amf.calls", len(calls))))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, "batch failed")
			span.RecordError(err)
		}
		span.End()
	}()

	request := packet.New(c.options.Version)
	request.Headers = c.headers
	for i, call := range calls {
		args := call.Args
		if args == nil {
			args = []any{}
		}
		request.Messages = append(request.Messages, packet.Message{
			TargetURI:   call.Target,
			ResponseURI: "/" + strconv.Itoa(i+1),
			Content:     args,
		})
	}

	reply, err := c.roundTrip(ctx, request)
	if err != nil {
		return nil, err
	}

	results = make([]Result, len(calls))
	for i := range request.Messages {
		results[i] = match(&request.Messages[i], reply.Messages)
	}
	return results, nil
}

func match(request *packet.Message, replies []packet.Message) Result {
	for i := range replies {
		reply := &replies[i]
		switch {
		case reply.IsResult(request.ResponseURI):
			return Result{Content: reply.Content}
		case reply.IsStatus(request.ResponseURI):
			return Result{Err: statusError(request.TargetURI, reply.Content)}
		}
	}
	return Result{Err: fmt.Errorf("%w: %s (%s)", ErrNoReply, request.TargetURI, request.ResponseURI)}
}

func (c *Client) roundTrip(ctx context.Context, request *packet.Packet) (*packet.Packet, error) {
	data, err := request.Encode(c.codec.Registry(), c.codec.AMF0Options())
	if err != nil {
		return nil, fmt.Errorf("unable to encode request: %w", err)
	}
	if data, err = compress(c.options.Encoding, data); err != nil {
		return nil, err
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Content-Type", ContentType)
	httpRequest.Header.Set("Accept-Encoding", "zstd, gzip, lz4, x-snappy-framed")
	if c.options.Encoding != "" && c.options.Encoding != EncodingIdentity {
		httpRequest.Header.Set("Content-Encoding", c.options.Encoding)
	}
	c.options.Propagator.Inject(ctx, propagation.HeaderCarrier(httpRequest.Header))

	response, err := c.options.HTTPClient.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway replied %s", response.Status)
	}

	body, err := decompress(response.Header.Get("Content-Encoding"), response.Body, c.options.MaxBodySize)
	if err != nil {
		return nil, fmt.Errorf("unable to read reply: %w", err)
	}

	reply, err := packet.Decode(body, c.codec.Registry(), c.codec.AMF0Options())
	if err != nil {
		return nil, fmt.Errorf("unable to decode reply: %w", err)
	}

	log.Debug().Str("url", c.url).Int("messages", len(reply.Messages)).Int("size", len(body)).Msg("received remoting reply")
	return reply, nil
}
