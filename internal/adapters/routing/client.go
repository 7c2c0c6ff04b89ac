package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/samirrijal/shoptrip/internal/core/domain"
	"github.com/samirrijal/shoptrip/internal/core/ports"
	"github.com/samirrijal/shoptrip/internal/pkg/telemetry"
)

const maxErrorBody = 512

// Config addresses a directions endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements ports.RoutingService against a directions-style HTTP
// API: a GET with origin, destination and waypoints answered by a JSON
// document with status and routes.
type Client struct {
	cfg     Config
	http    *fasthttp.Client
	tracer  trace.Tracer
	limiter *rate.Limiter
}

var _ ports.RoutingService = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the network dialer.
func WithDialer(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

// WithRateLimit caps outgoing requests at rps per second with the given
// burst. Callers block until a token is available or their context ends.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a routing Client.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		cfg: cfg,
		http: &fasthttp.Client{
			Name:                "shoptrip-routing",
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: time.Minute,
		},
		tracer: telemetry.Tracer(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Route performs one request. Non-2xx answers become *ports.UpstreamError;
// any decoded body is returned unchanged whatever its status field says.
func (c *Client) Route(ctx context.Context, r domain.RouteRequest) (*domain.RouteResult, error) {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanRoutingRequest,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(telemetry.AttrRouteMode, string(r.Mode)),
			attribute.Int(telemetry.AttrRouteWaypoints, len(r.Waypoints)),
			attribute.Bool(telemetry.AttrRouteOptimize, r.OptimizeWaypoints),
		))
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			} else {
				// Wait fails early when the deadline cannot cover the delay.
				err = context.DeadlineExceeded
			}
			err = fmt.Errorf("routing rate limit: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limit")
			return nil, err
		}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.requestURL(r))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{&req.Header})

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.Timeout)
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			err = fmt.Errorf("routing request: %w", context.DeadlineExceeded)
		} else {
			err = fmt.Errorf("routing request: %w", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, err
	}

	status := resp.StatusCode()
	span.SetAttributes(attribute.Int(telemetry.AttrHTTPStatus, status))
	if status < 200 || status > 299 {
		body := resp.Body()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		err := &ports.UpstreamError{StatusCode: status, Body: string(body)}
		span.SetStatus(codes.Error, "upstream status "+strconv.Itoa(status))
		return nil, err
	}

	var result domain.RouteResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		err = fmt.Errorf("decode routing response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return nil, err
	}
	span.SetAttributes(attribute.String(telemetry.AttrRouteStatus, result.Status))
	return &result, nil
}

// requestURL encodes origin and destination as "lat,lng" and waypoints as a
// JSON array of {lat,lng} objects.
func (c *Client) requestURL(r domain.RouteRequest) string {
	q := url.Values{}
	q.Set("origin", latLng(r.Origin))
	q.Set("destination", latLng(r.Destination))
	if len(r.Waypoints) > 0 {
		// A []GeoPoint always marshals.
		wp, _ := json.Marshal(r.Waypoints)
		q.Set("waypoints", string(wp))
		if r.OptimizeWaypoints {
			q.Set("optimizeWaypoints", "true")
		}
	}
	if r.Mode != "" {
		q.Set("mode", strings.ToLower(string(r.Mode)))
	}
	if c.cfg.APIKey != "" {
		q.Set("key", c.cfg.APIKey)
	}
	sep := "?"
	if strings.Contains(c.cfg.BaseURL, "?") {
		sep = "&"
	}
	return c.cfg.BaseURL + sep + q.Encode()
}

func latLng(p domain.GeoPoint) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}

// headerCarrier adapts fasthttp request headers to propagation.TextMapCarrier.
type headerCarrier struct {
	h *fasthttp.RequestHeader
}

func (c headerCarrier) Get(key string) string { return string(c.h.Peek(key)) }

func (c headerCarrier) Set(key, value string) { c.h.Set(key, value) }

func (c headerCarrier) Keys() []string {
	var keys []string
	c.h.VisitAll(func(k, _ []byte) { keys = append(keys, string(k)) })
	return keys
}
