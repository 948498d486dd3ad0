package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single request to the telemetry endpoint.
const DefaultTimeout = 5 * time.Second

// maxPayload caps how much of the response body is read.
const maxPayload = 1 << 20

// Failure reasons. Errors returned by Fetch wrap exactly one of these.
var (
	ErrTimeout     = errors.New("telemetry source timed out")
	ErrUnavailable = errors.New("telemetry source unavailable")
	ErrBadStatus   = errors.New("telemetry source returned non-2xx status")
	ErrMalformed   = errors.New("malformed telemetry payload")
)

// Sample holds the raw tenths-scaled values reported by the PLC.
type Sample struct {
	Humidity    int64
	Temperature int64
}

type Source interface {
	Fetch(ctx context.Context) (Sample, error)
}

// HTTPSource reads one JSON object per GET from a fixed URL.
type HTTPSource struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSource{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) URL() string {
	return s.url
}

func (s *HTTPSource) Fetch(ctx context.Context) (Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Sample{}, classify(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Sample{}, fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return Sample{}, classify(err)
	}
	return ParsePayload(body)
}

// ParsePayload decodes a JSON object with integer "humidity" and
// "temperature" fields. Missing or null fields read as 0; any other shape is
// ErrMalformed.
func ParsePayload(body []byte) (Sample, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Sample{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if fields == nil {
		return Sample{}, fmt.Errorf("%w: payload is null", ErrMalformed)
	}

	humidity, err := intField(fields, "humidity")
	if err != nil {
		return Sample{}, err
	}
	temperature, err := intField(fields, "temperature")
	if err != nil {
		return Sample{}, err
	}
	return Sample{Humidity: humidity, Temperature: temperature}, nil
}

func intField(fields map[string]json.RawMessage, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, nil
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: field %q: %w", ErrMalformed, name, err)
	}
	return v, nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
