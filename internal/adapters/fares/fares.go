// Package fares queries the cash-fare provider for alternate-airport options.
package fares

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/okian/milepost/pkg/logger"
	"github.com/okian/milepost/pkg/metrics"
)

// AlternatesRequest asks for itineraries returning to any of ReturnAirports
// instead of the original origin.
type AlternatesRequest struct {
	Origin         string   `json:"origin"`
	Destination    string   `json:"destination"`
	DepartDate     string   `json:"depart_date"`
	ReturnDate     string   `json:"return_date,omitempty"`
	Cabin          string   `json:"cabin,omitempty"`
	Passengers     int      `json:"passengers,omitempty"`
	ReturnAirports []string `json:"return_airports"`
}

// Normalize upper-cases airport codes, lower-cases the cabin and sorts the
// distinct return airports, so equal requests compare and hash equally.
func (r AlternatesRequest) Normalize() AlternatesRequest {
	out := r
	out.Origin = strings.ToUpper(strings.TrimSpace(r.Origin))
	out.Destination = strings.ToUpper(strings.TrimSpace(r.Destination))
	out.Cabin = strings.ToLower(strings.TrimSpace(r.Cabin))
	seen := make(map[string]struct{}, len(r.ReturnAirports))
	out.ReturnAirports = make([]string, 0, len(r.ReturnAirports))
	for _, a := range r.ReturnAirports {
		a = strings.ToUpper(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out.ReturnAirports = append(out.ReturnAirports, a)
	}
	sort.Strings(out.ReturnAirports)
	return out
}

// Validate reports whether the request can be sent.
func (r AlternatesRequest) Validate() error {
	switch {
	case r.Origin == "" || r.Destination == "":
		return errors.Mark(errors.New("origin and destination are required"), ErrInvalidRequest)
	case r.DepartDate == "":
		return errors.Mark(errors.New("depart_date is required"), ErrInvalidRequest)
	case len(r.ReturnAirports) == 0:
		return errors.Mark(errors.New("at least one return airport is required"), ErrInvalidRequest)
	}
	return nil
}

type alternatesResponse struct {
	Results map[string]json.RawMessage `json:"results"`
}

// Client calls the cash-fare provider.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	logger     logger.Logger
}

// NewClient creates a client for endpoint. An empty endpoint yields a client
// whose calls fail with ErrDisabled.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Get().Named("fares"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 && c.httpClient.Timeout != c.timeout {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool { return c.endpoint != "" }

// Alternates returns the provider's results keyed by return airport.
func (c *Client) Alternates(ctx context.Context, req AlternatesRequest) (map[string]json.RawMessage, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal alternates request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "build alternates request"), ErrTransport)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.RecordErrorByComponent("fares", "transport")
		return nil, errors.Mark(errors.Wrapf(err, "post %s", c.endpoint), ErrTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.RecordErrorByComponent("fares", "status")
		return nil, errors.Mark(errors.Newf("fare provider status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)), ErrStatus)
	}

	var out alternatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.RecordErrorByComponent("fares", "decode")
		return nil, errors.Mark(errors.Wrap(err, "decode alternates response"), ErrDecode)
	}
	if out.Results == nil {
		out.Results = map[string]json.RawMessage{}
	}

	c.logger.Debug(ctx, "alternates fetched",
		logger.Strings("airports", req.ReturnAirports),
		logger.Int("results", len(out.Results)),
		logger.Duration("took", time.Since(start)))
	return out.Results, nil
}
