// Package award streams award availability from the award provider and
// decodes it into canonical offers.
package award

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/okian/milepost/internal/domain/model"
	"github.com/okian/milepost/pkg/logger"
	"github.com/okian/milepost/pkg/metrics"
)

// Request is the award search sent to the provider.
type Request struct {
	Slices       []model.SliceContext `json:"slices"`
	Carriers     []string             `json:"carriers"`
	Passengers   int                  `json:"passengers"`
	ItineraryIDs []string             `json:"itinerary_ids,omitempty"`
}

// Handler receives the offers of one record for one carrier.
type Handler func(ctx context.Context, carrier string, offers []model.RawAwardOffer)

// Stats summarizes one stream.
type Stats struct {
	Records   int
	Malformed int
	Unknown   int
	Offers    int
}

// Client talks to the award provider.
type Client struct {
	endpoint     string
	httpClient   *http.Client
	timeout      time.Duration
	limiter      *rate.Limiter
	maxLineBytes int
	passengers   int
	logger       logger.Logger
}

// NewClient creates a client for the streaming search endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:     endpoint,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		limiter:      rate.NewLimiter(rate.Limit(defaultRatePerSec), 1),
		maxLineBytes: defaultMaxLineBytes,
		passengers:   defaultPassengers,
		logger:       logger.Get().Named("award"),
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

// RequestFor builds one request covering a batch: the distinct slice
// contexts of its itineraries and the distinct carriers, sorted.
func RequestFor(items []model.WorkItem) Request {
	var req Request
	seenSlice := make(map[model.SliceContext]struct{})
	seenCarrier := make(map[string]struct{})
	for _, it := range items {
		req.ItineraryIDs = append(req.ItineraryIDs, it.ID)
		if _, ok := seenCarrier[it.Carrier]; !ok && it.Carrier != "" {
			seenCarrier[it.Carrier] = struct{}{}
			req.Carriers = append(req.Carriers, it.Carrier)
		}
		for _, sc := range it.Itinerary.SearchContext() {
			if _, ok := seenSlice[sc]; ok {
				continue
			}
			seenSlice[sc] = struct{}{}
			req.Slices = append(req.Slices, sc)
		}
	}
	sort.Strings(req.Carriers)
	return req
}

// Fetch streams offers for a batch of work items.
func (c *Client) Fetch(ctx context.Context, items []model.WorkItem, publish func(context.Context, string, []model.RawAwardOffer)) error {
	_, err := c.Stream(ctx, RequestFor(items), publish)
	return err
}

// Stream posts req and calls fn for every carrier of every decoded record as
// records arrive. Malformed records are skipped. The stream ends cleanly
// when the provider closes the connection.
func (c *Client) Stream(ctx context.Context, req Request, fn Handler) (Stats, error) {
	var st Stats
	if req.Passengers == 0 {
		req.Passengers = c.passengers
	}
	body, err := json.Marshal(req)
	if err != nil {
		return st, errors.Wrap(err, "marshal award request")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return st, errors.Mark(errors.Wrap(err, "rate limit wait"), ErrTransport)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return st, errors.Mark(errors.Wrap(err, "build award request"), ErrTransport)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.RecordErrorByComponent("award", "transport")
		return st, errors.Mark(errors.Wrapf(err, "post %s", c.endpoint), ErrTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.RecordErrorByComponent("award", "status")
		return st, errors.Mark(errors.Newf("award provider status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)), ErrStatus)
	}

	lr := NewLineReader(resp.Body, c.maxLineBytes)
	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrLineTooLong) {
			st.Malformed++
			metrics.RecordMalformedLine()
			c.logger.Warn(ctx, "skipping oversize award record", logger.Int("limit", c.maxLineBytes))
			continue
		}
		if err != nil {
			metrics.RecordErrorByComponent("award", "read")
			return st, errors.Mark(errors.Wrap(err, "read award stream"), ErrRead)
		}

		ev, err := Decode(line)
		if err != nil {
			st.Malformed++
			metrics.RecordMalformedLine()
			c.logger.Warn(ctx, "skipping malformed award record",
				logger.Int("line", lr.Lines()),
				logger.String("preview", preview(line)),
				logger.Error(err))
			continue
		}
		st.Records++
		metrics.RecordStreamRecord(ev.Kind.String())
		if ev.Kind == KindUnknown {
			st.Unknown++
			c.logger.Debug(ctx, "ignoring award record of unknown shape", logger.Int("line", lr.Lines()))
			continue
		}
		for _, carrier := range ev.Carriers() {
			offers := ev.ForCarrier(carrier)
			st.Offers += len(offers)
			fn(ctx, carrier, offers)
		}
	}

	c.logger.Debug(ctx, "award stream complete",
		logger.Strings("carriers", req.Carriers),
		logger.Int("records", st.Records),
		logger.Int("malformed", st.Malformed),
		logger.Int("offers", st.Offers),
		logger.Duration("took", time.Since(start)))
	return st, nil
}

func preview(line []byte) string {
	const n = 120
	if len(line) > n {
		return string(line[:n]) + "..."
	}
	return string(line)
}
