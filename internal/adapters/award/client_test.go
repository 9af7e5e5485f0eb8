package award

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/okian/milepost/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type received struct {
	mu      sync.Mutex
	carrier []string
	offers  map[string][]model.RawAwardOffer
}

func (r *received) handle(_ context.Context, carrier string, offers []model.RawAwardOffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offers == nil {
		r.offers = make(map[string][]model.RawAwardOffer)
	}
	r.carrier = append(r.carrier, carrier)
	r.offers[carrier] = append(r.offers[carrier], offers...)
}

// streamServer writes body in pieces, flushing after each.
func streamServer(t *testing.T, gotReq *Request, pieces ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotReq != nil {
			if err := json.NewDecoder(r.Body).Decode(gotReq); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher, _ := w.(http.Flusher)
		for _, p := range pieces {
			_, _ = io.WriteString(w, p)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestClientStream(t *testing.T) {
	ctx := context.Background()

	Convey("Given a provider streaming both shapes with a malformed line in between", t, func() {
		direct, summary := oneLine(directRecord), oneLine(summaryRecord)
		var req Request
		srv := streamServer(t, &req,
			direct[:40], direct[40:]+"\n",
			"not json at all\n",
			summary+"\r\n",
			`{"type":"heartbeat"}`,
		)
		defer srv.Close()

		c := NewClient(srv.URL, WithRateLimit(0, 0))
		var got received
		st, err := c.Stream(ctx, Request{
			Slices:   []model.SliceContext{{Origin: "SYD", Destination: "LAX", Date: "2025-06-01", Cabin: "business"}},
			Carriers: []string{"QF", "AA"},
		}, got.handle)

		Convey("Then every record is decoded and routed per carrier", func() {
			So(err, ShouldBeNil)
			So(st.Records, ShouldEqual, 3)
			So(st.Malformed, ShouldEqual, 1)
			So(st.Unknown, ShouldEqual, 1)
			So(got.carrier, ShouldResemble, []string{"QF", "AA", "QF", "UA"})
			So(got.offers["QF"], ShouldHaveLength, 2)
			So(got.offers["UA"], ShouldHaveLength, 1)
		})

		Convey("And the request carries the search context", func() {
			So(req.Carriers, ShouldResemble, []string{"QF", "AA"})
			So(req.Passengers, ShouldEqual, 1)
			So(req.Slices[0].Origin, ShouldEqual, "SYD")
		})
	})

	Convey("Given a provider answering with an error status", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, WithRateLimit(0, 0)).Stream(ctx, Request{}, func(context.Context, string, []model.RawAwardOffer) {})

		Convey("Then the stream fails with ErrStatus", func() {
			So(errors.Is(err, ErrStatus), ShouldBeTrue)
		})
	})

	Convey("Given an unreachable provider", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewClient(url, WithRateLimit(0, 0), WithTimeout(time.Second)).Stream(ctx, Request{}, func(context.Context, string, []model.RawAwardOffer) {})

		Convey("Then the stream fails with ErrTransport", func() {
			So(errors.Is(err, ErrTransport), ShouldBeTrue)
		})
	})

	Convey("Given a cancelled context while waiting on the rate limiter", t, func() {
		c := NewClient("http://127.0.0.1:0", WithRateLimit(0.001, 1))
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := c.Stream(cctx, Request{}, func(context.Context, string, []model.RawAwardOffer) {})

		Convey("Then no request is attempted", func() {
			So(errors.Is(err, ErrTransport), ShouldBeTrue)
		})
	})
}

func TestRequestFor(t *testing.T) {
	Convey("Given a batch of two itineraries on the same route", t, func() {
		dep := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
		it := func(id, carrier string) model.Itinerary {
			return model.Itinerary{ID: id, Cabin: "business", Slices: []model.Slice{{Segments: []model.Segment{
				{MarketingCarrier: carrier, Origin: "SYD", Destination: "LAX", Departure: dep},
			}}}}
		}
		items := []model.WorkItem{
			{ID: "a", Carrier: "QF", Itinerary: it("a", "QF")},
			{ID: "b", Carrier: "AA", Itinerary: it("b", "AA")},
		}

		req := RequestFor(items)

		Convey("Then slices are shared and carriers are distinct and sorted", func() {
			So(req.Slices, ShouldHaveLength, 1)
			So(req.Carriers, ShouldResemble, []string{"AA", "QF"})
			So(req.ItineraryIDs, ShouldResemble, []string{"a", "b"})
		})
	})
}

func TestClientTimeout(t *testing.T) {
	Convey("Given a caller-owned HTTP client without a timeout", t, func() {
		own := &http.Client{}

		Convey("When the timeout is set before the client", func() {
			c := NewClient("http://fares", WithTimeout(5*time.Second), WithHTTPClient(own))

			Convey("Then a copy carries the timeout and the caller's client is untouched", func() {
				So(c.httpClient.Timeout, ShouldEqual, 5*time.Second)
				So(c.httpClient, ShouldNotPointTo, own)
				So(own.Timeout, ShouldEqual, time.Duration(0))
			})
		})

		Convey("When the timeout is set after the client", func() {
			c := NewClient("http://fares", WithHTTPClient(own), WithTimeout(5*time.Second))

			Convey("Then the result is the same", func() {
				So(c.httpClient.Timeout, ShouldEqual, 5*time.Second)
				So(own.Timeout, ShouldEqual, time.Duration(0))
			})
		})

		Convey("When no timeout is configured", func() {
			c := NewClient("http://fares", WithHTTPClient(own))

			Convey("Then the caller's client is used as given", func() {
				So(c.httpClient, ShouldPointTo, own)
				So(c.httpClient.Timeout, ShouldEqual, time.Duration(0))
			})
		})
	})

	Convey("Given the default HTTP client", t, func() {
		c := NewClient("http://fares", WithTimeout(2*time.Second))

		Convey("Then the timeout replaces the default", func() {
			So(c.httpClient.Timeout, ShouldEqual, 2*time.Second)
		})
	})
}
