package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/milepost/internal/adapters/fares"
	"github.com/okian/milepost/internal/adapters/http/api"
	"github.com/okian/milepost/internal/adapters/repository"
	app "github.com/okian/milepost/internal/app"
	"github.com/okian/milepost/internal/config"
	"github.com/okian/milepost/internal/domain/model"
)

var departure = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// offerFetcher answers every item with one offer flying its first slice.
type offerFetcher struct {
	mu      sync.Mutex
	fetched []string
}

func (f *offerFetcher) Fetch(ctx context.Context, items []model.WorkItem, publish func(context.Context, string, []model.RawAwardOffer)) error {
	for _, it := range items {
		f.mu.Lock()
		f.fetched = append(f.fetched, it.ID)
		f.mu.Unlock()
		sl := it.Itinerary.Slices[0]
		publish(ctx, it.Carrier, []model.RawAwardOffer{{
			Carrier:      it.Carrier,
			FlightNumber: it.Carrier + "100",
			Mileage:      25000,
			Copay:        5.6,
			Currency:     "USD",
			Origin:       sl.Origin(),
			Destination:  sl.Destination(),
			Departure:    sl.Departure(),
			Arrival:      sl.Departure().Add(6 * time.Hour),
			Cabin:        "economy",
			Exact:        true,
			Source:       model.ShapeDirect,
		}})
	}
	return nil
}

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (c *countingSource) Alternates(_ context.Context, req fares.AlternatesRequest) (map[string]json.RawMessage, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[string]json.RawMessage, len(req.ReturnAirports))
	for _, a := range req.ReturnAirports {
		out[a] = json.RawMessage(`{"price":` + map[string]string{"EWR": "310", "JFK": "295"}[a] + `}`)
	}
	return out, nil
}

func itinerary(id, carrier string) model.Itinerary {
	return model.Itinerary{
		ID:        id,
		CashPrice: 450,
		Currency:  "USD",
		Slices: []model.Slice{{Segments: []model.Segment{{
			MarketingCarrier: carrier,
			FlightNumber:     carrier + "100",
			Origin:           "JFK",
			Destination:      "LAX",
			Departure:        departure,
			Arrival:          departure.Add(6 * time.Hour),
		}}}},
	}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func newService(f *offerFetcher, src *countingSource) *app.Service {
	cfg := config.New()
	cfg.Scheduler.BatchDelayMS = 1
	return app.New(
		app.WithConfig(cfg),
		app.WithFetcher(f),
		app.WithAlternatesSource(src),
		app.WithCacheBackend(repository.NewMemoryBackend()),
	)
}

func TestServiceEnrichment(t *testing.T) {
	convey.Convey("Given a started service", t, func() {
		ctx := context.Background()
		f := &offerFetcher{}
		svc := newService(f, &countingSource{})
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		convey.Convey("When itineraries are enriched", func() {
			accepted, _ := svc.Enrich(ctx, []model.Itinerary{itinerary("it-1", "AA"), itinerary("it-2", "UA")}, []string{"it-1"}, false)
			convey.So(accepted, convey.ShouldEqual, 2)

			convey.Convey("Then progress completes and offers are kept per carrier", func() {
				convey.So(eventually(func() bool { return svc.Progress().Completed == 2 }), convey.ShouldBeTrue)
				convey.So(svc.Progress().Total, convey.ShouldEqual, 2)
				convey.So(svc.Offers("aa"), convey.ShouldHaveLength, 1)
				convey.So(svc.Offers("UA"), convey.ShouldHaveLength, 1)
				convey.So(svc.Offers("QF"), convey.ShouldBeEmpty)
			})

			convey.Convey("And a known itinerary can be valued", func() {
				convey.So(eventually(func() bool { return svc.Progress().Completed == 2 }), convey.ShouldBeTrue)
				v, err := svc.Valuation(ctx, "it-1", 0, "")
				convey.So(err, convey.ShouldBeNil)
				convey.So(v.ItineraryID, convey.ShouldEqual, "it-1")
				convey.So(v.CashPrice, convey.ShouldEqual, 450.0)
				convey.So(v.Programs, convey.ShouldNotBeEmpty)
				convey.So(v.Recommended, convey.ShouldNotBeNil)
			})

			convey.Convey("And stats reflect the session", func() {
				convey.So(eventually(func() bool { return svc.Progress().Completed == 2 }), convey.ShouldBeTrue)
				stats := svc.GetStats()
				convey.So(stats["started"], convey.ShouldEqual, true)
				convey.So(stats["itineraries"], convey.ShouldEqual, 2)
				convey.So(stats["enriched"], convey.ShouldEqual, 2)
				convey.So(stats["cacheTtlMinutes"], convey.ShouldEqual, 30)
			})

			convey.Convey("And Reset clears the session", func() {
				convey.So(eventually(func() bool { return svc.Progress().Completed == 2 }), convey.ShouldBeTrue)
				before := svc.Status().SessionID
				st := svc.Reset(ctx)
				convey.So(st.SessionID, convey.ShouldNotEqual, before)
				convey.So(st.Enriched, convey.ShouldEqual, 0)
				convey.So(svc.Offers("AA"), convey.ShouldBeEmpty)
				_, err := svc.Valuation(ctx, "it-1", 0, "")
				convey.So(errors.Is(err, api.ErrNotFound), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When an unknown itinerary is valued", func() {
			_, err := svc.Valuation(ctx, "missing", 100, "USD")
			convey.So(errors.Is(err, api.ErrNotFound), convey.ShouldBeTrue)
		})
	})
}

func TestServiceAlternates(t *testing.T) {
	convey.Convey("Given a service with a counting fare source", t, func() {
		ctx := context.Background()
		src := &countingSource{}
		svc := newService(&offerFetcher{}, src)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		req := fares.AlternatesRequest{
			Origin:         "lax",
			Destination:    "nyc",
			DepartDate:     "2025-06-01",
			ReturnAirports: []string{"jfk", "EWR"},
		}

		convey.Convey("Then repeated lookups are served from the cache", func() {
			all, err := svc.Alternates(ctx, req, "")
			convey.So(err, convey.ShouldBeNil)
			convey.So(all, convey.ShouldHaveLength, 2)

			one, err := svc.Alternates(ctx, req, "JFK")
			convey.So(err, convey.ShouldBeNil)
			convey.So(one, convey.ShouldHaveLength, 1)
			convey.So(string(one["JFK"]), convey.ShouldEqual, `{"price":295}`)
			convey.So(src.calls.Load(), convey.ShouldEqual, 1)
		})

		convey.Convey("Then an airport outside the request is not found", func() {
			_, err := svc.Alternates(ctx, req, "BOS")
			convey.So(errors.Is(err, api.ErrNotFound), convey.ShouldBeTrue)
			convey.So(src.calls.Load(), convey.ShouldEqual, 0)
		})

		convey.Convey("Then an invalid request is rejected before loading", func() {
			_, err := svc.Alternates(ctx, fares.AlternatesRequest{Origin: "LAX"}, "")
			convey.So(errors.Is(err, fares.ErrInvalidRequest), convey.ShouldBeTrue)
			convey.So(src.calls.Load(), convey.ShouldEqual, 0)
		})

		convey.Convey("Then source failures are returned and not cached", func() {
			src.err = errors.Mark(errors.New("boom"), fares.ErrTransport)
			_, err := svc.Alternates(ctx, req, "")
			convey.So(errors.Is(err, fares.ErrTransport), convey.ShouldBeTrue)

			src.err = nil
			_, err = svc.Alternates(ctx, req, "")
			convey.So(err, convey.ShouldBeNil)
			convey.So(src.calls.Load(), convey.ShouldEqual, 2)
		})
	})
}

func TestServiceLifecycle(t *testing.T) {
	convey.Convey("Given a service", t, func() {
		ctx := context.Background()
		svc := newService(&offerFetcher{}, &countingSource{})

		convey.Convey("Then Stop before Start is a no-op", func() {
			convey.So(svc.Stop(ctx), convey.ShouldBeNil)
			convey.So(svc.GetStats()["started"], convey.ShouldEqual, false)
		})

		convey.Convey("Then Start is idempotent and Stop shuts down", func() {
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			convey.So(svc.Hub(), convey.ShouldNotBeNil)
			convey.So(svc.Stop(ctx), convey.ShouldBeNil)
			convey.So(svc.GetStats()["started"], convey.ShouldEqual, false)
		})

		convey.Convey("Then a stopped service refuses to start again", func() {
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			convey.So(svc.Stop(ctx), convey.ShouldBeNil)
			err := svc.Start(ctx)
			convey.So(errors.Is(err, app.ErrStopped), convey.ShouldBeTrue)
			convey.So(svc.Stop(ctx), convey.ShouldBeNil)
			convey.So(svc.Stop(ctx), convey.ShouldBeNil)
		})
	})
}

// floodFetcher keeps publishing one offer for the batch's carrier until its
// context ends, then delivers once more late.
type floodFetcher struct {
	returned chan struct{}
}

func (f *floodFetcher) Fetch(ctx context.Context, items []model.WorkItem, publish func(context.Context, string, []model.RawAwardOffer)) error {
	defer func() { f.returned <- struct{}{} }()
	it := items[0]
	sl := it.Itinerary.Slices[0]
	offer := []model.RawAwardOffer{{
		Carrier:      it.Carrier,
		FlightNumber: it.Carrier + "1",
		Mileage:      30000,
		Origin:       sl.Origin(),
		Destination:  sl.Destination(),
		Departure:    sl.Departure(),
	}}
	for ctx.Err() == nil {
		publish(ctx, it.Carrier, offer)
	}
	publish(ctx, it.Carrier, offer)
	return ctx.Err()
}

func TestServiceResetWhilePublishing(t *testing.T) {
	convey.Convey("Given a fare stream that keeps publishing QF offers", t, func() {
		ctx := context.Background()
		f := &floodFetcher{returned: make(chan struct{}, 1)}
		cfg := config.New()
		cfg.Scheduler.BatchDelayMS = 0
		svc := app.New(
			app.WithConfig(cfg),
			app.WithFetcher(f),
			app.WithAlternatesSource(&countingSource{}),
			app.WithCacheBackend(repository.NewMemoryBackend()),
		)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		convey.Convey("Then a reset leaves no offers from the abandoned search", func() {
			for i := 0; i < 100; i++ {
				svc.Enrich(ctx, []model.Itinerary{itinerary("it-1", "QF")}, nil, false)
				convey.So(eventually(func() bool { return len(svc.Offers("QF")) > 0 }), convey.ShouldBeTrue)
				svc.Reset(ctx)
				returned := false
				select {
				case <-f.returned:
					returned = true
				case <-time.After(2 * time.Second):
				}
				convey.So(returned, convey.ShouldBeTrue)
				convey.So(svc.Offers("QF"), convey.ShouldBeEmpty)
			}
		})
	})
}
