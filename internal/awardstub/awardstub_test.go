package awardstub_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/milepost/internal/adapters/award"
	"github.com/okian/milepost/internal/awardstub"
	"github.com/okian/milepost/internal/domain/model"
	logging "github.com/okian/milepost/pkg/logger"
)

var stubRequest = award.Request{
	Slices: []model.SliceContext{
		{Origin: "SYD", Destination: "LAX", Date: "2025-07-01", Cabin: "business"},
		{Origin: "LAX", Destination: "SYD", Date: "2025-07-10", Cabin: "business"},
	},
	Carriers:   []string{"AA", "QF"},
	Passengers: 1,
}

func TestRecords(t *testing.T) {
	convey.Convey("Given a request for two carriers and two slices", t, func() {
		records, err := awardstub.Records(stubRequest, awardstub.Config{Records: 2})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then each carrier gets one record of each shape", func() {
			convey.So(records, convey.ShouldHaveLength, 4)
			kinds := make([]award.Kind, len(records))
			for i, rec := range records {
				ev, err := award.Decode(rec)
				convey.So(err, convey.ShouldBeNil)
				kinds[i] = ev.Kind
				convey.So(ev.Offers, convey.ShouldHaveLength, 2)
			}
			convey.So(kinds, convey.ShouldResemble, []award.Kind{award.KindDirect, award.KindSummary, award.KindDirect, award.KindSummary})
		})

		convey.Convey("And the summary shape is recognised without a type field", func() {
			convey.So(string(records[1]), convey.ShouldNotContainSubstring, `"type"`)
			ev, _ := award.Decode(records[1])
			convey.So(ev.Carriers(), convey.ShouldResemble, []string{"AA"})
			convey.So(ev.Offers[1].SegmentIndex, convey.ShouldEqual, 1)
			convey.So(ev.Offers[1].Origin, convey.ShouldEqual, "LAX")
		})
	})
}

func TestHandlerAgainstClient(t *testing.T) {
	convey.Convey("Given the stub behind an HTTP server", t, func() {
		_ = logging.Init()
		srv := httptest.NewServer(awardstub.NewHandler(awardstub.Config{Records: 3, MalformedEvery: 2}))
		defer srv.Close()
		client := award.NewClient(srv.URL, award.WithRateLimit(0, 1))

		convey.Convey("When the award client streams from it", func() {
			var (
				mu        sync.Mutex
				byCarrier = map[string]int{}
			)
			st, err := client.Stream(context.Background(), stubRequest, func(_ context.Context, carrier string, offers []model.RawAwardOffer) {
				mu.Lock()
				byCarrier[carrier] += len(offers)
				mu.Unlock()
			})

			convey.Convey("Then every record decodes and injected lines are skipped", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(st.Records, convey.ShouldEqual, 6)
				convey.So(st.Malformed, convey.ShouldEqual, 3)
				convey.So(byCarrier, convey.ShouldResemble, map[string]int{"AA": 6, "QF": 6})
			})
		})
	})

	convey.Convey("Given a request without carriers", t, func() {
		_ = logging.Init()
		h := awardstub.NewHandler(awardstub.Config{})
		r := httptest.NewRequest(http.MethodPost, "/awards/search", strings.NewReader(`{"slices":[]}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		convey.So(w.Code, convey.ShouldEqual, http.StatusBadRequest)
	})
}
