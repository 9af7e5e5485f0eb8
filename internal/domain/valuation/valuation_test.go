package valuation_test

import (
	"testing"
	"time"

	"github.com/okian/milepost/internal/domain/currency"
	"github.com/okian/milepost/internal/domain/model"
	"github.com/okian/milepost/internal/domain/types"
	"github.com/okian/milepost/internal/domain/valuation"
	. "github.com/smartystreets/goconvey/convey"
)

var dep = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func award(carrier, flight string, seg int, mileage, copay float64, exact bool) model.RawAwardOffer {
	d := dep.Add(time.Duration(seg) * 7 * 24 * time.Hour)
	return model.RawAwardOffer{
		Carrier:      carrier,
		FlightNumber: flight,
		SegmentIndex: seg,
		Mileage:      mileage,
		Copay:        copay,
		Currency:     "USD",
		Origin:       "SYD",
		Destination:  "LAX",
		Departure:    d,
		Arrival:      d.Add(14 * time.Hour),
		Cabin:        "business",
		Exact:        exact,
	}
}

func TestPrograms(t *testing.T) {
	Convey("Given AA offers with two candidates for the first segment", t, func() {
		e := valuation.NewEngine()
		offers := []model.RawAwardOffer{
			award("AA", "AA1", 0, 25000, 0, true),
			award("AA", "AA3", 0, 30000, 0, true),
			award("AA", "AA7", 1, 40000, 5.60, false),
		}

		Convey("When building programs for two required segments", func() {
			programs := e.Programs(offers, 2)

			Convey("Then the cheapest per segment is summed", func() {
				So(programs, ShouldHaveLength, 1)
				p := programs[0]
				So(p.Carrier, ShouldEqual, "AA")
				So(p.TotalMileage, ShouldEqual, 65000)
				So(p.TotalPrice, ShouldAlmostEqual, 5.60)
				So(p.SegmentCount, ShouldEqual, 2)
				So(p.Complete, ShouldBeTrue)
				So(p.Match, ShouldEqual, types.MatchMixed)
				So(p.Offers[0].FlightNumber, ShouldEqual, "AA1")
				So(p.Offers[1].FlightNumber, ShouldEqual, "AA7")
			})
		})

		Convey("When three segments are required", func() {
			programs := e.Programs(offers, 3)

			Convey("Then the program is incomplete", func() {
				So(programs[0].Complete, ShouldBeFalse)
				So(programs[0].SegmentCount, ShouldEqual, 2)
			})
		})
	})

	Convey("Given co-pay that outweighs a mileage difference", t, func() {
		e := valuation.NewEngine()
		offers := []model.RawAwardOffer{
			award("QF", "QF1", 0, 20000, 100, true),
			award("QF", "QF3", 0, 25000, 0, true),
		}

		Convey("Then the score mileage + copay*100 decides", func() {
			programs := e.Programs(offers, 1)
			So(programs[0].TotalMileage, ShouldEqual, 25000)
			So(programs[0].Match, ShouldEqual, types.MatchExact)
		})
	})

	Convey("Given programs from several carriers", t, func() {
		e := valuation.NewEngine()
		offers := []model.RawAwardOffer{
			award("qf", "QF11", 0, 60000, 0, false),
			award("AA", "AA1", 0, 50000, 60, false),
			award("BA", "BA9", 0, 55000, 0, false),
			award("CX", "CX1", 0, 55000, 0, false),
		}

		Convey("Then they are ranked by mileage + price*100 with carrier tie-break", func() {
			programs := e.Programs(offers, 1)
			So(programs, ShouldHaveLength, 4)
			So(programs[0].Carrier, ShouldEqual, "BA")
			So(programs[1].Carrier, ShouldEqual, "CX")
			So(programs[2].Carrier, ShouldEqual, "AA")
			So(programs[3].Carrier, ShouldEqual, "QF")
			So(programs[3].Match, ShouldEqual, types.MatchPartial)
		})
	})

	Convey("Given codeshare duplicates within a carrier", t, func() {
		e := valuation.NewEngine()
		offers := []model.RawAwardOffer{
			award("UA", "UA100", 0, 30000, 0, true),
			award("UA", "UA099", 0, 30000, 0, true),
		}

		Convey("Then the lower flight number contributes", func() {
			programs := e.Programs(offers, 0)
			So(programs[0].Offers, ShouldHaveLength, 1)
			So(programs[0].Offers[0].FlightNumber, ShouldEqual, "UA099")
			So(programs[0].Complete, ShouldBeTrue)
		})
	})

	Convey("Given no offers", t, func() {
		So(valuation.NewEngine().Programs(nil, 2), ShouldBeEmpty)
	})
}

func TestBestByCabin(t *testing.T) {
	Convey("Given offers across cabins", t, func() {
		e := valuation.NewEngine()
		eco := award("AA", "AA1", 0, 20000, 10, false)
		eco.Cabin = "Economy"
		ecoCheaper := award("AA", "AA2", 0, 15000, 90, false)
		ecoCheaper.Cabin = "economy"
		biz := award("QF", "QF1", 0, 60000, 0, false)

		cabins := e.BestByCabin([]model.RawAwardOffer{eco, ecoCheaper, biz})

		Convey("Then the lowest mileage*0.015 + copay wins per cabin", func() {
			So(cabins, ShouldHaveLength, 2)
			So(cabins[0].Cabin, ShouldEqual, "business")
			So(cabins[0].Value, ShouldAlmostEqual, 900.0)
			So(cabins[1].Cabin, ShouldEqual, "economy")
			So(cabins[1].Offer.FlightNumber, ShouldEqual, "AA1")
			So(cabins[1].Value, ShouldAlmostEqual, 310.0)
		})
	})

	Convey("Given a custom per-mile value", t, func() {
		e := valuation.NewEngine(valuation.WithPerCentValue(0.02))
		cabins := e.BestByCabin([]model.RawAwardOffer{award("AA", "AA1", 0, 10000, 0, false)})
		So(cabins[0].Value, ShouldAlmostEqual, 200.0)
	})
}

func TestThresholds(t *testing.T) {
	Convey("Given the default thresholds", t, func() {
		e := valuation.NewEngine()

		Convey("Then strike-through applies below 90% of cash", func() {
			So(e.StrikeThrough(890, 1000), ShouldBeTrue)
			So(e.StrikeThrough(900, 1000), ShouldBeFalse)
			So(e.StrikeThrough(10, 0), ShouldBeFalse)
		})

		Convey("Then the save badge applies below 85% of cash", func() {
			ok, _ := e.SaveBadge(890, 1000)
			So(ok, ShouldBeFalse)
			ok, save := e.SaveBadge(800, 1000)
			So(ok, ShouldBeTrue)
			So(save, ShouldAlmostEqual, 200.0)
		})
	})

	Convey("Given configured thresholds", t, func() {
		e := valuation.NewEngine(valuation.WithThresholds(0.5, 0.4))
		So(e.StrikeThrough(600, 1000), ShouldBeFalse)
		ok, _ := e.SaveBadge(399, 1000)
		So(ok, ShouldBeTrue)
	})
}

func TestPartitionByWindow(t *testing.T) {
	e := valuation.NewEngine()

	Convey("Given offers around the original departure", t, func() {
		near := award("AA", "AA1", 0, 1, 0, false)
		near.Departure = dep.Add(-300 * time.Minute)
		far := award("AA", "AA2", 0, 2, 0, false)
		far.Departure = dep.Add(301 * time.Minute)

		Convey("When both partitions have offers", func() {
			best, insensitive, selected := e.PartitionByWindow([]model.RawAwardOffer{near, far}, dep)

			Convey("Then 300 minutes is inside and best match is selected", func() {
				So(best, ShouldHaveLength, 1)
				So(insensitive, ShouldHaveLength, 1)
				So(selected, ShouldEqual, valuation.WindowBestMatch)
			})
		})

		Convey("When only far offers exist", func() {
			_, _, selected := e.PartitionByWindow([]model.RawAwardOffer{far}, dep)
			So(selected, ShouldEqual, valuation.WindowTimeInsensitive)
		})

		Convey("When there are no offers", func() {
			_, _, selected := e.PartitionByWindow(nil, dep)
			So(selected, ShouldBeEmpty)
		})
	})
}

func TestSummarize(t *testing.T) {
	Convey("Given a two-slice itinerary and offers from two carriers", t, func() {
		conv, err := currency.NewStaticConverter("USD", map[string]float64{"AUD": 0.65})
		So(err, ShouldBeNil)
		e := valuation.NewEngine(valuation.WithConverter(conv))

		it := model.Itinerary{
			ID:        "it-9",
			CashPrice: 1500,
			Currency:  "USD",
			Slices: []model.Slice{
				{Segments: []model.Segment{{MarketingCarrier: "AA", Origin: "SYD", Destination: "LAX", Departure: dep}}},
				{Segments: []model.Segment{{MarketingCarrier: "AA", Origin: "LAX", Destination: "SYD", Departure: dep.Add(7 * 24 * time.Hour)}}},
			},
		}
		late := award("AA", "AA3", 0, 30000, 0, true)
		late.Departure = dep.Add(6 * time.Hour)
		late.Arrival = late.Departure.Add(14 * time.Hour)
		qfOut := award("QF", "QF11", 0, 50000, 100, false)
		qfOut.Currency = "AUD"
		offers := []model.RawAwardOffer{
			award("AA", "AA1", 0, 25000, 0, true),
			late,
			award("AA", "AA7", 1, 40000, 5.60, false),
			qfOut,
			award("QF", "QF12", 1, 50000, 0, false),
		}

		v := e.Summarize(it, offers, 0)

		Convey("Then AA is recommended with a struck-through cash price", func() {
			So(v.ItineraryID, ShouldEqual, "it-9")
			So(v.CashPrice, ShouldEqual, 1500)
			So(v.Currency, ShouldEqual, "USD")
			So(v.Programs, ShouldHaveLength, 2)
			So(v.Recommended, ShouldNotBeNil)
			So(v.Recommended.Carrier, ShouldEqual, "AA")
			So(v.Recommended.TotalMileage, ShouldEqual, 65000)
			So(v.Recommended.StrikeThrough, ShouldBeTrue)
		})

		Convey("And QF co-pay is converted from AUD", func() {
			So(v.Programs[1].Carrier, ShouldEqual, "QF")
			So(v.Programs[1].TotalPrice, ShouldAlmostEqual, 65.0)
		})

		Convey("And the best business offer earns a save badge", func() {
			So(v.Cabins, ShouldHaveLength, 1)
			So(v.Cabins[0].Offer.FlightNumber, ShouldEqual, "AA1")
			So(v.Cabins[0].SaveBadge, ShouldBeTrue)
			So(v.Cabins[0].Savings, ShouldAlmostEqual, 1125.0)
		})

		Convey("And the recommended program's outbound alternates are partitioned", func() {
			So(v.Window.BestMatch, ShouldHaveLength, 1)
			So(v.Window.TimeInsensitive, ShouldHaveLength, 1)
			So(v.Window.TimeInsensitive[0].FlightNumber, ShouldEqual, "AA3")
			So(v.Window.Selected, ShouldEqual, valuation.WindowBestMatch)
		})
	})

	Convey("Given no offers", t, func() {
		v := valuation.NewEngine().Summarize(model.Itinerary{ID: "x"}, nil, 100)

		Convey("Then the view is empty but well formed", func() {
			So(v.Recommended, ShouldBeNil)
			So(v.Programs, ShouldBeEmpty)
			So(v.Cabins, ShouldBeEmpty)
			So(v.CashPrice, ShouldEqual, 100)
		})
	})
}
