package awardstub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/milepost/internal/adapters/award"
	"github.com/okian/milepost/internal/domain/model"
)

// Generated value constants.
const (
	baseMileage    = 20000
	mileageStep    = 2500
	sliceStep      = 1000
	baseCopay      = 5.60
	flightDuration = 3 * time.Hour
	firstDeparture = 8 * time.Hour
)

type directRecord struct {
	Type     string         `json:"type"`
	ID       string         `json:"id"`
	Solution directSolution `json:"solution"`
}

type directSolution struct {
	Itineraries []directItinerary `json:"itineraries"`
}

type directItinerary struct {
	SegmentIndex int             `json:"segment_index"`
	Exact        bool            `json:"exact"`
	Mileage      float64         `json:"mileage"`
	Copay        float64         `json:"copay"`
	Currency     string          `json:"currency"`
	Cabin        string          `json:"cabin,omitempty"`
	Segments     []directSegment `json:"segments"`
}

type directSegment struct {
	OperatingCarrier string    `json:"operating_carrier"`
	FlightNumber     string    `json:"flight_number"`
	Origin           string    `json:"origin"`
	Destination      string    `json:"destination"`
	Departure        time.Time `json:"departure"`
	Arrival          time.Time `json:"arrival"`
}

// summaryRecord carries no type field; consumers recognise it by structure.
type summaryRecord struct {
	ID       string          `json:"id"`
	Solution summarySolution `json:"solution"`
}

type summarySolution struct {
	Slices []summarySlice `json:"slices"`
}

type summarySlice struct {
	SegmentIndex     int                `json:"segment_index"`
	Origin           string             `json:"origin"`
	Destination      string             `json:"destination"`
	Cabin            string             `json:"cabin,omitempty"`
	MileageBreakdown []summaryBreakdown `json:"mileage_breakdown"`
}

type summaryBreakdown struct {
	Mileage         float64         `json:"mileage"`
	Copay           float64         `json:"copay"`
	Currency        string          `json:"currency"`
	Exact           bool            `json:"exact"`
	MatchingFlights []summaryFlight `json:"matching_flights"`
}

type summaryFlight struct {
	Carrier      string    `json:"carrier"`
	FlightNumber string    `json:"flight_number"`
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	Departure    time.Time `json:"departure"`
	Arrival      time.Time `json:"arrival"`
}

// Records builds the records streamed for req: cfg.Records per carrier,
// alternating the direct and summary shapes, each covering every slice.
func Records(req award.Request, cfg Config) ([][]byte, error) {
	var out [][]byte
	for _, carrier := range req.Carriers {
		for r := 0; r < cfg.records(); r++ {
			var (
				line []byte
				err  error
			)
			if r%2 == 0 {
				line, err = json.Marshal(direct(carrier, r, req.Slices))
			} else {
				line, err = json.Marshal(summary(carrier, r, req.Slices))
			}
			if err != nil {
				return nil, fmt.Errorf("marshal %s record %d: %w", carrier, r, err)
			}
			out = append(out, line)
		}
	}
	return out, nil
}

func direct(carrier string, r int, slices []model.SliceContext) directRecord {
	rec := directRecord{Type: string(model.ShapeDirect), ID: uuid.NewString()}
	for i, sc := range slices {
		dep := departure(sc, r)
		rec.Solution.Itineraries = append(rec.Solution.Itineraries, directItinerary{
			SegmentIndex: i,
			Exact:        true,
			Mileage:      mileage(carrier, r, i),
			Copay:        copay(r),
			Currency:     "USD",
			Cabin:        sc.Cabin,
			Segments: []directSegment{{
				OperatingCarrier: carrier,
				FlightNumber:     flightNumber(carrier, r, i),
				Origin:           sc.Origin,
				Destination:      sc.Destination,
				Departure:        dep,
				Arrival:          dep.Add(flightDuration),
			}},
		})
	}
	return rec
}

func summary(carrier string, r int, slices []model.SliceContext) summaryRecord {
	rec := summaryRecord{ID: uuid.NewString()}
	for i, sc := range slices {
		dep := departure(sc, r)
		rec.Solution.Slices = append(rec.Solution.Slices, summarySlice{
			SegmentIndex: i,
			Origin:       sc.Origin,
			Destination:  sc.Destination,
			Cabin:        sc.Cabin,
			MileageBreakdown: []summaryBreakdown{{
				Mileage:  mileage(carrier, r, i),
				Copay:    copay(r),
				Currency: "USD",
				MatchingFlights: []summaryFlight{{
					Carrier:      carrier,
					FlightNumber: flightNumber(carrier, r, i),
					Origin:       sc.Origin,
					Destination:  sc.Destination,
					Departure:    dep,
					Arrival:      dep.Add(flightDuration),
				}},
			}},
		})
	}
	return rec
}

// departure spreads records an hour apart from 08:00 UTC on the slice date.
func departure(sc model.SliceContext, r int) time.Time {
	day, err := time.Parse(time.DateOnly, sc.Date)
	if err != nil {
		day = time.Now().UTC().Truncate(24 * time.Hour)
	}
	return day.Add(firstDeparture + time.Duration(r)*time.Hour)
}

func mileage(carrier string, r, slice int) float64 {
	offset := 0
	for _, b := range []byte(carrier) {
		offset += int(b)
	}
	return float64(baseMileage + r*mileageStep + slice*sliceStep + (offset%10)*500)
}

func copay(r int) float64 { return baseCopay + float64(r) }

func flightNumber(carrier string, r, slice int) string {
	return fmt.Sprintf("%s%d", carrier, 100+r*10+slice)
}
