package award

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/okian/milepost/internal/domain/model"
)

// Kind tags the upstream shape of a record.
type Kind int

const (
	KindUnknown Kind = iota
	KindDirect
	KindSummary
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return string(model.ShapeDirect)
	case KindSummary:
		return string(model.ShapeSummary)
	default:
		return "unknown"
	}
}

// Event is one decoded stream record. Offers keep record order; carriers
// keep first-mention order.
type Event struct {
	Kind     Kind
	Offers   []model.RawAwardOffer
	carriers []string
}

// Carriers lists every carrier the record mentions.
func (e Event) Carriers() []string { return e.carriers }

// ForCarrier returns the offers operated by carrier.
func (e Event) ForCarrier(carrier string) []model.RawAwardOffer {
	var out []model.RawAwardOffer
	for _, o := range e.Offers {
		if o.Carrier == carrier {
			out = append(out, o)
		}
	}
	return out
}

// Wire shapes.

type envelope struct {
	Type     string          `json:"type"`
	Solution json.RawMessage `json:"solution"`
}

type sniff struct {
	Itineraries json.RawMessage `json:"itineraries"`
	Slices      []struct {
		MileageBreakdown json.RawMessage `json:"mileage_breakdown"`
	} `json:"slices"`
}

type operating struct {
	Code string `json:"code"`
}

// directSolution is the award provider's native shape: priced itineraries
// made of segments.
type directSolution struct {
	Itineraries []struct {
		SegmentIndex int             `json:"segment_index"`
		Exact        bool            `json:"exact"`
		Mileage      float64         `json:"mileage"`
		Copay        float64         `json:"copay"`
		Currency     string          `json:"currency"`
		Cabin        string          `json:"cabin"`
		Segments     []directSegment `json:"segments"`
	} `json:"itineraries"`
}

type directSegment struct {
	OperatingCarrier string     `json:"operating_carrier"`
	Operating        *operating `json:"operating"`
	Carrier          string     `json:"carrier"`
	FlightNumber     string     `json:"flight_number"`
	Origin           string     `json:"origin"`
	Destination      string     `json:"destination"`
	Departure        time.Time  `json:"departure"`
	Arrival          time.Time  `json:"arrival"`
	Cabin            string     `json:"cabin"`
}

func (s directSegment) carrier() string {
	if c := strings.TrimSpace(s.OperatingCarrier); c != "" {
		return strings.ToUpper(c)
	}
	if s.Operating != nil {
		if c := strings.TrimSpace(s.Operating.Code); c != "" {
			return strings.ToUpper(c)
		}
	}
	return strings.ToUpper(strings.TrimSpace(s.Carrier))
}

// summarySolution is the enriched summary shape: per-slice mileage
// breakdowns listing the flights each price applies to.
type summarySolution struct {
	Slices []struct {
		SegmentIndex     int    `json:"segment_index"`
		Origin           string `json:"origin"`
		Destination      string `json:"destination"`
		Cabin            string `json:"cabin"`
		MileageBreakdown []struct {
			Mileage         float64         `json:"mileage"`
			Copay           float64         `json:"copay"`
			Currency        string          `json:"currency"`
			Exact           bool            `json:"exact"`
			Cabin           string          `json:"cabin"`
			MatchingFlights []summaryFlight `json:"matching_flights"`
		} `json:"mileage_breakdown"`
	} `json:"slices"`
}

type summaryFlight struct {
	OperatingCarrier string    `json:"operating_carrier"`
	Carrier          string    `json:"carrier"`
	FlightNumber     string    `json:"flight_number"`
	Origin           string    `json:"origin"`
	Destination      string    `json:"destination"`
	Departure        time.Time `json:"departure"`
	Arrival          time.Time `json:"arrival"`
	Stops            []string  `json:"stops"`
}

func (f summaryFlight) carrier() string {
	if c := strings.TrimSpace(f.OperatingCarrier); c != "" {
		return strings.ToUpper(c)
	}
	return strings.ToUpper(strings.TrimSpace(f.Carrier))
}

// Decode parses one record. The "type" field selects the shape; without it
// the solution's structure decides. Records of neither shape decode to
// KindUnknown with no offers. Invalid JSON, negative amounts and offers
// without a carrier are ErrMalformed.
func Decode(line []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Event{}, errors.Mark(errors.Wrap(err, "record"), ErrMalformed)
	}

	kind := kindOf(env)
	var (
		offers []model.RawAwardOffer
		err    error
	)
	switch kind {
	case KindDirect:
		offers, err = decodeDirect(env.Solution)
	case KindSummary:
		offers, err = decodeSummary(env.Solution)
	default:
		return Event{Kind: KindUnknown}, nil
	}
	if err != nil {
		return Event{}, errors.Mark(err, ErrMalformed)
	}

	ev := Event{Kind: kind, Offers: offers}
	seen := make(map[string]struct{})
	for _, o := range offers {
		if _, ok := seen[o.Carrier]; !ok {
			seen[o.Carrier] = struct{}{}
			ev.carriers = append(ev.carriers, o.Carrier)
		}
	}
	return ev, nil
}

func kindOf(env envelope) Kind {
	switch strings.ToLower(strings.TrimSpace(env.Type)) {
	case string(model.ShapeDirect):
		return KindDirect
	case string(model.ShapeSummary):
		return KindSummary
	}
	if len(env.Solution) == 0 {
		return KindUnknown
	}
	var s sniff
	if err := json.Unmarshal(env.Solution, &s); err != nil {
		return KindUnknown
	}
	if len(s.Itineraries) > 0 && !bytes.Equal(s.Itineraries, []byte("null")) {
		return KindDirect
	}
	for _, sl := range s.Slices {
		if len(sl.MileageBreakdown) > 0 {
			return KindSummary
		}
	}
	return KindUnknown
}

func decodeDirect(raw json.RawMessage) ([]model.RawAwardOffer, error) {
	var sol directSolution
	if err := json.Unmarshal(raw, &sol); err != nil {
		return nil, errors.Wrap(err, "direct solution")
	}
	var out []model.RawAwardOffer
	for i, it := range sol.Itineraries {
		if len(it.Segments) == 0 {
			continue
		}
		first, last := it.Segments[0], it.Segments[len(it.Segments)-1]
		o := model.RawAwardOffer{
			Carrier:      first.carrier(),
			Mileage:      it.Mileage,
			Copay:        it.Copay,
			Currency:     strings.ToUpper(it.Currency),
			Origin:       first.Origin,
			Destination:  last.Destination,
			Departure:    first.Departure,
			Arrival:      last.Arrival,
			Cabin:        firstNonEmpty(it.Cabin, first.Cabin),
			FlightNumber: first.FlightNumber,
			SegmentIndex: it.SegmentIndex,
			Exact:        it.Exact,
			Source:       model.ShapeDirect,
		}
		for _, s := range it.Segments[:len(it.Segments)-1] {
			o.Stops = append(o.Stops, s.Destination)
		}
		if err := validate(o); err != nil {
			return nil, errors.Wrapf(err, "itinerary %d", i)
		}
		out = append(out, o)
	}
	return out, nil
}

func decodeSummary(raw json.RawMessage) ([]model.RawAwardOffer, error) {
	var sol summarySolution
	if err := json.Unmarshal(raw, &sol); err != nil {
		return nil, errors.Wrap(err, "summary solution")
	}
	var out []model.RawAwardOffer
	for si, sl := range sol.Slices {
		for bi, b := range sl.MileageBreakdown {
			for fi, f := range b.MatchingFlights {
				o := model.RawAwardOffer{
					Carrier:      f.carrier(),
					Mileage:      b.Mileage,
					Copay:        b.Copay,
					Currency:     strings.ToUpper(b.Currency),
					Origin:       firstNonEmpty(f.Origin, sl.Origin),
					Destination:  firstNonEmpty(f.Destination, sl.Destination),
					Departure:    f.Departure,
					Arrival:      f.Arrival,
					Cabin:        firstNonEmpty(b.Cabin, sl.Cabin),
					Stops:        f.Stops,
					FlightNumber: f.FlightNumber,
					SegmentIndex: sl.SegmentIndex,
					Exact:        b.Exact,
					Source:       model.ShapeSummary,
				}
				if err := validate(o); err != nil {
					return nil, errors.Wrapf(err, "slice %d breakdown %d flight %d", si, bi, fi)
				}
				out = append(out, o)
			}
		}
	}
	return out, nil
}

func validate(o model.RawAwardOffer) error {
	switch {
	case o.Carrier == "":
		return errors.New("missing carrier")
	case o.Mileage < 0:
		return errors.Newf("negative mileage %v", o.Mileage)
	case o.Copay < 0:
		return errors.Newf("negative copay %v", o.Copay)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
