// Package valuation turns carrier-mixed award offers into ranked programs,
// per-cabin best values and cash comparison flags.
package valuation

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/okian/milepost/internal/domain/currency"
	"github.com/okian/milepost/internal/domain/dedupe"
	"github.com/okian/milepost/internal/domain/model"
	"github.com/okian/milepost/internal/domain/types"
	"github.com/okian/milepost/pkg/logger"
)

// Program is the cheapest combination of one carrier's offers covering an
// itinerary's segments. TotalPrice is the summed co-pay in the base currency.
type Program struct {
	Carrier      string
	TotalMileage float64
	TotalPrice   float64
	Match        types.Match
	Offers       []model.RawAwardOffer
	SegmentCount int
	Complete     bool
}

// Engine holds valuation parameters. It is safe for concurrent use.
type Engine struct {
	perCentValue  float64
	copayWeight   float64
	strikeThrough float64
	saveBadge     float64
	window        time.Duration
	converter     currency.Converter
	logger        logger.Logger
}

// NewEngine creates an engine with the given options.
func NewEngine(opts ...Option) *Engine {
	conv, _ := currency.NewStaticConverter(currency.DefaultBase, nil)
	e := &Engine{
		perCentValue:  DefaultPerCentValue,
		copayWeight:   DefaultCopayWeight,
		strikeThrough: DefaultStrikeThroughRatio,
		saveBadge:     DefaultSaveBadgeRatio,
		window:        DefaultTimeWindow,
		converter:     conv,
		logger:        logger.Get().Named("valuation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// copay returns an offer's co-pay in the base currency. Unknown currencies
// fall back to the raw amount.
func (e *Engine) copay(o model.RawAwardOffer) float64 {
	return e.toBase(o.Copay, o.Currency)
}

func (e *Engine) toBase(amount float64, code string) float64 {
	v, err := e.converter.ToBase(amount, code)
	if err != nil {
		if errors.Is(err, currency.ErrUnknownCurrency) {
			e.logger.Debug(context.Background(), "using unconverted amount",
				logger.String("currency", code), logger.Float64("amount", amount))
		}
		return amount
	}
	return v
}

// offerScore is the per-segment comparison score: mileage + copay*weight.
func (e *Engine) offerScore(o model.RawAwardOffer) float64 {
	return o.Mileage + e.copay(o)*e.copayWeight
}

// Programs builds one Program per carrier. For every required segment index
// the cheapest offer is chosen. When requiredSegments is not positive the
// segment indexes present in the offers are used.
func (e *Engine) Programs(offers []model.RawAwardOffer, requiredSegments int) []Program {
	byCarrier := make(map[string][]model.RawAwardOffer)
	var carriers []string
	for _, o := range offers {
		c := strings.ToUpper(strings.TrimSpace(o.Carrier))
		if c == "" {
			continue
		}
		if _, ok := byCarrier[c]; !ok {
			carriers = append(carriers, c)
		}
		byCarrier[c] = append(byCarrier[c], o)
	}

	programs := make([]Program, 0, len(carriers))
	for _, c := range carriers {
		if p, ok := e.program(c, dedupe.Offers(byCarrier[c]), requiredSegments); ok {
			programs = append(programs, p)
		}
	}
	return e.Rank(programs)
}

func (e *Engine) program(carrier string, offers []model.RawAwardOffer, required int) (Program, bool) {
	best := make(map[int]model.RawAwardOffer)
	for _, o := range offers {
		if required > 0 && (o.SegmentIndex < 0 || o.SegmentIndex >= required) {
			continue
		}
		cur, ok := best[o.SegmentIndex]
		if !ok || e.offerScore(o) < e.offerScore(cur) {
			best[o.SegmentIndex] = o
		}
	}
	if len(best) == 0 {
		return Program{}, false
	}

	idx := make([]int, 0, len(best))
	for i := range best {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	p := Program{Carrier: carrier, SegmentCount: len(idx)}
	exact := 0
	for _, i := range idx {
		o := best[i]
		p.Offers = append(p.Offers, o)
		p.TotalMileage += o.Mileage
		p.TotalPrice += e.copay(o)
		if o.Exact {
			exact++
		}
	}
	p.TotalPrice = roundCents(p.TotalPrice)
	switch exact {
	case len(idx):
		p.Match = types.MatchExact
	case 0:
		p.Match = types.MatchPartial
	default:
		p.Match = types.MatchMixed
	}
	p.Complete = required <= 0 || len(idx) == required
	return p, true
}

// Rank sorts programs ascending by TotalMileage + TotalPrice*weight. Ties are
// broken by carrier code. The first program is the recommended one.
func (e *Engine) Rank(programs []Program) []Program {
	sort.SliceStable(programs, func(i, j int) bool {
		si, sj := e.programScore(programs[i]), e.programScore(programs[j])
		if si != sj {
			return si < sj
		}
		return programs[i].Carrier < programs[j].Carrier
	})
	return programs
}

func (e *Engine) programScore(p Program) float64 {
	return p.TotalMileage + p.TotalPrice*e.copayWeight
}

// Value is the cash-equivalent of a mileage amount plus co-pay.
func (e *Engine) Value(mileage, copay float64) float64 {
	return roundCents(mileage*e.perCentValue + copay)
}

// ProgramValue is the cash-equivalent of a whole program.
func (e *Engine) ProgramValue(p Program) float64 {
	return e.Value(p.TotalMileage, p.TotalPrice)
}

// BestByCabin keeps the lowest-value offer per cabin, sorted by cabin name.
func (e *Engine) BestByCabin(offers []model.RawAwardOffer) []types.CabinView {
	best := make(map[string]types.CabinView)
	for _, o := range dedupe.Offers(offers) {
		cabin := strings.ToLower(strings.TrimSpace(o.Cabin))
		v := e.Value(o.Mileage, e.copay(o))
		cur, ok := best[cabin]
		if !ok || v < cur.Value {
			best[cabin] = types.CabinView{Cabin: cabin, Value: v, Offer: o}
		}
	}
	out := make([]types.CabinView, 0, len(best))
	for _, cv := range best {
		out = append(out, cv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cabin < out[j].Cabin })
	return out
}

// StrikeThrough reports whether a redemption value beats the cash price by
// enough to strike the cash price through on the itinerary card.
func (e *Engine) StrikeThrough(value, cash float64) bool {
	return cash > 0 && value < e.strikeThrough*cash
}

// SaveBadge reports whether an offer earns a "Save $X" badge, and X.
func (e *Engine) SaveBadge(value, cash float64) (bool, float64) {
	if cash <= 0 || value >= e.saveBadge*cash {
		return false, 0
	}
	return true, roundCents(cash - value)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
