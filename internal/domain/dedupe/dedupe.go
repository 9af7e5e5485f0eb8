// Package dedupe collapses duplicate award offers.
//
// Two offers are duplicates when they share origin, destination, departure,
// arrival and mileage. Codeshares produce such pairs; the one with the
// numerically lower flight number is kept.
package dedupe

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/milepost/internal/domain/model"
)

// Key is the composite identity of an offer.
type Key struct {
	Origin      string
	Destination string
	Departure   int64
	Arrival     int64
	Mileage     float64
}

// KeyOf builds the dedupe key for an offer.
func KeyOf(o model.RawAwardOffer) Key {
	return Key{
		Origin:      o.Origin,
		Destination: o.Destination,
		Departure:   unix(o.Departure),
		Arrival:     unix(o.Arrival),
		Mileage:     o.Mileage,
	}
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// FlightNumber extracts the numeric part of a flight designator.
// "UA099" -> 99. Returns math.MaxInt when there are no digits.
func FlightNumber(designator string) int {
	d := strings.TrimSpace(designator)
	if len(d) > model.CarrierCodeLength && strings.IndexFunc(d[:model.CarrierCodeLength], isNotDigit) >= 0 {
		if n, ok := leadingDigits(d[model.CarrierCodeLength:]); ok {
			return n
		}
	}
	if n, ok := leadingDigits(strings.TrimLeftFunc(d, isNotDigit)); ok {
		return n
	}
	return math.MaxInt
}

func isNotDigit(r rune) bool { return r < '0' || r > '9' }

func leadingDigits(s string) (int, bool) {
	end := strings.IndexFunc(s, isNotDigit)
	if end == -1 {
		end = len(s)
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Prefer reports whether a should win over b for the same key.
func Prefer(a, b model.RawAwardOffer) bool {
	na, nb := FlightNumber(a.FlightNumber), FlightNumber(b.FlightNumber)
	if na != nb {
		return na < nb
	}
	return a.FlightNumber < b.FlightNumber
}

// Offers returns offers with duplicates removed, in first-seen key order.
func Offers(offers []model.RawAwardOffer) []model.RawAwardOffer {
	index := make(map[Key]int, len(offers))
	out := make([]model.RawAwardOffer, 0, len(offers))
	for _, o := range offers {
		k := KeyOf(o)
		if i, ok := index[k]; ok {
			if Prefer(o, out[i]) {
				out[i] = o
			}
			continue
		}
		index[k] = len(out)
		out = append(out, o)
	}
	return out
}

// Set accumulates streamed offers per carrier, applying the same rule as
// Offers incrementally. Safe for concurrent use.
type Set struct {
	mu      sync.RWMutex
	byCarr  map[string]*carrierSet
	maxSize int
	size    atomic.Int64
}

type carrierSet struct {
	offers map[Key]model.RawAwardOffer
	order  []Key
}

// NewSet creates an empty offer set.
func NewSet(opts ...Option) *Set {
	s := &Set{byCarr: make(map[string]*carrierSet)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add records an offer. Returns true if the set changed: a new key, or a
// replacement that won the flight-number tie-break.
func (s *Set) Add(_ context.Context, o model.RawAwardOffer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.byCarr[o.Carrier]
	if !ok {
		cs = &carrierSet{offers: make(map[Key]model.RawAwardOffer)}
		s.byCarr[o.Carrier] = cs
	}

	k := KeyOf(o)
	if cur, exists := cs.offers[k]; exists {
		if !Prefer(o, cur) {
			return false
		}
		cs.offers[k] = o
		return true
	}

	if s.maxSize > 0 && len(cs.offers) >= s.maxSize {
		oldest := cs.order[0]
		cs.order = cs.order[1:]
		delete(cs.offers, oldest)
		s.size.Add(-1)
	}
	cs.offers[k] = o
	cs.order = append(cs.order, k)
	s.size.Add(1)
	return true
}

// AddAll records offers and returns how many changed the set.
func (s *Set) AddAll(ctx context.Context, offers []model.RawAwardOffer) int {
	changed := 0
	for _, o := range offers {
		if s.Add(ctx, o) {
			changed++
		}
	}
	return changed
}

// Carrier returns the offers kept for one carrier, in insertion order.
func (s *Set) Carrier(carrier string) []model.RawAwardOffer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, ok := s.byCarr[carrier]
	if !ok {
		return nil
	}
	out := make([]model.RawAwardOffer, 0, len(cs.order))
	for _, k := range cs.order {
		out = append(out, cs.offers[k])
	}
	return out
}

// All returns every kept offer, grouped by carrier code in ascending order.
func (s *Set) All() []model.RawAwardOffer {
	s.mu.RLock()
	carriers := make([]string, 0, len(s.byCarr))
	for c := range s.byCarr {
		carriers = append(carriers, c)
	}
	s.mu.RUnlock()

	sort.Strings(carriers)
	var out []model.RawAwardOffer
	for _, c := range carriers {
		out = append(out, s.Carrier(c)...)
	}
	return out
}

// Reset drops every offer.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCarr = make(map[string]*carrierSet)
	s.size.Store(0)
}

// Size returns the number of offers kept across carriers.
func (s *Set) Size() int64 {
	return s.size.Load()
}
