// Package service wires the enrichment pipeline and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/okian/milepost/internal/adapters/award"
	"github.com/okian/milepost/internal/adapters/fares"
	"github.com/okian/milepost/internal/adapters/http/api"
	"github.com/okian/milepost/internal/adapters/mq/worker"
	"github.com/okian/milepost/internal/adapters/repository"
	"github.com/okian/milepost/internal/config"
	"github.com/okian/milepost/internal/domain/currency"
	"github.com/okian/milepost/internal/domain/dedupe"
	"github.com/okian/milepost/internal/domain/model"
	"github.com/okian/milepost/internal/domain/types"
	"github.com/okian/milepost/internal/domain/valuation"
	"github.com/okian/milepost/pkg/logger"
	"github.com/okian/milepost/pkg/metrics"
)

// sliceMatchWindow bounds how far an offer's departure may be from a
// slice's departure for the offer to count toward that slice.
const sliceMatchWindow = 24 * time.Hour

// AlternatesSource fetches alternate-airport results on a cache miss.
type AlternatesSource interface {
	Alternates(ctx context.Context, req fares.AlternatesRequest) (map[string]json.RawMessage, error)
}

// Service implements the API dependencies for award enrichment.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger logger.Logger
	now    func() time.Time

	// Core components
	fetcher      worker.Fetcher
	scheduler    *worker.Scheduler
	engine       *valuation.Engine
	book         *dedupe.Set
	hub          *api.Hub
	alternates   AlternatesSource
	cache        *repository.Cache
	cacheBackend repository.Backend
	cacheClose   func(context.Context) error

	// itineraries seen in the current session, by id
	itineraries map[string]model.Itinerary

	started bool
	stopped bool
	cancel  context.CancelFunc
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:         config.New(),
		now:         time.Now,
		book:        dedupe.NewSet(),
		itineraries: make(map[string]model.Itinerary),
		cacheClose:  func(context.Context) error { return nil },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.hub = api.NewHub()
	return s
}

// Hub returns the websocket hub offers are broadcast on.
func (s *Service) Hub() *api.Hub { return s.hub }

// Start builds and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting enrichment service...")

	conv, err := currency.NewStaticConverter(cfg.Currency.Base, cfg.Currency.Rates)
	if err != nil {
		return errors.Wrap(err, "build currency converter")
	}
	s.engine = valuation.NewEngine(
		valuation.WithPerCentValue(cfg.Valuation.PerCentValue),
		valuation.WithCopayWeight(cfg.Valuation.CopayWeight),
		valuation.WithThresholds(cfg.Valuation.StrikeThroughRatio, cfg.Valuation.SaveBadgeRatio),
		valuation.WithTimeWindow(cfg.Valuation.TimeWindow()),
		valuation.WithConverter(conv),
	)

	backend := s.cacheBackend
	if backend == nil {
		b, closeFn, err := repository.OpenBackend(ctx, repository.BackendConfig{
			Kind:          cfg.Cache.Backend,
			DSN:           cfg.Cache.DSN,
			MongoDatabase: cfg.Cache.MongoDatabase,
		})
		if err != nil {
			return errors.Wrap(err, "open request cache")
		}
		backend, s.cacheClose = b, closeFn
	}
	s.cache = repository.NewCache(
		repository.WithBackend(backend),
		repository.WithTTL(cfg.Cache.TTL()),
		repository.WithClock(s.now),
	)

	if s.alternates == nil {
		s.alternates = fares.NewClient(cfg.Fares.Endpoint, fares.WithTimeout(cfg.Fares.Timeout()))
	}
	if s.fetcher == nil {
		s.fetcher = award.NewClient(cfg.Award.Endpoint,
			award.WithTimeout(cfg.Award.Timeout()),
			award.WithRateLimit(cfg.Award.RatePerSecond, 1),
			award.WithMaxLineBytes(cfg.Award.MaxLineBytes),
		)
	}

	s.scheduler = worker.NewScheduler(s.fetcher,
		worker.WithBatchSize(cfg.Scheduler.BatchSize),
		worker.WithBatchDelay(cfg.Scheduler.BatchDelay()),
		worker.WithRetry(cfg.Scheduler.MaxRetries, cfg.Scheduler.RetryInitial()),
		worker.WithOnOffers(s.publish),
		worker.WithOnReset(s.clearBook),
	)

	runCtx, cancel := context.WithCancel(ctx)
	if err := s.scheduler.Start(runCtx); err != nil {
		cancel()
		return errors.Wrap(err, "start scheduler")
	}
	s.cancel = cancel
	go s.hub.Run(runCtx)
	go metrics.CollectSystemMetrics(runCtx)

	s.started = true
	s.logger.Info(ctx, "enrichment service started",
		logger.String("award", cfg.Award.Endpoint),
		logger.String("cache", backend.Name()),
		logger.Bool("alternates", cfg.Fares.Endpoint != ""),
		logger.Int("batchSize", cfg.Scheduler.BatchSize),
	)
	return nil
}

// Stop gracefully shuts down the service. A stopped service cannot be
// started again.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping enrichment service...")

	var errs []error
	if err := s.scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	if err := s.cacheClose(ctx); err != nil {
		errs = append(errs, errors.Wrap(err, "close request cache"))
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "enrichment service stopped")
	return errors.Join(errs...)
}

// clearBook empties the offer book when the scheduler begins a session.
func (s *Service) clearBook(context.Context) { s.book.Reset() }

// publish receives offers from the scheduler for the live session.
func (s *Service) publish(ctx context.Context, carrier string, offers []model.RawAwardOffer) {
	changed := s.book.AddAll(ctx, offers)
	s.logger.Debug(ctx, "offers received",
		logger.String("carrier", carrier),
		logger.Int("offers", len(offers)),
		logger.Int("new", changed))
	if changed > 0 {
		s.hub.Broadcast(ctx, carrier, offers)
	}
}

// Enrich optionally resets the session, then queues itineraries.
func (s *Service) Enrich(ctx context.Context, itineraries []model.Itinerary, visibleIDs []string, reset bool) (int, types.Status) {
	if reset {
		s.Reset(ctx)
	}
	s.mu.Lock()
	for _, it := range itineraries {
		if it.ID != "" {
			s.itineraries[it.ID] = it
		}
	}
	s.mu.Unlock()

	accepted := s.scheduler.Enqueue(ctx, itineraries, visibleIDs)
	return accepted, s.scheduler.Status()
}

// UpdateVisibility reprioritizes queued itineraries.
func (s *Service) UpdateVisibility(ctx context.Context, visibleIDs []string) types.Status {
	s.scheduler.UpdateVisibility(ctx, visibleIDs)
	return s.scheduler.Status()
}

// Reset starts a new session, dropping queued work, offers and itineraries.
func (s *Service) Reset(ctx context.Context) types.Status {
	s.scheduler.Reset(ctx)
	s.mu.Lock()
	s.itineraries = make(map[string]model.Itinerary)
	s.mu.Unlock()
	return s.scheduler.Status()
}

// Status returns the scheduler status.
func (s *Service) Status() types.Status { return s.scheduler.Status() }

// Progress returns the session's enrichment progress.
func (s *Service) Progress() types.Progress { return s.scheduler.Progress() }

// Offers returns the deduplicated offers received for carrier.
func (s *Service) Offers(carrier string) []model.RawAwardOffer {
	return s.book.Carrier(strings.ToUpper(carrier))
}

// Valuation summarizes the award options for a known itinerary. A non-empty
// currency overrides the itinerary's cash currency.
func (s *Service) Valuation(ctx context.Context, itineraryID string, cashPrice float64, currency string) (types.Valuation, error) {
	const op = "service.valuation"
	s.mu.RLock()
	it, ok := s.itineraries[itineraryID]
	s.mu.RUnlock()
	if !ok {
		return types.Valuation{}, api.WrapKind(op, api.ErrNotFound, errors.Newf("itinerary %q", itineraryID))
	}
	if currency != "" {
		it.Currency = currency
	}
	v := s.engine.Summarize(it, s.offersFor(it), cashPrice)
	s.logger.Debug(ctx, "itinerary valued",
		logger.String("itinerary", itineraryID),
		logger.Int("programs", len(v.Programs)))
	return v, nil
}

// offersFor selects the book's offers that fly one of the itinerary's
// slices, tagged with that slice's index.
func (s *Service) offersFor(it model.Itinerary) []model.RawAwardOffer {
	all := s.book.All()
	var out []model.RawAwardOffer
	for i, sl := range it.Slices {
		origin, dest, dep := sl.Origin(), sl.Destination(), sl.Departure()
		for _, o := range all {
			if !strings.EqualFold(o.Origin, origin) || !strings.EqualFold(o.Destination, dest) {
				continue
			}
			if !dep.IsZero() && !o.Departure.IsZero() && absDuration(o.Departure.Sub(dep)) > sliceMatchWindow {
				continue
			}
			o.SegmentIndex = i
			out = append(out, o)
		}
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Alternates reads alternate-airport results through the request cache.
// With a non-empty airport only that airport's results are returned.
func (s *Service) Alternates(ctx context.Context, req fares.AlternatesRequest, airport string) (map[string]json.RawMessage, error) {
	const op = "service.alternates"
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if airport != "" && !slices.Contains(req.ReturnAirports, airport) {
		return nil, api.WrapKind(op, api.ErrNotFound, errors.Newf("airport %s was not requested", airport))
	}

	res, err := s.cache.GetOrLoad(ctx, req, airport, func(ctx context.Context) (map[string]json.RawMessage, error) {
		return s.alternates.Alternates(ctx, req)
	})
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	if airport != "" && len(res) == 0 {
		return nil, api.WrapKind(op, api.ErrNotFound, errors.Newf("no results for %s", airport))
	}
	return res, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"itineraries": len(s.itineraries),
		"offers":      s.book.Size(),
		"wsClients":   s.hub.Clients(),
	}
	if s.started {
		st := s.scheduler.Status()
		stats["sessionId"] = st.SessionID
		stats["queueDepth"] = st.QueueDepth
		stats["enriched"] = st.Enriched
		stats["inProgress"] = st.InProgress
		stats["failed"] = st.Failed
		stats["cacheTtlMinutes"] = int(s.cache.TTL() / time.Minute)
		metrics.UpdateQueueDepth(st.QueueDepth)
	}
	return stats
}

var _ api.Dependencies = (*Service)(nil)
