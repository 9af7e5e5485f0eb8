package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/okian/milepost/internal/adapters/mq/queue"
	"github.com/okian/milepost/internal/domain/model"
	"github.com/okian/milepost/internal/domain/types"
	"github.com/okian/milepost/pkg/logger"
	"github.com/okian/milepost/pkg/metrics"
)

// Default scheduler configuration constants.
const (
	defaultBatchSize    = 2
	defaultBatchDelay   = 500 * time.Millisecond
	defaultRetryInitial = 250 * time.Millisecond
)

// Skip reasons reported to metrics.
const (
	skipDuplicate = "duplicate"
	skipCarrier   = "carrier"
	skipQueue     = "queue"
)

// OffersFunc receives decoded offers for one carrier.
type OffersFunc func(ctx context.Context, carrier string, offers []model.RawAwardOffer)

// ProgressFunc receives a progress snapshot.
type ProgressFunc func(types.Progress)

// ResetFunc runs when a new session begins, before any offer of that session
// is published.
type ResetFunc func(ctx context.Context)

// Fetcher retrieves award offers for a batch, calling publish as offers
// arrive. It returns when the stream ends.
type Fetcher interface {
	Fetch(ctx context.Context, items []model.WorkItem, publish func(context.Context, string, []model.RawAwardOffer)) error
}

// Scheduler owns the enrichment queue and dispatches one batch at a time.
//
// Every itinerary id is in at most one of queued, in progress, enriched or
// failed. Reset starts a new session; work from an older session is
// cancelled and its results are dropped.
//
// Offers are delivered under a read lock on deliver and sessions change
// under its write lock, so a delivery either completes before the reset
// hook runs or sees the new session and is dropped.
type Scheduler struct {
	fetcher      Fetcher
	queue        queue.Queue
	batchSize    int
	batchDelay   time.Duration
	maxRetries   int
	retryInitial time.Duration
	onOffers     OffersFunc
	onProgress   ProgressFunc
	onReset      ResetFunc
	logger       logger.Logger

	deliver       sync.RWMutex
	mu            sync.Mutex
	root          context.Context
	session       string
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	enriched      map[string]struct{}
	inProgress    map[string]struct{}
	failed        map[string]struct{}
	total         int
	active        bool
	closed        bool
	wg            sync.WaitGroup
}

// NewScheduler creates a scheduler that fetches through f.
func NewScheduler(f Fetcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:      f,
		batchSize:    defaultBatchSize,
		batchDelay:   defaultBatchDelay,
		retryInitial: defaultRetryInitial,
		logger:       logger.Get().Named("scheduler"),
		root:         context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.queue == nil {
		s.queue = queue.NewPriorityQueue()
	}
	s.newSessionLocked()
	return s
}

// newSessionLocked must be called with mu held.
func (s *Scheduler) newSessionLocked() {
	if s.sessionCancel != nil {
		s.sessionCancel()
	}
	s.session = uuid.NewString()
	s.sessionCtx, s.sessionCancel = context.WithCancel(s.root)
	s.enriched = make(map[string]struct{})
	s.inProgress = make(map[string]struct{})
	s.failed = make(map[string]struct{})
	s.total = 0
	s.active = false
}

// Start binds the scheduler to ctx and begins a fresh session. Cancelling
// ctx stops all work. Anything queued or in flight before Start belongs to
// the previous session and is discarded.
func (s *Scheduler) Start(ctx context.Context) error {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStopped
	}
	s.root = ctx
	discarded := s.queue.Len(ctx) + len(s.inProgress)
	s.queue.Clear()
	s.newSessionLocked()
	session := s.session
	s.mu.Unlock()

	if s.onReset != nil {
		s.onReset(ctx)
	}
	s.logger.Info(ctx, "scheduler started",
		logger.String("session", session),
		logger.Int("batchSize", s.batchSize),
		logger.Duration("batchDelay", s.batchDelay),
		logger.Int("maxRetries", s.maxRetries),
		logger.Int("discarded", discarded))
	return nil
}

// Shutdown cancels in-flight work and waits for the loop to exit.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.sessionCancel()
	s.mu.Unlock()
	_ = s.queue.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Enqueue adds itineraries that are not yet known in this session and
// returns how many were accepted. Itineraries whose first segment has no
// two-letter carrier are skipped.
func (s *Scheduler) Enqueue(ctx context.Context, items []model.Itinerary, visibleIDs []string) int {
	visible := toSet(visibleIDs)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	accepted := 0
	for _, it := range items {
		if it.ID == "" || s.knownLocked(it.ID) {
			metrics.RecordItemSkipped(skipDuplicate)
			continue
		}
		carrier, ok := it.OperatingCarrier()
		if !ok {
			metrics.RecordItemSkipped(skipCarrier)
			s.logger.Debug(ctx, "skipping itinerary without a two-letter carrier",
				logger.String("itinerary", it.ID), logger.String("carrier", carrier))
			continue
		}
		v := visible[it.ID]
		err := s.queue.Push(ctx, model.WorkItem{
			ID:        it.ID,
			Carrier:   carrier,
			Visible:   v,
			Priority:  model.PriorityFor(v),
			Itinerary: it,
		})
		if err != nil {
			metrics.RecordItemSkipped(skipQueue)
			s.logger.Warn(ctx, "failed to queue itinerary", logger.String("itinerary", it.ID), logger.Error(err))
			continue
		}
		accepted++
	}
	s.total += accepted
	started := false
	if accepted > 0 && !s.active {
		s.active = true
		started = true
		s.wg.Add(1)
		go s.run(s.sessionCtx, s.session)
	}
	s.mu.Unlock()

	metrics.RecordItemsEnqueued(accepted)
	if accepted > 0 {
		s.logger.Debug(ctx, "itineraries queued",
			logger.Int("accepted", accepted),
			logger.Int("offered", len(items)),
			logger.Bool("loopStarted", started))
		s.notify()
	}
	return accepted
}

func (s *Scheduler) knownLocked(id string) bool {
	if _, ok := s.enriched[id]; ok {
		return true
	}
	if _, ok := s.inProgress[id]; ok {
		return true
	}
	if _, ok := s.failed[id]; ok {
		return true
	}
	return s.queue.Contains(id)
}

// UpdateVisibility recomputes the priority of queued items. The batch in
// flight is not affected.
func (s *Scheduler) UpdateVisibility(ctx context.Context, visibleIDs []string) int {
	changed := s.queue.Reprioritize(ctx, toSet(visibleIDs))
	if changed > 0 {
		s.logger.Debug(ctx, "queue reprioritized", logger.Int("changed", changed))
	}
	return changed
}

// Reset discards all state and starts a new session. An in-flight fetch is
// cancelled and anything it still delivers is ignored.
func (s *Scheduler) Reset(ctx context.Context) string {
	s.deliver.Lock()
	s.mu.Lock()
	prev := s.session
	s.queue.Clear()
	s.newSessionLocked()
	session := s.session
	s.mu.Unlock()
	if s.onReset != nil {
		s.onReset(ctx)
	}
	s.deliver.Unlock()

	metrics.RecordSessionReset()
	metrics.UpdateItemsInProgress(0)
	s.logger.Info(ctx, "enrichment session reset",
		logger.String("previous", prev), logger.String("session", session))
	s.notify()
	return session
}

// Status returns a point-in-time view of the scheduler.
func (s *Scheduler) Status() types.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Status{
		SessionID:   s.session,
		QueueDepth:  s.queue.Len(context.Background()),
		Enriched:    len(s.enriched),
		InProgress:  len(s.inProgress),
		Failed:      len(s.failed),
		BatchActive: len(s.inProgress) > 0,
	}
}

// Progress returns the aggregate progress of the current session.
func (s *Scheduler) Progress() types.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *Scheduler) progressLocked() types.Progress {
	return types.Progress{
		Total:      s.total,
		Completed:  len(s.enriched),
		InProgress: sortedKeys(s.inProgress),
		Failed:     sortedKeys(s.failed),
	}
}

func (s *Scheduler) notify() {
	if s.onProgress == nil {
		return
	}
	s.onProgress(s.Progress())
}

// current reports whether session is still the live one.
func (s *Scheduler) current(session string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session == session && !s.closed
}

// run dispatches batches until the queue drains or the session ends.
func (s *Scheduler) run(ctx context.Context, session string) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if s.session != session {
			s.mu.Unlock()
			return
		}
		if ctx.Err() != nil {
			s.active = false
			s.mu.Unlock()
			return
		}
		batch := s.queue.PopBatch(ctx, s.batchSize)
		if len(batch) == 0 {
			s.active = false
			s.mu.Unlock()
			return
		}
		for _, it := range batch {
			s.inProgress[it.ID] = struct{}{}
		}
		s.mu.Unlock()

		metrics.UpdateItemsInProgress(len(batch))
		s.notify()
		s.processNextBatch(ctx, session, batch)

		if s.queue.Len(ctx) > 0 {
			sleep(ctx, s.batchDelay)
		}
	}
}

// processNextBatch fetches one batch and records its outcome.
func (s *Scheduler) processNextBatch(ctx context.Context, session string, batch []model.WorkItem) {
	start := time.Now()
	ids := make([]string, len(batch))
	for i, it := range batch {
		ids[i] = it.ID
	}
	s.logger.Debug(ctx, "dispatching batch", logger.Strings("ids", ids))

	err := s.fetch(ctx, session, batch)
	took := time.Since(start)

	s.mu.Lock()
	if s.session != session {
		s.mu.Unlock()
		metrics.RecordBatch(metrics.OutcomeStale, float64(took.Milliseconds()))
		s.logger.Debug(ctx, "dropping results of a superseded session", logger.Strings("ids", ids))
		return
	}
	for _, id := range ids {
		delete(s.inProgress, id)
		if err == nil {
			s.enriched[id] = struct{}{}
		} else {
			s.failed[id] = struct{}{}
		}
	}
	s.mu.Unlock()
	metrics.UpdateItemsInProgress(0)

	if err != nil {
		metrics.RecordBatch(metrics.OutcomeFailed, float64(took.Milliseconds()))
		metrics.RecordErrorByComponent("scheduler", "batch")
		s.logger.Error(ctx, "enrichment batch failed", logger.Strings("ids", ids), logger.Error(err))
	} else {
		metrics.RecordBatch(metrics.OutcomeEnriched, float64(took.Milliseconds()))
		s.logger.Debug(ctx, "enrichment batch complete", logger.Strings("ids", ids), logger.Duration("took", took))
	}
	s.notify()
}

func (s *Scheduler) fetch(ctx context.Context, session string, batch []model.WorkItem) error {
	publish := func(pctx context.Context, carrier string, offers []model.RawAwardOffer) {
		if len(offers) == 0 {
			return
		}
		s.deliver.RLock()
		defer s.deliver.RUnlock()
		if !s.current(session) {
			return
		}
		metrics.RecordOffersPublished(len(offers))
		if s.onOffers != nil {
			s.onOffers(pctx, carrier, offers)
		}
	}

	if s.maxRetries <= 0 {
		return s.fetcher.Fetch(ctx, batch, publish)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retryInitial
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.maxRetries)), ctx)
	op := func() error {
		err := s.fetcher.Fetch(ctx, batch, publish)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		metrics.RecordBatchRetry()
		s.logger.Warn(ctx, "retrying enrichment batch", logger.Duration("wait", wait), logger.Error(err))
	})
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
