// Package scheduler runs every ACTIVE strategy on its configured interval,
// serializing runs per strategy and fanning independent strategies out
// across a bounded worker pool (spec.md §4.6).
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cryptostrategist/internal/broker"
	"cryptostrategist/internal/marketdata"
	"cryptostrategist/internal/models"
	"cryptostrategist/internal/notify"
	"cryptostrategist/internal/providers"
	"cryptostrategist/internal/risk"
	"cryptostrategist/internal/strategy"
)

// failureWindow and failureThreshold implement spec.md §4.6's transition
// of a repeatedly-failing strategy from ACTIVE to ERROR.
const (
	failureWindow    = time.Hour
	failureThreshold = 3
)

// Store is the subset of database.Store the scheduler needs: read access
// to the gorm handle plus the serialized single-writer transaction.
type Store interface {
	DB() *gorm.DB
	Write(fn func(tx *gorm.DB) error) error
}

// Scheduler owns the tick loop described in spec.md §4.6: poll for due
// strategies, run each under a non-reentrant per-strategy lock, bounded by
// a worker pool, translating the evaluator's Decision into a risk-checked
// broker Order.
type Scheduler struct {
	store    Store
	cache    *marketdata.Cache
	klines   *marketdata.Klines
	broker   *broker.Broker
	risk     *risk.Filter
	notifier notify.Sink
	prices   broker.PriceLookup
	logger   *zap.Logger

	evaluators map[models.StrategyKind]strategy.Evaluator

	pollInterval  time.Duration
	shutdownGrace time.Duration
	workers       chan struct{}

	locks      sync.Map // strategy ID -> *sync.Mutex
	mu         sync.Mutex
	runCancels map[uint]context.CancelFunc
	wg         sync.WaitGroup
}

// New builds a Scheduler. evaluators must have an entry for every
// models.StrategyKind the caller intends to run.
func New(
	store Store,
	cache *marketdata.Cache,
	klines *marketdata.Klines,
	brk *broker.Broker,
	riskFilter *risk.Filter,
	notifier notify.Sink,
	prices broker.PriceLookup,
	evaluators map[models.StrategyKind]strategy.Evaluator,
	workerPoolSize int,
	shutdownGrace time.Duration,
	logger *zap.Logger,
) *Scheduler {
	if workerPoolSize < 1 {
		workerPoolSize = 1
	}
	return &Scheduler{
		store:         store,
		cache:         cache,
		klines:        klines,
		broker:        brk,
		risk:          riskFilter,
		notifier:      notifier,
		prices:        prices,
		logger:        logger,
		evaluators:    evaluators,
		pollInterval:  time.Second,
		shutdownGrace: shutdownGrace,
		workers:       make(chan struct{}, workerPoolSize),
		runCancels:    make(map[uint]context.CancelFunc),
	}
}

// Run polls for due strategies until ctx is cancelled, then waits up to
// shutdownGrace for in-flight runs before force-cancelling the rest.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("poll_interval", s.pollInterval))

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// shutdown stops accepting new runs (the caller has already stopped
// calling dispatchDue by returning from Run) and gives in-flight runs up
// to shutdownGrace to finish before cancelling their contexts. A run whose
// context is cancelled by the time its evaluator returns closes its RunLog
// as FAILED/"shutdown".
func (s *Scheduler) shutdown() {
	s.logger.Info("scheduler stopping, waiting for in-flight runs", zap.Duration("grace", s.shutdownGrace))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped cleanly")
		return
	case <-time.After(s.shutdownGrace):
	}

	s.mu.Lock()
	for id, cancel := range s.runCancels {
		s.logger.Warn("force-cancelling in-flight run past shutdown grace", zap.Uint("strategy_id", id))
		cancel()
	}
	s.mu.Unlock()

	<-done
	s.logger.Info("scheduler stopped after forced cancellation")
}

// dispatchDue loads ACTIVE strategies and submits the due ones to the
// worker pool, skipping any already running under its per-strategy lock.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	var strategies []models.Strategy
	if err := s.store.DB().Where("status = ?", models.StrategyActive).Find(&strategies).Error; err != nil {
		s.logger.Error("scheduler: list active strategies", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for i := range strategies {
		st := strategies[i]
		if st.LastRunAt != nil && now.Sub(*st.LastRunAt) < time.Duration(st.ScheduleInterval)*time.Second {
			continue
		}
		s.submit(ctx, st)
	}
}

// submit acquires the strategy's non-reentrant lock and, if free, runs it
// on the worker pool. A strategy already mid-run is silently skipped.
func (s *Scheduler) submit(ctx context.Context, st models.Strategy) {
	lockAny, _ := s.locks.LoadOrStore(st.ID, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	if !lock.TryLock() {
		return
	}

	// Detached from Run's ctx so shutdown can grant the grace period; the
	// run is cancelled only through runCancels.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.runCancels[st.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	s.workers <- struct{}{}
	go func() {
		defer func() {
			<-s.workers
			s.mu.Lock()
			delete(s.runCancels, st.ID)
			s.mu.Unlock()
			cancel()
			lock.Unlock()
			s.wg.Done()
		}()
		s.runTick(runCtx, st)
	}()
}

// TriggerRun runs a single strategy immediately, outside its schedule,
// for the admin surface's manual-run action. It still respects the
// non-reentrant lock: a strategy already mid-run returns
// ErrAlreadyRunning.
func (s *Scheduler) TriggerRun(ctx context.Context, strategyID uint) error {
	var st models.Strategy
	if err := s.store.DB().First(&st, strategyID).Error; err != nil {
		return fmt.Errorf("scheduler: load strategy: %w", err)
	}

	lockAny, _ := s.locks.LoadOrStore(st.ID, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	if !lock.TryLock() {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.runCancels[st.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	defer func() {
		s.mu.Lock()
		delete(s.runCancels, st.ID)
		s.mu.Unlock()
		cancel()
		lock.Unlock()
		s.wg.Done()
	}()
	s.runTick(runCtx, st)
	return nil
}

// ErrAlreadyRunning is returned by TriggerRun when the strategy is
// currently mid-tick.
var ErrAlreadyRunning = errors.New("scheduler: strategy is already running")

// runTick implements the ten-step procedure of spec.md §4.6 for a single
// strategy evaluation.
func (s *Scheduler) runTick(ctx context.Context, st models.Strategy) {
	var fresh models.Strategy
	if err := s.store.DB().First(&fresh, st.ID).Error; err != nil {
		s.logger.Error("scheduler: reload strategy before run", zap.Uint("strategy_id", st.ID), zap.Error(err))
		return
	}
	if fresh.Status != models.StrategyActive {
		return
	}
	st = fresh

	run := runState{
		startedAt: time.Now().UTC(),
	}

	evaluator, ok := s.evaluators[st.Kind]
	if !ok {
		s.finish(&st, &run, models.RunFailed, fmt.Sprintf("no evaluator registered for kind %s", st.Kind), strategy.Trace{})
		return
	}

	snapshot, err := s.broker.Snapshot(ctx)
	if err != nil {
		s.finish(&st, &run, models.RunFailed, fmt.Sprintf("account snapshot: %v", err), strategy.Trace{})
		s.handleFailure(&st)
		return
	}

	var position models.Position
	_ = s.store.DB().Where("symbol = ?", st.Symbol).First(&position).Error

	mctx := strategy.MarketContext{
		Ctx:    ctx,
		Cache:  s.cache,
		Klines: s.klines,
		Now:    time.Now().UTC(),
		Account: strategy.AccountView{
			Cash:                snapshot.Cash,
			Equity:              snapshot.Equity,
			EquityHighWaterMark: snapshot.Equity,
			PositionAmount:      position.Amount,
			PositionAverageCost: position.AverageCost,
		},
	}
	var account models.Account
	if err := s.store.DB().First(&account).Error; err == nil {
		mctx.Account.EquityHighWaterMark = account.EquityHighWaterMark
	}

	decision, trace, err := evaluator.Evaluate(&st, mctx)
	if ctx.Err() != nil {
		s.finish(&st, &run, models.RunFailed, "shutdown", trace)
		return
	}
	if err != nil {
		s.finish(&st, &run, models.RunFailed, err.Error(), trace)
		s.handleFailure(&st)
		return
	}

	lastPrice, havePrice := s.prices.LastPrice(ctx, st.Symbol)
	s.recordSignal(&st, decision, lastPrice)

	if decision.Action == models.ActionHold {
		s.finish(&st, &run, models.RunOK, decision.Reason, trace)
		s.persistParameters(&st)
		return
	}

	riskOrder := risk.Order{
		Symbol:   st.Symbol,
		Side:     sideFromAction(decision.Action),
		Notional: decision.SuggestedNotional,
	}
	accountState := risk.AccountState{
		Equity:               snapshot.Equity,
		EquityHighWaterMark:  mctx.Account.EquityHighWaterMark,
		CircuitBreakerActive: account.CircuitBreakerActive,
		SymbolPositionValue:  positionValue(position, lastPrice, havePrice),
	}

	verdict, err := s.risk.Evaluate(riskOrder, accountState)
	if err != nil {
		s.finish(&st, &run, models.RunFailed, fmt.Sprintf("risk evaluation: %v", err), trace)
		s.persistParameters(&st)
		s.handleFailure(&st)
		return
	}
	if !verdict.Accepted {
		trace.Add(strategy.TraceStep{
			Kind:    models.TraceOrder,
			Label:   "veto",
			Details: map[string]any{"reason": verdict.Reason},
		})
		s.finish(&st, &run, models.RunVetoed, string(verdict.Reason), trace)
		s.persistParameters(&st)
		s.notifier.Notify(ctx, notify.Event{
			ID: uuid.NewString(), Kind: "veto", StrategyID: st.ID, Symbol: st.Symbol,
			Reason: string(verdict.Reason), Detail: decision.Reason,
		})
		return
	}

	brokerOrder, err := toBrokerOrder(st, decision, lastPrice, havePrice)
	if err != nil {
		s.finish(&st, &run, models.RunFailed, err.Error(), trace)
		s.persistParameters(&st)
		s.handleFailure(&st)
		return
	}

	trade, err := s.broker.Execute(ctx, brokerOrder)
	if err != nil {
		s.finish(&st, &run, models.RunFailed, fmt.Sprintf("execute: %v", err), trace)
		s.persistParameters(&st)
		s.handleFailure(&st)
		return
	}

	trace.Add(strategy.TraceStep{
		Kind:  models.TraceOrder,
		Label: "executed",
		Details: map[string]any{
			"side": trade.Side, "price": trade.Price, "amount": trade.Amount, "value": trade.Value,
		},
	})
	s.notifier.Notify(ctx, notify.Event{
		ID: uuid.NewString(), Kind: "trade", StrategyID: st.ID, Symbol: st.Symbol,
		Reason: decision.Reason, Detail: fmt.Sprintf("%s %.6f @ %.2f", trade.Side, trade.Amount, trade.Price),
	})

	s.finish(&st, &run, models.RunOK, decision.Reason, trace)
	s.persistParameters(&st)
}

// runState tracks timing for the run currently being closed out.
type runState struct {
	startedAt time.Time
}

// finish persists the RunLog, its trace steps, and the strategy's
// last_run_at in one writer transaction.
func (s *Scheduler) finish(st *models.Strategy, run *runState, outcome models.RunOutcome, reason string, trace strategy.Trace) {
	now := time.Now().UTC()
	runLog := models.RunLog{
		StrategyID: st.ID,
		StartedAt:  run.startedAt,
		FinishedAt: &now,
		Outcome:    outcome,
		Reason:     reason,
	}
	for i, step := range trace.Steps {
		details, _ := json.Marshal(step.Details)
		runLog.Steps = append(runLog.Steps, models.TraceStep{
			StepIndex:    i + 1,
			Kind:         step.Kind,
			Label:        step.Label,
			InputDigest:  step.InputDigest,
			OutputDigest: step.OutputDigest,
			Details:      details,
			Duration:     step.Duration,
		})
	}

	err := s.store.Write(func(tx *gorm.DB) error {
		if err := tx.Create(&runLog).Error; err != nil {
			return fmt.Errorf("create run log: %w", err)
		}
		return tx.Model(&models.Strategy{}).Where("id = ?", st.ID).Update("last_run_at", now).Error
	})
	if err != nil {
		s.logger.Error("scheduler: persist run log", zap.Uint("strategy_id", st.ID), zap.Error(err))
	}
}

// persistParameters writes back any in-memory Strategy.Parameters mutation
// an evaluator made (grid's level_index, for instance), plus the Status when
// the evaluator moved it off ACTIVE (grid's out-of-range PAUSED).
func (s *Scheduler) persistParameters(st *models.Strategy) {
	updates := map[string]any{}
	if len(st.Parameters) > 0 {
		updates["parameters"] = st.Parameters
	}
	if st.Status != models.StrategyActive {
		updates["status"] = st.Status
	}
	if len(updates) == 0 {
		return
	}
	if err := s.store.Write(func(tx *gorm.DB) error {
		return tx.Model(&models.Strategy{}).Where("id = ?", st.ID).Updates(updates).Error
	}); err != nil {
		s.logger.Error("scheduler: persist strategy parameters", zap.Uint("strategy_id", st.ID), zap.Error(err))
	}
}

// recordSignal appends a Signal for every evaluation, whether or not it
// produced a trade (spec.md §4.6 step 7).
func (s *Scheduler) recordSignal(st *models.Strategy, decision strategy.Decision, lastPrice float64) {
	signal := models.Signal{
		StrategyID:    st.ID,
		Symbol:        st.Symbol,
		Action:        decision.Action,
		Conviction:    decision.Conviction,
		PriceAtSignal: lastPrice,
		Reason:        decision.Reason,
	}
	if err := s.store.Write(func(tx *gorm.DB) error {
		return tx.Create(&signal).Error
	}); err != nil {
		s.logger.Error("scheduler: persist signal", zap.Uint("strategy_id", st.ID), zap.Error(err))
	}
}

// handleFailure transitions a strategy from ACTIVE to ERROR once it has
// accumulated failureThreshold FAILED runs within failureWindow (spec.md
// §4.6).
func (s *Scheduler) handleFailure(st *models.Strategy) {
	var count int64
	since := time.Now().UTC().Add(-failureWindow)
	err := s.store.DB().Model(&models.RunLog{}).
		Where("strategy_id = ? AND outcome = ? AND started_at >= ?", st.ID, models.RunFailed, since).
		Count(&count).Error
	if err != nil {
		s.logger.Error("scheduler: count recent failures", zap.Uint("strategy_id", st.ID), zap.Error(err))
		return
	}
	if count < failureThreshold {
		return
	}
	if err := s.store.Write(func(tx *gorm.DB) error {
		return tx.Model(&models.Strategy{}).Where("id = ?", st.ID).Update("status", models.StrategyError).Error
	}); err != nil {
		s.logger.Error("scheduler: transition strategy to error", zap.Uint("strategy_id", st.ID), zap.Error(err))
		return
	}
	s.logger.Warn("strategy disabled after repeated failures",
		zap.Uint("strategy_id", st.ID), zap.Int64("failures_in_window", count))
}

func sideFromAction(a models.Action) models.Side {
	if a == models.ActionSell {
		return models.SideSell
	}
	return models.SideBuy
}

func positionValue(position models.Position, lastPrice float64, havePrice bool) float64 {
	if position.Amount == 0 {
		return 0
	}
	if havePrice {
		return position.Amount * lastPrice
	}
	return position.Amount * position.AverageCost
}

// toBrokerOrder translates a Decision's always-in-dollars SuggestedNotional
// into the broker's Order shape: BUY stays a quote-currency notional,
// SELL is converted to a base-asset amount via the last traded price.
func toBrokerOrder(st models.Strategy, decision strategy.Decision, lastPrice float64, havePrice bool) (broker.Order, error) {
	side := sideFromAction(decision.Action)
	notionalOrAmount := decision.SuggestedNotional

	if side == models.SideSell {
		if !havePrice || lastPrice <= 0 {
			return broker.Order{}, fmt.Errorf("no last price available to convert sell notional for %s", st.Symbol)
		}
		notionalOrAmount = decision.SuggestedNotional / lastPrice
	}

	return broker.Order{
		Symbol:           st.Symbol,
		Side:             side,
		NotionalOrAmount: notionalOrAmount,
		Reason:           decision.Reason,
		StrategyID:       st.ID,
	}, nil
}

// CachePriceLookup implements broker.PriceLookup and risk's price needs
// over the market data cache's ticker_24h source, shared by the broker
// and the scheduler's own risk-filter wiring.
type CachePriceLookup struct {
	Cache *marketdata.Cache
}

// LastPrice resolves symbol's most recent ticker_24h reading, fresh or
// stale; only a never-populated key reports ok=false.
func (p *CachePriceLookup) LastPrice(ctx context.Context, symbol string) (float64, bool) {
	res := p.Cache.Get(ctx, marketdata.TickerKey(symbol))
	if !res.Ok() {
		return 0, false
	}
	switch v := res.Value.(type) {
	case providers.Ticker24h:
		return v.LastPrice, true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// AccountBreakerSetter implements risk.BreakerSetter against the embedded
// store's singleton Account row (spec.md §4.4: the filter, not the
// broker, owns this write).
type AccountBreakerSetter struct {
	Store Store
}

func (a *AccountBreakerSetter) SetCircuitBreaker(active bool, reason string) error {
	return a.Store.Write(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.First(&account).Error; err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		return tx.Model(&account).Updates(map[string]any{
			"circuit_breaker_active": active,
			"circuit_breaker_reason": reason,
		}).Error
	})
}
