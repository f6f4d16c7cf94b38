package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/panjf2000/ants/v2"

	"github.com/roach88/deployer/internal/artifacts"
	"github.com/roach88/deployer/internal/chain"
	"github.com/roach88/deployer/internal/ir"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/loader"
	"github.com/roach88/deployer/internal/resolve"
	"github.com/roach88/deployer/internal/state"
	"github.com/roach88/deployer/internal/strategy"
)

// Engine executes a module's futures against a chain, journaling every step.
//
// Futures run in batches: a batch is every non-terminal future whose
// dependencies all succeeded. Futures of a batch advance concurrently on a
// bounded worker pool; journal writes are serialized through apply, so the
// journal is a total order and state is only ever replaced, never mutated.
//
// Thread-safety model:
//   - Execute: one call at a time per Engine
//   - apply: safe from any worker; holds mu for record+fold+emit
type Engine struct {
	loader    loader.Loader
	client    *chain.Client
	sender    chain.Sender
	resolver  artifacts.Resolver
	cfg       Config
	strategy  strategy.Strategy
	params    resolve.Parameters
	defSender common.Address
	listener  Listener
	logger    *slog.Logger
	wall      WallClock
	runIDs    RunIDGenerator
	clock     *Clock

	mu       sync.Mutex
	state    *state.DeploymentState
	events   *dispatcher
	lastSent map[interactionKey]time.Time
	seen     map[interactionKey]bool

	chainID  uint64
	accounts []common.Address
	nonces   *NonceManager
	fees     *FeePolicy
	quota    *BumpQuota
}

type interactionKey struct {
	futureID string
	id       int
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the execution knobs.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithStrategy sets the strategy used for futures that have not started yet.
// Started futures keep the strategy they were journaled with.
func WithStrategy(s strategy.Strategy) Option {
	return func(e *Engine) { e.strategy = s }
}

// WithParameters sets module parameters.
func WithParameters(p resolve.Parameters) Option {
	return func(e *Engine) { e.params = p }
}

// WithDefaultSender sets the account used when a future names no sender.
func WithDefaultSender(addr common.Address) Option {
	return func(e *Engine) { e.defSender = addr }
}

// WithArtifacts sets the resolver for named artifacts.
func WithArtifacts(r artifacts.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithListener sets the event listener.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listener = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithWallClock replaces the system clock, for tests.
func WithWallClock(c WallClock) Option {
	return func(e *Engine) { e.wall = c }
}

// WithRunIDGenerator replaces the UUIDv7 run id generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// New creates an Engine that records to l and talks to the chain through
// client and sender.
func New(l loader.Loader, client *chain.Client, sender chain.Sender, opts ...Option) *Engine {
	e := &Engine{
		loader:   l,
		client:   client,
		sender:   sender,
		cfg:      DefaultConfig(),
		strategy: strategy.Basic{},
		listener: Listeners{},
		logger:   slog.Default(),
		wall:     SystemClock{},
		runIDs:   UUIDv7Generator{},
		clock:    NewClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg = e.cfg.withDefaults()
	return e
}

// Execute runs every future of g to a terminal status, starting from st, the
// replayed journal (nil for a new deployment). It returns a Result for any
// run that got to execute; the error is non-nil only when the run halted.
func (e *Engine) Execute(ctx context.Context, g *ir.Graph, st *state.DeploymentState) (*Result, error) {
	if st == nil {
		st = &state.DeploymentState{ExecutionStates: map[string]state.ExecutionState{}}
	}
	e.state = st
	e.lastSent = make(map[interactionKey]time.Time)
	e.seen = make(map[interactionKey]bool)
	e.events = startDispatcher(e.listener)
	defer e.events.Stop()

	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	e.chainID = chainID
	e.accounts, err = e.sender.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}
	e.nonces = NewNonceManager(e.client, st)
	e.fees = NewFeePolicy(e.client, e.cfg, e.logger)
	e.quota = NewBumpQuota(e.cfg.MaxFeeBumps, e.cfg.MaxFeePerGasLimit)

	runID := e.runIDs.Generate()
	logger := e.logger.With("run", runID)
	if _, err := e.apply(ctx, journal.RunStart{RunID: runID, ChainID: chainID}); err != nil {
		return nil, err
	}

	msgs, err := SyncNonces(ctx, e.client, e.snapshot(), e.accounts)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		logger.Warn("interaction replaced by a foreign transaction", "future", journal.FutureID(m))
		if _, err := e.apply(ctx, m); err != nil {
			return nil, err
		}
	}

	if err := e.runBatches(ctx, g); err != nil {
		return nil, err
	}

	res := BuildResult(runID, g, e.snapshot())
	e.events.queue.Enqueue(Event{Seq: e.clock.Next(), Type: EventDeploymentComplete, Result: res})
	logger.Info("deployment finished", "status", res.Status, "successful", len(res.Successful))
	return res, nil
}

// State returns the current deployment state.
func (e *Engine) State() *state.DeploymentState {
	return e.snapshot()
}

func (e *Engine) snapshot() *state.DeploymentState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// apply folds m into the state and, if that succeeds, records it. A message
// the reducers reject is never journaled.
func (e *Engine) apply(ctx context.Context, m journal.Message) (*state.DeploymentState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := state.Apply(e.state, m)
	if err != nil {
		return nil, runtimeErr(ErrCodeJournal, journal.FutureID(m), 0, "apply "+string(m.Type()), err)
	}
	if err := e.loader.RecordToJournal(ctx, m); err != nil {
		return nil, runtimeErr(ErrCodeJournal, journal.FutureID(m), 0, "record "+string(m.Type()), err)
	}
	e.state = next

	ev := Event{Seq: e.clock.Next(), Type: eventFor(m), FutureID: journal.FutureID(m), Message: m}
	if es, ok := next.Get(ev.FutureID); ok {
		ev.Status = es.Meta().Status
	}
	e.events.queue.Enqueue(ev)
	return next, nil
}

func (e *Engine) runBatches(ctx context.Context, g *ir.Graph) error {
	pool, err := ants.NewPool(e.cfg.MaxConcurrency)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var last []string
	for {
		batch := readyFutures(g, e.snapshot())
		if len(batch) == 0 {
			return nil
		}
		ids := futureIDs(batch)
		if !slices.Equal(ids, last) {
			e.logger.Debug("batch", "futures", ids)
			e.events.queue.Enqueue(Event{Seq: e.clock.Next(), Type: EventBatch, Batch: ids})
			last = ids
		}

		waiting, err := e.runBatch(ctx, pool, batch)
		if err != nil {
			return err
		}
		if waiting {
			if err := e.wall.Sleep(ctx, e.cfg.BlockPollingInterval); err != nil {
				return err
			}
		}
	}
}

// runBatch advances every future of batch once. It reports whether any
// future is waiting on the chain. All futures of the batch get their turn
// before an error is returned.
func (e *Engine) runBatch(ctx context.Context, pool *ants.Pool, batch []ir.Future) (bool, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		waiting bool
		errs    = make([]error, len(batch))
	)
	for i, f := range batch {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			w, err := e.advance(ctx, f)
			if err != nil {
				errs[i] = err
				return
			}
			if w {
				mu.Lock()
				waiting = true
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit %s: %w", f.ID(), err)
		}
	}
	wg.Wait()
	return waiting, errors.Join(errs...)
}

// readyFutures returns the futures of g, in topological order, that are not
// terminal and whose dependencies all succeeded.
func readyFutures(g *ir.Graph, st *state.DeploymentState) []ir.Future {
	var out []ir.Future
	for _, f := range g.Futures() {
		if es, ok := st.Get(f.ID()); ok && es.Meta().Status.IsTerminal() {
			continue
		}
		ready := true
		for _, dep := range f.Dependencies() {
			es, ok := st.Get(dep)
			if !ok || es.Meta().Status != state.StatusSuccess {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, f)
		}
	}
	return out
}

func futureIDs(fs []ir.Future) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.ID()
	}
	return out
}

func (e *Engine) resolveContext(st *state.DeploymentState) resolve.Context {
	return resolve.Context{State: st, Parameters: e.params, Accounts: e.accounts, DefaultSender: e.defSender}
}

// strategyFor returns the strategy a started future was journaled with.
func (e *Engine) strategyFor(meta state.Common) (strategy.Strategy, error) {
	if meta.Strategy == "" || meta.Strategy == e.strategy.Name() {
		return e.strategy, nil
	}
	return strategy.New(meta.Strategy, meta.StrategyConfig)
}

// markSent restarts the interaction's clock. The new transaction has not
// been seen by the node yet.
func (e *Engine) markSent(futureID string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := interactionKey{futureID, id}
	e.lastSent[k] = e.wall.Now()
	delete(e.seen, k)
}

func (e *Engine) markSeen(futureID string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen[interactionKey{futureID, id}] = true
}

func (e *Engine) wasSeen(futureID string, id int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seen[interactionKey{futureID, id}]
}

// sentAt returns when the interaction's latest transaction was sent in this
// run. Interactions resumed from the journal start their clock on first
// sight.
func (e *Engine) sentAt(futureID string, id int) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := interactionKey{futureID, id}
	t, ok := e.lastSent[k]
	if !ok {
		t = e.wall.Now()
		e.lastSent[k] = t
	}
	return t
}
