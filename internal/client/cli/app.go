package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/artforge/internal/client/models"
	"github.com/dmitrijs2005/artforge/internal/client/services"
	"github.com/dmitrijs2005/artforge/internal/logging"
)

// Entitlements is the part of the entitlement gate the CLI drives directly.
type Entitlements interface {
	State() models.EntitlementState
	Purchase(ctx context.Context, tier models.Tier) error
	Restore(ctx context.Context) error
}

// App is the interactive client. It owns no business state of its own; the
// generation service and the gate are the sources of truth.
type App struct {
	gen    services.GenerationService
	gate   Entitlements
	log    logging.Logger
	reader *bufio.Reader
	out    *syncWriter

	closers   []func() error
	closeOnce sync.Once
}

func NewApp(gen services.GenerationService, gate Entitlements, log logging.Logger, in io.Reader, out io.Writer) *App {
	return &App{
		gen:    gen,
		gate:   gate,
		log:    log,
		reader: bufio.NewReader(in),
		out:    &syncWriter{w: out},
	}
}

// Run starts the generation service, loads the history and serves the REPL
// until the user exits, the input ends or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- a.gen.Run(ctx) }()

	events, unsubscribe := a.gen.Subscribe()
	defer unsubscribe()
	go a.watch(ctx, events)

	if err := a.gen.LoadHistory(ctx); err != nil {
		a.log.Warn(ctx, "loading history failed", "error", err)
	}

	a.println(fmt.Sprintf("artforge ready, %s. Type 'help' for commands.", describePlan(a.gate.State())))
	runREPL(ctx, a, a.prompt, a.reader)

	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases resources registered by Build in reverse order. It is safe
// to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				a.log.Warn(context.Background(), "close failed", "error", err)
			}
		}
	})
}

// watch prints progress while a generation is running. Command results are
// printed by the commands themselves.
func (a *App) watch(ctx context.Context, events <-chan services.Event) {
	last := models.StatusIdle()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != services.EventStateChanged {
				a.log.Debug(ctx, "event", "type", ev.Type.String())
				continue
			}
			if ev.Status.IsLoading() && !ev.Status.SameKind(last) {
				a.println("  ..." + ev.Status.String())
			}
			last = ev.Status
		}
	}
}

// prompt renders the REPL prompt from the current generation status.
func (a *App) prompt() string {
	return a.gen.Snapshot().Model.Status.Kind.String()
}

func (a *App) println(args ...any) {
	a.out.println(args...)
}

// syncWriter serialises output from the REPL and the event watcher.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *syncWriter) println(args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, args...)
}
