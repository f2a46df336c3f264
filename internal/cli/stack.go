package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/haggle/internal/config"
	"github.com/roach88/haggle/internal/contract"
	"github.com/roach88/haggle/internal/ir"
	"github.com/roach88/haggle/internal/ledger"
	"github.com/roach88/haggle/internal/notify"
	"github.com/roach88/haggle/internal/router"
	"github.com/roach88/haggle/internal/rules"
	"github.com/roach88/haggle/internal/view"
)

// maxCommandSize bounds one stdin command line.
const maxCommandSize = 1 << 20

// stack is one peer's wired components over its local databases.
type stack struct {
	cfg     *config.Config
	log     *ledger.SQLite
	view    *view.SQLite
	bus     notify.Bus
	replica *contract.Replica
	router  *router.Router
}

func openStack(ctx context.Context, cfg *config.Config) (_ *stack, err error) {
	s := &stack{cfg: cfg}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	for _, path := range []string{cfg.LedgerPath(), cfg.ViewDBPath()} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	if s.log, err = ledger.OpenSQLite(cfg.LedgerPath()); err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	if s.view, err = view.OpenSQLite(cfg.ViewDBPath()); err != nil {
		return nil, fmt.Errorf("open view: %w", err)
	}

	switch cfg.Bus.Driver {
	case "redis":
		if s.bus, err = notify.DialRedis(ctx, cfg.Bus.RedisAddr, cfg.Bus.Prefix); err != nil {
			return nil, err
		}
	default:
		s.bus = notify.NewMemory()
	}

	s.replica = contract.NewReplica(s.log, s.view)
	if s.router, err = router.New(cfg.Identity, s.log, s.view, s.bus); err != nil {
		return nil, err
	}

	slog.Info("node opened",
		"identity", cfg.Identity,
		"log", cfg.LedgerPath(),
		"view", cfg.ViewDBPath(),
		"bus", cfg.Bus.Driver,
		"contract", ir.ContractVersion,
	)
	return s, nil
}

// Close releases every opened component.
func (s *stack) Close() error {
	var errs []error
	if s.bus != nil {
		errs = append(errs, s.bus.Close())
	}
	if s.view != nil {
		errs = append(errs, s.view.Close())
	}
	if s.log != nil {
		errs = append(errs, s.log.Close())
	}
	return errors.Join(errs...)
}

// run starts the replica, the rule engine and the configured policies, and
// serves commands from in until it is exhausted or ctx is cancelled.
func (s *stack) run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runners := []func(context.Context) error{s.replica.Run}
	if s.cfg.Rules.Enabled {
		limiter := rules.NewLimiter(s.cfg.Rules.Limit, s.cfg.Rules.Window, time.Now)
		engine, err := rules.NewEngine(s.router, s.bus, rules.WithLimiter(limiter))
		if err != nil {
			return err
		}
		runners = append(runners, engine.Run)
	}
	if s.cfg.Seller.Enabled {
		seller := rules.NewSellerResponder(s.router, s.cfg.Seller.Listings, s.cfg.Seller.Interval)
		runners = append(runners, seller.Run)
	}
	if s.cfg.Buyer.Enabled {
		budget, err := s.cfg.Buyer.BudgetAmount()
		if err != nil {
			return err
		}
		buyer := rules.NewBuyerNegotiator(s.router, s.cfg.Buyer.Categories, budget, s.cfg.Buyer.Interval)
		runners = append(runners, buyer.Run)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range runners {
		g.Go(func() error { return run(gctx) })
	}

	// A blocked read on in must not hold up shutdown, so the reader is not
	// part of the group. End of input stops the node.
	if in != nil {
		go func() {
			defer cancel()
			if err := s.serve(gctx, in, out); err != nil {
				slog.Error("command input failed", "error", err)
			}
		}()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("node stopped")
	return nil
}

// serve handles one JSON command per line and writes one JSON reply per line.
func (s *stack) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCommandSize)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := enc.Encode(s.router.HandleJSON(ctx, line)); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
	return scanner.Err()
}
