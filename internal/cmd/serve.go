package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/teamwork/internal/event"
	"github.com/Iron-Ham/teamwork/internal/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run teammate workers until interrupted",
	Long: `Run a worker for every teammate with something to do, executing work with
execution.command. Serve recovers from its state file on start, reacts to
changes made by other teamwork commands, prints team events, and keeps the
state file current until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveStateFile     string
	serveMetricsAddr   string
	serveSnapshotEvery time.Duration
	serveQuiet         bool
)

func init() {
	serveCmd.Flags().StringVar(&serveStateFile, "state-file", "", "snapshot path (default <config dir>/state.json)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "serve /metrics here (overrides metrics.addr)")
	serveCmd.Flags().DurationVar(&serveSnapshotEvery, "snapshot-interval", 2*time.Second, "how often the state file is rewritten")
	serveCmd.Flags().BoolVarP(&serveQuiet, "quiet", "q", false, "do not print team events")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := openSession(sessionOptions{workers: true, metrics: true})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statePath := serveStateFile
	if statePath == "" {
		statePath = defaultStateFile()
	}
	snap, err := readSnapshot(statePath)
	if err != nil {
		return err
	}
	report, err := s.manager.ImportState(ctx, snap)
	if err != nil {
		return fmt.Errorf("failed to recover teams: %w", err)
	}
	s.logger.Info("serving",
		"teams", len(report.Teams), "workers_started", report.WorkersStarted, "state_file", statePath)
	if s.cfg.Execution.Command == "" {
		s.logger.Warn("execution.command is not set; work items will fail")
	}

	addr := serveMetricsAddr
	if addr == "" {
		addr = s.cfg.Metrics.Addr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.manager.WatchExternalChanges(gctx)
	})
	g.Go(func() error {
		return keepSnapshot(gctx, s, statePath, serveSnapshotEvery)
	})
	if !serveQuiet {
		g.Go(func() error {
			return printEvents(gctx, s, cmd.OutOrStdout())
		})
	}
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(s), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	// Stop workers before the last snapshot so interrupted work shows as queued.
	if err := s.manager.Close(); err != nil {
		s.logger.Warn("workers did not stop cleanly", "error", err.Error())
	}
	if err := writeSnapshot(s, statePath); err != nil {
		s.logger.Warn("final snapshot failed", "error", err.Error())
	}
	s.logger.Info("stopped")
	return runErr
}

func metricsMux(s *session) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func writeSnapshot(s *session, path string) error {
	snap, err := s.manager.ExportState()
	if err != nil {
		return err
	}
	return util.WriteJSONAtomic(path, snap)
}

// keepSnapshot rewrites the state file every interval until ctx is done.
func keepSnapshot(ctx context.Context, s *session, path string, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := writeSnapshot(s, path); err != nil {
			s.logger.Warn("snapshot failed", "path", path, "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// eventPollInterval is how often serve drains the event queues.
const eventPollInterval = 250 * time.Millisecond

// printEvents drains every team's event queue and prints one line per event.
func printEvents(ctx context.Context, s *session, out io.Writer) error {
	ticker := time.NewTicker(eventPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		names, err := s.manager.ListTeams()
		if err != nil {
			s.logger.Warn("list teams failed", "error", err.Error())
			continue
		}
		for _, name := range names {
			for _, rec := range s.manager.DrainEvents(name) {
				fmt.Fprintln(out, formatEvent(rec))
			}
		}
	}
}

func formatEvent(rec event.Record) string {
	line := fmt.Sprintf("%s %s %s", rec.TS.Local().Format("15:04:05"), rec.Team, rec.Type)
	if len(rec.Payload) > 0 {
		if data, err := json.Marshal(rec.Payload); err == nil {
			line += " " + string(data)
		}
	}
	return line
}
