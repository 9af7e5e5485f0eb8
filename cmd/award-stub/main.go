// Command award-stub serves a local double of the streaming award provider.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/okian/milepost/internal/awardstub"
	"github.com/okian/milepost/pkg/logger"
)

const (
	searchPath      = "/awards/search"
	shutdownTimeout = 10 * time.Second
)

const longHelp = "award-stub answers POST " + searchPath + " with newline-delimited award records " +
	"for every requested carrier, alternating the direct and summary shapes."

type options struct {
	addr           string
	records        int
	delay          time.Duration
	malformedEvery int
	logFormat      string
}

func newCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "award-stub",
		Short:        "Serve a fake streaming award search endpoint",
		Long:         longHelp,
		Example:      "  award-stub --addr :9090 --records 4 --delay 200ms --malformed-every 5",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", ":9090", "listen address")
	f.IntVar(&opts.records, "records", awardstub.DefaultRecords, "records streamed per carrier")
	f.DurationVar(&opts.delay, "delay", awardstub.DefaultDelay, "pause before each record")
	f.IntVar(&opts.malformedEvery, "malformed-every", 0, "inject a malformed line before every Nth record (0 disables)")
	f.StringVar(&opts.logFormat, "log-format", logger.FormatText, "log format: text or json")
	return cmd
}

func newMux(cfg awardstub.Config) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST "+searchPath, awardstub.NewHandler(cfg))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func serve(ctx context.Context, opts *options) error {
	if opts.records < 0 || opts.malformedEvery < 0 || opts.delay < 0 {
		return errors.New("records, delay and malformed-every must not be negative")
	}
	if err := logger.Init(logger.WithFormat(opts.logFormat)); err != nil {
		return errors.Wrap(err, "configure logging")
	}
	log := logger.Get().Named("award-stub")

	srv := &http.Server{
		Addr: opts.addr,
		Handler: newMux(awardstub.Config{
			Records:        opts.records,
			Delay:          opts.delay,
			MalformedEvery: opts.malformedEvery,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "award stub listening",
			logger.String("addr", opts.addr),
			logger.Int("records", opts.records),
			logger.Duration("delay", opts.delay),
			logger.Int("malformedEvery", opts.malformedEvery))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return errors.Wrap(err, "listen")
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
