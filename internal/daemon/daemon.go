package daemon

import (
	"context"
	stderrors "errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/karolberezicki/content-search-lucene/internal/inbox"
	"github.com/karolberezicki/content-search-lucene/internal/service"
)

// Daemon runs the socket server, the background flush and, when
// configured, the drop-folder inbox over one service.
type Daemon struct {
	cfg     Config
	svc     *service.Service
	server  *Server
	pidFile *PIDFile
	flusher *Flusher
}

// New creates a daemon for svc. The caller keeps ownership of svc.
func New(cfg Config, svc *service.Service) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Daemon{
		cfg:     cfg,
		svc:     svc,
		server:  NewServer(cfg.SocketPath, cfg.Timeout, svc),
		pidFile: NewPIDFile(cfg.PIDPath),
		flusher: NewFlusher(svc.ProcessQueue, cfg.FlushInterval, cfg.QuietPeriod),
	}
	d.server.OnUpdate(d.flusher.Nudge)
	return d, nil
}

// Run blocks until ctx is cancelled or a component fails.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.pidFile.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := d.pidFile.Release(); err != nil {
			slog.Warn("pid_file_release_failed", slog.String("error", err.Error()))
		}
	}()

	d.flusher.Start(ctx)
	defer d.flusher.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.server.ListenAndServe(gctx)
	})
	if d.cfg.InboxDir != "" {
		in := inbox.New(d.cfg.InboxDir, d.svc, inbox.WithIngestHook(func(int) { d.flusher.Nudge() }))
		g.Go(func() error {
			return in.Run(gctx)
		})
	}

	slog.Info("daemon_started",
		slog.String("socket", d.cfg.SocketPath),
		slog.Duration("flush_interval", d.cfg.FlushInterval),
		slog.String("inbox", d.cfg.InboxDir))

	err := g.Wait()
	slog.Info("daemon_stopped")
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
