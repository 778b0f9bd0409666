package web

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/se302/webtest/pkg/catalog"
)

// serverStartupTimeout is the time to wait for server startup before assuming success.
const serverStartupTimeout = 100 * time.Millisecond

// Watcher keeps the catalog fresh and reports new snapshots.
type Watcher interface {
	OnChange(fn func([]catalog.TestSuite))
	Watch(ctx context.Context, debounce time.Duration) error
}

// DashboardConfig holds configuration for dashboard initialization.
type DashboardConfig struct {
	Server   *Server       // configured web server
	Watcher  Watcher       // catalog watcher, nil disables file watching
	Debounce time.Duration // watcher debounce, zero for the catalog default
	Port     int           // port, for startup messages
}

// Dashboard runs the web server and the catalog watcher until shutdown.
type Dashboard struct {
	srv      *Server
	watcher  Watcher
	debounce time.Duration
	port     int
	info     *color.Color
	errColor *color.Color
}

// NewDashboard creates a new dashboard with the given configuration.
func NewDashboard(cfg DashboardConfig) *Dashboard {
	return &Dashboard{
		srv:      cfg.Server,
		watcher:  cfg.Watcher,
		debounce: cfg.Debounce,
		port:     cfg.Port,
		info:     color.New(color.FgCyan),
		errColor: color.New(color.FgRed),
	}
}

// Run starts the server and the watcher, and blocks until ctx is canceled.
// fails only if the server can't start, later errors are reported and ignored.
func (d *Dashboard) Run(ctx context.Context) error {
	srvErrCh, err := startServerAsync(ctx, d.srv, d.port)
	if err != nil {
		return err
	}

	var watchErrCh chan error
	if d.watcher != nil {
		d.watcher.OnChange(d.srv.CatalogUpdated)
		watchErrCh = make(chan error, 1)
		go func() {
			if watchErr := d.watcher.Watch(ctx, d.debounce); watchErr != nil {
				watchErrCh <- watchErr
			}
			close(watchErrCh)
		}()
	}

	d.info.Printf("web dashboard: http://localhost:%d\n", d.port)
	if d.srv.observers != nil {
		d.info.Printf("observer feed: http://localhost:%d/events\n", d.port)
	}
	d.info.Printf("press Ctrl+C to exit\n")

	return monitorErrors(ctx, srvErrCh, watchErrCh, d.errColor)
}

// startServerAsync starts a web server in the background and waits briefly for startup errors.
// returns the error channel for monitoring late errors, or an error if startup fails.
func startServerAsync(ctx context.Context, srv *Server, port int) (chan error, error) {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	// wait briefly for startup errors
	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("web server failed to start on port %d: %w", port, err)
		}
	case <-time.After(serverStartupTimeout):
		// server started successfully
	}

	return errCh, nil
}

// monitorErrors monitors server and watcher error channels until shutdown.
// a nil watcher channel means watching is disabled.
func monitorErrors(ctx context.Context, srvErrCh, watchErrCh chan error, errColor *color.Color) error {
	for {
		// exit when both channels are nil (closed and handled)
		if srvErrCh == nil && watchErrCh == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case srvErr, ok := <-srvErrCh:
			if !ok {
				srvErrCh = nil
				continue
			}
			if srvErr != nil && ctx.Err() == nil {
				errColor.Printf("web server error: %v\n", srvErr)
			}
		case watchErr, ok := <-watchErrCh:
			if !ok {
				watchErrCh = nil
				continue
			}
			if watchErr != nil && ctx.Err() == nil {
				errColor.Printf("catalog watcher error: %v\n", watchErr)
			}
		}
	}
}
