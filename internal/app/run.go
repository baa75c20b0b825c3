package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/devmgr/internal/console"
	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/events"
)

// shutdownTimeout bounds the device teardown on exit.
const shutdownTimeout = 10 * time.Second

// Run boots the board and then serves until ctx ends. Interactive runs hand
// the terminal to the console instead. Without an HTTP server or a console
// there is nothing to serve: the tree is printed and Run returns.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	defer func() {
		err = errors.Join(err, a.shutdown(context.WithoutCancel(ctx)))
	}()

	if a.config.PublishURL != "" {
		pub, err := events.DialPublisher(ctx, events.PublisherConfig{
			URL:       a.config.PublishURL,
			Namespace: a.config.PublishNamespace,
		})
		if err != nil {
			return fmt.Errorf("failed to connect namespace publisher: %w", err)
		}
		a.publisher = pub
		a.bus.Attach(pub)
	}
	if err := a.startHTTPServer(ctx); err != nil {
		return err
	}

	a.logger.Info("🚀 Booting device tree...")
	if err := a.Boot(ctx); err != nil {
		return err
	}

	switch {
	case a.config.Interactive:
		con, err := console.New(a.coordinator, a.recorder, console.Config{})
		if err != nil {
			return err
		}
		return con.Run(ctx)
	case a.httpServer != nil:
		a.logger.Info("Serving until interrupted.")
		<-ctx.Done()
		return nil
	default:
		return a.tree.WriteYAML(a.outW)
	}
}

// shutdown tears the tree down and closes every sink and server.
func (a *App) shutdown(ctx context.Context) error {
	a.teardown(ctx, shutdownTimeout)
	a.coordinator.Close()

	var errs []error
	if err := a.closeHTTPServer(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.journal != nil {
		if n := a.journal.WriteErrors(); n > 0 {
			a.logger.Warn("Some events were not journaled.", "count", n)
		}
		if err := a.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.logger.Info("🏁 Device manager stopped.")
	return errors.Join(errs...)
}
