package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/chimerakang/changedesk"
	"github.com/chimerakang/changedesk/fake"
)

// serveFake runs the in-memory bureau API with a demo dataset until ctx ends.
func serveFake(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("serve-fake", flag.ContinueOnError)
	addr := fs.String("addr", ":3000", "listen address")
	ttl := fs.Duration("token-ttl", 24*time.Hour, "lifetime of issued tokens")
	if err := fs.Parse(args); err != nil {
		return errSilent
	}

	srv := fake.New(
		fake.WithTokenTTL(*ttl),
		fake.WithUser(1, "admin", "admin123", changedesk.RoleAdmin, "Administrateur"),
		fake.WithUser(2, "superviseur", "super123", changedesk.RoleSupervisor, ""),
		fake.WithUser(3, "caissier", "caisse123", changedesk.RoleCashier, "Caissier Principal"),
		fake.WithCurrency("EUR", "Euro", "€", 655.957, 655.957, true),
		fake.WithCurrency("USD", "Dollar américain", "$", 600, 610, true),
		fake.WithCurrency("GBP", "Livre sterling", "£", 760, 775, false),
	)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()
	fmt.Fprintf(stdout, "fake API listening on http://%s\n", ln.Addr())
	logger.Info("fake api started", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
