package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chimerakang/changedesk"
	"github.com/chimerakang/changedesk/api"
	"github.com/chimerakang/changedesk/audit"
	"github.com/chimerakang/changedesk/config"
	"github.com/chimerakang/changedesk/logging"
	"github.com/chimerakang/changedesk/metrics"
	"github.com/chimerakang/changedesk/notify"
	"github.com/chimerakang/changedesk/routes"
	"github.com/chimerakang/changedesk/session"
	"github.com/chimerakang/changedesk/store"
)

// console holds everything a command needs.
type console struct {
	cfg    *config.Config
	out    io.Writer
	logger *slog.Logger
	client *changedesk.Client
	api    *api.Client
	guard  *session.Guard
	nav    *routes.History
	table  *routes.Table

	registry  *prometheus.Registry
	audit     *audit.Logger
	auditFile *os.File
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("changedesk", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	configPath := fs.String("config", os.Getenv("CHANGEDESK_CONFIG"), "YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return errSilent
	}
	if fs.NArg() == 0 {
		usage(stderr)
		return errSilent
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging()
	logCfg.Output = stderr
	logger := logging.New(logCfg)

	if cmd == "serve-fake" {
		return serveFake(ctx, rest, stdout, logger)
	}

	c, err := openConsole(ctx, cfg, logger, stdout)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.close(); cerr != nil {
			logger.Warn("shutdown", "error", cerr)
		}
	}()

	switch cmd {
	case "login":
		return c.login(ctx, rest, stderr)
	case "logout":
		c.guard.Logout()
		fmt.Fprintln(stdout, "Déconnecté")
		return nil
	case "whoami":
		return c.whoami()
	case "menu":
		return c.menu()
	case "routes":
		return c.listRoutes()
	case "open":
		if len(rest) != 1 {
			return errors.New("open requires exactly one path")
		}
		return c.open(ctx, rest[0])
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// openConsole wires the components and restores the persisted session.
func openConsole(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) (*console, error) {
	tokenStore, err := store.New(cfg.TokenStore(), store.Dependencies{})
	if err != nil {
		return nil, err
	}

	bus := notify.NewBus(nil)
	for _, level := range []changedesk.Level{changedesk.LevelSuccess, changedesk.LevelError, changedesk.LevelInfo} {
		label := strings.ToUpper(string(level))
		if err := bus.Subscribe(level, func(n changedesk.Notification) {
			fmt.Fprintf(stdout, "[%s] %s\n", label, n.Message)
		}); err != nil {
			_ = tokenStore.Close()
			return nil, fmt.Errorf("subscribe %s notifications: %w", level, err)
		}
	}

	nav := routes.NewHistory(routes.PathDashboard)
	client, err := changedesk.NewClient(cfg.Client(),
		changedesk.WithLogger(logger),
		changedesk.WithTokenStore(tokenStore),
		changedesk.WithNotifier(notify.Multi{bus, notify.NewLog(logger)}),
		changedesk.WithNavigator(nav),
	)
	if err != nil {
		_ = tokenStore.Close()
		return nil, err
	}

	c := &console{
		cfg:    cfg,
		out:    stdout,
		logger: logger,
		client: client,
		nav:    nav,
		table:  routes.Default(),
	}

	c.api, err = api.New(api.Config{BaseURL: client.Config().APIURL, Timeout: client.Config().Timeout}, api.WithLogger(logger))
	if err != nil {
		_ = c.close()
		return nil, err
	}

	var opts []session.Option
	if cfg.Metrics.Enabled {
		c.registry = prometheus.NewRegistry()
		opts = append(opts, session.WithMetrics(metrics.NewWithRegisterer(c.registry)))
	}
	if cfg.Audit.File != "" {
		c.auditFile, err = os.OpenFile(cfg.Audit.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			_ = c.close()
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		c.audit = audit.New(0, audit.WithWriterHandler(c.auditFile), audit.WithSlogHandler(logger))
		opts = append(opts, session.WithAudit(c.audit))
	}

	c.guard, err = session.New(client, c.api, opts...)
	if err != nil {
		_ = c.close()
		return nil, err
	}
	c.guard.Initialize(ctx)
	return c, nil
}

// close flushes audit and metrics output and releases the token store.
func (c *console) close() error {
	var errs []error
	if c.audit != nil {
		errs = append(errs, c.audit.Close())
	}
	if c.auditFile != nil {
		errs = append(errs, c.auditFile.Close())
	}
	if c.registry != nil && c.cfg.Metrics.File != "" {
		if err := prometheus.WriteToTextfile(c.cfg.Metrics.File, c.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	errs = append(errs, c.client.Close())
	return errors.Join(errs...)
}

func (c *console) login(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(stderr)
	username := fs.String("u", "", "username")
	password := fs.String("p", os.Getenv("CHANGEDESK_PASSWORD"), "password")
	if err := fs.Parse(args); err != nil {
		return errSilent
	}
	if *username == "" || *password == "" {
		return errors.New("login requires -u and -p (or CHANGEDESK_PASSWORD)")
	}
	if !c.guard.Login(ctx, *username, *password) {
		return errSilent
	}
	return c.whoami()
}

func (c *console) whoami() error {
	id := c.guard.Identity()
	if id == nil {
		fmt.Fprintln(c.out, "Non connecté")
		return nil
	}
	fmt.Fprintf(c.out, "%s (%s, id %d)\n", id.DisplayName, id.Role, id.ID)
	if !id.ExpiresAt.IsZero() {
		fmt.Fprintf(c.out, "session valid until %s\n", id.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func (c *console) menu() error {
	items := routes.Menu(c.guard)
	if len(items) == 0 {
		fmt.Fprintln(c.out, "Non connecté")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(c.out, "%-18s %s\n", item.Path, item.Label)
	}
	return nil
}

// open navigates to path and renders the page the route gate allows.
func (c *console) open(ctx context.Context, path string) error {
	c.guard.Revalidate(ctx)

	requested := routes.Clean(path)
	c.nav.Push(requested)
	c.nav.Follow(c.table, c.guard)
	current := c.nav.Current()
	if current != requested {
		fmt.Fprintf(c.out, "→ %s\n", current)
	}

	if err := renderPage(ctx, c, current); err != nil {
		if c.nav.Current() != current {
			// An unauthorized response ended the session mid-render.
			fmt.Fprintf(c.out, "→ %s\n", c.nav.Current())
			return errSilent
		}
		return err
	}
	return nil
}

// listRoutes prints every route with what its gate decides for the session.
func (c *console) listRoutes() error {
	for _, r := range c.table.Routes() {
		d := r.Gate(c.guard)
		access := d.Outcome.String()
		if d.Outcome == routes.Redirect {
			access += " " + d.Target
		}
		fmt.Fprintf(c.out, "%-18s %-22s %s\n", r.Path, r.Title, access)
	}
	return nil
}
