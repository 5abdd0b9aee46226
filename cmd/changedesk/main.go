// Command changedesk is a terminal console for the bureau de change back office.
//
//	changedesk [-config file] login -u alice -p secret
//	changedesk whoami
//	changedesk menu
//	changedesk routes
//	changedesk open /transactions
//	changedesk logout
//	changedesk serve-fake -addr :3000
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errSilent) {
			_, _ = fmt.Fprintf(os.Stderr, "changedesk: %v\n", err)
		}
		os.Exit(1)
	}
}

// errSilent fails the command after the user was already told why.
var errSilent = errors.New("failed")

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: changedesk [-config file] <command> [args]

commands:
  login -u user [-p password]   sign in (password also read from CHANGEDESK_PASSWORD)
  logout                        sign out
  whoami                        show the current identity
  menu                          list the pages available to you
  routes                        list every page and what you would see there
  open <path>                   show a page, e.g. /transactions
  serve-fake [-addr :3000]      run an in-memory API for demos`)
}
