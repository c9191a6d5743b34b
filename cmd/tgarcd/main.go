package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pcruz7/tgarc/internal/daemon"
	"github.com/pcruz7/tgarc/internal/session"
	"go.uber.org/fx"
)

func main() {
	accountFlag := flag.String("account", "", "account name (overrides config default)")
	flag.Parse()

	account := session.Resolve(*accountFlag)
	if err := session.ValidateName(account); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	client, err := newRemoteClient(account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Account: account, Client: client}),
	)

	app.Run()
}
