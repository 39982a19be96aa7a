package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/commands/server"
	"github.com/tendermint/tendermint/libs/log"
)

func init() {
	flag.CommandLine.Usage = helpMessage
}

func helpMessage() {
	fmt.Println("clearpayd")
	fmt.Println("          Vendor verified payments with escrow fallback")
	fmt.Println("")
	fmt.Println("help      Print this message")
	fmt.Println("start     Run the HTTP API")
	fmt.Println("migrate   Create or update the database schema")
	fmt.Println("seed      Save the configured vendors")
	fmt.Println("version   Print the app version")
	fmt.Println(`
Every command but help and version accepts:
  -config string
        configuration file, environment only if empty
  -debug
        call stack returned on error`)
}

func main() {
	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout)).
		With("module", "clearpay")

	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Println("Missing command:")
		helpMessage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	rest := flag.Args()[1:]

	var err error
	switch cmd {
	case "help":
		helpMessage()
	case "start":
		err = server.StartCmd(logger, rest)
	case "migrate":
		err = server.MigrateCmd(logger, rest)
	case "seed":
		err = server.SeedCmd(logger, rest)
	case "version":
		fmt.Println(clearpay.Version())
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}

	if err != nil {
		fmt.Printf("Error: %+v\n\n", err)
		helpMessage()
		os.Exit(1)
	}
}
