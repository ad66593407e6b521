// Package main implements lotteryd, the lottery betting and settlement
// service, and its operator commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/lottery_layer/internal/cli"
	"github.com/R3E-Network/lottery_layer/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `usage: lotteryd <command> [flags]

commands:
  serve        run the HTTP API and scheduler
  migrate      up | down [-steps n] | status
  import       upload the combination list of a draw
  result       deliver a draw result and settle its bets
  sync         pull results from the feed once
  roll         advance the next draw date of every lottery
  completion   print a shell completion script (bash, zsh, fish)
  version      print the version
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		cli.NewPrinter(os.Stderr).Error("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	p := cli.NewPrinter(out)

	switch cmd {
	case "serve":
		return serve(ctx, rest)
	case "migrate":
		return migrate(rest, p)
	case "import":
		return importCombinations(ctx, rest, p)
	case "result":
		return deliverResult(ctx, rest, p)
	case "sync":
		return syncResults(ctx, rest, p)
	case "roll":
		return rollDraws(ctx, rest, p)
	case "completion":
		if len(rest) != 1 {
			return fmt.Errorf("%w: completion needs a shell name", errUsage)
		}
		return cli.GenerateCompletion(out, rest[0])
	case "version":
		fmt.Fprintf(out, "lotteryd %s\n", version)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// newFlagSet returns a flag set with the shared -config flag.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("config", "", "configuration file path")
	return fs, path
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPath(path, false)
}
