// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shmlink/lib/version"
)

const usage = `usage: shmlink <command> [flags]

Commands:
  serve     accept local sessions and forward each over a new link
  attach    accept links and connect each to the local display
  version   print version information

Run "shmlink <command> --help" for command flags.
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("no command given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command, rest := args[0], args[1:]; command {
	case "serve":
		return serve(ctx, rest)
	case "attach":
		return attach(ctx, rest)
	case "version", "--version":
		full := false
		flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
		flagSet.BoolVar(&full, "full", false, "include Go version, platform and protocol")
		if err := flagSet.Parse(rest); err != nil {
			return err
		}
		if full {
			fmt.Fprintf(stdout, "shmlink %s\n", version.Full())
		} else {
			fmt.Fprintf(stdout, "shmlink %s\n", version.Info())
		}
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}
