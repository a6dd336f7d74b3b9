// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shmlink/lib/version"
	"github.com/bureau-foundation/shmlink/link"
	"github.com/bureau-foundation/shmlink/pump"
	"github.com/bureau-foundation/shmlink/segment"
)

// serve listens at the local connection point and runs a server-role
// pump for every session, each over its own link.
func serve(ctx context.Context, args []string) error {
	var flags commonFlags
	flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.add(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.load(flagSet)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Log).With("command", "serve")
	options, cache, err := pumpOptions(cfg, logger)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}
	linkDialer, err := dialer(cfg)
	if err != nil {
		return err
	}

	listener, err := segment.Listen(cfg.Local.Directory, cfg.Local.ConnectionPoint)
	if err != nil {
		return err
	}
	defer listener.Close()

	logger.Info("starting shmlink",
		"version", version.Info(),
		"connection_point", listener.Path(),
		"link_network", cfg.Link.Network,
		"link_address", cfg.Link.Address,
	)

	var sessions sync.WaitGroup
	defer sessions.Wait()
	for {
		session, err := listener.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("received shutdown signal")
				return nil
			}
			return err
		}
		sessions.Go(func() {
			if err := forward(ctx, session, linkDialer, cfg.Link.Network, cfg.Link.Address, options); err != nil {
				logger.Error("session failed", "error", err)
			}
		})
	}
}

// forward dials a link for one local session and pumps until either
// ends. The pump closes both.
func forward(ctx context.Context, session *segment.Session, linkDialer *link.Dialer, network, address string, options pump.Options) error {
	conn, err := linkDialer.Dial(ctx, network, address)
	if err != nil {
		session.Send(segment.NewClose("link unavailable"))
		session.Close()
		return fmt.Errorf("dialing link: %w", err)
	}
	server := pump.NewServer(session, link.NewStream(conn, conn), options)
	return server.Run(ctx)
}
