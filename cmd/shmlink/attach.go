// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/shmlink/lib/version"
	"github.com/bureau-foundation/shmlink/link"
	"github.com/bureau-foundation/shmlink/pump"
	"github.com/bureau-foundation/shmlink/segment"
)

// attach listens for links and maps each onto a client session at the
// local display, driving every client from one poll loop.
func attach(ctx context.Context, args []string) error {
	var flags commonFlags
	var preallocFD int
	flagSet := pflag.NewFlagSet("attach", pflag.ContinueOnError)
	flags.add(flagSet)
	flagSet.IntVar(&preallocFD, "prealloc-fd", -1,
		"inherited descriptor of an inert local session to populate; serves one link and exits")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.load(flagSet)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Log).With("command", "attach")
	options, cache, err := pumpOptions(cfg, logger)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	var prealloc *segment.Conn
	if preallocFD >= 0 {
		prealloc, err = segment.NewConn(preallocFD, true)
		if err != nil {
			return fmt.Errorf("adopting preallocated session: %w", err)
		}
	}

	tlsConfig, err := serverTLS(cfg, logger)
	if err != nil {
		return err
	}
	listener, err := link.Listen(cfg.Link.Network, cfg.Link.Address, tlsConfig)
	if err != nil {
		return err
	}
	defer listener.Close()

	logger.Info("starting shmlink",
		"version", version.Info(),
		"link_network", cfg.Link.Network,
		"link_address", listener.Address(),
		"connection_point", cfg.Local.ConnectionPoint,
	)

	links := &detachedLinks{byClient: make(map[*pump.Client]*link.Detached), logger: logger}
	incoming := make(chan *pump.Client)
	loop := &pump.Loop{Logger: logger, Incoming: incoming, Ended: links.release}

	preallocTaken := false
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(incoming)
		for {
			conn, err := listener.Accept(groupCtx)
			if err != nil {
				if groupCtx.Err() != nil {
					return nil
				}
				if errors.Is(err, link.ErrPeerRejected) {
					logger.Warn("rejecting link", "error", err)
					continue
				}
				return err
			}
			detached, err := link.Detach(conn)
			if err != nil {
				logger.Warn("rejecting link", "error", err)
				continue
			}
			fd := int(detached.File.Fd())
			client := pump.NewClient(pump.ClientConfig{
				LinkIn:          fd,
				LinkOut:         fd,
				Directory:       cfg.Local.Directory,
				ConnectionPoint: cfg.Local.ConnectionPoint,
				Prealloc:        prealloc,
				Options:         options,
			})
			links.track(client, detached)
			preallocTaken = prealloc != nil
			select {
			case incoming <- client:
			case <-groupCtx.Done():
				client.Close()
				links.release(client, nil)
				return nil
			}
			if prealloc != nil {
				return nil
			}
		}
	})
	group.Go(func() error {
		err := loop.Run(groupCtx)
		if err != nil {
			logger.Warn("some sessions failed", "error", err)
		}
		return nil
	})

	err = group.Wait()
	if prealloc != nil && !preallocTaken {
		prealloc.Close()
	}
	if ctx.Err() != nil {
		logger.Info("received shutdown signal")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// detachedLinks owns the link descriptors of running clients, which the
// clients themselves do not close.
type detachedLinks struct {
	mu       sync.Mutex
	byClient map[*pump.Client]*link.Detached
	logger   *slog.Logger
}

func (l *detachedLinks) track(client *pump.Client, detached *link.Detached) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byClient[client] = detached
}

func (l *detachedLinks) release(client *pump.Client, err error) {
	l.mu.Lock()
	detached := l.byClient[client]
	delete(l.byClient, client)
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("session ended", "error", err, "stats", client.Stats())
	} else {
		l.logger.Info("session ended", "stats", client.Stats())
	}
	if detached != nil {
		if closeErr := detached.Close(); closeErr != nil {
			l.logger.Debug("closing link", "error", closeErr)
		}
	}
}
