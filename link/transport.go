// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// Network names accepted by Dial and Listen.
const (
	NetworkTCP  = "tcp"
	NetworkUnix = "unix"
	NetworkQUIC = "quic"
)

// ALPN is the application protocol negotiated on QUIC links.
const ALPN = "shmlink/1"

// quicPreamble is written by the dialing side on a fresh QUIC stream.
// A QUIC stream is invisible to the peer until it carries data, and
// the accepting side may speak first.
var quicPreamble = []byte("SHML")

// ErrUnsupportedNetwork is returned by Dial and Listen for a network
// name they do not know.
var ErrUnsupportedNetwork = errors.New("link: unsupported network")

// ErrPeerRejected is returned by Accept when one peer connected but did
// not open a usable link. The listener is still usable.
var ErrPeerRejected = errors.New("link: peer rejected")

// Listener accepts link connections.
type Listener interface {
	// Accept blocks until a peer connects or ctx is done. Cancelling
	// ctx closes the listener.
	Accept(ctx context.Context) (io.ReadWriteCloser, error)

	// Address returns the bound address, useful with port 0.
	Address() string

	// Close stops accepting.
	Close() error
}

// Dialer opens link connections.
type Dialer struct {
	// Timeout bounds connection establishment. Zero means only the
	// context deadline applies.
	Timeout time.Duration

	// TLSConfig is required for NetworkQUIC and ignored otherwise.
	TLSConfig *tls.Config
}

// Dial opens a connection to address over network.
func (d *Dialer) Dial(ctx context.Context, network, address string) (io.ReadWriteCloser, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	switch network {
	case NetworkTCP, NetworkUnix:
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			return nil, fmt.Errorf("link: dialing %s %s: %w", network, address, err)
		}
		return conn, nil
	case NetworkQUIC:
		return dialQUIC(ctx, address, d.TLSConfig)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
}

// Listen binds a listener on address. tlsConfig is required for
// NetworkQUIC and ignored otherwise.
func Listen(network, address string, tlsConfig *tls.Config) (Listener, error) {
	switch network {
	case NetworkTCP, NetworkUnix:
		listener, err := net.Listen(network, address)
		if err != nil {
			return nil, fmt.Errorf("link: listening on %s %s: %w", network, address, err)
		}
		return &netListener{listener: listener}, nil
	case NetworkQUIC:
		return listenQUIC(address, tlsConfig)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
}

type netListener struct {
	listener net.Listener
}

func (l *netListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	stop := context.AfterFunc(ctx, func() { l.listener.Close() })
	defer stop()
	conn, err := l.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("link: accept: %w", err)
	}
	return conn, nil
}

func (l *netListener) Address() string { return l.listener.Addr().String() }

func (l *netListener) Close() error { return l.listener.Close() }

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}

func withALPN(tlsConfig *tls.Config) (*tls.Config, error) {
	if tlsConfig == nil {
		return nil, errors.New("link: quic requires a TLS configuration")
	}
	config := tlsConfig.Clone()
	if len(config.NextProtos) == 0 {
		config.NextProtos = []string{ALPN}
	}
	return config, nil
}

func dialQUIC(ctx context.Context, address string, tlsConfig *tls.Config) (io.ReadWriteCloser, error) {
	config, err := withALPN(tlsConfig)
	if err != nil {
		return nil, err
	}
	conn, err := quic.DialAddr(ctx, address, config, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("link: dialing quic %s: %w", address, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, fmt.Errorf("link: opening quic stream to %s: %w", address, err)
	}
	if _, err := stream.Write(quicPreamble); err != nil {
		conn.CloseWithError(0, "")
		return nil, fmt.Errorf("link: writing quic preamble to %s: %w", address, err)
	}
	return &quicStream{Stream: stream, conn: conn}, nil
}

type quicListener struct {
	listener *quic.Listener
}

func listenQUIC(address string, tlsConfig *tls.Config) (Listener, error) {
	config, err := withALPN(tlsConfig)
	if err != nil {
		return nil, err
	}
	listener, err := quic.ListenAddr(address, config, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("link: listening on quic %s: %w", address, err)
	}
	return &quicListener{listener: listener}, nil
}

func (l *quicListener) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			l.listener.Close()
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("link: accept quic: %w", err)
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, fmt.Errorf("%w: accepting quic stream from %s: %v", ErrPeerRejected, conn.RemoteAddr(), err)
	}
	preamble := make([]byte, len(quicPreamble))
	if _, err := io.ReadFull(stream, preamble); err != nil || string(preamble) != string(quicPreamble) {
		conn.CloseWithError(1, "bad preamble")
		return nil, fmt.Errorf("%w: quic peer %s sent no preamble", ErrPeerRejected, conn.RemoteAddr())
	}
	return &quicStream{Stream: stream, conn: conn}, nil
}

func (l *quicListener) Address() string { return l.listener.Addr().String() }

func (l *quicListener) Close() error { return l.listener.Close() }

// quicStream closes the whole connection on Close; a link owns its
// QUIC connection.
type quicStream struct {
	quic.Stream
	conn quic.Connection
}

func (s *quicStream) Close() error {
	s.Stream.Close()
	return s.conn.CloseWithError(0, "")
}
