// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package socket binds the shared listening socket for the API server.
package socket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Config describes the address to bind along with its socket options.
type Config struct {
	Host string `config:"host"`
	Port int    `config:"port"`

	// Backlog is the requested accept queue depth. The Go runtime owns
	// the actual listen(2) backlog, so the value is only validated here;
	// it is kept in the config surface for wire compatibility.
	Backlog int `config:"backlog"`

	CertFile string `config:"cert_file"`
	KeyFile  string `config:"key_file"`

	// RetryWindow bounds how long Listen keeps retrying when the
	// address is already in use. Defaults to 30s.
	RetryWindow time.Duration `config:"retry_window"`

	// RetryInterval is the sleep between bind attempts. Defaults to 100ms.
	RetryInterval time.Duration `config:"retry_interval"`
}

// Addr returns the host:port string the listener will bind to.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ConfigError occurs when the bind configuration itself is invalid.
// It is fatal at startup.
type ConfigError struct {
	Reason string
}

// Error implements the [builtin.error] interface.
func (e ConfigError) Error() string {
	return fmt.Sprintf("invalid socket config: %s", e.Reason)
}

// BindError occurs when the listening socket could not be acquired
// within the retry window. It is fatal at startup.
type BindError struct {
	Addr   string
	Window time.Duration
	Cause  error
}

// Error implements the [builtin.error] interface.
func (e BindError) Error() string {
	return fmt.Sprintf("could not bind to %s after trying for %s: %s", e.Addr, e.Window, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e BindError) Unwrap() error {
	return e.Cause
}

const (
	defaultRetryWindow   = 30 * time.Second
	defaultRetryInterval = 100 * time.Millisecond
)

// Listen binds a listening socket per the given config and, when both
// a certificate and key file are configured, wraps it for TLS. It is
// the single process entry point; the worker supervisor uses Bind and
// WrapTLS separately so the raw socket can be inherited by workers
// before each of them applies TLS on its own copy.
func Listen(ctx context.Context, cfg Config) (net.Listener, error) {
	ls, err := Bind(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return WrapTLS(ls, cfg)
}

// Bind binds a raw listening socket per the given config.
//
// The host is resolved once and the first IPv4 or IPv6 address returned
// decides the address family. SO_REUSEADDR and SO_KEEPALIVE are always
// set; a keepalive idle tuning value is applied on platforms which
// expose one. If the address is in use, the bind is retried until the
// retry window elapses, after which a BindError is returned. Any other
// bind failure is returned immediately.
//
// Configuring only one of a certificate and key file is a ConfigError,
// caught here so it is fatal at startup rather than at TLS wrap time.
func Bind(ctx context.Context, cfg Config) (net.Listener, error) {
	if cfg.Backlog < 0 {
		return nil, ConfigError{Reason: "backlog must not be negative"}
	}

	useTLS := cfg.CertFile != "" || cfg.KeyFile != ""
	if useTLS && (cfg.CertFile == "" || cfg.KeyFile == "") {
		return nil, ConfigError{
			Reason: "running in TLS mode requires both a cert_file and key_file option value",
		}
	}

	network, err := resolveNetwork(ctx, cfg.Host)
	if err != nil {
		return nil, err
	}

	window := cfg.RetryWindow
	if window <= 0 {
		window = defaultRetryWindow
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}

	lc := net.ListenConfig{
		Control: setSockOpts,
	}

	var ls net.Listener
	retryUntil := time.Now().Add(window)
	for {
		ls, err = lc.Listen(ctx, network, cfg.Addr())
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EADDRINUSE) {
			return nil, err
		}
		if !time.Now().Before(retryUntil) {
			return nil, BindError{
				Addr:   cfg.Addr(),
				Window: window,
				Cause:  err,
			}
		}

		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-time.After(interval):
		}
	}

	return ls, nil
}

// WrapTLS wraps ls for TLS when a certificate and key file are
// configured. With no TLS configured ls is returned unchanged.
func WrapTLS(ls net.Listener, cfg Config) (net.Listener, error) {
	if cfg.CertFile == "" && cfg.KeyFile == "" {
		return ls, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		ls.Close()
		return nil, ConfigError{
			Reason: fmt.Sprintf("failed to load TLS key pair: %s", err),
		}
	}
	return tls.NewListener(ls, &tls.Config{
		Certificates: []tls.Certificate{cert},
	}), nil
}

// resolveNetwork resolves host and picks the network matching the
// address family of the first resolved IPv4 or IPv6 address.
func resolveNetwork(ctx context.Context, host string) (string, error) {
	if host == "" {
		return "tcp", nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", &net.AddrError{Err: "no addresses resolved", Addr: host}
	}
	if addrs[0].IP.To4() != nil {
		return "tcp4", nil
	}
	return "tcp6", nil
}

func setSockOpts(network, address string, rc syscall.RawConn) error {
	var oerr error
	err := rc.Control(func(fd uintptr) {
		oerr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if oerr != nil {
			return
		}
		// sockets can hang around forever without keepalive
		oerr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		if oerr != nil {
			return
		}
		// best effort, not every platform exposes an idle tuning knob
		setKeepaliveIdle(int(fd))
	})
	if err != nil {
		return err
	}
	return oerr
}
