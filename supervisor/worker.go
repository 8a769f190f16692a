// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/meterflow/meterflow/internal/socket"
	"github.com/meterflow/meterflow/internal/taskgroup"

	"golang.org/x/sys/unix"
)

// WorkerEnv marks a process as a spawned worker.
const WorkerEnv = "METERFLOW_WORKER"

// stdin, stdout, stderr, then the first extra file
const listenerFD = 3

// IsWorker reports whether this process was spawned as a worker.
func IsWorker() bool {
	return os.Getenv(WorkerEnv) == "1"
}

// InheritedListener recovers the listening socket handed down by the
// supervisor over the fixed worker file descriptor.
func InheritedListener() (net.Listener, error) {
	f := os.NewFile(listenerFD, "listener")
	if f == nil {
		return nil, errors.New("no inherited listener on the worker file descriptor")
	}
	defer f.Close()

	return net.FileListener(f)
}

// WorkerConfig configures a worker process.
type WorkerConfig struct {
	// Socket supplies the TLS material the worker applies on its copy
	// of the inherited socket. Address fields are ignored; the socket
	// is already bound.
	Socket socket.Config

	// ThreadPoolSize bounds concurrent requests, like in the parent.
	ThreadPoolSize int
}

// ServeWorker serves handler over the inherited listening socket until
// the context is cancelled or a SIGHUP arrives, then drains in-flight
// requests and exits. The parent's signal dispositions, inherited via
// exec, are reset first so the worker only reacts to its own handlers:
// SIGTERM falls back to killing the process, SIGHUP drains it.
func ServeWorker(ctx context.Context, handler http.Handler, cfg WorkerConfig, log *slog.Logger) error {
	signal.Reset(unix.SIGTERM, unix.SIGHUP)

	ls, err := InheritedListener()
	if err != nil {
		return err
	}

	ls, err = socket.WrapTLS(ls, cfg.Socket)
	if err != nil {
		return err
	}

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, unix.SIGHUP)
	defer signal.Stop(hupCh)

	size := cfg.ThreadPoolSize
	if size <= 0 {
		size = DefaultThreadPoolSize
	}
	srv := &http.Server{
		Handler: BoundedHandler(handler, size),
	}

	log.Info("worker serving", slog.Int("pid", os.Getpid()))
	err = taskgroup.Wait(
		ctx,
		func(ctx context.Context) error {
			return srv.Serve(ls)
		},
		func(ctx context.Context) error {
			select {
			case <-ctx.Done():
			case <-hupCh:
				log.Info("worker draining", slog.Int("pid", os.Getpid()))
			}
			return srv.Shutdown(context.Background())
		},
	)

	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
