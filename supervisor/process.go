// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
)

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

// ExecSpawner returns a SpawnFunc which re-executes the current binary
// with the given args, handing it a duplicate of the raw listening
// socket. The child finds the socket on a fixed file descriptor and is
// marked as a worker through its environment.
//
// ls must be the raw TCP listener, bound before any TLS wrapping, so
// that every worker can apply TLS on its own copy.
func ExecSpawner(ls net.Listener, args ...string) SpawnFunc {
	return func(ctx context.Context) (Process, error) {
		tcp, ok := ls.(*net.TCPListener)
		if !ok {
			return nil, fmt.Errorf("listener %T cannot be inherited by a worker process", ls)
		}

		f, err := tcp.File()
		if err != nil {
			return nil, err
		}
		// the child holds its own duplicate after Start
		defer f.Close()

		exe, err := os.Executable()
		if err != nil {
			return nil, err
		}

		cmd := exec.Command(exe, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = append(os.Environ(), WorkerEnv+"=1")
		cmd.ExtraFiles = []*os.File{f}

		err = cmd.Start()
		if err != nil {
			return nil, err
		}
		return &execProcess{cmd: cmd}, nil
	}
}
