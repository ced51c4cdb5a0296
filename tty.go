// +build linux

package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	console "github.com/containerd/console"
	"github.com/go-oci/ocirt/libcontainer"
	"github.com/go-oci/ocirt/libcontainer/utils"
)

// tty owns whatever plumbing setupIO created for a process's stdio,
// closed in two stages: ClosePostStart once the process has the far end
// of each pipe/socket open, and Close once it has exited.
type tty struct {
	console   console.Console
	stdin     console.Console
	closers   []io.Closer
	postStart []io.Closer
	wg        sync.WaitGroup
	consoleC  chan error
}

func (t *tty) copyIO(w io.Writer, r io.ReadCloser) {
	defer t.wg.Done()
	io.Copy(w, r)
	r.Close()
}

// setupIO wires process's stdio according to createTTY/detach/sockpath,
// mirroring the four combinations a caller can ask for: an allocated
// pty handed back over --console-socket, a local pty read by this
// process's own terminal, inherited stdio for a detached non-tty run, or
// plain pipes.
func setupIO(process *libcontainer.Process, createTTY, detach bool, sockpath string) (*tty, error) {
	if createTTY {
		process.Stdin = nil
		process.Stdout = nil
		process.Stderr = nil
		t := &tty{}
		if !detach {
			parent, child, err := utils.NewSockPair("console")
			if err != nil {
				return nil, err
			}
			process.ConsoleSocket = child
			t.postStart = append(t.postStart, parent, child)
			t.consoleC = make(chan error, 1)
			go func() {
				if err := t.recvtty(parent); err != nil {
					t.consoleC <- err
					return
				}
				t.consoleC <- nil
			}()
			return t, nil
		}
		conn, err := net.Dial("unix", sockpath)
		if err != nil {
			return nil, err
		}
		uc, ok := conn.(*net.UnixConn)
		if !ok {
			return nil, fmt.Errorf("casting to UnixConn failed")
		}
		t.postStart = append(t.postStart, uc)
		socket, err := uc.File()
		if err != nil {
			return nil, err
		}
		t.postStart = append(t.postStart, socket)
		process.ConsoleSocket = socket
		return t, nil
	}
	if detach {
		if err := inheritStdio(process); err != nil {
			return nil, err
		}
		return &tty{}, nil
	}
	return setupProcessPipes(process)
}

func inheritStdio(process *libcontainer.Process) error {
	process.Stdin = os.Stdin
	process.Stdout = os.Stdout
	process.Stderr = os.Stderr
	return nil
}

// setupProcessPipes gives the process's stdio its own pipes rather than
// this process's raw fds, the non-tty, non-detach case (e.g. piping exec
// output back through the caller).
func setupProcessPipes(p *libcontainer.Process) (*tty, error) {
	t := &tty{}
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	go func() {
		io.Copy(stdinW, os.Stdin)
		stdinW.Close()
	}()
	p.Stdin = stdinR
	t.closers = append(t.closers, stdinW)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	p.Stdout = stdoutW
	t.closers = append(t.closers, stdoutR)
	t.wg.Add(1)
	go t.copyIO(os.Stdout, stdoutR)

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	p.Stderr = stderrW
	t.closers = append(t.closers, stderrR)
	t.wg.Add(1)
	go t.copyIO(os.Stderr, stderrR)

	return t, nil
}

// recvtty receives the pty master fd init sent over socket and
// pumps it against this process's own terminal.
func (t *tty) recvtty(socket *os.File) error {
	f, err := utils.RecvFd(socket)
	if err != nil {
		return err
	}
	cons, err := console.ConsoleFromFile(f)
	if err != nil {
		return err
	}

	go io.Copy(cons, os.Stdin)
	t.wg.Add(1)
	go t.copyIO(os.Stdout, cons)

	stdin, err := console.ConsoleFromFile(os.Stdin)
	if err != nil {
		return err
	}
	if err := stdin.SetRaw(); err != nil {
		return fmt.Errorf("setting terminal raw: %w", err)
	}

	t.stdin = stdin
	t.console = cons
	t.closers = append(t.closers, cons)
	return nil
}

func (t *tty) waitConsole() error {
	if t.consoleC != nil {
		return <-t.consoleC
	}
	return nil
}

func (t *tty) ClosePostStart() error {
	for _, c := range t.postStart {
		c.Close()
	}
	return nil
}

func (t *tty) Close() error {
	for _, c := range t.postStart {
		c.Close()
	}
	t.wg.Wait()
	for _, c := range t.closers {
		c.Close()
	}
	if t.stdin != nil {
		t.stdin.Reset()
	}
	return nil
}
