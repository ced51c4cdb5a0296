// Package notifysocket implements the notify channel between the "start"
// command and a created container's init process: a unix
// seqpacket socket that init binds before it execs the user command, and
// that "start" dials and sends a single START datagram on, so init's exec
// never races a "start" that hasn't been invoked yet.
//
// Binding and connecting chdir into the socket's parent directory first
// and use a relative path, working around the 108-byte sun_path limit
// since the container's state directory path is frequently longer than that once
// joined with "notify.sock".
package notifysocket

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// FileName is the socket's name within the container's state directory.
const FileName = "notify.sock"

const startMessage = "start container"

// Listener is the init-side half: created before fork, Wait blocks until
// "start" sends its datagram.
type Listener struct {
	path string
	ln   *net.UnixListener
}

// Listen binds a seqpacket socket at path. path's parent directory must
// already exist; Listen chdirs into it and back to dodge sun_path's
// length limit, matching notify_socket.rs's NotifyListener::new.
func Listen(path string) (*Listener, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("notifysocket: getwd: %w", err)
	}
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("notifysocket: chdir %s: %w", dir, err)
	}
	defer os.Chdir(cwd)

	addr := &net.UnixAddr{Name: name, Net: "unixpacket"}
	ln, err := net.ListenUnix("unixpacket", addr)
	if err != nil {
		return nil, fmt.Errorf("notifysocket: listen %s: %w", path, err)
	}
	return &Listener{path: path, ln: ln}, nil
}

// Wait blocks until exactly one START datagram arrives, then closes the
// accepted connection. It does not close the listener itself; callers
// that are done with the socket entirely should call Close.
func (l *Listener) Wait() error {
	conn, err := l.ln.AcceptUnix()
	if err != nil {
		return fmt.Errorf("notifysocket: accept: %w", err)
	}
	defer conn.Close()

	buf := make([]byte, len(startMessage))
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("notifysocket: read: %w", err)
	}
	if string(buf[:n]) != startMessage {
		return fmt.Errorf("notifysocket: unexpected payload %q", buf[:n])
	}
	return nil
}

// Close removes the listener and unlinks the socket file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	os.Remove(l.path)
	return err
}

// Notify dials the seqpacket socket at path and sends the single START
// datagram the corresponding Listener.Wait is blocked on. Used by the
// "start" command against a container that was created detached.
func Notify(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("notifysocket: getwd: %w", err)
	}
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("notifysocket: chdir %s: %w", dir, err)
	}
	defer os.Chdir(cwd)

	addr := &net.UnixAddr{Name: name, Net: "unixpacket"}
	conn, err := net.DialUnix("unixpacket", nil, addr)
	if err != nil {
		return fmt.Errorf("notifysocket: dial %s: %w", path, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(startMessage)); err != nil {
		return fmt.Errorf("notifysocket: write: %w", err)
	}
	return nil
}
