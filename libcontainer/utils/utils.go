// Package utils collects small file-descriptor and JSON helpers shared by
// the process pipeline and the container record: sync
// socket pairs, console-socket fd passing over SCM_RIGHTS, and the
// close-on-exec sweep that keeps accidentally-inherited fds out of the
// container.
package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// NewSockPair creates a pair of connected, close-on-exec unix sockets the
// parent and child ends of a sync channel can be built on top of. name is
// used only for the fds' labels in /proc, to ease debugging a stuck pipe.
func NewSockPair(name string) (parent, child *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_LOCAL, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("utils: socketpair %s: %w", name, err)
	}
	return os.NewFile(uintptr(fds[1]), name+"-p"), os.NewFile(uintptr(fds[0]), name+"-c"), nil
}

// SendFd sends fd, named, over a SCM_RIGHTS control message on the
// unix socket at socket. The console package uses this to hand a pty
// master's fd to the process that opened the --console-socket listener,
// the SCM_RIGHTS handoff the console-socket protocol specifies.
func SendFd(socket *os.File, name string, fd uintptr) error {
	conn, err := net.FileConn(socket)
	if err != nil {
		return err
	}
	defer conn.Close()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("utils: %s is not a unix socket", socket.Name())
	}

	oob := unix.UnixRights(int(fd))
	_, _, err = unixConn.WriteMsgUnix([]byte(name), oob, nil)
	return err
}

// RecvFd is the receiving half of SendFd: it reads one SCM_RIGHTS
// datagram off socket and returns a File wrapping the received
// descriptor, named with the name sent alongside it.
func RecvFd(socket *os.File) (*os.File, error) {
	conn, err := net.FileConn(socket)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("utils: %s is not a unix socket", socket.Name())
	}

	buf := make([]byte, unix.CmsgSpace(4))
	name := make([]byte, 4096)
	n, oobn, _, _, err := unixConn.ReadMsgUnix(name, buf)
	if err != nil {
		return nil, err
	}
	scms, err := unix.ParseSocketControlMessage(buf[:oobn])
	if err != nil {
		return nil, err
	}
	if len(scms) != 1 {
		return nil, fmt.Errorf("utils: expected 1 SCM_RIGHTS message, got %d", len(scms))
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return nil, err
	}
	if len(fds) != 1 {
		return nil, fmt.Errorf("utils: expected 1 fd, got %d", len(fds))
	}
	return os.NewFile(uintptr(fds[0]), string(name[:n])), nil
}

// WriteJSON writes v as a single JSON document to w, used for every
// message on the sync pipes and the container state file.
func WriteJSON(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

// CloseExecFrom marks every open fd numbered >= minFd as close-on-exec,
// so descriptors accidentally inherited by the init process (beyond the
// sync pipe and notify-socket fds it was explicitly handed) never leak
// into the container.
func CloseExecFrom(minFd int) error {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return fmt.Errorf("utils: read /proc/self/fd: %w", err)
	}
	for _, e := range entries {
		fd, err := strconv.Atoi(e.Name())
		if err != nil || fd < minFd {
			continue
		}
		unix.CloseOnExec(fd)
	}
	return nil
}

// StringSliceContains reports whether s is present in slice.
func StringSliceContains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// CleanPath makes a path absolute and resolves any ".."/"." elements
// without touching the filesystem, so a path taken from OCI config JSON
// can be safely compared or joined without a symlink race.
func CleanPath(path string) string {
	if path == "" {
		return ""
	}
	path = filepath.Clean(path)
	if !filepath.IsAbs(path) {
		return filepath.Clean(string(os.PathSeparator) + path)
	}
	return path
}

// Annotations splits OCI annotations into the "bundle" value the
// container record stores separately and everything else, matching the
// split it keeps between its bundle path and free-form labels.
func Annotations(labels []string) (bundle string, annotations map[string]string) {
	annotations = make(map[string]string)
	for _, l := range labels {
		parts := strings.SplitN(l, "=", 2)
		if len(parts) < 2 {
			continue
		}
		if parts[0] == "bundle" {
			bundle = parts[1]
			continue
		}
		annotations[parts[0]] = parts[1]
	}
	return bundle, annotations
}
