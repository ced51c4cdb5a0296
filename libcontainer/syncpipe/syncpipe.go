// Package syncpipe implements the typed message channel the init process
// uses to hand control back to its parent: each end of a socket pair
// created with utils.NewSockPair carries a small, fixed vocabulary of
// JSON messages (proc_ready, init_ready, seccomp_notify_fd, error).
package syncpipe

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/go-oci/ocirt/libcontainer/utils"
	"golang.org/x/sys/unix"
)

// Kind identifies the message types exchanged between cascade stages.
type Kind string

const (
	// ProcReady is exchanged both ways at the hook stage: init sends it
	// once its pre-pivot mount work is done, and the parent answers with
	// it once cgroups are set and the create-time hook stages have run.
	ProcReady Kind = "proc_ready"
	// InitReady is sent by init once its rootfs and namespace setup is
	// done, before it drops privileges and parks at the notify-socket
	// wait.
	InitReady Kind = "init_ready"
	// SeccompNotifyFd carries a seccomp user-space notification fd from
	// init to the parent, handed off as an SCM_RIGHTS attachment.
	SeccompNotifyFd Kind = "seccomp_notify_fd"
	// Error reports a fatal error from either end, tagged with an error
	// kind so the top-level CLI can pick an exit code.
	Error Kind = "error"
)

// Message is the wire envelope. Pid carries InitReady's payload; ErrKind
// and ErrMessage carry Error's.
type Message struct {
	Kind       Kind   `json:"kind"`
	Pid        int    `json:"pid,omitempty"`
	ErrKind    string `json:"err_kind,omitempty"`
	ErrMessage string `json:"err_message,omitempty"`
}

// Pipe wraps one end of a cascade-stage socket pair.
type Pipe struct {
	f *os.File
}

func New(f *os.File) *Pipe { return &Pipe{f: f} }

// NewPair creates a connected pair of pipes; parent keeps one end across
// the fork, child's fd is passed via ExtraFiles.
func NewPair(name string) (parent, child *Pipe, err error) {
	pf, cf, err := utils.NewSockPair(name)
	if err != nil {
		return nil, nil, err
	}
	return New(pf), New(cf), nil
}

func (p *Pipe) File() *os.File { return p.f }

func (p *Pipe) Close() error { return p.f.Close() }

// Send writes one JSON-encoded message. Sends are small and
// line-delimited by the encoder's trailing newline, so no separate
// length prefix is needed.
func (p *Pipe) Send(msg Message) error {
	return utils.WriteJSON(p.f, msg)
}

// Recv blocks for exactly one message and decodes it.
func (p *Pipe) Recv() (Message, error) {
	var msg Message
	if err := json.NewDecoder(p.f).Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("syncpipe: decode: %w", err)
	}
	return msg, nil
}

// RecvExpect is Recv plus a kind check, for the common case of a stage
// blocked on exactly one expected next message.
func (p *Pipe) RecvExpect(want Kind) (Message, error) {
	msg, err := p.Recv()
	if err != nil {
		return Message{}, err
	}
	if msg.Kind == Error {
		return Message{}, fmt.Errorf("syncpipe: peer reported %s: %s", msg.ErrKind, msg.ErrMessage)
	}
	if msg.Kind != want {
		return Message{}, fmt.Errorf("syncpipe: expected %s, got %s", want, msg.Kind)
	}
	return msg, nil
}

// SendError reports a fatal error to the peer, tagged with an error kind
// string (e.g. "syscall", "config_invalid").
func (p *Pipe) SendError(kind, message string) error {
	return p.Send(Message{Kind: Error, ErrKind: kind, ErrMessage: message})
}

// SendSeccompNotifyFd sends the SeccompNotifyFd message together with
// the listener fd itself, via SCM_RIGHTS; init uses this to hand its
// seccomp user-notification fd up to the supervisor, which is the
// process actually responsible for answering notifications.
func (p *Pipe) SendSeccompNotifyFd(fd uintptr) error {
	conn, err := net.FileConn(p.f)
	if err != nil {
		return fmt.Errorf("syncpipe: fileconn: %w", err)
	}
	defer conn.Close()
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("syncpipe: not a unix socket")
	}
	payload, err := json.Marshal(Message{Kind: SeccompNotifyFd})
	if err != nil {
		return err
	}
	_, _, err = unixConn.WriteMsgUnix(payload, unix.UnixRights(int(fd)), nil)
	return err
}

// RecvSeccompNotifyFd is the receiving half of SendSeccompNotifyFd.
func (p *Pipe) RecvSeccompNotifyFd() (*os.File, error) {
	conn, err := net.FileConn(p.f)
	if err != nil {
		return nil, fmt.Errorf("syncpipe: fileconn: %w", err)
	}
	defer conn.Close()
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("syncpipe: not a unix socket")
	}

	msgBuf := make([]byte, 4096)
	oobBuf := make([]byte, 64)
	n, oobn, _, _, err := unixConn.ReadMsgUnix(msgBuf, oobBuf)
	if err != nil {
		return nil, fmt.Errorf("syncpipe: readmsg: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(msgBuf[:n], &msg); err != nil {
		return nil, fmt.Errorf("syncpipe: decode: %w", err)
	}
	if msg.Kind != SeccompNotifyFd {
		return nil, fmt.Errorf("syncpipe: expected %s, got %s", SeccompNotifyFd, msg.Kind)
	}
	scms, err := unix.ParseSocketControlMessage(oobBuf[:oobn])
	if err != nil {
		return nil, fmt.Errorf("syncpipe: parse control message: %w", err)
	}
	if len(scms) != 1 {
		return nil, fmt.Errorf("syncpipe: expected 1 control message, got %d", len(scms))
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return nil, fmt.Errorf("syncpipe: parse unix rights: %w", err)
	}
	if len(fds) != 1 {
		return nil, fmt.Errorf("syncpipe: expected 1 fd, got %d", len(fds))
	}
	return os.NewFile(uintptr(fds[0]), "seccomp-notify"), nil
}
