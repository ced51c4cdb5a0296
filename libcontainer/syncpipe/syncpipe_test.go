package syncpipe

import (
	"os"
	"testing"
)

func pipeFds() (*os.File, *os.File, error) {
	return os.Pipe()
}

func TestSendRecvRoundTrip(t *testing.T) {
	parent, child, err := NewPair("test")
	if err != nil {
		t.Fatalf("NewPair() failed: %v", err)
	}
	defer parent.Close()
	defer child.Close()

	if err := parent.Send(Message{Kind: InitReady, Pid: 1234}); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	got, err := child.RecvExpect(InitReady)
	if err != nil {
		t.Fatalf("RecvExpect() failed: %v", err)
	}
	if got.Pid != 1234 {
		t.Fatalf("Pid = %d, want 1234", got.Pid)
	}
}

func TestRecvExpectMismatch(t *testing.T) {
	parent, child, err := NewPair("test")
	if err != nil {
		t.Fatalf("NewPair() failed: %v", err)
	}
	defer parent.Close()
	defer child.Close()

	if err := parent.Send(Message{Kind: ProcReady}); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	if _, err := child.RecvExpect(InitReady); err == nil {
		t.Fatal("expected RecvExpect to reject a mismatched message kind")
	}
}

func TestRecvExpectPropagatesError(t *testing.T) {
	parent, child, err := NewPair("test")
	if err != nil {
		t.Fatalf("NewPair() failed: %v", err)
	}
	defer parent.Close()
	defer child.Close()

	if err := parent.SendError("syscall", "mount failed: permission denied"); err != nil {
		t.Fatalf("SendError() failed: %v", err)
	}

	if _, err := child.RecvExpect(InitReady); err == nil {
		t.Fatal("expected RecvExpect to surface a peer error")
	}
}

func TestSeccompNotifyFdRoundTrip(t *testing.T) {
	parent, child, err := NewPair("test")
	if err != nil {
		t.Fatalf("NewPair() failed: %v", err)
	}
	defer parent.Close()
	defer child.Close()

	r, w, err := pipeFds()
	if err != nil {
		t.Fatalf("pipeFds() failed: %v", err)
	}
	defer w.Close()

	if err := child.SendSeccompNotifyFd(r.Fd()); err != nil {
		t.Fatalf("SendSeccompNotifyFd() failed: %v", err)
	}
	r.Close()

	got, err := parent.RecvSeccompNotifyFd()
	if err != nil {
		t.Fatalf("RecvSeccompNotifyFd() failed: %v", err)
	}
	defer got.Close()
}
