//go:build linux
// +build linux

package libcontainer

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// stateLock wraps an advisory flock taken on a container id's lock file,
// serializing operations against that id the way a second "create" or
// "delete" invoked from another process would otherwise race the first:
// shared for reads (state, stats), exclusive for anything that mutates
// the container (create, start, kill, delete, pause, resume, set). The
// lock file lives next to, not inside, the container's own state
// directory (<root>/.<id>.lock rather than <root>/<id>/lock) so Create
// can take it before <root>/<id> exists at all.
type stateLock struct {
	f *os.File
}

func lockPath(root, id string) string {
	return filepath.Join(root, "."+id+".lock")
}

// acquireLock opens (creating if needed) the lock file for id under root
// and flocks it. A nonblocking caller that loses the race gets StateBusy
// back immediately rather than waiting; Factory.Create acquires
// blocking, so a losing concurrent create deterministically falls
// through to the AlreadyExists check once the winner releases the lock,
// instead of racing it.
func acquireLock(root, id string, exclusive, nonblocking bool) (*stateLock, error) {
	f, err := os.OpenFile(lockPath(root, id), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, newSystemErrorWithCause(err, "opening state lock")
	}
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if nonblocking {
		how |= unix.LOCK_NB
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		if nonblocking && err == unix.EWOULDBLOCK {
			return nil, newGenericError(fmt.Errorf("container %s is busy", id), StateBusy)
		}
		return nil, newSystemErrorWithCause(err, "locking container state")
	}
	return &stateLock{f: f}, nil
}

func (l *stateLock) unlock() error {
	defer l.f.Close()
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

// lockContainer is the Container-method convenience wrapper: always
// nonblocking, exclusive for the mutating methods and shared
// (exclusive=false) for the read-only ones.
func (c *linuxContainer) lockContainer(exclusive bool) (*stateLock, error) {
	return acquireLock(filepath.Dir(c.root), c.id, exclusive, true)
}
