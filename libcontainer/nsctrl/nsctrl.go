// Package nsctrl implements the namespace controller: it
// partitions a requested namespace set into the namespaces the calling
// task must create (unshare) versus enter (setns via an open fd on an
// existing namespace file), and applies them in the fixed order user →
// pid → others (spec order) → mount last.
//
// Apply unshares every namespace without a Path that the caller does not
// list in skip, user and pid included. The standard init path lists
// every Path-less namespace in skip, because the process pipeline
// already created those at clone time.
package nsctrl

import (
	"fmt"
	"os"

	"github.com/go-oci/ocirt/libcontainer/configs"
	"github.com/go-oci/ocirt/libcontainer/syscallfacade"
)

// Controller applies a configs.Namespaces set to the calling task.
type Controller struct {
	sys syscallfacade.Syscaller
}

func New(sys syscallfacade.Syscaller) *Controller {
	return &Controller{sys: sys}
}

// Apply enters/creates every namespace in ns, in the fixed order defined
// by configs.Namespaces.Ordered(). skip identifies namespace types the
// caller has already handled out-of-band (typically NEWUSER and NEWPID,
// applied by the process-pipeline cascade before this call).
func (c *Controller) Apply(ns configs.Namespaces, skip map[configs.NamespaceType]bool) error {
	for _, n := range ns.Ordered() {
		if skip[n.Type] {
			continue
		}
		if n.Path != "" {
			if err := c.enter(n); err != nil {
				return err
			}
			continue
		}
		if err := c.create(n); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) create(n configs.Namespace) error {
	flag := configs.NsCloneFlag(n.Type)
	if flag == 0 {
		return fmt.Errorf("nsctrl: unknown namespace type %q", n.Type)
	}
	if err := c.sys.Unshare(uintptr(flag)); err != nil {
		return fmt.Errorf("nsctrl: unshare %s namespace: %w", n.Type, err)
	}
	return nil
}

func (c *Controller) enter(n configs.Namespace) error {
	fd, err := os.Open(n.Path)
	if err != nil {
		return fmt.Errorf("nsctrl: open namespace file %s: %w", n.Path, err)
	}
	defer fd.Close()

	flag := configs.NsCloneFlag(n.Type)
	if err := c.sys.Setns(int(fd.Fd()), uintptr(flag)); err != nil {
		return fmt.Errorf("nsctrl: setns %s namespace (%s): %w", n.Type, n.Path, err)
	}
	return nil
}
