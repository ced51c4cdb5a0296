// Package systemd implements the systemd-delegated cgroup Manager
// (--systemd-cgroup): cgroup creation and resource limits go through a
// transient systemd scope/slice over D-Bus rather than direct cgroupfs
// writes, using the coreos/go-systemd/v22 dbus client over godbus/
// dbus/v5.
package systemd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/godbus/dbus/v5"

	"github.com/go-oci/ocirt/libcontainer/configs"
)

var (
	dbusC       *systemdDbus.Conn
	dbusOnce    sync.Once
	dbusErr     error
	theConnLock sync.Mutex
)

func dbusConnection(rootless bool) (*systemdDbus.Conn, error) {
	theConnLock.Lock()
	defer theConnLock.Unlock()
	dbusOnce.Do(func() {
		if rootless {
			dbusC, dbusErr = newUserSystemdDbus()
			return
		}
		dbusC, dbusErr = systemdDbus.NewWithContext(context.Background())
	})
	return dbusC, dbusErr
}

// unitName renders the scope/slice unit name systemd expects: either
// the caller-provided Name (already ending in .scope/.slice) or one
// synthesized from ScopePrefix plus a content-derived suffix.
func unitName(c *configs.Cgroup) string {
	if c.Name != "" {
		return c.Name
	}
	prefix := c.ScopePrefix
	if prefix == "" {
		prefix = "ocirt"
	}
	return fmt.Sprintf("%s-%s.scope", prefix, sanitizeUnitInfix(c.Parent))
}

func sanitizeUnitInfix(s string) string {
	if s == "" {
		return fmt.Sprintf("pid-%d", os.Getpid())
	}
	return strings.ReplaceAll(strings.Trim(s, "/"), "/", "-")
}

func newProp(name string, units interface{}) systemdDbus.Property {
	return systemdDbus.Property{Name: name, Value: dbus.MakeVariant(units)}
}

func startUnit(conn *systemdDbus.Conn, name string, properties []systemdDbus.Property) error {
	ch := make(chan string, 1)
	_, err := conn.StartTransientUnitContext(context.Background(), name, "replace", properties, ch)
	if err != nil {
		return err
	}
	if s := <-ch; s != "done" {
		return fmt.Errorf("unit %s failed to start: %s", name, s)
	}
	return nil
}

func stopUnit(conn *systemdDbus.Conn, name string) error {
	ch := make(chan string, 1)
	_, err := conn.StopUnitContext(context.Background(), name, "replace", ch)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return nil
		}
		return err
	}
	<-ch
	return nil
}

func setUnitProperties(conn *systemdDbus.Conn, name string, props ...systemdDbus.Property) error {
	return conn.SetUnitPropertiesContext(context.Background(), name, true, props...)
}
