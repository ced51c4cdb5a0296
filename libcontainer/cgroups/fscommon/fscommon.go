// Package fscommon holds the cgroupfs read/write helpers and the few
// controller-agnostic value parsers (OpenFile/ReadFile/WriteFile,
// ParseUint, Rdma) shared by both the v1 and v2 filesystem managers.
package fscommon

import (
	"bufio"
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

// OpenFile opens a cgroup file in dir with the given flags, via
// filepath-securejoin so a maliciously crafted cgroup path component
// can't escape dir with a symlink. Kept as its own copy rather than
// calling cgroups.OpenFile to avoid fscommon depending on the parent
// cgroups package for anything but the Stats type used below.
func OpenFile(dir, file string, flags int) (*os.File, error) {
	if dir == "" {
		return nil, errors.Errorf("no directory specified for %s", file)
	}
	path, err := securejoin.SecureJoin(dir, file)
	if err != nil {
		return nil, err
	}
	mode := os.FileMode(0)
	return os.OpenFile(path, flags, mode)
}

// WriteFile writes data to a cgroup file in dir.
// It is supposed to be used for cgroup files only.
func WriteFile(dir, file, data string) error {
	fd, err := OpenFile(dir, file, unix.O_WRONLY)
	if err != nil {
		return err
	}
	defer fd.Close()
	if err := retryingWriteFile(fd, data); err != nil {
		return errors.Wrapf(err, "failed to write %q", data)
	}
	return nil
}

// ReadFile reads data from a cgroup file in dir.
// It is supposed to be used for cgroup files only.
func ReadFile(dir, file string) (string, error) {
	fd, err := OpenFile(dir, file, unix.O_RDONLY)
	if err != nil {
		return "", err
	}
	defer fd.Close()
	var buf bytes.Buffer

	_, err = buf.ReadFrom(fd)
	return buf.String(), err
}

func CopyFile(source, dest string) error {
	var (
		srcF *os.File
		dstF *os.File
		data []byte
		err  error
	)

	srcF, err = os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open %s: %s", source, err)
	}
	defer srcF.Close()

	dstF, err = os.Open(dest)
	if err != nil {
		dstF.Close()
		return fmt.Errorf("failed to open %s: %s", dest, err)
	}
	defer dstF.Close()

	data, err = ioutil.ReadFile(source)
	if err != nil {
		return fmt.Errorf("failed to read %s: %s", source, err)
	}

	err = ioutil.WriteFile(dest, data, 0)
	if err != nil {
		return fmt.Errorf("failed to read %s: %s", dest, err)
	}

	return nil
}

func retryingWriteFile(fd *os.File, data string) error {
	for {
		_, err := fd.Write([]byte(data))
		if errors.Is(err, unix.EINTR) {
			logrus.Infof("interrupted while writing %s to %s", data, fd.Name())
			continue
		}
		return err
	}
}

// ParseUint converts a cgroupfs value to uint64, treating "max" (the v2
// spelling of "no limit") as 0.
func ParseUint(s string, base, bitSize int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "max" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, base, bitSize)
	if err != nil {
		intVal, intErr := strconv.ParseInt(s, base, bitSize)
		if intErr == nil && intVal < 0 {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

// GetValueByKey reads a "key value" formatted cgroup stat file (e.g.
// memory.stat) and returns the value for key, or 0 if absent.
func GetValueByKey(dir, file, key string) (uint64, error) {
	data, err := ReadFile(dir, file)
	if err != nil {
		return 0, err
	}
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) == 2 && parts[0] == key {
			return strconv.ParseUint(parts[1], 10, 64)
		}
	}
	return 0, scanner.Err()
}

// RdmaSet writes the configured RDMA resource limits to rdma.max, one
// line per configured device; a device whose limits are both unlimited
// is skipped.
func RdmaSet(path string, r *configs.Resources) error {
	for device, limits := range r.Rdma {
		if limits.HcaHandles == configs.RdmaUnlimited && limits.HcaObjects == configs.RdmaUnlimited {
			continue
		}
		value := fmt.Sprintf("%s hca_handle=%s hca_object=%s", device, rdmaLimitStr(limits.HcaHandles), rdmaLimitStr(limits.HcaObjects))
		if err := WriteFile(path, "rdma.max", value); err != nil {
			return err
		}
	}
	return nil
}

func rdmaLimitStr(v uint32) string {
	if v == configs.RdmaUnlimited {
		return "max"
	}
	return strconv.FormatUint(uint64(v), 10)
}

// RdmaGetStats reads rdma.current and reports an error if it cannot be
// read. rdma.current isn't present on hosts without an RDMA-capable
// NIC, which is the common case, so a missing file is not an error.
// The per-device counters are not parsed and nothing is recorded in
// stats: Stats has no RDMA fields.
func RdmaGetStats(path string, stats *cgroups.Stats) error {
	data, err := ReadFile(path, "rdma.current")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	_ = data // not recorded; see above.
	return nil
}
