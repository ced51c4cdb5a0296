package fs

import (
	"fmt"
	"os"

	"github.com/go-oci/ocirt/libcontainer/cgroups"
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

type NetClsGroup struct{}

func (s *NetClsGroup) Name() string { return "net_cls" }

func (s *NetClsGroup) Apply(path string, d *cgroupData) error { return join(path, d.pid) }

func (s *NetClsGroup) Set(path string, cgroup *configs.Cgroup) error {
	if cgroup.Resources.NetClsClassid != 0 {
		return fscommon.WriteFile(path, "net_cls.classid", fmt.Sprintf("%d", cgroup.Resources.NetClsClassid))
	}
	return nil
}

func (s *NetClsGroup) GetStats(path string, stats *cgroups.Stats) error { return nil }

func (s *NetClsGroup) Clone(source, dest string) error {
	if err := fscommon.WriteFile(source, "cgroup.clone_children", "1"); err != nil {
		return err
	}
	return os.MkdirAll(dest, 0o755)
}
