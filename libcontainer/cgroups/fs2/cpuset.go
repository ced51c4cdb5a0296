package fs2

import (
	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

func setCpuset(dirPath string, cgroup *configs.Cgroup) error {
	r := cgroup.Resources
	if r.CpusetCpus != "" {
		if _, err := fscommon.ParseCpuset(r.CpusetCpus); err != nil {
			return err
		}
		if err := fscommon.WriteFile(dirPath, "cpuset.cpus", r.CpusetCpus); err != nil {
			return err
		}
	}
	if r.CpusetMems != "" {
		if _, err := fscommon.ParseCpuset(r.CpusetMems); err != nil {
			return err
		}
		if err := fscommon.WriteFile(dirPath, "cpuset.mems", r.CpusetMems); err != nil {
			return err
		}
	}
	return nil
}
