package libcontainer

import "github.com/go-oci/ocirt/libcontainer/cgroups"

// Stats is the payload this runtime's Stats operation returns: cgroup
// controller counters plus per-veth network counters, there being no
// Intel RDT or CRIU component in this runtime to report on.
type Stats struct {
	Interfaces  []*NetworkInterface `json:"interfaces,omitempty"`
	CgroupStats *cgroups.Stats      `json:"cgroup_stats"`
}
