package configs

import "fmt"

// Cgroup groups the cgroup path and resource limits for a container.
type Cgroup struct {
	// Name is used when no explicit Path is given: the cgroup is created
	// as <Parent>/<Name>.
	Name string `json:"name,omitempty"`

	// Parent is the parent cgroup under the controller root.
	Parent string `json:"parent,omitempty"`

	// Path is the cgroup's path relative to the controller/unified root.
	// When set, it takes precedence over Name/Parent.
	Path string `json:"path"`

	// ScopePrefix is used to generate the systemd scope unit name when
	// Systemd is true and Name is empty.
	ScopePrefix string `json:"scope_prefix,omitempty"`

	// Systemd requests that the systemd cgroup manager be used
	// (--systemd-cgroup), delegating unit creation to systemd over D-Bus.
	Systemd bool `json:"systemd"`

	// Resources are the limits to apply.
	Resources *Resources `json:"resources"`
}

// FreezerState is the target state for the freezer controller.
type FreezerState string

const (
	Undefined FreezerState = ""
	Frozen    FreezerState = "FROZEN"
	Thawed    FreezerState = "THAWED"
)

// Resources is the union of every controller's tunables the cgroup
// manager can apply. Zero values mean "don't touch this controller".
type Resources struct {
	// Devices is the device-cgroup allow/deny list.
	Devices []*Device `json:"devices"`

	// Memory, in bytes. 0 means unset.
	Memory            int64 `json:"memory"`
	MemoryReservation int64 `json:"memory_reservation"`
	MemorySwap        int64 `json:"memory_swap"`
	KernelMemory      int64 `json:"kernel_memory"`
	OomKillDisable    bool  `json:"oom_kill_disable"`

	// CPU.
	CpuShares          uint64 `json:"cpu_shares"`
	CpuQuota           int64  `json:"cpu_quota"`
	CpuPeriod          uint64 `json:"cpu_period"`
	CpuRtRuntime       int64  `json:"cpu_rt_runtime"`
	CpuRtPeriod        uint64 `json:"cpu_rt_period"`
	CpusetCpus         string `json:"cpuset_cpus"`
	CpusetMems         string `json:"cpuset_mems"`

	// Pids.
	PidsLimit int64 `json:"pids_limit"`

	// Blkio.
	BlkioWeight            uint16             `json:"blkio_weight"`
	BlkioWeightDevice      []*WeightDevice    `json:"blkio_weight_device"`
	BlkioThrottleReadBps   []*ThrottleDevice  `json:"blkio_throttle_read_bps"`
	BlkioThrottleWriteBps  []*ThrottleDevice  `json:"blkio_throttle_write_bps"`
	BlkioThrottleReadIOPS  []*ThrottleDevice  `json:"blkio_throttle_read_iops"`
	BlkioThrottleWriteIOPS []*ThrottleDevice  `json:"blkio_throttle_write_iops"`

	// Hugetlb: page-size string ("2MB") -> byte limit.
	HugetlbLimit map[string]uint64 `json:"hugetlb_limit"`

	// NetCls/NetPrio.
	NetClsClassid    uint32       `json:"net_cls_classid"`
	NetPrioIfpriomap []*IfPrioMap `json:"net_prio_ifpriomap"`

	// Rdma: rdma device name -> hca handle/object limits.
	Rdma map[string]RdmaEntry `json:"rdma"`

	// Freezer is the target freezer state; set by Manager.Freeze, not
	// part of the OCI resources the container starts with.
	Freezer FreezerState `json:"freezer"`

	// Unified is the raw set of cgroup v2 file writes for controllers
	// that have no structured field above (forwarded verbatim).
	Unified map[string]string `json:"unified"`

	// SkipDevices makes the cgroup managers leave the device rules
	// unapplied; no validation rejects a config that sets it.
	SkipDevices bool `json:"skip_devices"`

	// CpuWeight is the cgroup v2 equivalent of CpuShares. specconv does
	// not set it; when it is 0 the v2 manager converts CpuShares instead.
	CpuWeight uint64 `json:"cpu_weight"`
}

type WeightDevice struct {
	Major  int64  `json:"major"`
	Minor  int64  `json:"minor"`
	Weight uint16 `json:"weight"`
}

type ThrottleDevice struct {
	Major int64  `json:"major"`
	Minor int64  `json:"minor"`
	Rate  uint64 `json:"rate"`
}

// IfPrioMap is a single network-interface priority assignment for the
// net_prio controller.
type IfPrioMap struct {
	Interface string `json:"interface"`
	Priority  int64  `json:"priority"`
}

func (i *IfPrioMap) CgroupString() string {
	return fmt.Sprintf("%s %d", i.Interface, i.Priority)
}

type RdmaEntry struct {
	HcaHandles uint32 `json:"hca_handles"`
	HcaObjects uint32 `json:"hca_objects"`
}

// RdmaUnlimited marks an RdmaEntry field as "max" rather than a count.
const RdmaUnlimited = ^uint32(0)
