package libcontainer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// NetworkInterface holds the per-veth counters surfaced by `events
// --stats`. Only the host-side veth carries real numbers; the
// container-side end is intentionally not read, since it would require
// entering the container's network namespace.
type NetworkInterface struct {
	Name string `json:"name"`

	RxBytes   uint64 `json:"rx_bytes"`
	RxPackets uint64 `json:"rx_packets"`
	RxErrors  uint64 `json:"rx_errors"`
	RxDropped uint64 `json:"rx_dropped"`

	TxBytes   uint64 `json:"tx_bytes"`
	TxPackets uint64 `json:"tx_packets"`
	TxErrors  uint64 `json:"tx_errors"`
	TxDropped uint64 `json:"tx_dropped"`
}

func getNetworkInterfaceStats(interfaceName string) (*NetworkInterface, error) {
	out := &NetworkInterface{Name: interfaceName}
	base := filepath.Join("/sys/class/net", interfaceName, "statistics")

	fields := map[string]*uint64{
		"rx_bytes":   &out.RxBytes,
		"rx_packets": &out.RxPackets,
		"rx_errors":  &out.RxErrors,
		"rx_dropped": &out.RxDropped,
		"tx_bytes":   &out.TxBytes,
		"tx_packets": &out.TxPackets,
		"tx_errors":  &out.TxErrors,
		"tx_dropped": &out.TxDropped,
	}
	for name, dest := range fields {
		v, err := readSysUint(filepath.Join(base, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		*dest = v
	}
	return out, nil
}

func readSysUint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}
