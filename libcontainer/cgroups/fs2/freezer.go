package fs2

import (
	"os"
	"strings"
	"time"

	"github.com/go-oci/ocirt/libcontainer/cgroups/fscommon"
	"github.com/go-oci/ocirt/libcontainer/configs"
)

func setFreezer(dirPath string, state configs.FreezerState) error {
	switch state {
	case configs.Undefined:
		return nil
	case configs.Frozen, configs.Thawed:
	default:
		return nil
	}

	value := "0"
	if state == configs.Frozen {
		value = "1"
	}
	if err := fscommon.WriteFile(dirPath, "cgroup.freeze", value); err != nil {
		return err
	}
	if state != configs.Frozen {
		return nil
	}
	for i := 0; i < 1000; i++ {
		got, err := getFreezer(dirPath)
		if err != nil {
			return err
		}
		if got == configs.Frozen {
			return nil
		}
		time.Sleep(1 * time.Millisecond)
	}
	return nil
}

func getFreezer(dirPath string) (configs.FreezerState, error) {
	raw, err := fscommon.ReadFile(dirPath, "cgroup.freeze")
	if err != nil {
		if os.IsNotExist(err) {
			return configs.Undefined, nil
		}
		return configs.Undefined, err
	}
	switch strings.TrimSpace(raw) {
	case "1":
		return configs.Frozen, nil
	case "0":
		return configs.Thawed, nil
	default:
		return configs.Undefined, nil
	}
}
