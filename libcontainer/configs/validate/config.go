// Package validate checks a configs.Config for internal consistency
// before the process pipeline starts tearing down namespaces and mounts
// on its behalf. Catching mistakes here turns them into a clean
// ConfigInvalid at create time instead of a half-torn-down container.
package validate

import (
	"fmt"
	"path/filepath"

	"github.com/go-oci/ocirt/libcontainer/configs"
)

type Validator interface {
	Validate(*configs.Config) error
}

type ConfigValidator struct{}

func New() Validator {
	return &ConfigValidator{}
}

type check func(*configs.Config) error

func (v *ConfigValidator) Validate(config *configs.Config) error {
	checks := []check{
		v.rootfs,
		v.network,
		v.hostname,
		v.security,
		v.usernamespace,
		v.cgroupnamespace,
		v.sysctl,
		v.intelrdt,
	}
	for _, c := range checks {
		if err := c(config); err != nil {
			return err
		}
	}
	// Run this after the other checks so we can assume that the config
	// is otherwise valid.
	if err := v.procMount(config); err != nil {
		return err
	}
	return nil
}

func (v *ConfigValidator) rootfs(config *configs.Config) error {
	if config.Rootfs == "" {
		return fmt.Errorf("rootfs is not set")
	}
	if !filepath.IsAbs(config.Rootfs) {
		return fmt.Errorf("rootfs %q must be an absolute path", config.Rootfs)
	}
	return nil
}

// procMount verifies that if a new mount namespace is requested, /proc
// is either already bind-mounted from the host or explicitly mounted by
// the spec; otherwise the container would see a stale /proc.
func (v *ConfigValidator) procMount(config *configs.Config) error {
	if !config.Namespaces.Contains(configs.NEWNS) {
		return nil
	}
	for _, m := range config.Mounts {
		if filepath.Clean(m.Destination) == "/proc" {
			return nil
		}
	}
	return fmt.Errorf("rootfs must have /proc mounted when using a new mount namespace")
}

func (v *ConfigValidator) network(config *configs.Config) error {
	if !config.Namespaces.Contains(configs.NEWNET) {
		if len(config.Networks) > 0 {
			return fmt.Errorf("unable to apply network settings without a network namespace")
		}
	}
	return nil
}

func (v *ConfigValidator) hostname(config *configs.Config) error {
	if config.Hostname != "" && !config.Namespaces.Contains(configs.NEWUTS) {
		return fmt.Errorf("unable to set hostname without a UTS namespace")
	}
	return nil
}

func (v *ConfigValidator) security(config *configs.Config) error {
	if config.Capabilities == nil {
		return nil
	}
	for _, c := range config.Capabilities.Effective {
		if !isKnownCapability(c) {
			return fmt.Errorf("unknown capability %q", c)
		}
	}
	return nil
}

// usernamespace checks the boundary case from : a user
// namespace must carry at least one mapping entry for each of uid/gid.
func (v *ConfigValidator) usernamespace(config *configs.Config) error {
	if !config.Namespaces.Contains(configs.NEWUSER) {
		if len(config.UidMappings) > 0 || len(config.GidMappings) > 0 {
			return fmt.Errorf("user namespace mappings specified without a user namespace")
		}
		return nil
	}
	if len(config.UidMappings) == 0 || len(config.GidMappings) == 0 {
		return fmt.Errorf("user namespace requested without uid/gid mappings")
	}
	return nil
}

func (v *ConfigValidator) cgroupnamespace(config *configs.Config) error {
	if config.Namespaces.Contains(configs.NEWCGROUP) {
		if config.Cgroups == nil {
			return fmt.Errorf("cgroup namespace requested without a cgroup configuration")
		}
	}
	return nil
}

func (v *ConfigValidator) sysctl(config *configs.Config) error {
	if len(config.Sysctl) == 0 {
		return nil
	}
	if !config.Namespaces.Contains(configs.NEWNET) {
		for k := range config.Sysctl {
			if len(k) >= 4 && k[:4] == "net." {
				return fmt.Errorf("sysctl %q requires a network namespace", k)
			}
		}
	}
	return nil
}

func (v *ConfigValidator) intelrdt(config *configs.Config) error {
	// Intel RDT resource control is not implemented by this runtime and
	// Config has no Intel RDT fields, so there is nothing to check.
	return nil
}

func isKnownCapability(c string) bool {
	return len(c) > 4 && c[:4] == "CAP_"
}
