// Package seccomp installs the OCI spec's LinuxSeccomp filter via
// libseccomp-golang, the last step of the init process before exec
//. Compiling a seccomp profile into BPF is
// the one piece of syscall filtering semantics this runtime does not
// reimplement — it hands the OCI rule list to libseccomp and lets the
// library do the compilation.
package seccomp

import (
	"fmt"

	"github.com/go-oci/ocirt/libcontainer/configs"
	libseccomp "github.com/seccomp/libseccomp-golang"
)

var actionByName = map[string]libseccomp.ScmpAction{
	"SCMP_ACT_KILL":       libseccomp.ActKill,
	"SCMP_ACT_KILL_PROCESS": libseccomp.ActKillProcess,
	"SCMP_ACT_TRAP":      libseccomp.ActTrap,
	"SCMP_ACT_ERRNO":     libseccomp.ActErrno,
	"SCMP_ACT_TRACE":     libseccomp.ActTrace,
	"SCMP_ACT_ALLOW":     libseccomp.ActAllow,
	"SCMP_ACT_LOG":       libseccomp.ActLog,
}

var opByName = map[string]libseccomp.ScmpCompareOp{
	"SCMP_CMP_NE":        libseccomp.CompareNotEqual,
	"SCMP_CMP_LT":        libseccomp.CompareLess,
	"SCMP_CMP_LE":        libseccomp.CompareLessOrEqual,
	"SCMP_CMP_EQ":        libseccomp.CompareEqual,
	"SCMP_CMP_GE":        libseccomp.CompareGreaterEqual,
	"SCMP_CMP_GT":        libseccomp.CompareGreater,
	"SCMP_CMP_MASKED_EQ": libseccomp.CompareMaskedEqual,
}

// Install compiles cfg into a BPF program and loads it into the calling
// thread/process. Must be called as close to the final execve as
// possible so as few syscalls as possible run under the new filter.
func Install(cfg *configs.Seccomp) error {
	defaultAction, err := resolveAction(cfg.DefaultAction)
	if err != nil {
		return err
	}

	filter, err := libseccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("seccomp: new filter: %w", err)
	}
	defer filter.Release()

	for _, archName := range cfg.Architectures {
		arch, err := libseccomp.GetArchFromString(archName)
		if err != nil {
			return fmt.Errorf("seccomp: unknown architecture %q: %w", archName, err)
		}
		if err := filter.AddArch(arch); err != nil {
			return fmt.Errorf("seccomp: add arch %q: %w", archName, err)
		}
	}

	for _, rule := range cfg.Syscalls {
		action, err := resolveAction(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			call, err := libseccomp.GetSyscallFromName(name)
			if err != nil {
				// Syscalls unknown to this kernel/arch are silently
				// skipped: a rule for a syscall that doesn't exist
				// here is a no-op.
				continue
			}
			if len(rule.Args) == 0 {
				if err := filter.AddRule(call, action); err != nil {
					return fmt.Errorf("seccomp: add rule for %s: %w", name, err)
				}
				continue
			}
			conds, err := conditions(rule.Args)
			if err != nil {
				return err
			}
			if err := filter.AddRuleConditional(call, action, conds); err != nil {
				return fmt.Errorf("seccomp: add conditional rule for %s: %w", name, err)
			}
		}
	}

	return filter.Load()
}

func conditions(args []configs.SeccompArg) ([]libseccomp.ScmpCondition, error) {
	out := make([]libseccomp.ScmpCondition, 0, len(args))
	for _, a := range args {
		op, ok := opByName[a.Op]
		if !ok {
			return nil, fmt.Errorf("seccomp: unknown comparison op %q", a.Op)
		}
		cond, err := libseccomp.MakeCondition(a.Index, op, a.Value, a.ValueTwo)
		if err != nil {
			return nil, fmt.Errorf("seccomp: make condition: %w", err)
		}
		out = append(out, cond)
	}
	return out, nil
}

func resolveAction(name string) (libseccomp.ScmpAction, error) {
	if name == "" {
		return libseccomp.ActAllow, nil
	}
	a, ok := actionByName[name]
	if !ok {
		return 0, fmt.Errorf("seccomp: unknown action %q", name)
	}
	return a, nil
}
