package fs2

import (
	"fmt"
	"os"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"

	"github.com/go-oci/ocirt/libcontainer/configs"
)

// Device access types, from the kernel's bpf_devcg_dev enum
// (uapi/linux/bpf.h) — not exposed by golang.org/x/sys/unix, so kept
// as local constants.
const (
	devcgDevBlock = 1
	devcgDevChar  = 2
)

// setDevices compiles the configured device allow/deny rules into a
// BPF_PROG_TYPE_CGROUP_DEVICE program and attaches it to dirPath,
// replacing any program already attached there. v2 has no
// devices.allow/deny files; device access control is itself cgroup-eBPF
// based.
func setDevices(dirPath string, cgroup *configs.Cgroup) error {
	if cgroup.Resources.SkipDevices {
		return nil
	}
	insts := buildDeviceProgram(cgroup.Resources.Devices)

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Type:         ebpf.CGroupDevice,
		Instructions: insts,
		License:      "Apache",
	})
	if err != nil {
		return fmt.Errorf("failed to load cgroup device program: %w", err)
	}
	defer prog.Close()

	dirFd, err := os.Open(dirPath)
	if err != nil {
		return err
	}
	defer dirFd.Close()

	if err := link.RawAttachProgram(link.RawAttachProgramOptions{
		Target:  int(dirFd.Fd()),
		Program: prog,
		Attach:  ebpf.AttachCGroupDevice,
	}); err != nil {
		return fmt.Errorf("failed to attach cgroup device program to %s: %w", dirPath, err)
	}
	return nil
}

// buildDeviceProgram renders the rule list into bytecode that, for
// each cgroup_dev_ctx access attempt, walks the rules in order and
// lets the last matching rule's Allow decide R0 (1 allow, 0 deny),
// matching devices.allow/deny list semantics. ctx layout (struct
// bpf_cgroup_dev_ctx): access_type u32 @0 (low 16 bits device type,
// high 16 bits access mask), major u32 @4, minor u32 @8.
func buildDeviceProgram(rules []*configs.Device) asm.Instructions {
	insts := asm.Instructions{
		asm.Mov.Reg(asm.R6, asm.R1),
		asm.Mov.Imm(asm.R0, 0),
	}

	for i, rule := range rules {
		label := fmt.Sprintf("skip_%d", i)
		var block asm.Instructions

		if rule.Type != 0 && rule.Type != 'a' {
			var want uint32 = devcgDevChar
			if rule.Type == 'b' {
				want = devcgDevBlock
			}
			block = append(block,
				asm.LoadMem(asm.R2, asm.R6, 0, asm.Word),
				asm.And.Imm(asm.R2, 0xffff),
				asm.JNE.Imm(asm.R2, int32(want), label),
			)
		}
		if rule.Major >= 0 {
			block = append(block,
				asm.LoadMem(asm.R2, asm.R6, 4, asm.Word),
				asm.JNE.Imm(asm.R2, int32(rule.Major), label),
			)
		}
		if rule.Minor >= 0 {
			block = append(block,
				asm.LoadMem(asm.R2, asm.R6, 8, asm.Word),
				asm.JNE.Imm(asm.R2, int32(rule.Minor), label),
			)
		}

		verdict := int64(0)
		if rule.Allow {
			verdict = 1
		}
		block = append(block, asm.LoadImm(asm.R0, verdict, asm.DWord))

		insts = append(insts, block...)
		insts = append(insts, asm.Mov.Reg(asm.R6, asm.R6).Sym(label))
	}

	insts = append(insts, asm.Return())
	return insts
}
