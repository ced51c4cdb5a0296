package nsctrl

import (
	"testing"

	"github.com/go-oci/ocirt/libcontainer/configs"
	"github.com/go-oci/ocirt/libcontainer/syscallfacade"
)

func TestApplyOrderMountLast(t *testing.T) {
	fake := syscallfacade.NewFake()
	c := New(fake)

	ns := configs.Namespaces{
		{Type: configs.NEWNS},
		{Type: configs.NEWNET},
		{Type: configs.NEWIPC},
		{Type: configs.NEWUTS},
	}

	if err := c.Apply(ns, nil); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	calls := fake.Names()
	if len(calls) != 4 {
		t.Fatalf("expected 4 unshare calls, got %d: %v", len(calls), calls)
	}
	for _, name := range calls[:3] {
		if name != "unshare" {
			t.Fatalf("expected unshare calls before mount, got %v", calls)
		}
	}
	// The mount namespace (config order position 1, applied order last)
	// must be the final unshare call.
	last := fake.Calls[len(fake.Calls)-1]
	if last.Args[0] != uintptr(configs.NsCloneFlag(configs.NEWNS)) {
		t.Fatalf("expected mount namespace to be unshared last, got %+v", fake.Calls)
	}
}

func TestApplySkipsHandledNamespaces(t *testing.T) {
	fake := syscallfacade.NewFake()
	c := New(fake)

	ns := configs.Namespaces{
		{Type: configs.NEWUSER},
		{Type: configs.NEWPID},
		{Type: configs.NEWUTS},
	}

	skip := map[configs.NamespaceType]bool{
		configs.NEWUSER: true,
		configs.NEWPID:  true,
	}

	if err := c.Apply(ns, skip); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(fake.Calls) != 1 {
		t.Fatalf("expected only the uts namespace to be applied, got %+v", fake.Calls)
	}
}

func TestApplyEntersExistingNamespace(t *testing.T) {
	fake := syscallfacade.NewFake()
	c := New(fake)

	ns := configs.Namespaces{
		{Type: configs.NEWNET, Path: "/proc/1/ns/net"},
	}

	if err := c.Apply(ns, nil); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if len(fake.Calls) != 1 || fake.Calls[0].Name != "setns" {
		t.Fatalf("expected a single setns call, got %+v", fake.Calls)
	}
}
