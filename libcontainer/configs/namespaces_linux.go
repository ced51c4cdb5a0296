package configs

import "golang.org/x/sys/unix"

var namespaceInfo = map[NamespaceType]int{
	NEWNET:    unix.CLONE_NEWNET,
	NEWNS:     unix.CLONE_NEWNS,
	NEWUSER:   unix.CLONE_NEWUSER,
	NEWIPC:    unix.CLONE_NEWIPC,
	NEWUTS:    unix.CLONE_NEWUTS,
	NEWPID:    unix.CLONE_NEWPID,
	NEWCGROUP: unix.CLONE_NEWCGROUP,
}

// CloneFlags returns the clone(2)/unshare(2) flag word for every namespace
// in the set that is being created (Path == ""); namespaces being entered
// via setns use a host path instead and contribute no clone flag.
func (n Namespaces) CloneFlags() uintptr {
	var flag int
	for _, ns := range n {
		if ns.Path != "" {
			continue
		}
		flag |= namespaceInfo[ns.Type]
	}
	return uintptr(flag)
}

// NsCloneFlag returns the clone flag for a single namespace type.
func NsCloneFlag(t NamespaceType) int {
	return namespaceInfo[t]
}
