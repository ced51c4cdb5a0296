package configs

// NamespaceType identifies one of the Linux namespace kinds the runtime
// manages. The string values match the OCI runtime-spec namespace names.
type NamespaceType string

const (
	NEWNET    NamespaceType = "network"
	NEWPID    NamespaceType = "pid"
	NEWNS     NamespaceType = "mount"
	NEWUTS    NamespaceType = "uts"
	NEWIPC    NamespaceType = "ipc"
	NEWUSER   NamespaceType = "user"
	NEWCGROUP NamespaceType = "cgroup"
)

// namespaceOrder lists the namespaces applied first, per this runtime
// §4.B: user, then pid. Ordered places every other namespace after them
// in spec order (the order the set lists them), with mount always last
// so earlier steps still see the host filesystem.
var namespaceOrder = []NamespaceType{
	NEWUSER,
	NEWPID,
}

// Namespace is a single requested namespace: either created fresh (Path
// empty) or entered via an existing namespace file (Path set).
type Namespace struct {
	Type NamespaceType `json:"type"`
	Path string        `json:"path"`
}

// Namespaces is the ordered set of namespaces a container config requests.
type Namespaces []Namespace

func (n Namespaces) Contains(t NamespaceType) bool {
	_, exists := n.index(t)
	return exists
}

func (n Namespaces) index(t NamespaceType) (int, bool) {
	for i, ns := range n {
		if ns.Type == t {
			return i, true
		}
	}
	return -1, false
}

// PathOf returns the host namespace file the container should join for
// the given type, or "" if the namespace is created fresh or absent.
func (n Namespaces) PathOf(t NamespaceType) string {
	if i, ok := n.index(t); ok {
		return n[i].Path
	}
	return ""
}

// Remove drops a namespace from the set; used when specconv strips
// namespaces the host doesn't support (e.g. cgroup namespace on an old
// kernel) after warning.
func (n *Namespaces) Remove(t NamespaceType) bool {
	i, ok := n.index(t)
	if !ok {
		return false
	}
	*n = append((*n)[:i], (*n)[i+1:]...)
	return true
}

// Ordered returns the namespace set in creation order: user, pid, then
// the remaining namespaces in the order the set lists them, then mount.
// Namespaces not present in the set are skipped.
func (n Namespaces) Ordered() []Namespace {
	out := make([]Namespace, 0, len(n))
	for _, t := range namespaceOrder {
		if i, ok := n.index(t); ok {
			out = append(out, n[i])
		}
	}
	for _, ns := range n {
		if ns.Type != NEWUSER && ns.Type != NEWPID && ns.Type != NEWNS {
			out = append(out, ns)
		}
	}
	if i, ok := n.index(NEWNS); ok {
		out = append(out, n[i])
	}
	return out
}

// NsName returns the short name the kernel and /proc/<pid>/ns/<name>
// use for the given namespace type.
func NsName(t NamespaceType) string {
	switch t {
	case NEWNET:
		return "net"
	case NEWPID:
		return "pid"
	case NEWNS:
		return "mnt"
	case NEWUTS:
		return "uts"
	case NEWIPC:
		return "ipc"
	case NEWUSER:
		return "user"
	case NEWCGROUP:
		return "cgroup"
	}
	return ""
}
