package configs

import "fmt"

// rlimitMap mirrors the RLIMIT_* name the OCI spec uses to the numeric
// resource constant golang.org/x/sys/unix expects.
var rlimitMap = map[string]int{
	"RLIMIT_AS":         9,
	"RLIMIT_CORE":       4,
	"RLIMIT_CPU":        0,
	"RLIMIT_DATA":       2,
	"RLIMIT_FSIZE":      1,
	"RLIMIT_LOCKS":      10,
	"RLIMIT_MEMLOCK":    8,
	"RLIMIT_MSGQUEUE":   12,
	"RLIMIT_NICE":       13,
	"RLIMIT_NOFILE":     7,
	"RLIMIT_NPROC":      6,
	"RLIMIT_RSS":        5,
	"RLIMIT_RTPRIO":     14,
	"RLIMIT_RTTIME":     15,
	"RLIMIT_SIGPENDING": 11,
	"RLIMIT_STACK":      3,
}

// RlimitTypeFromOCI resolves an OCI POSIXRlimit "type" string (e.g.
// "RLIMIT_NOFILE") to the numeric resource constant used by setrlimit.
func RlimitTypeFromOCI(t string) (int, error) {
	rl, ok := rlimitMap[t]
	if !ok {
		return 0, fmt.Errorf("invalid rlimit type %q", t)
	}
	return rl, nil
}
