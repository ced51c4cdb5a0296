package fscommon

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/willf/bitset"
)

// ParseCpuset parses a cgroup cpuset.cpus/cpuset.mems range string such
// as "0-3,5,7-9" into a bitset, so a malformed range can be rejected
// with a clear error before it reaches the kernel as an opaque EINVAL
// on write.
func ParseCpuset(s string) (*bitset.BitSet, error) {
	set := bitset.New(0)
	s = strings.TrimSpace(s)
	if s == "" {
		return set, nil
	}
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			loN, err := strconv.ParseUint(lo, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("fscommon: invalid cpuset range %q: %w", part, err)
			}
			hiN, err := strconv.ParseUint(hi, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("fscommon: invalid cpuset range %q: %w", part, err)
			}
			if hiN < loN {
				return nil, fmt.Errorf("fscommon: invalid cpuset range %q: end before start", part)
			}
			for i := loN; i <= hiN; i++ {
				set.Set(uint(i))
			}
			continue
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("fscommon: invalid cpuset entry %q: %w", part, err)
		}
		set.Set(uint(n))
	}
	return set, nil
}

// FormatCpuset renders set back into the kernel's range-list form,
// collapsing consecutive members into "lo-hi" spans.
func FormatCpuset(set *bitset.BitSet) string {
	var spans []string
	i, n := uint(0), set.Len()
	for i < n {
		if !set.Test(i) {
			i++
			continue
		}
		start := i
		for i < n && set.Test(i) {
			i++
		}
		end := i - 1
		if start == end {
			spans = append(spans, strconv.FormatUint(uint64(start), 10))
		} else {
			spans = append(spans, fmt.Sprintf("%d-%d", start, end))
		}
	}
	return strings.Join(spans, ",")
}
