package env

import (
	"os"
	"sort"
	"strings"
)

// Overlay holds key/value pairs layered on top of a base environment.
type Overlay map[string]string

// Parse builds an Overlay from "K=V" entries. Malformed entries and entries
// with empty keys are skipped.
func Parse(kvs []string) Overlay {
	o := make(Overlay, len(kvs))
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		o[kv[:i]] = kv[i+1:]
	}
	return o
}

// Merge composes the final environment for a child process:
// the supervisor's own environment as base, then the overlay applied on top.
// ${VAR} references in overlay values are expanded against the composed map
// (single pass, no recursion). The result is sorted for determinism.
func (o Overlay) Merge() []string {
	m := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range o {
		if k == "" {
			continue
		}
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}
