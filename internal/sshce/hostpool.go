package sshce

import (
	"strconv"
	"strings"
)

// HostSpec is one configured SSH host with its declared capacity.
type HostSpec struct {
	Host     string
	MaxSlots int
}

// ParseHostPool reads a comma-separated `HOSTNAME[/MAXSLOTS]` list,
// defaulting MAXSLOTS to 1 when absent. Declaration order is preserved,
// it is the dispatcher's tie-break among hosts with equal free capacity.
func ParseHostPool(csv string) []HostSpec {
	var hosts []HostSpec
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		host := tok
		maxSlots := 1
		if idx := strings.Index(tok, "/"); idx >= 0 {
			host = tok[:idx]
			if n, err := strconv.Atoi(tok[idx+1:]); err == nil && n > 0 {
				maxSlots = n
			}
		}
		hosts = append(hosts, HostSpec{Host: host, MaxSlots: maxSlots})
	}
	return hosts
}
