// Package jobhandle is the single parse/format utility for job handles,
// shared between submission, kill and status so a handle produced by one
// is always recoverable by the others.
package jobhandle

import (
	"fmt"
	"strings"
)

const separator = "/"

// Format produces an opaque path-like locator carrying the host and the
// host-local job id fragment.
func Format(host, localID string) string {
	return fmt.Sprintf("ssh%s%s%s%s", separator, host, separator, localID)
}

// Parse recovers the host fragment (and local id) from a handle produced
// by Format. ok is false for anything that doesn't match the expected
// shape; callers drop such unparseable handles rather than failing outright.
func Parse(handle string) (host, localID string, ok bool) {
	parts := strings.SplitN(handle, separator, 3)
	if len(parts) != 3 || parts[0] != "ssh" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
