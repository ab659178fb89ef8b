package gate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Permission is a named capability. Its value is a Fibonacci number and its
// bit in a mask is the number's position in the sequence, so the
// non-adjacency rule on masks forbids pairing neighbouring permissions.
type Permission int

const (
	PermRead   Permission = 1
	PermWrite  Permission = 2
	PermExec   Permission = 3
	PermAdmin  Permission = 5
	PermAudit  Permission = 8
	PermGrant  Permission = 13
	PermSecure Permission = 21
	PermTrace  Permission = 34
	PermDebug  Permission = 55
	PermRoot   Permission = 89
	PermOmnis  Permission = 144
)

// AllPermissions lists the catalogue in bit order.
var AllPermissions = []Permission{
	PermRead, PermWrite, PermExec, PermAdmin, PermAudit,
	PermGrant, PermSecure, PermTrace, PermDebug, PermRoot, PermOmnis,
}

var permissionNames = map[Permission]string{
	PermRead:   "read",
	PermWrite:  "write",
	PermExec:   "exec",
	PermAdmin:  "admin",
	PermAudit:  "audit",
	PermGrant:  "grant",
	PermSecure: "secure",
	PermTrace:  "trace",
	PermDebug:  "debug",
	PermRoot:   "root",
	PermOmnis:  "omnis",
}

func (p Permission) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return "Permission(" + strconv.Itoa(int(p)) + ")"
}

// Bit returns the mask bit index of p, or -1 if p is not in the catalogue.
func (p Permission) Bit() int {
	for i, known := range AllPermissions {
		if known == p {
			return i
		}
	}
	return -1
}

// ParsePermission accepts a catalogue name ("read") or value ("1").
func ParsePermission(s string) (Permission, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range permissionNames {
		if name == s {
			return p, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && Permission(n).Bit() >= 0 {
		return Permission(n), nil
	}
	return 0, fmt.Errorf("unknown permission %q", s)
}

// BuildMask combines permissions into a mask. It rejects unknown permissions
// and neighbouring pairs, so every mask it returns passes IsValidMask.
// Duplicates are folded.
func BuildMask(perms ...Permission) (int64, error) {
	bits := make([]int, 0, len(perms))
	for _, p := range perms {
		b := p.Bit()
		if b < 0 {
			return 0, fmt.Errorf("unknown permission %d", int(p))
		}
		bits = append(bits, b)
	}
	sort.Ints(bits)

	var mask int64
	for i, b := range bits {
		if i > 0 && b-bits[i-1] == 1 {
			return 0, fmt.Errorf("permissions %s and %s are adjacent",
				AllPermissions[bits[i-1]], AllPermissions[b])
		}
		mask |= 1 << b
	}
	return mask, nil
}

// HasPermission reports whether mask grants p.
func HasPermission(mask int64, p Permission) bool {
	b := p.Bit()
	return b >= 0 && mask&(1<<b) != 0
}

// Permissions decodes the catalogue permissions present in mask.
func Permissions(mask int64) []Permission {
	var out []Permission
	for i, p := range AllPermissions {
		if mask&(1<<i) != 0 {
			out = append(out, p)
		}
	}
	return out
}
