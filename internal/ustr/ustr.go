// Package ustr provides the directory-entry name type: a fixed
// 14-byte, NUL-padded (not necessarily NUL-terminated) field, plus
// the equality and conversion helpers the inode layer's directory
// operations need. Unlike the source this generalizes, there is no
// path-walking layer in this kernel's scope, so only the primitives a
// fixed-width on-disk name field requires are kept.
package ustr

import "strings"

/// NameLen is the fixed width of a directory entry's name field.
const NameLen = 14

/// Name is an immutable directory-entry name, compared and stored
/// byte-for-byte.
type Name []byte

/// FromString truncates or NUL-pads s to NameLen bytes.
func FromString(s string) Name {
	n := make(Name, NameLen)
	copy(n, s)
	return n
}

/// FromBytes takes a NameLen-byte on-disk field and trims trailing
/// NUL bytes, the form most callers (Go string comparisons, error
/// messages) want.
func FromBytes(raw []byte) Name {
	i := 0
	for i < len(raw) && raw[i] != 0 {
		i++
	}
	n := make(Name, i)
	copy(n, raw[:i])
	return n
}

/// Pad returns the name encoded as exactly NameLen bytes, truncated or
/// NUL-padded as needed for writing to a directory entry.
func (n Name) Pad() [NameLen]byte {
	var out [NameLen]byte
	copy(out[:], n)
	return out
}

/// Eq reports whether two names are byte-for-byte identical once
/// padded to NameLen.
func (n Name) Eq(o Name) bool {
	return n.Pad() == o.Pad()
}

/// String converts the name to a Go string, trimmed of NUL padding.
func (n Name) String() string {
	return strings.TrimRight(string(n), "\x00")
}
