package listing

import (
	"fmt"
	"os"
)

// Mode is a permission value in the packing used by SITE CHMOD:
// user*16² + group*16 + other, with each class in 0-7 (read=4, write=2,
// execute=1). Printed as three hex digits it reads like the familiar octal
// mode, so 0o640 goes on the wire as "640".
type Mode uint16

// NewMode packs three 0-7 class values. Bits above 7 are dropped.
func NewMode(user, group, other uint8) Mode {
	return Mode(uint16(user&7)<<8 | uint16(group&7)<<4 | uint16(other&7))
}

// ModeFromFileMode converts the permission bits of an os.FileMode.
func ModeFromFileMode(fm os.FileMode) Mode {
	p := uint32(fm.Perm())
	return NewMode(uint8(p>>6&7), uint8(p>>3&7), uint8(p&7))
}

// ModeFromTriplets packs three listing triplets such as "rw-", "r--",
// "r--". Only the plain r, w and x letters count; setuid/sticky letters and
// malformed triplets contribute nothing.
func ModeFromTriplets(user, group, other string) Mode {
	return NewMode(tripletBits(user), tripletBits(group), tripletBits(other))
}

func tripletBits(t string) uint8 {
	if len(t) != 3 {
		return 0
	}
	var b uint8
	if t[0] == 'r' {
		b |= 4
	}
	if t[1] == 'w' {
		b |= 2
	}
	if t[2] == 'x' {
		b |= 1
	}
	return b
}

// Classes unpacks the user, group and other values.
func (m Mode) Classes() (user, group, other uint8) {
	return uint8(m>>8) & 7, uint8(m>>4) & 7, uint8(m) & 7
}

// Triplets renders the mode as three "rwx" strings.
func (m Mode) Triplets() (user, group, other string) {
	u, g, o := m.Classes()
	return tripletString(u), tripletString(g), tripletString(o)
}

func tripletString(b uint8) string {
	t := []byte("---")
	if b&4 != 0 {
		t[0] = 'r'
	}
	if b&2 != 0 {
		t[1] = 'w'
	}
	if b&1 != 0 {
		t[2] = 'x'
	}
	return string(t)
}

// FileMode converts back to os.FileMode permission bits.
func (m Mode) FileMode() os.FileMode {
	u, g, o := m.Classes()
	return os.FileMode(uint32(u)<<6 | uint32(g)<<3 | uint32(o))
}

// String returns the three-digit wire form used by SITE CHMOD.
func (m Mode) String() string {
	return fmt.Sprintf("%03x", uint16(m))
}
