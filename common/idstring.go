package common

import (
	"fmt"

	"github.com/spaolacci/murmur3"
)

// idStringSeed is the murmur3 seed every IdString is hashed with.
const idStringSeed = 0x3A8EFA67

// IdString is a 32-bit hash of a name, used as the key type for nodes, textures, workspaces and
// every other named compositor object. Equality and ordering are defined on the hash alone.
//
// Hash collisions are fatal bugs. Unless the module is built with the oxy_release tag, every
// IdString created through NewIdString is recorded so a collision panics at creation time and
// String can print the original name.
type IdString uint32

// BlankIdString is the IdString of the empty name.
const BlankIdString IdString = 0

// NewIdString hashes name into an IdString. The empty name always returns BlankIdString.
//
// Parameters:
//   - name: the name to hash
//
// Returns:
//   - IdString: the hashed name
func NewIdString(name string) IdString {
	if name == "" {
		return BlankIdString
	}
	id := IdString(murmur3.Sum32WithSeed([]byte(name), idStringSeed))
	if idStringDebug {
		registerIdString(id, name)
	}
	return id
}

// Hash returns the raw 32-bit hash value.
func (id IdString) Hash() uint32 {
	return uint32(id)
}

// IsBlank reports whether the IdString is the blank (empty name) value.
func (id IdString) IsBlank() bool {
	return id == BlankIdString
}

// Combine hashes the two ids together, producing a new IdString. Combined values are not
// registered and print as their raw hash.
//
// Parameters:
//   - other: the IdString to append
//
// Returns:
//   - IdString: the combined hash
func (id IdString) Combine(other IdString) IdString {
	var buf [8]byte
	buf[0], buf[1], buf[2], buf[3] = byte(id), byte(id>>8), byte(id>>16), byte(id>>24)
	buf[4], buf[5], buf[6], buf[7] = byte(other), byte(other>>8), byte(other>>16), byte(other>>24)
	return IdString(murmur3.Sum32WithSeed(buf[:], idStringSeed))
}

// String returns the registered name of the id, or its hash when no name is known.
func (id IdString) String() string {
	if id == BlankIdString {
		return ""
	}
	if name, ok := lookupIdString(id); ok {
		return name
	}
	return fmt.Sprintf("[Hash 0x%08x]", uint32(id))
}
