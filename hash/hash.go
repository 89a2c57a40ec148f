package hash

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// Hash is the 64-bit content identity used at runtime for types,
// functions, constants and instance-function keys. Two symbols are the
// same symbol exactly when their hashes are equal.
type Hash uint64

// Empty is the hash of nothing and never identifies a symbol.
const Empty Hash = 0

// Component kind tags mixed into the digest so that e.g. the crate
// component "std" and the named component "std" hash differently.
const (
	tagCrate byte = 0x4b
	tagStr   byte = 0x1f
	tagID    byte = 0x2d
	tagName  byte = 0x7a
	tagProto byte = 0x5c
)

func (h Hash) String() string {
	return fmt.Sprintf("0x%016x", uint64(h))
}

// IsEmpty reports whether the hash is the empty hash.
func (h Hash) IsEmpty() bool {
	return h == Empty
}

func writeComponent(d *xxhash.Digest, c Component) {
	var buf [9]byte
	switch c.Kind {
	case ComponentCrate:
		buf[0] = tagCrate
		_, _ = d.Write(buf[:1])
		_, _ = d.WriteString(c.Str)
	case ComponentID:
		buf[0] = tagID
		binary.LittleEndian.PutUint64(buf[1:], c.ID)
		_, _ = d.Write(buf[:9])
	default:
		buf[0] = tagStr
		_, _ = d.Write(buf[:1])
		_, _ = d.WriteString(c.Str)
	}
	// Length framing keeps ["ab","c"] and ["a","bc"] apart.
	binary.LittleEndian.PutUint64(buf[1:], uint64(len(c.Str)))
	_, _ = d.Write(buf[1:9])
}

// Type computes the stable content hash of an item. This is the sole
// identity used at runtime for the symbol the item names.
func Type(item *Item) Hash {
	d := xxhash.New()
	for _, c := range item.Components() {
		writeComponent(d, c)
	}
	return Hash(d.Sum64())
}

// TypeOf is a convenience over Type for plain named paths.
func TypeOf(names ...string) Hash {
	return Type(NewItem(names...))
}

// Name hashes a bare associated-function name. Name hashes live in a
// distinct domain from item hashes so a one-component item can never
// collide with a name.
func Name(name string) Hash {
	d := xxhash.New()
	_, _ = d.Write([]byte{tagName})
	_, _ = d.WriteString(name)
	return Hash(d.Sum64())
}

// OfBytes hashes raw content. Used by the static pools in the unit
// builder for their reverse slot indexes.
func OfBytes(b []byte) Hash {
	return Hash(xxhash.Sum64(b))
}

// OfString hashes string content, equal to OfBytes of its UTF-8 bytes.
func OfString(s string) Hash {
	return Hash(xxhash.Sum64String(s))
}

// Instance mixes a type hash with a name hash into the key used for
// instance-function dispatch. The mix is reversible: given the same
// type hash, InstanceName recovers the name hash for diagnostics.
func Instance(typeHash, name Hash) Hash {
	return typeHash ^ Hash(bits.RotateLeft64(uint64(name), 32))
}

// InstanceName recovers the name hash from an instance-function key
// given the receiver's type hash.
func InstanceName(key, typeHash Hash) Hash {
	return Hash(bits.RotateLeft64(uint64(key^typeHash), 32))
}

// InstanceFunction is a convenience mixing a type hash with a function
// name.
func InstanceFunction(typeHash Hash, name string) Hash {
	return Instance(typeHash, Name(name))
}
