package hash

import (
	"fmt"
	"strconv"
	"strings"
)

// ComponentKind discriminates the three kinds of path components.
type ComponentKind byte

const (
	// ComponentCrate names the crate a path is rooted in.
	ComponentCrate ComponentKind = iota
	// ComponentStr is an ordinary named component.
	ComponentStr
	// ComponentID is an anonymous numbered component, used by the
	// compiler frontend for closures and nested blocks.
	ComponentID
)

// Component is a single element of an item path.
type Component struct {
	Kind ComponentKind
	Str  string
	ID   uint64
}

// CrateComponent builds a crate-root component.
func CrateComponent(name string) Component {
	return Component{Kind: ComponentCrate, Str: name}
}

// StrComponent builds a named component.
func StrComponent(name string) Component {
	return Component{Kind: ComponentStr, Str: name}
}

// IDComponent builds an anonymous numbered component.
func IDComponent(id uint64) Component {
	return Component{Kind: ComponentID, ID: id}
}

func (c Component) String() string {
	switch c.Kind {
	case ComponentCrate:
		return "::" + c.Str
	case ComponentID:
		return "$" + strconv.FormatUint(c.ID, 10)
	default:
		return c.Str
	}
}

// Item is an ordered sequence of components identifying a symbol in
// script scope. The VM never inspects an Item directly, it only sees
// the item's Hash; items are kept around for diagnostics and RTTI.
type Item struct {
	components []Component
}

// NewItem builds an item from plain named components.
func NewItem(names ...string) *Item {
	components := make([]Component, 0, len(names))
	for _, name := range names {
		components = append(components, StrComponent(name))
	}
	return &Item{components: components}
}

// CrateItem builds an item rooted in a crate, the shape module
// declarations install under.
func CrateItem(crate string, names ...string) *Item {
	components := make([]Component, 0, len(names)+1)
	components = append(components, CrateComponent(crate))
	for _, name := range names {
		components = append(components, StrComponent(name))
	}
	return &Item{components: components}
}

// ItemOf builds an item from explicit components.
func ItemOf(components ...Component) *Item {
	out := make([]Component, len(components))
	copy(out, components)
	return &Item{components: out}
}

// ParseItem parses a "::"-separated path. A leading "::" marks the
// first component as a crate root.
func ParseItem(path string) (*Item, error) {
	crate := false
	if strings.HasPrefix(path, "::") {
		crate = true
		path = path[2:]
	}
	if path == "" {
		return nil, fmt.Errorf("empty item path")
	}
	parts := strings.Split(path, "::")
	components := make([]Component, 0, len(parts))
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("empty component in item path %q", path)
		}
		if i == 0 && crate {
			components = append(components, CrateComponent(part))
			continue
		}
		components = append(components, StrComponent(part))
	}
	return &Item{components: components}, nil
}

// Components returns the components of the item in order.
func (it *Item) Components() []Component {
	return it.components
}

// Len returns the number of components.
func (it *Item) Len() int {
	return len(it.components)
}

// IsEmpty reports whether the item has no components.
func (it *Item) IsEmpty() bool {
	return len(it.components) == 0
}

// Last returns the final component, if any.
func (it *Item) Last() (Component, bool) {
	if len(it.components) == 0 {
		return Component{}, false
	}
	return it.components[len(it.components)-1], true
}

// Child returns a new item with an extra named component appended.
func (it *Item) Child(name string) *Item {
	return it.Extended(StrComponent(name))
}

// Extended returns a new item with the given components appended. The
// receiver is not modified.
func (it *Item) Extended(components ...Component) *Item {
	out := make([]Component, 0, len(it.components)+len(components))
	out = append(out, it.components...)
	out = append(out, components...)
	return &Item{components: out}
}

// Join appends every component of other to a copy of the receiver.
func (it *Item) Join(other *Item) *Item {
	return it.Extended(other.components...)
}

// Parent returns the item with the last component removed.
func (it *Item) Parent() (*Item, bool) {
	if len(it.components) == 0 {
		return nil, false
	}
	out := make([]Component, len(it.components)-1)
	copy(out, it.components)
	return &Item{components: out}, true
}

// StartsWith reports whether prefix is a (possibly equal) prefix of
// the receiver.
func (it *Item) StartsWith(prefix *Item) bool {
	if len(prefix.components) > len(it.components) {
		return false
	}
	for i, c := range prefix.components {
		if it.components[i] != c {
			return false
		}
	}
	return true
}

// Equal reports component-wise equality.
func (it *Item) Equal(other *Item) bool {
	if len(it.components) != len(other.components) {
		return false
	}
	for i, c := range it.components {
		if other.components[i] != c {
			return false
		}
	}
	return true
}

func (it *Item) String() string {
	if len(it.components) == 0 {
		return "{root}"
	}
	var sb strings.Builder
	for i, c := range it.components {
		if i > 0 && c.Kind != ComponentCrate {
			sb.WriteString("::")
		}
		sb.WriteString(c.String())
	}
	return sb.String()
}
