package compiler

import (
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/values"
)

// DefaultPrelude maps the short names available without imports to
// their full items. The frontend consults this before qualified
// resolution during parsing; the VM never reads it.
func DefaultPrelude() map[string]*hash.Item {
	io := hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("io"))
	core := hash.ItemOf(hash.CrateComponent("std"), hash.StrComponent("core"))
	return map[string]*hash.Item{
		"Option":         values.OptionItem,
		"Some":           values.OptionItem.Child("Some"),
		"None":           values.OptionItem.Child("None"),
		"Result":         values.ResultItem,
		"Ok":             values.ResultItem.Child("Ok"),
		"Err":            values.ResultItem.Child("Err"),
		"GeneratorState": values.GeneratorStateItem,
		"String":         values.StringItem,
		"Bytes":          values.BytesItem,
		"Vec":            values.VecItem,
		"Object":         values.ObjectItem,
		"print":          io.Child("print"),
		"println":        io.Child("println"),
		"dbg":            io.Child("dbg"),
		"panic":          core.Child("panic"),
	}
}
