// Package machine implements the virtual machine: value representation,
// the garbage-collected heap, activation frames, the fetch/decode/dispatch
// loop, native-function interop, and the mark-and-sweep collector.
package machine

import "strconv"

// Tag identifies the kind of value held by a Value.
type Tag uint8

//nolint:revive
const (
	TagNil Tag = iota
	TagBool
	TagNumber
	TagString
	TagList
	TagTable
	TagFunc
)

func (t Tag) String() string {
	switch t {
	case TagNil:
		return "nil"
	case TagBool:
		return "bool"
	case TagNumber:
		return "number"
	case TagString:
		return "string"
	case TagList:
		return "list"
	case TagTable:
		return "table"
	case TagFunc:
		return "func"
	default:
		return "unknown"
	}
}

// Value is a tagged union of the language's runtime values. It is Copy
// semantic: heap objects (String, List, Table) are reached only through a
// stable integer handle into the VM's Heap.
type Value struct {
	tag Tag
	b   bool
	n   float64
	h   int
}

// Nil is the nil value.
var Nil = Value{tag: TagNil}

// Bool returns the boolean value b.
func Bool(b bool) Value { return Value{tag: TagBool, b: b} }

// Number returns the numeric value n.
func Number(n float64) Value { return Value{tag: TagNumber, n: n} }

// stringVal, listVal and tableVal wrap a heap handle; constructed by Heap
// allocators, not called directly outside this package.
func stringVal(h int) Value { return Value{tag: TagString, h: h} }
func listVal(h int) Value   { return Value{tag: TagList, h: h} }
func tableVal(h int) Value  { return Value{tag: TagTable, h: h} }

// Func returns a value referencing the prototype at protoIndex.
func Func(protoIndex int) Value { return Value{tag: TagFunc, h: protoIndex} }

// Tag returns the value's tag.
func (v Value) Tag() Tag { return v.tag }

// IsNil reports whether v is Nil.
func (v Value) IsNil() bool { return v.tag == TagNil }

// AsBool returns v's boolean payload; only meaningful when Tag() == TagBool.
func (v Value) AsBool() bool { return v.b }

// AsNumber returns v's numeric payload; only meaningful when Tag() == TagNumber.
func (v Value) AsNumber() float64 { return v.n }

// Handle returns v's heap handle; only meaningful when Tag() is TagString,
// TagList or TagTable.
func (v Value) Handle() int { return v.h }

// FuncIndex returns v's prototype index; only meaningful when Tag() == TagFunc.
func (v Value) FuncIndex() int { return v.h }

// Truthy implements the language's notion of truthiness: nil and false are
// falsy, everything else (including 0 and "") is truthy.
func (v Value) Truthy() bool {
	switch v.tag {
	case TagNil:
		return false
	case TagBool:
		return v.b
	default:
		return true
	}
}

// Equal implements generic equality: reflexive on non-NaN values, defined
// across all tags (cross-tag comparisons are false), and never errors.
// Strings compare equal by content because the heap interns them (equal
// content always yields the same handle, see Heap.NewString); lists, tables
// and functions compare by identity.
func Equal(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagNil:
		return true
	case TagBool:
		return a.b == b.b
	case TagNumber:
		return a.n == b.n
	case TagString, TagList, TagTable, TagFunc:
		return a.h == b.h
	default:
		return false
	}
}

// String renders v for diagnostics. It does not resolve heap content; use
// Heap.Stringify for a value's full textual representation.
func (v Value) String() string {
	switch v.tag {
	case TagNil:
		return "nil"
	case TagBool:
		return strconv.FormatBool(v.b)
	case TagNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case TagString:
		return "string#" + strconv.Itoa(v.h)
	case TagList:
		return "list#" + strconv.Itoa(v.h)
	case TagTable:
		return "table#" + strconv.Itoa(v.h)
	case TagFunc:
		return "func#" + strconv.Itoa(v.h)
	default:
		return "?"
	}
}
