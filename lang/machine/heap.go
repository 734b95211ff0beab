package machine

import (
	"math"

	"github.com/dolthub/swiss"
)

// objKind identifies what kind of object occupies a heap slot.
type objKind uint8

const (
	objFree objKind = iota
	objString
	objList
	objTable
)

// tableEntry is one (key, value) pair of a Table. Tables are an
// insertion-ordered association list with linear lookup, per the data
// model: a hash map would not preserve insertion order or the cyclic-value
// invariants the language relies on.
type tableEntry struct {
	Key, Value Value
}

// object is one slot of the heap. freeNext is only meaningful when
// kind == objFree, and chains unused slots into a singly-linked free list.
type object struct {
	marked bool
	kind   objKind

	str   string
	list  []Value
	table []tableEntry

	freeNext int
}

// Heap is an index-stable vector of GC-managed objects plus a free list of
// reusable slots. Handles (plain ints) never change meaning across a GC
// cycle: sweep only ever flips a slot to objFree, it never compacts.
type Heap struct {
	objects  []object
	freeHead int // -1 when empty

	// interner deduplicates string allocations by content, so that two
	// NewString calls with equal bytes yield the same handle; this is what
	// lets Value.Equal treat string equality as handle equality.
	interner *swiss.Map[string, int]
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{
		freeHead: -1,
		interner: swiss.NewMap[string, int](16),
	}
}

func (h *Heap) alloc(kind objKind) int {
	if h.freeHead >= 0 {
		idx := h.freeHead
		h.freeHead = h.objects[idx].freeNext
		h.objects[idx] = object{kind: kind}
		return idx
	}
	h.objects = append(h.objects, object{kind: kind})
	return len(h.objects) - 1
}

// NewString interns s and returns a String value referencing it, reusing
// the existing handle if this content was already allocated.
func (h *Heap) NewString(s string) Value {
	if idx, ok := h.interner.Get(s); ok {
		return stringVal(idx)
	}
	idx := h.alloc(objString)
	h.objects[idx].str = s
	h.interner.Put(s, idx)
	return stringVal(idx)
}

// NewList allocates an empty list and returns a List value referencing it.
func (h *Heap) NewList() Value {
	return listVal(h.alloc(objList))
}

// NewTable allocates an empty table and returns a Table value referencing it.
func (h *Heap) NewTable() Value {
	return tableVal(h.alloc(objTable))
}

func (h *Heap) checkString(v Value) (*object, error) {
	if v.Tag() != TagString {
		return nil, newRuntimeError("expected string, got %s", v.Tag())
	}
	return &h.objects[v.Handle()], nil
}

func (h *Heap) checkList(v Value) (*object, error) {
	if v.Tag() != TagList {
		return nil, newRuntimeError("expected list, got %s", v.Tag())
	}
	return &h.objects[v.Handle()], nil
}

func (h *Heap) checkTable(v Value) (*object, error) {
	if v.Tag() != TagTable {
		return nil, newRuntimeError("expected table, got %s", v.Tag())
	}
	return &h.objects[v.Handle()], nil
}

// StringBytes returns the content of a String value.
func (h *Heap) StringBytes(v Value) (string, error) {
	obj, err := h.checkString(v)
	if err != nil {
		return "", err
	}
	return obj.str, nil
}

// toIndex converts a Number value used as a list index per the spec's
// resolved open question: negative or non-finite indices are a runtime
// error, non-integer positive values truncate toward zero.
func toIndex(idx Value) (int, error) {
	if idx.Tag() != TagNumber {
		return 0, newRuntimeError("list index must be a number, got %s", idx.Tag())
	}
	n := idx.AsNumber()
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0, newRuntimeError("list index must be a non-negative finite number, got %v", n)
	}
	return int(n), nil
}

// ListLen returns the number of elements in a List value.
func (h *Heap) ListLen(v Value) (int, error) {
	obj, err := h.checkList(v)
	if err != nil {
		return 0, err
	}
	return len(obj.list), nil
}

// ListGet returns the element at idx of a List value. Out-of-range is a
// runtime error.
func (h *Heap) ListGet(v, idx Value) (Value, error) {
	obj, err := h.checkList(v)
	if err != nil {
		return Nil, err
	}
	i, err := toIndex(idx)
	if err != nil {
		return Nil, err
	}
	if i >= len(obj.list) {
		return Nil, newRuntimeError("list index %d out of range (len %d)", i, len(obj.list))
	}
	return obj.list[i], nil
}

// ListSet assigns val at idx of a List value. The index must already exist.
func (h *Heap) ListSet(v, idx, val Value) error {
	obj, err := h.checkList(v)
	if err != nil {
		return err
	}
	i, err := toIndex(idx)
	if err != nil {
		return err
	}
	if i >= len(obj.list) {
		return newRuntimeError("list index %d out of range (len %d)", i, len(obj.list))
	}
	obj.list[i] = val
	return nil
}

// ListDef assigns val at idx of a List value, resize-filling with Nil as
// needed so the index always ends up valid.
func (h *Heap) ListDef(v, idx, val Value) error {
	obj, err := h.checkList(v)
	if err != nil {
		return err
	}
	i, err := toIndex(idx)
	if err != nil {
		return err
	}
	for len(obj.list) <= i {
		obj.list = append(obj.list, Nil)
	}
	obj.list[i] = val
	return nil
}

// ListAppend appends val to the end of a List value.
func (h *Heap) ListAppend(v, val Value) error {
	obj, err := h.checkList(v)
	if err != nil {
		return err
	}
	obj.list = append(obj.list, val)
	return nil
}

// TableLen returns the number of entries in a Table value.
func (h *Heap) TableLen(v Value) (int, error) {
	obj, err := h.checkTable(v)
	if err != nil {
		return 0, err
	}
	return len(obj.table), nil
}

func findEntry(obj *object, key Value) int {
	for i, e := range obj.table {
		if Equal(e.Key, key) {
			return i
		}
	}
	return -1
}

// TableGet returns the value bound to key in a Table value. A missing key
// is a runtime error.
func (h *Heap) TableGet(v, key Value) (Value, error) {
	obj, err := h.checkTable(v)
	if err != nil {
		return Nil, err
	}
	if i := findEntry(obj, key); i >= 0 {
		return obj.table[i].Value, nil
	}
	return Nil, newRuntimeError("key %s not found in table", key)
}

// TableSet updates the value bound to an existing key in a Table value. A
// missing key is a runtime error.
func (h *Heap) TableSet(v, key, val Value) error {
	obj, err := h.checkTable(v)
	if err != nil {
		return err
	}
	if i := findEntry(obj, key); i >= 0 {
		obj.table[i].Value = val
		return nil
	}
	return newRuntimeError("key %s not found in table", key)
}

// TableDef inserts or updates the value bound to key in a Table value,
// preserving the entry's original position if it already existed.
func (h *Heap) TableDef(v, key, val Value) error {
	obj, err := h.checkTable(v)
	if err != nil {
		return err
	}
	if i := findEntry(obj, key); i >= 0 {
		obj.table[i].Value = val
		return nil
	}
	obj.table = append(obj.table, tableEntry{Key: key, Value: val})
	return nil
}

// Stringify renders v for diagnostics, resolving heap content for strings,
// lists and tables (unlike Value.String, which only names the handle).
func (h *Heap) Stringify(v Value) string {
	switch v.Tag() {
	case TagString:
		s, _ := h.StringBytes(v)
		return s
	case TagList:
		obj := &h.objects[v.Handle()]
		out := "["
		for i, e := range obj.list {
			if i > 0 {
				out += " "
			}
			out += h.Stringify(e)
		}
		return out + "]"
	case TagTable:
		obj := &h.objects[v.Handle()]
		out := "{"
		for i, e := range obj.table {
			if i > 0 {
				out += " "
			}
			out += "(" + h.Stringify(e.Key) + " " + h.Stringify(e.Value) + ")"
		}
		return out + "}"
	default:
		return v.String()
	}
}
