package machine

// mark-and-sweep garbage collection. Roots are every value on the value
// stack, the env handle, and every constant of every registered prototype
// (prototypes are never freed, so marking all of them conservatively is
// simpler than tracking which are reachable from a live frame, and costs
// nothing extra since constants are typically few). Mark propagates through
// list elements and table key/value pairs; strings have no outgoing
// references.
//
// There is no compaction: sweep only ever flips a live slot to free, so
// every handle obtained before a collection still refers to the same
// object afterward (the handle-stability invariant tested by
// TestGCHandleStability in vm_test.go).

func markValue(h *Heap, v Value) {
	switch v.Tag() {
	case TagString, TagList, TagTable:
		h.mark(v.Handle())
	}
}

func (h *Heap) mark(idx int) {
	obj := &h.objects[idx]
	if obj.kind == objFree || obj.marked {
		return
	}
	obj.marked = true
	switch obj.kind {
	case objList:
		for _, e := range obj.list {
			markValue(h, e)
		}
	case objTable:
		for _, e := range obj.table {
			markValue(h, e.Key)
			markValue(h, e.Value)
		}
	}
}

// sweep frees every unmarked slot and clears the mark bit on every slot
// that survived, readying the heap for the next cycle.
func (h *Heap) sweep() {
	for i := range h.objects {
		obj := &h.objects[i]
		if obj.kind == objFree {
			continue
		}
		if !obj.marked {
			if obj.kind == objString {
				h.interner.Delete(obj.str)
			}
			obj.kind = objFree
			obj.str = ""
			obj.list = nil
			obj.table = nil
			obj.freeNext = h.freeHead
			h.freeHead = i
			continue
		}
		obj.marked = false
	}
}

// collectGarbage runs one mark-and-sweep cycle over vm's roots.
func (vm *VM) collectGarbage() {
	for _, v := range vm.stack {
		markValue(vm.Heap, v)
	}
	markValue(vm.Heap, vm.env)
	for _, p := range vm.protos {
		for _, c := range p.Constants {
			markValue(vm.Heap, c)
		}
	}
	vm.Heap.sweep()
}
