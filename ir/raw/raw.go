// Package raw models PDF objects as they appear in the file: names, numbers,
// strings, arrays, dictionaries, streams and indirect references.
package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// IsZero reports whether r points at no object.
func (r ObjectRef) IsZero() bool { return r.Num == 0 && r.Gen == 0 }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Table is the set of indirect objects of a document under construction.
type Table struct {
	objects map[ObjectRef]Object
	next    int
}

// NewTable returns an empty table whose first allocated number is 1.
func NewTable() *Table {
	return &Table{objects: make(map[ObjectRef]Object), next: 1}
}

// Alloc reserves the next object number.
func (t *Table) Alloc() ObjectRef {
	ref := ObjectRef{Num: t.next}
	t.next++
	return ref
}

// Put stores obj under ref, replacing any previous value.
func (t *Table) Put(ref ObjectRef, obj Object) { t.objects[ref] = obj }

// Add allocates a number for obj and stores it.
func (t *Table) Add(obj Object) ObjectRef {
	ref := t.Alloc()
	t.Put(ref, obj)
	return ref
}

// Get returns the object stored under ref.
func (t *Table) Get(ref ObjectRef) (Object, bool) {
	obj, ok := t.objects[ref]
	return obj, ok
}

// Len returns the number of stored objects.
func (t *Table) Len() int { return len(t.objects) }

// Size returns the value for the trailer /Size entry.
func (t *Table) Size() int { return t.next }

// Refs returns the stored references in ascending object-number order.
func (t *Table) Refs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(t.objects))
	for n := 1; n < t.next; n++ {
		ref := ObjectRef{Num: n}
		if _, ok := t.objects[ref]; ok {
			refs = append(refs, ref)
		}
	}
	return refs
}
