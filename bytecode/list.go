package bytecode

// Element is one node of an InsnList: a doubly linked list cell carrying an
// Instr, modeled directly on container/list.Element.
type Element struct {
	next, prev *Element
	list       *InsnList
	Value      Instr
}

// Next returns the next list element, or nil if e is the last element.
func (e *Element) Next() *Element {
	if n := e.next; e.list != nil && n != &e.list.root {
		return n
	}
	return nil
}

// Prev returns the previous list element, or nil if e is the first element.
func (e *Element) Prev() *Element {
	if p := e.prev; e.list != nil && p != &e.list.root {
		return p
	}
	return nil
}

// InsnList is a doubly linked list of instructions, decoded from a method's
// Code attribute and edited directly by the instrumentation engine: insert
// a call to a handler, splice in a null-check branch, drop a superfluous
// load, all without renumbering anything until Encode runs.
type InsnList struct {
	root Element
	len  int
}

// NewInsnList returns an empty instruction list ready to use.
func NewInsnList() *InsnList {
	l := &InsnList{}
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

// Len returns the number of elements in the list.
func (l *InsnList) Len() int { return l.len }

// Front returns the first element, or nil if the list is empty.
func (l *InsnList) Front() *Element {
	if l.len == 0 {
		return nil
	}
	return l.root.next
}

// Back returns the last element, or nil if the list is empty.
func (l *InsnList) Back() *Element {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

func (l *InsnList) insert(e, at *Element) *Element {
	e.prev = at
	e.next = at.next
	e.prev.next = e
	e.next.prev = e
	e.list = l
	l.len++
	return e
}

func (l *InsnList) insertValue(v Instr, at *Element) *Element {
	return l.insert(&Element{Value: v}, at)
}

// Remove removes e from the list. It is a no-op if e does not belong to l.
func (l *InsnList) Remove(e *Element) {
	if e.list != l {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = nil
	e.prev = nil
	e.list = nil
	l.len--
}

// PushFront inserts a new element with value v at the front of the list and
// returns it.
func (l *InsnList) PushFront(v Instr) *Element {
	return l.insertValue(v, &l.root)
}

// PushBack inserts a new element with value v at the back of the list and
// returns it.
func (l *InsnList) PushBack(v Instr) *Element {
	return l.insertValue(v, l.root.prev)
}

// InsertBefore inserts a new element with value v immediately before mark
// and returns it. mark must be an element of l.
func (l *InsnList) InsertBefore(v Instr, mark *Element) *Element {
	return l.insertValue(v, mark.prev)
}

// InsertAfter inserts a new element with value v immediately after mark and
// returns it. mark must be an element of l.
func (l *InsnList) InsertAfter(v Instr, mark *Element) *Element {
	return l.insertValue(v, mark)
}

// NewLabel appends a fresh Label node at the end of the list and returns
// its element, so a jump can target the position where the instructions
// pushed next will follow.
func (l *InsnList) NewLabel(name string) *Element {
	return l.PushBack(&Label{Name: name})
}

// Each calls f for every element in order from front to back.
func (l *InsnList) Each(f func(*Element)) {
	for e := l.Front(); e != nil; e = e.Next() {
		f(e)
	}
}

// Slice returns every element in order as a plain slice, primarily for
// tests that want to assert on a whole method body at once.
func (l *InsnList) Slice() []*Element {
	out := make([]*Element, 0, l.len)
	l.Each(func(e *Element) { out = append(out, e) })
	return out
}
