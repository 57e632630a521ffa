// Package clist implements a circular doubly-linked list whose nodes are
// embedded in their owning structures. Membership carries no allocation:
// a node lives inside its owner for the owner's whole lifetime and is moved
// between lists by unlinking and relinking in place.
//
// A node may belong to at most one list at a time. Inserting a node that is
// already linked is a contract violation and panics; callers migrate a node
// with an explicit Remove followed by an insert.
package clist

// TraverseStatus is returned by a traversal visitor to continue or stop.
type TraverseStatus uint8

const (
	// Continue indicates traversal should proceed to the next node.
	Continue TraverseStatus = iota
	// Exit stops the traversal immediately.
	Exit
)

// Node is a list link embedded in an owning structure. Value carries a typed
// reference back to the owner so traversal callbacks need no address
// arithmetic to recover it.
type Node[T any] struct {
	next, prev *Node[T]
	Value      T
}

// Init resets the node to the unlinked state (pointing at itself).
// A node must be initialized before its first insertion and is
// re-initialized automatically on removal.
func (n *Node[T]) Init() {
	n.next = n
	n.prev = n
}

func (n *Node[T]) assertUnlinked() {
	if n.next != n || n.prev != n {
		panic("clist: inserting a node that is already on a list")
	}
}

// List is a circular doubly-linked list of embedded nodes. The zero value is
// an empty list.
type List[T any] struct {
	head *Node[T]
}

// Empty reports whether the list has no nodes.
func (l *List[T]) Empty() bool { return l.head == nil }

// Front returns the first node, or nil if the list is empty.
func (l *List[T]) Front() *Node[T] { return l.head }

// Back returns the last node, or nil if the list is empty.
func (l *List[T]) Back() *Node[T] {
	if l.head == nil {
		return nil
	}
	return l.head.prev
}

// PushFront inserts node at the front of the list.
func (l *List[T]) PushFront(node *Node[T]) {
	node.assertUnlinked()
	if l.head != nil {
		last := l.head.prev

		node.next = l.head
		node.prev = last

		last.next = node
		l.head.prev = node
	}
	l.head = node
}

// PushBack inserts node at the back of the list.
func (l *List[T]) PushBack(node *Node[T]) {
	node.assertUnlinked()
	if l.head == nil {
		l.head = node
		return
	}
	last := l.head.prev

	node.next = l.head
	l.head.prev = node
	node.prev = last
	last.next = node
}

// InsertAfter inserts node immediately after pos, which must be a member of
// this list.
func (l *List[T]) InsertAfter(pos, node *Node[T]) {
	if l.head == nil || pos == nil {
		panic("clist: InsertAfter on empty list or nil position")
	}
	if pos == node {
		panic("clist: InsertAfter with position equal to node")
	}
	node.assertUnlinked()
	node.next = pos.next
	pos.next = node
	node.prev = pos
	node.next.prev = node
}

// Remove unlinks node from the list and re-initializes it.
func (l *List[T]) Remove(node *Node[T]) {
	if l.head == nil {
		panic("clist: Remove from empty list")
	}
	switch {
	case node.next == node:
		// only node in the list
		if node != l.head {
			panic("clist: Remove of node not on this list")
		}
		l.head = nil
	case l.head == node:
		// removing the first node, second node becomes the head
		l.head.prev.next = node.next
		l.head = node.next
		l.head.prev = node.prev
	default:
		node.next.prev = node.prev
		node.prev.next = node.next
	}
	node.Init()
}

// Pop removes and returns the front node, or nil if the list is empty.
func (l *List[T]) Pop() *Node[T] {
	node := l.head
	if node != nil {
		l.Remove(node)
	}
	return node
}

// Traverse walks the list front to back, invoking fn once per node. A visitor
// returning Exit stops the walk immediately. The visitor may remove the
// current node; it must not remove any other node on the same list.
func (l *List[T]) Traverse(fn func(*Node[T]) TraverseStatus) {
	start := l.head
	node := start
	if node == nil {
		return
	}
	last := false
	for !last {
		// capture next in case the callback unlinks the current node
		next := node.next
		if next == start {
			last = true
		}
		if fn(node) != Continue {
			return
		}
		// if the visitor removed the starting node, the circular walk loses
		// its terminator; advance the remembered start to compensate
		if start == node && node.next != next {
			start = next
		}
		node = next
	}
}

// TraverseReverse walks the list back to front, invoking fn once per node
// with the same early-exit and self-removal rules as Traverse.
func (l *List[T]) TraverseReverse(fn func(*Node[T]) TraverseStatus) {
	if l.head == nil {
		return
	}
	end := l.head.prev
	node := end
	last := false
	for !last {
		next := node.prev
		if next == end {
			last = true
		}
		if fn(node) != Continue {
			return
		}
		if end == node && node.prev != next {
			end = next
		}
		node = next
	}
}

// Len counts the nodes currently on the list. Counting walks the list; it is
// intended for accounting and tests, not hot paths.
func (l *List[T]) Len() int {
	n := 0
	l.Traverse(func(*Node[T]) TraverseStatus {
		n++
		return Continue
	})
	return n
}
