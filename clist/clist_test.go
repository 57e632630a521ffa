package clist

import "testing"

type item struct {
	node Node[*item]
	id   int
}

func newItem(id int) *item {
	it := &item{id: id}
	it.node.Init()
	it.node.Value = it
	return it
}

func collect(l *List[*item]) []int {
	var ids []int
	l.Traverse(func(n *Node[*item]) TraverseStatus {
		ids = append(ids, n.Value.id)
		return Continue
	})
	return ids
}

func equalIDs(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPushOrdering(t *testing.T) {
	tests := []struct {
		name string
		ops  func(l *List[*item])
		want []int
	}{
		{
			name: "push_back_preserves_order",
			ops: func(l *List[*item]) {
				l.PushBack(&newItem(1).node)
				l.PushBack(&newItem(2).node)
				l.PushBack(&newItem(3).node)
			},
			want: []int{1, 2, 3},
		},
		{
			name: "push_front_reverses_order",
			ops: func(l *List[*item]) {
				l.PushFront(&newItem(1).node)
				l.PushFront(&newItem(2).node)
				l.PushFront(&newItem(3).node)
			},
			want: []int{3, 2, 1},
		},
		{
			name: "insert_after_head",
			ops: func(l *List[*item]) {
				a := newItem(1)
				l.PushBack(&a.node)
				l.PushBack(&newItem(3).node)
				l.InsertAfter(&a.node, &newItem(2).node)
			},
			want: []int{1, 2, 3},
		},
		{
			name: "insert_after_tail",
			ops: func(l *List[*item]) {
				l.PushBack(&newItem(1).node)
				b := newItem(2)
				l.PushBack(&b.node)
				l.InsertAfter(&b.node, &newItem(3).node)
			},
			want: []int{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var l List[*item]
			tt.ops(&l)
			if got := collect(&l); !equalIDs(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmptyListTraversal(t *testing.T) {
	var l List[*item]
	visits := 0
	l.Traverse(func(*Node[*item]) TraverseStatus {
		visits++
		return Continue
	})
	if visits != 0 {
		t.Errorf("visits on empty list = %d, want 0", visits)
	}
	if !l.Empty() {
		t.Error("Empty() = false on fresh list")
	}
	if l.Front() != nil || l.Back() != nil {
		t.Error("Front/Back on empty list should be nil")
	}
}

func TestEarlyExit(t *testing.T) {
	// a visitor exiting on the k-th node must be invoked exactly k times
	for k := 1; k <= 5; k++ {
		var l List[*item]
		for i := 1; i <= 5; i++ {
			l.PushBack(&newItem(i).node)
		}
		visits := 0
		l.Traverse(func(n *Node[*item]) TraverseStatus {
			visits++
			if visits == k {
				return Exit
			}
			return Continue
		})
		if visits != k {
			t.Errorf("exit on node %d: visits = %d", k, visits)
		}
	}
}

func TestRemove(t *testing.T) {
	var l List[*item]
	a, b, c := newItem(1), newItem(2), newItem(3)
	l.PushBack(&a.node)
	l.PushBack(&b.node)
	l.PushBack(&c.node)

	l.Remove(&b.node)
	if got := collect(&l); !equalIDs(got, []int{1, 3}) {
		t.Errorf("after removing middle: %v", got)
	}

	l.Remove(&a.node)
	if got := collect(&l); !equalIDs(got, []int{3}) {
		t.Errorf("after removing head: %v", got)
	}

	l.Remove(&c.node)
	if !l.Empty() {
		t.Error("list should be empty after removing all nodes")
	}

	// removed nodes are reusable without re-Init
	l.PushBack(&b.node)
	if got := collect(&l); !equalIDs(got, []int{2}) {
		t.Errorf("reinserted removed node: %v", got)
	}
}

func TestPop(t *testing.T) {
	var l List[*item]
	if l.Pop() != nil {
		t.Error("Pop on empty list should return nil")
	}
	l.PushBack(&newItem(1).node)
	l.PushBack(&newItem(2).node)
	if n := l.Pop(); n == nil || n.Value.id != 1 {
		t.Errorf("Pop returned %v, want node 1", n)
	}
	if n := l.Pop(); n == nil || n.Value.id != 2 {
		t.Errorf("Pop returned %v, want node 2", n)
	}
	if l.Pop() != nil {
		t.Error("Pop on drained list should return nil")
	}
}

func TestTraverseWithSelfRemoval(t *testing.T) {
	// timers and cancellation remove the node being visited; every node
	// must still be visited exactly once
	var l List[*item]
	items := make([]*item, 4)
	for i := range items {
		items[i] = newItem(i + 1)
		l.PushBack(&items[i].node)
	}

	var visited []int
	l.Traverse(func(n *Node[*item]) TraverseStatus {
		visited = append(visited, n.Value.id)
		l.Remove(n)
		return Continue
	})
	if !equalIDs(visited, []int{1, 2, 3, 4}) {
		t.Errorf("visited = %v, want all four in order", visited)
	}
	if !l.Empty() {
		t.Error("list should be empty after visitor removed every node")
	}
}

func TestTraverseReverse(t *testing.T) {
	var l List[*item]
	for i := 1; i <= 3; i++ {
		l.PushBack(&newItem(i).node)
	}
	var visited []int
	l.TraverseReverse(func(n *Node[*item]) TraverseStatus {
		visited = append(visited, n.Value.id)
		return Continue
	})
	if !equalIDs(visited, []int{3, 2, 1}) {
		t.Errorf("reverse order = %v, want [3 2 1]", visited)
	}
}

func TestLen(t *testing.T) {
	var l List[*item]
	if l.Len() != 0 {
		t.Errorf("Len of empty list = %d", l.Len())
	}
	for i := 1; i <= 3; i++ {
		l.PushBack(&newItem(i).node)
	}
	if l.Len() != 3 {
		t.Errorf("Len = %d, want 3", l.Len())
	}
}

func TestDoubleInsertPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("inserting a linked node should panic")
		}
	}()
	var l1, l2 List[*item]
	a := newItem(1)
	l1.PushBack(&a.node)
	l2.PushBack(&a.node)
}
