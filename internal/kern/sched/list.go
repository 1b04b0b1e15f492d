// Package sched provides the concrete scheduling policies and the intrusive
// ready-set rings they share.
package sched

// Node is one statically allocated ready-queue cell. Boards allocate exactly
// one per process slot at construction; node storage lives as long as the
// process table. A node is linked into at most one ring at a time.
type Node struct {
	appID int
	next  *Node
	owner *List

	// usUsedThisQueue accumulates CPU time consumed while the node sits in
	// its current MLFQ queue. Unused by the other policies.
	usUsedThisQueue uint32
}

// NewNode returns an unlinked node for the given process slot.
func NewNode(appID int) *Node {
	return &Node{appID: appID}
}

// AppID returns the process slot this node tracks.
func (n *Node) AppID() int { return n.appID }

// List is an intrusive singly-linked ready ring in insertion order.
// Mutated only from kernel context; no locking.
type List struct {
	head *Node
	tail *Node
	n    int
}

// Len returns the number of linked nodes.
func (l *List) Len() int { return l.n }

// Head returns the first node, or nil when empty.
func (l *List) Head() *Node { return l.head }

// PushTail links n at the tail. Linking a node that already sits in a ring
// is a membership violation.
func (l *List) PushTail(n *Node) {
	if n.owner != nil {
		panic("sched: node already linked into a ready queue")
	}
	n.owner = l
	n.next = nil
	if l.tail == nil {
		l.head = n
	} else {
		l.tail.next = n
	}
	l.tail = n
	l.n++
}

// PopHead unlinks and returns the head, or nil when empty.
func (l *List) PopHead() *Node {
	n := l.head
	if n == nil {
		return nil
	}
	l.head = n.next
	if l.head == nil {
		l.tail = nil
	}
	n.next = nil
	n.owner = nil
	l.n--
	return n
}

// RotateHeadToTail moves the head to the tail. No-op on lists shorter than
// two.
func (l *List) RotateHeadToTail() {
	if l.n < 2 {
		return
	}
	l.PushTail(l.PopHead())
}
