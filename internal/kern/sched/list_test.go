package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(l *List) []int {
	var out []int
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.AppID())
	}
	return out
}

func TestPushPopOrder(t *testing.T) {
	l := &List{}
	assert.Nil(t, l.Head())
	assert.Nil(t, l.PopHead())

	for i := 0; i < 3; i++ {
		l.PushTail(NewNode(i))
	}
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []int{0, 1, 2}, ids(l))

	n := l.PopHead()
	require.NotNil(t, n)
	assert.Equal(t, 0, n.AppID())
	assert.Equal(t, []int{1, 2}, ids(l))

	// A popped node can be relinked.
	l.PushTail(n)
	assert.Equal(t, []int{1, 2, 0}, ids(l))
}

func TestRotateHeadToTail(t *testing.T) {
	l := &List{}
	l.RotateHeadToTail() // empty: no-op

	l.PushTail(NewNode(0))
	l.RotateHeadToTail() // single: no-op
	assert.Equal(t, []int{0}, ids(l))

	l.PushTail(NewNode(1))
	l.PushTail(NewNode(2))
	l.RotateHeadToTail()
	assert.Equal(t, []int{1, 2, 0}, ids(l))
}

func TestDoubleLinkPanics(t *testing.T) {
	a := &List{}
	b := &List{}
	n := NewNode(0)
	a.PushTail(n)
	require.Panics(t, func() { a.PushTail(n) })
	require.Panics(t, func() { b.PushTail(n) })
}
