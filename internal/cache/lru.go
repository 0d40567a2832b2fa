package cache

// lruNode is an element of lruList. It carries its key so the owner can
// delete the map entry when the node falls off the tail.
type lruNode[K comparable] struct {
	key        K
	prev, next *lruNode[K]
}

// lruList orders keys by recency: front is the most recently used.
// It is not safe for concurrent use; Cache guards it with its mutex.
type lruList[K comparable] struct {
	front, back *lruNode[K]
	len         int
}

func (l *lruList[K]) Len() int { return l.len }

// PushFront inserts key as the most recently used entry.
func (l *lruList[K]) PushFront(key K) *lruNode[K] {
	n := &lruNode[K]{key: key}
	l.linkFront(n)
	return n
}

// Touch marks n as the most recently used entry.
func (l *lruList[K]) Touch(n *lruNode[K]) {
	if n == l.front {
		return
	}
	l.unlink(n)
	l.linkFront(n)
}

// Remove unlinks n.
func (l *lruList[K]) Remove(n *lruNode[K]) {
	l.unlink(n)
}

// Back returns the least recently used node, or nil for an empty list.
func (l *lruList[K]) Back() *lruNode[K] {
	return l.back
}

func (l *lruList[K]) linkFront(n *lruNode[K]) {
	n.prev = nil
	n.next = l.front
	if l.front != nil {
		l.front.prev = n
	} else {
		l.back = n
	}
	l.front = n
	l.len++
}

func (l *lruList[K]) unlink(n *lruNode[K]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.front = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.back = n.prev
	}
	n.prev, n.next = nil, nil
	l.len--
}
