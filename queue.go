/*
* The MIT License (MIT)
*
* Copyright (c) 2016,2017,2020,2026  aerth <aerth@riseup.net>
*
* Permission is hereby granted, free of charge, to any person obtaining a copy
* of this software and associated documentation files (the "Software"), to deal
* in the Software without restriction, including without limitation the rights
* to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
* copies of the Software, and to permit persons to whom the Software is
* furnished to do so, subject to the following conditions:
*
* The above copyright notice and this permission notice shall be included in all
* copies or substantial portions of the Software.
*
* THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
* IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
* FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
* AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
* LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
* OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
* SOFTWARE.
 */

package torero

import "sync"

// Queue is a fixed capacity FIFO shared by one producer (the acceptor) and
// many consumers (the workers).
//
// Put blocks while the queue is full, Get blocks while it is empty. Both
// wait on condition variables guarded by a single mutex, never polling.
// There is no close or drain: a Queue lives as long as the process.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T // ring buffer, len(items) == capacity
	head     int // index of the oldest item
	n        int // number of buffered items
	notFull  *sync.Cond
	notEmpty *sync.Cond
}

// NewQueue returns an empty queue holding at most capacity items.
// It panics if capacity is less than one.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		panic("torero: queue capacity must be positive")
	}
	q := &Queue[T]{items: make([]T, capacity)}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Put appends item at the tail, waiting for space if the queue is full,
// and wakes one waiting consumer.
func (q *Queue[T]) Put(item T) {
	q.mu.Lock()
	for q.n == len(q.items) {
		q.notFull.Wait()
	}
	q.items[(q.head+q.n)%len(q.items)] = item
	q.n++
	q.mu.Unlock()
	q.notEmpty.Signal()
}

// Get removes and returns the head item, waiting for one if the queue is
// empty, and wakes one waiting producer.
func (q *Queue[T]) Get() T {
	q.mu.Lock()
	for q.n == 0 {
		q.notEmpty.Wait()
	}
	var zero T
	item := q.items[q.head]
	q.items[q.head] = zero // drop the reference, the caller owns it now
	q.head = (q.head + 1) % len(q.items)
	q.n--
	q.mu.Unlock()
	q.notFull.Signal()
	return item
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int {
	return len(q.items)
}
