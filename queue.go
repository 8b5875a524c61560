// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package streamreader

// chunkQueue is a FIFO ring buffer of received chunks.
type chunkQueue[T any] struct {
	q     []T
	first int
	last  int
	n     int // number of elements in queue
}

// empty is only used in tests; the reader tracks readiness by count.
func (q *chunkQueue[T]) empty() bool {
	return q.n == 0
}

func (q *chunkQueue[T]) len() int {
	return q.n
}

// push adds an item to the tail of the queue.
func (q *chunkQueue[T]) push(r T) {
	if q.q == nil {
		q.q = make([]T, 8 /* arbitrary */)
	}
	if q.n == cap(q.q) {
		buf := make([]T, cap(q.q)*2)
		for i := 0; i < q.n; i++ {
			buf[i] = q.q[(q.first+i)%cap(q.q)]
		}
		q.q = buf
		q.first = 0
		q.last = q.n
	}
	q.q[q.last] = r
	q.last = (q.last + 1) % cap(q.q)
	q.n++
}

// pop removes an item from the head of the queue. It returns the zero value
// if the queue is empty.
func (q *chunkQueue[T]) pop() T {
	var zero T
	if q.n == 0 {
		return zero
	}
	r := q.q[q.first]
	q.q[q.first] = zero
	q.first = (q.first + 1) % cap(q.q)
	q.n--
	return r
}

// truncate drops items from the tail until at most n remain.
func (q *chunkQueue[T]) truncate(n int) {
	var zero T
	for q.n > n && q.n > 0 {
		q.last = (q.last - 1 + cap(q.q)) % cap(q.q)
		q.q[q.last] = zero
		q.n--
	}
}

// clear empties the queue.
func (q *chunkQueue[T]) clear() {
	*q = chunkQueue[T]{}
}

// dump returns the queued items in order. It is only used in tests.
func (q *chunkQueue[T]) dump() []T {
	var dq []T
	for i := q.first; len(dq) < q.n; i = (i + 1) % cap(q.q) {
		dq = append(dq, q.q[i])
	}
	return dq
}
