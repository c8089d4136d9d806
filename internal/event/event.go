/*
fox32 - Relative-time callback scheduler.

Copyright 2026, fox32vm contributors.

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package event is a doubly-linked relative-time event list: each entry
// stores its delay relative to the entry before it, so advancing time by
// one tick only ever touches the head. Used by the disk controller's
// optional seek-latency model, which wants "fire in N ticks" scheduling of
// its completion interrupt without a wall-clock timer.
package event

// Device identifies what an event is registered against, for Cancel
// lookups. fox32 devices are identified by a small int rather than an
// interface, since unlike the teacher's channel-attached devices, there is
// no shared Device interface across disk/audio/hid.
type Device int

// Callback runs when an event's delay reaches zero.
type Callback func(arg int)

type entry struct {
	time int
	dev  Device
	cb   Callback
	arg  int
	prev *entry
	next *entry
}

// List is a relative-time event queue. The zero value is an empty list.
type List struct {
	head *entry
	tail *entry
}

// Add schedules cb to run after delay ticks (or immediately, if delay is
// 0). Events are kept in time order by storing each entry's delay
// relative to the one before it.
func (l *List) Add(dev Device, cb Callback, delay int, arg int) {
	if delay == 0 {
		cb(arg)
		return
	}

	ev := &entry{dev: dev, cb: cb, time: delay, arg: arg}

	cur := l.head
	if cur == nil {
		l.head = ev
		l.tail = ev
		return
	}

	for cur != nil {
		if ev.time <= cur.time {
			cur.time -= ev.time
			ev.prev = cur.prev
			ev.next = cur
			cur.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				l.head = ev
			}
			return
		}
		ev.time -= cur.time
		cur = cur.next
	}

	ev.prev = l.tail
	l.tail.next = ev
	l.tail = ev
}

// Cancel removes the first pending event matching dev and arg, if any.
func (l *List) Cancel(dev Device, arg int) {
	cur := l.head
	for cur != nil {
		if cur.dev == dev && cur.arg == arg {
			if cur.next != nil {
				cur.next.time += cur.time
				cur.next.prev = cur.prev
			} else {
				l.tail = cur.prev
			}
			if cur.prev != nil {
				cur.prev.next = cur.next
			} else {
				l.head = cur.next
			}
			return
		}
		cur = cur.next
	}
}

// Advance moves time forward by t ticks, running (and removing) every
// event whose delay has reached zero or below.
func (l *List) Advance(t int) {
	cur := l.head
	if cur == nil {
		return
	}
	cur.time -= t
	for cur != nil && cur.time <= 0 {
		cur.cb(cur.arg)
		l.head = cur.next
		if l.head != nil {
			l.head.prev = nil
		} else {
			l.tail = nil
		}
		cur = l.head
	}
}
