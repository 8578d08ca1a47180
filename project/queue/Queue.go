package queue

import (
	"container/list"
	"sync"
)

// Queue is an unbounded FIFO; Get blocks until an item or Close.
type Queue struct {
	rows   *list.List
	lock   sync.Mutex
	cond   *sync.Cond
	closed bool
}

func NewQueue() *Queue {
	self := &Queue{}
	self.rows = list.New()
	self.cond = sync.NewCond(&self.lock)
	return self
}

func (self *Queue) Put_nowait(data interface{}) {
	if data == nil {
		return
	}
	self.lock.Lock()
	defer self.lock.Unlock()
	if self.closed {
		return
	}
	self.rows.PushBack(data)
	self.cond.Signal()
}

func (self *Queue) Get_nowait() interface{} {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.pop()
}

// Get returns nil once the queue is closed and drained.
func (self *Queue) Get() interface{} {
	self.lock.Lock()
	defer self.lock.Unlock()
	for self.rows.Len() == 0 && !self.closed {
		self.cond.Wait()
	}
	return self.pop()
}

func (self *Queue) pop() interface{} {
	front := self.rows.Front()
	if front == nil {
		return nil
	}
	ret := front.Value
	self.rows.Remove(front)
	return ret
}

func (self *Queue) Close() {
	self.lock.Lock()
	defer self.lock.Unlock()
	self.closed = true
	self.cond.Broadcast()
}

func (self *Queue) Is_empty() bool {
	self.lock.Lock()
	defer self.lock.Unlock()
	return !(self.rows.Len() > 0)
}

func (self *Queue) Len() int {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.rows.Len()
}
