package session

import "sync"

// loop runs posted tasks one at a time in posting order, standing in for the
// single-threaded event loop of a UI shell. The goroutine that finds the loop
// idle drains the queue; tasks posted while a drain is in progress, including
// from inside a running task, are queued behind it instead of interleaving.
type loop struct {
	mu      sync.Mutex
	queue   []func()
	running bool

	onPanic func(v interface{})
}

func (l *loop) post(task func()) {
	l.mu.Lock()
	l.queue = append(l.queue, task)
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	l.drain()
}

func (l *loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.run(task)
	}
}

func (l *loop) run(task func()) {
	defer func() {
		if v := recover(); v != nil && l.onPanic != nil {
			l.onPanic(v)
		}
	}()
	task()
}
