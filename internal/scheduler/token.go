package scheduler

import "sync"

// Token represents one outstanding asynchronous operation (a timer, a worker
// job) whose completion has not been queued yet. While any token is held the
// scheduler reports HasWork even with empty queues.
type Token struct {
	s    *Scheduler
	once sync.Once
}

// Track registers an outstanding operation. The caller must Release the token
// once the operation's completion has been queued or abandoned.
func (s *Scheduler) Track() *Token {
	s.pending.Add(1)
	return &Token{s: s}
}

// Release drops the token. Calling it more than once is a no-op.
func (t *Token) Release() {
	t.once.Do(func() {
		t.s.pending.Add(-1)
		t.s.Wake()
	})
}
