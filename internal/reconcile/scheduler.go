package reconcile

import (
	"fmt"
	"sort"
	"sync"
)

// Scheduler holds named deferred tasks. A deferred task fires at once when the edge is
// online and otherwise stays armed until FireArmed runs on the next connectivity restore.
type Scheduler struct {
	online func() bool

	mu    sync.Mutex
	tasks map[string]func()
	armed map[string]bool
}

// NewScheduler returns a Scheduler. online reports current connectivity; nil means always online.
func NewScheduler(online func() bool) *Scheduler {
	if online == nil {
		online = func() bool { return true }
	}
	return &Scheduler{
		online: online,
		tasks:  make(map[string]func()),
		armed:  make(map[string]bool),
	}
}

// Handle registers fn as the task named tag.
func (s *Scheduler) Handle(tag string, fn func()) {
	s.mu.Lock()
	s.tasks[tag] = fn
	s.mu.Unlock()
}

// Defer arms tag. Unknown tags are an error.
func (s *Scheduler) Defer(tag string) error {
	s.mu.Lock()
	if _, ok := s.tasks[tag]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("no deferred task registered as %q", tag)
	}
	s.armed[tag] = true
	s.mu.Unlock()

	if s.online() {
		s.fire(tag)
	}
	return nil
}

// FireArmed runs every armed task and disarms it.
func (s *Scheduler) FireArmed() {
	for _, tag := range s.Armed() {
		s.fire(tag)
	}
}

// Armed returns the armed tags in sorted order.
func (s *Scheduler) Armed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]string, 0, len(s.armed))
	for tag := range s.armed {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func (s *Scheduler) fire(tag string) {
	s.mu.Lock()
	fn, ok := s.tasks[tag]
	armed := s.armed[tag]
	delete(s.armed, tag)
	s.mu.Unlock()
	if ok && armed {
		fn()
	}
}
