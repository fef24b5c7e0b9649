package controller

import "time"

// machine identifies which state machine owns a timer.
type machine int

const (
	motionMachine machine = iota
	throwerMachine
)

func (m machine) String() string {
	if m == throwerMachine {
		return "thrower"
	}
	return "motion"
}

type timer struct {
	id    uint64
	owner machine
	gen   uint64
	due   time.Time
	fn    func()
}

// timerSet holds the virtual timers. They only fire from runDue, which the
// controller calls at the start of every tick, so callbacks always run on the
// controller goroutine. A timer scheduled under an older generation of its
// owner never fires.
type timerSet struct {
	nextID  uint64
	gens    [2]uint64
	pending []*timer
}

func (s *timerSet) after(owner machine, due time.Time, fn func()) uint64 {
	s.nextID++
	s.pending = append(s.pending, &timer{
		id:    s.nextID,
		owner: owner,
		gen:   s.gens[owner],
		due:   due,
		fn:    fn,
	})
	return s.nextID
}

func (s *timerSet) cancel(id uint64) {
	for i, t := range s.pending {
		if t.id == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

func (s *timerSet) cancelOwner(owner machine) {
	s.gens[owner]++
	kept := s.pending[:0]
	for _, t := range s.pending {
		if t.owner != owner {
			kept = append(kept, t)
		}
	}
	clear(s.pending[len(kept):])
	s.pending = kept
}

func (s *timerSet) cancelAll() {
	s.cancelOwner(motionMachine)
	s.cancelOwner(throwerMachine)
}

func (s *timerSet) count(owner machine) int {
	n := 0
	for _, t := range s.pending {
		if t.owner == owner {
			n++
		}
	}
	return n
}

// runDue fires every timer due at or before now, earliest first. Timers added
// by a callback are considered in the same pass.
func (s *timerSet) runDue(now time.Time) int {
	fired := 0
	for {
		idx := -1
		for i, t := range s.pending {
			if t.due.After(now) {
				continue
			}
			if idx < 0 || t.due.Before(s.pending[idx].due) {
				idx = i
			}
		}
		if idx < 0 {
			return fired
		}
		t := s.pending[idx]
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
		if t.gen != s.gens[t.owner] {
			continue
		}
		t.fn()
		fired++
	}
}
