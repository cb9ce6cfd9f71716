package queue

import (
	"github.com/crystal-mush/mushqd/pkg/eval"
	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// MaxEnvArgs is the fixed capacity of the positional environment (%0-%9).
const MaxEnvArgs = 10

// EntryState distinguishes live entries from tombstones. A tombstoned entry
// may still be physically linked into a ready list; it is reaped on dequeue
// instead of executed.
type EntryState int

const (
	EntryActive EntryState = iota
	EntryHalted
)

// Entry is one pending command invocation.
type Entry struct {
	PID     int
	Player  gamedb.DBRef // object that will execute the command
	Cause   gamedb.DBRef // enactor that triggered it
	Command string
	Env     []string            // positional substitution args %0-%9
	RData   *eval.RegisterData  // register snapshot captured at enqueue
	SemObj  gamedb.DBRef        // Nothing = not semaphore-gated
	SemAttr int                 // 0 = wildcard/default SEMAPHORE attribute
	Wake    int64               // absolute unix seconds; 0 = not time-gated
	State   EntryState
}

func (e *Entry) halted() bool { return e.State == EntryHalted }

// semAttr returns the attribute whose counter this entry holds, defaulting
// to SEMAPHORE when the entry carries the 0 wildcard.
func (e *Entry) semAttr() int {
	if e.SemAttr != 0 {
		return e.SemAttr
	}
	return gamedb.ASemaphore
}

// allocPID hands out the next free PID using a rolling cursor over
// [1, MaxPID], probing past occupied slots. Returns 0 only when every slot
// is taken. Caller holds the scheduler lock.
func (s *Scheduler) allocPID() int {
	pid := s.pidTop
	for i := 0; i < s.cfg.MaxPID; i++ {
		if pid > s.cfg.MaxPID {
			pid = 1
		}
		if _, taken := s.pids[pid]; taken {
			pid++
			continue
		}
		s.pidTop = pid + 1
		return pid
	}
	return 0
}

// destroy releases an entry's PID. The entry must already be unlinked from
// whichever list held it.
func (s *Scheduler) destroy(e *Entry) {
	delete(s.pids, e.PID)
}

// Lookup returns the live entry for a PID, or nil.
func (s *Scheduler) Lookup(pid int) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pids[pid]
}
