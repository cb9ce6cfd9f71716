package queue

import (
	"math"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// queWant reports whether an entry falls under a halt's targeting: ptarg
// selects by owner of the executing object, otarg by the object itself.
// Nothing in either slot is a wildcard. Tombstones never match.
func (s *Scheduler) queWant(e *Entry, ptarg, otarg gamedb.DBRef) bool {
	if e.halted() || !s.world.Good(e.Player) {
		return false
	}
	if ptarg != gamedb.Nothing && ptarg != s.world.Owner(e.Player) {
		return false
	}
	if otarg != gamedb.Nothing && otarg != e.Player {
		return false
	}
	return true
}

// Halt removes matching entries from all four lists. Ready-list entries
// are tombstoned in place and reaped at dispatch; wait and semaphore
// entries are unlinked immediately, semaphore entries giving back their
// counter credit. Deposits are refunded and per-owner counts adjusted.
// Returns the number of entries halted.
func (s *Scheduler) Halt(ptarg, otarg gamedb.DBRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haltLocked(ptarg, otarg)
}

func (s *Scheduler) haltLocked(ptarg, otarg gamedb.DBRef) int {
	numhalted := 0
	perOwner := make(map[gamedb.DBRef]int)
	haltAll := ptarg == gamedb.Nothing && otarg == gamedb.Nothing

	for _, e := range s.qPlayer {
		if s.queWant(e, ptarg, otarg) {
			numhalted++
			perOwner[s.world.Owner(e.Player)]++
			e.State = EntryHalted
		}
	}
	for _, e := range s.qObject {
		if s.queWant(e, ptarg, otarg) {
			numhalted++
			perOwner[s.world.Owner(e.Player)]++
			e.State = EntryHalted
		}
	}

	kept := s.qWait[:0]
	for _, e := range s.qWait {
		if !s.queWant(e, ptarg, otarg) {
			kept = append(kept, e)
			continue
		}
		numhalted++
		perOwner[s.world.Owner(e.Player)]++
		s.destroy(e)
	}
	s.qWait = kept

	kept = s.qSem[:0]
	for _, e := range s.qSem {
		if !s.queWant(e, ptarg, otarg) {
			kept = append(kept, e)
			continue
		}
		numhalted++
		perOwner[s.world.Owner(e.Player)]++
		s.counters.Add(e.SemObj, e.semAttr(), -1)
		s.destroy(e)
	}
	s.qSem = kept

	if haltAll {
		for owner, n := range perOwner {
			s.world.Refund(owner, s.cfg.WaitCost*n)
			s.qcount[owner] = 0
		}
		return numhalted
	}

	victim := ptarg
	if victim == gamedb.Nothing {
		victim = s.world.Owner(otarg)
	}
	s.world.Refund(victim, s.cfg.WaitCost*numhalted)
	if otarg == gamedb.Nothing {
		s.qcount[victim] = 0
	} else {
		s.qcount[victim] -= numhalted
	}
	return numhalted
}

// HaltPID halts the single entry identified by pid on behalf of requester,
// who must either control the entry's executor or hold the halt power.
func (s *Scheduler) HaltPID(requester gamedb.DBRef, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pid < 1 || pid > s.cfg.MaxPID {
		return ErrInvalidPid
	}
	e, ok := s.pids[pid]
	if !ok {
		return ErrNotFound
	}
	if e.halted() {
		return ErrAlreadyHalted
	}
	if !s.world.Controls(requester, e.Player) && !s.world.CanHalt(requester) {
		return ErrPermission
	}

	victim := s.world.Owner(e.Player)
	e.State = EntryHalted
	if e.SemObj == gamedb.Nothing {
		// Wait entries come out now; ready entries stay linked as
		// tombstones and are reaped when dispatch reaches them.
		var removed bool
		if s.qWait, removed = removeFrom(s.qWait, e); removed {
			s.destroy(e)
		}
	} else {
		s.qSem, _ = removeFrom(s.qSem, e)
		s.counters.Add(e.SemObj, e.semAttr(), -1)
		s.destroy(e)
	}
	s.world.Refund(victim, s.cfg.WaitCost)
	s.qcount[victim]--
	return nil
}

// AdjustMode selects how Reschedule interprets its seconds argument.
type AdjustMode int

const (
	// AdjustFromNow sets the wake time to now + secs.
	AdjustFromNow AdjustMode = iota
	// AdjustRelative shifts the existing wake time by secs.
	AdjustRelative
	// AdjustAbsolute sets the wake time to secs as a unix timestamp;
	// a negative value means now.
	AdjustAbsolute
)

// Reschedule changes the wake time of the wait or timed-semaphore entry
// identified by pid. Wait entries are re-sorted into position. A wake time
// driven negative snaps to now for a negative adjustment and saturates for
// a positive one.
func (s *Scheduler) Reschedule(requester gamedb.DBRef, pid int, mode AdjustMode, secs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pid < 1 || pid > s.cfg.MaxPID {
		return ErrInvalidPid
	}
	e, ok := s.pids[pid]
	if !ok {
		return ErrNotFound
	}
	if e.halted() {
		return ErrAlreadyHalted
	}
	if !s.world.Controls(requester, e.Player) && !s.world.CanHalt(requester) {
		return ErrPermission
	}
	if e.Wake == 0 {
		return ErrNoTimeout
	}

	switch mode {
	case AdjustAbsolute:
		if secs < 0 {
			e.Wake = s.now()
		} else {
			e.Wake = secs
		}
	case AdjustRelative:
		e.Wake += secs
		if e.Wake < 0 {
			if secs < 0 {
				e.Wake = s.now()
			} else {
				e.Wake = math.MaxInt64
			}
		}
	case AdjustFromNow:
		e.Wake = s.now() + secs
	}

	if e.SemObj == gamedb.Nothing {
		if s.qWait, ok = removeFrom(s.qWait, e); ok {
			s.waitInsert(e)
		}
	}
	return nil
}
