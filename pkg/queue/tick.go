package queue

import (
	"github.com/rs/zerolog/log"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// NextEventSecs returns how long the tick loop may safely sleep: 0 when
// player-ready work is pending, 1 when object-ready work is pending or
// anything ripens within two seconds, otherwise one second short of the
// earliest wake time, capped at 999.
func (s *Scheduler) NextEventSecs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.qPlayer) > 0 {
		return 0
	}
	if len(s.qObject) > 0 {
		return 1
	}

	now := s.now()
	min := int64(1000)
	for _, e := range s.qWait {
		if d := e.Wake - now; d <= 2 {
			return 1
		} else if d < min {
			min = d
		}
	}
	for _, e := range s.qSem {
		if e.Wake == 0 {
			continue
		}
		if d := e.Wake - now; d <= 2 {
			return 1
		} else if d < min {
			min = d
		}
	}
	return min - 1
}

// Tick advances the queues by one cycle: the object-ready list migrates
// wholesale to the tail of the player-ready list, ripe wait entries
// promote, and timed-out semaphore entries give back their counter credit
// and promote. No-op while dequeuing is disabled. Returns the number of
// entries that moved to a ready list.
func (s *Scheduler) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickLocked()
}

func (s *Scheduler) tickLocked() int {
	if !s.dequeueOK {
		return 0
	}

	moved := 0
	if len(s.qObject) > 0 {
		moved += len(s.qObject)
		s.qPlayer = append(s.qPlayer, s.qObject...)
		s.qObject = s.qObject[:0]
	}

	now := s.now()
	for len(s.qWait) > 0 && s.qWait[0].Wake <= now {
		e := s.qWait[0]
		s.qWait = s.qWait[1:]
		s.giveQue(e)
		moved++
	}

	kept := s.qSem[:0]
	for _, e := range s.qSem {
		if e.Wake == 0 || e.Wake > now {
			kept = append(kept, e)
			continue
		}
		s.counters.Add(e.SemObj, e.semAttr(), -1)
		e.SemObj = gamedb.Nothing
		e.SemAttr = 0
		s.giveQue(e)
		moved++
	}
	s.qSem = kept
	return moved
}

// RunReady pops up to max entries off the player-ready list and executes
// the live ones. Tombstones and entries whose executor has been destroyed
// are reaped without refund. The lock is released around each execution so
// running commands can enqueue more work. Returns the number actually
// executed.
func (s *Scheduler) RunReady(max int) int {
	ran := 0
	for i := 0; i < max; i++ {
		s.mu.Lock()
		if !s.dequeueOK || len(s.qPlayer) == 0 {
			s.mu.Unlock()
			break
		}
		e := s.qPlayer[0]
		s.qPlayer = s.qPlayer[1:]

		if e.halted() || !s.world.Good(e.Player) || s.world.Going(e.Player) {
			s.destroy(e)
			s.mu.Unlock()
			continue
		}

		s.world.Refund(e.Player, s.cfg.WaitCost)
		s.qcount[s.world.Owner(e.Player)]--
		e.State = EntryHalted
		run := !s.world.Halted(e.Player)
		s.mu.Unlock()

		if run {
			s.exec.Execute(e.Player, e.Cause, e.Command, e.Env, e.RData)
			ran++
		}

		s.mu.Lock()
		s.destroy(e)
		s.mu.Unlock()
	}
	return ran
}

// Kick force-runs up to n ready entries, temporarily enabling dequeuing if
// it is off. Returns the number executed and whether dequeuing had to be
// forced on.
func (s *Scheduler) Kick(n int) (int, bool) {
	s.mu.Lock()
	was := s.dequeueOK
	s.dequeueOK = true
	s.mu.Unlock()

	ran := s.RunReady(n)

	s.mu.Lock()
	s.dequeueOK = was
	s.mu.Unlock()
	if !was {
		log.Info().Int("ran", ran).Msg("Queue kicked while dequeuing disabled")
	}
	return ran, !was
}

// Warp shifts every pending wake time delta seconds toward the present (a
// negative delta pushes them further out), clamping at already-due, then
// forces one tick so newly ripe entries promote immediately.
func (s *Scheduler) Warp(delta int64) {
	s.mu.Lock()
	for _, e := range s.qWait {
		e.Wake -= delta
		if e.Wake < 1 {
			e.Wake = 1
		}
	}
	for _, e := range s.qSem {
		if e.Wake == 0 {
			continue
		}
		e.Wake -= delta
		if e.Wake < 1 {
			e.Wake = 1
		}
	}
	was := s.dequeueOK
	s.dequeueOK = true
	s.tickLocked()
	s.dequeueOK = was
	s.mu.Unlock()
	log.Info().Int64("seconds", delta).Msg("Queue timer warped")
}
