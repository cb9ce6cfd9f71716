package queue

import "github.com/crystal-mush/mushqd/pkg/gamedb"

// NotifyMode selects between releasing semaphore waiters and discarding
// them.
type NotifyMode int

const (
	// ModeNotify promotes matched waiters to the ready lists.
	ModeNotify NotifyMode = iota
	// ModeNotifyAll promotes every matched waiter and erases the counter.
	ModeNotifyAll
	// ModeDrain deletes matched waiters, refunding their deposits.
	ModeDrain
)

// Notify wakes or drains entries blocked on the semaphore (sem, attr).
// attr == 0 is the wildcard: it matches entries on any attribute of sem
// and adjusts the default SEMAPHORE counter afterwards.
//
// In notify mode at most count entries are moved, in queue order, and the
// counter is decremented by count whether or not that many waiters
// existed; the surplus becomes notification credits. Notify-all releases
// every matched entry and erases the counter. In drain mode every matched
// entry is discarded and the counter is erased outright.
//
// Returns the number of entries moved or discarded.
func (s *Scheduler) Notify(sem gamedb.DBRef, attr int, mode NotifyMode, count int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A named attribute whose counter is zero or negative has nothing
	// outstanding; skip the scan but still post the adjustment below.
	num := 1
	if attr != 0 {
		num = s.counters.Get(sem, attr)
	}

	moved := 0
	if num > 0 {
		kept := s.qSem[:0]
		done := false
		for _, e := range s.qSem {
			if done || e.SemObj != sem || (attr != 0 && e.SemAttr != attr) {
				kept = append(kept, e)
				continue
			}
			switch mode {
			case ModeNotify, ModeNotifyAll:
				e.SemObj = gamedb.Nothing
				e.SemAttr = 0
				s.giveQue(e)
				moved++
				if mode == ModeNotify && moved >= count {
					done = true
				}
			case ModeDrain:
				s.world.Refund(e.Player, s.cfg.WaitCost)
				s.qcount[s.world.Owner(e.Player)]--
				s.destroy(e)
				moved++
			}
		}
		s.qSem = kept
	}

	ctrAttr := attr
	if ctrAttr == 0 {
		ctrAttr = gamedb.ASemaphore
	}
	switch mode {
	case ModeNotify:
		s.counters.Add(sem, ctrAttr, -count)
	case ModeNotifyAll, ModeDrain:
		s.counters.Clear(sem, ctrAttr)
	}
	return moved
}
