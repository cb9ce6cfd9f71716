package queue

import "github.com/crystal-mush/mushqd/pkg/gamedb"

// EntryInfo is a read-only copy of a queue entry for display.
type EntryInfo struct {
	PID     int
	Player  gamedb.DBRef
	Cause   gamedb.DBRef
	Command string
	Env     []string
	SemObj  gamedb.DBRef
	SemAttr int
	Wake    int64
	Halted  bool
}

// ListTotals counts one queue list: entries shown under the current
// targeting, the list's full length, and (for the ready lists) how many of
// the full length are tombstones awaiting reaping.
type ListTotals struct {
	Shown      int
	Total      int
	Tombstones int
}

// Listing is a point-in-time view of all four queue lists filtered by the
// usual halt targeting (owner and/or object, Nothing as wildcard).
type Listing struct {
	Player    []EntryInfo
	Object    []EntryInfo
	Wait      []EntryInfo
	Semaphore []EntryInfo

	PlayerTotals    ListTotals
	ObjectTotals    ListTotals
	WaitTotals      ListTotals
	SemaphoreTotals ListTotals
}

func copyInfo(e *Entry) EntryInfo {
	return EntryInfo{
		PID:     e.PID,
		Player:  e.Player,
		Cause:   e.Cause,
		Command: e.Command,
		Env:     e.Env,
		SemObj:  e.SemObj,
		SemAttr: e.SemAttr,
		Wake:    e.Wake,
		Halted:  e.halted(),
	}
}

// Snapshot captures the queues for display, showing only entries matching
// the targeting filter but counting everything.
func (s *Scheduler) Snapshot(ptarg, otarg gamedb.DBRef) *Listing {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := &Listing{}
	scan := func(list []*Entry, out *[]EntryInfo, tot *ListTotals) {
		for _, e := range list {
			tot.Total++
			if e.halted() {
				tot.Tombstones++
			}
			if s.queWant(e, ptarg, otarg) {
				tot.Shown++
				*out = append(*out, copyInfo(e))
			}
		}
	}
	scan(s.qPlayer, &l.Player, &l.PlayerTotals)
	scan(s.qObject, &l.Object, &l.ObjectTotals)
	scan(s.qWait, &l.Wait, &l.WaitTotals)
	scan(s.qSem, &l.Semaphore, &l.SemaphoreTotals)
	return l
}

// Stats returns the raw lengths of the four lists plus PIDs in use.
func (s *Scheduler) Stats() (player, object, wait, semaphore, pids int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.qPlayer), len(s.qObject), len(s.qWait), len(s.qSem), len(s.pids)
}
