// Package queue implements the command-execution scheduler: four queue
// lists (player-ready, object-ready, wait, semaphore), a bounded PID
// space, the semaphore notify/drain protocol, and the tick driver that
// moves entries between lists and dispatches them.
package queue

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crystal-mush/mushqd/pkg/eval"
	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// World is the scheduler's view of the surrounding game: object validity,
// ownership, flags, permissions and the money supply. The server's Game
// satisfies it.
type World interface {
	Good(ref gamedb.DBRef) bool
	Going(ref gamedb.DBRef) bool
	Owner(ref gamedb.DBRef) gamedb.DBRef
	IsPlayer(ref gamedb.DBRef) bool
	Halted(ref gamedb.DBRef) bool
	SetHalted(ref gamedb.DBRef)
	Controls(who, what gamedb.DBRef) bool
	CanHalt(who gamedb.DBRef) bool

	// QueueMax is the per-owner quota of outstanding queue entries.
	QueueMax(owner gamedb.DBRef) int

	// Charge debits the queue cost, returning false if unaffordable.
	// Refund credits deposits back; both take the executing object and
	// route to its owner's purse.
	Charge(who gamedb.DBRef, cost int) bool
	Refund(who gamedb.DBRef, amount int)
}

// CounterStore holds the integer notification-credit counters that live on
// (object, attribute) pairs. Add returns the new value; a counter adjusted
// to zero is erased.
type CounterStore interface {
	Get(obj gamedb.DBRef, attr int) int
	Add(obj gamedb.DBRef, attr int, delta int) int
	Clear(obj gamedb.DBRef, attr int)
}

// Executor runs one dequeued command in the game's interpreter.
type Executor interface {
	Execute(player, cause gamedb.DBRef, command string, env []string, regs *eval.RegisterData)
}

// Config carries the scheduler tunables. Zero values fall back to the
// historical defaults in New.
type Config struct {
	WaitCost    int // deposit per queued command, refunded on execution
	MachineCost int // 1-in-N chance of an extra non-refundable coin
	MaxPID      int // size of the PID space
}

// Scheduler owns the four queue lists and the PID table. All list state is
// guarded by mu; execution itself happens with the lock released so that
// running commands can enqueue more work.
type Scheduler struct {
	mu       sync.Mutex
	world    World
	counters CounterStore
	exec     Executor
	cfg      Config

	qPlayer []*Entry // ready, player-caused, FIFO
	qObject []*Entry // ready, object-caused, FIFO
	qWait   []*Entry // time-gated, sorted by Wake ascending
	qSem    []*Entry // semaphore-gated, FIFO

	pids   map[int]*Entry
	pidTop int

	qcount map[gamedb.DBRef]int // live entries per owner

	dequeueOK bool // automatic dequeuing (tick + dispatch)
	interpOK  bool // command interpretation (enqueue)

	now     func() int64
	randInt func(n int) int
}

// New builds a scheduler around the given collaborators.
func New(world World, counters CounterStore, exec Executor, cfg Config) *Scheduler {
	if cfg.MaxPID <= 0 {
		cfg.MaxPID = 10000
	}
	return &Scheduler{
		world:     world,
		counters:  counters,
		exec:      exec,
		cfg:       cfg,
		pids:      make(map[int]*Entry),
		pidTop:    1,
		qcount:    make(map[gamedb.DBRef]int),
		dequeueOK: true,
		interpOK:  true,
		now:       func() int64 { return time.Now().Unix() },
		randInt:   rand.Intn,
	}
}

// SetDequeue toggles automatic dequeuing. When off, entries accumulate but
// never ripen or run (except under Kick/Warp).
func (s *Scheduler) SetDequeue(on bool) {
	s.mu.Lock()
	s.dequeueOK = on
	s.mu.Unlock()
}

// DequeueEnabled reports whether automatic dequeuing is on.
func (s *Scheduler) DequeueEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dequeueOK
}

// SetInterp toggles command interpretation. When off, Enqueue rejects all
// new work.
func (s *Scheduler) SetInterp(on bool) {
	s.mu.Lock()
	s.interpOK = on
	s.mu.Unlock()
}

// SetCosts swaps the economic tunables at runtime.
func (s *Scheduler) SetCosts(waitCost, machineCost int) {
	s.mu.Lock()
	s.cfg.WaitCost = waitCost
	s.cfg.MachineCost = machineCost
	s.mu.Unlock()
}

// WaitCost returns the current per-command deposit.
func (s *Scheduler) WaitCost() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.WaitCost
}

// QueueCount returns the owner's live entry count.
func (s *Scheduler) QueueCount(owner gamedb.DBRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qcount[owner]
}

// Enqueue creates a queue entry for player to run command on cause's
// behalf and routes it onto the appropriate list. wait is a relative delay
// in seconds; sem is a semaphore object (Nothing for none) with semAttr
// naming the counter attribute (0 for the wildcard default). A semaphore
// entry with wait > 0 also wakes on timeout.
//
// The returned PID identifies the entry for later @halt/@wait adjustment.
func (s *Scheduler) Enqueue(player, cause gamedb.DBRef, wait int64, sem gamedb.DBRef, semAttr int, command string, env []string, regs *eval.RegisterData) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(player, cause, wait, sem, semAttr, command, env, regs)
}

// EnqueueSemaphore posts the +1 on (sem, semAttr)'s counter and queues the
// entry in one critical section, so a concurrent Notify or a semaphore
// timeout in Tick cannot interleave with the increment. A counter the
// increment leaves at zero or below means banked notification credits: the
// entry then runs immediately with no semaphore binding. The counter stays
// incremented even when entry creation fails, exactly as the C server left
// it.
func (s *Scheduler) EnqueueSemaphore(player, cause gamedb.DBRef, wait int64, sem gamedb.DBRef, semAttr int, command string, env []string, regs *eval.RegisterData) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctr := semAttr
	if ctr == 0 {
		ctr = gamedb.ASemaphore
	}
	if s.counters.Add(sem, ctr, 1) <= 0 {
		sem = gamedb.Nothing
		semAttr = 0
		wait = 0
	}
	return s.enqueueLocked(player, cause, wait, sem, semAttr, command, env, regs)
}

func (s *Scheduler) enqueueLocked(player, cause gamedb.DBRef, wait int64, sem gamedb.DBRef, semAttr int, command string, env []string, regs *eval.RegisterData) (int, error) {
	if !s.interpOK {
		return 0, ErrHalted
	}
	if s.world.Halted(player) {
		return 0, ErrHalted
	}

	// The deposit, plus an occasional extra coin that is never refunded.
	cost := s.cfg.WaitCost
	if cost > 0 && s.cfg.MachineCost > 0 && s.randInt(s.cfg.MachineCost) == 0 {
		cost++
	}
	if !s.world.Charge(player, cost) {
		return 0, ErrInsufficientFunds
	}

	owner := s.world.Owner(player)
	s.qcount[owner]++
	if s.qcount[owner] > s.world.QueueMax(owner) {
		log.Warn().Int("owner", int(owner)).Int("queued", s.qcount[owner]).
			Msg("Runaway object, halting queue")
		s.haltLocked(owner, gamedb.Nothing)
		s.world.SetHalted(player)
		return 0, ErrRunawayHalted
	}

	pid := s.allocPID()
	if pid == 0 {
		log.Warn().Msg("Queue PID space exhausted")
		return 0, ErrQueueFull
	}

	e := &Entry{
		PID:     pid,
		Player:  player,
		Cause:   cause,
		Command: command,
		Env:     env,
		RData:   regs.Clone(),
		SemObj:  sem,
		SemAttr: semAttr,
	}
	if wait != 0 {
		e.Wake = s.now() + wait
		if wait > 0 && e.Wake < 0 {
			e.Wake = math.MaxInt64
		}
	}
	s.pids[pid] = e

	switch {
	case sem == gamedb.Nothing && wait <= 0:
		s.giveQue(e)
	case sem == gamedb.Nothing:
		s.waitInsert(e)
	default:
		s.qSem = append(s.qSem, e)
	}
	return pid, nil
}

// giveQue places an entry at the tail of a ready list, player or object
// depending on what caused it. Any pending wake time is cleared.
func (s *Scheduler) giveQue(e *Entry) {
	e.Wake = 0
	if s.world.IsPlayer(e.Cause) {
		s.qPlayer = append(s.qPlayer, e)
	} else {
		s.qObject = append(s.qObject, e)
	}
}

// waitInsert places an entry into the wait list, keeping it sorted by Wake
// ascending. Ties go after existing entries so equal wake times run in
// enqueue order.
func (s *Scheduler) waitInsert(e *Entry) {
	i := 0
	for i < len(s.qWait) && s.qWait[i].Wake <= e.Wake {
		i++
	}
	s.qWait = append(s.qWait, nil)
	copy(s.qWait[i+1:], s.qWait[i:])
	s.qWait[i] = e
}

// removeFrom unlinks e from list, returning the shortened list and whether
// e was present.
func removeFrom(list []*Entry, e *Entry) ([]*Entry, bool) {
	for i, p := range list {
		if p == e {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}
