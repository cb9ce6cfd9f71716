package server

import (
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/crystal-mush/mushqd/pkg/boltstore"
	"github.com/crystal-mush/mushqd/pkg/events"
	"github.com/crystal-mush/mushqd/pkg/gamedb"
	"github.com/crystal-mush/mushqd/pkg/queue"
)

// Game aggregates the database, connections, scheduler and supporting
// services. It is the scheduler's window onto the rest of the world: it
// implements queue.World and queue.CounterStore.
type Game struct {
	DB       *gamedb.Database
	Conns    *ConnManager
	Commands map[string]*Command
	Sched    *queue.Scheduler
	NextRef  gamedb.DBRef
	Store    *boltstore.Store // nil = no bbolt persistence
	Conf     *GameConf
	EventBus *events.Bus
	SQLDB    *SQLStore // nil = no execution audit log
	Cron     *CronTab  // nil = cron disabled
	Limiter  *ObjectLimiter
	Metrics  *Metrics // nil = metrics endpoint disabled

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	mu sync.Mutex // guards live-tunable Conf fields
}

var (
	_ queue.World        = (*Game)(nil)
	_ queue.CounterStore = (*Game)(nil)
)

// NewGame creates a new Game instance around a loaded database.
func NewGame(db *gamedb.Database, conf *GameConf) *Game {
	maxRef := gamedb.DBRef(0)
	for ref, obj := range db.Objects {
		if ref > maxRef {
			maxRef = ref
		}
		// Nobody is connected at startup; the store may have the flag
		// baked in from when the snapshot was taken.
		obj.Flags[1] &^= gamedb.Flag2Connected
	}
	bus := events.NewBus()
	cm := NewConnManager()
	cm.EventBus = bus

	g := &Game{
		DB:         db,
		Conns:      cm,
		Commands:   InitCommands(),
		NextRef:    maxRef + 1,
		Conf:       conf,
		EventBus:   bus,
		Limiter:    NewObjectLimiter(conf.ObjectCmdsPerSec, conf.ObjectCmdsBurst),
		shutdownCh: make(chan struct{}),
	}
	g.Sched = queue.New(g, g, g, queue.Config{
		WaitCost:    conf.WaitCost,
		MachineCost: conf.MachineCommandCost,
		MaxPID:      conf.QueueMaxPid,
	})
	g.Sched.SetInterp(conf.InterpEnabled)
	g.Sched.SetDequeue(conf.DequeueEnabled)
	if conf.CronEnabled {
		g.Cron = NewCronTab(g)
	}
	return g
}

// --- queue.World ---

// Good reports whether ref names a live object.
func (g *Game) Good(ref gamedb.DBRef) bool { return g.DB.Good(ref) }

// Going reports whether ref is marked for destruction.
func (g *Game) Going(ref gamedb.DBRef) bool {
	obj, ok := g.DB.Objects[ref]
	return ok && obj.IsGoing()
}

// Owner returns the owner of ref; players own themselves.
func (g *Game) Owner(ref gamedb.DBRef) gamedb.DBRef { return g.DB.Owner(ref) }

// IsPlayer reports whether ref is a player object.
func (g *Game) IsPlayer(ref gamedb.DBRef) bool {
	obj, ok := g.DB.Objects[ref]
	return ok && obj.ObjType() == gamedb.TypePlayer
}

// Halted reports whether ref carries the HALT flag.
func (g *Game) Halted(ref gamedb.DBRef) bool {
	obj, ok := g.DB.Objects[ref]
	return ok && obj.IsHalted()
}

// SetHalted sets the HALT flag on ref.
func (g *Game) SetHalted(ref gamedb.DBRef) {
	obj, ok := g.DB.Objects[ref]
	if !ok {
		return
	}
	obj.Flags[0] |= gamedb.FlagHalt
	g.PersistObject(obj)
}

// CanHalt reports whether who may halt arbitrary queue entries.
func (g *Game) CanHalt(who gamedb.DBRef) bool {
	if Wizard(g, who) {
		return true
	}
	obj, ok := g.DB.Objects[who]
	return ok && obj.HasPower(0, gamedb.PowHalt)
}

// QueueMax returns the owner's queue quota: a QUEUEMAX attribute wins,
// wizards otherwise get effectively-unbounded (one per database object),
// everyone else gets the configured quota.
func (g *Game) QueueMax(owner gamedb.DBRef) int {
	obj, ok := g.DB.Objects[owner]
	if !ok {
		return 0
	}
	if m := obj.GetIntAttr(gamedb.AQueueMax); m > 0 {
		return m
	}
	if Wizard(g, owner) {
		return len(g.DB.Objects) + 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Conf.QueueQuota
}

// queueIdleChunk returns the per-tick dispatch batch size under the
// config lock, since a live reload can rewrite it at any time.
func (g *Game) queueIdleChunk() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Conf.QueueIdleChunk
}

// queueChunk returns the post-command dispatch batch size.
func (g *Game) queueChunk() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Conf.QueueChunk
}

// PostCommandDrain runs a bounded batch of ready entries immediately after
// an interactive command, so work queued by that command starts without
// waiting for the next scheduler tick.
func (g *Game) PostCommandDrain() int {
	return g.Sched.RunReady(g.queueChunk())
}

// Charge debits the queue cost from who's owner, returning false if the
// purse is short. Owners with free money never pay.
func (g *Game) Charge(who gamedb.DBRef, cost int) bool {
	owner := g.DB.Owner(who)
	obj, ok := g.DB.Objects[owner]
	if !ok {
		return false
	}
	if g.freeMoney(obj) {
		return true
	}
	if obj.Pennies < cost {
		return false
	}
	obj.Pennies -= cost
	obj.SetIntAttr(gamedb.AMoney, obj.Pennies)
	g.PersistObject(obj)
	return true
}

// Refund credits deposits back to who's owner. Free-money owners never
// paid, so they get nothing back.
func (g *Game) Refund(who gamedb.DBRef, amount int) {
	owner := g.DB.Owner(who)
	obj, ok := g.DB.Objects[owner]
	if !ok || g.freeMoney(obj) || amount == 0 {
		return
	}
	obj.Pennies += amount
	obj.SetIntAttr(gamedb.AMoney, obj.Pennies)
	g.PersistObject(obj)
}

func (g *Game) freeMoney(obj *gamedb.Object) bool {
	return obj.HasFlag(gamedb.FlagWizard) || obj.HasFlag(gamedb.FlagImmortal) ||
		obj.HasPower(0, gamedb.PowFreeMoney)
}

// --- queue.CounterStore ---

// Get reads a semaphore counter attribute.
func (g *Game) Get(obj gamedb.DBRef, attr int) int {
	o, ok := g.DB.Objects[obj]
	if !ok {
		return 0
	}
	return o.GetIntAttr(attr)
}

// Add adjusts a semaphore counter attribute, erasing it at zero, and
// returns the new value.
func (g *Game) Add(obj gamedb.DBRef, attr int, delta int) int {
	o, ok := g.DB.Objects[obj]
	if !ok {
		return 0
	}
	v := o.GetIntAttr(attr) + delta
	o.SetIntAttr(attr, v)
	g.PersistObject(o)
	return v
}

// Clear erases a semaphore counter attribute outright.
func (g *Game) Clear(obj gamedb.DBRef, attr int) {
	o, ok := g.DB.Objects[obj]
	if !ok {
		return
	}
	o.ClearAttr(attr)
	g.PersistObject(o)
}

// --- output ---

// Notify delivers a message to whoever should hear ref: the object's
// owner's connections.
func (g *Game) Notify(ref gamedb.DBRef, msg string) {
	owner := g.DB.Owner(ref)
	if owner == gamedb.Nothing {
		return
	}
	g.EventBus.EmitToPlayer(owner, events.Event{
		Type:   events.EvText,
		Source: ref,
		Text:   msg,
	})
}

// Wall broadcasts to every connected player.
func (g *Game) Wall(source gamedb.DBRef, msg string) {
	g.EventBus.EmitToAll(events.Event{
		Type:   events.EvWall,
		Source: source,
		Text:   msg,
	})
}

// --- persistence ---

// PersistObject writes a single object to the bolt store (no-op if Store
// is nil).
func (g *Game) PersistObject(obj *gamedb.Object) {
	if g.Store == nil || obj == nil {
		return
	}
	if err := g.Store.PutObject(obj); err != nil {
		log.Error().Err(err).Int("ref", int(obj.DBRef)).Msg("Persist object failed")
	}
}

// --- misc helpers ---

// DisplayName returns the display name of an object (before the first
// semicolon; names can carry aliases).
func DisplayName(name string) string {
	if idx := strings.IndexByte(name, ';'); idx >= 0 {
		return name[:idx]
	}
	return name
}

// PlayerName returns the name of a player.
func (g *Game) PlayerName(player gamedb.DBRef) string {
	if obj, ok := g.DB.Objects[player]; ok {
		return DisplayName(obj.Name)
	}
	return "Unknown"
}

// ObjName returns "Name(#ref)" for messages.
func (g *Game) ObjName(ref gamedb.DBRef) string {
	if obj, ok := g.DB.Objects[ref]; ok {
		return DisplayName(obj.Name) + "(#" + strconv.Itoa(int(ref)) + ")"
	}
	return "#" + strconv.Itoa(int(ref))
}
