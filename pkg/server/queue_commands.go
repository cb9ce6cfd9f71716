package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
	"github.com/crystal-mush/mushqd/pkg/queue"
)

// ResolveAttrNum maps an attribute name to its number, defining a new user
// attribute on first use the way semaphore attributes appear on demand.
func (g *Game) ResolveAttrNum(name string) int {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return 0
	}
	if num := g.DB.ResolveAttr(name); num != 0 {
		return num
	}
	num := g.DB.NextAttr
	g.DB.NextAttr++
	g.DB.AddAttrDef(num, name, 0)
	if g.Store != nil {
		if def, ok := g.DB.AttrNames[num]; ok {
			g.Store.PutAttrDef(def)
		}
	}
	return num
}

// sendQueueErr translates scheduler errors into the player-facing strings.
func sendQueueErr(d *Descriptor, err error) {
	switch {
	case errors.Is(err, queue.ErrHalted):
		// Halted objects and an administratively disabled interpreter
		// both drop the command without comment.
	case errors.Is(err, queue.ErrInsufficientFunds):
		d.Send("Not enough money to queue command.")
	case errors.Is(err, queue.ErrRunawayHalted):
		d.Send("Run away objects: too many commands queued.  Halted.")
	case errors.Is(err, queue.ErrQueueFull):
		d.Send("Could not queue command. The queue is full.")
	case errors.Is(err, queue.ErrInvalidPid):
		d.Send("That is not a valid PID.")
	case errors.Is(err, queue.ErrNotFound):
		d.Send("That PID is not associated with an active queue entry.")
	case errors.Is(err, queue.ErrAlreadyHalted):
		d.Send("That queue entry has already been halted.")
	case errors.Is(err, queue.ErrPermission):
		d.Send("Permission denied.")
	case errors.Is(err, queue.ErrNoTimeout):
		d.Send("That semaphore does not have a wait time.")
	case err != nil:
		d.Send(err.Error())
	}
}

// cmdWait implements @wait[/until] and @wait/pid.
//
//	@wait <seconds>=<command>          delayed execution
//	@wait <obj>[/<attr>][/<time>]=<command>  semaphore block
//	@wait/pid <pid>=[+|-]<seconds>     adjust a pending wake time
func cmdWait(g *Game, d *Descriptor, args string, switches []string) {
	lhs, rhs, hasEq := strings.Cut(args, "=")
	lhs = strings.TrimSpace(lhs)
	rhs = strings.TrimSpace(rhs)

	if HasSwitch(switches, "pid") {
		cmdWaitPid(g, d, lhs, rhs, HasSwitch(switches, "until"))
		return
	}
	if !hasEq || rhs == "" {
		d.Send("What do you want to wait on?")
		return
	}
	cmdText := stripBraces(rhs)

	// Plain numeric wait.
	if secs, err := strconv.ParseInt(lhs, 10, 64); err == nil {
		if HasSwitch(switches, "until") {
			secs -= time.Now().Unix()
			if secs < 0 {
				secs = 0
			}
		}
		if _, err := g.Sched.Enqueue(d.Player, d.Player, secs, gamedb.Nothing, 0, cmdText, nil, d.Regs); err != nil {
			sendQueueErr(d, err)
		}
		return
	}

	// Semaphore wait: obj[/attr][/time].
	parts := strings.Split(lhs, "/")
	thing := g.MatchObject(d.Player, parts[0])
	if thing == gamedb.Nothing {
		d.Send("I don't see that here.")
		return
	}
	if !g.Controls(d.Player, thing) && !linkOK(g, thing) {
		d.Send("Permission denied.")
		return
	}

	attr := 0
	var howlong int64
	switch len(parts) {
	case 1:
	case 2:
		if n, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64); err == nil {
			howlong = n
		} else {
			attr = g.ResolveAttrNum(parts[1])
		}
	default:
		attr = g.ResolveAttrNum(parts[1])
		howlong, _ = strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
	}
	if HasSwitch(switches, "until") && howlong != 0 {
		howlong -= time.Now().Unix()
		if howlong < 0 {
			howlong = 0
		}
	}

	if _, err := g.Sched.EnqueueSemaphore(d.Player, d.Player, howlong, thing, attr, cmdText, nil, d.Regs); err != nil {
		sendQueueErr(d, err)
	}
}

func cmdWaitPid(g *Game, d *Descriptor, pidStr, timeStr string, until bool) {
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		d.Send("That is not a valid PID.")
		return
	}

	mode := queue.AdjustFromNow
	spec := timeStr
	switch {
	case until:
		mode = queue.AdjustAbsolute
	case strings.HasPrefix(timeStr, "+"), strings.HasPrefix(timeStr, "-"):
		mode = queue.AdjustRelative
	}
	secs, err := strconv.ParseInt(spec, 10, 64)
	if err != nil {
		d.Send("That is not a valid wait time.")
		return
	}

	if err := g.Sched.Reschedule(d.Player, pid, mode, secs); err != nil {
		// @wait/pid reports a tombstone slightly differently than @halt.
		if errors.Is(err, queue.ErrAlreadyHalted) {
			d.Send("That queue entry has been halted.")
			return
		}
		sendQueueErr(d, err)
		return
	}
	d.Send(fmt.Sprintf("Adjusted wait time for queue entry PID %d.", pid))
}

// cmdHalt implements @halt [<target>], @halt/all and @halt/pid <pid>.
func cmdHalt(g *Game, d *Descriptor, args string, switches []string) {
	if HasSwitch(switches, "pid") {
		pid, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil {
			d.Send("That is not a valid PID.")
			return
		}
		if err := g.Sched.HaltPID(d.Player, pid); err != nil {
			sendQueueErr(d, err)
			return
		}
		d.Send(fmt.Sprintf("Halted queue entry PID %d.", pid))
		return
	}

	if HasSwitch(switches, "all") {
		if !Wizard(g, d.Player) {
			d.Send("Permission denied.")
			return
		}
		n := g.Sched.Halt(gamedb.Nothing, gamedb.Nothing)
		d.Send(fmt.Sprintf("Halted %d queue entries.", n))
		return
	}

	target := d.Player
	if args != "" {
		target = g.MatchObject(d.Player, args)
		if target == gamedb.Nothing {
			d.Send("I don't see that here.")
			return
		}
	}
	if !g.Controls(d.Player, target) && !g.CanHalt(d.Player) {
		d.Send("Permission denied.")
		return
	}

	var n int
	if g.IsPlayer(target) {
		n = g.Sched.Halt(target, gamedb.Nothing)
	} else {
		n = g.Sched.Halt(gamedb.Nothing, target)
	}
	d.Send(fmt.Sprintf("%d queue entries removed.", n))
}

// cmdNotify implements @notify[/all|/drain] obj[/attr][=count].
func cmdNotify(g *Game, d *Descriptor, args string, switches []string) {
	mode := queue.ModeNotify
	switch {
	case HasSwitch(switches, "drain"):
		mode = queue.ModeDrain
	case HasSwitch(switches, "all"):
		mode = queue.ModeNotifyAll
	}
	doNotify(g, d, args, mode)
}

// cmdDrain is the standalone form of @notify/drain.
func cmdDrain(g *Game, d *Descriptor, args string, _ []string) {
	doNotify(g, d, args, queue.ModeDrain)
}

func doNotify(g *Game, d *Descriptor, args string, mode queue.NotifyMode) {
	objAttr, countStr, _ := strings.Cut(args, "=")
	objAttr = strings.TrimSpace(objAttr)
	countStr = strings.TrimSpace(countStr)

	objName, attrName, hasAttr := strings.Cut(objAttr, "/")
	target := g.MatchObject(d.Player, objName)
	if target == gamedb.Nothing {
		d.Send("I don't see that here.")
		return
	}
	if !g.Controls(d.Player, target) && !linkOK(g, target) {
		d.Send("Permission denied.")
		return
	}

	attr := 0
	if hasAttr {
		attr = g.ResolveAttrNum(attrName)
	}
	count := 1
	if countStr != "" {
		n, err := strconv.Atoi(countStr)
		if err != nil || n < 1 {
			d.Send("That is not a valid count.")
			return
		}
		count = n
	}

	g.Sched.Notify(target, attr, mode, count)
	if mode == queue.ModeDrain {
		d.Send("Drained.")
	} else {
		d.Send("Notified.")
	}
}

// cmdForce implements @force obj=command: the command runs immediately in
// the queue as the target, enacted by the forcer.
func cmdForce(g *Game, d *Descriptor, args string, _ []string) {
	objName, cmdText, hasEq := strings.Cut(args, "=")
	if !hasEq {
		d.Send("Usage: @force <object>=<command>")
		return
	}
	target := g.MatchObject(d.Player, strings.TrimSpace(objName))
	if target == gamedb.Nothing {
		d.Send("I don't see that here.")
		return
	}
	if !g.Controls(d.Player, target) {
		d.Send("Permission denied.")
		return
	}
	if _, err := g.Sched.Enqueue(target, d.Player, 0, gamedb.Nothing, 0, stripBraces(cmdText), nil, d.Regs); err != nil {
		sendQueueErr(d, err)
	}
}

// cmdTrigger implements @trigger obj/attr=args: the attribute's command
// list queues as the object with %0-%9 drawn from the arguments.
func cmdTrigger(g *Game, d *Descriptor, args string, switches []string) {
	lhs, rhs, _ := strings.Cut(args, "=")
	objName, attrName, hasAttr := strings.Cut(strings.TrimSpace(lhs), "/")
	if !hasAttr {
		d.Send("Usage: @trigger <object>/<attribute>[=<args>]")
		return
	}
	target := g.MatchObject(d.Player, objName)
	if target == gamedb.Nothing {
		d.Send("I don't see that here.")
		return
	}
	if !g.Controls(d.Player, target) {
		d.Send("Permission denied.")
		return
	}
	attr := g.ResolveAttrNum(attrName)
	obj, ok := g.DB.Objects[target]
	if !ok {
		d.Send("I don't see that here.")
		return
	}
	text := obj.GetAttr(attr)
	if text == "" {
		d.Send("No such attribute.")
		return
	}

	var env []string
	if rhs != "" {
		env = strings.Split(rhs, ",")
		for i := range env {
			env[i] = strings.TrimSpace(env[i])
		}
		if len(env) > queue.MaxEnvArgs {
			env = env[:queue.MaxEnvArgs]
		}
	}
	if _, err := g.Sched.Enqueue(target, d.Player, 0, gamedb.Nothing, 0, text, env, d.Regs); err != nil {
		sendQueueErr(d, err)
		return
	}
	if !HasSwitch(switches, "quiet") {
		d.Send("Triggered.")
	}
}

// cmdQueue implements the wizard controls @queue/kick=n, @queue/warp=n
// and @queue/log.
func cmdQueue(g *Game, d *Descriptor, args string, switches []string) {
	switch {
	case HasSwitch(switches, "kick"):
		n, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil || n < 1 {
			d.Send("That is not a valid count.")
			return
		}
		ran, forced := g.Sched.Kick(n)
		if forced {
			d.Send("Warning: automatic dequeueing is disabled.")
		}
		d.Send(fmt.Sprintf("%d commands processed.", ran))
	case HasSwitch(switches, "warp"):
		secs, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
		if err != nil || secs == 0 {
			d.Send("That is not a valid time.")
			return
		}
		g.Sched.Warp(secs)
		if secs > 0 {
			d.Send(fmt.Sprintf("WaitQ timer advanced %d seconds.", secs))
		} else {
			d.Send(fmt.Sprintf("WaitQ timer set back %d seconds.", -secs))
		}
		d.Send("Object queue appended to player queue.")
	case HasSwitch(switches, "log"):
		p, o, w, s, pids := g.Sched.Stats()
		log.Info().Int("player", p).Int("object", o).Int("wait", w).
			Int("semaphore", s).Int("pids", pids).Msg("Queue state")
		d.Send("Queue state written to the server log.")
		if g.SQLDB == nil {
			return
		}
		limit := 10
		if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 0 {
			limit = n
		}
		recs, err := g.SQLDB.RecentExecutions(limit)
		if err != nil {
			d.Send(fmt.Sprintf("Audit log error: %s", err))
			return
		}
		for _, rec := range recs {
			d.Send(fmt.Sprintf("%s  %s <- %s  (%dus)  %s",
				rec.Time.Format("Jan _2 15:04:05"),
				g.ObjName(rec.Player), g.ObjName(rec.Cause),
				rec.Elapsed.Microseconds(), rec.Command))
		}
		d.Send(fmt.Sprintf("%d audit log entr%s.", len(recs), pluralY(len(recs))))
	default:
		d.Send("Usage: @queue/kick=<count>, @queue/warp=<seconds>, or @queue/log")
	}
}

// cmdTimewarp is the historical alias for @queue/warp.
func cmdTimewarp(g *Game, d *Descriptor, args string, switches []string) {
	cmdQueue(g, d, args, []string{"warp"})
}

// linkOK reports whether thing accepts semaphore use from non-controllers.
func linkOK(g *Game, thing gamedb.DBRef) bool {
	obj, ok := g.DB.Objects[thing]
	return ok && obj.HasFlag(gamedb.FlagLinkOK)
}
