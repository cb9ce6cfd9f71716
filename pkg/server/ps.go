package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
	"github.com/crystal-mush/mushqd/pkg/queue"
)

type psMode int

const (
	psBrief psMode = iota
	psLong
	psSummary
)

// cmdPs implements @ps[/brief|/long|/summary] [all|<target>].
func cmdPs(g *Game, d *Descriptor, args string, switches []string) {
	mode := psBrief
	switch {
	case HasSwitch(switches, "long"):
		mode = psLong
	case HasSwitch(switches, "summary"):
		mode = psSummary
	}

	ptarg := g.Owner(d.Player)
	otarg := gamedb.Nothing
	args = strings.TrimSpace(args)
	switch {
	case args == "":
	case strings.EqualFold(args, "all"):
		if !SeeQueue(g, d.Player) {
			d.Send("Permission denied.")
			return
		}
		ptarg = gamedb.Nothing
	default:
		target := g.MatchObject(d.Player, args)
		if target == gamedb.Nothing {
			d.Send("I don't see that here.")
			return
		}
		if !SeeQueue(g, d.Player) && !g.Controls(d.Player, target) {
			d.Send("Permission denied.")
			return
		}
		if g.IsPlayer(target) {
			ptarg = target
		} else {
			ptarg = gamedb.Nothing
			otarg = target
		}
	}

	listing := g.Sched.Snapshot(ptarg, otarg)
	now := time.Now().Unix()

	if mode != psSummary {
		g.showQueue(d, "Player", listing.Player, now, mode)
		g.showQueue(d, "Object", listing.Object, now, mode)
		g.showQueue(d, "Wait", listing.Wait, now, mode)
		g.showQueue(d, "Semaphore", listing.Semaphore, now, mode)
	}
	// Tombstone counts on the ready lists are wizard-grade detail.
	pdel, odel := "", ""
	if SeeQueue(g, d.Player) {
		pdel = fmt.Sprintf("[%ddel]", listing.PlayerTotals.Tombstones)
		odel = fmt.Sprintf("[%ddel]", listing.ObjectTotals.Tombstones)
	}
	d.Send(fmt.Sprintf("Totals: Player...%d/%d%s  Object...%d/%d%s  Wait...%d/%d  Semaphore...%d/%d",
		listing.PlayerTotals.Shown, listing.PlayerTotals.Total, pdel,
		listing.ObjectTotals.Shown, listing.ObjectTotals.Total, odel,
		listing.WaitTotals.Shown, listing.WaitTotals.Total,
		listing.SemaphoreTotals.Shown, listing.SemaphoreTotals.Total))
}

func (g *Game) showQueue(d *Descriptor, name string, entries []queue.EntryInfo, now int64, mode psMode) {
	d.Send(fmt.Sprintf("----- %s Queue -----", name))
	for _, e := range entries {
		d.Send(g.formatEntry(&e, now))
		if mode == psLong {
			d.Send(fmt.Sprintf("   Enactor: %s", g.ObjName(e.Cause)))
			for i, arg := range e.Env {
				if arg != "" {
					d.Send(fmt.Sprintf("   Arg%d: '%s'", i, arg))
				}
			}
		}
	}
}

func (g *Game) formatEntry(e *queue.EntryInfo, now int64) string {
	who := g.ObjName(e.Player)
	switch {
	case e.SemObj != gamedb.Nothing && e.Wake > 0:
		return fmt.Sprintf("[#%d/%d] %d:%s:%s", e.SemObj, e.Wake-now, e.PID, who, e.Command)
	case e.SemObj != gamedb.Nothing:
		return fmt.Sprintf("[#%d] %d:%s:%s", e.SemObj, e.PID, who, e.Command)
	case e.Wake > 0:
		return fmt.Sprintf("[%d] %d:%s:%s", e.Wake-now, e.PID, who, e.Command)
	default:
		return fmt.Sprintf("%d:%s:%s", e.PID, who, e.Command)
	}
}
