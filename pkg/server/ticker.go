package server

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// StartQueueProcessor starts the background queue processing loop.
// Uses adaptive tick rate: fast (10ms) while work is flowing, slower when
// the next wake is further out.
func (g *Game) StartQueueProcessor() {
	go func() {
		const fastTick = 10 * time.Millisecond
		const idleTick = 100 * time.Millisecond
		const slackTick = time.Second
		ticker := time.NewTicker(idleTick)
		defer ticker.Stop()
		heartbeat := time.NewTicker(60 * time.Second)
		defer heartbeat.Stop()
		cadence := idleTick
		for {
			select {
			case <-g.shutdownCh:
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Error().Interface("panic", r).Msg("PANIC in queue processor")
						}
					}()
					hadWork := g.processQueue()
					next := g.Sched.NextEventSecs()
					want := slackTick
					switch {
					case hadWork || next == 0:
						want = fastTick
					case next <= 2:
						want = idleTick
					}
					if want != cadence {
						cadence = want
						ticker.Reset(cadence)
					}
				}()
			case <-heartbeat.C:
				player, object, wait, sem, _ := g.Sched.Stats()
				if player > 0 || object > 0 || wait > 0 || sem > 0 {
					log.Info().Int("player", player).Int("object", object).
						Int("wait", wait).Int("semaphore", sem).
						Msg("Queue heartbeat")
				}
			}
		}
	}()
}

// processQueue runs one scheduler pulse: promote whatever has come due,
// then dispatch a bounded batch off the ready lists.
func (g *Game) processQueue() bool {
	promoted := g.Sched.Tick()
	ran := g.Sched.RunReady(g.queueIdleChunk())
	return promoted > 0 || ran > 0
}

// QueueAttrAction queues the action in an attribute on an object, if it
// exists. Used for STARTUP and similar trigger points.
func (g *Game) QueueAttrAction(obj, cause gamedb.DBRef, attrNum int, args []string) {
	o, ok := g.DB.Objects[obj]
	if !ok {
		return
	}
	text := o.GetAttr(attrNum)
	if text == "" {
		return
	}
	if _, err := g.Sched.Enqueue(obj, cause, 0, gamedb.Nothing, 0, text, args, nil); err != nil {
		log.Warn().Int("obj", int(obj)).Int("attr", attrNum).Err(err).
			Msg("Attribute action enqueue failed")
	}
}

// FireStartups queues the STARTUP attribute on every object that has one,
// in dbref order. Runs once at boot.
func (g *Game) FireStartups() {
	refs := make([]gamedb.DBRef, 0, len(g.DB.Objects))
	for ref := range g.DB.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	fired := 0
	for _, ref := range refs {
		obj := g.DB.Objects[ref]
		if obj.IsHalted() || obj.IsGoing() {
			continue
		}
		if obj.GetAttr(gamedb.AStartup) == "" {
			continue
		}
		g.QueueAttrAction(ref, ref, gamedb.AStartup, nil)
		fired++
	}
	if fired > 0 {
		log.Info().Int("count", fired).Msg("Queued STARTUP attributes")
	}
}
