package server

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crystal-mush/mushqd/pkg/eval"
	"github.com/crystal-mush/mushqd/pkg/gamedb"
	"github.com/crystal-mush/mushqd/pkg/queue"
)

var _ queue.Executor = (*Game)(nil)

// Execute implements queue.Executor: it runs one dequeued command list on
// behalf of player, with cause as the enactor and the entry's environment
// and register snapshot in scope.
func (g *Game) Execute(player, cause gamedb.DBRef, command string, env []string, regs *eval.RegisterData) {
	if !g.Limiter.Allow(player) {
		log.Warn().Int("player", int(player)).Str("command", command).
			Msg("Object over command rate limit, dropping")
		g.Notify(player, "Command dropped: object is running too fast.")
		g.Metrics.CommandDropped()
		return
	}
	g.Metrics.CommandDispatched()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("player", int(player)).
				Str("command", command).Msg("PANIC in queue execution")
		}
	}()

	// Watchdog: a single entry monopolizing the dispatcher is worth a log
	// line even when it eventually finishes.
	done := make(chan struct{})
	start := time.Now()
	go func() {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			log.Warn().Int("player", int(player)).Str("command", command).
				Msg("Queue entry running for over 5s")
		}
	}()
	defer close(done)

	out := g.execDescriptor(player)
	// Dispatch through a wrapper so the live connection's descriptor is
	// never mutated from the executor goroutine. Commands that requeue
	// pick up the entry's registers from d.Regs.
	d := &Descriptor{Player: player, State: ConnConnected, Regs: regs}
	d.SendFunc = out.Send
	ctx := &eval.SubstContext{
		Player: player,
		Cause:  cause,
		Name:   g.PlayerName(cause),
		Env:    env,
		Regs:   regs,
	}
	for _, part := range splitCommands(command) {
		DispatchCommand(g, d, eval.Substitute(part, ctx))
	}

	if g.SQLDB != nil {
		g.SQLDB.LogExecution(player, cause, command, time.Since(start))
	}
}

// execDescriptor finds an output sink for a queued execution: the player's
// first live connection, or a detached descriptor that routes output
// through Notify so puppet owners still hear their objects.
func (g *Game) execDescriptor(player gamedb.DBRef) *Descriptor {
	if descs := g.Conns.GetByPlayer(player); len(descs) > 0 {
		return descs[0]
	}
	d := &Descriptor{Player: player, State: ConnConnected}
	d.SendFunc = func(msg string) { g.Notify(player, msg) }
	return d
}

// splitCommands breaks a command list on semicolons, honoring {} nesting
// so grouped sublists queue as units.
func splitCommands(list string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				if part := strings.TrimSpace(list[start:i]); part != "" {
					out = append(out, part)
				}
				start = i + 1
			}
		}
	}
	if part := strings.TrimSpace(list[start:]); part != "" {
		out = append(out, part)
	}
	return out
}

// stripBraces removes one level of surrounding {} from a command.
func stripBraces(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
