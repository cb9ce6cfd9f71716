package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/crystal-mush/mushqd/pkg/events"
	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// CommandHandler is the signature for game command implementations.
type CommandHandler func(g *Game, d *Descriptor, args string, switches []string)

// Command represents a registered game command.
type Command struct {
	Name    string
	Handler CommandHandler
	WizOnly bool // restricted to effective wizards
}

// InitCommands registers all available game commands.
func InitCommands() map[string]*Command {
	cmds := make(map[string]*Command)

	register := func(name string, handler CommandHandler) {
		cmds[strings.ToLower(name)] = &Command{Name: name, Handler: handler}
	}
	registerWiz := func(name string, handler CommandHandler) {
		cmds[strings.ToLower(name)] = &Command{Name: name, Handler: handler, WizOnly: true}
	}

	// Communication
	register("say", cmdSay)
	register("\"", cmdSay)
	register("pose", cmdPose)
	register(":", cmdPose)
	register("think", cmdThink)

	// Information
	register("WHO", cmdWho)
	register("score", cmdScore)
	register("@ps", cmdPs)

	// Queue management
	register("@wait", cmdWait)
	register("@halt", cmdHalt)
	register("@notify", cmdNotify)
	register("@drain", cmdDrain)
	register("@force", cmdForce)
	register("@trigger", cmdTrigger)
	registerWiz("@queue", cmdQueue)
	registerWiz("@timewarp", cmdTimewarp)

	// Cron
	registerWiz("@cron", cmdCron)
	registerWiz("@crondel", cmdCronDel)
	registerWiz("@crontab", cmdCronTab)

	// Admin
	registerWiz("@sql", cmdSQL)
	registerWiz("@wall", cmdWall)
	registerWiz("@dump", cmdDump)
	registerWiz("@shutdown", cmdShutdown)

	return cmds
}

// DispatchCommand parses and executes one input line for a descriptor.
func DispatchCommand(g *Game, d *Descriptor, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	// Single-character command forms glue directly to their argument.
	if line[0] == '"' || line[0] == ':' {
		if cmd, ok := g.Commands[string(line[0])]; ok {
			cmd.Handler(g, d, strings.TrimSpace(line[1:]), nil)
			return
		}
	}

	word := line
	args := ""
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		word = line[:idx]
		args = strings.TrimSpace(line[idx+1:])
	}

	// Switches: @cmd/switch1/switch2
	var switches []string
	name := word
	if idx := strings.IndexByte(word, '/'); idx > 0 {
		name = word[:idx]
		switches = strings.Split(strings.ToLower(word[idx+1:]), "/")
	}

	cmd, ok := g.Commands[strings.ToLower(name)]
	if !ok {
		d.Send("Huh?  (Type \"help\" for help.)")
		return
	}
	if cmd.WizOnly && !Wizard(g, d.Player) {
		d.Send("Permission denied.")
		return
	}
	cmd.Handler(g, d, args, switches)
}

// HasSwitch reports whether a switch was given.
func HasSwitch(switches []string, name string) bool {
	for _, s := range switches {
		if s == name {
			return true
		}
	}
	return false
}

// MatchObject resolves an object reference for player: "me", "#dbref", a
// player name, or an exact object name.
func (g *Game) MatchObject(player gamedb.DBRef, name string) gamedb.DBRef {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return gamedb.Nothing
	case strings.EqualFold(name, "me"):
		return player
	case name[0] == '#':
		n, err := strconv.Atoi(name[1:])
		if err != nil || !g.DB.Good(gamedb.DBRef(n)) {
			return gamedb.Nothing
		}
		return gamedb.DBRef(n)
	case name[0] == '*':
		return g.LookupPlayer(name[1:])
	}
	if ref := g.LookupPlayer(name); ref != gamedb.Nothing {
		return ref
	}
	for ref, obj := range g.DB.Objects {
		if !obj.IsGoing() && strings.EqualFold(DisplayName(obj.Name), name) {
			return ref
		}
	}
	return gamedb.Nothing
}

// LookupPlayer finds a player by exact name, case-insensitive.
func (g *Game) LookupPlayer(name string) gamedb.DBRef {
	name = strings.TrimSpace(name)
	for ref, obj := range g.DB.Objects {
		if obj.ObjType() == gamedb.TypePlayer && !obj.IsGoing() &&
			strings.EqualFold(DisplayName(obj.Name), name) {
			return ref
		}
	}
	return gamedb.Nothing
}

func cmdSay(g *Game, d *Descriptor, args string, _ []string) {
	if args == "" {
		return
	}
	name := g.PlayerName(d.Player)
	d.Send(fmt.Sprintf("You say, \"%s\"", args))
	for _, p := range g.Conns.ConnectedPlayers() {
		if p == d.Player {
			continue
		}
		g.EventBus.EmitToPlayer(p, events.Event{
			Type:   events.EvSay,
			Source: d.Player,
			Text:   fmt.Sprintf("%s says, \"%s\"", name, args),
		})
	}
}

func cmdPose(g *Game, d *Descriptor, args string, _ []string) {
	if args == "" {
		return
	}
	msg := fmt.Sprintf("%s %s", g.PlayerName(d.Player), args)
	d.Send(msg)
	for _, p := range g.Conns.ConnectedPlayers() {
		if p == d.Player {
			continue
		}
		g.EventBus.EmitToPlayer(p, events.Event{Type: events.EvSay, Source: d.Player, Text: msg})
	}
}

func cmdThink(g *Game, d *Descriptor, args string, _ []string) {
	d.Send(args)
}

func cmdWho(g *Game, d *Descriptor, _ string, _ []string) {
	players := g.Conns.ConnectedPlayers()
	d.Send(fmt.Sprintf("%-20s %s", "Player Name", "Queue"))
	for _, p := range players {
		d.Send(fmt.Sprintf("%-20s %d", g.PlayerName(p), g.Sched.QueueCount(p)))
	}
	d.Send(fmt.Sprintf("%d player%s connected.", len(players), plural(len(players))))
}

func cmdScore(g *Game, d *Descriptor, _ string, _ []string) {
	obj, ok := g.DB.Objects[d.Player]
	if !ok {
		return
	}
	unit := g.Conf.MoneyNamePlural
	if obj.Pennies == 1 {
		unit = g.Conf.MoneyNameSingular
	}
	d.Send(fmt.Sprintf("You have %d %s.", obj.Pennies, unit))
}

func cmdWall(g *Game, d *Descriptor, args string, _ []string) {
	if args == "" {
		return
	}
	g.Wall(d.Player, fmt.Sprintf("## %s shouts: %s", g.PlayerName(d.Player), args))
}

func cmdDump(g *Game, d *Descriptor, _ string, _ []string) {
	if g.Store == nil {
		d.Send("No database store configured.")
		return
	}
	if err := g.Store.Save(); err != nil {
		log.Error().Err(err).Msg("Database dump failed")
		d.Send("Dump failed; see server log.")
		return
	}
	d.Send("Dumping...")
}

func cmdShutdown(g *Game, d *Descriptor, _ string, _ []string) {
	log.Info().Str("by", g.PlayerName(d.Player)).Msg("Shutdown requested")
	g.Shutdown()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
