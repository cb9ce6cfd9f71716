package server

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	mushcrypt "github.com/crystal-mush/mushqd/pkg/crypt"
	"github.com/crystal-mush/mushqd/pkg/events"
	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// ParseConnect parses a login-screen command into (command, user, password).
// Handles: "connect name password", "create name password", and quoted
// names with spaces.
func ParseConnect(msg string) (command, user, password string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", "", ""
	}

	parts := strings.SplitN(msg, " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) < 2 {
		return command, "", ""
	}

	rest := strings.TrimSpace(parts[1])
	if rest == "" {
		return command, "", ""
	}

	if rest[0] == '"' {
		end := strings.Index(rest[1:], "\"")
		if end >= 0 {
			user = rest[1 : end+1]
			password = strings.TrimSpace(rest[end+2:])
			return
		}
	}

	parts = strings.SplitN(rest, " ", 2)
	user = parts[0]
	if len(parts) > 1 {
		password = strings.TrimSpace(parts[1])
	}
	return
}

// CheckPlayerPassword verifies a password against the PASS attribute. On a
// successful match against a legacy DES hash, the stored value is upgraded
// to bcrypt.
func (g *Game) CheckPlayerPassword(player gamedb.DBRef, password string) bool {
	obj, ok := g.DB.Objects[player]
	if !ok {
		return false
	}
	stored := obj.GetAttr(gamedb.APass)
	if stored == "" || !mushcrypt.CheckPassword(password, stored) {
		return false
	}
	if mushcrypt.NeedsUpgrade(stored) {
		if hash, err := mushcrypt.HashPassword(password); err == nil {
			obj.SetAttr(gamedb.APass, hash)
			g.PersistObject(obj)
		}
	}
	return true
}

// SetPlayerPassword stores a bcrypt hash in the PASS attribute.
func (g *Game) SetPlayerPassword(player gamedb.DBRef, password string) error {
	obj, ok := g.DB.Objects[player]
	if !ok {
		return fmt.Errorf("no such player #%d", player)
	}
	hash, err := mushcrypt.HashPassword(password)
	if err != nil {
		return err
	}
	obj.SetAttr(gamedb.APass, hash)
	g.PersistObject(obj)
	return nil
}

// CreatePlayer makes a new player object with starting money and a hashed
// password.
func (g *Game) CreatePlayer(name, password string) (gamedb.DBRef, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \"*#") {
		return gamedb.Nothing, fmt.Errorf("that is not a valid player name")
	}
	if g.LookupPlayer(name) != gamedb.Nothing {
		return gamedb.Nothing, fmt.Errorf("that name is already taken")
	}

	g.mu.Lock()
	ref := g.NextRef
	g.NextRef++
	g.mu.Unlock()

	obj := &gamedb.Object{
		DBRef:   ref,
		Name:    name,
		Owner:   ref,
		Pennies: g.Conf.StartingMoney,
	}
	obj.Flags[0] = int(gamedb.TypePlayer)
	obj.SetIntAttr(gamedb.AMoney, g.Conf.StartingMoney)
	g.DB.Objects[ref] = obj

	if err := g.SetPlayerPassword(ref, password); err != nil {
		return gamedb.Nothing, err
	}
	g.PersistObject(obj)
	log.Info().Str("name", name).Int("ref", int(ref)).Msg("Created player")
	return ref, nil
}

// ConnectPlayer binds a descriptor to a player, fires the connect
// announcements, and queues the player's STARTUP if this is their first
// open connection.
func (g *Game) ConnectPlayer(d *Descriptor, player gamedb.DBRef) {
	first := !g.Conns.IsConnected(player)
	g.Conns.BindPlayer(d, player)

	if obj, ok := g.DB.Objects[player]; ok {
		obj.Flags[1] |= gamedb.Flag2Connected
	}
	log.Info().Int("desc", d.ID).Str("player", g.PlayerName(player)).
		Str("addr", d.Addr).Msg("Player connected")

	if first {
		g.EventBus.Emit(events.Event{
			Type:   events.EvConnect,
			Player: player,
			Source: player,
			Text:   fmt.Sprintf("%s has connected.", g.PlayerName(player)),
		})
	}
}

// DisconnectPlayer tears down a logged-in descriptor. The connected flag
// clears only when the last open connection goes away.
func (g *Game) DisconnectPlayer(d *Descriptor) {
	if d.State != ConnConnected || d.Player == gamedb.Nothing {
		return
	}
	player := d.Player

	others := 0
	for _, o := range g.Conns.GetByPlayer(player) {
		if o != d && !o.IsClosed() {
			others++
		}
	}
	if others == 0 {
		if obj, ok := g.DB.Objects[player]; ok {
			obj.Flags[1] &^= gamedb.Flag2Connected
		}
		g.EventBus.Emit(events.Event{
			Type:   events.EvDisconnect,
			Player: player,
			Source: player,
			Text:   fmt.Sprintf("%s has disconnected.", g.PlayerName(player)),
		})
	}
	log.Info().Int("desc", d.ID).Str("player", g.PlayerName(player)).
		Msg("Player disconnected")
}

// WelcomeText is the default welcome screen shown to new connections.
const WelcomeText = `
                         _               _
 _ __ ___  _   _ ___ ___| |__   __ _  __| |
| '_ ` + "`" + ` _ \| | | / __|_  / '_ \ / _` + "`" + ` |/ _` + "`" + ` |
| | | | | | |_| \__ \/ /| | | | (_| | (_| |
|_| |_| |_|\__,_|___/___|_| |_|\__, |\__,_|
                                  |_|

"connect <name> <password>" to connect to your existing character.
"create <name> <password>" to create a new character.
"WHO" to see who is connected.
"QUIT" to disconnect.

`
