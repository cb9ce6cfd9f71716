package server

import (
	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// IsGod returns true if player is the God player.
func IsGod(g *Game, player gamedb.DBRef) bool {
	return int(player) == g.Conf.GodDBRef
}

// Inherits returns true if obj inherits privilege from its owner.
// Players always inherit. Non-players inherit if they have INHERIT set,
// or their owner has INHERIT set, or they are their own owner.
func Inherits(g *Game, obj gamedb.DBRef) bool {
	o, ok := g.DB.Objects[obj]
	if !ok {
		return false
	}
	if o.ObjType() == gamedb.TypePlayer {
		return true
	}
	if o.HasFlag(gamedb.FlagInherit) {
		return true
	}
	if o.Owner == obj {
		return true
	}
	if ownerObj, ok := g.DB.Objects[o.Owner]; ok {
		return ownerObj.HasFlag(gamedb.FlagInherit)
	}
	return false
}

// Wizard returns true if obj is an effective wizard: has WIZARD directly,
// or its owner has WIZARD and the object Inherits.
func Wizard(g *Game, obj gamedb.DBRef) bool {
	o, ok := g.DB.Objects[obj]
	if !ok {
		return false
	}
	if o.HasFlag(gamedb.FlagWizard) || o.HasFlag(gamedb.FlagImmortal) {
		return true
	}
	owner, ownerOK := g.DB.Objects[o.Owner]
	return ownerOK && owner.HasFlag(gamedb.FlagWizard) && Inherits(g, obj)
}

// Royalty returns true if obj has the ROYALTY flag. Unlike Wizard,
// Royalty does not require Inherits.
func Royalty(g *Game, obj gamedb.DBRef) bool {
	o, ok := g.DB.Objects[obj]
	if !ok {
		return false
	}
	return o.HasFlag(gamedb.FlagRoyalty)
}

// WizRoy returns true if obj is either an effective wizard or royalty.
func WizRoy(g *Game, obj gamedb.DBRef) bool {
	return Wizard(g, obj) || Royalty(g, obj)
}

// ControlAll returns true if obj has POW_CONTROL_ALL or is an effective
// wizard.
func ControlAll(g *Game, obj gamedb.DBRef) bool {
	if Wizard(g, obj) {
		return true
	}
	o, ok := g.DB.Objects[obj]
	return ok && o.HasPower(0, gamedb.PowControlAll)
}

// SeeQueue returns true if obj may see everyone's queue entries.
func SeeQueue(g *Game, obj gamedb.DBRef) bool {
	if WizRoy(g, obj) {
		return true
	}
	o, ok := g.DB.Objects[obj]
	return ok && o.HasPower(0, gamedb.PowSeeQueue)
}

// Controls returns true if who may act on what: God controls everything,
// wizards control everything but God, otherwise ownership (with Inherits
// for the actor's privilege) decides.
func (g *Game) Controls(who, what gamedb.DBRef) bool {
	if !g.DB.Good(who) || !g.DB.Good(what) {
		return false
	}
	if who == what {
		return true
	}
	if IsGod(g, what) {
		return IsGod(g, who)
	}
	if ControlAll(g, who) {
		return true
	}
	return g.DB.Owner(who) == g.DB.Owner(what) && Inherits(g, who)
}
