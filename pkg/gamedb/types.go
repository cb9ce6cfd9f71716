package gamedb

import (
	"strings"
	"time"
)

// DBRef is the fundamental object reference type in MUSH.
type DBRef int

const (
	Nothing   DBRef = -1
	Ambiguous DBRef = -2
	Home      DBRef = -3
	NoPerm    DBRef = -4
)

// ObjectType represents the type of a MUSH object.
type ObjectType int

const (
	TypeRoom    ObjectType = 0
	TypeThing   ObjectType = 1
	TypeExit    ObjectType = 2
	TypePlayer  ObjectType = 3
	TypeZone    ObjectType = 4
	TypeGarbage ObjectType = 5
)

func (t ObjectType) String() string {
	switch t {
	case TypeRoom:
		return "ROOM"
	case TypeThing:
		return "THING"
	case TypeExit:
		return "EXIT"
	case TypePlayer:
		return "PLAYER"
	case TypeZone:
		return "ZONE"
	case TypeGarbage:
		return "GARBAGE"
	default:
		return "UNKNOWN"
	}
}

const TypeMask = 0x7

// Flag constants - first word
const (
	FlagWizard   = 0x00000010
	FlagLinkOK   = 0x00000020
	FlagDark     = 0x00000040
	FlagSticky   = 0x00000100
	FlagHaven    = 0x00000400
	FlagQuiet    = 0x00000800
	FlagHalt     = 0x00001000
	FlagTrace    = 0x00002000
	FlagGoing    = 0x00004000
	FlagPuppet   = 0x00020000
	FlagImmortal = 0x00200000
	FlagInherit  = 0x02000000
	FlagRobot    = 0x08000000
	FlagRoyalty  = 0x20000000
)

// Flag constants - second word
const (
	Flag2Connected = 0x00000200
	Flag2Ansi      = 0x00002000
)

// Power constants - first word (Powers[0])
const (
	PowAnnounce   = 0x00000004
	PowBoot       = 0x00000008
	PowHalt       = 0x00000010
	PowControlAll = 0x00000020
	PowExamAll    = 0x00000080 // See_All
	PowFreeMoney  = 0x00000200
	PowSeeQueue   = 0x00100000
)

// HasPower checks if a power bit is set in the given power word (0 or 1).
func (o *Object) HasPower(word, bit int) bool {
	if word < 0 || word > 1 {
		return false
	}
	return o.Powers[word]&bit != 0
}

// SetPower sets or clears a power bit in the given power word (0 or 1).
func (o *Object) SetPower(word, bit int, set bool) {
	if word < 0 || word > 1 {
		return
	}
	if set {
		o.Powers[word] |= bit
	} else {
		o.Powers[word] &^= bit
	}
}

// Attribute represents a single attribute on an object.
type Attribute struct {
	Number int
	Value  string
}

// AttrDef represents a user-defined attribute name definition.
type AttrDef struct {
	Number int
	Name   string
	Flags  int
}

// Object represents a MUSH database object.
type Object struct {
	DBRef      DBRef
	Name       string
	Location   DBRef
	Contents   DBRef
	Exits      DBRef
	Link       DBRef
	Next       DBRef
	Owner      DBRef
	Parent     DBRef
	Pennies    int
	Flags      [3]int
	Powers     [2]int
	LastAccess time.Time
	LastMod    time.Time
	Attrs      []Attribute
}

// ObjType returns the object type from the flags.
func (o *Object) ObjType() ObjectType {
	return ObjectType(o.Flags[0] & TypeMask)
}

// HasFlag checks if a flag bit is set in the first flag word.
func (o *Object) HasFlag(flag int) bool {
	return o.Flags[0]&flag != 0
}

// HasFlag2 checks if a flag bit is set in the second flag word.
func (o *Object) HasFlag2(flag int) bool {
	return o.Flags[1]&flag != 0
}

// IsGoing returns true if the object is marked for destruction.
func (o *Object) IsGoing() bool {
	return o.HasFlag(FlagGoing)
}

// IsHalted returns true if the object carries the HALT flag.
func (o *Object) IsHalted() bool {
	return o.HasFlag(FlagHalt)
}

// Database holds the complete in-memory game state.
type Database struct {
	Version       int
	Size          int
	NextAttr      int
	RecordPlayers int
	Objects       map[DBRef]*Object
	AttrNames     map[int]*AttrDef    // attr number -> definition
	AttrByName    map[string]*AttrDef // attr name -> definition
}

// NewDatabase creates an empty Database.
func NewDatabase() *Database {
	return &Database{
		NextAttr:   AUserStart,
		Objects:    make(map[DBRef]*Object),
		AttrNames:  make(map[int]*AttrDef),
		AttrByName: make(map[string]*AttrDef),
	}
}

// AddAttrDef registers a user-defined attribute.
func (db *Database) AddAttrDef(num int, name string, flags int) {
	def := &AttrDef{Number: num, Name: name, Flags: flags}
	db.AttrNames[num] = def
	db.AttrByName[strings.ToUpper(name)] = def
}

// Good returns true if ref names an existing object not marked for destruction.
func (db *Database) Good(ref DBRef) bool {
	obj, ok := db.Objects[ref]
	return ok && !obj.IsGoing()
}

// Owner returns the owner of ref, or Nothing for a bad ref. Players own
// themselves.
func (db *Database) Owner(ref DBRef) DBRef {
	obj, ok := db.Objects[ref]
	if !ok {
		return Nothing
	}
	if obj.ObjType() == TypePlayer {
		return ref
	}
	return obj.Owner
}
