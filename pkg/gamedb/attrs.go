package gamedb

import (
	"strconv"
	"strings"
)

// Well-known attribute numbers. These match the C TinyMUSH constants so a
// familiar database layout stays familiar; the queue only relies on a
// handful of them.
const (
	APass      = 5  // Password hash
	AStartup   = 19 // Commands run at server start
	AMoney     = 25 // Penny count backing store
	AQueueMax  = 31 // Per-owner queue quota override
	ASemaphore = 47 // Default semaphore counter attribute
	ADesc      = 6
)

// AUserStart is the first attribute number available for user-defined attrs.
const AUserStart = 256

// WellKnownAttrs maps built-in attribute numbers to their names.
var WellKnownAttrs = map[int]string{
	APass:      "PASS",
	ADesc:      "DESC",
	AStartup:   "STARTUP",
	AMoney:     "MONEY",
	AQueueMax:  "QUEUEMAX",
	ASemaphore: "SEMAPHORE",
}

// GetAttrName returns the name for an attribute number, or "" if unknown.
func (db *Database) GetAttrName(num int) string {
	if def, ok := db.AttrNames[num]; ok {
		return def.Name
	}
	if name, ok := WellKnownAttrs[num]; ok {
		return name
	}
	return ""
}

// ResolveAttr returns the attribute number for a name, checking user-defined
// attributes first and then the well-known set. Names are case-insensitive.
// Returns 0 if unknown.
func (db *Database) ResolveAttr(name string) int {
	name = strings.ToUpper(name)
	if def, ok := db.AttrByName[name]; ok {
		return def.Number
	}
	for num, n := range WellKnownAttrs {
		if n == name {
			return num
		}
	}
	return 0
}

// GetAttr returns the value of an attribute on the object ("" if unset).
func (o *Object) GetAttr(num int) string {
	for _, a := range o.Attrs {
		if a.Number == num {
			return a.Value
		}
	}
	return ""
}

// SetAttr sets or replaces an attribute value on the object.
func (o *Object) SetAttr(num int, value string) {
	for i := range o.Attrs {
		if o.Attrs[i].Number == num {
			o.Attrs[i].Value = value
			return
		}
	}
	o.Attrs = append(o.Attrs, Attribute{Number: num, Value: value})
}

// ClearAttr removes an attribute from the object.
func (o *Object) ClearAttr(num int) {
	for i := range o.Attrs {
		if o.Attrs[i].Number == num {
			o.Attrs = append(o.Attrs[:i], o.Attrs[i+1:]...)
			return
		}
	}
}

// GetIntAttr returns an attribute parsed as an integer (0 if unset or
// malformed). Semaphore counters and quota overrides are stored this way,
// as stringified integers, matching the C attribute store.
func (o *Object) GetIntAttr(num int) int {
	v := o.GetAttr(num)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// SetIntAttr stores an integer attribute; storing zero clears the attribute
// entirely, which is how the attribute store represents "no value".
func (o *Object) SetIntAttr(num, value int) {
	if value == 0 {
		o.ClearAttr(num)
		return
	}
	o.SetAttr(num, strconv.Itoa(value))
}

// HasIntAttr reports whether the attribute is present at all, which is
// distinct from it being zero.
func (o *Object) HasIntAttr(num int) bool {
	return o.GetAttr(num) != ""
}
