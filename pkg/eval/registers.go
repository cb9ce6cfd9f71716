// Package eval holds the substitution machinery the command interpreter
// uses: the global q-register file and percent-escape expansion.
package eval

// MaxGlobalRegs is the size of the q-register file (%q0-%q9, %qa-%qz).
const MaxGlobalRegs = 36

// RegisterData holds the q-register state (%q0-%q9, %qa-%qz, named regs).
// Queue entries snapshot it at enqueue time and restore it on execution so
// a delayed command sees the registers it was queued with.
type RegisterData struct {
	QRegs  [MaxGlobalRegs]string
	QLens  [MaxGlobalRegs]int
	QAlloc int
	XRegs  map[string]string // named registers %q<name>
	Dirty  int
}

// NewRegisterData creates a RegisterData with defaults.
func NewRegisterData() *RegisterData {
	return &RegisterData{
		QAlloc: MaxGlobalRegs,
		XRegs:  make(map[string]string),
	}
}

// Clone returns a deep copy of the RegisterData.
func (r *RegisterData) Clone() *RegisterData {
	if r == nil {
		return nil
	}
	nr := &RegisterData{
		QAlloc: r.QAlloc,
		Dirty:  r.Dirty,
		XRegs:  make(map[string]string),
	}
	copy(nr.QRegs[:], r.QRegs[:])
	copy(nr.QLens[:], r.QLens[:])
	for k, v := range r.XRegs {
		nr.XRegs[k] = v
	}
	return nr
}

// SetQReg stores a value in a global register by index.
func (r *RegisterData) SetQReg(idx int, value string) {
	if idx < 0 || idx >= MaxGlobalRegs {
		return
	}
	r.QRegs[idx] = value
	r.QLens[idx] = len(value)
	r.Dirty++
}

// QRegIndex maps a register name character to its slot: 0-9 then a-z.
// Returns -1 for anything else.
func QRegIndex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return -1
}
