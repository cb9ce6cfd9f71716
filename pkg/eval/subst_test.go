package eval

import "testing"

func TestSubstitute(t *testing.T) {
	regs := NewRegisterData()
	regs.SetQReg(0, "stored")
	regs.SetQReg(QRegIndex('z'), "last")
	ctx := &SubstContext{
		Player: 5,
		Cause:  3,
		Name:   "Bob",
		Env:    []string{"one", "two"},
		Regs:   regs,
	}

	cases := []struct{ in, want string }{
		{"plain text", "plain text"},
		{"arg %0 and %1", "arg one and two"},
		{"missing %5 arg", "missing  arg"},
		{"%q0/%qz", "stored/last"},
		{"%n said it", "Bob said it"},
		{"enactor %# executor %!", "enactor #3 executor #5"},
		{"100%% done", "100% done"},
		{"unknown %x stays", "unknown %x stays"},
		{"trailing %", "trailing %"},
	}
	for _, c := range cases {
		if got := Substitute(c.in, ctx); got != c.want {
			t.Errorf("Substitute(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := NewRegisterData()
	r.SetQReg(1, "original")
	r.XRegs["named"] = "value"

	c := r.Clone()
	c.SetQReg(1, "changed")
	c.XRegs["named"] = "other"

	if r.QRegs[1] != "original" || r.XRegs["named"] != "value" {
		t.Error("clone shares state with the original")
	}
	var nilRegs *RegisterData
	if nilRegs.Clone() != nil {
		t.Error("nil clone should stay nil")
	}
}
