package server

import (
	"strconv"
	"strings"
	"testing"
	"time"

	mushcrypt "github.com/crystal-mush/mushqd/pkg/crypt"
	"github.com/crystal-mush/mushqd/pkg/eval"
	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// testConn pairs a descriptor with its captured output lines.
type testConn struct {
	*Descriptor
	lines *[]string
}

// testEnv holds the shared test infrastructure.
type testEnv struct {
	game   *Game
	wizard *testConn
	bob    *testConn
}

const (
	wizRef    = gamedb.DBRef(1)
	bobRef    = gamedb.DBRef(3)
	gadgetRef = gamedb.DBRef(5)
)

// newTestEnv creates a minimal game environment:
//   - Player #1 (Wizard), wizard flag set
//   - Player #3 (Bob) with 1000 pennies
//   - Thing #5 (Gadget) owned by Bob
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := gamedb.NewDatabase()

	db.Objects[wizRef] = &gamedb.Object{
		DBRef:   wizRef,
		Name:    "Wizard",
		Owner:   wizRef,
		Pennies: 1000,
		Flags:   [3]int{int(gamedb.TypePlayer) | gamedb.FlagWizard, 0, 0},
	}
	db.Objects[bobRef] = &gamedb.Object{
		DBRef:   bobRef,
		Name:    "Bob",
		Owner:   bobRef,
		Pennies: 1000,
		Flags:   [3]int{int(gamedb.TypePlayer), 0, 0},
	}
	db.Objects[gadgetRef] = &gamedb.Object{
		DBRef: gadgetRef,
		Name:  "Gadget",
		Owner: bobRef,
		Flags: [3]int{int(gamedb.TypeThing), 0, 0},
	}
	db.Objects[bobRef].SetIntAttr(gamedb.AMoney, 1000)
	db.Objects[wizRef].SetIntAttr(gamedb.AMoney, 1000)

	conf := DefaultGameConf()
	conf.MachineCommandCost = 0 // no random surcharge in tests
	conf.CronEnabled = false

	g := NewGame(db, conf)
	env := &testEnv{game: g}
	env.wizard = makeTestDescriptor(t, g, wizRef)
	env.bob = makeTestDescriptor(t, g, bobRef)
	return env
}

// makeTestDescriptor creates a connected Descriptor whose output is
// captured in memory.
func makeTestDescriptor(t *testing.T, g *Game, player gamedb.DBRef) *testConn {
	t.Helper()
	d := &Descriptor{
		ID:       g.Conns.NextID(),
		Conn:     nullConn{},
		State:    ConnLogin,
		Player:   gamedb.Nothing,
		Addr:     "test",
		ConnTime: time.Now(),
		LastCmd:  time.Now(),
	}
	lines := &[]string{}
	d.SendFunc = func(msg string) { *lines = append(*lines, msg) }
	g.Conns.Add(d)
	g.Conns.BindPlayer(d, player)
	return &testConn{Descriptor: d, lines: lines}
}

// output drains and returns the lines sent to a test descriptor.
func output(c *testConn) []string {
	out := *c.lines
	*c.lines = nil
	return out
}

func outputContains(c *testConn, want string) bool {
	for _, line := range *c.lines {
		if strings.Contains(line, want) {
			return true
		}
	}
	return false
}

func TestDispatchUnknownCommand(t *testing.T) {
	env := newTestEnv(t)
	DispatchCommand(env.game, env.wizard.Descriptor, "frobnicate")
	if !outputContains(env.wizard, "Huh?") {
		t.Errorf("expected Huh?, got %v", output(env.wizard))
	}
}

func TestWizOnlyDenied(t *testing.T) {
	env := newTestEnv(t)
	DispatchCommand(env.game, env.bob.Descriptor, "@queue/kick=1")
	if !outputContains(env.bob, "Permission denied.") {
		t.Errorf("expected permission denied, got %v", output(env.bob))
	}
}

func TestWaitQueuesDelayed(t *testing.T) {
	env := newTestEnv(t)
	DispatchCommand(env.game, env.bob.Descriptor, "@wait 30=think hi")
	_, _, wait, _, _ := env.game.Sched.Stats()
	if wait != 1 {
		t.Fatalf("wait queue = %d, want 1", wait)
	}
	if got := env.game.DB.Objects[bobRef].Pennies; got != 1000-env.game.Conf.WaitCost {
		t.Errorf("pennies = %d, want %d", got, 1000-env.game.Conf.WaitCost)
	}
}

func TestWaitSemaphore(t *testing.T) {
	env := newTestEnv(t)
	DispatchCommand(env.game, env.bob.Descriptor, "@wait Gadget=think hi")
	_, _, _, sem, _ := env.game.Sched.Stats()
	if sem != 1 {
		t.Fatalf("semaphore queue = %d, want 1", sem)
	}
	if got := env.game.Get(gadgetRef, gamedb.ASemaphore); got != 1 {
		t.Errorf("semaphore counter = %d, want 1", got)
	}
}

func TestWaitSemaphoreTimeout(t *testing.T) {
	env := newTestEnv(t)
	DispatchCommand(env.game, env.bob.Descriptor, "@wait Gadget/60=think hi")
	_, _, _, sem, _ := env.game.Sched.Stats()
	if sem != 1 {
		t.Fatalf("semaphore queue = %d, want 1", sem)
	}
}

func TestWaitOverNotifiedRunsImmediately(t *testing.T) {
	env := newTestEnv(t)
	// A banked notification credit lets the command bypass the semaphore.
	env.game.Add(gadgetRef, gamedb.ASemaphore, -1)
	DispatchCommand(env.game, env.bob.Descriptor, "@wait Gadget=think hi")
	player, _, _, sem, _ := env.game.Sched.Stats()
	if sem != 0 || player != 1 {
		t.Errorf("player=%d sem=%d, want player=1 sem=0", player, sem)
	}
	if got := env.game.Get(gadgetRef, gamedb.ASemaphore); got != 0 {
		t.Errorf("semaphore counter = %d, want 0", got)
	}
}

func TestNotifyReleasesWaiter(t *testing.T) {
	env := newTestEnv(t)
	DispatchCommand(env.game, env.bob.Descriptor, "@wait Gadget=think hi")
	DispatchCommand(env.game, env.bob.Descriptor, "@notify Gadget")
	if !outputContains(env.bob, "Notified.") {
		t.Fatalf("expected Notified., got %v", output(env.bob))
	}
	player, _, _, sem, _ := env.game.Sched.Stats()
	if sem != 0 || player != 1 {
		t.Errorf("player=%d sem=%d after notify", player, sem)
	}
}

func TestDrainRefunds(t *testing.T) {
	env := newTestEnv(t)
	DispatchCommand(env.game, env.bob.Descriptor, "@wait Gadget=think hi")
	before := env.game.DB.Objects[bobRef].Pennies
	DispatchCommand(env.game, env.bob.Descriptor, "@drain Gadget")
	if !outputContains(env.bob, "Drained.") {
		t.Fatalf("expected Drained., got %v", output(env.bob))
	}
	_, _, _, sem, _ := env.game.Sched.Stats()
	if sem != 0 {
		t.Errorf("semaphore queue = %d after drain", sem)
	}
	if got := env.game.DB.Objects[bobRef].Pennies; got != before+env.game.Conf.WaitCost {
		t.Errorf("pennies = %d, want refund to %d", got, before+env.game.Conf.WaitCost)
	}
}

func TestHaltPid(t *testing.T) {
	env := newTestEnv(t)
	pid, err := env.game.Sched.Enqueue(bobRef, bobRef, 100, gamedb.Nothing, 0, "think hi", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	DispatchCommand(env.game, env.bob.Descriptor, "@halt/pid "+strconv.Itoa(pid))
	if !outputContains(env.bob, "Halted queue entry PID") {
		t.Fatalf("expected halt confirmation, got %v", output(env.bob))
	}
	output(env.bob)

	DispatchCommand(env.game, env.bob.Descriptor, "@halt/pid bogus")
	if !outputContains(env.bob, "That is not a valid PID.") {
		t.Errorf("expected invalid PID error, got %v", output(env.bob))
	}
	output(env.bob)

	DispatchCommand(env.game, env.bob.Descriptor, "@halt/pid "+strconv.Itoa(pid))
	if !outputContains(env.bob, "not associated with an active queue entry") {
		t.Errorf("expected stale PID error, got %v", output(env.bob))
	}
}

func TestHaltTargetPlayer(t *testing.T) {
	env := newTestEnv(t)
	env.game.Sched.Enqueue(bobRef, bobRef, 100, gamedb.Nothing, 0, "think a", nil, nil)
	env.game.Sched.Enqueue(bobRef, bobRef, 200, gamedb.Nothing, 0, "think b", nil, nil)
	DispatchCommand(env.game, env.wizard.Descriptor, "@halt *Bob")
	if !outputContains(env.wizard, "2 queue entries removed.") {
		t.Errorf("expected 2 removed, got %v", output(env.wizard))
	}
	_, _, wait, _, _ := env.game.Sched.Stats()
	if wait != 0 {
		t.Errorf("wait queue = %d after halt", wait)
	}
}

func TestHaltOthersNeedsPermission(t *testing.T) {
	env := newTestEnv(t)
	DispatchCommand(env.game, env.bob.Descriptor, "@halt *Wizard")
	if !outputContains(env.bob, "Permission denied.") {
		t.Errorf("expected permission denied, got %v", output(env.bob))
	}
}

func TestQueueKick(t *testing.T) {
	env := newTestEnv(t)
	env.game.Sched.Enqueue(bobRef, bobRef, 0, gamedb.Nothing, 0, "think kicked", nil, nil)
	DispatchCommand(env.game, env.wizard.Descriptor, "@queue/kick=5")
	if !outputContains(env.wizard, "1 commands processed.") {
		t.Errorf("expected 1 processed, got %v", output(env.wizard))
	}
	if !outputContains(env.bob, "kicked") {
		t.Errorf("expected command output for bob, got %v", output(env.bob))
	}
}

func TestQueueKickWarnsWhenDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.game.Sched.SetDequeue(false)
	env.game.Sched.Enqueue(bobRef, bobRef, 0, gamedb.Nothing, 0, "think hi", nil, nil)
	DispatchCommand(env.game, env.wizard.Descriptor, "@queue/kick=5")
	if !outputContains(env.wizard, "Warning: automatic dequeueing is disabled.") {
		t.Errorf("expected disabled warning, got %v", output(env.wizard))
	}
	if env.game.Sched.DequeueEnabled() {
		t.Error("kick should not re-enable dequeueing")
	}
}

func TestQueueWarpPromotes(t *testing.T) {
	env := newTestEnv(t)
	env.game.Sched.Enqueue(bobRef, bobRef, 50, gamedb.Nothing, 0, "think hi", nil, nil)
	DispatchCommand(env.game, env.wizard.Descriptor, "@queue/warp=100")
	if !outputContains(env.wizard, "WaitQ timer advanced 100 seconds.") {
		t.Fatalf("expected warp message, got %v", output(env.wizard))
	}
	player, _, wait, _, _ := env.game.Sched.Stats()
	if wait != 0 || player != 1 {
		t.Errorf("player=%d wait=%d after warp, want 1/0", player, wait)
	}
}

func TestPsShowsOwnEntries(t *testing.T) {
	env := newTestEnv(t)
	env.game.Sched.Enqueue(bobRef, bobRef, 100, gamedb.Nothing, 0, "think mine", nil, nil)
	env.game.Sched.Enqueue(wizRef, wizRef, 100, gamedb.Nothing, 0, "think theirs", nil, nil)
	DispatchCommand(env.game, env.bob.Descriptor, "@ps")
	if !outputContains(env.bob, "----- Wait Queue -----") {
		t.Fatalf("expected wait header, got %v", *env.bob.lines)
	}
	if !outputContains(env.bob, "think mine") {
		t.Error("expected own entry in listing")
	}
	if outputContains(env.bob, "think theirs") {
		t.Error("mortal should not see other players' entries")
	}
	if !outputContains(env.bob, "Wait...1/2") {
		t.Errorf("expected totals 1/2, got %v", *env.bob.lines)
	}
}

func TestPsSummaryOnlyTotals(t *testing.T) {
	env := newTestEnv(t)
	env.game.Sched.Enqueue(bobRef, bobRef, 100, gamedb.Nothing, 0, "think hi", nil, nil)
	DispatchCommand(env.game, env.bob.Descriptor, "@ps/summary")
	out := output(env.bob)
	if len(out) != 1 || !strings.HasPrefix(out[0], "Totals:") {
		t.Errorf("expected a single totals line, got %v", out)
	}
}

func TestForceQueuesAsTarget(t *testing.T) {
	env := newTestEnv(t)
	DispatchCommand(env.game, env.bob.Descriptor, "@force Gadget=think whirr")
	e := env.game.Sched.Lookup(1)
	if e == nil {
		t.Fatal("no queue entry created")
	}
	if e.Player != gadgetRef || e.Cause != bobRef {
		t.Errorf("entry player=%d cause=%d, want %d/%d", e.Player, e.Cause, gadgetRef, bobRef)
	}
}

func TestTriggerQueuesAttrWithArgs(t *testing.T) {
	env := newTestEnv(t)
	attr := env.game.ResolveAttrNum("ONPOKE")
	env.game.DB.Objects[gadgetRef].SetAttr(attr, "think poked by %0")
	DispatchCommand(env.game, env.bob.Descriptor, "@trigger Gadget/ONPOKE=Bob")
	if !outputContains(env.bob, "Triggered.") {
		t.Fatalf("expected Triggered., got %v", output(env.bob))
	}
	e := env.game.Sched.Lookup(1)
	if e == nil {
		t.Fatal("no queue entry created")
	}
	if len(e.Env) != 1 || e.Env[0] != "Bob" {
		t.Errorf("env = %v, want [Bob]", e.Env)
	}
}

func TestExecuteSubstitutesAndDispatches(t *testing.T) {
	env := newTestEnv(t)
	env.game.Execute(bobRef, bobRef, "think hello %0", []string{"world"}, nil)
	if !outputContains(env.bob, "hello world") {
		t.Errorf("expected substituted output, got %v", output(env.bob))
	}
}

func TestExecuteSplitsSemicolons(t *testing.T) {
	env := newTestEnv(t)
	env.game.Execute(bobRef, bobRef, "think one; think two", nil, nil)
	out := output(env.bob)
	if len(out) != 2 || out[0] != "one" || out[1] != "two" {
		t.Errorf("expected two outputs, got %v", out)
	}
}

func TestRunawayQuotaHaltsObject(t *testing.T) {
	env := newTestEnv(t)
	env.game.DB.Objects[bobRef].SetIntAttr(gamedb.AQueueMax, 1)
	DispatchCommand(env.game, env.bob.Descriptor, "@wait 100=think a")
	DispatchCommand(env.game, env.bob.Descriptor, "@wait 100=think b")
	if !outputContains(env.bob, "Run away objects") {
		t.Fatalf("expected runaway message, got %v", output(env.bob))
	}
	if !env.game.Halted(bobRef) {
		t.Error("runaway owner should be halted")
	}
	_, _, wait, _, _ := env.game.Sched.Stats()
	if wait != 0 {
		t.Errorf("wait queue = %d, want 0 after runaway flush", wait)
	}
}

func TestSplitCommandsHonorsBraces(t *testing.T) {
	got := splitCommands("think a; {think b; think c}; think d")
	if len(got) != 3 {
		t.Fatalf("split into %d, want 3: %v", len(got), got)
	}
	if got[1] != "{think b; think c}" {
		t.Errorf("braced group = %q", got[1])
	}
	if stripBraces(got[1]) != "think b; think c" {
		t.Errorf("stripBraces = %q", stripBraces(got[1]))
	}
}

func TestParseConnect(t *testing.T) {
	cases := []struct {
		in                  string
		cmd, user, password string
	}{
		{"connect Bob secret", "connect", "Bob", "secret"},
		{"create Alice pw", "create", "Alice", "pw"},
		{`connect "Two Words" pw`, "connect", "Two Words", "pw"},
		{"connect", "connect", "", ""},
		{"", "", "", ""},
	}
	for _, tc := range cases {
		cmd, user, password := ParseConnect(tc.in)
		if cmd != tc.cmd || user != tc.user || password != tc.password {
			t.Errorf("ParseConnect(%q) = (%q,%q,%q), want (%q,%q,%q)",
				tc.in, cmd, user, password, tc.cmd, tc.user, tc.password)
		}
	}
}

func TestPasswordLegacyUpgrade(t *testing.T) {
	env := newTestEnv(t)
	bob := env.game.DB.Objects[bobRef]
	bob.SetAttr(gamedb.APass, mushcrypt.Crypt("secret", "XX"))

	if env.game.CheckPlayerPassword(bobRef, "wrong") {
		t.Fatal("wrong password accepted")
	}
	if !env.game.CheckPlayerPassword(bobRef, "secret") {
		t.Fatal("correct password rejected")
	}
	if !strings.HasPrefix(bob.GetAttr(gamedb.APass), "$2") {
		t.Error("legacy hash not upgraded to bcrypt")
	}
	if !env.game.CheckPlayerPassword(bobRef, "secret") {
		t.Error("upgraded hash rejects original password")
	}
}

func TestCreatePlayer(t *testing.T) {
	env := newTestEnv(t)
	ref, err := env.game.CreatePlayer("Alice", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if !env.game.IsPlayer(ref) {
		t.Error("created object is not a player")
	}
	if !env.game.CheckPlayerPassword(ref, "pw") {
		t.Error("new player password rejected")
	}
	if _, err := env.game.CreatePlayer("Alice", "pw2"); err == nil {
		t.Error("duplicate name allowed")
	}
}

func TestLiveConfigApply(t *testing.T) {
	env := newTestEnv(t)
	conf := *env.game.Conf
	conf.WaitCost = 42
	conf.ObjectCmdsPerSec = 7
	env.game.applyLiveConf(&conf)
	if got := env.game.Sched.WaitCost(); got != 42 {
		t.Errorf("wait cost = %d after reload, want 42", got)
	}
}


func TestCronCommands(t *testing.T) {
	env := newTestEnv(t)
	env.game.Cron = NewCronTab(env.game)

	DispatchCommand(env.game, env.wizard.Descriptor, "@cron tick=* * * * *:think cron fired")
	if !outputContains(env.wizard, "Cron job 'tick' scheduled.") {
		t.Fatalf("schedule failed: %v", *env.wizard.lines)
	}
	DispatchCommand(env.game, env.wizard.Descriptor, "@crontab")
	if !outputContains(env.wizard, "Name") {
		t.Error("expected crontab header")
	}
	if jobs := env.game.Cron.Jobs(); len(jobs) != 1 || jobs[0].Command != "think cron fired" {
		t.Errorf("jobs = %+v", jobs)
	}

	DispatchCommand(env.game, env.wizard.Descriptor, "@cron tick=bogus spec:think nope")
	if !outputContains(env.wizard, "Bad schedule:") {
		t.Error("expected schedule parse error")
	}

	DispatchCommand(env.game, env.wizard.Descriptor, "@crondel tick")
	if !outputContains(env.wizard, "Cron job 'tick' removed.") {
		t.Fatalf("remove failed: %v", *env.wizard.lines)
	}
	if len(env.game.Cron.Jobs()) != 0 {
		t.Error("job survived @crondel")
	}
}

func TestConfigControlFlags(t *testing.T) {
	env := newTestEnv(t)
	conf := *env.game.Conf
	conf.InterpEnabled = false
	env.game.applyLiveConf(&conf)

	DispatchCommand(env.game, env.bob.Descriptor, "@wait 5=think quiet")
	if env.game.Sched.Lookup(1) != nil {
		t.Error("entry created with interpreter disabled")
	}
	if len(output(env.bob)) != 0 {
		t.Errorf("disabled interpreter should drop silently, got %v", output(env.bob))
	}

	conf.InterpEnabled = true
	conf.DequeueEnabled = false
	env.game.applyLiveConf(&conf)
	if env.game.Sched.DequeueEnabled() {
		t.Error("dequeue flag not applied")
	}

	conf.QueueChunk = 25
	conf.QueueIdleChunk = 7
	env.game.applyLiveConf(&conf)
	if got := env.game.queueChunk(); got != 25 {
		t.Errorf("queue chunk = %d, want 25", got)
	}
	if got := env.game.queueIdleChunk(); got != 7 {
		t.Errorf("idle chunk = %d, want 7", got)
	}
}

func TestExecuteSnapshotsRegistersIntoWait(t *testing.T) {
	env := newTestEnv(t)

	regs := &eval.RegisterData{}
	regs.SetQReg(0, "carried")
	env.game.Execute(bobRef, bobRef, "@wait 30=think %q0", nil, regs)

	l := env.game.Sched.Snapshot(bobRef, gamedb.Nothing)
	if len(l.Wait) != 1 {
		t.Fatalf("wait queue shows %d entries, want 1", len(l.Wait))
	}
	e := env.game.Sched.Lookup(l.Wait[0].PID)
	if e == nil || e.RData == nil {
		t.Fatal("queued entry lost its register snapshot")
	}
	if e.RData == regs {
		t.Fatal("entry shares the caller's register struct")
	}

	// Later caller mutations must not reach the stored snapshot.
	regs.SetQReg(0, "changed")
	if e.RData.QRegs[0] != "carried" {
		t.Errorf("q0 = %q, want the value from dispatch time", e.RData.QRegs[0])
	}
}

func TestPostCommandDrainRunsFreshEntries(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.bob.Descriptor, "@wait 0=think prompt service")
	if ran := env.game.PostCommandDrain(); ran != 1 {
		t.Fatalf("drained %d entries, want 1", ran)
	}
	if !outputContains(env.bob, "prompt service") {
		t.Errorf("queued command output missing, got %v", output(env.bob))
	}
}
