package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// CronJob is one scheduled queue submission.
type CronJob struct {
	Name    string
	Spec    string
	Player  gamedb.DBRef
	Command string
	id      cron.EntryID
}

// CronTab runs named cron schedules that enqueue commands on behalf of
// their owners.
type CronTab struct {
	game *Game
	cron *cron.Cron
	mu   sync.Mutex
	jobs map[string]*CronJob
}

// NewCronTab creates a stopped crontab. Call Start after the game is up.
func NewCronTab(g *Game) *CronTab {
	return &CronTab{
		game: g,
		cron: cron.New(),
		jobs: make(map[string]*CronJob),
	}
}

// Start begins firing schedules.
func (c *CronTab) Start() { c.cron.Start() }

// Stop halts the scheduler and waits for running jobs.
func (c *CronTab) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// Add registers a named schedule. An existing job with the same name is
// replaced.
func (c *CronTab) Add(name, spec string, player gamedb.DBRef, command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	job := &CronJob{Name: name, Spec: spec, Player: player, Command: command}
	id, err := c.cron.AddFunc(spec, func() {
		if _, err := c.game.Sched.Enqueue(player, player, 0, gamedb.Nothing, 0, command, nil, nil); err != nil {
			log.Warn().Str("job", name).Err(err).Msg("Cron enqueue failed")
		}
	})
	if err != nil {
		return err
	}
	if old, ok := c.jobs[name]; ok {
		c.cron.Remove(old.id)
	}
	job.id = id
	c.jobs[name] = job
	return nil
}

// Remove deletes a named schedule.
func (c *CronTab) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[name]
	if !ok {
		return false
	}
	c.cron.Remove(job.id)
	delete(c.jobs, name)
	return true
}

// Jobs returns the registered schedules sorted by name.
func (c *CronTab) Jobs() []*CronJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*CronJob, 0, len(c.jobs))
	for _, j := range c.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// cmdCron implements @cron name=spec:command.
func cmdCron(g *Game, d *Descriptor, args string, _ []string) {
	if g.Cron == nil {
		d.Send("Cron is not enabled.")
		return
	}
	name, rest, hasEq := strings.Cut(args, "=")
	spec, command, hasColon := strings.Cut(rest, ":")
	name = strings.TrimSpace(name)
	spec = strings.TrimSpace(spec)
	command = strings.TrimSpace(command)
	if !hasEq || !hasColon || name == "" || command == "" {
		d.Send("Usage: @cron <name>=<schedule>:<command>")
		return
	}
	if err := g.Cron.Add(name, spec, d.Player, stripBraces(command)); err != nil {
		d.Send(fmt.Sprintf("Bad schedule: %s", err))
		return
	}
	d.Send(fmt.Sprintf("Cron job '%s' scheduled.", name))
}

// cmdCronDel implements @crondel name.
func cmdCronDel(g *Game, d *Descriptor, args string, _ []string) {
	if g.Cron == nil {
		d.Send("Cron is not enabled.")
		return
	}
	name := strings.TrimSpace(args)
	if !g.Cron.Remove(name) {
		d.Send("No such cron job.")
		return
	}
	d.Send(fmt.Sprintf("Cron job '%s' removed.", name))
}

// cmdCronTab implements @crontab.
func cmdCronTab(g *Game, d *Descriptor, _ string, _ []string) {
	if g.Cron == nil {
		d.Send("Cron is not enabled.")
		return
	}
	jobs := g.Cron.Jobs()
	if len(jobs) == 0 {
		d.Send("No cron jobs scheduled.")
		return
	}
	d.Send("Name                 Schedule         Owner    Command")
	for _, j := range jobs {
		d.Send(fmt.Sprintf("%-20s %-16s %-8s %s",
			j.Name, j.Spec, g.ObjName(j.Player), j.Command))
	}
}
