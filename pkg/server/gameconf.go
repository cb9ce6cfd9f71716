package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// GameConf holds game-level configuration parameters from a YAML file.
type GameConf struct {
	// --- Identity ---
	MudName string `yaml:"mud_name"`
	Port    int    `yaml:"port"`

	// --- Economy ---
	MoneyNameSingular string `yaml:"money_name_singular"`
	MoneyNamePlural   string `yaml:"money_name_plural"`
	StartingMoney     int    `yaml:"starting_money"`
	WaitCost          int    `yaml:"wait_cost"`

	// --- Queue ---
	QueueQuota         int `yaml:"queue_quota"`       // default per-owner entry cap
	QueueMaxPid        int `yaml:"queue_max_pid"`     // PID space size
	QueueChunk         int `yaml:"queue_chunk"`       // entries drained after a command
	QueueIdleChunk     int `yaml:"queue_idle_chunk"`  // entries run per tick
	MachineCommandCost int `yaml:"machine_command_cost"`
	InterpEnabled      bool `yaml:"interp_enabled"`  // off = enqueue is a no-op
	DequeueEnabled     bool `yaml:"dequeue_enabled"` // off = entries accumulate

	// --- Rate limiting ---
	ObjectCmdsPerSec  float64 `yaml:"object_cmds_per_sec"`
	ObjectCmdsBurst   int     `yaml:"object_cmds_burst"`

	// --- Idle/timeout ---
	IdleTimeout int `yaml:"idle_timeout"`

	// --- Security ---
	GodDBRef  int    `yaml:"god_dbref"`
	JWTSecret string `yaml:"jwt_secret"`
	JWTExpiry int    `yaml:"jwt_expiry"` // seconds

	// --- Web ---
	WebEnabled bool   `yaml:"web_enabled"`
	WebPort    int    `yaml:"web_port"`
	WebHost    string `yaml:"web_host"`

	// --- SQL audit log ---
	SQLEnabled       bool   `yaml:"sql_enabled"`
	SQLDatabase      string `yaml:"sql_database"`
	SQLRetentionDays int    `yaml:"sql_retention_days"`

	// --- Cron ---
	CronEnabled bool `yaml:"cron_enabled"`
}

// DefaultGameConf returns the stock tunables. They track the historical C
// server defaults where one exists.
func DefaultGameConf() *GameConf {
	return &GameConf{
		MudName:            "mushqd",
		Port:               6250,
		MoneyNameSingular:  "penny",
		MoneyNamePlural:    "pennies",
		StartingMoney:      100,
		WaitCost:           10,
		QueueQuota:         100,
		QueueMaxPid:        10000,
		QueueChunk:         10,
		QueueIdleChunk:     3,
		MachineCommandCost: 64,
		InterpEnabled:      true,
		DequeueEnabled:     true,
		ObjectCmdsPerSec:   100,
		ObjectCmdsBurst:    200,
		IdleTimeout:        3600,
		GodDBRef:           1,
		JWTExpiry:          86400,
		SQLRetentionDays:   30,
		CronEnabled:        true,
	}
}

// LoadGameConf reads a YAML config file over the defaults.
func LoadGameConf(path string) (*GameConf, error) {
	conf := DefaultGameConf()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return conf, nil
}

// WatchConfig reloads the config file when it changes on disk and applies
// the live-tunable values to the running game. Structural settings (ports,
// database paths) need a restart and are left alone.
func (g *Game) WatchConfig(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				conf, err := LoadGameConf(path)
				if err != nil {
					log.Error().Err(err).Msg("Config reload failed, keeping old values")
					continue
				}
				g.applyLiveConf(conf)
				log.Info().Str("path", path).Msg("Config reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("Config watcher error")
			}
		}
	}()
	return nil
}

// applyLiveConf swaps in the tunables that are safe to change at runtime.
func (g *Game) applyLiveConf(conf *GameConf) {
	g.mu.Lock()
	g.Conf.WaitCost = conf.WaitCost
	g.Conf.QueueQuota = conf.QueueQuota
	g.Conf.QueueChunk = conf.QueueChunk
	g.Conf.QueueIdleChunk = conf.QueueIdleChunk
	g.Conf.MachineCommandCost = conf.MachineCommandCost
	g.Conf.ObjectCmdsPerSec = conf.ObjectCmdsPerSec
	g.Conf.ObjectCmdsBurst = conf.ObjectCmdsBurst
	g.Conf.IdleTimeout = conf.IdleTimeout
	g.mu.Unlock()
	g.Sched.SetCosts(conf.WaitCost, conf.MachineCommandCost)
	g.Sched.SetInterp(conf.InterpEnabled)
	g.Sched.SetDequeue(conf.DequeueEnabled)
	g.Limiter.SetRate(conf.ObjectCmdsPerSec, conf.ObjectCmdsBurst)
}
