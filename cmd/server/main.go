package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/crystal-mush/mushqd/pkg/boltstore"
	"github.com/crystal-mush/mushqd/pkg/gamedb"
	"github.com/crystal-mush/mushqd/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the
// fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	boltPath := flag.String("bolt", envDefault("MUSHQD_BOLT", "mushqd.db"), "Path to bbolt persistent database (env: MUSHQD_BOLT)")
	confFile := flag.String("conf", envDefault("MUSHQD_CONF", ""), "Path to game config file (env: MUSHQD_CONF)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config (env: MUSHQD_PORT)")
	godPass := flag.String("godpass", envDefault("MUSHQD_GODPASS", ""), "Set God (#1) password and exit (env: MUSHQD_GODPASS)")
	pretty := flag.Bool("pretty", os.Getenv("MUSHQD_PRETTY") == "true", "Human-readable log output (env: MUSHQD_PRETTY)")
	flag.Parse()

	if *pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	conf := server.DefaultGameConf()
	if *confFile != "" {
		loaded, err := server.LoadGameConf(*confFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Config load failed")
		}
		conf = loaded
	}
	if *port != 0 {
		conf.Port = *port
	}

	store, err := boltstore.Open(*boltPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Database open failed")
	}
	defer store.Close()
	if err := store.Load(); err != nil {
		log.Fatal().Err(err).Msg("Database load failed")
	}
	db := store.DB()
	bootstrap(db, store, conf)

	game := server.NewGame(db, conf)
	game.Store = store

	if *godPass != "" {
		if err := game.SetPlayerPassword(gamedb.DBRef(conf.GodDBRef), *godPass); err != nil {
			log.Fatal().Err(err).Msg("Setting God password failed")
		}
		fmt.Println("God password updated.")
		return
	}

	if conf.SQLEnabled {
		path := conf.SQLDatabase
		if path == "" {
			path = "mushqd.sqlite"
		}
		sqldb, err := server.OpenSQLStore(path, 5, conf.SQLRetentionDays)
		if err != nil {
			log.Fatal().Err(err).Msg("SQL store open failed")
		}
		game.SQLDB = sqldb
	}

	if *confFile != "" {
		if err := game.WatchConfig(*confFile); err != nil {
			log.Warn().Err(err).Msg("Config watch unavailable")
		}
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		game.Shutdown()
	}()

	log.Info().Str("mud", conf.MudName).Msg("Starting mushqd")
	srv := server.NewServer(game)
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	<-game.ShutdownChan()
}

// bootstrap seeds a fresh database with the God player so a new install
// has something to connect to.
func bootstrap(db *gamedb.Database, store *boltstore.Store, conf *server.GameConf) {
	god := gamedb.DBRef(conf.GodDBRef)
	if _, ok := db.Objects[god]; ok {
		return
	}
	obj := &gamedb.Object{
		DBRef:   god,
		Name:    "God",
		Owner:   god,
		Pennies: conf.StartingMoney,
	}
	obj.Flags[0] = int(gamedb.TypePlayer) | gamedb.FlagWizard
	obj.SetIntAttr(gamedb.AMoney, conf.StartingMoney)
	db.Objects[god] = obj
	if err := store.PutObject(obj); err != nil {
		log.Fatal().Err(err).Msg("Bootstrap write failed")
	}
	log.Info().Msg("Fresh database: created God (#1). Set a password with -godpass.")
}
