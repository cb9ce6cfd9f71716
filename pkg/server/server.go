package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// Server is the main TCP game server.
type Server struct {
	Game      *Game
	listener  net.Listener
	webServer *WebServer
}

// NewServer creates a new server instance around an existing game.
func NewServer(game *Game) *Server {
	return &Server{Game: game}
}

// Start begins listening for connections. Blocks until Shutdown.
func (s *Server) Start() error {
	g := s.Game

	g.StartQueueProcessor()
	g.FireStartups()
	if g.Cron != nil {
		g.Cron.Start()
	}

	log.Info().Int("objects", len(g.DB.Objects)).
		Int("attrdefs", len(g.DB.AttrNames)).Msg("Database loaded")

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", g.Conf.Port))
	if err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	s.listener = ln
	log.Info().Int("port", g.Conf.Port).Msg("Listening")

	if g.Conf.WebEnabled {
		s.webServer = NewWebServer(g)
		go func() {
			if err := s.webServer.Start(); err != nil {
				log.Error().Err(err).Msg("Web server failed")
			}
		}()
	}

	go func() {
		<-g.shutdownCh
		s.Stop()
	}()

	s.acceptLoop(ln)
	return nil
}

// acceptLoop accepts connections on the given listener until it is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("Accept error")
			continue
		}
		go s.handleConnection(conn)
	}
}

// Stop closes the listeners and the web server.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	if s.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.webServer.Stop(ctx)
	}
}

// handleConnection manages a single client connection lifecycle.
func (s *Server) handleConnection(conn net.Conn) {
	g := s.Game
	d := NewDescriptor(g.Conns.NextID(), conn)
	g.Conns.Add(d)

	log.Info().Int("desc", d.ID).Str("addr", d.Addr).Msg("New connection")

	defer func() {
		g.DisconnectPlayer(d)
		g.Conns.Remove(d)
		d.Close()
		log.Info().Int("desc", d.ID).Str("addr", d.Addr).Msg("Connection closed")
	}()

	d.SendNoNewline(WelcomeText)

	scanner := bufio.NewScanner(d.Conn)
	scanner.Buffer(make([]byte, 8192), 8192)

	for scanner.Scan() {
		if d.IsClosed() {
			return
		}

		line := strings.TrimRight(scanner.Text(), "\r\n")
		d.BytesRecv += len(line) + 1
		d.LastCmd = time.Now()

		if d.State == ConnLogin {
			s.handleLoginCommand(d, line)
		} else {
			d.CmdCount++
			DispatchCommand(g, d, line)
			g.PostCommandDrain()
		}

		if d.IsClosed() {
			return
		}
	}
}

// handleLoginCommand processes pre-login commands.
func (s *Server) handleLoginCommand(d *Descriptor, input string) {
	g := s.Game
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	switch strings.ToUpper(input) {
	case "QUIT":
		d.Send("Goodbye!")
		d.Close()
		return
	case "WHO":
		cmdWho(g, d, "", nil)
		return
	}

	command, user, password := ParseConnect(input)
	switch {
	case strings.HasPrefix(command, "co"):
		s.handleConnect(d, user, password)
	case strings.HasPrefix(command, "cr"):
		s.handleCreate(d, user, password)
	default:
		d.Send("Commands: connect, create, WHO, QUIT")
	}
}

// handleConnect authenticates and logs in a player.
func (s *Server) handleConnect(d *Descriptor, user, password string) {
	g := s.Game
	if user == "" {
		d.Send("Usage: connect <name> <password>")
		return
	}

	player := g.LookupPlayer(user)
	if player == gamedb.Nothing || !g.CheckPlayerPassword(player, password) {
		d.Send("Either that player does not exist, or has a different password.")
		d.Retries--
		if d.Retries <= 0 {
			d.Send("Too many failed attempts. Disconnecting.")
			d.Close()
		}
		return
	}

	g.ConnectPlayer(d, player)
	d.Send(fmt.Sprintf("Welcome back, %s!", g.PlayerName(player)))
}

// handleCreate makes a new player and logs them in.
func (s *Server) handleCreate(d *Descriptor, user, password string) {
	g := s.Game
	if user == "" || password == "" {
		d.Send("Usage: create <name> <password>")
		return
	}
	player, err := g.CreatePlayer(user, password)
	if err != nil {
		d.Send(fmt.Sprintf("Cannot create that player: %s.", err))
		return
	}
	g.ConnectPlayer(d, player)
	unit := g.Conf.MoneyNamePlural
	if g.Conf.StartingMoney == 1 {
		unit = g.Conf.MoneyNameSingular
	}
	d.Send(fmt.Sprintf("Welcome, %s! You have %d %s.", g.PlayerName(player),
		g.Conf.StartingMoney, unit))
}

// Shutdown saves the world and stops the server. Safe to call more than
// once.
func (g *Game) Shutdown() {
	g.shutdownOnce.Do(func() {
		log.Info().Msg("Shutting down")
		if g.Cron != nil {
			g.Cron.Stop()
		}
		if g.Store != nil {
			if err := g.Store.Save(); err != nil {
				log.Error().Err(err).Msg("Final database save failed")
			}
		}
		if g.SQLDB != nil {
			g.SQLDB.Close()
		}
		for _, d := range g.Conns.AllDescriptors() {
			d.Send("Going down - Bye")
			d.Close()
		}
		close(g.shutdownCh)
	})
}

// ShutdownChan exposes the shutdown signal for external waiters.
func (g *Game) ShutdownChan() <-chan struct{} { return g.shutdownCh }
