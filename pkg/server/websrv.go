package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/crystal-mush/mushqd/pkg/events"
	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// WebServer provides HTTP/WebSocket transport alongside the TCP game
// server, plus the metrics and auth endpoints.
type WebServer struct {
	game      *Game
	httpSrv   *http.Server
	mux       *http.ServeMux
	auth      *AuthService
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewWebServer creates a web server bound to the game.
func NewWebServer(game *Game) *WebServer {
	conf := game.Conf
	ws := &WebServer{
		game:      game,
		mux:       http.NewServeMux(),
		auth:      NewAuthService(game, conf.JWTSecret, conf.JWTExpiry),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	ws.mux.HandleFunc("GET /ws", ws.handleWebSocket)
	ws.mux.HandleFunc("POST /api/v1/auth/login", ws.handleAuthLogin)
	ws.mux.HandleFunc("POST /api/v1/auth/refresh", ws.handleAuthRefresh)
	ws.mux.HandleFunc("GET /health", ws.handleHealth)

	if game.Metrics == nil {
		game.Metrics = NewMetrics(game, ws.startTime)
	}
	ws.mux.Handle("GET /metrics", game.Metrics.Handler())

	ws.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.WebHost, conf.WebPort),
		Handler: ws.mux,
	}
	return ws
}

// Auth returns the auth service for external use.
func (ws *WebServer) Auth() *AuthService { return ws.auth }

// Start begins listening. Blocks until the server stops.
func (ws *WebServer) Start() error {
	log.Info().Str("addr", ws.httpSrv.Addr).Msg("Web server listening")
	err := ws.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	return ws.httpSrv.Shutdown(ctx)
}

// WSMessage is the JSON message format for WebSocket communication.
type WSMessage struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Command string         `json:"command,omitempty"`
}

// handleWebSocket upgrades an HTTP connection to a WebSocket and creates
// a game Descriptor for the client. A valid bearer token logs the player
// in without a connect command.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var claims *Claims
	token := r.URL.Query().Get("token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = auth[7:]
		}
	}
	if token != "" {
		var err error
		claims, err = ws.auth.ValidateToken(token)
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
	}

	wsConnRaw, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	d, wc := newWSDescriptor(ws.game, wsConnRaw, r.RemoteAddr)
	ws.game.Conns.Add(d)
	log.Info().Int("desc", d.ID).Str("addr", d.Addr).Msg("New WebSocket connection")

	if claims != nil {
		ws.game.ConnectPlayer(d, claims.PlayerRef)
		wc.sendJSON(WSMessage{
			Type: "login",
			Data: map[string]any{
				"player_ref":  int(claims.PlayerRef),
				"player_name": claims.PlayerName,
			},
		})
	} else {
		wc.sendJSON(WSMessage{Type: "welcome",
			Text: "Connected. Send {\"type\":\"login\",\"command\":\"connect name password\"} to authenticate."})
	}

	go wsReadLoop(ws, d, wc)
}

// wsConn holds the WebSocket connection and its write mutex.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (wc *wsConn) sendJSON(msg WSMessage) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	wc.conn.WriteJSON(msg)
}

// newWSDescriptor creates a Descriptor configured for WebSocket transport.
// SendFunc and ReceiveFunc route output as JSON over the socket.
func newWSDescriptor(game *Game, conn *websocket.Conn, addr string) (*Descriptor, *wsConn) {
	wc := &wsConn{conn: conn}
	d := &Descriptor{
		ID:        game.Conns.NextID(),
		Conn:      nullConn{},
		State:     ConnLogin,
		Player:    gamedb.Nothing,
		Addr:      addr,
		ConnTime:  time.Now(),
		LastCmd:   time.Now(),
		Retries:   3,
		Transport: TransportWebSocket,
	}
	d.SendFunc = func(msg string) {
		wc.sendJSON(WSMessage{Type: "text", Text: msg})
	}
	d.ReceiveFunc = func(ev events.Event) {
		wc.sendJSON(WSMessage{
			Type: ev.Type.String(),
			Text: ev.Text,
			Data: ev.Data,
		})
	}
	return d, wc
}

func wsReadLoop(ws *WebServer, d *Descriptor, wc *wsConn) {
	defer func() {
		ws.game.DisconnectPlayer(d)
		ws.game.Conns.Remove(d)
		wc.conn.Close()
		log.Info().Int("desc", d.ID).Str("addr", d.Addr).Msg("WebSocket closed")
	}()

	for {
		_, msgBytes, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Int("desc", d.ID).Err(err).Msg("WebSocket read error")
			}
			return
		}

		d.LastCmd = time.Now()

		var msg WSMessage
		if err := json.Unmarshal(msgBytes, &msg); err != nil {
			wc.sendJSON(WSMessage{Type: "error", Text: "Invalid JSON message"})
			continue
		}

		switch msg.Type {
		case "command":
			if d.State == ConnLogin {
				handleWSLogin(ws, d, wc, msg.Command)
			} else {
				d.CmdCount++
				DispatchCommand(ws.game, d, msg.Command)
				ws.game.PostCommandDrain()
			}
		case "login":
			handleWSLogin(ws, d, wc, msg.Command)
		default:
			wc.sendJSON(WSMessage{Type: "error", Text: fmt.Sprintf("Unknown message type: %s", msg.Type)})
		}
	}
}

func handleWSLogin(ws *WebServer, d *Descriptor, wc *wsConn, input string) {
	command, user, password := ParseConnect(input)
	if !strings.HasPrefix(command, "co") {
		wc.sendJSON(WSMessage{Type: "error", Text: "Use: connect <name> <password>"})
		return
	}
	player := ws.game.LookupPlayer(user)
	if player == gamedb.Nothing || !ws.game.CheckPlayerPassword(player, password) {
		wc.sendJSON(WSMessage{Type: "error", Text: "Invalid credentials"})
		return
	}
	ws.game.ConnectPlayer(d, player)
	wc.sendJSON(WSMessage{
		Type: "login",
		Data: map[string]any{
			"player_ref":  int(player),
			"player_name": ws.game.PlayerName(player),
		},
	})
}

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := ws.auth.Login(req.Name, req.Password)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (ws *WebServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
		return
	}
	newToken, err := ws.auth.RefreshToken(authHeader[7:])
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": newToken})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	player, object, wait, sem, _ := ws.game.Sched.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(ws.startTime).Seconds(),
		"queue_depth":    player + object + wait + sem,
	})
}

// nullConn is a stand-in net.Conn for descriptors whose transport is not
// a raw TCP socket.
type nullConn struct{}

func (nullConn) Read(b []byte) (int, error)         { return 0, nil }
func (nullConn) Write(b []byte) (int, error)        { return len(b), nil }
func (nullConn) Close() error                       { return nil }
func (nullConn) LocalAddr() net.Addr                { return nil }
func (nullConn) RemoteAddr() net.Addr               { return nil }
func (nullConn) SetDeadline(t time.Time) error      { return nil }
func (nullConn) SetReadDeadline(t time.Time) error  { return nil }
func (nullConn) SetWriteDeadline(t time.Time) error { return nil }
