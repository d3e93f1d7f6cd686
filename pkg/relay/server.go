package relay

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beamcast/beamcast/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server is the standalone rendezvous point: websocket signal routing per
// room plus media upload and download for file broadcasts.
type Server struct {
	cfg Config

	roomsMu sync.RWMutex
	rooms   map[string]*Room
}

func NewServer(cfg Config) *Server {
	return &Server{cfg: cfg, rooms: make(map[string]*Room)}
}

// Router builds the HTTP surface. Split from Run so tests can mount it on
// httptest servers.
func (s *Server) Router() *gin.Engine {
	if s.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.GET("/rooms/:room", s.handleRoomInfo)
		api.POST("/media", s.handleUpload)
	}

	router.GET("/media/:name", s.handleDownload)
	router.GET("/ws/:room", s.handleSignaling)

	return router
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	if err := s.ensureMediaDir(); err != nil {
		return err
	}
	log.Printf("relay: listening on :%s (media dir %s)", s.cfg.Port, s.cfg.MediaDir)
	log.Printf("relay: example room code %s", GenerateRoomCode())
	return s.Router().Run(":" + s.cfg.Port)
}

func (s *Server) handleSignaling(c *gin.Context) {
	code := NormalizeRoomCode(c.Param("room"))
	if !ValidateRoomCode(code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room code"})
		return
	}

	peer := protocol.PeerID(c.Query("peer"))
	if peer == "" {
		peer = protocol.PeerID(uuid.New().String())
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("relay: upgrade failed: %v", err)
		return
	}

	client := &Client{
		id:   peer,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	old := s.joinRoom(code, client)
	if old != nil {
		log.Printf("relay: peer %s reconnected to room %s, dropping old connection", peer, code)
		old.shutdown()
	}
	log.Printf("relay: peer %s joined room %s (%d connected)", peer, code, client.room.size())

	go client.writePump()
	go client.readPump()
}

func (s *Server) handleRoomInfo(c *gin.Context) {
	code := NormalizeRoomCode(c.Param("room"))

	s.roomsMu.RLock()
	room, ok := s.rooms[code]
	s.roomsMu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	peers := room.Peers()
	c.JSON(http.StatusOK, gin.H{
		"room":  code,
		"count": len(peers),
		"peers": peers,
	})
}

// joinRoom registers the client under the code, creating the room on first
// join. Registration happens under the rooms lock so a concurrent retire
// cannot strand the client in a removed room.
func (s *Server) joinRoom(code string, c *Client) *Client {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	room, ok := s.rooms[code]
	if !ok {
		room = newRoom(code, s)
		s.rooms[code] = room
		log.Printf("relay: created room %s", code)
	}
	c.room = room
	return room.add(c)
}

// retireRoom deletes the room once it is empty. The size check repeats under
// the rooms lock because a join may have raced the last leave.
func (s *Server) retireRoom(r *Room) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	if current, ok := s.rooms[r.code]; !ok || current != r || r.size() > 0 {
		return
	}
	delete(s.rooms, r.code)
	log.Printf("relay: removed empty room %s", r.code)
}

func (s *Server) roomCount() int {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	return len(s.rooms)
}

func (s *Server) maxUploadBytes() int64 {
	return int64(s.cfg.MaxUploadMB) << 20
}

func (s *Server) ensureMediaDir() error {
	if err := os.MkdirAll(s.cfg.MediaDir, 0o755); err != nil {
		return fmt.Errorf("media dir %s: %w", s.cfg.MediaDir, err)
	}
	return nil
}
