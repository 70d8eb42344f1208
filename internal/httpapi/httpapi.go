// Package httpapi exposes the pipeline over HTTP with gin, grounded on
// the teacher's radio handler package (gin.Context-style JSON handlers)
// and its StreamHandler's chunked-response relay loop for the listener
// endpoint.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arung-agamani/turntable/internal/audio/core"
	"github.com/arung-agamani/turntable/internal/audio/encode"
	"github.com/arung-agamani/turntable/internal/audio/pipeline"
	"github.com/arung-agamani/turntable/internal/audio/queue"
	"github.com/arung-agamani/turntable/internal/collab"
)

// Handlers holds everything the route layer needs: the audio pipeline
// plus the external-collaborator stores that map a room name to a
// player/queue pair.
type Handlers struct {
	pipeline *pipeline.Pipeline
	resolver collab.InputResolver
	rooms    collab.RoomStore
	users    collab.UserStore
	sessions collab.SessionStore
	auth     collab.Authenticator
	tokens   collab.TokenIssuer

	roomsMu sync.Mutex
	byName  map[string]roomBinding
}

type roomBinding struct {
	player core.PlayerId
	queue  *queue.RoundRobinQueue
}

// NewHandlers wires a Handlers bound to p, resolving ingestion URLs with
// resolver and authenticating collaborators against users/sessions.
func NewHandlers(p *pipeline.Pipeline, resolver collab.InputResolver, rooms collab.RoomStore, users collab.UserStore, sessions collab.SessionStore, tokens collab.TokenIssuer) *Handlers {
	return &Handlers{
		pipeline: p,
		resolver: resolver,
		rooms:    rooms,
		users:    users,
		sessions: sessions,
		auth:     collab.BcryptAuthenticator{},
		tokens:   tokens,
		byName:   make(map[string]roomBinding),
	}
}

// Register mounts every route onto r. Mutating room actions require a
// bearer session token minted by /api/auth/login.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/stream/:room", h.Stream)
	r.POST("/api/auth/register", h.RegisterUser)
	r.POST("/api/auth/login", h.Login)

	authed := r.Group("/api/rooms/:room", h.requireSession)
	authed.POST("/ingest", h.Ingest)
	authed.POST("/play", h.Play)
	authed.POST("/pause", h.Pause)
	authed.POST("/skip", h.Skip)
	authed.POST("/seek", h.Seek)
}

// requireSession validates the Authorization: Bearer <token> header by
// looking the token up in the session store, aborting with 401 on failure.
func (h *Handlers) requireSession(c *gin.Context) {
	authz := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "authentication required"})
		return
	}
	token := strings.TrimPrefix(authz, prefix)

	if _, err := h.sessions.ByToken(c.Request.Context(), token); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "invalid or expired session"})
		return
	}

	c.Next()
}

// RegisterUser handles POST /api/auth/register {"username","password"}.
func (h *Handlers) RegisterUser(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "username and password required"})
		return
	}

	hash, err := h.auth.Hash(body.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "failed to hash password"})
		return
	}

	u := collab.User{ID: uuid.New(), Username: body.Username, PasswordHash: hash, CreatedAt: time.Now()}
	if err := h.users.Create(c.Request.Context(), u); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

// Login handles POST /api/auth/login {"username","password"}, returning a
// bearer session token on success.
func (h *Handlers) Login(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body"})
		return
	}

	u, err := h.users.ByUsername(c.Request.Context(), body.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "invalid credentials"})
		return
	}
	if err := h.auth.Verify(u.PasswordHash, body.Password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "invalid credentials"})
		return
	}

	sess, err := h.tokens.Issue(u.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "failed to issue session"})
		return
	}
	if err := h.sessions.Create(c.Request.Context(), sess); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "failed to persist session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "token": sess.Token, "expires_at": sess.ExpiresAt})
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// binding returns the room's player/queue, lazily creating both the
// first time a room name is seen.
func (h *Handlers) binding(name string) roomBinding {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if b, ok := h.byName[name]; ok {
		return b
	}

	playerId := h.pipeline.CreatePlayer()
	notifier := &queue.BusNotifier{Bus: h.pipeline.Bus(), Player: playerId}
	q := queue.New(notifier)
	notifier.Queue = q.Id()
	h.pipeline.AttachQueue(playerId, q)

	b := roomBinding{player: playerId, queue: q}
	h.byName[name] = b
	return b
}

// Stream serves GET /stream/:room: attach a WAV consumer and relay
// chunks to the response until the client disconnects, mirroring the
// teacher's StreamHandler loop.
func (h *Handlers) Stream(c *gin.Context) {
	room := c.Param("room")
	b := h.binding(room)

	enc := encode.NewWAVEncoder(44100, 2)
	consumer, ok := h.pipeline.ConsumePlayer(b.player, enc, 0)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "room not playing"})
		return
	}
	defer consumer.Close()

	c.Header("Content-Type", consumer.ContentType())
	c.Header("Transfer-Encoding", "chunked")
	c.Header("Cache-Control", "no-store")

	w := c.Writer
	flusher, canFlush := interface{}(w).(http.Flusher)
	ctx := c.Request.Context()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chunk := consumer.Read()
			if len(chunk) == 0 {
				continue
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

// Ingest handles POST /api/rooms/:room/ingest {"url": "...", "submitter": "..."}.
func (h *Handlers) Ingest(c *gin.Context) {
	var body struct {
		URL       string `json:"url"`
		Submitter string `json:"submitter"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid request body"})
		return
	}

	in, err := h.resolver.Resolve(c.Request.Context(), body.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	b := h.binding(c.Param("room"))

	submitter := body.Submitter
	if submitter == "" {
		submitter = "anonymous"
	}

	b.queue.Add(submitter, []queue.Item{{
		ItemId:    uuid.NewString(),
		Input:     in,
		Submitter: submitter,
		Title:     body.URL,
	}})

	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

func (h *Handlers) Play(c *gin.Context) {
	b := h.binding(c.Param("room"))
	h.pipeline.Play(b.player)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) Pause(c *gin.Context) {
	b := h.binding(c.Param("room"))
	h.pipeline.Pause(b.player)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) Skip(c *gin.Context) {
	var body struct {
		ItemId string `json:"item_id"`
	}
	_ = c.ShouldBindJSON(&body)

	b := h.binding(c.Param("room"))
	b.queue.Skip(body.ItemId)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) Seek(c *gin.Context) {
	posStr := c.Query("position_samples")
	pos, err := strconv.Atoi(posStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid position_samples"})
		return
	}

	b := h.binding(c.Param("room"))
	h.pipeline.Seek(b.player, pos)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
