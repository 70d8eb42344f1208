// Package collab defines the out-of-scope "external collaborator"
// surface: user accounts, rooms, invites, sessions, and stream keys. Per
// spec.md §1's non-goals these are not full subsystems here — only the
// contract the pipeline and cmd/server need to compile against, plus one
// minimal in-memory implementation each, grounded on the teacher's
// internal/auth (bcrypt password hashing) and internal/playlist's
// JSON-backed Store (CRUD-over-a-mutex shape).
package collab

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/arung-agamani/turntable/internal/audio/input"
)

// ErrNotFound is returned by store lookups that miss.
var ErrNotFound = errors.New("collab: not found")

// User is an external collaborator account. Its Id is a persistence
// boundary identifier (uuid), distinct from the pipeline's process-local
// monotonic SinkId/PlayerId/ConsumerId/QueueId.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Room is a collaborative listening space; each Room owns exactly one
// pipeline Player (the binding lives in httpapi, not here, since this
// package must not depend on the audio pipeline).
type Room struct {
	ID        uuid.UUID
	Name      string
	OwnerID   uuid.UUID
	CreatedAt time.Time
}

// Invite grants a user access to a room.
type Invite struct {
	ID        uuid.UUID
	RoomID    uuid.UUID
	Code      string
	ExpiresAt time.Time
}

// Session is an authenticated user's active login.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
}

// StreamKey authorizes read access to a room's stream without a full
// session (e.g. for embedding in a player URL).
type StreamKey struct {
	ID     uuid.UUID
	RoomID uuid.UUID
	Key    string
}

// UserStore persists User records.
type UserStore interface {
	Create(ctx context.Context, u User) error
	ByID(ctx context.Context, id uuid.UUID) (User, error)
	ByUsername(ctx context.Context, username string) (User, error)
}

// RoomStore persists Room records.
type RoomStore interface {
	Create(ctx context.Context, r Room) error
	ByID(ctx context.Context, id uuid.UUID) (Room, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Room, error)
}

// InviteStore persists Invite records.
type InviteStore interface {
	Create(ctx context.Context, i Invite) error
	ByCode(ctx context.Context, code string) (Invite, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SessionStore persists Session records.
type SessionStore interface {
	Create(ctx context.Context, s Session) error
	ByToken(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// StreamKeyStore persists StreamKey records.
type StreamKeyStore interface {
	Create(ctx context.Context, k StreamKey) error
	ByKey(ctx context.Context, key string) (StreamKey, error)
}

// Authenticator hashes and verifies user passwords. Grounded on the
// teacher's auth.Auth, reduced to its bcrypt core since JWT/session
// issuance lives in TokenIssuer here instead.
type Authenticator interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// BcryptAuthenticator is the real Authenticator implementation.
type BcryptAuthenticator struct{}

func (BcryptAuthenticator) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (BcryptAuthenticator) Verify(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// InputResolver implements spec.md §1's "URL-pattern matching + external
// CLI probe" contract: classify a raw URL into an input.Input variant.
// file:// and http(s):// are resolved to real, playable inputs; known
// third-party domains resolve to the interface-only stand-in variants
// per spec.md's non-goal on implementing those resolvers fully.
type InputResolver interface {
	Resolve(ctx context.Context, rawURL string) (input.Input, error)
}

// URLInputResolver is the real InputResolver implementation, grounded on
// the teacher's radio handler accepting arbitrary source URLs.
type URLInputResolver struct {
	YouTube      input.Resolver
	WaveDistrict input.Resolver
}

func (r URLInputResolver) Resolve(ctx context.Context, rawURL string) (input.Input, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	switch {
	case u.Scheme == "file":
		return input.File{Path: u.Path}, nil
	case strings.Contains(u.Host, "youtube.com") || strings.Contains(u.Host, "youtu.be"):
		return input.YouTube{VideoID: u.Query().Get("v"), Resolver: r.YouTube}, nil
	case strings.Contains(u.Host, "wavedistrict"):
		return input.WaveDistrict{TrackID: u.Path, Resolver: r.WaveDistrict}, nil
	case u.Scheme == "http" || u.Scheme == "https":
		return input.NetworkStream{URL: rawURL}, nil
	default:
		return input.Empty{}, nil
	}
}

// memoryUserStore is a minimal in-memory UserStore, standing in for the
// teacher's on-disk JSON store since persistence is out of scope here.
type memoryUserStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]User
	byName map[string]uuid.UUID
}

// NewMemoryUserStore creates an in-memory UserStore.
func NewMemoryUserStore() UserStore {
	return &memoryUserStore{byID: make(map[uuid.UUID]User), byName: make(map[string]uuid.UUID)}
}

func (s *memoryUserStore) Create(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[u.ID] = u
	s.byName[u.Username] = u.ID
	return nil
}

func (s *memoryUserStore) ByID(ctx context.Context, id uuid.UUID) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *memoryUserStore) ByUsername(ctx context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.byID[id], nil
}

// memoryRoomStore is the in-memory RoomStore counterpart.
type memoryRoomStore struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]Room
}

// NewMemoryRoomStore creates an in-memory RoomStore.
func NewMemoryRoomStore() RoomStore {
	return &memoryRoomStore{byID: make(map[uuid.UUID]Room)}
}

func (s *memoryRoomStore) Create(ctx context.Context, r Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.ID] = r
	return nil
}

func (s *memoryRoomStore) ByID(ctx context.Context, id uuid.UUID) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return Room{}, ErrNotFound
	}
	return r, nil
}

func (s *memoryRoomStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Room
	for _, r := range s.byID {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// memorySessionStore is the in-memory SessionStore counterpart.
type memorySessionStore struct {
	mu      sync.RWMutex
	byToken map[string]Session
}

// NewMemorySessionStore creates an in-memory SessionStore.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{byToken: make(map[string]Session)}
}

func (s *memorySessionStore) Create(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[sess.Token] = sess
	return nil
}

func (s *memorySessionStore) ByToken(ctx context.Context, token string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byToken[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	if time.Now().After(sess.ExpiresAt) {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *memorySessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, sess := range s.byToken {
		if sess.ID == id {
			delete(s.byToken, tok)
			return nil
		}
	}
	return nil
}

// memoryInviteStore is the in-memory InviteStore counterpart.
type memoryInviteStore struct {
	mu     sync.RWMutex
	byCode map[string]Invite
}

// NewMemoryInviteStore creates an in-memory InviteStore.
func NewMemoryInviteStore() InviteStore {
	return &memoryInviteStore{byCode: make(map[string]Invite)}
}

func (s *memoryInviteStore) Create(ctx context.Context, i Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCode[i.Code] = i
	return nil
}

func (s *memoryInviteStore) ByCode(ctx context.Context, code string) (Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byCode[code]
	if !ok || time.Now().After(i.ExpiresAt) {
		return Invite{}, ErrNotFound
	}
	return i, nil
}

func (s *memoryInviteStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, i := range s.byCode {
		if i.ID == id {
			delete(s.byCode, code)
			return nil
		}
	}
	return nil
}

// memoryStreamKeyStore is the in-memory StreamKeyStore counterpart.
type memoryStreamKeyStore struct {
	mu    sync.RWMutex
	byKey map[string]StreamKey
}

// NewMemoryStreamKeyStore creates an in-memory StreamKeyStore.
func NewMemoryStreamKeyStore() StreamKeyStore {
	return &memoryStreamKeyStore{byKey: make(map[string]StreamKey)}
}

func (s *memoryStreamKeyStore) Create(ctx context.Context, k StreamKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[k.Key] = k
	return nil
}

func (s *memoryStreamKeyStore) ByKey(ctx context.Context, key string) (StreamKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.byKey[key]
	if !ok {
		return StreamKey{}, ErrNotFound
	}
	return k, nil
}
