package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/Piyushhbhutoria/memory-wall/internal/domain"
	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	pstorage "github.com/Piyushhbhutoria/memory-wall/internal/platform/storage"
	"github.com/Piyushhbhutoria/memory-wall/internal/repositories"
)

type fakeRepoError struct {
	notFound    bool
	unavailable bool
}

func (e fakeRepoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.unavailable:
		return "unavailable"
	}
	return "repository error"
}

func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return false }
func (e fakeRepoError) IsUnavailable() bool { return e.unavailable }

var errFakeNotFound = fakeRepoError{notFound: true}

type fakeWallRepo struct {
	mu        sync.Mutex
	walls     map[string]domain.Wall
	updates   []repositories.WallUpdate
	deleted   []string
	insertErr error
}

func newFakeWallRepo(walls ...domain.Wall) *fakeWallRepo {
	repo := &fakeWallRepo{walls: map[string]domain.Wall{}}
	for _, wall := range walls {
		repo.walls[wall.ID] = wall
	}
	return repo
}

func (r *fakeWallRepo) Insert(_ context.Context, wall domain.Wall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.walls[wall.ID] = wall
	return nil
}

func (r *fakeWallRepo) FindByID(_ context.Context, wallID string) (domain.Wall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wall, ok := r.walls[wallID]
	if !ok {
		return domain.Wall{}, errFakeNotFound
	}
	return wall, nil
}

func (r *fakeWallRepo) ListByHost(_ context.Context, hostUID string, _ domain.Pagination) (domain.CursorPage[domain.Wall], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Wall
	for _, wall := range r.walls {
		if wall.HostUserID == hostUID {
			items = append(items, wall)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.Wall]{Items: items}, nil
}

func (r *fakeWallRepo) Update(_ context.Context, wallID string, update repositories.WallUpdate) (domain.Wall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wall, ok := r.walls[wallID]
	if !ok {
		return domain.Wall{}, errFakeNotFound
	}
	if update.ThemeColor != nil {
		wall.ThemeColor = *update.ThemeColor
	}
	if update.IsActive != nil {
		wall.IsActive = *update.IsActive
	}
	r.walls[wallID] = wall
	r.updates = append(r.updates, update)
	return wall, nil
}

func (r *fakeWallRepo) Delete(_ context.Context, wallID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.walls[wallID]; !ok {
		return errFakeNotFound
	}
	delete(r.walls, wallID)
	r.deleted = append(r.deleted, wallID)
	return nil
}

func (r *fakeWallRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Wall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Wall
	for _, wall := range r.walls {
		if wall.IsActive && !wall.ExpiresAt.After(now) {
			items = append(items, wall)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// fakeMemoryRepo shares the wall map so InsertIntoWall can apply the capacity check.
type fakeMemoryRepo struct {
	walls    *fakeWallRepo
	mu       sync.Mutex
	memories map[string]domain.Memory
}

func newFakeMemoryRepo(walls *fakeWallRepo) *fakeMemoryRepo {
	return &fakeMemoryRepo{walls: walls, memories: map[string]domain.Memory{}}
}

func (r *fakeMemoryRepo) InsertIntoWall(_ context.Context, memory domain.Memory, now time.Time) (domain.Memory, error) {
	r.walls.mu.Lock()
	defer r.walls.mu.Unlock()
	wall, ok := r.walls.walls[memory.WallID]
	if !ok {
		return domain.Memory{}, repositories.NewWallError(repositories.WallErrorNotFound, memory.WallID, "")
	}
	if !wall.AcceptsContributions(now) {
		return domain.Memory{}, repositories.NewWallError(repositories.WallErrorInactive, memory.WallID, "")
	}
	if wall.IsFull() {
		return domain.Memory{}, repositories.NewWallError(repositories.WallErrorFull, memory.WallID, "")
	}
	wall.MemoryCount++
	r.walls.walls[wall.ID] = wall

	r.mu.Lock()
	r.memories[memory.ID] = memory
	r.mu.Unlock()
	return memory, nil
}

func (r *fakeMemoryRepo) FindByID(_ context.Context, memoryID string) (domain.Memory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	memory, ok := r.memories[memoryID]
	if !ok {
		return domain.Memory{}, errFakeNotFound
	}
	return memory, nil
}

func (r *fakeMemoryRepo) ListByWall(_ context.Context, wallID string, _ domain.Pagination) (domain.CursorPage[domain.Memory], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Memory
	for _, memory := range r.memories {
		if memory.WallID == wallID {
			items = append(items, memory)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.Memory]{Items: items}, nil
}

func (r *fakeMemoryRepo) DeleteByWall(_ context.Context, wallID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, memory := range r.memories {
		if memory.WallID == wallID {
			delete(r.memories, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeCommentRepo struct {
	mu       sync.Mutex
	comments []domain.Comment
}

func (r *fakeCommentRepo) Insert(_ context.Context, comment domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments = append(r.comments, comment)
	return nil
}

func (r *fakeCommentRepo) ListByMemory(_ context.Context, memoryID string, limit int) ([]domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Comment
	for _, comment := range r.comments {
		if comment.MemoryID == memoryID && len(items) < limit {
			items = append(items, comment)
		}
	}
	return items, nil
}

type fakeReactionRepo struct {
	mu        sync.Mutex
	reactions map[string]domain.Reaction
}

func newFakeReactionRepo() *fakeReactionRepo {
	return &fakeReactionRepo{reactions: map[string]domain.Reaction{}}
}

func (r *fakeReactionRepo) Upsert(_ context.Context, reaction domain.Reaction) (domain.Reaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reaction.ID = repositories.ReactionID(reaction.MemoryID, reaction.Emoji, reaction.AuthorFingerprint)
	if existing, ok := r.reactions[reaction.ID]; ok {
		return existing, false, nil
	}
	r.reactions[reaction.ID] = reaction
	return reaction, true, nil
}

func (r *fakeReactionRepo) ListByMemory(_ context.Context, memoryID string) ([]domain.Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Reaction
	for _, reaction := range r.reactions {
		if reaction.MemoryID == memoryID {
			items = append(items, reaction)
		}
	}
	return items, nil
}

type fakeSecurityEventRepo struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
	err    error
}

func (r *fakeSecurityEventRepo) Insert(_ context.Context, event domain.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

type recordingSecurity struct {
	mu     sync.Mutex
	events []SecurityEvent
}

func (r *recordingSecurity) Record(_ context.Context, event SecurityEvent) (SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return event, nil
}

func (r *recordingSecurity) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.EventType)
	}
	return out
}

type fakeMediaStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	prefixes []string
	putErr   error
}

func newFakeMediaStore() *fakeMediaStore {
	return &fakeMediaStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeMediaStore) Put(_ context.Context, objectPath, contentType string, body io.Reader) (pstorage.StoredObject, error) {
	if s.putErr != nil {
		return pstorage.StoredObject{}, s.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return pstorage.StoredObject{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectPath] = buf.Bytes()
	s.types[objectPath] = contentType
	return pstorage.StoredObject{
		Bucket: "media",
		Path:   objectPath,
		URL:    "https://cdn.example.test/" + objectPath,
		Size:   int64(buf.Len()),
	}, nil
}

func (s *fakeMediaStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixes = append(s.prefixes, prefix)
	deleted := 0
	for path := range s.objects {
		if strings.HasPrefix(path, prefix) {
			delete(s.objects, path)
			deleted++
		}
	}
	return deleted, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []SecurityEventMessage
	err      error
}

func (p *fakePublisher) PublishSecurityEvent(_ context.Context, message SecurityEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, message)
	return "msg-1", nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []SecurityEventMessage
	err      error
}

func (n *fakeNotifier) NotifySecurityEvent(_ context.Context, message SecurityEventMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, message)
	return nil
}

// flushReports waits for the security reports a visitor write service dispatched.
func flushReports(svc any) {
	switch s := svc.(type) {
	case *memoryService:
		s.guard.wait()
	case *engagementService:
		s.guard.wait()
	case *mediaService:
		s.guard.wait()
	}
}

func newTestLimiter(now func() time.Time) *guard.RateLimiter {
	return guard.NewRateLimiter(guard.WithClock(now))
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + string(rune('a'+n-1))
	}
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func openWall(id, host string, now time.Time) domain.Wall {
	return domain.Wall{
		ID:          id,
		Name:        "Reunion",
		ThemeColor:  "#3b82f6",
		HostUserID:  host,
		CreatedAt:   now.Add(-time.Hour),
		ExpiresAt:   now.Add(24 * time.Hour),
		MaxMemories: 50,
		IsActive:    true,
	}
}

var errBoom = errors.New("boom")
