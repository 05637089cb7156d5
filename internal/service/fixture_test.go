package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/karteji/internal/config"
	"github.com/spec-kit/karteji/internal/directory"
	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/events"
	"github.com/spec-kit/karteji/internal/repository"
)

var errStoreDown = errors.New("store unavailable")

// flakyStore fails selected operations on demand.
type flakyStore struct {
	*docstore.MemoryStore
	mu          sync.Mutex
	failInsert  map[string]error
	failFind    map[string]error
	failUpdate  error
	failDelete  error
	updateCalls int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		MemoryStore: docstore.NewMemoryStore(),
		failInsert:  map[string]error{},
		failFind:    map[string]error{},
	}
}

func (s *flakyStore) Insert(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	s.mu.Lock()
	err := s.failInsert[collection]
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return s.MemoryStore.Insert(ctx, collection, id, fields)
}

func (s *flakyStore) Find(ctx context.Context, q docstore.Query) ([]docstore.Record, error) {
	s.mu.Lock()
	err := s.failFind[q.Collection]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.Find(ctx, q)
}

func (s *flakyStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	s.updateCalls++
	err := s.failUpdate
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.UpdateFields(ctx, collection, id, fields)
}

func (s *flakyStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	err := s.failDelete
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Delete(ctx, collection, id)
}

func (s *flakyStore) updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCalls
}

type recordedEvents struct {
	mu    sync.Mutex
	types []events.EventType
}

func (r *recordedEvents) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
	return nil
}

func (r *recordedEvents) list() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.EventType(nil), r.types...)
}

type fixture struct {
	cfg        config.Config
	store      *flakyStore
	dir        *directory.Directory
	members    repository.MemberRepository
	identities repository.IdentityRepository
	settings   repository.SettingsRepository
	dispatcher events.Dispatcher
	events     *recordedEvents
	auth       *AuthService
	membership *MembershipService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cfg: config.Config{
			App:       config.AppConfig{Name: "karteji-test"},
			Auth:      config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 5, BcryptCost: 4},
			Directory: config.DirectoryConfig{OpTimeoutSeconds: 2},
		},
		store:      newFlakyStore(),
		dispatcher: events.NewInMemoryDispatcher(),
		events:     &recordedEvents{},
	}
	f.dispatcher.SubscribeAll(f.events.handle)
	f.members = repository.NewMemberRepository(f.store)
	f.identities = repository.NewIdentityRepository(f.store)
	f.settings = repository.NewSettingsRepository(f.store)

	f.dir = directory.New(f.store, nil, nil)
	require.NoError(t, f.dir.Start(t.Context()))
	t.Cleanup(f.dir.Stop)

	f.auth = NewAuthService(f.cfg, AuthDependencies{
		MemberRepo:   f.members,
		IdentityRepo: f.identities,
		Dispatcher:   f.dispatcher,
	})
	f.membership = NewMembershipService(f.cfg, MembershipDependencies{
		MemberRepo:   f.members,
		IdentityRepo: f.identities,
		SettingsRepo: f.settings,
		Directory:    f.dir,
		Dispatcher:   f.dispatcher,
	})
	return f
}

// seed stores a member directly and waits until the directory reflects it.
func (f *fixture) seed(t *testing.T, id, name string, role domain.Role, status domain.MemberStatus) *domain.Identity {
	t.Helper()
	identity := &domain.Identity{ID: id, DisplayName: name, Email: id + "@karteji.test"}
	require.NoError(t, f.identities.Create(context.Background(), identity))
	require.NoError(t, f.members.Create(context.Background(), &domain.Member{
		ID:       id,
		Name:     name,
		Email:    identity.Email,
		Role:     role,
		Status:   status,
		JoinedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}))
	f.waitFor(t, id, func(m domain.Member, ok bool) bool { return ok && m.Status == status && m.Role == role })
	return identity
}

// seedRaw stores arbitrary member fields, bypassing validation.
func (f *fixture) seedRaw(t *testing.T, id string, fields map[string]any) {
	t.Helper()
	_, err := f.store.MemoryStore.Insert(context.Background(), repository.MembersCollection, id, fields)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.dir.Current().QuarantineError(id) != nil
	}, 2*time.Second, 5*time.Millisecond)
}

func (f *fixture) waitFor(t *testing.T, id string, cond func(domain.Member, bool) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		m, ok := f.dir.Current().Lookup(id)
		return cond(m, ok)
	}, 2*time.Second, 5*time.Millisecond)
}

func statusPtr(s domain.MemberStatus) *domain.MemberStatus { return &s }

func rolePtr(r domain.Role) *domain.Role { return &r }

func strPtr(s string) *string { return &s }
