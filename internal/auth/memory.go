package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"outpass.org/internal/ids"
)

// InMemory implements AuthorityStore and UserStore with in-process
// concurrency safety. Used for tests and DSN-less development runs; the
// Postgres store is the durable implementation.
type InMemory struct {
	mu      sync.RWMutex
	catalog map[string]Permission       // name -> permission
	users   map[string]User             // id -> user
	grants  map[string]map[string]Grant // user id -> permission name -> grant
}

var (
	_ AuthorityStore = (*InMemory)(nil)
	_ UserStore      = (*InMemory)(nil)
)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		catalog: make(map[string]Permission),
		users:   make(map[string]User),
		grants:  make(map[string]map[string]Grant),
	}
}

func (s *InMemory) Grants(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.grants[userID]))
	for name := range s.grants[userID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *InMemory) Grant(ctx context.Context, userID, name, grantedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.catalog[name]; !ok {
		return fmt.Errorf("%w: permission %s is not cataloged", ErrNotFound, name)
	}
	byUser, ok := s.grants[userID]
	if !ok {
		byUser = make(map[string]Grant)
		s.grants[userID] = byUser
	}
	if _, exists := byUser[name]; exists {
		return nil
	}
	byUser[name] = Grant{
		UserID:     userID,
		Permission: name,
		GrantedBy:  grantedBy,
		GrantedAt:  time.Now().UTC(),
	}
	return nil
}

func (s *InMemory) Revoke(ctx context.Context, userID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.grants[userID]
	if !ok {
		return false, nil
	}
	if _, exists := byUser[name]; !exists {
		return false, nil
	}
	delete(byUser, name)
	return true, nil
}

func (s *InMemory) ReplaceAll(ctx context.Context, userID string, names []string, grantedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Validate the whole set before touching anything so the swap stays
	// all-or-nothing.
	for _, name := range names {
		if _, ok := s.catalog[name]; !ok {
			return fmt.Errorf("%w: permission %s is not cataloged", ErrNotFound, name)
		}
	}
	next := make(map[string]Grant, len(names))
	now := time.Now().UTC()
	for _, name := range names {
		next[name] = Grant{UserID: userID, Permission: name, GrantedBy: grantedBy, GrantedAt: now}
	}
	s.grants[userID] = next
	return nil
}

func (s *InMemory) ListUsersWithGrants(ctx context.Context) ([]UserGrants, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]UserGrants, 0, len(s.users))
	for id, user := range s.users {
		names := make([]string, 0, len(s.grants[id]))
		for name := range s.grants[id] {
			names = append(names, name)
		}
		sort.Strings(names)
		result = append(result, UserGrants{
			UserID:      id,
			DisplayName: user.DisplayName(),
			Active:      user.Active,
			Permissions: names,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DisplayName < result[j].DisplayName })
	return result, nil
}

func (s *InMemory) ListPermissions(ctx context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perms := make([]Permission, 0, len(s.catalog))
	for _, p := range s.catalog {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

func (s *InMemory) AddPermission(ctx context.Context, name, description string) (Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.catalog[name]; ok {
		return Permission{}, fmt.Errorf("%w: permission %s already exists", ErrConflict, name)
	}
	perm := Permission{
		ID:          ids.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	s.catalog[name] = perm
	return perm, nil
}

func (s *InMemory) EnsurePermissions(ctx context.Context, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		if _, ok := s.catalog[p.Name]; ok {
			continue
		}
		s.catalog[p.Name] = Permission{
			ID:          ids.New(),
			Name:        p.Name,
			Description: p.Description,
			CreatedAt:   time.Now().UTC(),
		}
	}
	return nil
}

func (s *InMemory) CreateUser(ctx context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return User{}, ErrConflict
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *InMemory) GetUser(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *InMemory) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if upd.Rank != nil {
		user.Rank = *upd.Rank
	}
	if upd.FirstName != nil {
		user.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = *upd.LastName
	}
	if upd.Active != nil {
		user.Active = *upd.Active
	}
	if upd.Password != nil {
		user.PasswordHash = *upd.Password
	}
	if upd.PIN != nil {
		user.PINHash = *upd.PIN
	}
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return user, nil
}

func (s *InMemory) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	delete(s.grants, id)
	return nil
}
