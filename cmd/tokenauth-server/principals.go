package main

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/rights"
)

var (
	errEmailTaken         = errors.New("email already taken")
	errInvalidCredentials = errors.New("incorrect email or password")
)

type account struct {
	principal tokenauth.Principal
	hash      string
	verified  bool
}

// principalStore is an in-memory principal directory with Argon2id
// credentials. It stands in for the application's user database.
type principalStore struct {
	mu      sync.RWMutex
	hasher  *password.Hasher
	byID    map[string]*account
	byEmail map[string]string
	nextID  int
}

func newPrincipalStore(hasher *password.Hasher) *principalStore {
	return &principalStore{
		hasher:  hasher,
		byID:    make(map[string]*account),
		byEmail: make(map[string]string),
		nextID:  1,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *principalStore) create(email, plain, name, role string) (*tokenauth.Principal, error) {
	if err := password.CheckPolicy(plain); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return nil, err
	}
	if role == "" {
		role = rights.RoleUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email = normalizeEmail(email)
	if _, taken := s.byEmail[email]; taken {
		return nil, errEmailTaken
	}
	id := strconv.Itoa(s.nextID)
	s.nextID++

	a := &account{
		principal: tokenauth.Principal{ID: id, Email: email, Name: name, Role: role},
		hash:      hash,
	}
	s.byID[id] = a
	s.byEmail[email] = id

	p := a.principal
	return &p, nil
}

func (s *principalStore) FindByID(_ context.Context, id string) (*tokenauth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, tokenauth.ErrPrincipalNotFound
	}
	p := a.principal
	return &p, nil
}

func (s *principalStore) FindByEmail(_ context.Context, email string) (*tokenauth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, tokenauth.ErrPrincipalNotFound
	}
	p := s.byID[id].principal
	return &p, nil
}

// authenticate checks plain against the stored hash and rehashes it when the
// stored parameters are outdated.
func (s *principalStore) authenticate(email, plain string) (*tokenauth.Principal, error) {
	s.mu.RLock()
	id, ok := s.byEmail[normalizeEmail(email)]
	var a account
	if ok {
		a = *s.byID[id]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, errInvalidCredentials
	}

	match, err := s.hasher.Verify(plain, a.hash)
	if err != nil || !match {
		return nil, errInvalidCredentials
	}
	if upgrade, _ := s.hasher.NeedsUpgrade(a.hash); upgrade {
		_ = s.setPassword(id, plain)
	}
	return &a.principal, nil
}

func (s *principalStore) setPassword(id, plain string) error {
	if err := password.CheckPolicy(plain); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return tokenauth.ErrPrincipalNotFound
	}
	a.hash = hash
	return nil
}

func (s *principalStore) markVerified(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return tokenauth.ErrPrincipalNotFound
	}
	a.verified = true
	return nil
}

func (s *principalStore) isVerified(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	return ok && a.verified
}

func (s *principalStore) list() []tokenauth.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]tokenauth.Principal, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a.principal)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out
}
