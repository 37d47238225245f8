package repofake

import (
	"context"
	"sort"
	"sync"

	"github.com/fleetdesk/authcore/oauth"
)

var _ oauth.ClientRepo = (*FakeClientRepo)(nil)

// FakeClientRepo is an in-memory ClientRepo for tests.
type FakeClientRepo struct {
	clients map[string]*oauth.Client
	lock    sync.RWMutex
}

func NewFakeClientRepo() *FakeClientRepo {
	return &FakeClientRepo{clients: make(map[string]*oauth.Client)}
}

func (r *FakeClientRepo) Upsert(_ context.Context, client *oauth.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	clone := *client
	r.clients[client.ID] = &clone
	return nil
}

func (r *FakeClientRepo) Get(_ context.Context, clientID string) (*oauth.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, oauth.ErrClientNotFound
	}
	clone := *client
	return &clone, nil
}

func (r *FakeClientRepo) List(_ context.Context, offset, limit int) ([]*oauth.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	clients := make([]*oauth.Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].CreatedAt.Before(clients[j].CreatedAt) })
	if offset >= len(clients) {
		return nil, nil
	}
	end := offset + limit
	if end > len(clients) {
		end = len(clients)
	}
	return clients[offset:end], nil
}

var _ oauth.CodeRepo = (*FakeCodeRepo)(nil)

// FakeCodeRepo is an in-memory CodeRepo. MarkUsed holds the lock across
// the check-and-set, matching the at-most-one-success contract.
type FakeCodeRepo struct {
	codes map[string]*oauth.AuthorizationCode
	lock  sync.Mutex
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{codes: make(map[string]*oauth.AuthorizationCode)}
}

func (r *FakeCodeRepo) Insert(_ context.Context, code *oauth.AuthorizationCode) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	clone := *code
	r.codes[code.Code] = &clone
	return nil
}

func (r *FakeCodeRepo) Get(_ context.Context, code string) (*oauth.AuthorizationCode, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	record, ok := r.codes[code]
	if !ok {
		return nil, oauth.ErrCodeNotFound
	}
	clone := *record
	return &clone, nil
}

func (r *FakeCodeRepo) MarkUsed(_ context.Context, code string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	record, ok := r.codes[code]
	if !ok {
		return oauth.ErrCodeNotFound
	}
	if record.Used {
		return oauth.ErrCodeAlreadyUsed
	}
	record.Used = true
	return nil
}

var _ oauth.TokenRepo = (*FakeTokenRepo)(nil)

// FakeTokenRepo is an in-memory TokenRepo for tests.
type FakeTokenRepo struct {
	access  map[string]*oauth.AccessToken
	refresh map[string]*oauth.RefreshToken
	lock    sync.Mutex
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		access:  make(map[string]*oauth.AccessToken),
		refresh: make(map[string]*oauth.RefreshToken),
	}
}

func (r *FakeTokenRepo) InsertAccess(_ context.Context, token *oauth.AccessToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	clone := *token
	r.access[token.TokenHash] = &clone
	return nil
}

func (r *FakeTokenRepo) InsertRefresh(_ context.Context, token *oauth.RefreshToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	clone := *token
	r.refresh[token.TokenHash] = &clone
	return nil
}

func (r *FakeTokenRepo) GetAccess(_ context.Context, tokenHash string) (*oauth.AccessToken, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	token, ok := r.access[tokenHash]
	if !ok {
		return nil, oauth.ErrTokenNotFound
	}
	clone := *token
	return &clone, nil
}

func (r *FakeTokenRepo) GetRefresh(_ context.Context, tokenHash string) (*oauth.RefreshToken, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	token, ok := r.refresh[tokenHash]
	if !ok {
		return nil, oauth.ErrTokenNotFound
	}
	clone := *token
	return &clone, nil
}

func (r *FakeTokenRepo) RevokeAccess(_ context.Context, tokenHash string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if token, ok := r.access[tokenHash]; ok {
		token.Revoked = true
	}
	return nil
}

func (r *FakeTokenRepo) RevokeRefresh(_ context.Context, tokenHash string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if token, ok := r.refresh[tokenHash]; ok {
		token.Revoked = true
	}
	return nil
}
