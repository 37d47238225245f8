package repofake

import (
	"context"
	"sync"

	"github.com/fleetdesk/authcore/permissions"
)

var _ permissions.UserDirectory = (*FakeDirectory)(nil)

// FakeDirectory is an in-memory UserDirectory for tests.
type FakeDirectory struct {
	users map[int64]*permissions.DirectoryUser
	lock  sync.RWMutex
}

func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{users: make(map[int64]*permissions.DirectoryUser)}
}

func (d *FakeDirectory) Add(user *permissions.DirectoryUser) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.users[user.ID] = user
}

func (d *FakeDirectory) FindUserByID(_ context.Context, id int64) (*permissions.DirectoryUser, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	user, ok := d.users[id]
	if !ok {
		return nil, permissions.ErrUserNotFound
	}
	return user, nil
}

var _ permissions.RoleRepo = (*FakeRoleRepo)(nil)

// FakeRoleRepo is an in-memory RoleRepo for tests.
type FakeRoleRepo struct {
	roles map[string]*permissions.Role
	names map[string]string // role name to role ID
	lock  sync.RWMutex
}

func NewFakeRoleRepo() *FakeRoleRepo {
	return &FakeRoleRepo{
		roles: make(map[string]*permissions.Role),
		names: make(map[string]string),
	}
}

func (r *FakeRoleRepo) Add(role *permissions.Role) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.roles[role.ID] = role
	r.names[role.Name] = role.ID
}

func (r *FakeRoleRepo) FindRolesByIDs(_ context.Context, ids []string) ([]*permissions.Role, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	roles := make([]*permissions.Role, 0, len(ids))
	for _, id := range ids {
		if role, ok := r.roles[id]; ok {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (r *FakeRoleRepo) FindRoleByName(_ context.Context, name string) (*permissions.Role, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.names[name]
	if !ok {
		return nil, permissions.ErrRoleNotFound
	}
	return r.roles[id], nil
}
