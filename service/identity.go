package service

import (
	"context"

	"github.com/preferrrr/blocker-server/config"
	"github.com/preferrrr/blocker-server/model"
)

// ConfigIdentityStore resolves identities from the config-seeded user list.
// A handle always resolves to the same identity for the process lifetime,
// which satisfies the consistency the signing engine needs per operation.
type ConfigIdentityStore struct {
	users map[string]*model.User
}

func NewConfigIdentityStore(users []config.User) *ConfigIdentityStore {
	m := make(map[string]*model.User, len(users))
	for _, u := range users {
		m[u.Email] = &model.User{Email: u.Email, Name: u.Name}
	}
	return &ConfigIdentityStore{users: m}
}

// Resolve returns the identity for the given email or NotFound.
func (s *ConfigIdentityStore) Resolve(ctx context.Context, email string) (*model.User, error) {
	u, ok := s.users[email]
	if !ok {
		return nil, model.NewNotFound("user not found: " + email)
	}
	return u, nil
}
