package service

import (
	"context"

	"github.com/preferrrr/blocker-server/model"
)

// Tx is the set of operations available inside a per-contract transaction.
// A contract and its sign records form one consistency unit: every mutation
// of either goes through a Tx obtained from Store.InTx, never directly.
//
// Missing contracts are reported as (nil, nil) so callers decide the error.
type Tx interface {
	GetContract(id string) (*model.Contract, error)
	SaveContract(c *model.Contract) error
	DeleteContract(id string) error

	SignsExist(contractID string) (bool, error)
	ListSigns(contractID string) ([]*model.AgreementSign, error)
	SaveSigns(signs []*model.AgreementSign) error
	UpdateSign(sign *model.AgreementSign) error
	DeleteSigns(contractID string) error

	CancelSignsExist(contractID string) (bool, error)
	ListCancelSigns(contractID string) ([]*model.CancelSign, error)
	SaveCancelSigns(signs []*model.CancelSign) error
	UpdateCancelSign(sign *model.CancelSign) error
	DeleteCancelSigns(contractID string) error
}

// Store provides transactional access to contracts and their sign records.
//
// InTx runs fn as a single all-or-nothing unit. Transactions touching the
// same contract ID are serialized with respect to each other, so the
// signed-state checks and the all-signed quorum check inside fn always see a
// committed snapshot and at most one transaction can win a state transition.
type Store interface {
	InTx(ctx context.Context, contractID string, fn func(tx Tx) error) error

	GetContract(ctx context.Context, id string) (*model.Contract, error)
	ListContractsByAuthor(ctx context.Context, email, state string) ([]*model.Contract, error)
	ListSigns(ctx context.Context, contractID string) ([]*model.AgreementSign, error)
	ListCancelSigns(ctx context.Context, contractID string) ([]*model.CancelSign, error)

	Close() error
}

// IdentityStore resolves participant handles to known identities.
type IdentityStore interface {
	Resolve(ctx context.Context, email string) (*model.User, error)
}
