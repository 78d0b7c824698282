package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/preferrrr/blocker-server/model"
)

// MemoryStore is an in-memory Store. Data lives for the process lifetime;
// use the sqlite driver for durability.
//
// Each contract ID has its own lock, so transactions for different contracts
// run concurrently while transactions for the same contract are serialized.
type MemoryStore struct {
	mu          sync.RWMutex
	contracts   map[string]*model.Contract
	signs       map[string][]*model.AgreementSign
	cancelSigns map[string][]*model.CancelSign

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contracts:   make(map[string]*model.Contract),
		signs:       make(map[string][]*model.AgreementSign),
		cancelSigns: make(map[string][]*model.CancelSign),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) contractLock(contractID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[contractID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[contractID] = l
	}
	return l
}

// InTx serializes on the contract's lock and stages all changes; nothing is
// visible to readers until fn returns nil.
func (s *MemoryStore) InTx(ctx context.Context, contractID string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.contractLock(contractID)
	l.Lock()
	defer l.Unlock()

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, nil
	}
	return copyContract(c), nil
}

func (s *MemoryStore) ListContractsByAuthor(ctx context.Context, email, state string) ([]*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*model.Contract{}
	for _, c := range s.contracts {
		if c.AuthorEmail == email && (state == "" || c.State == state) {
			result = append(result, copyContract(c))
		}
	}
	// Most recently modified first
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *MemoryStore) ListSigns(ctx context.Context, contractID string) ([]*model.AgreementSign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySigns(s.signs[contractID]), nil
}

func (s *MemoryStore) ListCancelSigns(ctx context.Context, contractID string) ([]*model.CancelSign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyCancelSigns(s.cancelSigns[contractID]), nil
}

func (s *MemoryStore) Close() error { return nil }

// memTx stages changes against private copies and writes them back on commit
type memTx struct {
	store *MemoryStore

	contract        *model.Contract
	contractID      string
	contractLoaded  bool
	contractDirty   bool
	contractDeleted bool

	signs       []*model.AgreementSign
	signsID     string
	signsLoaded bool
	signsDirty  bool

	cancels       []*model.CancelSign
	cancelsID     string
	cancelsLoaded bool
	cancelsDirty  bool
}

func (t *memTx) GetContract(id string) (*model.Contract, error) {
	if t.contractLoaded && t.contractID == id {
		return t.contract, nil
	}
	t.store.mu.RLock()
	c, ok := t.store.contracts[id]
	t.store.mu.RUnlock()

	t.contractID = id
	t.contractLoaded = true
	if !ok {
		t.contract = nil
		return nil, nil
	}
	t.contract = copyContract(c)
	return t.contract, nil
}

func (t *memTx) SaveContract(c *model.Contract) error {
	t.contract = c
	t.contractID = c.ID
	t.contractLoaded = true
	t.contractDirty = true
	t.contractDeleted = false
	return nil
}

func (t *memTx) DeleteContract(id string) error {
	t.contractID = id
	t.contractLoaded = true
	t.contract = nil
	t.contractDeleted = true
	return nil
}

func (t *memTx) loadSigns(contractID string) {
	if t.signsLoaded && t.signsID == contractID {
		return
	}
	t.store.mu.RLock()
	t.signs = copySigns(t.store.signs[contractID])
	t.store.mu.RUnlock()
	t.signsID = contractID
	t.signsLoaded = true
}

func (t *memTx) SignsExist(contractID string) (bool, error) {
	t.loadSigns(contractID)
	return len(t.signs) > 0, nil
}

func (t *memTx) ListSigns(contractID string) ([]*model.AgreementSign, error) {
	t.loadSigns(contractID)
	return t.signs, nil
}

func (t *memTx) SaveSigns(signs []*model.AgreementSign) error {
	if len(signs) == 0 {
		return nil
	}
	t.loadSigns(signs[0].ContractID)
	t.signs = append(t.signs, signs...)
	t.signsDirty = true
	return nil
}

func (t *memTx) UpdateSign(sign *model.AgreementSign) error {
	t.loadSigns(sign.ContractID)
	for i, s := range t.signs {
		if s.Email == sign.Email {
			t.signs[i] = sign
			t.signsDirty = true
			return nil
		}
	}
	return model.NewNotFound("sign record not found: " + sign.ContractID + ", " + sign.Email)
}

func (t *memTx) DeleteSigns(contractID string) error {
	t.loadSigns(contractID)
	t.signs = nil
	t.signsDirty = true
	return nil
}

func (t *memTx) loadCancels(contractID string) {
	if t.cancelsLoaded && t.cancelsID == contractID {
		return
	}
	t.store.mu.RLock()
	t.cancels = copyCancelSigns(t.store.cancelSigns[contractID])
	t.store.mu.RUnlock()
	t.cancelsID = contractID
	t.cancelsLoaded = true
}

func (t *memTx) CancelSignsExist(contractID string) (bool, error) {
	t.loadCancels(contractID)
	return len(t.cancels) > 0, nil
}

func (t *memTx) ListCancelSigns(contractID string) ([]*model.CancelSign, error) {
	t.loadCancels(contractID)
	return t.cancels, nil
}

func (t *memTx) SaveCancelSigns(signs []*model.CancelSign) error {
	if len(signs) == 0 {
		return nil
	}
	t.loadCancels(signs[0].ContractID)
	t.cancels = append(t.cancels, signs...)
	t.cancelsDirty = true
	return nil
}

func (t *memTx) UpdateCancelSign(sign *model.CancelSign) error {
	t.loadCancels(sign.ContractID)
	for i, s := range t.cancels {
		if s.Email == sign.Email {
			t.cancels[i] = sign
			t.cancelsDirty = true
			return nil
		}
	}
	return model.NewNotFound("cancel sign record not found: " + sign.ContractID + ", " + sign.Email)
}

func (t *memTx) DeleteCancelSigns(contractID string) error {
	t.loadCancels(contractID)
	t.cancels = nil
	t.cancelsDirty = true
	return nil
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if t.contractDeleted {
		delete(t.store.contracts, t.contractID)
		delete(t.store.signs, t.contractID)
		delete(t.store.cancelSigns, t.contractID)
	} else if t.contractDirty {
		t.contract.UpdatedAt = time.Now()
		t.store.contracts[t.contract.ID] = copyContract(t.contract)
	}

	if t.signsDirty && !t.contractDeleted {
		if len(t.signs) == 0 {
			delete(t.store.signs, t.signsID)
		} else {
			t.store.signs[t.signsID] = copySigns(t.signs)
		}
	}
	if t.cancelsDirty && !t.contractDeleted {
		if len(t.cancels) == 0 {
			delete(t.store.cancelSigns, t.cancelsID)
		} else {
			t.store.cancelSigns[t.cancelsID] = copyCancelSigns(t.cancels)
		}
	}
}

func copyContract(c *model.Contract) *model.Contract {
	cp := *c
	return &cp
}

func copySigns(signs []*model.AgreementSign) []*model.AgreementSign {
	if signs == nil {
		return nil
	}
	out := make([]*model.AgreementSign, len(signs))
	for i, s := range signs {
		cp := *s
		out[i] = &cp
	}
	return out
}

func copyCancelSigns(signs []*model.CancelSign) []*model.CancelSign {
	if signs == nil {
		return nil
	}
	out := make([]*model.CancelSign, len(signs))
	for i, s := range signs {
		cp := *s
		out[i] = &cp
	}
	return out
}
