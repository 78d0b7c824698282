package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preferrrr/blocker-server/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	seedContract(t, store, "c-1", alice)
	require.NoError(t, store.Close())

	// Reopening an existing database must not fail on the schema
	store, err = OpenSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetContract(context.Background(), "c-1")
	require.NoError(t, err)
	require.NotNil(t, got, "data survives a reopen")
	assert.Equal(t, alice, got.AuthorEmail)
}

func TestSQLiteStoreContractRoundtrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	got, err := store.GetContract(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	seedContract(t, store, "c-1", alice)

	got, err = store.GetContract(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "test contract", got.Title)
	assert.Equal(t, model.StateNotProceed, got.State)
}

func TestSQLiteStoreTxRollback(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	seedContract(t, store, "c-1", alice)

	boom := errors.New("boom")
	err := store.InTx(ctx, "c-1", func(tx Tx) error {
		contract, err := tx.GetContract("c-1")
		if err != nil {
			return err
		}
		contract.Title = "should not stick"
		if err := tx.SaveContract(contract); err != nil {
			return err
		}
		if err := tx.SaveSigns([]*model.AgreementSign{model.NewAgreementSign("c-1", bob)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "test contract", got.Title)
	signs, err := store.ListSigns(ctx, "c-1")
	require.NoError(t, err)
	assert.Empty(t, signs)
}

func TestSQLiteStoreSignOrder(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	seedContract(t, store, "c-1", alice)

	err := store.InTx(ctx, "c-1", func(tx Tx) error {
		return tx.SaveSigns([]*model.AgreementSign{
			model.NewAgreementSign("c-1", carol),
			model.NewAgreementSign("c-1", alice),
			model.NewAgreementSign("c-1", bob),
		})
	})
	require.NoError(t, err)

	signs, err := store.ListSigns(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, signs, 3)
	assert.Equal(t, carol, signs[0].Email, "insertion order is preserved")
	assert.Equal(t, alice, signs[1].Email)
	assert.Equal(t, bob, signs[2].Email)
}

func TestSQLiteStoreUpdateSign(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	seedContract(t, store, "c-1", alice)

	err := store.InTx(ctx, "c-1", func(tx Tx) error {
		return tx.SaveSigns([]*model.AgreementSign{
			model.NewAgreementSign("c-1", alice),
			model.NewAgreementSign("c-1", bob),
		})
	})
	require.NoError(t, err)

	err = store.InTx(ctx, "c-1", func(tx Tx) error {
		signed := model.NewAgreementSign("c-1", bob)
		signed.State = model.SignStateY
		return tx.UpdateSign(signed)
	})
	require.NoError(t, err)

	signs, err := store.ListSigns(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, model.SignStateN, signs[0].State)
	assert.Equal(t, model.SignStateY, signs[1].State)

	// Updating a record that does not exist is a not-found, and it aborts
	// the transaction
	err = store.InTx(ctx, "c-1", func(tx Tx) error {
		ghost := model.NewAgreementSign("c-1", "nobody@test.com")
		ghost.State = model.SignStateY
		return tx.UpdateSign(ghost)
	})
	assert.True(t, model.IsKind(err, model.KindNotFound))
}

func TestSQLiteStoreDeleteContractCascades(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	seedContract(t, store, "c-1", alice)

	err := store.InTx(ctx, "c-1", func(tx Tx) error {
		if err := tx.SaveSigns([]*model.AgreementSign{model.NewAgreementSign("c-1", alice)}); err != nil {
			return err
		}
		return tx.SaveCancelSigns([]*model.CancelSign{model.NewCancelSign("c-1", alice)})
	})
	require.NoError(t, err)

	err = store.InTx(ctx, "c-1", func(tx Tx) error {
		return tx.DeleteContract("c-1")
	})
	require.NoError(t, err)

	got, err := store.GetContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	signs, _ := store.ListSigns(ctx, "c-1")
	assert.Empty(t, signs)
	cancels, _ := store.ListCancelSigns(ctx, "c-1")
	assert.Empty(t, cancels)
}

func TestSQLiteStoreListContractsByAuthor(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"c-1", "c-2"} {
		seedContract(t, store, id, alice)
		time.Sleep(5 * time.Millisecond)
	}
	seedContract(t, store, "c-3", bob)
	time.Sleep(5 * time.Millisecond)

	err := store.InTx(ctx, "c-1", func(tx Tx) error {
		contract, err := tx.GetContract("c-1")
		if err != nil {
			return err
		}
		if err := contract.Proceed(); err != nil {
			return err
		}
		return tx.SaveContract(contract)
	})
	require.NoError(t, err)

	all, err := store.ListContractsByAuthor(ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c-1", all[0].ID, "most recently updated first")

	proceeding, err := store.ListContractsByAuthor(ctx, alice, model.StateProceeding)
	require.NoError(t, err)
	require.Len(t, proceeding, 1)
	assert.Equal(t, "c-1", proceeding[0].ID)

	none, err := store.ListContractsByAuthor(ctx, carol, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStoreEngineRace(t *testing.T) {
	// The full quorum race on the durable store: the transaction that flips
	// the last record is the only one that sees all-Y and concludes.
	store := newSQLiteStore(t)
	ledger := &fakeLedger{txID: "ledger-tx-1"}
	engine := NewSignEngine(store, testIdentities(), ledger, nil, nil)
	ctx := context.Background()

	seedContract(t, store, "c-1", alice)
	require.NoError(t, engine.ProceedContract(ctx, alice, "c-1", []string{bob, carol}))
	require.NoError(t, engine.SignContract(ctx, alice, "c-1"))

	done := make(chan error, 2)
	go func() { done <- engine.SignContract(ctx, bob, "c-1") }()
	go func() { done <- engine.SignContract(ctx, carol, "c-1") }()
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	contract, err := store.GetContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateConcluded, contract.State)
	assert.Equal(t, 1, ledger.callCount())
	assert.Equal(t, "ledger-tx-1", contract.LedgerTxID)
}
