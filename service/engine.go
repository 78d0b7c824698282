package service

import (
	"context"
	"log/slog"

	"github.com/preferrrr/blocker-server/model"
)

// Ledger records concluded contracts downstream. Submit returns the ledger
// transaction ID.
type Ledger interface {
	Submit(ctx context.Context, contract *model.Contract, signs []*model.AgreementSign) (string, error)
}

// Notifier announces a new signing round (chat-room provisioning hook)
type Notifier interface {
	NotifyProceed(ctx context.Context, initiator string, contractors []string, contractID string) error
}

// Archiver stores immutable snapshots of concluded contracts
type Archiver interface {
	StoreSnapshot(ctx context.Context, contract *model.Contract, signs []*model.AgreementSign) error
}

// SignEngine orchestrates the agreement-signing protocol: proposing a
// contract to a set of participants, collecting their signatures, detecting
// when everyone has signed, and cancelling mid-flight or after conclusion.
//
// Only the engine mutates a contract's state or its sign records, and always
// through a Store transaction, so the contract and its record set stay
// mutually consistent.
type SignEngine struct {
	store    Store
	ids      IdentityStore
	ledger   Ledger
	notifier Notifier
	archiver Archiver
}

func NewSignEngine(store Store, ids IdentityStore, ledger Ledger, notifier Notifier, archiver Archiver) *SignEngine {
	return &SignEngine{
		store:    store,
		ids:      ids,
		ledger:   ledger,
		notifier: notifier,
		archiver: archiver,
	}
}

// ProceedContract sends a drafted contract out for signatures. One sign
// record is created for the caller and one for every contractor; the whole
// record set is created atomically with the NOT_PROCEED -> PROCEEDING flip,
// or not at all.
func (e *SignEngine) ProceedContract(ctx context.Context, me string, contractID string, contractorEmails []string) error {
	contractors := dedupeEmails(contractorEmails, me)
	if len(contractors) == 0 {
		return model.NewInvalidState("no contractors: " + contractID)
	}

	// Every contractor must be a known identity before anything is written.
	// Contractors are picked from a search UI, but a contract must not end
	// up with an unresolvable participant, so they are verified anyway.
	for _, email := range contractors {
		if _, err := e.ids.Resolve(ctx, email); err != nil {
			return err
		}
	}

	err := e.store.InTx(ctx, contractID, func(tx Tx) error {
		contract, err := tx.GetContract(contractID)
		if err != nil {
			return err
		}
		if contract == nil {
			return model.NewNotFound("contract not found: " + contractID)
		}

		if !contract.IsAuthor(me) {
			return model.NewForbidden("not the contract author: " + contractID + ", " + me)
		}

		exists, err := tx.SignsExist(contractID)
		if err != nil {
			return err
		}
		if exists {
			return model.NewConflict("contract already proceeding: " + contractID)
		}

		if err := contract.Proceed(); err != nil {
			return err
		}
		if err := tx.SaveContract(contract); err != nil {
			return err
		}

		// The caller participates too and signs later like everyone else
		signs := make([]*model.AgreementSign, 0, len(contractors)+1)
		signs = append(signs, model.NewAgreementSign(contractID, me))
		for _, email := range contractors {
			signs = append(signs, model.NewAgreementSign(contractID, email))
		}
		return tx.SaveSigns(signs)
	})
	if err != nil {
		return err
	}

	slog.Info("contract proceeding",
		"contract_id", contractID,
		"initiator", me,
		"contractors", len(contractors),
	)

	// Chat-room provisioning is best-effort and must not affect the commit
	if e.notifier != nil {
		go func() {
			if err := e.notifier.NotifyProceed(context.Background(), me, contractors, contractID); err != nil {
				slog.Warn("proceed notification failed",
					"contract_id", contractID,
					"error", err,
				)
			}
		}()
	}

	return nil
}

// SignContract records the caller's signature. When the last outstanding
// record flips to Y the contract concludes and is submitted to the ledger.
// The conclusion happens inside the same transaction as the flip, so two
// signers racing to be last produce exactly one conclusion.
func (e *SignEngine) SignContract(ctx context.Context, me string, contractID string) error {
	var (
		concluded bool
		contract  *model.Contract
		signs     []*model.AgreementSign
	)

	err := e.store.InTx(ctx, contractID, func(tx Tx) error {
		concluded = false

		var err error
		signs, err = tx.ListSigns(contractID)
		if err != nil {
			return err
		}
		if len(signs) < 2 {
			return model.NewNotFound("no signing in progress: " + contractID + ", " + me)
		}

		var mine *model.AgreementSign
		for _, s := range signs {
			if s.Email == me {
				mine = s
				break
			}
		}
		if mine == nil {
			return model.NewNotFound("not a contractor: " + contractID + ", " + me)
		}

		// Conflict if the caller already signed in this round
		if err := mine.Sign(); err != nil {
			return err
		}
		if err := tx.UpdateSign(mine); err != nil {
			return err
		}

		allSigned := true
		for _, s := range signs {
			if !s.Signed() {
				allSigned = false
				break
			}
		}
		if !allSigned {
			return nil
		}

		contract, err = tx.GetContract(contractID)
		if err != nil {
			return err
		}
		if contract == nil {
			return model.NewNotFound("contract not found: " + contractID)
		}
		if err := contract.Conclude(); err != nil {
			return err
		}
		if err := tx.SaveContract(contract); err != nil {
			return err
		}
		concluded = true
		return nil
	})
	if err != nil {
		return err
	}

	if !concluded {
		slog.Info("contract signed", "contract_id", contractID, "email", me)
		return nil
	}

	slog.Info("contract concluded", "contract_id", contractID, "last_signer", me)
	e.submitToLedger(ctx, contract, signs)
	return nil
}

// submitToLedger runs once per conclusion; the committing transaction above
// is the single winner of the quorum race.
func (e *SignEngine) submitToLedger(ctx context.Context, contract *model.Contract, signs []*model.AgreementSign) {
	if e.ledger != nil {
		txID, err := e.ledger.Submit(ctx, contract, signs)
		if err != nil {
			// The conclusion stands; reverting it would break the
			// all-signed invariant. The missing tx id is visible to
			// operators via the contract record.
			slog.Error("ledger submission failed",
				"contract_id", contract.ID,
				"error", err,
			)
		} else {
			contract.LedgerTxID = txID
			saveErr := e.store.InTx(ctx, contract.ID, func(tx Tx) error {
				c, err := tx.GetContract(contract.ID)
				if err != nil {
					return err
				}
				if c == nil {
					return model.NewNotFound("contract not found: " + contract.ID)
				}
				c.LedgerTxID = txID
				return tx.SaveContract(c)
			})
			if saveErr != nil {
				slog.Error("failed to record ledger tx id",
					"contract_id", contract.ID,
					"ledger_tx_id", txID,
					"error", saveErr,
				)
			}
			slog.Info("contract recorded on ledger",
				"contract_id", contract.ID,
				"ledger_tx_id", txID,
			)
		}
	}

	if e.archiver != nil {
		if err := e.archiver.StoreSnapshot(ctx, contract, signs); err != nil {
			slog.Warn("snapshot archival failed",
				"contract_id", contract.ID,
				"error", err,
			)
		}
	}
}

// BreakContract cancels a proceeding contract unilaterally. All sign records
// are discarded and the contract returns to the draft state; partial
// signatures do not survive into a future round.
func (e *SignEngine) BreakContract(ctx context.Context, me string, contractID string) error {
	err := e.store.InTx(ctx, contractID, func(tx Tx) error {
		contract, err := tx.GetContract(contractID)
		if err != nil {
			return err
		}
		if contract == nil {
			return model.NewNotFound("contract not found: " + contractID)
		}

		if contract.State != model.StateProceeding {
			return model.NewInvalidState("contract is not proceeding: " + contractID)
		}

		signs, err := tx.ListSigns(contractID)
		if err != nil {
			return err
		}
		isContractor := false
		for _, s := range signs {
			if s.Email == me {
				isContractor = true
				break
			}
		}
		if !isContractor {
			return model.NewForbidden("not a contractor: " + contractID + ", " + me)
		}

		if err := contract.Revert(); err != nil {
			return err
		}
		if err := tx.SaveContract(contract); err != nil {
			return err
		}
		return tx.DeleteSigns(contractID)
	})
	if err != nil {
		return err
	}

	slog.Info("contract broken", "contract_id", contractID, "email", me)
	return nil
}

// ProposeCancel starts an all-party cancellation of a concluded contract.
// One consent record is created per original participant; the proposer signs
// afterwards like everyone else.
func (e *SignEngine) ProposeCancel(ctx context.Context, me string, contractID string) error {
	err := e.store.InTx(ctx, contractID, func(tx Tx) error {
		contract, err := tx.GetContract(contractID)
		if err != nil {
			return err
		}
		if contract == nil {
			return model.NewNotFound("contract not found: " + contractID)
		}

		if contract.State != model.StateConcluded {
			return model.NewInvalidState("contract is not concluded: " + contractID)
		}

		signs, err := tx.ListSigns(contractID)
		if err != nil {
			return err
		}
		isContractor := false
		for _, s := range signs {
			if s.Email == me {
				isContractor = true
				break
			}
		}
		if !isContractor {
			return model.NewForbidden("not a contractor: " + contractID + ", " + me)
		}

		exists, err := tx.CancelSignsExist(contractID)
		if err != nil {
			return err
		}
		if exists {
			return model.NewConflict("cancellation already proposed: " + contractID)
		}

		cancels := make([]*model.CancelSign, 0, len(signs))
		for _, s := range signs {
			cancels = append(cancels, model.NewCancelSign(contractID, s.Email))
		}
		return tx.SaveCancelSigns(cancels)
	})
	if err != nil {
		return err
	}

	slog.Info("cancellation proposed", "contract_id", contractID, "email", me)
	return nil
}

// SignCancel records the caller's consent to cancel. When every participant
// has consented the contract reverts to the draft state and both record sets
// are deleted.
func (e *SignEngine) SignCancel(ctx context.Context, me string, contractID string) error {
	var unwound bool

	err := e.store.InTx(ctx, contractID, func(tx Tx) error {
		unwound = false

		cancels, err := tx.ListCancelSigns(contractID)
		if err != nil {
			return err
		}
		if len(cancels) < 2 {
			return model.NewNotFound("no cancellation in progress: " + contractID + ", " + me)
		}

		var mine *model.CancelSign
		for _, s := range cancels {
			if s.Email == me {
				mine = s
				break
			}
		}
		if mine == nil {
			return model.NewNotFound("not a contractor: " + contractID + ", " + me)
		}

		if err := mine.Sign(); err != nil {
			return err
		}
		if err := tx.UpdateCancelSign(mine); err != nil {
			return err
		}

		for _, s := range cancels {
			if !s.Signed() {
				return nil
			}
		}

		contract, err := tx.GetContract(contractID)
		if err != nil {
			return err
		}
		if contract == nil {
			return model.NewNotFound("contract not found: " + contractID)
		}
		if err := contract.Revert(); err != nil {
			return err
		}
		if err := tx.SaveContract(contract); err != nil {
			return err
		}
		if err := tx.DeleteSigns(contractID); err != nil {
			return err
		}
		if err := tx.DeleteCancelSigns(contractID); err != nil {
			return err
		}
		unwound = true
		return nil
	})
	if err != nil {
		return err
	}

	if unwound {
		slog.Info("contract cancelled by all parties", "contract_id", contractID, "last_signer", me)
	} else {
		slog.Info("cancellation signed", "contract_id", contractID, "email", me)
	}
	return nil
}

// ContractorSignState pairs a participant with their current sign state
type ContractorSignState struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	SignState string `json:"sign_state"`
}

// ProceedOrConcludeContract is the read projection of a contract in signing:
// its descriptive fields plus every participant's sign state.
type ProceedOrConcludeContract struct {
	Contract    *model.Contract       `json:"contract"`
	Contractors []ContractorSignState `json:"contractors"`
}

// GetProceedOrConcludeContract returns the per-participant projection for a
// proceeding or concluded contract. Read from a transaction so the contract
// state and the record set come from one committed snapshot.
func (e *SignEngine) GetProceedOrConcludeContract(ctx context.Context, contractID string) (*ProceedOrConcludeContract, error) {
	var result *ProceedOrConcludeContract

	err := e.store.InTx(ctx, contractID, func(tx Tx) error {
		contract, err := tx.GetContract(contractID)
		if err != nil {
			return err
		}
		if contract == nil {
			return model.NewNotFound("contract not found: " + contractID)
		}

		signs, err := tx.ListSigns(contractID)
		if err != nil {
			return err
		}
		if len(signs) == 0 {
			return model.NewInvalidState("contract is not proceeding: " + contractID)
		}

		contractors := make([]ContractorSignState, 0, len(signs))
		for _, s := range signs {
			state := ContractorSignState{Email: s.Email, SignState: s.State}
			if u, err := e.ids.Resolve(ctx, s.Email); err == nil {
				state.Name = u.Name
			}
			contractors = append(contractors, state)
		}

		result = &ProceedOrConcludeContract{
			Contract:    contract,
			Contractors: contractors,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// dedupeEmails collapses duplicates and drops the initiator's own email,
// preserving the order contractors were given in.
func dedupeEmails(emails []string, initiator string) []string {
	seen := map[string]bool{initiator: true}
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
