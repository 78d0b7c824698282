package model

import (
	"time"
)

// ContractState constants. A contract moves NOT_PROCEED -> PROCEEDING when the
// author sends it out for signatures, PROCEEDING -> CONCLUDED when every
// participant has signed, and back to NOT_PROCEED on break or all-party
// cancellation.
const (
	StateNotProceed = "NOT_PROCEED"
	StateProceeding = "PROCEEDING"
	StateConcluded  = "CONCLUDED"
)

// Contract represents a contract document and its lifecycle state
type Contract struct {
	ID          string    `json:"id"`
	AuthorEmail string    `json:"author_email"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	State       string    `json:"state"` // NOT_PROCEED, PROCEEDING, CONCLUDED
	LedgerTxID  string    `json:"ledger_tx_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Proceed sends the contract out for signatures. Only a draft can proceed.
func (c *Contract) Proceed() error {
	if c.State != StateNotProceed {
		return NewInvalidState("contract is not a draft: " + c.ID)
	}
	c.State = StateProceeding
	return nil
}

// Conclude marks the contract as fully signed. Only a proceeding contract can
// conclude.
func (c *Contract) Conclude() error {
	if c.State != StateProceeding {
		return NewInvalidState("contract is not proceeding: " + c.ID)
	}
	c.State = StateConcluded
	return nil
}

// Revert returns the contract to the draft state. Used by break (from
// PROCEEDING) and by an all-party cancellation (from CONCLUDED).
func (c *Contract) Revert() error {
	if c.State != StateProceeding && c.State != StateConcluded {
		return NewInvalidState("contract is not proceeding or concluded: " + c.ID)
	}
	c.State = StateNotProceed
	c.LedgerTxID = ""
	return nil
}

// IsAuthor reports whether the given email owns this contract
func (c *Contract) IsAuthor(email string) bool {
	return c.AuthorEmail == email
}
