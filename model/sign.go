package model

// SignState constants for agreement and cancel sign records
const (
	SignStateN = "N" // not yet signed
	SignStateY = "Y" // signed
)

// User is an identity reference. Users are resolved by email and never
// mutated by the signing protocol.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AgreementSign is one participant's signature record for one contract.
// Identity is the composite (ContractID, Email) pair; at most one record per
// pair exists. A record starts at N and may only move to Y.
type AgreementSign struct {
	ContractID string `json:"contract_id"`
	Email      string `json:"email"`
	State      string `json:"state"` // N or Y
}

// NewAgreementSign creates an unsigned record for the given participant.
func NewAgreementSign(contractID, email string) *AgreementSign {
	return &AgreementSign{
		ContractID: contractID,
		Email:      email,
		State:      SignStateN,
	}
}

// Signed reports whether this record has been signed.
func (s *AgreementSign) Signed() bool {
	return s.State == SignStateY
}

// Sign flips the record from N to Y. Signing twice is a conflict.
func (s *AgreementSign) Sign() error {
	if s.State == SignStateY {
		return NewConflict("already signed: " + s.ContractID + ", " + s.Email)
	}
	s.State = SignStateY
	return nil
}

// CancelSign is one participant's consent record for cancelling a concluded
// contract. Same composite identity and monotonicity as AgreementSign.
type CancelSign struct {
	ContractID string `json:"contract_id"`
	Email      string `json:"email"`
	State      string `json:"state"` // N or Y
}

// NewCancelSign creates an unsigned cancellation consent record.
func NewCancelSign(contractID, email string) *CancelSign {
	return &CancelSign{
		ContractID: contractID,
		Email:      email,
		State:      SignStateN,
	}
}

// Signed reports whether this record has been signed.
func (s *CancelSign) Signed() bool {
	return s.State == SignStateY
}

// Sign flips the record from N to Y. Signing twice is a conflict.
func (s *CancelSign) Sign() error {
	if s.State == SignStateY {
		return NewConflict("already signed cancellation: " + s.ContractID + ", " + s.Email)
	}
	s.State = SignStateY
	return nil
}
