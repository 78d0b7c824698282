package model

import (
	"testing"
)

func TestContractLifecycle(t *testing.T) {
	c := &Contract{ID: "c-1", AuthorEmail: "a@test.com", State: StateNotProceed}

	if err := c.Proceed(); err != nil {
		t.Fatalf("Proceed from draft failed: %v", err)
	}
	if c.State != StateProceeding {
		t.Errorf("Expected state PROCEEDING, got %s", c.State)
	}

	// proceeding again is not legal
	if err := c.Proceed(); err == nil {
		t.Error("Expected error proceeding a proceeding contract")
	} else if !IsKind(err, KindInvalidState) {
		t.Errorf("Expected InvalidState, got %v", err)
	}

	if err := c.Conclude(); err != nil {
		t.Fatalf("Conclude from proceeding failed: %v", err)
	}
	if c.State != StateConcluded {
		t.Errorf("Expected state CONCLUDED, got %s", c.State)
	}

	if err := c.Conclude(); err == nil {
		t.Error("Expected error concluding a concluded contract")
	}
}

func TestContractRevert(t *testing.T) {
	tests := []struct {
		name    string
		state   string
		wantErr bool
	}{
		{name: "revert proceeding", state: StateProceeding, wantErr: false},
		{name: "revert concluded", state: StateConcluded, wantErr: false},
		{name: "revert draft", state: StateNotProceed, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Contract{ID: "c-1", State: tt.state, LedgerTxID: "tx-1"}
			err := c.Revert()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Revert failed: %v", err)
			}
			if c.State != StateNotProceed {
				t.Errorf("Expected state NOT_PROCEED, got %s", c.State)
			}
			if c.LedgerTxID != "" {
				t.Error("Expected ledger tx id cleared on revert")
			}
		})
	}
}

func TestContractConcludeFromDraft(t *testing.T) {
	c := &Contract{ID: "c-1", State: StateNotProceed}
	if err := c.Conclude(); err == nil {
		t.Error("Expected error concluding a draft")
	}
}

func TestAgreementSignMonotonic(t *testing.T) {
	s := NewAgreementSign("c-1", "b@test.com")
	if s.State != SignStateN {
		t.Errorf("Expected new record unsigned, got %s", s.State)
	}

	if err := s.Sign(); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !s.Signed() {
		t.Error("Expected record signed")
	}

	err := s.Sign()
	if err == nil {
		t.Fatal("Expected error signing twice")
	}
	if !IsKind(err, KindConflict) {
		t.Errorf("Expected Conflict, got %v", err)
	}
	if !s.Signed() {
		t.Error("Record must stay signed after duplicate attempt")
	}
}

func TestCancelSignMonotonic(t *testing.T) {
	s := NewCancelSign("c-1", "b@test.com")

	if err := s.Sign(); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if err := s.Sign(); !IsKind(err, KindConflict) {
		t.Errorf("Expected Conflict on duplicate cancel sign, got %v", err)
	}
}

func TestErrorKinds(t *testing.T) {
	if !IsKind(NewNotFound("x"), KindNotFound) {
		t.Error("NotFound kind mismatch")
	}
	if !IsKind(NewForbidden("x"), KindForbidden) {
		t.Error("Forbidden kind mismatch")
	}
	if IsKind(NewConflict("x"), KindNotFound) {
		t.Error("Conflict must not match NotFound")
	}
}
