package clearpay_test

import (
	"testing"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClassification(t *testing.T) {
	cases := map[clearpay.Status]struct {
		terminal bool
		outcome  bool
		failure  bool
	}{
		clearpay.PendingVerification:                  {},
		clearpay.VerificationSuccess:                  {outcome: true},
		clearpay.SenderVerificationFailed:             {outcome: true, failure: true},
		clearpay.RecipientVerificationFailed:          {outcome: true, failure: true},
		clearpay.RecipientAndSenderVerificationFailed: {outcome: true, failure: true},
		clearpay.EscrowFunded:                         {},
		clearpay.AdminApproved:                        {},
		clearpay.Success:                              {terminal: true},
		clearpay.Failed:                               {terminal: true},
	}

	for status, tc := range cases {
		t.Run(string(status), func(t *testing.T) {
			require.NoError(t, status.Validate())
			assert.Equal(t, tc.terminal, status.IsTerminal())
			assert.Equal(t, tc.outcome, status.IsVerificationOutcome())
			assert.Equal(t, tc.failure, status.IsVerificationFailure())
		})
	}

	if err := clearpay.Status("EXPIRED").Validate(); !errors.ErrInput.Is(err) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecisionStatus(t *testing.T) {
	cases := map[string]struct {
		role     clearpay.Role
		decision clearpay.Decision
		want     clearpay.Status
		wantErr  *errors.Error
	}{
		"sender approves": {
			role:     clearpay.RoleSender,
			decision: clearpay.Approve,
			want:     clearpay.SenderApproved,
		},
		"recipient rejects": {
			role:     clearpay.RoleRecipient,
			decision: clearpay.Reject,
			want:     clearpay.RecipientRejected,
		},
		"admin approves": {
			role:     clearpay.RoleAdmin,
			decision: clearpay.Approve,
			want:     clearpay.AdminApproved,
		},
		"unknown role": {
			role:     clearpay.Role("auditor"),
			decision: clearpay.Approve,
			wantErr:  errors.ErrInput,
		},
		"unknown decision": {
			role:     clearpay.RoleAdmin,
			decision: clearpay.Decision("abstain"),
			wantErr:  errors.ErrInput,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			got, err := clearpay.DecisionStatus(tc.role, tc.decision)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
			if tc.wantErr != nil {
				return
			}
			assert.Equal(t, tc.want, got)

			role, decision, ok := clearpay.StatusDecision(got)
			require.True(t, ok)
			assert.Equal(t, tc.role, role)
			assert.Equal(t, tc.decision, decision)
		})
	}

	if _, _, ok := clearpay.StatusDecision(clearpay.EscrowFunded); ok {
		t.Fatal("escrow funded is not a decision")
	}
}

func TestVersion(t *testing.T) {
	clearpay.GitCommit = ""
	assert.Equal(t, "v0.1.0-dev", clearpay.Version())

	clearpay.GitCommit = "12345678"
	assert.Equal(t, "v0.1.0-dev 12345678", clearpay.Version())
	clearpay.GitCommit = ""
}
