package quorum

import (
	"testing"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sender    = clearpay.NewAddress([]byte("sender"))
	recipient = clearpay.NewAddress([]byte("recipient"))
	arbiter   = clearpay.NewAddress([]byte("arbiter"))
)

func TestNewPlan(t *testing.T) {
	cases := map[string]struct {
		senderFailed    bool
		recipientFailed bool
		wantEntries     []Entry
		wantRequired    Weight
	}{
		"sender failed": {
			senderFailed: true,
			wantEntries: []Entry{
				{Address: sender, Weight: 1},
				{Address: recipient, Weight: 10},
				{Address: arbiter, Weight: 10},
			},
			wantRequired: 20,
		},
		"recipient failed": {
			recipientFailed: true,
			wantEntries: []Entry{
				{Address: sender, Weight: 10},
				{Address: recipient, Weight: 1},
				{Address: arbiter, Weight: 10},
			},
			wantRequired: 20,
		},
		"both failed": {
			senderFailed:    true,
			recipientFailed: true,
			wantEntries: []Entry{
				{Address: sender, Weight: 1},
				{Address: recipient, Weight: 1},
				{Address: arbiter, Weight: 10},
			},
			wantRequired: 10,
		},
		"none failed": {
			wantEntries: []Entry{
				{Address: sender, Weight: 10},
				{Address: recipient, Weight: 10},
				{Address: arbiter, Weight: 10},
			},
			wantRequired: 20,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			p, err := NewPlan(sender, recipient, tc.senderFailed, tc.recipientFailed, arbiter)
			require.NoError(t, err)
			assert.Equal(t, tc.wantEntries, p.Entries)
			assert.Equal(t, tc.wantRequired, p.RequiredWeight)
			assert.Equal(t, EscrowMemo, p.Memo)
		})
	}
}

func TestFailingWeightNeverSatisfies(t *testing.T) {
	for _, failed := range [][2]bool{{true, false}, {false, true}, {true, true}} {
		p, err := NewPlan(sender, recipient, failed[0], failed[1], arbiter)
		require.NoError(t, err)

		var failing []clearpay.Address
		for _, e := range p.Entries {
			if e.Weight == FailingWeight {
				failing = append(failing, e.Address)
			}
		}
		assert.False(t, p.Satisfied(failing...), "failing parties %v", failing)
	}
}

func TestSatisfied(t *testing.T) {
	single, err := NewPlan(sender, recipient, true, false, arbiter)
	require.NoError(t, err)
	both, err := NewPlan(sender, recipient, true, true, arbiter)
	require.NoError(t, err)

	cases := map[string]struct {
		plan    *Plan
		signers []clearpay.Address
		want    bool
	}{
		"clearing party and arbiter": {
			plan:    single,
			signers: []clearpay.Address{recipient, arbiter},
			want:    true,
		},
		"arbiter alone with one failure": {
			plan:    single,
			signers: []clearpay.Address{arbiter},
			want:    false,
		},
		"failing party and arbiter": {
			plan:    single,
			signers: []clearpay.Address{sender, arbiter},
			want:    false,
		},
		"arbiter counted once": {
			plan:    single,
			signers: []clearpay.Address{arbiter, arbiter},
			want:    false,
		},
		"arbiter alone with both failures": {
			plan:    both,
			signers: []clearpay.Address{arbiter},
			want:    true,
		},
		"stranger": {
			plan:    both,
			signers: []clearpay.Address{clearpay.NewAddress([]byte("stranger"))},
			want:    false,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.plan.Satisfied(tc.signers...))
		})
	}
}

func TestPlanValidate(t *testing.T) {
	cases := map[string]struct {
		plan    *Plan
		wantErr *errors.Error
	}{
		"nil plan": {
			plan:    nil,
			wantErr: errors.ErrEmpty,
		},
		"no entries": {
			plan:    &Plan{RequiredWeight: 1},
			wantErr: errors.ErrEmpty,
		},
		"zero weight": {
			plan: &Plan{
				Entries:        []Entry{{Address: arbiter, Weight: 0}},
				RequiredWeight: 1,
			},
			wantErr: errors.ErrState,
		},
		"weight overflow": {
			plan: &Plan{
				Entries:        []Entry{{Address: arbiter, Weight: 256}},
				RequiredWeight: 1,
			},
			wantErr: errors.ErrInput,
		},
		"duplicated signer": {
			plan: &Plan{
				Entries:        []Entry{{Address: arbiter, Weight: 1}, {Address: arbiter, Weight: 1}},
				RequiredWeight: 1,
			},
			wantErr: errors.ErrDuplicate,
		},
		"unreachable quorum": {
			plan: &Plan{
				Entries:        []Entry{{Address: arbiter, Weight: 10}},
				RequiredWeight: 11,
			},
			wantErr: errors.ErrState,
		},
		"invalid address": {
			plan: &Plan{
				Entries:        []Entry{{Address: "nope", Weight: 10}},
				RequiredWeight: 10,
			},
			wantErr: errors.ErrInput,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if err := tc.plan.Validate(); !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
		})
	}

	if _, err := NewPlan(arbiter, recipient, true, false, arbiter); !errors.ErrDuplicate.Is(err) {
		t.Fatalf("unexpected error: %+v", err)
	}
}
