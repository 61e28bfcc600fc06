package wire

import (
	"testing"

	"corebank/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.WireStatus
		force    bool
		want     bool
	}{
		{domain.WireStatusPending, domain.WireStatusProcessing, false, true},
		{domain.WireStatusPending, domain.WireStatusCompleted, false, true},
		{domain.WireStatusProcessing, domain.WireStatusRejected, false, true},
		{domain.WireStatusProcessing, domain.WireStatusCancelled, false, true},
		{domain.WireStatusProcessing, domain.WireStatusPending, false, false},
		{domain.WireStatusCompleted, domain.WireStatusPending, false, false},
		{domain.WireStatusCompleted, domain.WireStatusPending, true, false},
		{domain.WireStatusCompleted, domain.WireStatusRejected, false, false},
		{domain.WireStatusCompleted, domain.WireStatusRejected, true, true},
		{domain.WireStatusRejected, domain.WireStatusCompleted, true, false},
		{domain.WireStatusCancelled, domain.WireStatusProcessing, true, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to, tc.force), "%s -> %s force=%v", tc.from, tc.to, tc.force)
	}
}

func TestEntryStatus(t *testing.T) {
	assert.Equal(t, domain.TransactionStatusCompleted, entryStatus(domain.WireStatusCompleted))
	assert.Equal(t, domain.TransactionStatusFailed, entryStatus(domain.WireStatusRejected))
	assert.Equal(t, domain.TransactionStatusCancelled, entryStatus(domain.WireStatusCancelled))
	assert.Equal(t, domain.TransactionStatusPending, entryStatus(domain.WireStatusProcessing))
}
