package wire

import "corebank/internal/domain"

// edges lists every legal status change. Terminal states have no entry.
var edges = map[domain.WireStatus][]domain.WireStatus{
	domain.WireStatusPending: {
		domain.WireStatusProcessing,
		domain.WireStatusCompleted,
		domain.WireStatusRejected,
		domain.WireStatusCancelled,
	},
	domain.WireStatusProcessing: {
		domain.WireStatusCompleted,
		domain.WireStatusRejected,
		domain.WireStatusCancelled,
	},
}

// reversals are only reachable through an admin force and always refund.
var reversals = map[domain.WireStatus][]domain.WireStatus{
	domain.WireStatusCompleted: {
		domain.WireStatusRejected,
		domain.WireStatusCancelled,
	},
}

// CanTransition reports whether from -> to is a legal edge. force also
// admits reversal of a completed wire.
func CanTransition(from, to domain.WireStatus, force bool) bool {
	if contains(edges[from], to) {
		return true
	}
	return force && contains(reversals[from], to)
}

func contains(list []domain.WireStatus, s domain.WireStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// entryStatus is the status the linked ledger entry takes when the wire
// reaches to.
func entryStatus(to domain.WireStatus) domain.TransactionStatus {
	switch to {
	case domain.WireStatusCompleted:
		return domain.TransactionStatusCompleted
	case domain.WireStatusRejected:
		return domain.TransactionStatusFailed
	case domain.WireStatusCancelled:
		return domain.TransactionStatusCancelled
	}
	return domain.TransactionStatusPending
}
