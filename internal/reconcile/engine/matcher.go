package engine

import (
	"context"
	"fmt"

	borrowerrepo "loancrm_backend/internal/borrowers/repository"
	leadrepo "loancrm_backend/internal/leads/repository"
)

// Match is the result of resolving a normalized phone key against the
// existing lead and borrower records. Either side may be nil.
type Match struct {
	Lead     *leadrepo.Lead
	Borrower *borrowerrepo.Borrower
}

// PhoneMatcher resolves normalized phone keys. Matching is exact on the
// canonical key; stored and incoming values go through the same
// normalization, so leads saved with or without a country code match. The
// matcher is read-only.
type PhoneMatcher struct {
	leads     LeadStore
	borrowers BorrowerStore
}

func NewPhoneMatcher(leads LeadStore, borrowers BorrowerStore) *PhoneMatcher {
	return &PhoneMatcher{leads: leads, borrowers: borrowers}
}

func (m *PhoneMatcher) Resolve(ctx context.Context, phoneKey string) (Match, error) {
	lead, err := m.leads.FindByPhoneKey(ctx, phoneKey)
	if err != nil {
		return Match{}, fmt.Errorf("failed to match lead by phone: %w", err)
	}
	borrower, err := m.borrowers.FindByPhoneKey(ctx, phoneKey)
	if err != nil {
		return Match{}, fmt.Errorf("failed to match borrower by phone: %w", err)
	}
	return Match{Lead: lead, Borrower: borrower}, nil
}
