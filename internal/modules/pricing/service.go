// README: Pricing service: loads tenant rates and runs the pure engine.
package pricing

import (
	"context"

	"github.com/eden-magar/towing-saas-sub002/internal/types"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Quote prices a job for a company/customer pair. customerID may be empty.
func (s *Service) Quote(ctx context.Context, companyID, customerID types.ID, req QuoteRequest) (Quote, error) {
	rates, err := s.store.GetRateTable(ctx, companyID)
	if err != nil {
		return Quote{}, err
	}
	terms, err := s.store.GetCustomerTerms(ctx, companyID, customerID)
	if err != nil {
		return Quote{}, err
	}
	return Compute(req, rates, terms)
}
