package billing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/person"
	"github.com/clinicore/clinicore/internal/platform/gateway"
)

// CustomerResolver maps a responsible party to the tenant's external gateway
// customer, creating one when absent. There is no local mapping table: the
// gateway is searched on every call, which costs a round trip but can never
// go stale. A tax id is always required; each billing company has its own
// gateway account, so the same person resolves to a different customer under
// each company that bills them.
type CustomerResolver struct {
	gw     Gateway
	logger zerolog.Logger
}

func NewCustomerResolver(gw Gateway, logger zerolog.Logger) *CustomerResolver {
	return &CustomerResolver{
		gw:     gw,
		logger: logger.With().Str("component", "customer_resolver").Logger(),
	}
}

// Resolve returns the external customer id for the responsible party under
// the given credentials. Lookup-then-create: repeated calls for the same
// (company, tax id) pair never create a second customer.
func (r *CustomerResolver) Resolve(ctx context.Context, creds gateway.Credentials, p *person.Person) (string, error) {
	if p.TaxID == "" {
		return "", fmt.Errorf("%w: person %s", ErrMissingTaxID, p.ID)
	}

	page, err := r.gw.SearchCustomerByTaxID(ctx, creds, p.TaxID)
	if err != nil {
		return "", fmt.Errorf("%w: search by tax id: %v", ErrCustomerResolution, err)
	}
	if len(page.Data) > 0 {
		return page.Data[0].ID, nil
	}

	req := gateway.CreateCustomerRequest{
		Name:    p.Name,
		CPFCNPJ: p.TaxID,
	}
	if p.Email != nil {
		req.Email = *p.Email
	}
	if p.Phone != nil {
		req.MobilePhone = *p.Phone
	}
	if p.PostalCode != nil {
		req.PostalCode = *p.PostalCode
	}
	if p.AddressNumber != nil {
		req.AddressNumber = *p.AddressNumber
	}

	customer, err := r.gw.CreateCustomer(ctx, creds, req)
	if err != nil {
		return "", fmt.Errorf("%w: create customer: %v", ErrCustomerResolution, err)
	}

	r.logger.Info().
		Str("person_id", p.ID.String()).
		Str("customer_id", customer.ID).
		Msg("gateway customer created")

	return customer.ID, nil
}
