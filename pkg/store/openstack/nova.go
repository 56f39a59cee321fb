package openstack

import (
	"context"
	"fmt"

	"github.com/de-tools/billing-extract/pkg/models/domain"
)

type flavorsResponse struct {
	Flavors []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		VCPUs int64  `json:"vcpus"`
		RAM   int64  `json:"ram"`
		Disk  int64  `json:"disk"`
	} `json:"flavors"`
}

// ListFlavors returns the compute service's flavor catalog. The inventory
// sometimes records a flavor id where a name is expected, and this list is
// what maps them back.
func (s *Session) ListFlavors(ctx context.Context) ([]domain.Flavor, error) {
	var fr flavorsResponse
	if err := s.getJSON(ctx, s.computeURL+"/flavors/detail", defaultTimeout, &fr); err != nil {
		return nil, fmt.Errorf("flavor list query: %w", err)
	}

	flavors := make([]domain.Flavor, 0, len(fr.Flavors))
	for _, f := range fr.Flavors {
		flavors = append(flavors, domain.Flavor{
			ID:    f.ID,
			Name:  f.Name,
			VCPUs: f.VCPUs,
			RAM:   f.RAM,
			Disk:  f.Disk,
		})
	}
	return flavors, nil
}
