package openstack

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/de-tools/billing-extract/pkg/models/domain"
)

type statisticEntry struct {
	GroupBy     map[string]string `json:"groupby"`
	PeriodStart string            `json:"period_start"`
	PeriodEnd   string            `json:"period_end"`
	Max         float64           `json:"max"`
}

// GetStatistics queries the metering service for one meter over a
// half-open window, grouped by resource, project and user, max-aggregated
// into hourly sub-periods.
func (s *Session) GetStatistics(ctx context.Context, meter string, w domain.Window) ([]domain.Statistic, error) {
	q := url.Values{}
	q.Add("groupby", "resource_id")
	q.Add("groupby", "project_id")
	q.Add("groupby", "user_id")
	q.Set("period", strconv.Itoa(domain.StatGranularitySeconds))
	q.Set("aggregate.func", "max")
	// Half-open window: strictly after start, up to and including end.
	q.Add("q.field", "timestamp")
	q.Add("q.op", "gt")
	q.Add("q.value", w.Start.UTC().Format("2006-01-02T15:04:05"))
	q.Add("q.field", "timestamp")
	q.Add("q.op", "le")
	q.Add("q.value", w.End.UTC().Format("2006-01-02T15:04:05"))

	u := fmt.Sprintf("%s/v2/meters/%s/statistics?%s", s.ceilometerURL, url.PathEscape(meter), q.Encode())

	var entries []statisticEntry
	if err := s.getJSON(ctx, u, statisticsTimeout, &entries); err != nil {
		return nil, fmt.Errorf("statistics query for %s: %w", meter, err)
	}

	stats := make([]domain.Statistic, 0, len(entries))
	for _, e := range entries {
		start, err := parseStamp(e.PeriodStart)
		if err != nil {
			return nil, fmt.Errorf("statistics entry for %s: %w", meter, err)
		}
		end, err := parseStamp(e.PeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("statistics entry for %s: %w", meter, err)
		}
		stats = append(stats, domain.Statistic{
			ResourceID:  e.GroupBy["resource_id"],
			ProjectID:   e.GroupBy["project_id"],
			UserID:      e.GroupBy["user_id"],
			PeriodStart: start,
			PeriodEnd:   end,
			Max:         e.Max,
		})
	}
	return stats, nil
}

type resourceEntry struct {
	ResourceID string         `json:"resource_id"`
	ProjectID  string         `json:"project_id"`
	UserID     string         `json:"user_id"`
	Metadata   map[string]any `json:"metadata"`
}

// GetResources fetches the resource-inventory snapshot from the metering
// service. Metadata values are untyped on the wire, so fields are read
// defensively.
func (s *Session) GetResources(ctx context.Context) ([]domain.Resource, error) {
	var entries []resourceEntry
	if err := s.getJSON(ctx, s.ceilometerURL+"/v2/resources", defaultTimeout, &entries); err != nil {
		return nil, fmt.Errorf("resource inventory query: %w", err)
	}

	resources := make([]domain.Resource, 0, len(entries))
	for _, e := range entries {
		resources = append(resources, domain.Resource{
			ID:           e.ResourceID,
			ProjectID:    e.ProjectID,
			UserID:       e.UserID,
			InstanceType: stringField(e.Metadata, "instance_type"),
			Zone:         stringField(e.Metadata, "availability_zone"),
		})
	}
	return resources, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
