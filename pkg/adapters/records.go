package adapters

import (
	"github.com/de-tools/billing-extract/pkg/models/domain"
	"github.com/de-tools/billing-extract/pkg/models/store"
)

func MapComputeRecordToStoreBilled(r domain.ComputeUsageRecord) store.BilledRecord {
	return store.BilledRecord{
		ID:         r.RecordID,
		Kind:       "compute",
		ResourceID: r.ResourceID,
		Project:    r.Project,
		User:       r.User,
		Flavor:     r.Flavor,
		Zone:       r.Zone,
		Cost:       r.Cost.Text('f'),
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
	}
}

func MapStorageRecordToStoreBilled(r domain.StorageUsageRecord) store.BilledRecord {
	return store.BilledRecord{
		ID:          r.RecordID,
		Kind:        "storage",
		ResourceID:  r.ResourceID,
		Project:     r.Project,
		User:        r.User,
		StorageType: r.StorageType,
		Zone:        r.Zone,
		Cost:        r.Cost.Text('f'),
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
	}
}

// MapRecordSetToStoreBilled flattens a run's record set in output order.
func MapRecordSetToStoreBilled(rs *domain.RecordSet) []store.BilledRecord {
	out := make([]store.BilledRecord, 0, rs.Len())
	for _, r := range rs.Compute {
		out = append(out, MapComputeRecordToStoreBilled(r))
	}
	for _, r := range rs.Storage {
		out = append(out, MapStorageRecordToStoreBilled(r))
	}
	return out
}
