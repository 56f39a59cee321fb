package records

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/billing-extract/pkg/models/domain"
)

func sampleSet(t *testing.T) *domain.RecordSet {
	t.Helper()
	cost, _, err := apd.NewFromString("0.05")
	require.NoError(t, err)
	storageCost, _, err := apd.NewFromString("0.100")
	require.NoError(t, err)

	start := time.Date(2023, 12, 18, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	common := domain.RecordCommon{
		CreateTime:      time.Date(2024, 1, 8, 0, 0, 30, 0, time.UTC),
		Site:            "HPC2N",
		Project:         "SNIC 2018/10-30",
		User:            "s11778",
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: 3600,
		Region:          "HPC2N",
		Resource:        "SE-SNIC-SSC",
		Zone:            "nova",
	}

	compute := common
	compute.RecordID = domain.ComputeRecordID("HPC2N", "i-1", end)
	compute.ResourceID = "i-1"
	compute.Cost = *cost

	storage := common
	storage.RecordID = domain.StorageRecordID("HPC2N", "vol-1", end)
	storage.ResourceID = "vol-1"
	storage.Cost = *storageCost

	return &domain.RecordSet{
		Compute: []domain.ComputeUsageRecord{{
			RecordCommon:    compute,
			Flavor:          "m1.large",
			AllocatedCPU:    4,
			AllocatedMemory: 8192,
		}},
		Storage: []domain.StorageUsageRecord{{
			RecordCommon:  storage,
			StorageType:   domain.StorageTypeBlock,
			AllocatedDisk: int64(100) << 30,
		}},
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleSet(t)))
	doc := buf.String()

	t.Run("document shape", func(t *testing.T) {
		assert.True(t, strings.HasPrefix(doc, "<?xml"))
		assert.Contains(t, doc, `<cr:CloudRecords xmlns:cr="`+Namespace+`">`)
	})

	t.Run("compute record fields", func(t *testing.T) {
		assert.Contains(t, doc, `cr:recordId="ssc/HPC2N/cr/i-1/1702861200"`)
		assert.Contains(t, doc, `cr:createTime="2024-01-08T00:00:30Z"`)
		assert.Contains(t, doc, "<cr:Flavour>m1.large</cr:Flavour>")
		assert.Contains(t, doc, "<cr:AllocatedCPU>4.0</cr:AllocatedCPU>")
		assert.Contains(t, doc, "<cr:AllocatedMemory>8192</cr:AllocatedMemory>")
		assert.Contains(t, doc, "<cr:Cost>0.05</cr:Cost>")
		assert.Contains(t, doc, "<cr:Duration>PT3600S</cr:Duration>")
		assert.NotContains(t, doc, "cr:UsedCPU")
	})

	t.Run("storage record fields", func(t *testing.T) {
		assert.Contains(t, doc, `cr:recordId="ssc/HPC2N/sr/vol-1/1702861200"`)
		assert.Contains(t, doc, "<cr:StorageType>Block</cr:StorageType>")
		assert.Contains(t, doc, "<cr:AllocatedDisk>107374182400</cr:AllocatedDisk>")
		assert.Contains(t, doc, "<cr:FileCount>0</cr:FileCount>")
	})

	t.Run("compute records precede storage records", func(t *testing.T) {
		ci := strings.Index(doc, "<cr:CloudComputeRecord>")
		si := strings.Index(doc, "<cr:CloudStorageRecord>")
		require.GreaterOrEqual(t, ci, 0)
		require.GreaterOrEqual(t, si, 0)
		assert.Less(t, ci, si)
	})
}

func TestEncode_EmptySet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, &domain.RecordSet{}))
	assert.Contains(t, buf.String(), "cr:CloudRecords")
}

func TestFormatCPU(t *testing.T) {
	assert.Equal(t, "4.0", formatCPU(4))
	assert.Equal(t, "0.5", formatCPU(0.5))
	assert.Equal(t, "0.0", formatCPU(0))
}

func TestWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	end := time.Date(2023, 12, 18, 1, 0, 0, 0, time.UTC)

	path, err := w.Write(context.Background(), sampleSet(t), end)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "records", "20231218T0100Z.xml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cr:CloudRecords")

	// No temp leftovers next to the published file.
	entries, err := os.ReadDir(filepath.Join(dir, "records"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
