package radosgw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statsJSON = `[
	{
		"bucket": "backups",
		"pool": "default.rgw.buckets.data",
		"id": "b-1",
		"owner": "u-1",
		"usage": {
			"rgw.main": {"size_kb": 1000, "size_kb_actual": 1048576, "num_objects": 42},
			"rgw.multimeta": {"size_kb": 0, "size_kb_actual": 4, "num_objects": 1}
		}
	},
	{
		"bucket": "empty",
		"id": "b-2",
		"owner": "u-2",
		"usage": {}
	}
]`

func TestParseBucketStats(t *testing.T) {
	buckets, err := parseBucketStats([]byte(statsJSON))
	require.NoError(t, err)
	require.Len(t, buckets, 2)

	t.Run("sums usage sections", func(t *testing.T) {
		assert.Equal(t, "backups", buckets[0].Name)
		assert.Equal(t, "b-1", buckets[0].ID)
		assert.Equal(t, "u-1", buckets[0].Owner)
		assert.Equal(t, int64(1048580), buckets[0].SizeKB)
		assert.Equal(t, int64(43), buckets[0].ObjectCount)
	})

	t.Run("bucket without usage is zero-sized", func(t *testing.T) {
		assert.Equal(t, int64(0), buckets[1].SizeKB)
		assert.Equal(t, int64(0), buckets[1].ObjectCount)
	})

	t.Run("malformed output is an error", func(t *testing.T) {
		_, err := parseBucketStats([]byte("ERROR: not a json document"))
		assert.Error(t, err)
	})
}
