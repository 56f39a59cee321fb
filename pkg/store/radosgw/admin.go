package radosgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/de-tools/billing-extract/pkg/models/domain"
)

// AdminCLI shells out to radosgw-admin on the local host. There is no
// usable HTTP admin surface on the deployments this runs against, so the
// CLI is the source of truth for bucket usage.
type AdminCLI struct {
	binary string
}

func NewAdminCLI() *AdminCLI {
	return &AdminCLI{binary: "radosgw-admin"}
}

type bucketStats struct {
	Bucket string `json:"bucket"`
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Usage  map[string]struct {
		SizeKBActual int64 `json:"size_kb_actual"`
		NumObjects   int64 `json:"num_objects"`
	} `json:"usage"`
}

// BucketStats returns a usage snapshot of every bucket in the object store.
func (c *AdminCLI) BucketStats(ctx context.Context) ([]domain.ObjectBucket, error) {
	cmd := exec.CommandContext(ctx, c.binary, "bucket", "stats")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s bucket stats: %w", c.binary, err)
	}
	return parseBucketStats(stdout.Bytes())
}

func parseBucketStats(data []byte) ([]domain.ObjectBucket, error) {
	var statses []bucketStats
	if err := json.Unmarshal(data, &statses); err != nil {
		return nil, fmt.Errorf("decode bucket stats: %w", err)
	}

	buckets := make([]domain.ObjectBucket, 0, len(statses))
	for _, st := range statses {
		b := domain.ObjectBucket{
			ID:    st.ID,
			Name:  st.Bucket,
			Owner: st.Owner,
		}
		// A freshly created bucket has no usage sections at all. Sum the
		// sections that exist; rgw.main holds the object payload.
		for _, u := range st.Usage {
			b.SizeKB += u.SizeKBActual
			b.ObjectCount += u.NumObjects
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}
