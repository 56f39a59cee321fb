package records

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/billing-extract/pkg/models/domain"
)

// Namespace of the record documents. Part of the downstream contract.
const Namespace = "http://sams.snic.se/namespaces/2016/04/cloudrecords"

// Writer serializes one run's record set into a timestamped XML file under
// <datadir>/records. Files are written to a temp path and renamed into
// place, so a concurrently polling consumer never sees a partial document.
type Writer struct {
	dir string
}

func NewWriter(datadir string) *Writer {
	return &Writer{dir: filepath.Join(datadir, "records")}
}

type xmlIdentity struct {
	CreateTime string `xml:"cr:createTime,attr"`
	RecordID   string `xml:"cr:recordId,attr"`
}

type xmlComputeRecord struct {
	XMLName  xml.Name    `xml:"cr:CloudComputeRecord"`
	Identity xmlIdentity `xml:"cr:RecordIdentity"`

	Site      string `xml:"cr:Site"`
	Project   string `xml:"cr:Project"`
	User      string `xml:"cr:User"`
	Instance  string `xml:"cr:InstanceId"`
	StartTime string `xml:"cr:StartTime"`
	EndTime   string `xml:"cr:EndTime"`
	Duration  string `xml:"cr:Duration"`
	Region    string `xml:"cr:Region"`
	Resource  string `xml:"cr:Resource"`
	Zone      string `xml:"cr:Zone"`
	Flavour   string `xml:"cr:Flavour"`
	Cost      string `xml:"cr:Cost"`

	AllocatedCPU    string `xml:"cr:AllocatedCPU"`
	AllocatedDisk   int64  `xml:"cr:AllocatedDisk"`
	AllocatedMemory int64  `xml:"cr:AllocatedMemory"`

	UsedCPU         *string `xml:"cr:UsedCPU,omitempty"`
	UsedMemory      *int64  `xml:"cr:UsedMemory,omitempty"`
	UsedNetworkUp   *int64  `xml:"cr:UsedNetworkUp,omitempty"`
	UsedNetworkDown *int64  `xml:"cr:UsedNetworkDown,omitempty"`
	IOPS            *int64  `xml:"cr:IOPS,omitempty"`
}

type xmlStorageRecord struct {
	XMLName  xml.Name    `xml:"cr:CloudStorageRecord"`
	Identity xmlIdentity `xml:"cr:RecordIdentity"`

	Site        string `xml:"cr:Site"`
	Project     string `xml:"cr:Project"`
	User        string `xml:"cr:User"`
	Instance    string `xml:"cr:InstanceId"`
	StorageType string `xml:"cr:StorageType"`
	StartTime   string `xml:"cr:StartTime"`
	EndTime     string `xml:"cr:EndTime"`
	Duration    string `xml:"cr:Duration"`
	Region      string `xml:"cr:Region"`
	Resource    string `xml:"cr:Resource"`
	Zone        string `xml:"cr:Zone"`
	Cost        string `xml:"cr:Cost"`

	AllocatedDisk int64 `xml:"cr:AllocatedDisk"`
	FileCount     int64 `xml:"cr:FileCount"`
}

type xmlCloudRecords struct {
	XMLName   xml.Name `xml:"cr:CloudRecords"`
	Namespace string   `xml:"xmlns:cr,attr"`

	Compute []xmlComputeRecord
	Storage []xmlStorageRecord
}

// Write serializes the set into <dir>/<YYYYMMDDTHHMMZ>.xml named from the
// window end and returns the final path.
func (w *Writer) Write(ctx context.Context, set *domain.RecordSet, windowEnd time.Time) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create records directory: %w", err)
	}

	final := filepath.Join(w.dir, windowEnd.UTC().Format("20060102T1504")+"Z.xml")

	tmp, err := os.CreateTemp(w.dir, ".records-*.xml")
	if err != nil {
		return "", fmt.Errorf("create temp records file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, set); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode records: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync records file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close records file: %w", err)
	}

	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("publish records file: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("path", final).
		Int("records", set.Len()).
		Msg("records file written")
	return final, nil
}

// Encode writes the record document to out, all compute records before all
// storage records.
func Encode(out io.Writer, set *domain.RecordSet) error {
	doc := xmlCloudRecords{Namespace: Namespace}

	for _, r := range set.Compute {
		doc.Compute = append(doc.Compute, xmlComputeRecord{
			Identity: xmlIdentity{
				CreateTime: r.CreateTime.UTC().Format(time.RFC3339),
				RecordID:   r.RecordID,
			},
			Site:            r.Site,
			Project:         r.Project,
			User:            r.User,
			Instance:        r.ResourceID,
			StartTime:       r.StartTime.UTC().Format(time.RFC3339),
			EndTime:         r.EndTime.UTC().Format(time.RFC3339),
			Duration:        domain.FormatDuration(r.DurationSeconds),
			Region:          r.Region,
			Resource:        r.Resource,
			Zone:            r.Zone,
			Flavour:         r.Flavor,
			Cost:            r.Cost.Text('f'),
			AllocatedCPU:    formatCPU(r.AllocatedCPU),
			AllocatedDisk:   r.AllocatedDisk,
			AllocatedMemory: r.AllocatedMemory,
			UsedCPU:         formatOptCPU(r.UsedCPU),
			UsedMemory:      r.UsedMemory,
			UsedNetworkUp:   r.UsedNetworkUp,
			UsedNetworkDown: r.UsedNetworkDown,
			IOPS:            r.IOPS,
		})
	}

	for _, r := range set.Storage {
		doc.Storage = append(doc.Storage, xmlStorageRecord{
			Identity: xmlIdentity{
				CreateTime: r.CreateTime.UTC().Format(time.RFC3339),
				RecordID:   r.RecordID,
			},
			Site:          r.Site,
			Project:       r.Project,
			User:          r.User,
			Instance:      r.ResourceID,
			StorageType:   r.StorageType,
			StartTime:     r.StartTime.UTC().Format(time.RFC3339),
			EndTime:       r.EndTime.UTC().Format(time.RFC3339),
			Duration:      domain.FormatDuration(r.DurationSeconds),
			Region:        r.Region,
			Resource:      r.Resource,
			Zone:          r.Zone,
			Cost:          r.Cost.Text('f'),
			AllocatedDisk: r.AllocatedDisk,
			FileCount:     r.FileCount,
		})
	}

	if _, err := io.WriteString(out, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(out)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(out, "\n")
	return err
}

// formatCPU keeps a decimal point in whole CPU counts, matching the format
// the accounting consumer has parsed since the first record generation.
func formatCPU(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func formatOptCPU(v *float64) *string {
	if v == nil {
		return nil
	}
	s := formatCPU(*v)
	return &s
}
