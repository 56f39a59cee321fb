package pricing

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/apd/v3"
)

// Pricing keys that are not flavor names.
const (
	// KeyBlockStorage prices block volumes in coins per GiB-hour.
	KeyBlockStorage = "storage.block"
	// KeyObjectStorage prices object buckets in coins per GiB-hour.
	KeyObjectStorage = "storage.object"
)

var decCtx = apd.BaseContext.WithPrecision(34)

// Table holds one region's unit prices, loaded once per run and immutable
// afterwards. Rates are decimals; money never goes through floats.
type Table struct {
	region string
	rates  map[string]*apd.Decimal
}

// Prices may appear as JSON numbers or as strings; operators quote rates
// when they want the exact digits preserved.
type costsFile struct {
	Regions map[string]map[string]any `json:"regions"`
}

// Load reads the cost definition file and extracts the given region's
// table. An unreadable file or an absent region is fatal: a run must never
// price against a table it could not load.
func Load(path, region string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cost definition %s: %w", path, err)
	}
	defer f.Close()

	t, err := Read(f, region)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cost definition %s: %w", path, err)
	}
	return t, nil
}

// Read parses a cost definition from r and extracts one region.
func Read(r io.Reader, region string) (*Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var file costsFile
	if err := dec.Decode(&file); err != nil {
		return nil, err
	}

	regionRates, ok := file.Regions[region]
	if !ok {
		return nil, fmt.Errorf("region %q not present", region)
	}

	rates := make(map[string]*apd.Decimal, len(regionRates))
	for key, raw := range regionRates {
		var text string
		switch v := raw.(type) {
		case json.Number:
			text = v.String()
		case string:
			text = v
		default:
			return nil, fmt.Errorf("bad price for %q: unsupported type %T", key, raw)
		}
		d, _, err := apd.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("bad price for %q: %w", key, err)
		}
		rates[key] = d
	}

	return &Table{region: region, rates: rates}, nil
}

// NewTable builds a table from already-parsed rates; intended for tests
// and for regions priced out-of-band.
func NewTable(region string, rates map[string]*apd.Decimal) *Table {
	if rates == nil {
		rates = map[string]*apd.Decimal{}
	}
	return &Table{region: region, rates: rates}
}

func (t *Table) Region() string {
	return t.region
}

// PriceCompute returns the hourly rate for a flavor. The boolean is false
// on a pricing gap; the returned cost is then zero, which the caller must
// surface as a gap, not as a legitimately free resource.
func (t *Table) PriceCompute(flavor string) (apd.Decimal, bool) {
	rate, ok := t.rates[flavor]
	if !ok {
		return apd.Decimal{}, false
	}
	return *rate, true
}

// PriceBlockStorage prices a block allocation of the given size for one
// granularity unit.
func (t *Table) PriceBlockStorage(gigabytes float64) (apd.Decimal, bool) {
	return t.priceStorage(KeyBlockStorage, gigabytes)
}

// PriceObjectStorage prices an object-storage allocation.
func (t *Table) PriceObjectStorage(gigabytes float64) (apd.Decimal, bool) {
	return t.priceStorage(KeyObjectStorage, gigabytes)
}

func (t *Table) priceStorage(key string, gigabytes float64) (apd.Decimal, bool) {
	rate, ok := t.rates[key]
	if !ok {
		return apd.Decimal{}, false
	}

	var size apd.Decimal
	if _, err := size.SetFloat64(gigabytes); err != nil {
		return apd.Decimal{}, false
	}

	var cost apd.Decimal
	if _, err := decCtx.Mul(&cost, rate, &size); err != nil {
		return apd.Decimal{}, false
	}
	return cost, true
}
