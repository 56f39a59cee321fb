package export

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/de-tools/billing-extract/pkg/models/domain"
)

type Reporter struct {
	writer io.Writer
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{writer: writer}
}

// Handle prints a run summary in a fixed-width layout for cron mail and
// terminal use alike.
func (r *Reporter) Handle(summary *domain.RunSummary) error {
	funcMap := template.FuncMap{
		"row": func(name string, value interface{}) string {
			return fmt.Sprintf("| %-24s | %-42v |", name, value)
		},
		"separator": func() string {
			return fmt.Sprintf("+%s+%s+", strings.Repeat("-", 26), strings.Repeat("-", 44))
		},
		"meters": func(skipped []string) string {
			if len(skipped) == 0 {
				return "none"
			}
			return strings.Join(skipped, ", ")
		},
	}

	tmpl := `{{if .NoWork}}No complete hour to bill yet.
{{else}}Billing window: {{.Window.Start.Format "2006-01-02T15:04Z07:00"}} to {{.Window.End.Format "2006-01-02T15:04Z07:00"}}{{if .DryRun}} (dry run){{end}}

{{separator}}
{{row "Compute records" .ComputeRecords}}
{{row "Storage records" .StorageRecords}}
{{row "Excluded (deleted)" .ExcludedDeleted}}
{{row "Dropped samples" .DroppedSamples}}
{{row "Unresolved identities" .UnresolvedIdentities}}
{{row "Pricing gaps" .PricingGaps}}
{{row "Skipped meters" (meters .SkippedMeters)}}
{{separator}}
{{if .OutputFile}}
Records written to {{.OutputFile}}
{{end}}{{end}}`

	t, err := template.New("summary").Funcs(funcMap).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(r.writer, summary)
}
