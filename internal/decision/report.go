package decision

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/flemzord/surveil/internal/alert"
)

// Report is the data rendered into a human-readable decision report.
type Report struct {
	Alert    *alert.Alert
	Decision Decision
	Model    string
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Alert {{.Decision.AlertID}}: {{.Decision.Determination}}</title>
</head>
<body>
<h1>Alert {{.Decision.AlertID}}</h1>
<p><strong>Category:</strong> {{.Decision.Category.Title}}</p>
<p><strong>Determination:</strong> {{.Decision.Determination}}{{if .Decision.Fallback}} (automated analysis incomplete){{end}}</p>
<p><strong>Genuine alert confidence:</strong> {{.Decision.GenuineConfidence}}%
 &middot; <strong>False positive confidence:</strong> {{.Decision.FalsePositiveConfidence}}%</p>
{{with .Alert}}<h2>Alert details</h2>
<ul>
<li>Type: {{.Type}} (rule {{.RuleCode}})</li>
<li>Trader: {{.Trader.ID}} {{.Trader.Name}}</li>
<li>Account: {{.Account.ID}}{{with .Account.CounterpartyID}} / counterparty {{.}}{{end}}</li>
<li>Trade: {{.Activity.Side}} {{.Activity.Quantity}} {{.Activity.Symbol}} on {{.Activity.TradeDate}}</li>
</ul>{{end}}
<h2>Key findings</h2>
<ol>{{range .Decision.KeyFindings}}<li>{{.}}</li>{{end}}</ol>
<h2>Indicators</h2>
<h3>Supporting the alert</h3>
<ul>{{range .Decision.FavorableIndicators}}<li>{{.}}</li>{{else}}<li>None identified</li>{{end}}</ul>
<h3>Mitigating</h3>
<ul>{{range .Decision.MitigatingIndicators}}<li>{{.}}</li>{{else}}<li>None identified</li>{{end}}</ul>
<h2>Reasoning</h2>
<p>{{.Decision.Reasoning}}</p>
{{with .Decision.SimilarPrecedent}}<h2>Similar precedent</h2><p>{{.}}</p>{{end}}
<h2>Recommended action</h2>
<p>{{.Decision.RecommendedAction}}</p>
{{with .Decision.DataGaps}}<h2>Data gaps</h2><ul>{{range .}}<li>{{.}}</li>{{end}}</ul>{{end}}
<footer>Decided {{.Decision.DecidedAt.Format "2006-01-02 15:04:05 MST"}}{{with .Model}} by {{.}}{{end}}</footer>
</body>
</html>
`))

// RenderReport writes r as an HTML document.
func RenderReport(w io.Writer, r Report) error {
	if err := reportTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("decision: render report: %w", err)
	}
	return nil
}

// WriteReport renders r into dir/<alert id>.html and returns the path.
func WriteReport(dir string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("decision: %w", err)
	}
	path := ReportPath(dir, r.Decision.AlertID)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("decision: %w", err)
	}
	if err := RenderReport(f, r); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// ReportPath is the location of the report for alertID under dir.
func ReportPath(dir, alertID string) string {
	return filepath.Join(dir, SafeName(alertID)+".html")
}
