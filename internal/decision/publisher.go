package decision

import (
	"context"
	"fmt"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/audit"
)

// Publisher performs the side effects of a finished analysis: persist the
// decision, render its report and append the audit entry.
type Publisher struct {
	Store     Store
	ReportDir string
	Audit     *audit.Logger
	Model     string
}

// Publish records d for a. Steps run in order and the first failure is
// returned; an audit entry is only written once the decision is stored.
func (p *Publisher) Publish(ctx context.Context, a *alert.Alert, d Decision) error {
	if p.Store != nil {
		if err := p.Store.Save(ctx, d); err != nil {
			return fmt.Errorf("publish %s: %w", d.AlertID, err)
		}
	}
	if p.ReportDir != "" {
		if _, err := WriteReport(p.ReportDir, Report{Alert: a, Decision: d, Model: p.Model}); err != nil {
			return fmt.Errorf("publish %s: %w", d.AlertID, err)
		}
	}
	if p.Audit != nil {
		if err := p.Audit.Log(d.AuditEntry()); err != nil {
			return fmt.Errorf("publish %s: %w", d.AlertID, err)
		}
	}
	return nil
}
