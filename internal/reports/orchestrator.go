package reports

import (
	"context"

	"cacviun/internal/database/sqlitestore"
	"cacviun/internal/metrics"
	"cacviun/internal/models"
	"cacviun/internal/tracing"

	"github.com/rs/zerolog/log"
)

// Mutator writes report changes to the backend.
type Mutator interface {
	EditReport(ctx context.Context, id string, edit models.ReportEdit) error
	DeleteReport(ctx context.Context, id string) error
}

// AuditRecorder stores successful mutations.
type AuditRecorder interface {
	Record(ctx context.Context, e sqlitestore.Entry) error
}

// Refresher refetches the collection that owns a mutated report.
type Refresher func(ctx context.Context) error

// Orchestrator runs edit and delete requests. It never patches local state:
// after a successful write the owning collection is refetched.
type Orchestrator struct {
	backend Mutator
	audit   AuditRecorder
}

// NewOrchestrator creates an orchestrator. audit may be nil.
func NewOrchestrator(backend Mutator, audit AuditRecorder) *Orchestrator {
	return &Orchestrator{backend: backend, audit: audit}
}

// Edit resolves ref, validates the edit and sends category and description
// to the backend. An unresolvable id returns ErrInvalidID and a failed
// validation returns the validation error, both without a network call.
func (o *Orchestrator) Edit(ctx context.Context, actor string, ref any, edit models.ReportEdit, refresh Refresher) error {
	id, err := ResolveID(ref)
	if err != nil {
		metrics.ReportMutationsTotal.WithLabelValues("edit", "invalid_id").Inc()
		return err
	}
	if err := edit.Validate(); err != nil {
		metrics.ReportMutationsTotal.WithLabelValues("edit", "invalid").Inc()
		return err
	}

	ctx, span := tracing.ReportSpan(ctx, "edit", id)
	defer span.End()

	if err := o.backend.EditReport(ctx, id, models.ReportEdit{Category: edit.Category, Description: edit.Description}); err != nil {
		metrics.ReportMutationsTotal.WithLabelValues("edit", "error").Inc()
		tracing.EndWithError(span, err)
		return err
	}
	metrics.ReportMutationsTotal.WithLabelValues("edit", "ok").Inc()

	o.record(ctx, sqlitestore.Entry{
		ActorEmail: actor,
		ReportID:   id,
		Action:     sqlitestore.ActionEdit,
		Fields:     map[string]string{"category": edit.Category, "description": edit.Description},
	})
	o.refresh(ctx, id, refresh)
	return nil
}

// Delete resolves ref and removes the report. An unresolvable id returns
// ErrInvalidID without a network call.
func (o *Orchestrator) Delete(ctx context.Context, actor string, ref any, refresh Refresher) error {
	id, err := ResolveID(ref)
	if err != nil {
		metrics.ReportMutationsTotal.WithLabelValues("delete", "invalid_id").Inc()
		return err
	}

	ctx, span := tracing.ReportSpan(ctx, "delete", id)
	defer span.End()

	if err := o.backend.DeleteReport(ctx, id); err != nil {
		metrics.ReportMutationsTotal.WithLabelValues("delete", "error").Inc()
		tracing.EndWithError(span, err)
		return err
	}
	metrics.ReportMutationsTotal.WithLabelValues("delete", "ok").Inc()

	o.record(ctx, sqlitestore.Entry{
		ActorEmail: actor,
		ReportID:   id,
		Action:     sqlitestore.ActionDelete,
	})
	o.refresh(ctx, id, refresh)
	return nil
}

// record writes the audit entry. A failure is logged and otherwise ignored.
func (o *Orchestrator) record(ctx context.Context, e sqlitestore.Entry) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Record(ctx, e); err != nil {
		log.Error().Err(err).Str("report_id", e.ReportID).Str("action", string(e.Action)).Msg("Failed to record report audit entry")
	}
}

// refresh refetches after a write. The write already succeeded, so a failed
// refetch only leaves the previous collection on screen.
func (o *Orchestrator) refresh(ctx context.Context, id string, refresh Refresher) {
	if refresh == nil {
		return
	}
	if err := refresh(ctx); err != nil && err != ErrSuperseded {
		log.Warn().Err(err).Str("report_id", id).Msg("Failed to refresh reports after mutation")
	}
}
