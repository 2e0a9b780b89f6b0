package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"pianosale/api/logger"
	"pianosale/api/models"
)

// ScheduledBooking is what the scheduler hands back on success.
type ScheduledBooking struct {
	BookingID string
	UID       string
	StartTime time.Time
	EndTime   time.Time
}

// Scheduler is the authoritative booking service.
type Scheduler interface {
	Schedule(ctx context.Context, form models.BookingForm) (*ScheduledBooking, error)
}

// Mirror copies a confirmed booking into the CRM.
type Mirror interface {
	Mirror(ctx context.Context, rec models.BookingRecord) error
}

// Ledger keeps a local row per confirmed booking with its mirror outcome.
type Ledger interface {
	RecordBooking(ctx context.Context, rec models.BookingRecord, mirrorStatus, mirrorError string) (int64, error)
}

// Result of a successful submission. MirrorErr is a warning: the booking
// stands whether or not the CRM copy was made.
type Result struct {
	Booking      models.BookingRecord
	MirrorStatus string
	MirrorErr    error
}

func (r *Result) Mirrored() bool { return r.MirrorStatus == models.MirrorStatusMirrored }

type Pipeline struct {
	scheduler Scheduler
	mirror    Mirror
	ledger    Ledger
	log       *logger.Logger
}

// NewPipeline wires the pipeline. ledger may be nil.
func NewPipeline(scheduler Scheduler, mirror Mirror, ledger Ledger, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{scheduler: scheduler, mirror: mirror, ledger: ledger, log: log.With("component", "BookingPipeline")}
}

// Validate reports every missing required field at once. endTime must be
// after startTime.
func Validate(form models.BookingForm) error {
	var missing []string
	if strings.TrimSpace(form.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(form.Email) == "" {
		missing = append(missing, "email")
	}
	if form.StartTime.IsZero() {
		missing = append(missing, "startTime")
	}
	if form.EndTime.IsZero() {
		missing = append(missing, "endTime")
	}
	if strings.TrimSpace(form.EventType) == "" {
		missing = append(missing, "eventType")
	}
	var invalid []string
	if !form.StartTime.IsZero() && !form.EndTime.IsZero() && !form.EndTime.After(form.StartTime) {
		invalid = append(invalid, "endTime")
	}
	if len(missing) > 0 || len(invalid) > 0 {
		return &ValidationError{Missing: missing, Invalid: invalid}
	}
	return nil
}

// SubmitBooking schedules the booking and then mirrors it to the CRM. The
// two calls run strictly in that order and neither is retried. Only
// validation and scheduling failures are returned as errors.
func (p *Pipeline) SubmitBooking(ctx context.Context, form models.BookingForm) (*Result, error) {
	if err := Validate(form); err != nil {
		return nil, err
	}

	scheduled, err := p.scheduler.Schedule(ctx, form)
	if err != nil {
		var schedErr *SchedulingError
		if !errors.As(err, &schedErr) {
			schedErr = &SchedulingError{Message: err.Error(), Err: err}
		}
		p.log.Warn("scheduling failed", "event_type", form.EventType, "status", schedErr.StatusCode, "error", schedErr.Message)
		return nil, schedErr
	}

	rec := models.BookingRecord{
		Name:            strings.TrimSpace(form.Name),
		Email:           strings.TrimSpace(form.Email),
		Phone:           form.Phone,
		Location:        form.Location,
		AdditionalNotes: form.AdditionalNotes,
		StartTime:       form.StartTime,
		EndTime:         form.EndTime,
		EventType:       form.EventType,
		BookingID:       scheduled.BookingID,
		UID:             scheduled.UID,
	}
	if !scheduled.StartTime.IsZero() {
		rec.StartTime = scheduled.StartTime
	}
	if !scheduled.EndTime.IsZero() {
		rec.EndTime = scheduled.EndTime
	}

	result := &Result{Booking: rec, MirrorStatus: models.MirrorStatusMirrored}
	if mirrorErr := p.mirrorBooking(ctx, rec); mirrorErr != nil {
		result.MirrorErr = mirrorErr
		result.MirrorStatus = models.MirrorStatusFailed
		var cfgErr *ConfigurationError
		if errors.As(mirrorErr, &cfgErr) {
			result.MirrorStatus = models.MirrorStatusUnconfigured
		}
		p.log.Warn("booking not mirrored to CRM", "booking_id", rec.BookingID, "status", result.MirrorStatus, "error", mirrorErr)
	}

	p.recordLedger(ctx, result)
	p.log.Info("booking confirmed", "booking_id", rec.BookingID, "uid", rec.UID, "mirror_status", result.MirrorStatus)
	return result, nil
}

func (p *Pipeline) mirrorBooking(ctx context.Context, rec models.BookingRecord) error {
	if p.mirror == nil {
		return &ConfigurationError{Missing: []string{"crm mirror"}}
	}
	err := p.mirror.Mirror(ctx, rec)
	if err == nil {
		return nil
	}
	var cfgErr *ConfigurationError
	var crmErr *CrmMirrorError
	if errors.As(err, &cfgErr) || errors.As(err, &crmErr) {
		return err
	}
	return &CrmMirrorError{Err: err}
}

func (p *Pipeline) recordLedger(ctx context.Context, result *Result) {
	if p.ledger == nil {
		return
	}
	var msg string
	if result.MirrorErr != nil {
		msg = result.MirrorErr.Error()
	}
	if _, err := p.ledger.RecordBooking(ctx, result.Booking, result.MirrorStatus, msg); err != nil {
		p.log.Error("booking ledger write failed", "booking_id", result.Booking.BookingID, "error", err)
	}
}
