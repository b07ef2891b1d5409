// Package reminder runs the dose lifecycle pass: a periodic sweep that
// moves upcoming doses to due or missed against wall-clock time and
// kicks off the audio and caregiver-alert side effects.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tiffchow214/medicine-companion/internal/model"
	"github.com/tiffchow214/medicine-companion/internal/schedule"
	"github.com/tiffchow214/medicine-companion/internal/store"
)

const (
	DefaultInterval    = time.Minute
	DefaultDueWindow   = 5 * time.Minute
	DefaultMissedAfter = 30 * time.Minute
)

// AlertDispatcher sends one caregiver notification. Implementations are
// best-effort; the engine logs failures and moves on.
type AlertDispatcher interface {
	DispatchDoseAlert(ctx context.Context, med model.Medication, dose model.DoseInstance, status model.DoseStatus, reason string) error
}

// Announcer reacts to a dose being surfaced as due, typically by
// preparing reminder audio. Failures never block state progression.
type Announcer interface {
	AnnounceDose(ctx context.Context, profile model.UserProfile, med model.Medication, dose model.DoseInstance) error
}

type Config struct {
	Interval    time.Duration
	DueWindow   time.Duration
	MissedAfter time.Duration
}

type Engine struct {
	store       store.Store
	log         *zap.Logger
	interval    time.Duration
	dueWindow   time.Duration
	missedAfter time.Duration

	alerts    AlertDispatcher
	announcer Announcer

	cron *cron.Cron
	now  func() time.Time

	// passMu keeps the run-to-completion tick semantics: one pass at a
	// time, state mutations finish before the next pass starts.
	passMu sync.Mutex

	mu         sync.Mutex
	surfacedID string
}

func NewEngine(st store.Store, cfg Config, log *zap.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.DueWindow <= 0 {
		cfg.DueWindow = DefaultDueWindow
	}
	if cfg.MissedAfter <= 0 {
		cfg.MissedAfter = DefaultMissedAfter
	}
	return &Engine{
		store:       st,
		log:         log,
		interval:    cfg.Interval,
		dueWindow:   cfg.DueWindow,
		missedAfter: cfg.MissedAfter,
		now:         time.Now,
	}
}

func (e *Engine) SetAlertDispatcher(dispatcher AlertDispatcher) {
	e.alerts = dispatcher
}

func (e *Engine) SetAnnouncer(announcer Announcer) {
	e.announcer = announcer
}

// Start schedules the periodic pass and runs one immediately; the cron
// schedule does not fire until the first interval has elapsed.
func (e *Engine) Start() error {
	e.RunPass()

	c := cron.New()
	spec := fmt.Sprintf("@every %s", e.interval)
	if _, err := c.AddFunc(spec, e.RunPass); err != nil {
		return fmt.Errorf("scheduling dose pass: %w", err)
	}
	c.Start()
	e.cron = c
	e.log.Info("dose lifecycle engine started",
		zap.Duration("interval", e.interval),
		zap.Duration("due_window", e.dueWindow),
		zap.Duration("missed_after", e.missedAfter),
	)
	return nil
}

func (e *Engine) Stop() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
}

// Surfaced returns the dose currently surfaced to the user as due, if
// any.
func (e *Engine) Surfaced() (model.DoseInstance, bool) {
	e.mu.Lock()
	id := e.surfacedID
	e.mu.Unlock()
	if id == "" {
		return model.DoseInstance{}, false
	}
	dose, ok, err := e.store.GetDose(id)
	if err != nil || !ok || dose.Status != model.DoseDue {
		return model.DoseInstance{}, false
	}
	return dose, true
}

// ClearSurfaced drops the surfaced-dose pointer after the user acted on
// it (or snoozed it away).
func (e *Engine) ClearSurfaced(doseID string) {
	e.mu.Lock()
	if e.surfacedID == doseID {
		e.surfacedID = ""
	}
	e.mu.Unlock()
}

// RunPass evaluates the active profile's doses once against the current
// clock.
func (e *Engine) RunPass() {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	now := e.now()

	profile, ok, err := e.store.GetActiveProfile()
	if err != nil {
		e.log.Error("dose pass: loading active profile", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	e.materializeToday(profile, now)

	doses, err := e.store.ListDosesByProfile(profile.ID)
	if err != nil {
		e.log.Error("dose pass: listing doses", zap.String("profile_id", profile.ID), zap.Error(err))
		return
	}

	meds := make(map[string]model.Medication)
	medFor := func(id string) (model.Medication, bool) {
		if med, ok := meds[id]; ok {
			return med, true
		}
		med, ok, err := e.store.GetMedication(id)
		if err != nil || !ok {
			return model.Medication{}, false
		}
		meds[id] = med
		return med, true
	}

	// Missed sweep first: every overdue dose transitions, not just the
	// first one.
	for _, dose := range doses {
		if dose.Status != model.DoseUpcoming || dose.Snoozed(now) {
			continue
		}
		if now.Sub(dose.ScheduledAt) > e.missedAfter {
			e.markMissed(dose, now, medFor)
		}
	}

	e.surfaceDue(profile, doses, now, medFor)
}

// materializeToday creates any dose instances today's schedule still
// lacks, so the day rolls over without client involvement.
func (e *Engine) materializeToday(profile model.UserProfile, now time.Time) {
	meds, err := e.store.ListMedicationsByProfile(profile.ID)
	if err != nil {
		e.log.Error("dose pass: listing medications", zap.String("profile_id", profile.ID), zap.Error(err))
		return
	}
	existing, err := e.store.ListDosesByProfileAndDate(profile.ID, now)
	if err != nil {
		e.log.Error("dose pass: listing today's doses", zap.String("profile_id", profile.ID), zap.Error(err))
		return
	}
	for _, med := range meds {
		for _, dose := range schedule.Materialize(med, now, existing) {
			if err := e.store.SaveDose(dose); err != nil {
				e.log.Error("dose pass: materializing dose",
					zap.String("medication_id", med.ID), zap.Error(err))
			}
		}
	}
}

func (e *Engine) markMissed(dose model.DoseInstance, now time.Time, medFor func(string) (model.Medication, bool)) {
	dose.Status = model.DoseMissed
	if err := e.store.UpdateDose(dose); err != nil {
		e.log.Error("dose pass: marking missed", zap.String("dose_id", dose.ID), zap.Error(err))
		return
	}
	entry := model.DoseLog{
		ID:           uuid.NewString(),
		ProfileID:    dose.ProfileID,
		MedicationID: dose.MedicationID,
		DoseID:       dose.ID,
		Status:       model.DoseMissed,
		LoggedAt:     now,
	}
	if err := e.store.AppendDoseLog(entry); err != nil {
		e.log.Error("dose pass: appending missed log", zap.String("dose_id", dose.ID), zap.Error(err))
	}
	e.log.Info("dose missed",
		zap.String("dose_id", dose.ID),
		zap.Time("scheduled_at", dose.ScheduledAt),
	)

	med, ok := medFor(dose.MedicationID)
	if !ok {
		return
	}
	if !med.Caregiver.Enabled || !med.Caregiver.OnMissed || med.Caregiver.CaregiverEmail == "" {
		return
	}
	if e.alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.alerts.DispatchDoseAlert(ctx, med, dose, model.DoseMissed, ""); err != nil {
		e.log.Warn("caregiver alert dispatch failed",
			zap.String("dose_id", dose.ID),
			zap.String("medication", med.Name),
			zap.Error(err),
		)
	}
}

// surfaceDue promotes at most one upcoming dose inside the due window to
// due per pass. An already-surfaced dose that is still due keeps its
// slot.
func (e *Engine) surfaceDue(profile model.UserProfile, doses []model.DoseInstance, now time.Time, medFor func(string) (model.Medication, bool)) {
	if _, ok := e.Surfaced(); ok {
		return
	}

	for _, dose := range doses {
		if dose.Status != model.DoseUpcoming || dose.Snoozed(now) {
			continue
		}
		delta := now.Sub(dose.ScheduledAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > e.dueWindow {
			continue
		}

		dose.Status = model.DoseDue
		if err := e.store.UpdateDose(dose); err != nil {
			e.log.Error("dose pass: marking due", zap.String("dose_id", dose.ID), zap.Error(err))
			return
		}
		e.mu.Lock()
		e.surfacedID = dose.ID
		e.mu.Unlock()
		e.log.Info("dose due",
			zap.String("dose_id", dose.ID),
			zap.Time("scheduled_at", dose.ScheduledAt),
		)

		if e.announcer != nil {
			if med, ok := medFor(dose.MedicationID); ok {
				// State is already progressed; an announcement failure
				// only costs the audio cue.
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := e.announcer.AnnounceDose(ctx, profile, med, dose); err != nil {
					e.log.Warn("reminder announcement failed",
						zap.String("dose_id", dose.ID),
						zap.Error(err),
					)
				}
				cancel()
			}
		}
		return
	}
}
