// Package service implements the application logic between the HTTP
// layer and the store: profiles, medication schedules, the dose
// lifecycle actions, adherence stats, and the reminder/alert side
// effects.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tiffchow214/medicine-companion/internal/druginfo"
	"github.com/tiffchow214/medicine-companion/internal/llm"
	"github.com/tiffchow214/medicine-companion/internal/mailer"
	"github.com/tiffchow214/medicine-companion/internal/model"
	"github.com/tiffchow214/medicine-companion/internal/reminder"
	"github.com/tiffchow214/medicine-companion/internal/schedule"
	"github.com/tiffchow214/medicine-companion/internal/store"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrNoActiveProfile     = errors.New("no active profile")
	ErrMedicationNotFound  = errors.New("medication not found")
	ErrDoseNotFound        = errors.New("dose not found")
	ErrDrugInfoNotFound    = errors.New("no information found for this medication")
	ErrLLMUnavailable      = errors.New("language model is not configured")
	ErrTTSUnavailable      = errors.New("text-to-speech is not configured")
	ErrAlertsUnavailable   = errors.New("caregiver alerts are not configured")
	ErrDrugInfoUnavailable = errors.New("drug information lookup is not configured")
)

// ReminderGenerator produces the model-written reminder and chat
// replies. Optional; the service falls back to deterministic text.
type ReminderGenerator interface {
	PersonalizedReminder(ctx context.Context, prompt llm.ReminderPrompt) (string, error)
	Chat(ctx context.Context, message string) (string, error)
}

// SpeechSynthesizer streams spoken audio for a script. Optional.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, script string, voiceID string) (io.ReadCloser, string, error)
}

// DrugInfoFetcher looks up drug-label data for a medication name.
// Optional; lookups fail cleanly when unset.
type DrugInfoFetcher interface {
	Fetch(ctx context.Context, medicationName string) (model.DrugInfo, error)
}

// AlertSender delivers one caregiver alert email. Optional.
type AlertSender interface {
	SendDoseAlert(ctx context.Context, alert mailer.DoseAlert) error
}

// DoseEngine is the slice of the lifecycle engine the service needs:
// reading and clearing the currently surfaced dose.
type DoseEngine interface {
	Surfaced() (model.DoseInstance, bool)
	ClearSurfaced(doseID string)
}

type Service struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time

	llm    ReminderGenerator
	tts    SpeechSynthesizer
	drugs  DrugInfoFetcher
	alerts AlertSender
	engine DoseEngine

	announceMu    sync.Mutex
	announcements map[string]string
}

func NewService(st store.Store, log *zap.Logger) *Service {
	return &Service{
		store:         st,
		log:           log,
		now:           time.Now,
		announcements: make(map[string]string),
	}
}

func (s *Service) SetReminderGenerator(generator ReminderGenerator) { s.llm = generator }
func (s *Service) SetSpeechSynthesizer(synth SpeechSynthesizer)     { s.tts = synth }
func (s *Service) SetDrugInfoFetcher(fetcher DrugInfoFetcher)       { s.drugs = fetcher }
func (s *Service) SetAlertSender(sender AlertSender)                { s.alerts = sender }
func (s *Service) SetReminderEngine(engine DoseEngine)              { s.engine = engine }

// ---------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------

// CreateProfile registers a new user. The first profile ever created
// becomes the active one; later profiles must be selected explicitly.
func (s *Service) CreateProfile(name string) (model.UserProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.UserProfile{}, fmt.Errorf("%w: profile name is required", ErrInvalidInput)
	}

	profile := model.UserProfile{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveProfile(profile); err != nil {
		return model.UserProfile{}, err
	}

	if _, ok, err := s.store.GetActiveProfile(); err != nil {
		return model.UserProfile{}, err
	} else if !ok {
		if err := s.store.SetActiveProfile(profile.ID); err != nil {
			return model.UserProfile{}, err
		}
		profile.Active = true
	}
	return profile, nil
}

func (s *Service) ListProfiles() ([]model.UserProfile, error) {
	return s.store.ListProfiles()
}

func (s *Service) Profile(id string) (model.UserProfile, error) {
	profile, ok, err := s.store.GetProfile(id)
	if err != nil {
		return model.UserProfile{}, err
	}
	if !ok {
		return model.UserProfile{}, ErrProfileNotFound
	}
	return profile, nil
}

func (s *Service) ActiveProfile() (model.UserProfile, error) {
	profile, ok, err := s.store.GetActiveProfile()
	if err != nil {
		return model.UserProfile{}, err
	}
	if !ok {
		return model.UserProfile{}, ErrNoActiveProfile
	}
	return profile, nil
}

func (s *Service) SelectProfile(id string) (model.UserProfile, error) {
	if err := s.store.SetActiveProfile(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.UserProfile{}, ErrProfileNotFound
		}
		return model.UserProfile{}, err
	}
	profile, _, err := s.store.GetProfile(id)
	return profile, err
}

func (s *Service) DeleteProfile(id string) error {
	if err := s.store.DeleteProfile(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrProfileNotFound
		}
		return err
	}
	return nil
}

// ---------------------------------------------------------------------
// Medications
// ---------------------------------------------------------------------

type AddMedicationInput struct {
	ProfileID    string
	Name         string
	Dose         string
	Purpose      string
	Instructions string
	Frequency    model.Frequency
	Times        []string
	EndDate      time.Time
	Caregiver    model.CaregiverAlertConfig
}

func expectedTimes(frequency model.Frequency) int {
	switch frequency {
	case model.FrequencyOnceDaily:
		return 1
	case model.FrequencyTwiceDaily:
		return 2
	case model.FrequencyThreeDaily:
		return 3
	default:
		return 0
	}
}

// AddMedication validates and stores a medication, then materializes its
// remaining dose instances for today so the schedule reflects it
// immediately.
func (s *Service) AddMedication(input AddMedicationInput) (model.Medication, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return model.Medication{}, fmt.Errorf("%w: medication name is required", ErrInvalidInput)
	}
	dose := strings.TrimSpace(input.Dose)
	if dose == "" {
		return model.Medication{}, fmt.Errorf("%w: dose is required", ErrInvalidInput)
	}

	switch input.Frequency {
	case model.FrequencyOnceDaily, model.FrequencyTwiceDaily, model.FrequencyThreeDaily, model.FrequencyAsNeeded:
	default:
		return model.Medication{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, input.Frequency)
	}

	times := make([]string, 0, len(input.Times))
	for _, entry := range input.Times {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, err := time.Parse("15:04", entry); err != nil {
			return model.Medication{}, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidInput, entry)
		}
		times = append(times, entry)
	}
	if input.Frequency.FixedDosing() {
		if want := expectedTimes(input.Frequency); len(times) != want {
			return model.Medication{}, fmt.Errorf("%w: frequency %s needs exactly %d times, got %d",
				ErrInvalidInput, input.Frequency, want, len(times))
		}
		sort.Strings(times)
	} else if len(times) > 0 {
		return model.Medication{}, fmt.Errorf("%w: as-needed medications do not take times", ErrInvalidInput)
	}

	if input.Caregiver.Enabled && strings.TrimSpace(input.Caregiver.CaregiverEmail) == "" {
		return model.Medication{}, fmt.Errorf("%w: caregiver alerts need an email address", ErrInvalidInput)
	}

	profile, ok, err := s.store.GetProfile(input.ProfileID)
	if err != nil {
		return model.Medication{}, err
	}
	if !ok {
		return model.Medication{}, ErrProfileNotFound
	}

	med := model.Medication{
		ID:           uuid.NewString(),
		ProfileID:    profile.ID,
		Name:         name,
		Dose:         dose,
		Purpose:      strings.TrimSpace(input.Purpose),
		Instructions: strings.TrimSpace(input.Instructions),
		Frequency:    input.Frequency,
		Times:        times,
		EndDate:      input.EndDate,
		Caregiver:    input.Caregiver,
		CreatedAt:    s.now(),
	}
	if err := s.store.SaveMedication(med); err != nil {
		return model.Medication{}, err
	}

	for _, instance := range schedule.Materialize(med, s.now(), nil) {
		if err := s.store.SaveDose(instance); err != nil {
			return model.Medication{}, err
		}
	}
	return med, nil
}

func (s *Service) ListMedications(profileID string) ([]model.Medication, error) {
	if _, ok, err := s.store.GetProfile(profileID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrProfileNotFound
	}
	return s.store.ListMedicationsByProfile(profileID)
}

// DeleteMedication removes the medication and its dose instances. Dose
// logs stay; history only leaves with the whole profile.
func (s *Service) DeleteMedication(id string) error {
	if err := s.store.DeleteMedication(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMedicationNotFound
		}
		return err
	}
	return nil
}

func (s *Service) medicationsByID(profileID string) (map[string]model.Medication, error) {
	meds, err := s.store.ListMedicationsByProfile(profileID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Medication, len(meds))
	for _, med := range meds {
		byID[med.ID] = med
	}
	return byID, nil
}

// ---------------------------------------------------------------------
// Calendar views
// ---------------------------------------------------------------------

// DaySchedule is one calendar day's doses grouped by part of day.
type DaySchedule struct {
	Date   time.Time            `json:"date"`
	Groups []schedule.DoseGroup `json:"groups"`
}

func (s *Service) DosesOn(profileID string, day time.Time) ([]schedule.DoseGroup, error) {
	meds, err := s.medicationsByID(profileID)
	if err != nil {
		return nil, err
	}
	doses, err := s.store.ListDosesByProfileAndDate(profileID, day)
	if err != nil {
		return nil, err
	}
	return schedule.GroupDoses(doses, meds), nil
}

func (s *Service) TodayDoses(profileID string) ([]schedule.DoseGroup, error) {
	return s.DosesOn(profileID, s.now())
}

func (s *Service) Week(profileID string, center time.Time) ([]DaySchedule, error) {
	meds, err := s.medicationsByID(profileID)
	if err != nil {
		return nil, err
	}
	days := schedule.WeekWindow(center)
	out := make([]DaySchedule, 0, len(days))
	for _, day := range days {
		doses, err := s.store.ListDosesByProfileAndDate(profileID, day)
		if err != nil {
			return nil, err
		}
		out = append(out, DaySchedule{Date: day, Groups: schedule.GroupDoses(doses, meds)})
	}
	return out, nil
}

func (s *Service) Month(profileID string, anchor time.Time) (schedule.MonthGrid, error) {
	meds, err := s.medicationsByID(profileID)
	if err != nil {
		return schedule.MonthGrid{}, err
	}
	doses, err := s.store.ListDosesByProfile(profileID)
	if err != nil {
		return schedule.MonthGrid{}, err
	}
	return schedule.BuildMonthGrid(anchor, doses, meds), nil
}

// ---------------------------------------------------------------------
// Dose lifecycle actions
// ---------------------------------------------------------------------

// DueView is the currently surfaced dose plus the context the UI needs
// to present it.
type DueView struct {
	Dose         model.DoseInstance `json:"dose"`
	Medication   model.Medication   `json:"medication"`
	Announcement string             `json:"announcement,omitempty"`
}

// DueDose reports the dose surfaced by the lifecycle engine for the
// given profile, if any.
func (s *Service) DueDose(profileID string) (DueView, bool, error) {
	if s.engine == nil {
		return DueView{}, false, nil
	}
	dose, ok := s.engine.Surfaced()
	if !ok || dose.ProfileID != profileID {
		return DueView{}, false, nil
	}
	med, ok, err := s.store.GetMedication(dose.MedicationID)
	if err != nil {
		return DueView{}, false, err
	}
	if !ok {
		return DueView{}, false, nil
	}
	view := DueView{Dose: dose, Medication: med}
	if message, ok := s.LastAnnouncement(dose.ID); ok {
		view.Announcement = message
	}
	return view, true, nil
}

func (s *Service) getDose(id string) (model.DoseInstance, error) {
	dose, ok, err := s.store.GetDose(id)
	if err != nil {
		return model.DoseInstance{}, err
	}
	if !ok {
		return model.DoseInstance{}, ErrDoseNotFound
	}
	return dose, nil
}

// MarkTaken records the dose as taken. Repeating the call on an already
// taken dose is a no-op rather than an error.
func (s *Service) MarkTaken(doseID string) (model.DoseInstance, error) {
	dose, err := s.getDose(doseID)
	if err != nil {
		return model.DoseInstance{}, err
	}
	if dose.Status == model.DoseTaken {
		return dose, nil
	}

	now := s.now()
	dose.Status = model.DoseTaken
	dose.TakenAt = now
	dose.SnoozedUntil = time.Time{}
	if err := s.store.UpdateDose(dose); err != nil {
		return model.DoseInstance{}, err
	}
	if err := s.appendLog(dose, model.DoseTaken, "", now); err != nil {
		return model.DoseInstance{}, err
	}
	s.clearSurfaced(dose.ID)
	s.log.Info("dose taken", zap.String("dose_id", dose.ID), zap.String("medication_id", dose.MedicationID))
	return dose, nil
}

// MarkSkipped records the dose as skipped and, when the medication asks
// for it, queues a caregiver alert in the background. A taken dose
// cannot be flipped to skipped; the intake record stands.
func (s *Service) MarkSkipped(doseID string, reason string) (model.DoseInstance, error) {
	dose, err := s.getDose(doseID)
	if err != nil {
		return model.DoseInstance{}, err
	}
	if dose.Status == model.DoseTaken {
		return model.DoseInstance{}, fmt.Errorf("%w: dose is already taken", ErrInvalidInput)
	}

	now := s.now()
	reason = strings.TrimSpace(reason)
	dose.Status = model.DoseSkipped
	dose.SnoozedUntil = time.Time{}
	if err := s.store.UpdateDose(dose); err != nil {
		return model.DoseInstance{}, err
	}
	if err := s.appendLog(dose, model.DoseSkipped, reason, now); err != nil {
		return model.DoseInstance{}, err
	}
	s.clearSurfaced(dose.ID)
	s.log.Info("dose skipped", zap.String("dose_id", dose.ID), zap.String("reason", reason))

	med, ok, err := s.store.GetMedication(dose.MedicationID)
	if err == nil && ok &&
		med.Caregiver.Enabled && med.Caregiver.OnSkipped &&
		strings.TrimSpace(med.Caregiver.CaregiverEmail) != "" {
		s.dispatchAsync(med, dose, model.DoseSkipped, reason)
	}
	return dose, nil
}

// Snooze pushes the dose back to upcoming and exempts it from due and
// missed evaluation until the snooze expires.
func (s *Service) Snooze(doseID string, minutes int) (model.DoseInstance, error) {
	if minutes <= 0 {
		minutes = 10
	}
	dose, err := s.getDose(doseID)
	if err != nil {
		return model.DoseInstance{}, err
	}
	if dose.Status != model.DoseDue && dose.Status != model.DoseUpcoming {
		return model.DoseInstance{}, fmt.Errorf("%w: dose is already %s", ErrInvalidInput, dose.Status)
	}

	dose.Status = model.DoseUpcoming
	dose.SnoozedUntil = s.now().Add(time.Duration(minutes) * time.Minute)
	if err := s.store.UpdateDose(dose); err != nil {
		return model.DoseInstance{}, err
	}
	s.clearSurfaced(dose.ID)
	s.log.Info("dose snoozed",
		zap.String("dose_id", dose.ID),
		zap.Time("snoozed_until", dose.SnoozedUntil),
	)
	return dose, nil
}

func (s *Service) appendLog(dose model.DoseInstance, status model.DoseStatus, reason string, at time.Time) error {
	return s.store.AppendDoseLog(model.DoseLog{
		ID:           uuid.NewString(),
		ProfileID:    dose.ProfileID,
		MedicationID: dose.MedicationID,
		DoseID:       dose.ID,
		Status:       status,
		Reason:       reason,
		LoggedAt:     at,
	})
}

func (s *Service) clearSurfaced(doseID string) {
	if s.engine != nil {
		s.engine.ClearSurfaced(doseID)
	}
}

// ---------------------------------------------------------------------
// Adherence
// ---------------------------------------------------------------------

// Adherence derives streak and missed counts from the dose logs. A day
// counts toward the streak when it has at least one taken dose and no
// missed ones, walking back from today.
func (s *Service) Adherence(profileID string) (model.AdherenceStats, error) {
	if _, ok, err := s.store.GetProfile(profileID); err != nil {
		return model.AdherenceStats{}, err
	} else if !ok {
		return model.AdherenceStats{}, ErrProfileNotFound
	}

	logs, err := s.store.ListDoseLogsByProfile(profileID)
	if err != nil {
		return model.AdherenceStats{}, err
	}

	now := s.now()
	type dayTally struct{ taken, missed int }
	days := make(map[string]*dayTally)
	dayKey := func(t time.Time) string { return t.Format("2006-01-02") }

	var stats model.AdherenceStats
	weekAgo := now.AddDate(0, 0, -7)
	for _, entry := range logs {
		key := dayKey(entry.LoggedAt)
		tally := days[key]
		if tally == nil {
			tally = &dayTally{}
			days[key] = tally
		}
		switch entry.Status {
		case model.DoseTaken:
			tally.taken++
		case model.DoseMissed:
			tally.missed++
			if entry.LoggedAt.After(weekAgo) {
				stats.MissedInLastWeek++
			}
		}
	}

	for day := now; ; day = day.AddDate(0, 0, -1) {
		tally := days[dayKey(day)]
		if tally == nil || tally.taken == 0 || tally.missed > 0 {
			break
		}
		stats.CurrentStreak++
	}
	return stats, nil
}

// ---------------------------------------------------------------------
// Drug information
// ---------------------------------------------------------------------

// DrugInfo serves the cached label data for a medication name, fetching
// and caching it on first request. Cached entries never expire.
func (s *Service) DrugInfo(ctx context.Context, medicationName string) (model.DrugInfo, error) {
	name := strings.TrimSpace(medicationName)
	if name == "" {
		return model.DrugInfo{}, fmt.Errorf("%w: medication name is required", ErrInvalidInput)
	}

	if info, ok, err := s.store.GetDrugInfo(name); err != nil {
		return model.DrugInfo{}, err
	} else if ok {
		return info, nil
	}

	if s.drugs == nil {
		return model.DrugInfo{}, ErrDrugInfoUnavailable
	}
	info, err := s.drugs.Fetch(ctx, name)
	if err != nil {
		if errors.Is(err, druginfo.ErrNotFound) {
			return model.DrugInfo{}, ErrDrugInfoNotFound
		}
		return model.DrugInfo{}, err
	}
	if err := s.store.SaveDrugInfo(info); err != nil {
		s.log.Warn("caching drug info failed", zap.String("medication", name), zap.Error(err))
	}
	return info, nil
}

// ---------------------------------------------------------------------
// Reminder text, audio, chat
// ---------------------------------------------------------------------

// ReminderMessage is the personalized reminder plus where it came from.
type ReminderMessage struct {
	Message string `json:"message"`
	Source  string `json:"source"`
}

// PersonalizedReminder writes the two-sentence reminder for a
// medication. It always produces a message: model output that fails the
// wording check, or any model error, falls back to deterministic text.
func (s *Service) PersonalizedReminder(ctx context.Context, medicationID string) (ReminderMessage, error) {
	med, ok, err := s.store.GetMedication(medicationID)
	if err != nil {
		return ReminderMessage{}, err
	}
	if !ok {
		return ReminderMessage{}, ErrMedicationNotFound
	}
	profile, _, err := s.store.GetProfile(med.ProfileID)
	if err != nil {
		return ReminderMessage{}, err
	}
	stats, err := s.Adherence(med.ProfileID)
	if err != nil {
		return ReminderMessage{}, err
	}
	return s.reminderFor(ctx, profile, med, stats), nil
}

func (s *Service) reminderFor(ctx context.Context, profile model.UserProfile, med model.Medication, stats model.AdherenceStats) ReminderMessage {
	timeOfDay := timeOfDayLabel(s.now())
	encouragement := pickEncouragement()
	fallback := fallbackReminder(profile.Name, med, timeOfDay, encouragement, stats)

	if s.llm == nil {
		return ReminderMessage{Message: fallback, Source: "fallback"}
	}

	message, err := s.llm.PersonalizedReminder(ctx, llm.ReminderPrompt{
		UserName:       profile.Name,
		MedicationName: med.Name,
		Purpose:        med.Purpose,
		TimeOfDay:      timeOfDay,
		Encouragement:  encouragement,
		CurrentStreak:  stats.CurrentStreak,
		MissedLastWeek: stats.MissedInLastWeek,
	})
	if err != nil {
		s.log.Warn("reminder generation failed, using fallback",
			zap.String("medication", med.Name), zap.Error(err))
		return ReminderMessage{Message: fallback, Source: "fallback"}
	}
	if !safeReminder(message, med.Name) {
		return ReminderMessage{Message: fallback, Source: "fallback"}
	}
	return ReminderMessage{Message: message, Source: "llm"}
}

// ReminderAudio streams spoken reminder audio for a medication. The
// caller owns the returned reader.
func (s *Service) ReminderAudio(ctx context.Context, medicationID, message, voiceID string) (io.ReadCloser, string, error) {
	if s.tts == nil {
		return nil, "", ErrTTSUnavailable
	}
	med, ok, err := s.store.GetMedication(medicationID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrMedicationNotFound
	}
	profile, _, err := s.store.GetProfile(med.ProfileID)
	if err != nil {
		return nil, "", err
	}
	return s.tts.Synthesize(ctx, audioScript(profile.Name, med, message), voiceID)
}

// Chat forwards one free-form question to the language model.
func (s *Service) Chat(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if s.llm == nil {
		return "", ErrLLMUnavailable
	}
	return s.llm.Chat(ctx, message)
}

// ---------------------------------------------------------------------
// Caregiver alerts
// ---------------------------------------------------------------------

// QueueCaregiverAlert accepts an alert and sends it in the background.
// The caller gets queued semantics; delivery failures are only logged.
func (s *Service) QueueCaregiverAlert(alert mailer.DoseAlert) error {
	if s.alerts == nil {
		return ErrAlertsUnavailable
	}
	if strings.TrimSpace(alert.CaregiverEmail) == "" {
		return fmt.Errorf("%w: caregiver email is required", ErrInvalidInput)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.alerts.SendDoseAlert(ctx, alert); err != nil {
			s.log.Warn("caregiver alert delivery failed",
				zap.String("caregiver_email", alert.CaregiverEmail), zap.Error(err))
		}
	}()
	return nil
}

func (s *Service) dispatchAsync(med model.Medication, dose model.DoseInstance, status model.DoseStatus, reason string) {
	if s.alerts == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.DispatchDoseAlert(ctx, med, dose, status, reason); err != nil {
			s.log.Warn("caregiver alert dispatch failed",
				zap.String("dose_id", dose.ID), zap.Error(err))
		}
	}()
}

// DispatchDoseAlert implements reminder.AlertDispatcher.
func (s *Service) DispatchDoseAlert(ctx context.Context, med model.Medication, dose model.DoseInstance, status model.DoseStatus, reason string) error {
	if s.alerts == nil {
		return ErrAlertsUnavailable
	}
	profile, _, err := s.store.GetProfile(dose.ProfileID)
	if err != nil {
		return err
	}
	return s.alerts.SendDoseAlert(ctx, mailer.DoseAlert{
		CaregiverName:  med.Caregiver.CaregiverName,
		CaregiverEmail: med.Caregiver.CaregiverEmail,
		PatientName:    profile.Name,
		MedicationName: med.Name,
		ScheduledTime:  dose.ScheduledAt.Format("Mon Jan 2 at 15:04"),
		Status:         string(status),
		Reason:         reason,
	})
}

// AnnounceDose implements reminder.Announcer: it prepares the reminder
// text for the surfaced dose and caches it so the due-dose endpoint can
// hand it to the client. The audio itself is only synthesized when the
// client asks for it through the reminder-audio endpoint.
func (s *Service) AnnounceDose(ctx context.Context, profile model.UserProfile, med model.Medication, dose model.DoseInstance) error {
	stats, err := s.Adherence(profile.ID)
	if err != nil {
		stats = model.AdherenceStats{}
	}
	message := s.reminderFor(ctx, profile, med, stats)

	s.announceMu.Lock()
	s.announcements[dose.ID] = message.Message
	s.announceMu.Unlock()
	return nil
}

// LastAnnouncement returns the reminder text prepared when the dose was
// surfaced.
func (s *Service) LastAnnouncement(doseID string) (string, bool) {
	s.announceMu.Lock()
	defer s.announceMu.Unlock()
	message, ok := s.announcements[doseID]
	return message, ok
}

var _ reminder.AlertDispatcher = (*Service)(nil)
var _ reminder.Announcer = (*Service)(nil)
