package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tiffchow214/medicine-companion/internal/llm"
	"github.com/tiffchow214/medicine-companion/internal/mailer"
	"github.com/tiffchow214/medicine-companion/internal/model"
	"github.com/tiffchow214/medicine-companion/internal/store"
)

type fakeGenerator struct {
	reminder string
	chat     string
	err      error
}

func (f *fakeGenerator) PersonalizedReminder(context.Context, llm.ReminderPrompt) (string, error) {
	return f.reminder, f.err
}

func (f *fakeGenerator) Chat(context.Context, string) (string, error) {
	return f.chat, f.err
}

type fakeSynthesizer struct {
	calls      int
	lastScript string
	lastVoice  string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, script, voiceID string) (io.ReadCloser, string, error) {
	f.calls++
	f.lastScript = script
	f.lastVoice = voiceID
	return io.NopCloser(strings.NewReader("mp3-bytes")), "audio/mpeg", nil
}

type fakeFetcher struct {
	calls int
	info  model.DrugInfo
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, name string) (model.DrugInfo, error) {
	f.calls++
	if f.err != nil {
		return model.DrugInfo{}, f.err
	}
	info := f.info
	info.MedicationName = name
	return info, nil
}

type fakeSender struct {
	mu     sync.Mutex
	alerts []mailer.DoseAlert
	done   chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{done: make(chan struct{}, 8)}
}

func (f *fakeSender) SendDoseAlert(_ context.Context, alert mailer.DoseAlert) error {
	f.mu.Lock()
	f.alerts = append(f.alerts, alert)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeSender) wait(t *testing.T) mailer.DoseAlert {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for an alert")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alerts[len(f.alerts)-1]
}

type fakeEngine struct {
	surfaced model.DoseInstance
	hasDose  bool
	cleared  []string
}

func (f *fakeEngine) Surfaced() (model.DoseInstance, bool) {
	return f.surfaced, f.hasDose
}

func (f *fakeEngine) ClearSurfaced(doseID string) {
	f.cleared = append(f.cleared, doseID)
	if f.surfaced.ID == doseID {
		f.hasDose = false
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.NewJSONStore(filepath.Join(t.TempDir(), "svc.json"))
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	return NewService(st, zap.NewNop())
}

func seedProfileAndMed(t *testing.T, svc *Service, caregiver model.CaregiverAlertConfig) (model.UserProfile, model.Medication) {
	t.Helper()
	profile, err := svc.CreateProfile("Tiff")
	if err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	med, err := svc.AddMedication(AddMedicationInput{
		ProfileID: profile.ID,
		Name:      "Aspirin",
		Dose:      "1 tablet",
		Purpose:   "pain relief",
		Frequency: model.FrequencyTwiceDaily,
		Times:     []string{"08:00", "20:00"},
		Caregiver: caregiver,
	})
	if err != nil {
		t.Fatalf("AddMedication() error = %v", err)
	}
	return profile, med
}

func TestCreateProfileFirstOneBecomesActive(t *testing.T) {
	svc := newTestService(t)

	first, err := svc.CreateProfile("Tiff")
	if err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	if !first.Active {
		t.Fatalf("expected first profile active")
	}

	second, err := svc.CreateProfile("Ana")
	if err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	if second.Active {
		t.Fatalf("second profile must not steal the active slot")
	}

	active, err := svc.ActiveProfile()
	if err != nil {
		t.Fatalf("ActiveProfile() error = %v", err)
	}
	if active.ID != first.ID {
		t.Fatalf("expected %s active, got %s", first.ID, active.ID)
	}
}

func TestAddMedicationMaterializesTodaysDoses(t *testing.T) {
	svc := newTestService(t)
	svc.now = func() time.Time {
		return time.Date(2026, time.August, 30, 7, 0, 0, 0, time.UTC)
	}

	profile, _ := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{})

	groups, err := svc.TodayDoses(profile.ID)
	if err != nil {
		t.Fatalf("TodayDoses() error = %v", err)
	}
	total := 0
	for _, group := range groups {
		for _, dose := range group.Doses {
			total++
			if dose.Status != model.DoseUpcoming {
				t.Fatalf("expected upcoming dose, got %s", dose.Status)
			}
		}
	}
	if total != 2 {
		t.Fatalf("expected 2 doses for a twice-daily medication, got %d", total)
	}
}

func TestAddMedicationValidation(t *testing.T) {
	svc := newTestService(t)
	profile, err := svc.CreateProfile("Tiff")
	if err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}

	cases := []struct {
		name  string
		input AddMedicationInput
	}{
		{"missing name", AddMedicationInput{ProfileID: profile.ID, Dose: "1", Frequency: model.FrequencyOnceDaily, Times: []string{"08:00"}}},
		{"missing dose", AddMedicationInput{ProfileID: profile.ID, Name: "A", Frequency: model.FrequencyOnceDaily, Times: []string{"08:00"}}},
		{"bad frequency", AddMedicationInput{ProfileID: profile.ID, Name: "A", Dose: "1", Frequency: "hourly"}},
		{"bad time", AddMedicationInput{ProfileID: profile.ID, Name: "A", Dose: "1", Frequency: model.FrequencyOnceDaily, Times: []string{"8am"}}},
		{"wrong time count", AddMedicationInput{ProfileID: profile.ID, Name: "A", Dose: "1", Frequency: model.FrequencyTwiceDaily, Times: []string{"08:00"}}},
		{"times on as-needed", AddMedicationInput{ProfileID: profile.ID, Name: "A", Dose: "1", Frequency: model.FrequencyAsNeeded, Times: []string{"08:00"}}},
		{"caregiver without email", AddMedicationInput{ProfileID: profile.ID, Name: "A", Dose: "1", Frequency: model.FrequencyOnceDaily, Times: []string{"08:00"}, Caregiver: model.CaregiverAlertConfig{Enabled: true}}},
	}
	for _, tc := range cases {
		if _, err := svc.AddMedication(tc.input); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: error = %v, want ErrInvalidInput", tc.name, err)
		}
	}

	if _, err := svc.AddMedication(AddMedicationInput{
		ProfileID: "missing", Name: "A", Dose: "1",
		Frequency: model.FrequencyOnceDaily, Times: []string{"08:00"},
	}); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("unknown profile: error = %v, want ErrProfileNotFound", err)
	}
}

func TestMarkTakenIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	svc.now = func() time.Time {
		return time.Date(2026, time.August, 30, 8, 1, 0, 0, time.UTC)
	}
	engine := &fakeEngine{}
	svc.SetReminderEngine(engine)

	profile, _ := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{})
	groups, err := svc.TodayDoses(profile.ID)
	if err != nil {
		t.Fatalf("TodayDoses() error = %v", err)
	}
	doseID := groups[0].Doses[0].ID

	first, err := svc.MarkTaken(doseID)
	if err != nil {
		t.Fatalf("MarkTaken() error = %v", err)
	}
	if first.Status != model.DoseTaken || first.TakenAt.IsZero() {
		t.Fatalf("unexpected dose after take: %+v", first)
	}

	if _, err := svc.MarkTaken(doseID); err != nil {
		t.Fatalf("repeated MarkTaken() error = %v", err)
	}

	logs, err := svc.store.ListDoseLogsByProfile(profile.ID)
	if err != nil {
		t.Fatalf("ListDoseLogsByProfile() error = %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected a single taken log, got %d", len(logs))
	}
	if len(engine.cleared) == 0 || engine.cleared[0] != doseID {
		t.Fatalf("expected surfaced dose cleared, got %v", engine.cleared)
	}
}

func TestMarkSkippedRejectsTakenDose(t *testing.T) {
	svc := newTestService(t)
	svc.now = func() time.Time {
		return time.Date(2026, time.August, 30, 8, 1, 0, 0, time.UTC)
	}

	profile, _ := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{})
	groups, err := svc.TodayDoses(profile.ID)
	if err != nil {
		t.Fatalf("TodayDoses() error = %v", err)
	}
	doseID := groups[0].Doses[0].ID

	taken, err := svc.MarkTaken(doseID)
	if err != nil {
		t.Fatalf("MarkTaken() error = %v", err)
	}

	if _, err := svc.MarkSkipped(doseID, "changed my mind"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("skipping a taken dose: error = %v, want ErrInvalidInput", err)
	}

	dose, _, _ := svc.store.GetDose(doseID)
	if dose.Status != model.DoseTaken || !dose.TakenAt.Equal(taken.TakenAt) {
		t.Fatalf("intake record must stand, got %+v", dose)
	}
	logs, err := svc.store.ListDoseLogsByProfile(profile.ID)
	if err != nil {
		t.Fatalf("ListDoseLogsByProfile() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Status != model.DoseTaken {
		t.Fatalf("expected only the taken log, got %+v", logs)
	}
}

func TestMarkSkippedDispatchesCaregiverAlert(t *testing.T) {
	svc := newTestService(t)
	svc.now = func() time.Time {
		return time.Date(2026, time.August, 30, 8, 1, 0, 0, time.UTC)
	}
	sender := newFakeSender()
	svc.SetAlertSender(sender)

	profile, _ := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{
		Enabled:        true,
		CaregiverName:  "Ana",
		CaregiverEmail: "ana@example.com",
		OnSkipped:      true,
	})
	groups, err := svc.TodayDoses(profile.ID)
	if err != nil {
		t.Fatalf("TodayDoses() error = %v", err)
	}
	doseID := groups[0].Doses[0].ID

	dose, err := svc.MarkSkipped(doseID, "felt nauseous")
	if err != nil {
		t.Fatalf("MarkSkipped() error = %v", err)
	}
	if dose.Status != model.DoseSkipped {
		t.Fatalf("expected skipped, got %s", dose.Status)
	}

	alert := sender.wait(t)
	if alert.CaregiverEmail != "ana@example.com" || alert.Status != "skipped" {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	if alert.Reason != "felt nauseous" {
		t.Fatalf("expected reason forwarded, got %q", alert.Reason)
	}
	if alert.PatientName != "Tiff" || alert.MedicationName != "Aspirin" {
		t.Fatalf("alert context incomplete: %+v", alert)
	}
}

func TestSnoozePushesDoseBack(t *testing.T) {
	svc := newTestService(t)
	now := time.Date(2026, time.August, 30, 8, 1, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	profile, _ := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{})
	groups, err := svc.TodayDoses(profile.ID)
	if err != nil {
		t.Fatalf("TodayDoses() error = %v", err)
	}
	doseID := groups[0].Doses[0].ID

	dose, err := svc.Snooze(doseID, 15)
	if err != nil {
		t.Fatalf("Snooze() error = %v", err)
	}
	if dose.Status != model.DoseUpcoming {
		t.Fatalf("expected upcoming after snooze, got %s", dose.Status)
	}
	if want := now.Add(15 * time.Minute); !dose.SnoozedUntil.Equal(want) {
		t.Fatalf("SnoozedUntil = %s, want %s", dose.SnoozedUntil, want)
	}

	taken, err := svc.MarkTaken(doseID)
	if err != nil {
		t.Fatalf("MarkTaken() error = %v", err)
	}
	if _, err := svc.Snooze(taken.ID, 10); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("snoozing a taken dose: error = %v, want ErrInvalidInput", err)
	}
}

func TestAdherenceStreakAndMissedCount(t *testing.T) {
	svc := newTestService(t)
	now := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	profile, err := svc.CreateProfile("Tiff")
	if err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}

	logSeq := 0
	appendLog := func(status model.DoseStatus, daysAgo int) {
		t.Helper()
		logSeq++
		if err := svc.store.AppendDoseLog(model.DoseLog{
			ID:        fmt.Sprintf("log_%d", logSeq),
			ProfileID: profile.ID,
			Status:    status,
			LoggedAt:  now.AddDate(0, 0, -daysAgo),
		}); err != nil {
			t.Fatalf("AppendDoseLog() error = %v", err)
		}
	}

	// Three clean days walking back from today, then a missed day.
	appendLog(model.DoseTaken, 0)
	appendLog(model.DoseTaken, 1)
	appendLog(model.DoseTaken, 2)
	appendLog(model.DoseMissed, 3)
	appendLog(model.DoseTaken, 3)
	appendLog(model.DoseMissed, 10)

	stats, err := svc.Adherence(profile.ID)
	if err != nil {
		t.Fatalf("Adherence() error = %v", err)
	}
	if stats.CurrentStreak != 3 {
		t.Fatalf("CurrentStreak = %d, want 3", stats.CurrentStreak)
	}
	if stats.MissedInLastWeek != 1 {
		t.Fatalf("MissedInLastWeek = %d, want 1", stats.MissedInLastWeek)
	}
}

func TestDrugInfoIsCachedAfterFirstFetch(t *testing.T) {
	svc := newTestService(t)
	fetcher := &fakeFetcher{info: model.DrugInfo{GeneralMarkdown: "### What this medicine is for"}}
	svc.SetDrugInfoFetcher(fetcher)

	for i := 0; i < 3; i++ {
		info, err := svc.DrugInfo(context.Background(), "Aspirin")
		if err != nil {
			t.Fatalf("DrugInfo() call %d error = %v", i, err)
		}
		if info.MedicationName != "Aspirin" {
			t.Fatalf("unexpected info: %+v", info)
		}
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", fetcher.calls)
	}

	// Different case hits the same cache entry.
	if _, err := svc.DrugInfo(context.Background(), "  aspirin "); err != nil {
		t.Fatalf("DrugInfo() case-folded error = %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("case-folded lookup must hit the cache, got %d fetches", fetcher.calls)
	}
}

func TestDrugInfoNotFound(t *testing.T) {
	svc := newTestService(t)
	svc.SetDrugInfoFetcher(&fakeFetcher{err: ErrDrugInfoNotFound})

	if _, err := svc.DrugInfo(context.Background(), "Unobtainium"); err == nil {
		t.Fatalf("expected an error for an unknown medication")
	}

	if _, err := svc.DrugInfo(context.Background(), "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank name: error = %v, want ErrInvalidInput", err)
	}
}

func TestPersonalizedReminderFallsBackWithoutLLM(t *testing.T) {
	svc := newTestService(t)
	svc.now = func() time.Time {
		return time.Date(2026, time.August, 30, 9, 0, 0, 0, time.UTC)
	}

	_, med := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{})

	msg, err := svc.PersonalizedReminder(context.Background(), med.ID)
	if err != nil {
		t.Fatalf("PersonalizedReminder() error = %v", err)
	}
	if msg.Source != "fallback" {
		t.Fatalf("expected fallback source, got %s", msg.Source)
	}
	lower := strings.ToLower(msg.Message)
	if !strings.Contains(lower, "take") || !strings.Contains(lower, "aspirin") {
		t.Fatalf("fallback message must mention taking the medication: %q", msg.Message)
	}
	if !strings.Contains(msg.Message, "Tiff") {
		t.Fatalf("fallback message must address the user: %q", msg.Message)
	}
	if !strings.Contains(lower, "morning") {
		t.Fatalf("expected the morning label at 09:00: %q", msg.Message)
	}
}

func TestPersonalizedReminderRejectsUnsafeLLMOutput(t *testing.T) {
	svc := newTestService(t)
	svc.SetReminderGenerator(&fakeGenerator{reminder: "Have a wonderful day!"})

	_, med := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{})

	msg, err := svc.PersonalizedReminder(context.Background(), med.ID)
	if err != nil {
		t.Fatalf("PersonalizedReminder() error = %v", err)
	}
	if msg.Source != "fallback" {
		t.Fatalf("a message without 'take' and the medication name must be replaced, got source %s", msg.Source)
	}
}

func TestPersonalizedReminderUsesSafeLLMOutput(t *testing.T) {
	svc := newTestService(t)
	svc.SetReminderGenerator(&fakeGenerator{
		reminder: "Hey Tiff, it's time to take your morning Aspirin for your pain relief. You're doing the right thing for your health.",
	})

	_, med := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{})

	msg, err := svc.PersonalizedReminder(context.Background(), med.ID)
	if err != nil {
		t.Fatalf("PersonalizedReminder() error = %v", err)
	}
	if msg.Source != "llm" {
		t.Fatalf("expected llm source for a safe message, got %s", msg.Source)
	}
}

func TestReminderAudioBuildsScript(t *testing.T) {
	svc := newTestService(t)
	synth := &fakeSynthesizer{}
	svc.SetSpeechSynthesizer(synth)

	_, med := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{})

	audio, contentType, err := svc.ReminderAudio(context.Background(), med.ID, "", "voice-1")
	if err != nil {
		t.Fatalf("ReminderAudio() error = %v", err)
	}
	defer audio.Close()

	if contentType != "audio/mpeg" {
		t.Fatalf("content type = %s, want audio/mpeg", contentType)
	}
	if synth.lastVoice != "voice-1" {
		t.Fatalf("voice = %s, want voice-1", synth.lastVoice)
	}
	want := "Hey Tiff, it's time to take your Aspirin. Please take 1 tablet."
	if synth.lastScript != want {
		t.Fatalf("script = %q, want %q", synth.lastScript, want)
	}

	// A provided message becomes the script, with the dose appended.
	if _, _, err := svc.ReminderAudio(context.Background(), med.ID, "Time for your Aspirin.", ""); err != nil {
		t.Fatalf("ReminderAudio() with message error = %v", err)
	}
	if synth.lastScript != "Time for your Aspirin. Please take 1 tablet." {
		t.Fatalf("script with message = %q", synth.lastScript)
	}
}

func TestReminderAudioRequiresSynthesizer(t *testing.T) {
	svc := newTestService(t)
	_, med := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{})

	if _, _, err := svc.ReminderAudio(context.Background(), med.ID, "", ""); !errors.Is(err, ErrTTSUnavailable) {
		t.Fatalf("error = %v, want ErrTTSUnavailable", err)
	}
}

func TestChat(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Chat(context.Background(), "hello"); !errors.Is(err, ErrLLMUnavailable) {
		t.Fatalf("error = %v, want ErrLLMUnavailable", err)
	}

	svc.SetReminderGenerator(&fakeGenerator{chat: "Aspirin is a pain reliever."})
	reply, err := svc.Chat(context.Background(), "What is aspirin?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply != "Aspirin is a pain reliever." {
		t.Fatalf("unexpected reply %q", reply)
	}

	if _, err := svc.Chat(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank message: error = %v, want ErrInvalidInput", err)
	}
}

func TestQueueCaregiverAlert(t *testing.T) {
	svc := newTestService(t)

	err := svc.QueueCaregiverAlert(mailer.DoseAlert{CaregiverEmail: "ana@example.com"})
	if !errors.Is(err, ErrAlertsUnavailable) {
		t.Fatalf("error = %v, want ErrAlertsUnavailable", err)
	}

	sender := newFakeSender()
	svc.SetAlertSender(sender)

	if err := svc.QueueCaregiverAlert(mailer.DoseAlert{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing email: error = %v, want ErrInvalidInput", err)
	}

	if err := svc.QueueCaregiverAlert(mailer.DoseAlert{
		CaregiverEmail: "ana@example.com",
		PatientName:    "Tiff",
		MedicationName: "Aspirin",
		Status:         "missed",
	}); err != nil {
		t.Fatalf("QueueCaregiverAlert() error = %v", err)
	}
	alert := sender.wait(t)
	if alert.Status != "missed" {
		t.Fatalf("unexpected alert: %+v", alert)
	}
}

func TestAnnounceDoseCachesTextWithoutSynthesizing(t *testing.T) {
	svc := newTestService(t)
	svc.now = func() time.Time {
		return time.Date(2026, time.August, 30, 8, 0, 0, 0, time.UTC)
	}
	synth := &fakeSynthesizer{}
	svc.SetSpeechSynthesizer(synth)

	profile, med := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{})
	groups, err := svc.TodayDoses(profile.ID)
	if err != nil {
		t.Fatalf("TodayDoses() error = %v", err)
	}
	dose := groups[0].Doses[0]

	if err := svc.AnnounceDose(context.Background(), profile, med, dose); err != nil {
		t.Fatalf("AnnounceDose() error = %v", err)
	}

	message, ok := svc.LastAnnouncement(dose.ID)
	if !ok || message == "" {
		t.Fatalf("expected a cached announcement, got %q ok=%v", message, ok)
	}
	// Audio is only rendered on demand, through ReminderAudio.
	if synth.calls != 0 {
		t.Fatalf("announcing must not synthesize audio, got %d calls", synth.calls)
	}
}

func TestDueDoseReflectsEngine(t *testing.T) {
	svc := newTestService(t)
	svc.now = func() time.Time {
		return time.Date(2026, time.August, 30, 8, 0, 0, 0, time.UTC)
	}

	profile, med := seedProfileAndMed(t, svc, model.CaregiverAlertConfig{})
	groups, err := svc.TodayDoses(profile.ID)
	if err != nil {
		t.Fatalf("TodayDoses() error = %v", err)
	}
	dose := groups[0].Doses[0]
	dose.Status = model.DoseDue
	if err := svc.store.UpdateDose(dose); err != nil {
		t.Fatalf("UpdateDose() error = %v", err)
	}

	engine := &fakeEngine{surfaced: dose, hasDose: true}
	svc.SetReminderEngine(engine)

	view, found, err := svc.DueDose(profile.ID)
	if err != nil {
		t.Fatalf("DueDose() error = %v", err)
	}
	if !found {
		t.Fatalf("expected a due dose")
	}
	if view.Dose.ID != dose.ID || view.Medication.ID != med.ID {
		t.Fatalf("unexpected due view: %+v", view)
	}

	// Other profiles never see it.
	if _, found, _ := svc.DueDose("someone-else"); found {
		t.Fatalf("due dose leaked across profiles")
	}
}
