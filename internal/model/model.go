package model

import "time"

type Frequency string

const (
	FrequencyOnceDaily  Frequency = "once_daily"
	FrequencyTwiceDaily Frequency = "twice_daily"
	FrequencyThreeDaily Frequency = "three_times_daily"
	FrequencyAsNeeded   Frequency = "as_needed"
)

// FixedDosing reports whether the frequency carries a list of clock times.
func (f Frequency) FixedDosing() bool {
	return f != FrequencyAsNeeded
}

type DoseStatus string

const (
	DoseUpcoming DoseStatus = "upcoming"
	DoseDue      DoseStatus = "due"
	DoseTaken    DoseStatus = "taken"
	DoseMissed   DoseStatus = "missed"
	DoseSkipped  DoseStatus = "skipped"
)

type UserProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// CaregiverAlertConfig controls the missed/skipped email notifications
// attached to a single medication.
type CaregiverAlertConfig struct {
	Enabled        bool   `json:"enabled"`
	CaregiverName  string `json:"caregiver_name,omitempty"`
	CaregiverEmail string `json:"caregiver_email,omitempty"`
	OnMissed       bool   `json:"on_missed"`
	OnSkipped      bool   `json:"on_skipped"`
}

type Medication struct {
	ID           string               `json:"id"`
	ProfileID    string               `json:"profile_id"`
	Name         string               `json:"name"`
	Dose         string               `json:"dose"`
	Purpose      string               `json:"purpose,omitempty"`
	Instructions string               `json:"instructions,omitempty"`
	Frequency    Frequency            `json:"frequency"`
	Times        []string             `json:"times,omitempty"` // HH:MM, local clock
	EndDate      time.Time            `json:"end_date,omitempty"`
	Caregiver    CaregiverAlertConfig `json:"caregiver"`
	CreatedAt    time.Time            `json:"created_at"`
}

// DoseInstance is one concrete scheduled occurrence of taking a medication.
type DoseInstance struct {
	ID           string     `json:"id"`
	ProfileID    string     `json:"profile_id"`
	MedicationID string     `json:"medication_id"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Status       DoseStatus `json:"status"`
	TakenAt      time.Time  `json:"taken_at,omitempty"`
	SnoozedUntil time.Time  `json:"snoozed_until,omitempty"`
}

// Snoozed reports whether the dose is exempt from due/missed evaluation
// at the given instant.
func (d DoseInstance) Snoozed(now time.Time) bool {
	return !d.SnoozedUntil.IsZero() && d.SnoozedUntil.After(now)
}

// DoseLog is an append-only record of a status transition. Logs are never
// mutated or deleted except through full profile deletion.
type DoseLog struct {
	ID           string     `json:"id"`
	ProfileID    string     `json:"profile_id"`
	MedicationID string     `json:"medication_id"`
	DoseID       string     `json:"dose_id"`
	Status       DoseStatus `json:"status"`
	Reason       string     `json:"reason,omitempty"`
	LoggedAt     time.Time  `json:"logged_at"`
}

// DrugInfo is a cached drug-label lookup, keyed by the case-folded
// medication name. Entries never expire.
type DrugInfo struct {
	MedicationName      string    `json:"medication_name"`
	GeneralMarkdown     string    `json:"general_markdown"`
	UsageMarkdown       string    `json:"usage_markdown"`
	SideEffectsMarkdown string    `json:"side_effects_markdown"`
	SourceURL           string    `json:"source_url"`
	FetchedAt           time.Time `json:"fetched_at"`
}

// AdherenceStats are derived from dose logs and only used to flavor
// reminder text.
type AdherenceStats struct {
	CurrentStreak    int `json:"current_streak"`
	MissedInLastWeek int `json:"missed_in_last_week"`
}
