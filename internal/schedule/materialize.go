package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/tiffchow214/medicine-companion/internal/model"
)

// DoseTimes resolves a medication's HH:MM clock times onto a concrete
// day. As-needed medications and days past the end date yield nothing.
// Unparseable entries are skipped; validation happens at intake.
func DoseTimes(med model.Medication, day time.Time) []time.Time {
	if !med.Frequency.FixedDosing() {
		return nil
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	if !med.EndDate.IsZero() && midnight.After(med.EndDate) {
		return nil
	}

	var out []time.Time
	for _, entry := range med.Times {
		clock, err := time.Parse("15:04", entry)
		if err != nil {
			continue
		}
		out = append(out, midnight.Add(
			time.Duration(clock.Hour())*time.Hour+time.Duration(clock.Minute())*time.Minute,
		))
	}
	return out
}

// Materialize returns the dose instances a medication still needs on the
// given day. Existing instances for the same medication and scheduled
// time are not recreated, so the call is safe to repeat.
func Materialize(med model.Medication, day time.Time, existing []model.DoseInstance) []model.DoseInstance {
	have := make(map[time.Time]bool)
	for _, dose := range existing {
		if dose.MedicationID == med.ID {
			have[dose.ScheduledAt.Truncate(time.Minute)] = true
		}
	}

	var created []model.DoseInstance
	for _, at := range DoseTimes(med, day) {
		if have[at.Truncate(time.Minute)] {
			continue
		}
		created = append(created, model.DoseInstance{
			ID:           uuid.NewString(),
			ProfileID:    med.ProfileID,
			MedicationID: med.ID,
			ScheduledAt:  at,
			Status:       model.DoseUpcoming,
		})
	}
	return created
}
