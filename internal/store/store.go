package store

import (
	"errors"
	"time"

	"github.com/tiffchow214/medicine-companion/internal/model"
)

var ErrNotFound = errors.New("record not found")

// Store is the repository behind the scheduling domain. Profiles,
// medications, dose instances, dose logs and the drug-info cache are
// separate keyed collections; every row carries its owning profile id.
type Store interface {
	SaveProfile(profile model.UserProfile) error
	GetProfile(id string) (model.UserProfile, bool, error)
	ListProfiles() ([]model.UserProfile, error)
	GetActiveProfile() (model.UserProfile, bool, error)
	// SetActiveProfile deactivates every profile and activates the given
	// one, keeping the at-most-one-active invariant.
	SetActiveProfile(id string) error
	// DeleteProfile removes the profile and cascades to its medications,
	// dose instances and dose logs.
	DeleteProfile(id string) error

	SaveMedication(med model.Medication) error
	GetMedication(id string) (model.Medication, bool, error)
	ListMedicationsByProfile(profileID string) ([]model.Medication, error)
	DeleteMedication(id string) error

	SaveDose(dose model.DoseInstance) error
	GetDose(id string) (model.DoseInstance, bool, error)
	UpdateDose(dose model.DoseInstance) error
	ListDosesByProfile(profileID string) ([]model.DoseInstance, error)
	ListDosesByProfileAndDate(profileID string, day time.Time) ([]model.DoseInstance, error)

	AppendDoseLog(entry model.DoseLog) error
	ListDoseLogsByProfile(profileID string) ([]model.DoseLog, error)

	SaveDrugInfo(info model.DrugInfo) error
	GetDrugInfo(name string) (model.DrugInfo, bool, error)
}
