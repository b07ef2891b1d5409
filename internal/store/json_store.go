package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tiffchow214/medicine-companion/internal/model"
)

type fileState struct {
	Profiles    map[string]model.UserProfile  `json:"profiles"`
	Medications map[string]model.Medication   `json:"medications"`
	Doses       map[string]model.DoseInstance `json:"doses"`
	DoseLogs    []model.DoseLog               `json:"dose_logs"`
	DrugInfo    map[string]model.DrugInfo     `json:"drug_info"`
}

// JSONStore keeps the whole state in one JSON document on disk, written
// atomically on every mutation. It mirrors the single-blob local storage
// the app's web client uses.
type JSONStore struct {
	filePath string
	mu       sync.RWMutex
	state    fileState
}

func NewJSONStore(filePath string) (*JSONStore, error) {
	s := &JSONStore{
		filePath: filePath,
		state: fileState{
			Profiles:    make(map[string]model.UserProfile),
			Medications: make(map[string]model.Medication),
			Doses:       make(map[string]model.DoseInstance),
			DoseLogs:    make([]model.DoseLog, 0),
			DrugInfo:    make(map[string]model.DrugInfo),
		},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) SaveProfile(profile model.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Profiles[profile.ID] = profile
	return s.persistLocked()
}

func (s *JSONStore) GetProfile(id string) (model.UserProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.state.Profiles[id]
	return profile, ok, nil
}

func (s *JSONStore) ListProfiles() ([]model.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.UserProfile, 0, len(s.state.Profiles))
	for _, profile := range s.state.Profiles {
		result = append(result, profile)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *JSONStore) GetActiveProfile() (model.UserProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, profile := range s.state.Profiles {
		if profile.Active {
			return profile, true, nil
		}
	}
	return model.UserProfile{}, false, nil
}

func (s *JSONStore) SetActiveProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Profiles[id]; !ok {
		return ErrNotFound
	}
	for pid, profile := range s.state.Profiles {
		profile.Active = pid == id
		s.state.Profiles[pid] = profile
	}
	return s.persistLocked()
}

func (s *JSONStore) DeleteProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Profiles[id]; !ok {
		return ErrNotFound
	}
	delete(s.state.Profiles, id)
	for mid, med := range s.state.Medications {
		if med.ProfileID == id {
			delete(s.state.Medications, mid)
		}
	}
	for did, dose := range s.state.Doses {
		if dose.ProfileID == id {
			delete(s.state.Doses, did)
		}
	}
	kept := s.state.DoseLogs[:0]
	for _, entry := range s.state.DoseLogs {
		if entry.ProfileID != id {
			kept = append(kept, entry)
		}
	}
	s.state.DoseLogs = kept
	return s.persistLocked()
}

func (s *JSONStore) SaveMedication(med model.Medication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Medications[med.ID] = med
	return s.persistLocked()
}

func (s *JSONStore) GetMedication(id string) (model.Medication, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	med, ok := s.state.Medications[id]
	return med, ok, nil
}

func (s *JSONStore) ListMedicationsByProfile(profileID string) ([]model.Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.Medication, 0)
	for _, med := range s.state.Medications {
		if med.ProfileID == profileID {
			result = append(result, med)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *JSONStore) DeleteMedication(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Medications[id]; !ok {
		return ErrNotFound
	}
	delete(s.state.Medications, id)
	for did, dose := range s.state.Doses {
		if dose.MedicationID == id {
			delete(s.state.Doses, did)
		}
	}
	return s.persistLocked()
}

func (s *JSONStore) SaveDose(dose model.DoseInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Doses[dose.ID] = dose
	return s.persistLocked()
}

func (s *JSONStore) GetDose(id string) (model.DoseInstance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dose, ok := s.state.Doses[id]
	return dose, ok, nil
}

func (s *JSONStore) UpdateDose(dose model.DoseInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Doses[dose.ID]; !ok {
		return ErrNotFound
	}
	s.state.Doses[dose.ID] = dose
	return s.persistLocked()
}

func (s *JSONStore) ListDosesByProfile(profileID string) ([]model.DoseInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.DoseInstance, 0)
	for _, dose := range s.state.Doses {
		if dose.ProfileID == profileID {
			result = append(result, dose)
		}
	}
	sortDoses(result)
	return result, nil
}

func (s *JSONStore) ListDosesByProfileAndDate(profileID string, day time.Time) ([]model.DoseInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	year, month, date := day.Date()
	result := make([]model.DoseInstance, 0)
	for _, dose := range s.state.Doses {
		dy, dm, dd := dose.ScheduledAt.In(day.Location()).Date()
		if dose.ProfileID == profileID && dy == year && dm == month && dd == date {
			result = append(result, dose)
		}
	}
	sortDoses(result)
	return result, nil
}

func sortDoses(doses []model.DoseInstance) {
	sort.Slice(doses, func(i, j int) bool {
		return doses[i].ScheduledAt.Before(doses[j].ScheduledAt)
	})
}

func (s *JSONStore) AppendDoseLog(entry model.DoseLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DoseLogs = append(s.state.DoseLogs, entry)
	return s.persistLocked()
}

func (s *JSONStore) ListDoseLogsByProfile(profileID string) ([]model.DoseLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.DoseLog, 0)
	for _, entry := range s.state.DoseLogs {
		if entry.ProfileID == profileID {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LoggedAt.After(result[j].LoggedAt)
	})
	return result, nil
}

func (s *JSONStore) SaveDrugInfo(info model.DrugInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DrugInfo[foldName(info.MedicationName)] = info
	return s.persistLocked()
}

func (s *JSONStore) GetDrugInfo(name string) (model.DrugInfo, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.state.DrugInfo[foldName(name)]
	return info, ok, nil
}

func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if state.Profiles == nil {
		state.Profiles = make(map[string]model.UserProfile)
	}
	if state.Medications == nil {
		state.Medications = make(map[string]model.Medication)
	}
	if state.Doses == nil {
		state.Doses = make(map[string]model.DoseInstance)
	}
	if state.DoseLogs == nil {
		state.DoseLogs = make([]model.DoseLog, 0)
	}
	if state.DrugInfo == nil {
		state.DrugInfo = make(map[string]model.DrugInfo)
	}
	s.state = state
	return nil
}

func (s *JSONStore) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.filePath)
}
