package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tiffchow214/medicine-companion/internal/model"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(filePath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", filePath)
	if err != nil {
		return nil, err
	}
	st := &SQLiteStore{db: db}
	if err := st.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveProfile(profile model.UserProfile) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO profiles
		(id, name, active, created_at)
		VALUES (?, ?, ?, ?)`,
		profile.ID,
		profile.Name,
		boolToInt(profile.Active),
		toTS(profile.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) GetProfile(id string) (model.UserProfile, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, name, active, created_at
		FROM profiles
		WHERE id = ?`,
		id,
	)
	return scanProfile(row)
}

func (s *SQLiteStore) GetActiveProfile() (model.UserProfile, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, name, active, created_at
		FROM profiles
		WHERE active = 1
		LIMIT 1`,
	)
	return scanProfile(row)
}

func scanProfile(row *sql.Row) (model.UserProfile, bool, error) {
	var profile model.UserProfile
	var active int
	var createdAt string
	err := row.Scan(&profile.ID, &profile.Name, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserProfile{}, false, nil
	}
	if err != nil {
		return model.UserProfile{}, false, err
	}
	profile.Active = intToBool(active)
	profile.CreatedAt = fromTS(createdAt)
	return profile, true, nil
}

func (s *SQLiteStore) ListProfiles() ([]model.UserProfile, error) {
	rows, err := s.db.Query(`
		SELECT id, name, active, created_at
		FROM profiles
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.UserProfile
	for rows.Next() {
		var profile model.UserProfile
		var active int
		var createdAt string
		if err := rows.Scan(&profile.ID, &profile.Name, &active, &createdAt); err != nil {
			return nil, err
		}
		profile.Active = intToBool(active)
		profile.CreatedAt = fromTS(createdAt)
		result = append(result, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLiteStore) SetActiveProfile(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE profiles SET active = 0`); err != nil {
		return err
	}
	result, err := tx.Exec(`UPDATE profiles SET active = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteProfile(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	for _, stmt := range []string{
		`DELETE FROM medications WHERE profile_id = ?`,
		`DELETE FROM doses WHERE profile_id = ?`,
		`DELETE FROM dose_logs WHERE profile_id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveMedication(med model.Medication) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO medications
		(id, profile_id, name, dose, purpose, instructions, frequency, times, end_date,
		 caregiver_enabled, caregiver_name, caregiver_email, caregiver_on_missed, caregiver_on_skipped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		med.ID,
		med.ProfileID,
		med.Name,
		med.Dose,
		med.Purpose,
		med.Instructions,
		string(med.Frequency),
		strings.Join(med.Times, ","),
		nullableTS(med.EndDate),
		boolToInt(med.Caregiver.Enabled),
		med.Caregiver.CaregiverName,
		med.Caregiver.CaregiverEmail,
		boolToInt(med.Caregiver.OnMissed),
		boolToInt(med.Caregiver.OnSkipped),
		toTS(med.CreatedAt),
	)
	return err
}

const medicationColumns = `id, profile_id, name, dose, purpose, instructions, frequency, times, end_date,
	caregiver_enabled, caregiver_name, caregiver_email, caregiver_on_missed, caregiver_on_skipped, created_at`

func (s *SQLiteStore) GetMedication(id string) (model.Medication, bool, error) {
	row := s.db.QueryRow(`
		SELECT `+medicationColumns+`
		FROM medications
		WHERE id = ?`,
		id,
	)
	med, err := scanMedication(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Medication{}, false, nil
	}
	if err != nil {
		return model.Medication{}, false, err
	}
	return med, true, nil
}

func (s *SQLiteStore) ListMedicationsByProfile(profileID string) ([]model.Medication, error) {
	rows, err := s.db.Query(`
		SELECT `+medicationColumns+`
		FROM medications
		WHERE profile_id = ?
		ORDER BY created_at ASC`,
		profileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Medication
	for rows.Next() {
		med, err := scanMedication(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, med)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanMedication(scan func(dest ...any) error) (model.Medication, error) {
	var med model.Medication
	var frequency, times string
	var endDate sql.NullString
	var enabled, onMissed, onSkipped int
	var createdAt string
	err := scan(
		&med.ID,
		&med.ProfileID,
		&med.Name,
		&med.Dose,
		&med.Purpose,
		&med.Instructions,
		&frequency,
		&times,
		&endDate,
		&enabled,
		&med.Caregiver.CaregiverName,
		&med.Caregiver.CaregiverEmail,
		&onMissed,
		&onSkipped,
		&createdAt,
	)
	if err != nil {
		return model.Medication{}, err
	}
	med.Frequency = model.Frequency(frequency)
	if times != "" {
		med.Times = strings.Split(times, ",")
	}
	if endDate.Valid && endDate.String != "" {
		med.EndDate = fromTS(endDate.String)
	}
	med.Caregiver.Enabled = intToBool(enabled)
	med.Caregiver.OnMissed = intToBool(onMissed)
	med.Caregiver.OnSkipped = intToBool(onSkipped)
	med.CreatedAt = fromTS(createdAt)
	return med, nil
}

func (s *SQLiteStore) DeleteMedication(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM medications WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	// Dose logs stay: they are append-only history and only leave through
	// profile deletion.
	if _, err := tx.Exec(`DELETE FROM doses WHERE medication_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveDose(dose model.DoseInstance) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO doses
		(id, profile_id, medication_id, scheduled_at, status, taken_at, snoozed_until)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dose.ID,
		dose.ProfileID,
		dose.MedicationID,
		toTS(dose.ScheduledAt),
		string(dose.Status),
		nullableTS(dose.TakenAt),
		nullableTS(dose.SnoozedUntil),
	)
	return err
}

func (s *SQLiteStore) GetDose(id string) (model.DoseInstance, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, profile_id, medication_id, scheduled_at, status, taken_at, snoozed_until
		FROM doses
		WHERE id = ?`,
		id,
	)
	dose, err := scanDose(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DoseInstance{}, false, nil
	}
	if err != nil {
		return model.DoseInstance{}, false, err
	}
	return dose, true, nil
}

func (s *SQLiteStore) UpdateDose(dose model.DoseInstance) error {
	result, err := s.db.Exec(`
		UPDATE doses
		SET profile_id = ?, medication_id = ?, scheduled_at = ?, status = ?, taken_at = ?, snoozed_until = ?
		WHERE id = ?`,
		dose.ProfileID,
		dose.MedicationID,
		toTS(dose.ScheduledAt),
		string(dose.Status),
		nullableTS(dose.TakenAt),
		nullableTS(dose.SnoozedUntil),
		dose.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListDosesByProfile(profileID string) ([]model.DoseInstance, error) {
	return s.queryDoses(`
		SELECT id, profile_id, medication_id, scheduled_at, status, taken_at, snoozed_until
		FROM doses
		WHERE profile_id = ?
		ORDER BY scheduled_at ASC`,
		profileID,
	)
}

func (s *SQLiteStore) ListDosesByProfileAndDate(profileID string, day time.Time) ([]model.DoseInstance, error) {
	year, month, date := day.Date()
	start := time.Date(year, month, date, 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	return s.queryDoses(`
		SELECT id, profile_id, medication_id, scheduled_at, status, taken_at, snoozed_until
		FROM doses
		WHERE profile_id = ? AND scheduled_at >= ? AND scheduled_at < ?
		ORDER BY scheduled_at ASC`,
		profileID,
		toTS(start),
		toTS(end),
	)
}

func (s *SQLiteStore) queryDoses(query string, args ...any) ([]model.DoseInstance, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.DoseInstance
	for rows.Next() {
		dose, err := scanDose(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, dose)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanDose(scan func(dest ...any) error) (model.DoseInstance, error) {
	var dose model.DoseInstance
	var scheduledAt, status string
	var takenAt, snoozedUntil sql.NullString
	err := scan(
		&dose.ID,
		&dose.ProfileID,
		&dose.MedicationID,
		&scheduledAt,
		&status,
		&takenAt,
		&snoozedUntil,
	)
	if err != nil {
		return model.DoseInstance{}, err
	}
	dose.ScheduledAt = fromTS(scheduledAt)
	dose.Status = model.DoseStatus(status)
	if takenAt.Valid && takenAt.String != "" {
		dose.TakenAt = fromTS(takenAt.String)
	}
	if snoozedUntil.Valid && snoozedUntil.String != "" {
		dose.SnoozedUntil = fromTS(snoozedUntil.String)
	}
	return dose, nil
}

func (s *SQLiteStore) AppendDoseLog(entry model.DoseLog) error {
	_, err := s.db.Exec(`
		INSERT INTO dose_logs
		(id, profile_id, medication_id, dose_id, status, reason, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ProfileID,
		entry.MedicationID,
		entry.DoseID,
		string(entry.Status),
		entry.Reason,
		toTS(entry.LoggedAt),
	)
	return err
}

func (s *SQLiteStore) ListDoseLogsByProfile(profileID string) ([]model.DoseLog, error) {
	rows, err := s.db.Query(`
		SELECT id, profile_id, medication_id, dose_id, status, reason, logged_at
		FROM dose_logs
		WHERE profile_id = ?
		ORDER BY logged_at DESC`,
		profileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.DoseLog
	for rows.Next() {
		var entry model.DoseLog
		var status, loggedAt string
		if err := rows.Scan(
			&entry.ID,
			&entry.ProfileID,
			&entry.MedicationID,
			&entry.DoseID,
			&status,
			&entry.Reason,
			&loggedAt,
		); err != nil {
			return nil, err
		}
		entry.Status = model.DoseStatus(status)
		entry.LoggedAt = fromTS(loggedAt)
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLiteStore) SaveDrugInfo(info model.DrugInfo) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO drug_info
		(name_key, medication_name, general_markdown, usage_markdown, side_effects_markdown, source_url, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		foldName(info.MedicationName),
		info.MedicationName,
		info.GeneralMarkdown,
		info.UsageMarkdown,
		info.SideEffectsMarkdown,
		info.SourceURL,
		toTS(info.FetchedAt),
	)
	return err
}

func (s *SQLiteStore) GetDrugInfo(name string) (model.DrugInfo, bool, error) {
	row := s.db.QueryRow(`
		SELECT medication_name, general_markdown, usage_markdown, side_effects_markdown, source_url, fetched_at
		FROM drug_info
		WHERE name_key = ?`,
		foldName(name),
	)
	var info model.DrugInfo
	var fetchedAt string
	err := row.Scan(
		&info.MedicationName,
		&info.GeneralMarkdown,
		&info.UsageMarkdown,
		&info.SideEffectsMarkdown,
		&info.SourceURL,
		&fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DrugInfo{}, false, nil
	}
	if err != nil {
		return model.DrugInfo{}, false, err
	}
	info.FetchedAt = fromTS(fetchedAt)
	return info, true, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		PRAGMA journal_mode=WAL;
		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			active INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS medications (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			name TEXT NOT NULL,
			dose TEXT NOT NULL,
			purpose TEXT NOT NULL DEFAULT '',
			instructions TEXT NOT NULL DEFAULT '',
			frequency TEXT NOT NULL,
			times TEXT NOT NULL DEFAULT '',
			end_date TEXT,
			caregiver_enabled INTEGER NOT NULL DEFAULT 0,
			caregiver_name TEXT NOT NULL DEFAULT '',
			caregiver_email TEXT NOT NULL DEFAULT '',
			caregiver_on_missed INTEGER NOT NULL DEFAULT 0,
			caregiver_on_skipped INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS doses (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			medication_id TEXT NOT NULL,
			scheduled_at TEXT NOT NULL,
			status TEXT NOT NULL,
			taken_at TEXT,
			snoozed_until TEXT
		);
		CREATE TABLE IF NOT EXISTS dose_logs (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			medication_id TEXT NOT NULL,
			dose_id TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			logged_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS drug_info (
			name_key TEXT PRIMARY KEY,
			medication_name TEXT NOT NULL,
			general_markdown TEXT NOT NULL,
			usage_markdown TEXT NOT NULL,
			side_effects_markdown TEXT NOT NULL,
			source_url TEXT NOT NULL,
			fetched_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_medications_profile ON medications(profile_id);
		CREATE INDEX IF NOT EXISTS idx_doses_profile_time ON doses(profile_id, scheduled_at);
		CREATE INDEX IF NOT EXISTS idx_dose_logs_profile_time ON dose_logs(profile_id, logged_at);
	`)
	return err
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func toTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTS(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return toTS(t)
}

func fromTS(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func intToBool(v int) bool {
	return v != 0
}
