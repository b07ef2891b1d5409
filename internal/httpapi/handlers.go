// Package httpapi exposes the JSON API over the service layer.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tiffchow214/medicine-companion/internal/mailer"
	"github.com/tiffchow214/medicine-companion/internal/model"
	"github.com/tiffchow214/medicine-companion/internal/service"
)

type Handler struct {
	svc *service.Service
	log *zap.Logger
}

func NewHandler(svc *service.Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------

func (h *Handler) createProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	profile, err := h.svc.CreateProfile(req.Name)
	if err != nil {
		h.writeServiceError(w, "createProfile", err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (h *Handler) listProfiles(w http.ResponseWriter, _ *http.Request) {
	profiles, err := h.svc.ListProfiles()
	if err != nil {
		h.writeServiceError(w, "listProfiles", err)
		return
	}
	activeID := ""
	if active, err := h.svc.ActiveProfile(); err == nil {
		activeID = active.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles":  profiles,
		"active_id": activeID,
	})
}

func (h *Handler) selectProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	profile, err := h.svc.SelectProfile(strings.TrimSpace(req.ID))
	if err != nil {
		h.writeServiceError(w, "selectProfile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteProfile(r.PathValue("id")); err != nil {
		h.writeServiceError(w, "deleteProfile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// activeProfile resolves the profile a request acts on: an explicit
// profile_id query parameter wins, otherwise the active profile.
func (h *Handler) activeProfile(w http.ResponseWriter, r *http.Request) (model.UserProfile, bool) {
	if id := strings.TrimSpace(r.URL.Query().Get("profile_id")); id != "" {
		profile, err := h.svc.Profile(id)
		if err != nil {
			h.writeServiceError(w, "resolveProfile", err)
			return model.UserProfile{}, false
		}
		return profile, true
	}
	profile, err := h.svc.ActiveProfile()
	if err != nil {
		h.writeServiceError(w, "resolveProfile", err)
		return model.UserProfile{}, false
	}
	return profile, true
}

// ---------------------------------------------------------------------
// Medications
// ---------------------------------------------------------------------

type medicationRequest struct {
	ProfileID    string                     `json:"profile_id"`
	Name         string                     `json:"name"`
	Dose         string                     `json:"dose"`
	Purpose      string                     `json:"purpose"`
	Instructions string                     `json:"instructions"`
	Frequency    model.Frequency            `json:"frequency"`
	Times        []string                   `json:"times"`
	EndDate      string                     `json:"end_date"`
	Caregiver    model.CaregiverAlertConfig `json:"caregiver"`
}

func (h *Handler) createMedication(w http.ResponseWriter, r *http.Request) {
	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	profileID := strings.TrimSpace(req.ProfileID)
	if profileID == "" {
		profile, err := h.svc.ActiveProfile()
		if err != nil {
			h.writeServiceError(w, "createMedication", err)
			return
		}
		profileID = profile.ID
	}

	var endDate time.Time
	if raw := strings.TrimSpace(req.EndDate); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
			return
		}
		endDate = parsed
	}

	med, err := h.svc.AddMedication(service.AddMedicationInput{
		ProfileID:    profileID,
		Name:         req.Name,
		Dose:         req.Dose,
		Purpose:      req.Purpose,
		Instructions: req.Instructions,
		Frequency:    req.Frequency,
		Times:        req.Times,
		EndDate:      endDate,
		Caregiver:    req.Caregiver,
	})
	if err != nil {
		h.writeServiceError(w, "createMedication", err)
		return
	}
	writeJSON(w, http.StatusCreated, med)
}

func (h *Handler) listMedications(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	meds, err := h.svc.ListMedications(profile.ID)
	if err != nil {
		h.writeServiceError(w, "listMedications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile_id":  profile.ID,
		"medications": meds,
	})
}

func (h *Handler) deleteMedication(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteMedication(r.PathValue("id")); err != nil {
		h.writeServiceError(w, "deleteMedication", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ---------------------------------------------------------------------
// Doses
// ---------------------------------------------------------------------

func (h *Handler) todayDoses(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	groups, err := h.svc.TodayDoses(profile.ID)
	if err != nil {
		h.writeServiceError(w, "todayDoses", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile_id": profile.ID,
		"groups":     groups,
	})
}

func (h *Handler) dueDose(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	view, found, err := h.svc.DueDose(profile.ID)
	if err != nil {
		h.writeServiceError(w, "dueDose", err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{"due": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"due":          true,
		"dose":         view.Dose,
		"medication":   view.Medication,
		"announcement": view.Announcement,
	})
}

func (h *Handler) takeDose(w http.ResponseWriter, r *http.Request) {
	dose, err := h.svc.MarkTaken(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, "takeDose", err)
		return
	}
	writeJSON(w, http.StatusOK, dose)
}

func (h *Handler) skipDose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		// The reason is optional; an empty body is fine.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is not valid JSON")
			return
		}
	}

	dose, err := h.svc.MarkSkipped(r.PathValue("id"), req.Reason)
	if err != nil {
		h.writeServiceError(w, "skipDose", err)
		return
	}
	writeJSON(w, http.StatusOK, dose)
}

func (h *Handler) snoozeDose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is not valid JSON")
			return
		}
	}

	dose, err := h.svc.Snooze(r.PathValue("id"), req.Minutes)
	if err != nil {
		h.writeServiceError(w, "snoozeDose", err)
		return
	}
	writeJSON(w, http.StatusOK, dose)
}

// ---------------------------------------------------------------------
// Adherence and calendar
// ---------------------------------------------------------------------

func (h *Handler) adherence(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	stats, err := h.svc.Adherence(profile.ID)
	if err != nil {
		h.writeServiceError(w, "adherence", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return time.Now(), true
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}

func (h *Handler) calendarDay(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	day, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	groups, err := h.svc.DosesOn(profile.ID, day)
	if err != nil {
		h.writeServiceError(w, "calendarDay", err)
		return
	}
	writeJSON(w, http.StatusOK, service.DaySchedule{Date: day, Groups: groups})
}

func (h *Handler) calendarWeek(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	center, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	days, err := h.svc.Week(profile.ID, center)
	if err != nil {
		h.writeServiceError(w, "calendarWeek", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (h *Handler) calendarMonth(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.activeProfile(w, r)
	if !ok {
		return
	}
	anchor, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	grid, err := h.svc.Month(profile.ID, anchor)
	if err != nil {
		h.writeServiceError(w, "calendarMonth", err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

// ---------------------------------------------------------------------
// Drug info, reminders, chat, alerts
// ---------------------------------------------------------------------

func (h *Handler) drugInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MedicationName string `json:"medication_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	info, err := h.svc.DrugInfo(r.Context(), req.MedicationName)
	if err != nil {
		h.writeServiceError(w, "drugInfo", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) personalizedReminder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MedicationID string `json:"medication_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	message, err := h.svc.PersonalizedReminder(r.Context(), strings.TrimSpace(req.MedicationID))
	if err != nil {
		h.writeServiceError(w, "personalizedReminder", err)
		return
	}
	writeJSON(w, http.StatusOK, message)
}

func (h *Handler) reminderAudio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MedicationID        string `json:"medication_id"`
		PersonalizedMessage string `json:"personalized_message"`
		VoiceID             string `json:"voice_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	audio, contentType, err := h.svc.ReminderAudio(r.Context(), strings.TrimSpace(req.MedicationID), req.PersonalizedMessage, req.VoiceID)
	if err != nil {
		h.writeServiceError(w, "reminderAudio", err)
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, audio); err != nil {
		h.log.Warn("streaming reminder audio interrupted", zap.Error(err))
	}
}

func (h *Handler) caregiverAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CaregiverName  string `json:"caregiver_name"`
		CaregiverEmail string `json:"caregiver_email"`
		PatientName    string `json:"patient_name"`
		MedicationName string `json:"medication_name"`
		ScheduledTime  string `json:"scheduled_time"`
		Status         string `json:"status"`
		Reason         string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	err := h.svc.QueueCaregiverAlert(mailer.DoseAlert{
		CaregiverName:  req.CaregiverName,
		CaregiverEmail: req.CaregiverEmail,
		PatientName:    req.PatientName,
		MedicationName: req.MedicationName,
		ScheduledTime:  req.ScheduledTime,
		Status:         req.Status,
		Reason:         req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, "caregiverAlert", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	reply, err := h.svc.Chat(r.Context(), req.Message)
	if err != nil {
		h.writeServiceError(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// ---------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		h.log.Info("bad request", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrProfileNotFound),
		errors.Is(err, service.ErrMedicationNotFound),
		errors.Is(err, service.ErrDoseNotFound),
		errors.Is(err, service.ErrDrugInfoNotFound):
		h.log.Info("not found", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNoActiveProfile):
		h.log.Info("no active profile", zap.String("op", op))
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrLLMUnavailable),
		errors.Is(err, service.ErrTTSUnavailable),
		errors.Is(err, service.ErrAlertsUnavailable),
		errors.Is(err, service.ErrDrugInfoUnavailable):
		h.log.Warn("capability unavailable", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error("internal error", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
