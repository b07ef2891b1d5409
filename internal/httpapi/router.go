package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

func NewRouter(handler *Handler, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handler.healthz)

	mux.HandleFunc("POST /api/profiles", handler.createProfile)
	mux.HandleFunc("GET /api/profiles", handler.listProfiles)
	mux.HandleFunc("POST /api/profiles/select", handler.selectProfile)
	mux.HandleFunc("DELETE /api/profiles/{id}", handler.deleteProfile)

	mux.HandleFunc("POST /api/medications", handler.createMedication)
	mux.HandleFunc("GET /api/medications", handler.listMedications)
	mux.HandleFunc("DELETE /api/medications/{id}", handler.deleteMedication)

	mux.HandleFunc("GET /api/doses/today", handler.todayDoses)
	mux.HandleFunc("GET /api/doses/due", handler.dueDose)
	mux.HandleFunc("POST /api/doses/{id}/take", handler.takeDose)
	mux.HandleFunc("POST /api/doses/{id}/skip", handler.skipDose)
	mux.HandleFunc("POST /api/doses/{id}/snooze", handler.snoozeDose)

	mux.HandleFunc("GET /api/adherence", handler.adherence)
	mux.HandleFunc("GET /api/calendar/day", handler.calendarDay)
	mux.HandleFunc("GET /api/calendar/week", handler.calendarWeek)
	mux.HandleFunc("GET /api/calendar/month", handler.calendarMonth)

	mux.HandleFunc("POST /api/drug-info", handler.drugInfo)
	mux.HandleFunc("POST /api/personalized-reminder", handler.personalizedReminder)
	mux.HandleFunc("POST /api/reminder-audio", handler.reminderAudio)
	mux.HandleFunc("POST /api/caregiver-alert", handler.caregiverAlert)
	mux.HandleFunc("POST /api/chat", handler.chat)

	return withRequestLogging(log, withCORS(withJSONContentType(mux)))
}

func withJSONContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Header.Get("Content-Type") == "" {
			r.Header.Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

func withRequestLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request",
			zap.String("method", r.Method),
			zap.String("uri", r.URL.RequestURI()),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
