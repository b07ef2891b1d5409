package service

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/tiffchow214/medicine-companion/internal/model"
)

var encouragementSnippets = []string{
	"You're doing the right thing for your health.",
	"This small step really helps your health.",
	"You're taking good care of yourself.",
	"Your future self will thank you for this.",
	"Every dose helps keep you on track.",
}

func pickEncouragement() string {
	return encouragementSnippets[rand.Intn(len(encouragementSnippets))]
}

// timeOfDayLabel is the coarse label woven into reminder sentences. The
// calendar's day parts are finer grained; this one matches the spoken
// phrasing ("your morning Aspirin").
func timeOfDayLabel(t time.Time) string {
	switch hour := t.Hour(); {
	case hour < 12:
		return "morning"
	case hour < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

// fallbackReminder builds the deterministic two-sentence reminder used
// when the language model is unavailable or returns something unsafe.
func fallbackReminder(userName string, med model.Medication, timeOfDay, encouragement string, stats model.AdherenceStats) string {
	base := fmt.Sprintf("Hey %s, it's time to take your %s %s", userName, timeOfDay, med.Name)
	if purpose := strings.TrimSpace(med.Purpose); purpose != "" {
		base += fmt.Sprintf(" for your %s", purpose)
	}
	base += "."

	var second string
	switch {
	case stats.CurrentStreak >= 3:
		second = fmt.Sprintf("%s You've kept up with it for %d days in a row.", encouragement, stats.CurrentStreak)
	case stats.MissedInLastWeek > 0:
		second = fmt.Sprintf("%s Don't worry about earlier missed doses, just take this one now.", encouragement)
	default:
		second = encouragement
	}

	return base + " " + second
}

// safeReminder checks that a generated message still tells the user to
// take the named medication.
func safeReminder(message, medicationName string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "take") && strings.Contains(lower, strings.ToLower(medicationName))
}

// audioScript builds the spoken text for the reminder audio stream. A
// caller-provided message wins; otherwise a plain prompt is composed
// from the medication details.
func audioScript(userName string, med model.Medication, message string) string {
	script := strings.TrimSpace(message)
	if script == "" {
		script = fmt.Sprintf("Hey %s, it's time to take your %s.", userName, med.Name)
	}
	if dose := strings.TrimSpace(med.Dose); dose != "" {
		script += fmt.Sprintf(" Please take %s.", dose)
	}
	if message == "" {
		if instructions := strings.TrimSpace(med.Instructions); instructions != "" {
			script += " " + instructions
		}
	}
	return script
}
