// Package schedule holds the pure calendar helpers behind the dashboard
// views: day-part grouping, the 7-day picker window, the month grid and
// the deterministic medication color assignment. No I/O.
package schedule

import (
	"hash/fnv"
	"sort"
	"time"

	"github.com/tiffchow214/medicine-companion/internal/model"
)

type DayPart string

const (
	PartMorning   DayPart = "Morning"
	PartAfternoon DayPart = "Afternoon"
	PartEvening   DayPart = "Evening"
	PartBedtime   DayPart = "Bedtime"
	PartAsNeeded  DayPart = "As Needed"
)

// dayPartOrder fixes the rendering order of groups on the daily view.
var dayPartOrder = []DayPart{PartMorning, PartAfternoon, PartEvening, PartBedtime, PartAsNeeded}

// PartOfDay buckets a clock time: Morning <12:00, Afternoon <17:00,
// Evening <21:00, Bedtime otherwise.
func PartOfDay(t time.Time) DayPart {
	switch hour := t.Hour(); {
	case hour < 12:
		return PartMorning
	case hour < 17:
		return PartAfternoon
	case hour < 21:
		return PartEvening
	default:
		return PartBedtime
	}
}

type DoseGroup struct {
	Part  DayPart              `json:"part"`
	Doses []model.DoseInstance `json:"doses"`
}

// GroupDoses buckets a day's doses into labeled groups. Doses of
// as-needed medications land in the "As Needed" group regardless of
// their scheduled clock time. Empty groups are omitted.
func GroupDoses(doses []model.DoseInstance, meds map[string]model.Medication) []DoseGroup {
	buckets := make(map[DayPart][]model.DoseInstance)
	for _, dose := range doses {
		part := PartOfDay(dose.ScheduledAt)
		if med, ok := meds[dose.MedicationID]; ok && med.Frequency == model.FrequencyAsNeeded {
			part = PartAsNeeded
		}
		buckets[part] = append(buckets[part], dose)
	}

	result := make([]DoseGroup, 0, len(buckets))
	for _, part := range dayPartOrder {
		group := buckets[part]
		if len(group) == 0 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].ScheduledAt.Before(group[j].ScheduledAt)
		})
		result = append(result, DoseGroup{Part: part, Doses: group})
	}
	return result
}

// WeekWindow returns the 7 days centered on the selected date, for the
// dashboard day picker.
func WeekWindow(center time.Time) []time.Time {
	year, month, day := center.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, center.Location())
	days := make([]time.Time, 0, 7)
	for offset := -3; offset <= 3; offset++ {
		days = append(days, midnight.AddDate(0, 0, offset))
	}
	return days
}

type MonthDay struct {
	Date   time.Time `json:"date"`
	Colors []string  `json:"colors,omitempty"`
}

type MonthGrid struct {
	Year          int        `json:"year"`
	Month         time.Month `json:"month"`
	LeadingBlanks int        `json:"leading_blanks"`
	Days          []MonthDay `json:"days"`
}

// BuildMonthGrid lays out the month containing anchor: leading blanks
// for the first weekday offset (Sunday-first), then one cell per day
// with a presence dot per medication color that has at least one
// scheduled dose that day. Color collisions across medications are
// expected and acceptable.
func BuildMonthGrid(anchor time.Time, doses []model.DoseInstance, meds map[string]model.Medication) MonthGrid {
	year, month, _ := anchor.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, anchor.Location())
	daysInMonth := first.AddDate(0, 1, -1).Day()

	colorsByDay := make(map[int]map[string]struct{})
	for _, dose := range doses {
		at := dose.ScheduledAt.In(anchor.Location())
		dy, dm, dd := at.Date()
		if dy != year || dm != month {
			continue
		}
		med, ok := meds[dose.MedicationID]
		if !ok {
			continue
		}
		if colorsByDay[dd] == nil {
			colorsByDay[dd] = make(map[string]struct{})
		}
		colorsByDay[dd][MedicationColor(med.Name)] = struct{}{}
	}

	days := make([]MonthDay, 0, daysInMonth)
	for day := 1; day <= daysInMonth; day++ {
		cell := MonthDay{Date: first.AddDate(0, 0, day-1)}
		if set := colorsByDay[day]; len(set) > 0 {
			cell.Colors = make([]string, 0, len(set))
			for color := range set {
				cell.Colors = append(cell.Colors, color)
			}
			sort.Strings(cell.Colors)
		}
		days = append(days, cell)
	}

	return MonthGrid{
		Year:          year,
		Month:         month,
		LeadingBlanks: int(first.Weekday()),
		Days:          days,
	}
}

var colorPalette = []string{
	"#4F8EF7",
	"#F76E6E",
	"#43B97F",
	"#F7B84F",
	"#9B6EF7",
	"#3FC1C9",
}

// MedicationColor maps a medication name onto the fixed palette with an
// FNV hash. Different medications may share a color.
func MedicationColor(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return colorPalette[h.Sum32()%uint32(len(colorPalette))]
}
