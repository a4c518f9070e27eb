package calendar

import (
	"fmt"

	"github.com/tapiocalabs/clinagenda/services/console-service/internal/colorkey"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/model"
)

// DayKeyLayout is the calendar day key format. Keys are taken from the start
// instant in its recorded zone; no zone conversion happens here.
const DayKeyLayout = "2006-01-02"

const DefaultCap = 3

// Entry is one color marker on a calendar day.
type Entry struct {
	Key   string
	Color colorkey.Color
}

// DayIndicator is the derived marker set for one day. HasMore is set when the
// day holds more appointments than the cap allows entries; a capped day must
// still say that more exist.
type DayIndicator struct {
	Entries []Entry
	HasMore bool
}

// Aggregate groups active appointments by calendar day and derives up to cap
// color entries per day, keyed on the specialty name. Entries keep the input
// encounter order; enumeration stops at the cap. Days without appointments
// are absent from the result. Pure function of its input.
func Aggregate(appts []model.Appointment, cap int) map[string]DayIndicator {
	if cap <= 0 {
		cap = DefaultCap
	}

	out := make(map[string]DayIndicator)
	for _, a := range appts {
		if !a.Active {
			continue
		}
		day := a.Start.Format(DayKeyLayout)

		ind := out[day]
		if len(ind.Entries) >= cap {
			ind.HasMore = true
			out[day] = ind
			continue
		}
		color := colorkey.ColorFor(a.Specialty.Name)
		ind.Entries = append(ind.Entries, Entry{
			Key:   fmt.Sprintf("%s-%s", a.ID, color.CSS()),
			Color: color,
		})
		out[day] = ind
	}
	return out
}

// OnDay returns the active appointments whose start falls on the given day
// key, preserving encounter order.
func OnDay(appts []model.Appointment, dayKey string) []model.Appointment {
	var matched []model.Appointment
	for _, a := range appts {
		if !a.Active {
			continue
		}
		if a.Start.Format(DayKeyLayout) == dayKey {
			matched = append(matched, a)
		}
	}
	return matched
}
