package pipeline

import (
	"time"

	"github.com/seclens/rotograph/internal/contracts"
)

// QuarterStart returns the calendar-quarter boundary at or before t.
func QuarterStart(t time.Time) time.Time {
	month := time.Month(((int(t.Month())-1)/3)*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC)
}

// NextQuarter returns the period following p, ending at the next quarter
// boundary after p.End.
func NextQuarter(p contracts.Period) contracts.Period {
	return contracts.Period{Start: p.End, End: QuarterStart(p.End).AddDate(0, 3, 0)}
}

// Partition splits [from, to) into consecutive quarter-aligned sub-ranges.
// The first and last sub-range are truncated at the requested boundaries;
// interior sub-ranges are whole quarters. An empty or inverted range yields
// no sub-ranges.
func Partition(from, to time.Time) []contracts.Period {
	if !to.After(from) {
		return nil
	}

	var periods []contracts.Period
	cursor := from
	for cursor.Before(to) {
		boundary := QuarterStart(cursor).AddDate(0, 3, 0)
		end := boundary
		if end.After(to) {
			end = to
		}
		periods = append(periods, contracts.Period{Start: cursor, End: end})
		cursor = end
	}
	return periods
}

// thirdFriday returns the third Friday of the month, the NYSE rebalance
// effective date for quarterly index reviews.
func thirdFriday(year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+14)
}

// lastFriday returns the last Friday of the month, the Russell
// reconstitution effective date.
func lastFriday(year int, month time.Month) time.Time {
	last := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(time.Friday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// IndexWindowsForRange returns the passive-index reconstitution windows
// overlapping [from, to): quarterly S&P-style reviews around each
// quarter-end month's third Friday, plus the annual Russell reconstitution
// in June. Purely calendar-driven, no data dependency.
func IndexWindowsForRange(from, to time.Time) []contracts.IndexWindow {
	if !to.After(from) {
		return nil
	}

	var windows []contracts.IndexWindow
	add := func(w contracts.IndexWindow) {
		if w.Start.Before(to) && w.End.After(from) {
			windows = append(windows, w)
		}
	}

	for year := from.Year(); year <= to.Year(); year++ {
		for _, month := range []time.Month{time.March, time.June, time.September, time.December} {
			effective := thirdFriday(year, month)
			add(contracts.IndexWindow{
				Phase: contracts.PhaseEffective,
				Start: effective.AddDate(0, 0, -5),
				End:   effective.AddDate(0, 0, 3),
			})
		}

		recon := lastFriday(year, time.June)
		add(contracts.IndexWindow{
			Phase: contracts.PhaseAnnounce,
			Start: time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC),
			End:   recon.AddDate(0, 0, -7),
		})
		add(contracts.IndexWindow{
			Phase: contracts.PhaseDrift,
			Start: recon.AddDate(0, 0, -7),
			End:   recon.AddDate(0, 0, 10),
		})
	}

	return windows
}
