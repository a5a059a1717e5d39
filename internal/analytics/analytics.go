package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"
)

// DB is the interface for event-log queries used by analytics.
type DB interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

// PhaseDuration holds duration stats for a phase.
type PhaseDuration struct {
	Phase string  `json:"phase"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_minutes"`
	P50   float64 `json:"p50_minutes"`
	P95   float64 `json:"p95_minutes"`
}

// timestamp formats to try when parsing timestamps from the database
var timestampFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// QueryPhaseDurations returns average and percentile durations per phase.
// Each terminal phase event (completed, warned, failed) is paired with the
// phase_started event for the same run and phase. Aggregation happens in Go
// so the same query serves both database drivers.
func QueryPhaseDurations(database DB, since string) ([]PhaseDuration, error) {
	query := `
		SELECT run_id, phase, event, timestamp
		FROM phase_events
		WHERE event IN ('phase_started', 'phase_completed', 'phase_warned', 'phase_failed')`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` ORDER BY id`

	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query phase durations: %w", err)
	}
	defer rows.Close()

	starts := make(map[string]time.Time)
	phaseDurations := make(map[string][]float64)
	for rows.Next() {
		var runID, event, ts string
		var phase sql.NullString
		if err := rows.Scan(&runID, &phase, &event, &ts); err != nil {
			return nil, fmt.Errorf("scan phase duration: %w", err)
		}
		when, err := parseTimestamp(ts)
		if err != nil {
			continue
		}
		key := runID + "\x00" + phase.String

		if event == "phase_started" {
			starts[key] = when
			continue
		}
		start, ok := starts[key]
		if !ok {
			continue
		}
		delete(starts, key)
		if minutes := when.Sub(start).Minutes(); minutes > 0 {
			phaseDurations[phase.String] = append(phaseDurations[phase.String], minutes)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []PhaseDuration
	for phase, durations := range phaseDurations {
		sort.Float64s(durations)
		results = append(results, PhaseDuration{
			Phase: phase,
			Count: len(durations),
			Avg:   avg(durations),
			P50:   percentile(durations, 50),
			P95:   percentile(durations, 95),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Phase < results[j].Phase
	})
	return results, nil
}

// PhaseOutcomes holds outcome rates for a phase.
type PhaseOutcomes struct {
	Phase     string  `json:"phase"`
	Total     int     `json:"total"`
	Succeeded float64 `json:"succeeded_pct"`
	Warned    float64 `json:"warned_pct"`
	Failed    float64 `json:"failed_pct"`
}

// QueryPhaseOutcomes returns how often each phase succeeds, warns, or fails.
func QueryPhaseOutcomes(database DB, since string) ([]PhaseOutcomes, error) {
	query := `
		SELECT phase,
			COUNT(*) as total,
			SUM(CASE WHEN event = 'phase_completed' THEN 1 ELSE 0 END) as succeeded,
			SUM(CASE WHEN event = 'phase_warned' THEN 1 ELSE 0 END) as warned,
			SUM(CASE WHEN event = 'phase_failed' THEN 1 ELSE 0 END) as failed
		FROM phase_events
		WHERE event IN ('phase_completed', 'phase_warned', 'phase_failed')
		AND phase != ''`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY phase`

	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query phase outcomes: %w", err)
	}
	defer rows.Close()

	var results []PhaseOutcomes
	for rows.Next() {
		var phase string
		var total, succeeded, warned, failed int
		if err := rows.Scan(&phase, &total, &succeeded, &warned, &failed); err != nil {
			return nil, fmt.Errorf("scan phase outcome: %w", err)
		}
		results = append(results, PhaseOutcomes{
			Phase:     phase,
			Total:     total,
			Succeeded: pct(succeeded, total),
			Warned:    pct(warned, total),
			Failed:    pct(failed, total),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Phase < results[j].Phase
	})
	return results, nil
}

// Throughput holds run volume for one ISO week.
type Throughput struct {
	Period    string  `json:"period"`
	Started   int     `json:"started"`
	Completed int     `json:"completed"`
	Warned    int     `json:"completed_warned"`
	Aborted   int     `json:"aborted"`
	AvgHours  float64 `json:"avg_duration_hours"`
}

// QueryThroughput returns run counts and average wall-clock duration grouped
// by ISO week, newest first, at most ten weeks. Week bucketing happens in Go
// because date functions differ between the supported drivers.
func QueryThroughput(database DB, since string) ([]Throughput, error) {
	query := `
		SELECT run_id, event, detail, timestamp
		FROM phase_events
		WHERE event IN ('run_started', 'run_completed', 'run_aborted')`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` ORDER BY id`

	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query throughput: %w", err)
	}
	defer rows.Close()

	type bucket struct {
		started, completed, warned, aborted int
		hours                               []float64
	}
	buckets := make(map[string]*bucket)
	runStarts := make(map[string]time.Time)

	for rows.Next() {
		var runID, event string
		var detail sql.NullString
		var ts string
		if err := rows.Scan(&runID, &event, &detail, &ts); err != nil {
			return nil, fmt.Errorf("scan throughput: %w", err)
		}
		when, err := parseTimestamp(ts)
		if err != nil {
			continue
		}

		period := isoWeek(when)
		if _, ok := buckets[period]; !ok {
			buckets[period] = &bucket{}
		}
		b := buckets[period]

		switch event {
		case "run_started":
			b.started++
			runStarts[runID] = when
		case "run_completed":
			b.completed++
			if detail.String == "completed_warned" {
				b.warned++
			}
			if start, ok := runStarts[runID]; ok {
				b.hours = append(b.hours, when.Sub(start).Hours())
				delete(runStarts, runID)
			}
		case "run_aborted":
			b.aborted++
			if start, ok := runStarts[runID]; ok {
				b.hours = append(b.hours, when.Sub(start).Hours())
				delete(runStarts, runID)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []Throughput
	for period, b := range buckets {
		t := Throughput{
			Period:    period,
			Started:   b.started,
			Completed: b.completed,
			Warned:    b.warned,
			Aborted:   b.aborted,
		}
		if len(b.hours) > 0 {
			sum := 0.0
			for _, h := range b.hours {
				sum += h
			}
			t.AvgHours = math.Round(sum/float64(len(b.hours))*10) / 10
		}
		results = append(results, t)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Period > results[j].Period
	})
	if len(results) > 10 {
		results = results[:10]
	}
	return results, nil
}

// --- helpers ---

func isoWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
