package aggregators

import (
	"sort"
)

// commonStatusCodes always appear in a report, even at zero hits
var commonStatusCodes = []int{200, 300, 400, 500}

// ReportAccumulator holds the counts of one report period.
type ReportAccumulator struct {
	totalHits   int64
	sections    map[string]int64
	statusCodes map[int]int64
}

// NewReportAccumulator returns an empty accumulator with the common status codes seeded.
func NewReportAccumulator() *ReportAccumulator {
	acc := &ReportAccumulator{}
	acc.Clear()
	return acc
}

// Add accounts one hit.
func (r *ReportAccumulator) Add(section string, statusCode int) {
	r.totalHits++
	r.sections[section]++
	r.statusCodes[statusCode]++
}

// Clear resets every count and reseeds the common status codes.
func (r *ReportAccumulator) Clear() {
	r.totalHits = 0
	r.sections = make(map[string]int64)
	r.statusCodes = make(map[int]int64, len(commonStatusCodes))
	for _, code := range commonStatusCodes {
		r.statusCodes[code] = 0
	}
}

// TotalHits returns the hits accounted since the last Clear.
func (r *ReportAccumulator) TotalHits() int64 {
	return r.totalHits
}

// Sections returns the per-section counts. The map is owned by the accumulator.
func (r *ReportAccumulator) Sections() map[string]int64 {
	return r.sections
}

// StatusCodeCount is one row of the status code table.
type StatusCodeCount struct {
	Code int   `json:"code"`
	Hits int64 `json:"hits"`
}

// StatusCodes returns every status code row sorted by code ascending.
func (r *ReportAccumulator) StatusCodes() []StatusCodeCount {
	rows := make([]StatusCodeCount, 0, len(r.statusCodes))
	for code, hits := range r.statusCodes {
		rows = append(rows, StatusCodeCount{Code: code, Hits: hits})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return rows
}
