package aggregators

import (
	"fmt"
	"testing"

	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReport(t *testing.T, windowSeconds int) (*TumblingReport, *types.MessageQueue) {
	t.Helper()
	report, err := NewTumblingReport("report", windowSeconds, 0, newTestLogger())
	require.NoError(t, err)
	queue := types.NewMessageQueue()
	report.RegisterMessageQueue(queue)
	return report, queue
}

func hit(ts int64, status int, section string) types.Event {
	return types.Event{Timestamp: ts, StatusCode: status, Section: section}
}

func TestNewTumblingReportRejectsInvalidWindow(t *testing.T) {
	_, err := NewTumblingReport("r", 0, 5, newTestLogger())
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArgument))
}

func TestReportAdvanceTimeWithoutQueueFails(t *testing.T) {
	report, err := NewTumblingReport("r", 2, 5, newTestLogger())
	require.NoError(t, err)

	assert.True(t, errors.HasCode(report.AdvanceTime(1), errors.CodePreconditionFailed))
	assert.True(t, errors.HasCode(report.Flush(1), errors.CodePreconditionFailed))
}

func TestReportNotEmittedBeforePeriodEnds(t *testing.T) {
	report, queue := newTestReport(t, 10)

	require.NoError(t, report.AdvanceTime(1))
	report.Collect(hit(1, 200, "/api"))
	require.NoError(t, report.AdvanceTime(10))

	assert.Equal(t, 0, queue.Len())
	assert.Equal(t, int64(1), report.WindowStart())
}

func TestReportCoversExclusivePeriod(t *testing.T) {
	report, queue := newTestReport(t, 2)

	require.NoError(t, report.AdvanceTime(1))
	report.Collect(hit(1, 404, "/api"))
	report.Collect(hit(1, 503, "/api"))
	require.NoError(t, report.AdvanceTime(3))

	require.Equal(t, 1, queue.Len())
	msg, _ := queue.Dequeue()
	assert.Equal(t, types.MessageKindReport, msg.Kind)
	assert.Equal(t, "REPORT - FROM 1970-01-01 00:00:01Z TO 1970-01-01 00:00:03Z EXCLUSIVE\n"+
		"TOTAL HITS: 2 \n"+
		"TOP 5 SECTIONS HITS: \n"+
		"SECTION: /api HITS: 2 \n"+
		"HTTP_CODE: 200 HITS: 0 \n"+
		"HTTP_CODE: 300 HITS: 0 \n"+
		"HTTP_CODE: 400 HITS: 0 \n"+
		"HTTP_CODE: 404 HITS: 1 \n"+
		"HTTP_CODE: 500 HITS: 0 \n"+
		"HTTP_CODE: 503 HITS: 1 \n", msg.Text)
	assert.Equal(t, int64(3), report.WindowStart())
}

func TestReportAlwaysListsCommonStatusCodes(t *testing.T) {
	report, queue := newTestReport(t, 2)

	require.NoError(t, report.AdvanceTime(1))
	require.NoError(t, report.AdvanceTime(3))

	msg, ok := queue.Dequeue()
	require.True(t, ok)
	assert.Contains(t, msg.Text, "TOTAL HITS: 0 \n")
	for _, code := range []int{200, 300, 400, 500} {
		assert.Contains(t, msg.Text, fmt.Sprintf("HTTP_CODE: %d HITS: 0 \n", code))
	}
}

func TestReportListsTopFiveSections(t *testing.T) {
	report, queue := newTestReport(t, 2)
	require.NoError(t, report.AdvanceTime(1))

	for i := 1; i <= 20; i++ {
		for j := 0; j < i; j++ {
			report.Collect(hit(1, 200, fmt.Sprintf("/api-%d", i)))
		}
	}
	require.NoError(t, report.AdvanceTime(3))

	msg, _ := queue.Dequeue()
	assert.Equal(t, "REPORT - FROM 1970-01-01 00:00:01Z TO 1970-01-01 00:00:03Z EXCLUSIVE\n"+
		"TOTAL HITS: 210 \n"+
		"TOP 5 SECTIONS HITS: \n"+
		"SECTION: /api-20 HITS: 20 \n"+
		"SECTION: /api-19 HITS: 19 \n"+
		"SECTION: /api-18 HITS: 18 \n"+
		"SECTION: /api-17 HITS: 17 \n"+
		"SECTION: /api-16 HITS: 16 \n"+
		"HTTP_CODE: 200 HITS: 210 \n"+
		"HTTP_CODE: 300 HITS: 0 \n"+
		"HTTP_CODE: 400 HITS: 0 \n"+
		"HTTP_CODE: 500 HITS: 0 \n", msg.Text)
}

func TestReportDropsEventsBeforePeriodStart(t *testing.T) {
	report, queue := newTestReport(t, 2)

	require.NoError(t, report.AdvanceTime(5))
	report.Collect(hit(4, 200, "/late"))
	report.Collect(hit(5, 200, "/ok"))
	report.Collect(hit(6, 200, "/ok"))
	require.NoError(t, report.AdvanceTime(7))

	msg, _ := queue.Dequeue()
	assert.Contains(t, msg.Text, "TOTAL HITS: 2 \n")
	assert.NotContains(t, msg.Text, "/late")
	assert.Equal(t, int64(1), report.GetStats()["late_events"])
}

func TestReportResetsBetweenPeriods(t *testing.T) {
	report, queue := newTestReport(t, 2)

	require.NoError(t, report.AdvanceTime(1))
	report.Collect(hit(1, 200, "/first"))
	require.NoError(t, report.AdvanceTime(3))
	report.Collect(hit(3, 500, "/second"))
	require.NoError(t, report.AdvanceTime(5))

	msgs := queue.Drain()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "FROM 1970-01-01 00:00:03Z TO 1970-01-01 00:00:05Z")
	assert.Contains(t, msgs[1].Text, "SECTION: /second HITS: 1")
	assert.NotContains(t, msgs[1].Text, "/first")
	assert.Contains(t, msgs[1].Text, "HTTP_CODE: 200 HITS: 0")
	assert.Contains(t, msgs[1].Text, "HTTP_CODE: 500 HITS: 1")
}

func TestReportGapLongerThanWindowEmitsSinglePeriod(t *testing.T) {
	report, queue := newTestReport(t, 10)

	require.NoError(t, report.AdvanceTime(100))
	report.Collect(hit(100, 200, "/a"))
	require.NoError(t, report.AdvanceTime(500))

	msgs := queue.Drain()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "FROM 1970-01-01 00:01:40Z TO 1970-01-01 00:08:20Z EXCLUSIVE")
}

func TestReportFlush(t *testing.T) {
	report, queue := newTestReport(t, 10)

	// nothing to flush before the first AdvanceTime
	require.NoError(t, report.Flush(5))
	assert.Equal(t, 0, queue.Len())

	require.NoError(t, report.AdvanceTime(1))
	report.Collect(hit(1, 200, "/a"))
	report.Collect(hit(4, 200, "/a"))
	require.NoError(t, report.Flush(5))

	msg, ok := queue.Dequeue()
	require.True(t, ok)
	assert.Contains(t, msg.Text, "FROM 1970-01-01 00:00:01Z TO 1970-01-01 00:00:05Z EXCLUSIVE")
	assert.Contains(t, msg.Text, "TOTAL HITS: 2 \n")

	// the period restarted at the flush point
	require.NoError(t, report.Flush(5))
	assert.Equal(t, 0, queue.Len())
}

func TestReportCustomTopSections(t *testing.T) {
	report, err := NewTumblingReport("r", 1, 2, newTestLogger())
	require.NoError(t, err)
	queue := types.NewMessageQueue()
	report.RegisterMessageQueue(queue)

	require.NoError(t, report.AdvanceTime(0))
	for _, s := range []string{"/a", "/b", "/b", "/c", "/c", "/c"} {
		report.Collect(hit(0, 200, s))
	}
	require.NoError(t, report.AdvanceTime(1))

	msg, _ := queue.Dequeue()
	assert.Contains(t, msg.Text, "TOP 2 SECTIONS HITS: \nSECTION: /c HITS: 3 \nSECTION: /b HITS: 2 \nHTTP_CODE")
}

func TestReportAccumulatorClearReseeds(t *testing.T) {
	acc := NewReportAccumulator()
	acc.Add("/a", 418)
	acc.Add("/a", 200)
	require.Equal(t, int64(2), acc.TotalHits())
	require.Len(t, acc.StatusCodes(), 5)

	acc.Clear()
	assert.Equal(t, int64(0), acc.TotalHits())
	assert.Empty(t, acc.Sections())
	assert.Equal(t, []StatusCodeCount{
		{Code: 200}, {Code: 300}, {Code: 400}, {Code: 500},
	}, acc.StatusCodes())
}
