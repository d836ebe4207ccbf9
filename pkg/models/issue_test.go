package models_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/craterhq/crater/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(ts time.Time) models.ErrorEvent {
	return models.ErrorEvent{
		ID:         uuid.New(),
		ErrorType:  "NullPointerException",
		Message:    "nil deref",
		Frames:     []models.StackFrame{{File: "a.py", Function: "foo", Line: 10}},
		OccurredAt: ts,
	}
}

func TestNewIssue(t *testing.T) {
	tenantID := uuid.New()
	ts := time.Now().UTC()
	first := newEvent(ts)

	issue, events := models.NewIssue(tenantID, "fp-1", first)

	assert.NotEqual(t, uuid.Nil, issue.ID)
	assert.Equal(t, tenantID, issue.TenantID)
	assert.Equal(t, "fp-1", issue.Fingerprint)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.Equal(t, 1, issue.Count)
	assert.Equal(t, ts, issue.FirstSeenAt)
	assert.Equal(t, ts, issue.LastSeenAt)
	require.Len(t, issue.Sample, 1)
	assert.Equal(t, first.ID, issue.Sample[0].ID)

	require.Len(t, events, 1)
	assert.Equal(t, models.EventIssueCreated, events[0].Kind)
	assert.Equal(t, issue.ID, events[0].IssueID)
	assert.Equal(t, "fp-1", events[0].Payload["fingerprint"])
}

func TestRecordOccurrence_OpenStaysOpen(t *testing.T) {
	t1 := time.Now().UTC()
	issue, _ := models.NewIssue(uuid.New(), "fp-1", newEvent(t1))

	t2 := t1.Add(time.Minute)
	events := issue.RecordOccurrence(newEvent(t2))

	assert.Empty(t, events)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.Equal(t, 2, issue.Count)
	assert.Equal(t, t1, issue.FirstSeenAt)
	assert.Equal(t, t2, issue.LastSeenAt)
}

func TestRecordOccurrence_OutOfOrderTimestamps(t *testing.T) {
	t1 := time.Now().UTC()
	issue, _ := models.NewIssue(uuid.New(), "fp-1", newEvent(t1))

	// An older event must not move last-seen backwards
	earlier := t1.Add(-time.Hour)
	issue.RecordOccurrence(newEvent(earlier))

	assert.Equal(t, earlier, issue.FirstSeenAt)
	assert.Equal(t, t1, issue.LastSeenAt)
}

func TestRecordOccurrence_ReopensResolved(t *testing.T) {
	issue, _ := models.NewIssue(uuid.New(), "fp-1", newEvent(time.Now().UTC()))

	_, err := issue.Resolve("alice")
	require.NoError(t, err)
	require.Equal(t, models.IssueStatusResolved, issue.Status)

	events := issue.RecordOccurrence(newEvent(time.Now().UTC()))

	require.Len(t, events, 1)
	assert.Equal(t, models.EventIssueReopened, events[0].Kind)
	assert.Equal(t, models.IssueStatusOpen, issue.Status)
	assert.Equal(t, 2, issue.Count)
	assert.Nil(t, issue.ResolvedBy)
	assert.Nil(t, issue.ResolvedAt)
}

func TestRecordOccurrence_IgnoredStaysIgnored(t *testing.T) {
	t1 := time.Now().UTC()
	issue, _ := models.NewIssue(uuid.New(), "fp-1", newEvent(t1))

	_, err := issue.Ignore()
	require.NoError(t, err)

	t2 := t1.Add(time.Minute)
	events := issue.RecordOccurrence(newEvent(t2))

	assert.Empty(t, events)
	assert.Equal(t, models.IssueStatusIgnored, issue.Status)
	assert.Equal(t, 2, issue.Count)
	assert.Equal(t, t2, issue.LastSeenAt)
}

func TestRecordOccurrence_SampleRingBounded(t *testing.T) {
	ts := time.Now().UTC()
	issue, _ := models.NewIssue(uuid.New(), "fp-1", newEvent(ts))

	var last models.ErrorEvent
	for i := 0; i < models.SampleSize+5; i++ {
		last = newEvent(ts.Add(time.Duration(i) * time.Second))
		issue.RecordOccurrence(last)
	}

	assert.Len(t, issue.Sample, models.SampleSize)
	// Newest first
	assert.Equal(t, last.ID, issue.Sample[0].ID)
}

func TestResolve(t *testing.T) {
	issue, _ := models.NewIssue(uuid.New(), "fp-1", newEvent(time.Now().UTC()))

	events, err := issue.Resolve("alice")
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, models.EventIssueResolved, events[0].Kind)
	assert.Equal(t, "alice", events[0].Payload["resolved_by"])
	assert.Equal(t, models.IssueStatusResolved, issue.Status)
	require.NotNil(t, issue.ResolvedBy)
	assert.Equal(t, "alice", *issue.ResolvedBy)
	assert.NotNil(t, issue.ResolvedAt)
}

func TestResolve_FromIgnored(t *testing.T) {
	issue, _ := models.NewIssue(uuid.New(), "fp-1", newEvent(time.Now().UTC()))
	_, err := issue.Ignore()
	require.NoError(t, err)

	events, err := issue.Resolve("bob")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.IssueStatusResolved, issue.Status)
}

func TestResolve_AlreadyResolvedFails(t *testing.T) {
	issue, _ := models.NewIssue(uuid.New(), "fp-1", newEvent(time.Now().UTC()))
	_, err := issue.Resolve("alice")
	require.NoError(t, err)

	_, err = issue.Resolve("bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidState))
}

func TestResolve_NoOccurrencesFails(t *testing.T) {
	issue := &models.Issue{ID: uuid.New(), Status: models.IssueStatusOpen}

	_, err := issue.Resolve("alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidState))
}

func TestIgnore_FromAnyStatus(t *testing.T) {
	for _, from := range []string{models.IssueStatusOpen, models.IssueStatusResolved, models.IssueStatusIgnored} {
		t.Run(fmt.Sprintf("from_%s", from), func(t *testing.T) {
			issue, _ := models.NewIssue(uuid.New(), "fp-1", newEvent(time.Now().UTC()))
			switch from {
			case models.IssueStatusResolved:
				_, err := issue.Resolve("alice")
				require.NoError(t, err)
			case models.IssueStatusIgnored:
				_, err := issue.Ignore()
				require.NoError(t, err)
			}

			events, err := issue.Ignore()
			require.NoError(t, err)
			assert.Empty(t, events)
			assert.Equal(t, models.IssueStatusIgnored, issue.Status)
		})
	}
}

func TestIgnore_NoOccurrencesFails(t *testing.T) {
	issue := &models.Issue{ID: uuid.New(), Status: models.IssueStatusOpen}

	_, err := issue.Ignore()
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidState))
}
