package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oversight/internal/domain"
)

func plan(status domain.WorkStatus) domain.Plan {
	return domain.Plan{StartDate: "2024-05-01", EndDate: "2024-09-30", Status: status}
}

func TestProposeByContractorStages(t *testing.T) {
	p := plan(domain.WorkInProgress)
	propose(&p, DateChange{EndDate: "2024-10-15"}, false)

	assert.Equal(t, domain.WorkPendingRescheduleApprove, p.Status)
	require.NotNil(t, p.Pending)
	assert.Equal(t, "2024-05-01", p.Pending.StartDate)
	assert.Equal(t, "2024-10-15", p.Pending.EndDate)
	assert.Equal(t, domain.WorkInProgress, p.Pending.LastStatus)
	assert.Equal(t, "2024-09-30", p.EndDate, "committed dates untouched while pending")
}

func TestRepeatedProposalKeepsLastStatus(t *testing.T) {
	p := plan(domain.WorkSuspended)
	propose(&p, DateChange{EndDate: "2024-10-01"}, false)
	propose(&p, DateChange{EndDate: "2024-10-02"}, false)
	propose(&p, DateChange{StartDate: "2024-05-02"}, false)

	require.NotNil(t, p.Pending)
	assert.Equal(t, domain.WorkSuspended, p.Pending.LastStatus)
	assert.Equal(t, "2024-05-02", p.Pending.StartDate)
	assert.Equal(t, "2024-09-30", p.Pending.EndDate, "empty fields fill from committed dates")

	require.NoError(t, resolve(&p, false))
	assert.Equal(t, domain.WorkSuspended, p.Status)
	assert.Nil(t, p.Pending)
}

func TestProposeByControlCommits(t *testing.T) {
	p := plan(domain.WorkNotStarted)
	propose(&p, DateChange{StartDate: "2024-04-01"}, true)
	assert.Equal(t, "2024-04-01", p.StartDate)
	assert.Equal(t, "2024-09-30", p.EndDate)
	assert.Equal(t, domain.WorkNotStarted, p.Status)
	assert.Nil(t, p.Pending)

	// control overriding a pending proposal drops the staging
	propose(&p, DateChange{EndDate: "2024-12-01"}, false)
	propose(&p, DateChange{EndDate: "2024-11-01"}, true)
	assert.Equal(t, "2024-11-01", p.EndDate)
	assert.Equal(t, domain.WorkNotStarted, p.Status)
	assert.False(t, p.IsPending())
}

func TestResolve(t *testing.T) {
	p := plan(domain.WorkInProgress)
	err := resolve(&p, true)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	propose(&p, DateChange{StartDate: "2024-06-01", EndDate: "2024-12-31"}, false)
	require.NoError(t, resolve(&p, true))
	assert.Equal(t, "2024-06-01", p.StartDate)
	assert.Equal(t, "2024-12-31", p.EndDate)
	assert.Equal(t, domain.WorkInProgress, p.Status)
	assert.Nil(t, p.Pending)
}

func TestPriorStatusDefaultsToNotStarted(t *testing.T) {
	p := domain.Plan{Status: domain.WorkPendingRescheduleApprove, Pending: &domain.Proposal{}}
	require.NoError(t, resolve(&p, false))
	assert.Equal(t, domain.WorkNotStarted, p.Status)
}

func TestValidateRange(t *testing.T) {
	cases := []struct {
		name       string
		start, end string
		ok         bool
	}{
		{"ordered", "2024-01-01", "2024-02-01", true},
		{"same day", "2024-01-01", "2024-01-01", true},
		{"rfc3339", "2024-01-01T00:00:00Z", "2024-01-02", true},
		{"open end", "2024-01-01", "", true},
		{"reversed", "2024-02-01", "2024-01-01", false},
		{"garbage", "soon", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateRange(tc.start, tc.end)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
			}
		})
	}
}
