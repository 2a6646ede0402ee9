package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"oversight/internal/domain"
)

func TestPermittedTargets(t *testing.T) {
	assert.Equal(t, []domain.WorkStatus{
		domain.WorkInProgress, domain.WorkViolationFixed, domain.WorkSevereViolationFixed, domain.WorkCompleted,
	}, PermittedTargets(domain.RoleContractor))
	assert.Equal(t, PermittedTargets(domain.RoleControl), PermittedTargets(domain.RoleInspector))
	assert.Nil(t, PermittedTargets(domain.RoleAdmin))
}

func TestCanRequest(t *testing.T) {
	cases := []struct {
		role   domain.Role
		target domain.WorkStatus
		want   bool
	}{
		{domain.RoleContractor, domain.WorkAccepted, false},
		{domain.RoleContractor, domain.WorkViolation, false},
		{domain.RoleContractor, domain.WorkCompleted, true},
		{domain.RoleControl, domain.WorkAccepted, true},
		{domain.RoleControl, domain.WorkCompleted, false},
		{domain.RoleInspector, domain.WorkSevereViolation, true},
		{domain.RoleAdmin, domain.WorkInProgress, false},
		{domain.RoleControl, domain.WorkPendingRescheduleApprove, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanRequest(tc.role, tc.target), "%s -> %s", tc.role, tc.target)
	}
}

func TestIsFixApproval(t *testing.T) {
	assert.True(t, IsFixApproval(domain.RoleControl, domain.WorkSevereViolationFixed, domain.WorkCompleted))
	assert.True(t, IsFixApproval(domain.RoleInspector, domain.WorkInProgress, domain.WorkViolationFixed))
	assert.False(t, IsFixApproval(domain.RoleControl, domain.WorkViolation, domain.WorkInProgress))
	assert.False(t, IsFixApproval(domain.RoleContractor, domain.WorkViolationFixed, domain.WorkViolationFixed))
}

func TestForbiddenErrorMatchesSentinel(t *testing.T) {
	err := RequireSupervision(domain.RoleContractor, "raise violations")
	assert.True(t, errors.Is(err, domain.ErrForbidden))
	assert.Contains(t, err.Error(), "contractor")
	var fe ForbiddenError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, "raise violations", fe.Action)

	assert.NoError(t, RequireControl(domain.RoleControl, "resolve schedules"))
	assert.Error(t, RequireControl(domain.RoleInspector, "resolve schedules"))
	assert.NoError(t, RequireAdmin(domain.RoleAdmin, "create objects"))
}
