package attendance

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/validator"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryAttendanceRepository is an in-memory attendance.AttendanceRepository.
type memoryAttendanceRepository struct {
	rows   map[string]attendance.Attendance
	nextID int
}

func newMemoryRepo() *memoryAttendanceRepository {
	return &memoryAttendanceRepository{rows: make(map[string]attendance.Attendance)}
}

func (m *memoryAttendanceRepository) Create(_ context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	m.nextID++
	att.ID = fmt.Sprintf("att-%d", m.nextID)
	m.rows[att.ID] = att
	return att, nil
}

func (m *memoryAttendanceRepository) Update(_ context.Context, att attendance.Attendance) error {
	if _, ok := m.rows[att.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.rows[att.ID] = att
	return nil
}

func (m *memoryAttendanceRepository) sorted() []attendance.Attendance {
	out := make([]attendance.Attendance, 0, len(m.rows))
	for _, att := range m.rows {
		out = append(out, att)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClockIn.After(*out[j].ClockIn) })
	return out
}

func (m *memoryAttendanceRepository) GetOpenSession(_ context.Context, userID string) (attendance.Attendance, error) {
	for _, att := range m.sorted() {
		if att.UserID == userID && att.IsOpen() {
			return att, nil
		}
	}
	return attendance.Attendance{}, fmt.Errorf("no open attendance session found: %w", pgx.ErrNoRows)
}

func (m *memoryAttendanceRepository) GetLatestByDate(_ context.Context, userID string, date time.Time) (attendance.Attendance, error) {
	for _, att := range m.sorted() {
		if att.UserID == userID && att.Date.Equal(date) {
			return att, nil
		}
	}
	return attendance.Attendance{}, pgx.ErrNoRows
}

func (m *memoryAttendanceRepository) GetStats(_ context.Context, userID string, monthStart time.Time) (attendance.Stats, error) {
	var stats attendance.Stats
	days := map[time.Time]bool{}
	monthDays := map[time.Time]bool{}
	for _, att := range m.rows {
		if att.UserID != userID || att.WorkHoursInMinutes == nil {
			continue
		}
		days[att.Date] = true
		stats.TotalMinutes += int64(*att.WorkHoursInMinutes)
		if !att.Date.Before(monthStart) {
			monthDays[att.Date] = true
			stats.MonthMinutes += int64(*att.WorkHoursInMinutes)
		}
	}
	stats.TotalDays = len(days)
	stats.MonthDays = len(monthDays)
	return stats, nil
}

func (m *memoryAttendanceRepository) GetStaleOpenSessions(_ context.Context, cutoff time.Time) ([]attendance.Attendance, error) {
	var out []attendance.Attendance
	for _, att := range m.rows {
		if att.IsOpen() && att.ClockIn.Before(cutoff) {
			out = append(out, att)
		}
	}
	return out, nil
}

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestService(repo *memoryAttendanceRepository, now *time.Time) *AttendanceServiceImpl {
	return &AttendanceServiceImpl{
		AttendanceRepository: repo,
		loc:                  time.UTC,
		now:                  func() time.Time { return *now },
	}
}

func intent(userID string, at time.Time) attendance.IntentRequest {
	return attendance.IntentRequest{UserID: userID, Date: attendance.FormatTime(at)}
}

func TestAttendanceService_CheckIn_Creates(t *testing.T) {
	ctx := context.Background()
	now := testNow
	svc := newTestService(newMemoryRepo(), &now)

	result, err := svc.CheckIn(ctx, intent("user-1", now))

	require.NoError(t, err)
	assert.Equal(t, MessageCheckedIn, result.Message)
	require.NotNil(t, result.Data)
	assert.Nil(t, result.Attendance)
	assert.Equal(t, "2025-03-10T09:00:00.000Z", result.Data.CheckinTime)
	assert.Nil(t, result.Data.CheckoutTime)
	assert.Nil(t, result.Data.WorkingHours)
}

// Test a second check-in returns the open session under "attendance"
func TestAttendanceService_CheckIn_ExistingSession(t *testing.T) {
	ctx := context.Background()
	now := testNow
	repo := newMemoryRepo()
	svc := newTestService(repo, &now)

	_, err := svc.CheckIn(ctx, intent("user-1", now))
	require.NoError(t, err)

	now = testNow.Add(10 * time.Minute)
	result, err := svc.CheckIn(ctx, intent("user-1", now))

	require.NoError(t, err)
	assert.Equal(t, MessageAlreadyChecked, result.Message)
	assert.Nil(t, result.Data)
	require.NotNil(t, result.Attendance)
	assert.Equal(t, "2025-03-10T09:00:00.000Z", result.Attendance.CheckinTime)
	assert.Len(t, repo.rows, 1)
}

func TestAttendanceService_CheckIn_Validation(t *testing.T) {
	ctx := context.Background()
	now := testNow
	svc := newTestService(newMemoryRepo(), &now)

	_, err := svc.CheckIn(ctx, attendance.IntentRequest{UserID: "", Date: "yesterday"})

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
}

func TestAttendanceService_CheckIn_UserMismatch(t *testing.T) {
	ctx := context.Background()
	now := testNow
	svc := newTestService(newMemoryRepo(), &now)

	req := intent("user-1", now)
	req.AuthUserID = "user-2"
	_, err := svc.CheckIn(ctx, req)

	assert.ErrorIs(t, err, attendance.ErrUserMismatch)
}

func TestAttendanceService_CheckOut(t *testing.T) {
	ctx := context.Background()
	now := testNow
	repo := newMemoryRepo()
	svc := newTestService(repo, &now)

	_, err := svc.CheckIn(ctx, intent("user-1", now))
	require.NoError(t, err)

	now = testNow.Add(30 * time.Minute)
	result, err := svc.CheckOut(ctx, intent("user-1", now))

	require.NoError(t, err)
	assert.Equal(t, MessageCheckedOut, result.Message)
	require.NotNil(t, result.Data)
	require.NotNil(t, result.Data.CheckoutTime)
	assert.Equal(t, "2025-03-10T09:30:00.000Z", *result.Data.CheckoutTime)
	require.NotNil(t, result.Data.WorkingHours)
	assert.InDelta(t, 0.5, *result.Data.WorkingHours, 1e-9)

	att := repo.rows["att-1"]
	assert.Equal(t, attendance.StatusCheckedOut, att.Status)
	require.NotNil(t, att.WorkHoursInMinutes)
	assert.Equal(t, 30, *att.WorkHoursInMinutes)
}

func TestAttendanceService_CheckOut_NotCheckedIn(t *testing.T) {
	ctx := context.Background()
	now := testNow
	svc := newTestService(newMemoryRepo(), &now)

	_, err := svc.CheckOut(ctx, intent("user-1", now))

	assert.ErrorIs(t, err, attendance.ErrNotCheckedIn)
}

func TestAttendanceService_Today(t *testing.T) {
	ctx := context.Background()
	now := testNow
	svc := newTestService(newMemoryRepo(), &now)

	_, err := svc.Today(ctx, "user-1")
	assert.ErrorIs(t, err, attendance.ErrAttendanceNotFound)

	_, err = svc.CheckIn(ctx, intent("user-1", now))
	require.NoError(t, err)

	rec, err := svc.Today(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10T09:00:00.000Z", rec.CheckinTime)
}

func TestAttendanceService_Stats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 2, 27, 9, 0, 0, 0, time.UTC)
	repo := newMemoryRepo()
	svc := newTestService(repo, &now)

	// One hour in February, then 30 minutes twice in March
	_, _ = svc.CheckIn(ctx, intent("user-1", now))
	now = now.Add(time.Hour)
	_, _ = svc.CheckOut(ctx, intent("user-1", now))

	now = testNow
	_, _ = svc.CheckIn(ctx, intent("user-1", now))
	now = now.Add(30 * time.Minute)
	_, _ = svc.CheckOut(ctx, intent("user-1", now))

	now = testNow.Add(24 * time.Hour)
	_, _ = svc.CheckIn(ctx, intent("user-1", now))
	now = now.Add(30 * time.Minute)
	_, _ = svc.CheckOut(ctx, intent("user-1", now))

	stats, err := svc.Stats(ctx, "user-1")

	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDays)
	assert.Equal(t, 2.0, stats.TotalHours)
	assert.Equal(t, 0.67, stats.AverageHours)
	assert.Equal(t, 2, stats.MonthDays)
	assert.Equal(t, 1.0, stats.MonthHours)
}

func TestAttendanceService_AutoCloseStale(t *testing.T) {
	ctx := context.Background()
	now := testNow
	repo := newMemoryRepo()
	svc := newTestService(repo, &now)

	_, err := svc.CheckIn(ctx, intent("user-1", now))
	require.NoError(t, err)
	now = testNow.Add(2 * time.Hour)
	_, err = svc.CheckIn(ctx, intent("user-2", now))
	require.NoError(t, err)

	now = testNow.Add(13 * time.Hour)
	closed, err := svc.AutoCloseStale(ctx, 12*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	att := repo.rows["att-1"]
	assert.Equal(t, attendance.StatusAutoClosed, att.Status)
	require.NotNil(t, att.ClockOut)
	assert.Equal(t, testNow.Add(12*time.Hour), *att.ClockOut)
	assert.True(t, repo.rows["att-2"].IsOpen())

	_, err = svc.AutoCloseStale(ctx, 0)
	assert.Error(t, err)
}
