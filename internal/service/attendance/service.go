package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/database"
	"github.com/cmlabs-hris/hris-presence-go/internal/repository/postgresql"
	"github.com/jackc/pgx/v5"
)

const (
	MessageCheckedIn      = "Check-in successful"
	MessageAlreadyChecked = "Already checked in"
	MessageCheckedOut     = "Check-out successful"
)

type AttendanceServiceImpl struct {
	db *database.DB
	attendance.AttendanceRepository
	loc *time.Location
	now func() time.Time
}

// CheckIn implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) CheckIn(ctx context.Context, req attendance.IntentRequest) (attendance.CheckResult, error) {
	if err := a.validateIntent(&req); err != nil {
		return attendance.CheckResult{}, err
	}

	nowUTC := a.now().UTC()
	var result attendance.CheckResult

	err := a.withTx(ctx, func(ctx context.Context) error {
		open, err := a.AttendanceRepository.GetOpenSession(ctx, req.UserID)
		if err == nil {
			// An open session is answered as-is so repeated intents stay idempotent
			rec := open.ToRecord()
			result = attendance.CheckResult{Message: MessageAlreadyChecked, Attendance: &rec}
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to get open session: %w", err)
		}

		created, err := a.AttendanceRepository.Create(ctx, attendance.Attendance{
			UserID:  req.UserID,
			Date:    a.localDate(nowUTC),
			ClockIn: &nowUTC,
			Status:  attendance.StatusCheckedIn,
		})
		if err != nil {
			return fmt.Errorf("failed to create attendance record: %w", err)
		}

		rec := created.ToRecord()
		result = attendance.CheckResult{Message: MessageCheckedIn, Data: &rec}
		return nil
	})
	if err != nil {
		return attendance.CheckResult{}, err
	}

	slog.Info("Attendance check-in", "user_id", req.UserID, "message", result.Message)
	return result, nil
}

// CheckOut implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) CheckOut(ctx context.Context, req attendance.IntentRequest) (attendance.CheckResult, error) {
	if err := a.validateIntent(&req); err != nil {
		return attendance.CheckResult{}, err
	}

	nowUTC := a.now().UTC()
	var result attendance.CheckResult

	err := a.withTx(ctx, func(ctx context.Context) error {
		attendanceData, err := a.AttendanceRepository.GetOpenSession(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return attendance.ErrNotCheckedIn
			}
			return fmt.Errorf("failed to get open session: %w", err)
		}

		if nowUTC.Before(*attendanceData.ClockIn) {
			return attendance.ErrCheckOutBeforeIn
		}

		workHoursMins := int(nowUTC.Sub(*attendanceData.ClockIn).Minutes())
		attendanceData.ClockOut = &nowUTC
		attendanceData.WorkHoursInMinutes = &workHoursMins
		attendanceData.Status = attendance.StatusCheckedOut

		if err := a.AttendanceRepository.Update(ctx, attendanceData); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("attendance not found: %w", attendance.ErrAttendanceNotFound)
			}
			return fmt.Errorf("failed to update attendance record: %w", err)
		}

		rec := attendanceData.ToRecord()
		result = attendance.CheckResult{Message: MessageCheckedOut, Data: &rec}
		return nil
	})
	if err != nil {
		return attendance.CheckResult{}, err
	}

	slog.Info("Attendance check-out", "user_id", req.UserID, "working_hours", *result.Data.WorkingHours)
	return result, nil
}

// Today implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) Today(ctx context.Context, userID string) (attendance.Record, error) {
	att, err := a.AttendanceRepository.GetLatestByDate(ctx, userID, a.localDate(a.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.Record{}, attendance.ErrAttendanceNotFound
		}
		return attendance.Record{}, fmt.Errorf("failed to get today's attendance: %w", err)
	}
	return att.ToRecord(), nil
}

// Stats implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) Stats(ctx context.Context, userID string) (attendance.StatsResponse, error) {
	nowLocal := a.now().In(a.loc)
	monthStart := time.Date(nowLocal.Year(), nowLocal.Month(), 1, 0, 0, 0, 0, a.loc)

	stats, err := a.AttendanceRepository.GetStats(ctx, userID, monthStart)
	if err != nil {
		return attendance.StatsResponse{}, fmt.Errorf("failed to get attendance stats: %w", err)
	}

	resp := attendance.StatsResponse{
		TotalDays:  stats.TotalDays,
		TotalHours: minutesToHours(stats.TotalMinutes),
		MonthDays:  stats.MonthDays,
		MonthHours: minutesToHours(stats.MonthMinutes),
	}
	if stats.TotalDays > 0 {
		resp.AverageHours = round2(resp.TotalHours / float64(stats.TotalDays))
	}
	return resp, nil
}

// AutoCloseStale implements attendance.AttendanceService.
// A stale session is closed at clock-in + maxOpen, never later.
func (a *AttendanceServiceImpl) AutoCloseStale(ctx context.Context, maxOpen time.Duration) (int, error) {
	if maxOpen <= 0 {
		return 0, fmt.Errorf("maxOpen must be positive, got %s", maxOpen)
	}

	nowUTC := a.now().UTC()
	stale, err := a.AttendanceRepository.GetStaleOpenSessions(ctx, nowUTC.Add(-maxOpen))
	if err != nil {
		return 0, fmt.Errorf("failed to get stale sessions: %w", err)
	}

	closed := 0
	for _, att := range stale {
		clockOut := att.ClockIn.Add(maxOpen)
		mins := int(maxOpen.Minutes())
		att.ClockOut = &clockOut
		att.WorkHoursInMinutes = &mins
		att.Status = attendance.StatusAutoClosed

		if err := a.AttendanceRepository.Update(ctx, att); err != nil {
			slog.Error("Failed to auto-close attendance", "attendance_id", att.ID, "user_id", att.UserID, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

func (a *AttendanceServiceImpl) validateIntent(req *attendance.IntentRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.AuthUserID != "" && req.AuthUserID != req.UserID {
		return attendance.ErrUserMismatch
	}
	return nil
}

func (a *AttendanceServiceImpl) localDate(t time.Time) time.Time {
	local := t.In(a.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.loc)
}

func (a *AttendanceServiceImpl) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if a.db == nil {
		return fn(ctx)
	}
	return postgresql.WithTransaction(ctx, a.db, func(tx pgx.Tx) error {
		txCtx := context.WithValue(ctx, "tx", tx)
		return fn(txCtx)
	})
}

func minutesToHours(mins int64) float64 {
	return round2(float64(mins) / 60)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// NewAttendanceService creates the attendance service. A nil location means UTC.
func NewAttendanceService(
	db *database.DB,
	attendanceRepository attendance.AttendanceRepository,
	loc *time.Location,
) attendance.AttendanceService {
	if loc == nil {
		loc = time.UTC
	}
	return &AttendanceServiceImpl{
		db:                   db,
		AttendanceRepository: attendanceRepository,
		loc:                  loc,
		now:                  time.Now,
	}
}
