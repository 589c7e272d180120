package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hris-presence-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-presence-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type attendanceRepository struct {
	db *database.DB
}

const attendanceColumns = `
	id, user_id, date, clock_in, clock_out, work_hours_in_minutes, status, created_at, updated_at
`

func scanAttendance(row pgx.Row) (attendance.Attendance, error) {
	var att attendance.Attendance
	err := row.Scan(
		&att.ID, &att.UserID, &att.Date, &att.ClockIn, &att.ClockOut,
		&att.WorkHoursInMinutes, &att.Status, &att.CreatedAt, &att.UpdatedAt,
	)
	return att, err
}

// Create implements attendance.AttendanceRepository.
func (a *attendanceRepository) Create(ctx context.Context, newAttendance attendance.Attendance) (attendance.Attendance, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		INSERT INTO attendances (user_id, date, clock_in, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		newAttendance.UserID,
		newAttendance.Date,
		newAttendance.ClockIn,
		newAttendance.Status,
	).Scan(&newAttendance.ID, &newAttendance.CreatedAt, &newAttendance.UpdatedAt)

	if err != nil {
		return attendance.Attendance{}, fmt.Errorf("failed to create attendance: %w", err)
	}

	return newAttendance, nil
}

// Update implements attendance.AttendanceRepository.
func (a *attendanceRepository) Update(ctx context.Context, att attendance.Attendance) error {
	q := GetQuerier(ctx, a.db)

	query := `
		UPDATE attendances
		SET clock_out = $1,
			work_hours_in_minutes = $2,
			status = $3,
			updated_at = NOW()
		WHERE id = $4
	`

	tag, err := q.Exec(ctx, query, att.ClockOut, att.WorkHoursInMinutes, att.Status, att.ID)
	if err != nil {
		return fmt.Errorf("failed to update attendance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// GetOpenSession implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetOpenSession(ctx context.Context, userID string) (attendance.Attendance, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		SELECT ` + attendanceColumns + `
		FROM attendances
		WHERE user_id = $1
		  AND clock_out IS NULL
		ORDER BY clock_in DESC
		LIMIT 1
		FOR UPDATE
	`

	att, err := scanAttendance(q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.Attendance{}, fmt.Errorf("no open attendance session found: %w", err)
		}
		return attendance.Attendance{}, fmt.Errorf("failed to get open session: %w", err)
	}

	return att, nil
}

// GetLatestByDate implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetLatestByDate(ctx context.Context, userID string, date time.Time) (attendance.Attendance, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		SELECT ` + attendanceColumns + `
		FROM attendances
		WHERE user_id = $1
		  AND date = $2
		ORDER BY clock_in DESC
		LIMIT 1
	`

	att, err := scanAttendance(q.QueryRow(ctx, query, userID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.Attendance{}, err
		}
		return attendance.Attendance{}, fmt.Errorf("failed to get attendance by date: %w", err)
	}

	return att, nil
}

// GetStats implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetStats(ctx context.Context, userID string, monthStart time.Time) (attendance.Stats, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		SELECT
			COUNT(DISTINCT date),
			COALESCE(SUM(work_hours_in_minutes), 0),
			COUNT(DISTINCT date) FILTER (WHERE date >= $2),
			COALESCE(SUM(work_hours_in_minutes) FILTER (WHERE date >= $2), 0)
		FROM attendances
		WHERE user_id = $1
		  AND clock_out IS NOT NULL
	`

	var stats attendance.Stats
	err := q.QueryRow(ctx, query, userID, monthStart).Scan(
		&stats.TotalDays, &stats.TotalMinutes, &stats.MonthDays, &stats.MonthMinutes,
	)
	if err != nil {
		return attendance.Stats{}, fmt.Errorf("failed to get attendance stats: %w", err)
	}

	return stats, nil
}

// GetStaleOpenSessions implements attendance.AttendanceRepository.
func (a *attendanceRepository) GetStaleOpenSessions(ctx context.Context, cutoff time.Time) ([]attendance.Attendance, error) {
	q := GetQuerier(ctx, a.db)

	query := `
		SELECT ` + attendanceColumns + `
		FROM attendances
		WHERE clock_out IS NULL
		  AND clock_in < $1
		ORDER BY clock_in
	`

	rows, err := q.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale sessions: %w", err)
	}
	defer rows.Close()

	var result []attendance.Attendance
	for rows.Next() {
		att, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stale session: %w", err)
		}
		result = append(result, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale sessions: %w", err)
	}

	return result, nil
}

func NewAttendanceRepository(db *database.DB) attendance.AttendanceRepository {
	return &attendanceRepository{db: db}
}
