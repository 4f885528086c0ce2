package scheduler

import (
	"context"
	"time"

	"courtbook/internal/models"

	"github.com/go-co-op/gocron/v2"
)

const jobTimeout = 5 * time.Minute

// WaitlistExpirer expires waiting entries whose window has started.
type WaitlistExpirer interface {
	ExpireStaleWaitlist(ctx context.Context, now time.Time) (int, error)
}

type BackupRunner interface {
	Run(ctx context.Context) error
}

// ReportSaver writes a booking report to disk and returns its path.
type ReportSaver interface {
	SaveToDir(ctx context.Context, filter models.BookingFilter) (string, error)
}

// AddWaitlistExpiry schedules the waitlist expiry sweep.
func (s *Service) AddWaitlistExpiry(cronExpr string, expirer WaitlistExpirer) (gocron.Job, error) {
	return s.AddJob("waitlist_expiry", cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		n, err := expirer.ExpireStaleWaitlist(ctx, time.Now())
		if err != nil {
			s.logger.Error().Err(err).Msg("Waitlist expiry failed")
			return
		}
		if n > 0 {
			s.logger.Info().Int("expired", n).Msg("Waitlist expiry finished")
		}
	})
}

func (s *Service) AddBackup(cronExpr string, backup BackupRunner) (gocron.Job, error) {
	return s.AddJob("database_backup", cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if err := backup.Run(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Database backup failed")
		}
	})
}

// AddReportExport saves an xlsx report of every booking and waitlist entry.
func (s *Service) AddReportExport(cronExpr string, saver ReportSaver) (gocron.Job, error) {
	return s.AddJob("report_export", cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		path, err := saver.SaveToDir(ctx, models.BookingFilter{})
		if err != nil {
			s.logger.Error().Err(err).Msg("Report export failed")
			return
		}
		s.logger.Info().Str("path", path).Msg("Report exported")
	})
}
