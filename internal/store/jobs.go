package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

// JobRun is one execution attempt of a scheduled job.
type JobRun struct {
	ID           string
	JobName      string
	JobKey       string // empty when the run was manual (no window)
	Status       string
	StartedAt    string
	EndedAt      string
	ErrorMessage string
}

// InsertJobRun creates a new running job-run row and returns its ID.
func (s *Store) InsertJobRun(jobName, jobKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	var key any
	if jobKey != "" {
		key = jobKey
	}
	_, err := s.db.Exec(
		`INSERT INTO job_runs (id, job_name, job_key, status, started_at) VALUES (?,?,?,?,?)`,
		id, jobName, key, JobStatusRunning, FormatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("insert job run: %w", err)
	}
	return id, nil
}

// MarkJobRunSuccess transitions a running job-run to success.
func (s *Store) MarkJobRunSuccess(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE job_runs SET status=?, ended_at=? WHERE id=? AND status=?`,
		JobStatusSuccess, FormatTime(time.Now()), id, JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("mark job run success: %w", err)
	}
	return nil
}

// MarkJobRunFailed transitions a running job-run to failed with a message.
func (s *Store) MarkJobRunFailed(id, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE job_runs SET status=?, ended_at=?, error_message=? WHERE id=? AND status=?`,
		JobStatusFailed, FormatTime(time.Now()), msg, id, JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("mark job run failed: %w", err)
	}
	return nil
}

// ShouldRunJobKey is the idempotency predicate: a key is runnable unless a
// prior run with this key succeeded or one is currently running. Failed runs
// leave the key eligible for retry.
func (s *Store) ShouldRunJobKey(jobKey string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM job_runs WHERE job_key = ? AND status IN (?, ?)`,
		jobKey, JobStatusSuccess, JobStatusRunning,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check job key %q: %w", jobKey, err)
	}
	return n == 0, nil
}

// FailRunningJobs marks every still-running job-run failed. Called on
// shutdown so an interrupted process never leaves a key wedged in 'running'.
func (s *Store) FailRunningJobs(msg string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE job_runs SET status=?, ended_at=?, error_message=? WHERE status=?`,
		JobStatusFailed, FormatTime(time.Now()), msg, JobStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("fail running jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// JobRunByID fetches one job run.
func (s *Store) JobRunByID(id string) (*JobRun, error) {
	row := s.db.QueryRow(
		`SELECT id, job_name, COALESCE(job_key,''), status, started_at, COALESCE(ended_at,''), COALESCE(error_message,'')
		 FROM job_runs WHERE id = ?`, id)

	var jr JobRun
	if err := row.Scan(&jr.ID, &jr.JobName, &jr.JobKey, &jr.Status, &jr.StartedAt, &jr.EndedAt, &jr.ErrorMessage); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("job run by id: %w", err)
	}
	return &jr, nil
}
