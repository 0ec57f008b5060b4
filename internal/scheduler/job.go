package scheduler

import (
	"context"
	"errors"
	"time"
)

// ErrSkipped is returned by a job that had nothing to do this run.
// Skipped runs are recorded but never retried or counted as failures.
var ErrSkipped = errors.New("job skipped")

// Job represents a scheduled job
// SSOT: the scheduled job interface is defined here only
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job
	Run(ctx context.Context) error

	// Schedule returns the cron schedule expression (seconds field enabled)
	// Examples: "0 */5 * * * *", "@every 55s"
	Schedule() string
}

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Skipped   bool          `json:"skipped,omitempty"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
}

// maxHistory bounds the results kept per job
const maxHistory = 100

// JobHistory stores job execution history
type JobHistory struct {
	Results []JobResult
}

// AddResult adds a job result to history
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)

	if len(h.Results) > maxHistory {
		h.Results = h.Results[len(h.Results)-maxHistory:]
	}
}

// GetLatestResults returns the latest N results
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}

	if n <= 0 {
		return []JobResult{}
	}

	return h.Results[len(h.Results)-n:]
}

// GetFailedResults returns all failed results
func (h *JobHistory) GetFailedResults() []JobResult {
	failed := make([]JobResult, 0)
	for _, result := range h.Results {
		if !result.Success && !result.Skipped {
			failed = append(failed, result)
		}
	}
	return failed
}

// GetSkippedCount returns the number of skipped runs
func (h *JobHistory) GetSkippedCount() int {
	n := 0
	for _, result := range h.Results {
		if result.Skipped {
			n++
		}
	}
	return n
}

// GetSuccessRate returns the success rate (0.0 - 1.0) over runs that were not skipped
func (h *JobHistory) GetSuccessRate() float64 {
	ran, successCount := 0, 0
	for _, result := range h.Results {
		if result.Skipped {
			continue
		}
		ran++
		if result.Success {
			successCount++
		}
	}

	if ran == 0 {
		return 0.0
	}
	return float64(successCount) / float64(ran)
}
