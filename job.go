package x402

import (
	"fmt"
	"strings"
	"time"
)

const (
	jobStatusPrefix = "JOB_STATUS:"
	jobKeySep       = ":JOB_KEY:"
	jobMessageSep   = ":MESSAGE:"
)

// SessionHandle is the non-generic view of a detached polling session.
type SessionHandle interface {
	ID() string
	Cancel()
	Done() <-chan struct{}
}

// JobInFlightError is returned by a dispatch that observed a pending or
// processing job. It is not a failure: the job is still running and
// Session, when set, keeps polling it in the background.
type JobInFlightError struct {
	Status  JobStatus
	JobKey  string
	Message string
	Session SessionHandle
}

// Error returns the delimited JOB_STATUS form.
func (e *JobInFlightError) Error() string {
	return FormatJobStatus(string(e.Status), e.JobKey, e.Message)
}

// FormatJobStatus packs a job state into one delimited string.
func FormatJobStatus(status, jobKey, message string) string {
	return jobStatusPrefix + status + jobKeySep + jobKey + jobMessageSep + message
}

// ParseJobStatusError unpacks a FormatJobStatus string. An empty status
// becomes pending and an empty key becomes defaultKey. ok is false when s
// is not in the JOB_STATUS form.
func ParseJobStatusError(s, defaultKey string) (info *JobInFlightError, ok bool) {
	if !strings.HasPrefix(s, jobStatusPrefix) {
		return nil, false
	}

	parts := strings.Split(s, jobKeySep)
	if len(parts) != 2 {
		return nil, false
	}

	status := strings.TrimPrefix(parts[0], jobStatusPrefix)
	if status == "" {
		status = string(JobPending)
	}

	keyAndMessage := strings.SplitN(parts[1], jobMessageSep, 2)
	jobKey := keyAndMessage[0]
	if jobKey == "" {
		jobKey = defaultKey
	}

	var message string
	if len(keyAndMessage) == 2 {
		message = keyAndMessage[1]
	} else {
		message = defaultJobMessage(jobKey)
	}

	return &JobInFlightError{
		Status:  JobStatus(status),
		JobKey:  jobKey,
		Message: message,
	}, true
}

func defaultJobMessage(jobKey string) string {
	kind := "Analysis"
	if i := strings.Index(jobKey, ":"); i > 0 {
		switch k := strings.ToLower(jobKey[:i]); k {
		case "mbti":
			kind = "MBTI analysis"
		default:
			kind = strings.ToUpper(k[:1]) + k[1:] + " analysis"
		}
	}
	return fmt.Sprintf("%s is still processing. You can come back later to check the results.", kind)
}

// PendingJob is the record a consumer keeps for a job it was told is in flight.
type PendingJob struct {
	JobKey    string    `json:"job_key"`
	JobType   string    `json:"job_type"`
	Status    JobStatus `json:"status,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// NewPendingJob builds a PendingJob from an in-flight error.
func NewPendingJob(jobType string, err *JobInFlightError, now time.Time) PendingJob {
	return PendingJob{
		JobKey:    err.JobKey,
		JobType:   jobType,
		Status:    err.Status,
		StartedAt: now,
		Message:   err.Message,
	}
}

// Update applies a status notification to the record.
func (p *PendingJob) Update(status, jobKey, message string) {
	p.Status = JobStatus(status)
	if jobKey != "" {
		p.JobKey = jobKey
	}
	p.Message = message
}
