package x402

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Envelope is the generic {success, data, error} wrapper every API response uses.
// Data is kept raw so the job state can be decoded once before the payload.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *string         `json:"error,omitempty"`
}

// DecodeEnvelope parses a response body.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedResponse, "failed to parse response", err)
	}
	return &env, nil
}

// HasData reports whether data is present and not JSON null.
func (e *Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// ErrorMessage returns the error string, or a generic message when the
// backend sent none.
func (e *Envelope) ErrorMessage() string {
	if e.Error == nil || *e.Error == "" {
		return "Unknown error"
	}
	return *e.Error
}

// IsLegacyPending reports whether an error message from an older backend
// signals that the job is still running.
func IsLegacyPending(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "pending") || strings.Contains(m, "in progress")
}

// JobStatus is the closed set of backend job states. JobNone means the data
// object carried no recognised status and is the final payload.
type JobStatus string

const (
	JobNone       JobStatus = ""
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobUpdating   JobStatus = "updating"
)

// ParseJobStatus maps a wire string to a JobStatus. Unknown values map to JobNone.
func ParseJobStatus(s string) JobStatus {
	switch st := JobStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case JobPending, JobProcessing, JobCompleted, JobFailed, JobUpdating:
		return st
	}
	return JobNone
}

// InFlight reports whether the job is still running with nothing usable yet.
func (s JobStatus) InFlight() bool {
	return s == JobPending || s == JobProcessing
}

// Terminal reports whether polling stops at this status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobNone
}

// JobState is the decoded form of an envelope's data object.
type JobState struct {
	Status  JobStatus
	JobKey  string
	Message string

	// Payload is the whole data object.
	Payload json.RawMessage
	// Inner is data.data, set for updating responses.
	Inner json.RawMessage

	onlyJobFields bool
}

var jobStateKeys = map[string]struct{}{"status": {}, "job_key": {}, "message": {}}

// DecodeJobState decodes the job fields of a data object. Data that is not
// an object, or has no string status, decodes to JobNone.
func DecodeJobState(data json.RawMessage) JobState {
	state := JobState{Payload: data}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return state
	}

	var status string
	if raw, ok := fields["status"]; !ok || json.Unmarshal(raw, &status) != nil {
		return state
	}
	state.Status = ParseJobStatus(status)
	if state.Status == JobNone {
		return state
	}

	if raw, ok := fields["job_key"]; ok {
		_ = json.Unmarshal(raw, &state.JobKey)
	}
	if raw, ok := fields["message"]; ok {
		_ = json.Unmarshal(raw, &state.Message)
	}
	if raw, ok := fields["data"]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		state.Inner = raw
	}

	state.onlyJobFields = true
	for k := range fields {
		if _, ok := jobStateKeys[k]; !ok {
			state.onlyJobFields = false
			break
		}
	}
	return state
}

// HasResultFields reports whether the data object carries anything beyond
// status, job_key and message.
func (s JobState) HasResultFields() bool {
	return !s.onlyJobFields
}

// FailureMessage returns the backend message for a failed job.
func (s JobState) FailureMessage() string {
	if s.Message == "" {
		return "Job failed"
	}
	return s.Message
}

// ResultValidator is implemented by result types that can tell whether a
// completed payload is in its final shape.
type ResultValidator interface {
	Validate() error
}

// DecodeResult unmarshals raw into T and runs T's Validate method if it has one.
func DecodeResult[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	if val, ok := any(&v).(ResultValidator); ok {
		if err := val.Validate(); err != nil {
			return v, err
		}
	}
	return v, nil
}
