package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a prediction job.
type JobStatus string

const (
	JobStatusNoData   JobStatus = "nodata"
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusFinished JobStatus = "finished"
	JobStatusFailed   JobStatus = "failed"
	// JobStatusAborted is reserved. No transition currently produces it.
	JobStatusAborted JobStatus = "aborted"
)

// CreatedLayout formats Job.Created: UTC with microseconds and a trailing Z.
const CreatedLayout = "2006-01-02T15:04:05.000000Z"

var transitions = map[JobStatus][]JobStatus{
	JobStatusNoData:  {JobStatusPending},
	JobStatusPending: {JobStatusRunning},
	JobStatusRunning: {JobStatusFinished, JobStatusFailed},
}

// Terminal reports whether no further transition can leave s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusFailed || s == JobStatusAborted
}

// CanTransition reports whether moving from s to next follows the lifecycle graph
// nodata -> pending -> running -> {finished | failed}.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Model describes one trained classifier attached to a job. Everything except
// Config is passed through to the pipeline untouched.
type Model struct {
	ID            string          `json:"id"`
	Created       string          `json:"created"`
	Config        json.RawMessage `json:"config"`
	Columns       []string        `json:"columns"`
	Data          string          `json:"data"`
	DefaultValues map[string]any  `json:"default_values"`
	ServiceID     string          `json:"service_id"`
	SourceID      string          `json:"source_id"`
	TimeField     string          `json:"time_field"`
}

// HasConfig reports whether the model carries a non-null config document.
func (m Model) HasConfig() bool {
	return len(m.Config) > 0 && string(m.Config) != "null"
}

// Job is one submitted prediction request. The dispatcher owns the record;
// everyone else works on copies.
type Job struct {
	ID         string     `json:"id"`
	Created    string     `json:"created"`
	Status     JobStatus  `json:"status"`
	DataSource *string    `json:"data_source"`
	SortedData bool       `json:"sorted_data"`
	Result     *ResultSet `json:"result"`
	Reason     *string    `json:"reason"`
	Models     []Model    `json:"models"`
}

// JobView is the externally visible snapshot of a Job. The model list stays internal.
type JobView struct {
	ID         string     `json:"id"`
	Created    string     `json:"created"`
	Status     JobStatus  `json:"status"`
	DataSource *string    `json:"data_source"`
	SortedData bool       `json:"sorted_data"`
	Result     *ResultSet `json:"result"`
	Reason     *string    `json:"reason"`
}

// CreateJobRequest is the payload accepted by job creation.
type CreateJobRequest struct {
	Models     []Model `json:"models"`
	SortedData bool    `json:"sorted_data"`
}

// Clone returns a deep copy that shares no mutable state with j.
func (j *Job) Clone() Job {
	c := *j
	if j.DataSource != nil {
		ds := *j.DataSource
		c.DataSource = &ds
	}
	if j.Reason != nil {
		r := *j.Reason
		c.Reason = &r
	}
	c.Result = j.Result.Clone()
	if j.Models != nil {
		c.Models = make([]Model, len(j.Models))
		copy(c.Models, j.Models)
	}
	return c
}

// View returns a deep-copied external snapshot of j.
func (j *Job) View() JobView {
	c := j.Clone()
	return JobView{
		ID:         c.ID,
		Created:    c.Created,
		Status:     c.Status,
		DataSource: c.DataSource,
		SortedData: c.SortedData,
		Result:     c.Result,
		Reason:     c.Reason,
	}
}

// CreatedAt parses Created, returning the zero time if it is malformed.
func (j *Job) CreatedAt() time.Time {
	t, err := time.Parse(CreatedLayout, j.Created)
	if err != nil {
		return time.Time{}
	}
	return t
}
