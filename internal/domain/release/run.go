package release

import "time"

// Actor identifies who ran the pipeline.
type Actor struct {
	// Hostname is the machine name the pipeline ran on.
	Hostname string
	// Username is the system user that started the run.
	Username string
	// PID is the process id of the run.
	PID int
	// CI names the CI system the run happened on, empty for a local run.
	CI string
}

// StageRecord is the outcome of one stage in a run.
type StageRecord struct {
	// Stage is the stage name.
	Stage Stage
	// StartedAt is when the stage began.
	StartedAt time.Time
	// FinishedAt is when the stage ended; zero while running.
	FinishedAt time.Time
	// Error is the failure message, empty on success.
	Error string
}

// Succeeded reports whether the stage finished without error.
func (r *StageRecord) Succeeded() bool {
	return !r.FinishedAt.IsZero() && r.Error == ""
}

// Run is the journal of one pipeline execution.
type Run struct {
	// ID is a unique run identifier.
	ID string
	// Version is the resolved version, empty until resolution succeeds.
	Version Version
	// Actor is who started the run.
	Actor *Actor
	// StartedAt is when the run began.
	StartedAt time.Time
	// FinishedAt is when the run ended.
	FinishedAt time.Time
	// Stages lists the stages reached, in order.
	Stages []*StageRecord
	// Archive is the produced archive, if any.
	Archive *Archive
	// Release is the created release, if any.
	Release *Target
	// Asset is the uploaded asset, if any.
	Asset *Asset
	// Orphaned is set when a release was created but its asset could not be attached.
	Orphaned bool
	// RolledBack is set when an orphaned release was deleted again.
	RolledBack bool
}

// Begin records the start of a stage and returns its record.
func (r *Run) Begin(stage Stage, now time.Time) *StageRecord {
	record := &StageRecord{
		Stage:     stage,
		StartedAt: now,
	}

	r.Stages = append(r.Stages, record)

	return record
}

// Failed returns the first failed stage record, or nil.
func (r *Run) Failed() *StageRecord {
	for _, record := range r.Stages {
		if record.Error != "" {
			return record
		}
	}

	return nil
}

// Succeeded reports whether the run finished and every reached stage succeeded.
func (r *Run) Succeeded() bool {
	if r.FinishedAt.IsZero() {
		return false
	}

	for _, record := range r.Stages {
		if !record.Succeeded() {
			return false
		}
	}

	return true
}

// Finish records the end of a stage.
func (r *StageRecord) Finish(now time.Time, err error) {
	r.FinishedAt = now

	if err != nil {
		r.Error = err.Error()
	}
}
