package events

// EntityJob is the entity type of every job event.
const EntityJob = "job"

const (
	EventJobCreated      = "job.created"
	EventJobStateChanged = "job.state.changed"
	EventJobMaterialized = "job.materialized"
	EventJobFailed       = "job.failed"
	EventJobDeleted      = "job.deleted"
)

// JobCreated is emitted when a submission is accepted and stored.
type JobCreated struct {
	BaseEvent
	Name     string `json:"name"`
	Category string `json:"category"`
	Input    string `json:"input_type"`
	Handle   string `json:"handle,omitempty"`
}

// JobStateChanged is emitted for every state transition.
type JobStateChanged struct {
	BaseEvent
	From     string  `json:"from"`
	To       string  `json:"to"`
	Progress float64 `json:"progress"`
}

// JobMaterialized is emitted after pointer files were written for a job.
type JobMaterialized struct {
	BaseEvent
	Category string   `json:"category"`
	Root     string   `json:"root"`
	Paths    []string `json:"paths"`
}

// JobFailed is emitted when a job enters the error state.
type JobFailed struct {
	BaseEvent
	Reason string `json:"reason"`
}

// JobDeleted is emitted when a job is marked deleted. PurgeFiles records
// whether the caller asked for produced files to be removed.
type JobDeleted struct {
	BaseEvent
	PurgeFiles bool `json:"purge_files"`
	Cancelled  bool `json:"cancelled"`
}
