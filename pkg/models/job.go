package models

// JobStatus is the tag of a JobState.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobState describes where the submission lifecycle is. Exactly one of Idle,
// Running, Succeeded or Failed holds at any instant; consumers switch on the
// concrete type.
type JobState interface {
	Status() JobStatus
	jobState()
}

// Idle means no job is outstanding and nothing is displayed.
type Idle struct{}

// Running means a request to the segmentation service is outstanding.
type Running struct {
	Seq uint64
}

// Succeeded carries the handle of the annotated image returned by the service.
type Succeeded struct {
	Seq    uint64
	Result Handle
}

// Failed carries the classified reason the last job did not produce a result.
type Failed struct {
	Seq    uint64
	Detail ErrorDetail
}

func (Idle) Status() JobStatus      { return JobStatusIdle }
func (Running) Status() JobStatus   { return JobStatusRunning }
func (Succeeded) Status() JobStatus { return JobStatusSucceeded }
func (Failed) Status() JobStatus    { return JobStatusFailed }

func (Idle) jobState()      {}
func (Running) jobState()   {}
func (Succeeded) jobState() {}
func (Failed) jobState()    {}

// ErrorKind classifies a failed job.
type ErrorKind string

const (
	// ErrorKindTransport means no HTTP response was received.
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindServer means the service answered with a non-success status.
	ErrorKindServer ErrorKind = "server"
	// ErrorKindResource means the result could not be registered as a handle.
	ErrorKindResource ErrorKind = "resource"
)

// ErrorDetail is the human-readable, classified description of a failed job.
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// IsTransport reports whether the request never produced an HTTP response.
func (d ErrorDetail) IsTransport() bool {
	return d.Kind == ErrorKindTransport
}
