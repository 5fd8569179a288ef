package status

// Status represents session lifecycle state
type Status int

const (
	// Uploading - audio is still being uploaded
	Uploading Status = iota + 1
	// Pending - queued, waiting for a worker
	Pending
	// Processing - a worker owns the job
	Processing
	// Completed - final step
	Completed
	// Failed - terminal failure
	Failed
	// Cancelled - cancelled before processing started
	Cancelled
)

var (
	statusName = map[Status]string{Uploading: "UPLOADING", Pending: "PENDING",
		Processing: "PROCESSING", Completed: "COMPLETED", Failed: "FAILED",
		Cancelled: "CANCELLED"}
	nameStatus = map[string]Status{"UPLOADING": Uploading, "PENDING": Pending,
		"PROCESSING": Processing, "COMPLETED": Completed, "FAILED": Failed,
		"CANCELLED": Cancelled}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// Terminal indicates the state allows no further mutation
func Terminal(st Status) bool {
	return st == Completed || st == Failed || st == Cancelled
}

// ErrCode is a persisted failure classification
type ErrCode string

const (
	// ECServiceError - transient provider failure
	ECServiceError ErrCode = "SERVICE_ERROR"
	// ECQuota - provider quota exhausted
	ECQuota ErrCode = "QUOTA_EXCEEDED"
	// ECInvalidAudio - audio rejected by the provider
	ECInvalidAudio ErrCode = "INVALID_AUDIO"
	// ECConfiguration - unrecoverable setup problem
	ECConfiguration ErrCode = "CONFIGURATION_ERROR"
	// ECTimeout - polling ceiling exceeded
	ECTimeout ErrCode = "TIMEOUT"
	// ECNotFound - result never became visible
	ECNotFound ErrCode = "RESULT_NOT_FOUND"
)

func (ec ErrCode) String() string {
	return string(ec)
}
