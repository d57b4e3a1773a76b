package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-ocr-worker/constants"
)

// OCRJob is one row of the ocr_jobs backlog.
type OCRJob struct {
	ID             uuid.UUID  `json:"id"`
	ReceiptID      uuid.UUID  `json:"receipt_id"`
	ImageKey       string     `json:"image_key"`
	Processed      bool       `json:"processed"`
	Attempts       int        `json:"attempts"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	LeasedAt       *time.Time `json:"leased_at,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	Processor      *string    `json:"processor,omitempty"`
	DeadLetteredAt *time.Time `json:"dead_lettered_at,omitempty"`
}

// State derives the queue state of the job.
func (j *OCRJob) State() constants.JobState {
	switch {
	case j.Processed:
		return constants.JobStateDone
	case j.DeadLetteredAt != nil:
		return constants.JobStateDeadLettered
	default:
		return constants.JobStatePending
	}
}

// DeadLetter is an entry in ocr_dead_letters.
type DeadLetter struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	ReceiptID uuid.UUID `json:"receipt_id"`
	ImageKey  string    `json:"image_key"`
	Attempts  int       `json:"attempts"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueStats counts jobs per state.
type QueueStats struct {
	Pending      int `json:"pending"`
	Done         int `json:"done"`
	DeadLettered int `json:"dead_lettered"`
}
