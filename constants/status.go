package constants

// ReceiptStatus is the canonical status for rows in receipts.
type ReceiptStatus string

// Stable values (store these exact strings in DB).
const (
	ReceiptStatusUploaded ReceiptStatus = "uploaded" // set by the upload path
	ReceiptStatusOCRDone  ReceiptStatus = "ocr_done" // terminal for this worker
)

// JobState is derived from an ocr_jobs row; it is never stored.
type JobState string

const (
	JobStatePending      JobState = "pending"
	JobStateDone         JobState = "done"
	JobStateDeadLettered JobState = "dead_lettered"
)

// DefaultProcessorVersion identifies this worker in ocr_jobs.processor and artifacts.
const DefaultProcessorVersion = "receipts-ocr-worker/1"
