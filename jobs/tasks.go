package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskSnapshot captures balance snapshots for every active account.
	TaskSnapshot = "ledger:snapshot"
	// TaskSeal extends the entry hash chain.
	TaskSeal = "ledger:seal"
	// TaskVerify walks the hash chain and reports tampering.
	TaskVerify = "ledger:verify"
	// TaskIntegrity runs the structural integrity checks.
	TaskIntegrity = "ledger:integrity"
	// TaskEndOfDay rebuilds ledger balances from posted lines.
	TaskEndOfDay = "ledger:eod"
	// TaskOptimize vacuums and re-analyzes the ledger tables.
	TaskOptimize = "ledger:optimize"
	// TaskEntryPosted fans out an entry-posted notification.
	TaskEntryPosted = "ledger:entry_posted"
)

// SnapshotPayload configures a snapshot sweep.
type SnapshotPayload struct{}

// SealPayload configures a seal run.
type SealPayload struct {
	BatchSize     int  `json:"batchSize,omitempty"`
	StopOnPending bool `json:"stopOnPending,omitempty"`
}

// VerifyPayload configures a chain verification run.
type VerifyPayload struct {
	BatchSize      int  `json:"batchSize,omitempty"`
	StopAtUnsealed bool `json:"stopAtUnsealed,omitempty"`
}

// IntegrityPayload configures a structural integrity run.
type IntegrityPayload struct{}

// EndOfDayPayload configures an end-of-day rebuild.
type EndOfDayPayload struct {
	AsOf *time.Time `json:"asOf,omitempty"`
}

// OptimizePayload configures a maintenance run.
type OptimizePayload struct{}

// NewSnapshotTask constructs a snapshot task.
func NewSnapshotTask(payload SnapshotPayload) (*asynq.Task, error) {
	return newTask(TaskSnapshot, payload)
}

// NewSealTask constructs a seal task.
func NewSealTask(payload SealPayload) (*asynq.Task, error) {
	return newTask(TaskSeal, payload)
}

// NewVerifyTask constructs a verify task.
func NewVerifyTask(payload VerifyPayload) (*asynq.Task, error) {
	return newTask(TaskVerify, payload)
}

// NewIntegrityTask constructs an integrity task.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	return newTask(TaskIntegrity, payload)
}

// NewEndOfDayTask constructs an end-of-day task.
func NewEndOfDayTask(payload EndOfDayPayload) (*asynq.Task, error) {
	return newTask(TaskEndOfDay, payload)
}

// NewOptimizeTask constructs an optimize task.
func NewOptimizeTask(payload OptimizePayload) (*asynq.Task, error) {
	return newTask(TaskOptimize, payload)
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
