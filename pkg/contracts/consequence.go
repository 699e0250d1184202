package contracts

import "time"

// Consequence is the executor's account of an effect it carried out,
// emitted as a Consequence-typed envelope and ingested by the observation
// surface. It always names the commitment that authorized it and the
// receipt proving it.
type Consequence struct {
	ConsequenceID string    `json:"consequence_id"`
	CommitmentID  string    `json:"commitment_id"`
	ReceiptID     string    `json:"receipt_id"`
	ExecutorID    string    `json:"executor_id"`
	WorldLine     string    `json:"worldline,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}
