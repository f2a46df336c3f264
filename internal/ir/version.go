package ir

const (
	// EntryVersion is the entry envelope schema version.
	EntryVersion = "1"

	// ContractVersion is the state machine version stamped on receipts.
	ContractVersion = "0.1.0"
)
