package model

// LogRecord is an engine event rendered as an EVM-style log: topic0 is the event
// signature hash, topics 1..2 carry the indexed pool id and actor, and Data holds
// the ABI-encoded remainder. Block fields are set only for logs read from a chain.
type LogRecord struct {
	Seq         uint64   `json:"seq"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Timestamp   uint64   `json:"timestamp"`
	EventID     string   `json:"event_id"`
	ChainID     uint64   `json:"chain_id,omitempty"`
	BlockNumber uint64   `json:"block_number,omitempty"`
	TxHash      string   `json:"tx_hash,omitempty"`
	LogIndex    uint64   `json:"log_index,omitempty"`
	Removed     bool     `json:"removed,omitempty"`
}

// DecodeError records a log line that could not be decoded.
type DecodeError struct {
	Seq         uint64 `json:"seq,omitempty"`
	Address     string `json:"address,omitempty"`
	Topic0      string `json:"topic0,omitempty"`
	EventID     string `json:"event_id,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	Error       string `json:"error"`
}
