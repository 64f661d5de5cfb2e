package model

// TxNotification is a one-shot notice about a submitted or observed transaction.
type TxNotification struct {
	TxHash  string `json:"tx_hash"`
	Market  string `json:"market,omitempty"`
	Action  string `json:"action"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
