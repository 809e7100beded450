package sync

// BatchResult is the batch-write response: the timestamp every applied
// fragment now carries, the ids that landed, and why the rest did not.
type BatchResult struct {
	Modified float64           `json:"modified"`
	Success  []string          `json:"success"`
	Failed   map[string]string `json:"failed"`
}
