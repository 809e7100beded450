package ops

// HeartbeatInput represents the input for the heartbeat endpoint
type HeartbeatInput struct{}

// HeartbeatOutput represents the output for the heartbeat endpoint
type HeartbeatOutput struct {
	Body HeartbeatResponse
}

// HeartbeatResponse reports backend reachability
type HeartbeatResponse struct {
	Status string `json:"status" example:"ok" doc:"Backend reachability"`
}

// StorageInput names the account being inspected
type StorageInput struct {
	Owner string `path:"owner" doc:"Account whose usage is reported"`
}

// StorageOutput represents the output for the storage usage endpoint
type StorageOutput struct {
	Body StorageResponse
}

// StorageResponse reports an account's storage footprint
type StorageResponse struct {
	Owner   string `json:"owner" doc:"Account name"`
	KB      int    `json:"kb" doc:"Payload bytes stored, in kilobytes"`
	QuotaKB int    `json:"quota_kb" doc:"Configured allowance in kilobytes, 0 when unbounded"`
}
