package interfaces

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string   `json:"state"`
	StoreDriver      string   `json:"store_driver"`
	Notifiers        []string `json:"notifiers"`
	ConnectedClients int      `json:"connected_clients"`
	StartedAt        int64    `json:"started_at,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// StatusProvider is implemented by the lifecycle manager for the admin status route.
type StatusProvider interface {
	GetCurrentStatus() SystemStatus
}
