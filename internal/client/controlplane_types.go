package client

// ControlPlaneConfig configures the local HTTP API for UI consumers.
type ControlPlaneConfig struct {
	Addr      string // address to bind the control plane server
	AuthToken string // access token for the control plane server
}
