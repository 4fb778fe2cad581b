package interfaces

// Service is a transport exposing the daemon's operations, started once at
// boot and stopped on shutdown.
type Service interface {
	Start() error
	Stop()
}
