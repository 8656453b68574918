package build

// DeploymentType selects the logging setup compiled into the binary.
type DeploymentType byte

const (
	// Development builds can send every subsystem to stdout for tests.
	Development DeploymentType = iota

	// Production builds only log through the handlers the binary sets up.
	Production
)

// String returns the name of the deployment, as shown in version output.
func (b DeploymentType) String() string {
	switch b {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return "unknown"
	}
}
