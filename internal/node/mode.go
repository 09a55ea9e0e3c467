package node

// Mode is how the monitor presents itself once bootstrapped.
type Mode int

const (
	ModeHeadless  Mode = iota // APIs only
	ModeDashboard             // APIs plus the terminal dashboard
)

func (m Mode) String() string {
	switch m {
	case ModeHeadless:
		return "headless"
	case ModeDashboard:
		return "dashboard"
	default:
		return "unknown"
	}
}
