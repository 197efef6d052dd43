package loader

// State is the lifecycle position of a rule in one loader.
type State int

const (
	Unloaded State = iota
	Discovered
	Registered
	Enabled
	Disabled
	Active
	Inactive
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Discovered:
		return "discovered"
	case Registered:
		return "registered"
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible in this run.
func (s State) Terminal() bool { return s == Active || s == Inactive }

// Status describes one registered rule for listings.
type Status struct {
	ID         string
	Name       string
	Version    string
	Source     string
	Pattern    string
	Extensions []string
	Categories []string
	State      State
	// Reason explains an Inactive state.
	Reason string
}
