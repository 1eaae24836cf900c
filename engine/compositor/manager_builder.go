package compositor

// ManagerBuilderOption is a functional option for configuring a Manager.
// Use the With* functions to create options.
type ManagerBuilderOption func(m *Manager)

// WithManagerListener registers a listener on the new Manager.
//
// Parameters:
//   - l: the listener
//
// Returns:
//   - ManagerBuilderOption: option function to apply
func WithManagerListener(l ManagerListener) ManagerBuilderOption {
	return func(m *Manager) {
		m.listeners = append(m.listeners, l)
	}
}
