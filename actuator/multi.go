package actuator

// Multi combines multiple Actuator implementations.
type Multi struct {
	actuators []Actuator
}

// NewMulti fans commands out to every actuator in order.
func NewMulti(actuators ...Actuator) *Multi {
	return &Multi{actuators: actuators}
}

// Send implements Actuator.Send.
func (m *Multi) Send(cmd Command) {
	for _, a := range m.actuators {
		a.Send(cmd)
	}
}

// Release implements Actuator.Release.
func (m *Multi) Release() error {
	var lastErr error
	for _, a := range m.actuators {
		if err := a.Release(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
