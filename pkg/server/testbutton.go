package server

import "fmt"

// Button event kinds accepted by the test-button simulator.
const (
	ButtonEventTriple = "triple"
	ButtonEventDouble = "double"
	ButtonEventSingle = "single"
	ButtonEventDown   = "down"
	ButtonEventUp     = "up"
)

// ButtonSignal is one synthetic transmitter notification. A click produces
// two signals: pressed then released.
type ButtonSignal struct {
	Button   string `json:"button"`
	Click    int    `json:"click,omitempty"`
	Sequence int    `json:"sequence,omitempty"`
	State    int    `json:"state"`
}

// ButtonEvents expands a button event kind into the notification signals a
// real transmitter would emit.
func ButtonEvents(button, event string) ([]ButtonSignal, error) {
	clicks := func(n int) []ButtonSignal {
		signals := make([]ButtonSignal, 0, 2*n)
		for click := 1; click <= n; click++ {
			signals = append(signals,
				ButtonSignal{Button: button, Click: click, Sequence: 1, State: 1},
				ButtonSignal{Button: button, Click: click, Sequence: 2, State: 0},
			)
		}
		return signals
	}

	switch event {
	case ButtonEventTriple:
		return clicks(3), nil
	case ButtonEventDouble:
		return clicks(2), nil
	case ButtonEventSingle:
		return clicks(1), nil
	case ButtonEventDown:
		return []ButtonSignal{{Button: button, State: 1}}, nil
	case ButtonEventUp:
		return []ButtonSignal{{Button: button, State: 0}}, nil
	default:
		return nil, fmt.Errorf("unknown button event %q", event)
	}
}
