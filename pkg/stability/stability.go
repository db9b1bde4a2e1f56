// Package stability debounces a noisy per-frame boolean into a stable state.
package stability

// Defaults match the kitchen presence pipeline.
const (
	DefaultWindow   = 5
	DefaultRequired = 3
)

// Smoother keeps the last Window decisions in a FIFO and reports true while
// at least Required of them are true.
//
// A Smoother is not safe for concurrent use. It must have a single writer;
// the detection loop owns its instance.
type Smoother struct {
	window   int
	required int

	history []bool // ring buffer, len == window
	next    int    // slot for the next decision
	size    int    // decisions held, <= window
	trues   int
}

// New creates a smoother. Non-positive arguments fall back to the defaults
// and required is capped at window.
func New(window, required int) *Smoother {
	if window <= 0 {
		window = DefaultWindow
	}
	if required <= 0 {
		required = DefaultRequired
	}
	if required > window {
		required = window
	}
	return &Smoother{
		window:   window,
		required: required,
		history:  make([]bool, window),
	}
}

// Observe appends decision, evicting the oldest once the window is full, and
// returns the stable decision.
func (s *Smoother) Observe(decision bool) bool {
	if s.size == s.window {
		if s.history[s.next] {
			s.trues--
		}
	} else {
		s.size++
	}
	s.history[s.next] = decision
	if decision {
		s.trues++
	}
	s.next = (s.next + 1) % s.window
	return s.Stable()
}

// Stable reports the current stable decision without observing anything.
func (s *Smoother) Stable() bool {
	return s.trues >= s.required
}

// Len returns how many decisions are held.
func (s *Smoother) Len() int {
	return s.size
}

// Trues returns how many held decisions are true.
func (s *Smoother) Trues() int {
	return s.trues
}

// Window returns the configured window size.
func (s *Smoother) Window() int {
	return s.window
}

// Reset clears the history.
func (s *Smoother) Reset() {
	for i := range s.history {
		s.history[i] = false
	}
	s.next, s.size, s.trues = 0, 0, 0
}
