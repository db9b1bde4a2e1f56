package detection

import "sync"

// Static is a Detector that replays scripted results.
// Each Detect call returns the next entry of Script; the last entry repeats.
type Static struct {
	Labels []string
	Script [][]Detection
	Err    error

	mu    sync.Mutex
	calls int
}

// Detect implements Detector.
func (s *Static) Detect(Frame) ([]Detection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Script) == 0 {
		return nil, nil
	}
	i := s.calls - 1
	if i >= len(s.Script) {
		i = len(s.Script) - 1
	}
	out := make([]Detection, len(s.Script[i]))
	copy(out, s.Script[i])
	return out, nil
}

// Classes implements Detector.
func (s *Static) Classes() []string { return s.Labels }

// Close implements Detector.
func (s *Static) Close() error { return nil }

// Calls returns how many times Detect was invoked.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ Detector = (*Static)(nil)
