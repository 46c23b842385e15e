package jsonx

// scanState tracks where the scanner is relative to JSON string literals.
type scanState int

const (
	stateOutside scanState = iota
	stateInString
	stateEscaped
)

// scanner is a three-state machine over raw bytes. It does not validate
// JSON; it only knows whether a byte sits inside a string literal.
type scanner struct {
	state scanState
}

// step consumes c and returns the state c was read in.
func (s *scanner) step(c byte) scanState {
	prev := s.state
	switch s.state {
	case stateOutside:
		if c == '"' {
			s.state = stateInString
		}
	case stateInString:
		switch c {
		case '\\':
			s.state = stateEscaped
		case '"':
			s.state = stateOutside
		}
	case stateEscaped:
		s.state = stateInString
	}
	return prev
}
