package killswitch

import "fmt"

// Mode selects the kill switch behavior. It is the persisted value; whether
// traffic is actually blocked right now is derived from Mode plus the last
// known tunnel connectivity (see Switch.Enforcing).
type Mode uint8

const (
	// ModeOff disables enforcement entirely.
	ModeOff Mode = iota
	// ModeSoft blocks non-tunnel traffic only while no tunnel is connected.
	ModeSoft
	// ModeHard blocks non-tunnel traffic unconditionally until disabled.
	ModeHard
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeSoft:
		return "soft"
	case ModeHard:
		return "hard"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

func (m Mode) valid() bool {
	return m == ModeOff || m == ModeSoft || m == ModeHard
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "off", "":
		return ModeOff, nil
	case "soft":
		return ModeSoft, nil
	case "hard", "permanent":
		return ModeHard, nil
	default:
		return ModeOff, fmt.Errorf("unknown kill switch mode %q", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("unknown kill switch mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
