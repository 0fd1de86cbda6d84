package gateway

import "fmt"

// Kind identifies one health metric the gateway can read.
type Kind string

const (
	Steps        Kind = "steps"
	HeartRate    Kind = "heart_rate"
	ActiveEnergy Kind = "active_energy"
	Distance     Kind = "distance"
	Sleep        Kind = "sleep"
	Weight       Kind = "weight"
	Height       Kind = "height"
)

var kinds = []Kind{Steps, HeartRate, ActiveEnergy, Distance, Sleep, Weight, Height}

// Kinds returns every metric kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind converts a name such as "heart_rate" into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown metric kind %q", s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Dated reports whether the kind is read per calendar day. Weight and height
// are point-in-time body measurements and always return the latest sample.
func (k Kind) Dated() bool {
	return k != Weight && k != Height
}

func (k Kind) String() string { return string(k) }
