package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AuthorizationStatus is the authority's decision for one metric kind.
type AuthorizationStatus int

const (
	NotDetermined AuthorizationStatus = iota
	Denied
	Granted
)

func (s AuthorizationStatus) String() string {
	switch s {
	case Denied:
		return "denied"
	case Granted:
		return "granted"
	default:
		return "not_determined"
	}
}

// ParseAuthorizationStatus accepts the names produced by String.
func ParseAuthorizationStatus(s string) (AuthorizationStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "not_determined":
		return NotDetermined, nil
	case "denied":
		return Denied, nil
	case "granted":
		return Granted, nil
	}
	return NotDetermined, fmt.Errorf("unknown authorization status %q", s)
}

func (s AuthorizationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AuthorizationStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseAuthorizationStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Authority owns per-kind read permissions. The gateway asks it on every
// call and never keeps a copy of its answers.
type Authority interface {
	// RequestAuthorization asks for read access to kinds. It returns an error
	// wrapping ErrPermissionDenied when any kind ends up not granted.
	RequestAuthorization(ctx context.Context, kinds []Kind) error
	AuthorizationStatus(ctx context.Context, kind Kind) (AuthorizationStatus, error)
}

// Store is the read side of the external health store.
type Store interface {
	Name() string
	// Available reports whether the store can serve reads at all. It must not
	// depend on permissions.
	Available() bool
	// Aggregate returns the value of kind over [from, to), or ErrNoData.
	Aggregate(ctx context.Context, kind Kind, from, to time.Time) (float64, error)
	// Latest returns the most recent sample of kind, or ErrNoData.
	Latest(ctx context.Context, kind Kind) (float64, error)
}
