package gateway

import (
	"context"
	"fmt"
	"strings"
)

// Status describes the gateway at the moment it is asked.
type Status struct {
	Available bool `json:"available"`
	// Initialized is true when the authority currently grants every kind.
	Initialized bool                         `json:"initialized"`
	Store       string                       `json:"store"`
	Permissions map[Kind]AuthorizationStatus `json:"permissions"`
}

// Status asks the authority for every kind. Nothing is cached between calls.
func (g *Gateway) Status(ctx context.Context) (Status, error) {
	st := Status{
		Available:   g.IsHealthDataAvailable(),
		Initialized: true,
		Permissions: make(map[Kind]AuthorizationStatus, len(kinds)),
	}
	if g.store != nil {
		st.Store = g.store.Name()
	}
	for _, kind := range kinds {
		status, err := g.authority.AuthorizationStatus(ctx, kind)
		if err != nil {
			return Status{}, fmt.Errorf("authorization status of %s: %w", kind, err)
		}
		st.Permissions[kind] = status
		if status != Granted {
			st.Initialized = false
		}
	}
	st.Initialized = st.Initialized && st.Available
	return st, nil
}

// ready returns ErrUnavailable or an error wrapping ErrPermissionDenied
// unless the gateway is ready.
func (g *Gateway) ready(ctx context.Context) error {
	if !g.IsHealthDataAvailable() {
		return ErrUnavailable
	}
	st, err := g.Status(ctx)
	if err != nil {
		return err
	}
	var missing []string
	for _, kind := range kinds {
		if status := st.Permissions[kind]; status != Granted {
			missing = append(missing, fmt.Sprintf("%s is %s", kind, status))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, strings.Join(missing, ", "))
	}
	return nil
}

// IsReady reports whether health data is available and every kind is granted.
func (g *Gateway) IsReady(ctx context.Context) bool {
	st, err := g.Status(ctx)
	return err == nil && st.Initialized
}
