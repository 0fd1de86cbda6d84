// Package permission provides authorities that own per-kind read grants for
// the gateway.
//
// Every authority answers a request the way a consent prompt does: a kind
// that has never been decided gets the configured decision, and a kind that
// was already decided keeps its answer. Changing a decision afterwards is an
// operator action on the backing store.
package permission

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/joeecarter/health-gateway/gateway"
)

// deniedError wraps gateway.ErrPermissionDenied with the kinds that were not
// granted, or returns nil when the list is empty.
func deniedError(denied []gateway.Kind) error {
	if len(denied) == 0 {
		return nil
	}
	names := make([]string, len(denied))
	for i, k := range denied {
		names[i] = string(k)
	}
	return fmt.Errorf("%w: %s", gateway.ErrPermissionDenied, strings.Join(names, ", "))
}

// Static keeps grants in memory. It suits single-user deployments where the
// decision comes from the config file.
type Static struct {
	mu       sync.Mutex
	decision gateway.AuthorizationStatus
	statuses map[gateway.Kind]gateway.AuthorizationStatus
}

// NewStatic returns an authority that answers undecided kinds with decision.
// preset seeds decisions that were made ahead of time.
func NewStatic(decision gateway.AuthorizationStatus, preset map[gateway.Kind]gateway.AuthorizationStatus) *Static {
	statuses := make(map[gateway.Kind]gateway.AuthorizationStatus, len(preset))
	for k, s := range preset {
		statuses[k] = s
	}
	return &Static{decision: decision, statuses: statuses}
}

func (s *Static) RequestAuthorization(_ context.Context, kinds []gateway.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var denied []gateway.Kind
	for _, k := range kinds {
		if s.statuses[k] == gateway.NotDetermined {
			s.statuses[k] = s.decision
		}
		if s.statuses[k] != gateway.Granted {
			denied = append(denied, k)
		}
	}
	return deniedError(denied)
}

func (s *Static) AuthorizationStatus(_ context.Context, kind gateway.Kind) (gateway.AuthorizationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[kind], nil
}
