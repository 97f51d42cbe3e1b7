// Package health reports actor liveness over the standard gRPC health
// protocol.
package health

import (
	"sort"
	"sync"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServicePrefix names the per-actor health services, e.g. "insectcam.gateway".
const ServicePrefix = "insectcam."

// Service tracks which supervised actors are running. The overall service
// ("") is SERVING only while every registered actor is up.
type Service struct {
	mu     sync.Mutex
	server *health.Server
	actors map[string]bool
}

// NewService registers actors as NOT_SERVING until SetActor reports them up.
func NewService(actors ...string) *Service {
	s := &Service{
		server: health.NewServer(),
		actors: make(map[string]bool, len(actors)),
	}
	for _, name := range actors {
		s.actors[name] = false
		s.server.SetServingStatus(ServicePrefix+name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	s.server.SetServingStatus("", s.overall())
	return s
}

// SetActor records whether the named actor is running.
func (s *Service) SetActor(name string, up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[name] = up
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.server.SetServingStatus(ServicePrefix+name, st)
	s.server.SetServingStatus("", s.overall())
}

// Down lists the actors that are not running, sorted by name.
func (s *Service) Down() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var down []string
	for name, up := range s.actors {
		if !up {
			down = append(down, name)
		}
	}
	sort.Strings(down)
	return down
}

// Shutdown marks every service NOT_SERVING; later updates are ignored.
func (s *Service) Shutdown() {
	s.server.Shutdown()
}

func (s *Service) overall() healthpb.HealthCheckResponse_ServingStatus {
	for _, up := range s.actors {
		if !up {
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	return healthpb.HealthCheckResponse_SERVING
}
