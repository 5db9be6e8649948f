// Package host holds the pieces an integration plugs into: a service router
// that validates and dispatches named operations, and a poller that refreshes
// entities on an interval.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/ezvizbridge/internal/events"
	"github.com/smazurov/ezvizbridge/internal/metrics"
)

// ErrServiceNotFound is returned for calls to unregistered services.
var ErrServiceNotFound = errors.New("service not found")

// ServiceCall is one invocation of a named service.
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]any
}

// Handler runs a validated service call.
type Handler func(ctx context.Context, call ServiceCall) error

// ServiceInfo describes a registered service.
type ServiceInfo struct {
	Domain  string   `json:"domain" example:"camera" doc:"Service domain"`
	Service string   `json:"service" example:"ezviz_ptz" doc:"Service name"`
	Fields  []string `json:"fields" example:"[\"entity_id\",\"direction\"]" doc:"Accepted payload keys"`
}

type service struct {
	schema  Schema
	handler Handler
}

// Router maps domain/service names to handlers.
type Router struct {
	bus    *events.Bus
	logger *slog.Logger

	mu       sync.RWMutex
	services map[string]map[string]service
}

// NewRouter creates a router publishing ServiceCalledEvent on bus (may be nil).
func NewRouter(bus *events.Bus, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		bus:      bus,
		logger:   logger,
		services: make(map[string]map[string]service),
	}
}

// RegisterService adds or replaces a service.
func (r *Router) RegisterService(domain, name string, schema Schema, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.services[domain] == nil {
		r.services[domain] = make(map[string]service)
	}
	r.services[domain][name] = service{schema: schema, handler: handler}
	r.logger.Debug("Registered service", "domain", domain, "service", name)
}

// RemoveService unregisters a service. Unknown services are ignored.
func (r *Router) RemoveService(domain, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services[domain], name)
}

// HasService reports whether domain/name is registered.
func (r *Router) HasService(domain, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.services[domain][name]
	return ok
}

// Services lists registered services sorted by domain and name.
func (r *Router) Services() []ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ServiceInfo
	for domain, byName := range r.services {
		for name, svc := range byName {
			fields := make([]string, 0, len(svc.schema.Fields))
			for _, f := range svc.schema.Fields {
				fields = append(fields, f.Key)
			}
			out = append(out, ServiceInfo{Domain: domain, Service: name, Fields: fields})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].Service < out[j].Service
	})
	return out
}

// Call validates the payload and runs the handler.
func (r *Router) Call(ctx context.Context, call ServiceCall) error {
	r.mu.RLock()
	svc, ok := r.services[call.Domain][call.Service]
	r.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("%w: %s.%s", ErrServiceNotFound, call.Domain, call.Service)
		r.finish(call, err)
		return err
	}

	if call.Data == nil {
		call.Data = map[string]any{}
	}
	data, err := svc.schema.Normalize(call.Data)
	if err != nil {
		r.finish(call, err)
		return err
	}
	call.Data = data

	r.logger.Debug("Calling service", "domain", call.Domain, "service", call.Service, "data", call.Data)
	err = svc.handler(ctx, call)
	r.finish(call, err)
	return err
}

func (r *Router) finish(call ServiceCall, err error) {
	metrics.RecordServiceCall(call.Domain, call.Service, err)
	if err != nil {
		r.logger.Warn("Service call failed", "domain", call.Domain, "service", call.Service, "error", err)
	}
	if r.bus == nil {
		return
	}
	ev := events.ServiceCalledEvent{
		Domain:    call.Domain,
		Service:   call.Service,
		Data:      call.Data,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.bus.Publish(ev)
}
