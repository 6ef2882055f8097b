package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zanmi-app/zanmi-go/internal/core/domain"
)

// routesFile is the YAML shape of a route-table override.
type routesFile struct {
	Routes []routeEntry `yaml:"routes"`
}

type routeEntry struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	TTL         string `yaml:"ttl"`
	Criticality string `yaml:"criticality"`
	Timeout     string `yaml:"timeout"`
	Anonymous   bool   `yaml:"anonymous"`
	Degradable  bool   `yaml:"degradable"`
	DegradeBody string `yaml:"degrade_body"`
}

// LoadRouteTable reads a route-table override from a YAML file. An
// empty path or a missing file falls back to the compiled-in default
// table; a present but malformed file is an error, never a silent
// fallback.
func LoadRouteTable(path string) (*domain.RouteTable, error) {
	if path == "" {
		return domain.DefaultRouteTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.DefaultRouteTable(), nil
		}
		return nil, fmt.Errorf("failed to read route config: %w", err)
	}

	var file routesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse route config: %w", err)
	}
	if len(file.Routes) == 0 {
		return nil, fmt.Errorf("route config %s declares no routes", path)
	}

	routes := make([]domain.Route, 0, len(file.Routes))
	for i, entry := range file.Routes {
		route, err := entry.toRoute()
		if err != nil {
			return nil, fmt.Errorf("route config %s entry %d: %w", path, i, err)
		}
		routes = append(routes, route)
	}
	return domain.NewRouteTable(routes), nil
}

func (e routeEntry) toRoute() (domain.Route, error) {
	if e.Name == "" {
		return domain.Route{}, fmt.Errorf("missing name")
	}
	if e.Pattern == "" {
		return domain.Route{}, fmt.Errorf("missing pattern")
	}

	route := domain.Route{
		Name:        e.Name,
		Pattern:     domain.ParseRoutePattern(e.Pattern),
		Anonymous:   e.Anonymous,
		Degradable:  e.Degradable,
		DegradeBody: e.DegradeBody,
	}

	if e.TTL != "" {
		ttl, err := time.ParseDuration(e.TTL)
		if err != nil {
			return domain.Route{}, fmt.Errorf("bad ttl %q: %w", e.TTL, err)
		}
		route.TTL = ttl
	}

	switch e.Criticality {
	case "", "auth":
		route.Criticality = domain.CriticalityAuth
	case "ui":
		route.Criticality = domain.CriticalityUI
	default:
		return domain.Route{}, fmt.Errorf("bad criticality %q", e.Criticality)
	}

	switch e.Timeout {
	case "", "default":
		route.Timeout = domain.TimeoutDefault
	case "payment":
		route.Timeout = domain.TimeoutPayment
	default:
		return domain.Route{}, fmt.Errorf("bad timeout %q", e.Timeout)
	}

	return route, nil
}
