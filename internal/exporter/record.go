package exporter

import (
	"slices"
	"strings"
	"time"
)

// RouteRecord is one observation of the path traffic takes between two
// devices next to the shortest path the topology allows.
type RouteRecord struct {
	Timestamp        time.Time `json:"@timestamp"`
	Source           string    `json:"source"`
	Destination      string    `json:"destination"`
	RoutePath        []string  `json:"route_path"`
	TopologyPath     []string  `json:"topology_path"`
	RouteHops        int       `json:"route_hops"`
	PathHops         int       `json:"path_hops"`
	IsOptimal        bool      `json:"is_optimal"`
	RouteChanged     bool      `json:"route_changed"`
	LastRoutePath    []string  `json:"last_route_path,omitempty"`
	RoutePathStr     string    `json:"route_path_str"`
	TopologyPathStr  string    `json:"topology_path_str"`
	LastRoutePathStr string    `json:"last_route_path_str,omitempty"`
}

func pairKey(src, dst string) string {
	return src + "-" + dst
}

func pathString(path []string) string {
	return strings.Join(path, " -> ")
}

func newRecord(at time.Time, routePath, topoPath, last []string) RouteRecord {
	return RouteRecord{
		Timestamp:        at,
		Source:           routePath[0],
		Destination:      routePath[len(routePath)-1],
		RoutePath:        routePath,
		TopologyPath:     topoPath,
		RouteHops:        len(routePath) - 1,
		PathHops:         len(topoPath) - 1,
		IsOptimal:        len(routePath) == len(topoPath),
		RouteChanged:     last != nil && !slices.Equal(last, routePath),
		LastRoutePath:    last,
		RoutePathStr:     pathString(routePath),
		TopologyPathStr:  pathString(topoPath),
		LastRoutePathStr: pathString(last),
	}
}
