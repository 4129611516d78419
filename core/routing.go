package core

import (
	"fmt"
	"slices"
	"sort"
)

// RoutingTable is an immutable lookup from watched file name to Route.
type RoutingTable struct {
	routes map[string]Route
	tables []string // unique table names in declaration order
}

// NewRoutingTable validates the routes and builds a RoutingTable.
// File names must be unique.
func NewRoutingTable(routes ...Route) (*RoutingTable, error) {
	rt := &RoutingTable{
		routes: make(map[string]Route, len(routes)),
	}
	for i := range routes {
		route := routes[i]
		if err := ValidateRoute(&route); err != nil {
			return nil, err
		}
		if _, exists := rt.routes[route.FileName]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRoute, route.FileName)
		}
		// Copy so callers can't mutate the field list after construction
		route.TextFields = slices.Clone(route.TextFields)
		rt.routes[route.FileName] = route
		if !slices.Contains(rt.tables, route.Table) {
			rt.tables = append(rt.tables, route.Table)
		}
	}
	return rt, nil
}

// Lookup returns the route for a file name.
func (rt *RoutingTable) Lookup(fileName string) (Route, bool) {
	route, ok := rt.routes[fileName]
	if !ok {
		return Route{}, false
	}
	route.TextFields = slices.Clone(route.TextFields)
	return route, true
}

// Routes returns all routes sorted by file name.
func (rt *RoutingTable) Routes() []Route {
	result := make([]Route, 0, len(rt.routes))
	for _, route := range rt.routes {
		route.TextFields = slices.Clone(route.TextFields)
		result = append(result, route)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FileName < result[j].FileName
	})
	return result
}

// Tables returns the distinct target tables in the order they were first declared.
func (rt *RoutingTable) Tables() []string {
	return slices.Clone(rt.tables)
}

// RouteForTable returns the route writing to table. When several files feed
// the same table, the one with the lowest file name wins.
func (rt *RoutingTable) RouteForTable(table string) (Route, bool) {
	for _, route := range rt.Routes() {
		if route.Table == table {
			return route, true
		}
	}
	return Route{}, false
}

// Len returns the number of routes.
func (rt *RoutingTable) Len() int {
	return len(rt.routes)
}
