package domain

import (
	"fmt"
	"strings"
)

// Route is the last routing decision taken in a turn.
// It is a closed set; the zero value means no decision has been made yet.
type Route uint8

const (
	RouteNone Route = iota
	RouteAnalysis
	RouteGeneral
	RouteBlocked
	RouteClear
	RouteDepends
)

var routeNames = [...]string{
	RouteNone:     "",
	RouteAnalysis: "analysis",
	RouteGeneral:  "general",
	RouteBlocked:  "blocked",
	RouteClear:    "clear",
	RouteDepends:  "depends",
}

func (r Route) String() string {
	if int(r) < len(routeNames) {
		return routeNames[r]
	}
	return fmt.Sprintf("route(%d)", uint8(r))
}

// Valid reports whether r is one of the declared routes.
func (r Route) Valid() bool {
	return int(r) < len(routeNames)
}

// ParseRoute converts the wire name of a route back to its value.
func ParseRoute(s string) (Route, error) {
	clean := strings.ToLower(strings.TrimSpace(s))
	for i, name := range routeNames {
		if name == clean {
			return Route(i), nil
		}
	}
	return RouteNone, fmt.Errorf("%w: %q", ErrInvalidRoute, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Route) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRoute, uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Route) UnmarshalText(text []byte) error {
	parsed, err := ParseRoute(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
