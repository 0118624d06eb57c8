package events

import "sort"

// Route describes where an event type is published.
type Route struct {
	Topic         string
	SchemaVersion string
}

var routes = map[string]Route{
	TypeSessionRecorded:     {Topic: "gym_session_events", SchemaVersion: "v1"},
	TypeSessionDeleted:      {Topic: "gym_session_events", SchemaVersion: "v1"},
	TypeExercisesRegistered: {Topic: "gym_catalog_events", SchemaVersion: "v1"},
}

// RouteFor returns the route registered for eventType.
func RouteFor(eventType string) (Route, bool) {
	r, ok := routes[eventType]
	return r, ok
}

// Topics lists every topic an event can be routed to.
func Topics() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		if _, ok := seen[r.Topic]; ok {
			continue
		}
		seen[r.Topic] = struct{}{}
		out = append(out, r.Topic)
	}
	sort.Strings(out)
	return out
}
