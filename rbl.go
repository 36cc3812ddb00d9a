package rbld

import "strings"

// RBL is the immutable descriptor of one DNS-based block-list zone.
type RBL struct {
	Name        string
	Host        string
	Description string
}

func normalizeZone(z string) string {
	return strings.ToLower(strings.TrimSuffix(z, "."))
}

// AggregateZone groups a set of RBLs under a single query domain. Rbls
// holds either a literal list of RBL hosts or the sentinel "*", expanded
// at load time to the full RBL set by ExpandAggregateZone.
type AggregateZone struct {
	Domain      string
	Description string
	Rbls        []string
}

// ExpandAggregateZone renders a zone's "*" rbls value (by value, not
// reference) into the full list of currently loaded RBL hosts.
func ExpandAggregateZone(zone AggregateZone, all []RBL) AggregateZone {
	if len(zone.Rbls) != 1 || zone.Rbls[0] != "*" {
		return zone
	}
	expanded := make([]string, 0, len(all))
	for _, r := range all {
		expanded = append(expanded, r.Host)
	}
	zone.Rbls = expanded
	return zone
}
