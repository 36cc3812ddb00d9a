package rbld

import "strings"

// ZoneClass tags which of the four disjoint classifications a query name
// falls into.
type ZoneClass int

const (
	ClassForward ZoneClass = iota
	ClassSingleRBL
	ClassAggregate
	ClassCustomRBL
)

// Classification is the result of classifying a query name against the
// zone registry.
type Classification struct {
	Class   ZoneClass
	RBL     RBL           // set when Class == ClassSingleRBL
	Zone    AggregateZone // set when Class == ClassAggregate
	Custom  *CustomRBLConfig
	Reverse string // reversed-IP prefix stripped of its zone suffix
}

// ZoneRegistry classifies query names into {single RBL, aggregate zone,
// custom-RBL, forward}, built once at startup from the RBL list, the
// optional aggregate zones file, and the optional custom-RBL config
// (component F). It is immutable after construction, so lookups need no
// locking.
type ZoneRegistry struct {
	rbls       []RBL
	aggregates []AggregateZone
	custom     *CustomRBLConfig
}

// NewZoneRegistry builds a registry from its three sources. Aggregate
// zones with rbls == ["*"] have already been expanded by the caller via
// ExpandAggregateZone.
func NewZoneRegistry(rbls []RBL, aggregates []AggregateZone, custom *CustomRBLConfig) *ZoneRegistry {
	return &ZoneRegistry{rbls: rbls, aggregates: aggregates, custom: custom}
}

// Classify matches qname by zone suffix. An enabled custom-RBL zone is
// checked first, then aggregate zones, then single RBLs; among aggregate
// zones and among single RBLs the longest matching suffix wins; everything
// unmatched forwards.
func (z *ZoneRegistry) Classify(qname string) Classification {
	name := normalizeZone(qname)

	if z.custom != nil && z.custom.Enabled {
		if reverse, ok := stripZoneSuffix(name, z.custom.ZoneName); ok {
			return Classification{Class: ClassCustomRBL, Custom: z.custom, Reverse: reverse}
		}
	}

	if zone, ok := z.longestAggregateMatch(name); ok {
		return Classification{Class: ClassAggregate, Zone: zone}
	}

	if rbl, reverse, ok := z.longestRBLMatch(name); ok {
		return Classification{Class: ClassSingleRBL, RBL: rbl, Reverse: reverse}
	}

	return Classification{Class: ClassForward}
}

func (z *ZoneRegistry) longestAggregateMatch(name string) (AggregateZone, bool) {
	var best AggregateZone
	var bestLen int
	var found bool
	for _, zone := range z.aggregates {
		suffix := normalizeZone(zone.Domain)
		if _, ok := stripZoneSuffix(name, suffix); ok && len(suffix) > bestLen {
			best, bestLen, found = zone, len(suffix), true
		}
	}
	return best, found
}

func (z *ZoneRegistry) longestRBLMatch(name string) (RBL, string, bool) {
	var best RBL
	var bestReverse string
	var bestLen int
	var found bool
	for _, rbl := range z.rbls {
		suffix := normalizeZone(rbl.Host)
		if reverse, ok := stripZoneSuffix(name, suffix); ok && len(suffix) > bestLen {
			best, bestReverse, bestLen, found = rbl, reverse, len(suffix), true
		}
	}
	return best, bestReverse, found
}

// stripZoneSuffix returns the label prefix of name with suffix (and its
// separating dot) removed. It requires a non-empty prefix, since the zone
// apex itself carries no reverse-IP query to parse.
func stripZoneSuffix(name, suffix string) (string, bool) {
	if suffix == "" || !strings.HasSuffix(name, suffix) {
		return "", false
	}
	prefix := strings.TrimSuffix(name, suffix)
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return "", false
	}
	return prefix, true
}
