package rbld

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"
)

// CustomRBLEntry is one row of the authoritative custom-RBL table: a CIDR
// network together with a listed/not-listed verdict and optional metadata.
type CustomRBLEntry struct {
	ID        int64
	Network   *net.IPNet
	Listed    bool
	Reason    string
	AddedBy   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CustomRBLConfig describes the single (at most) enabled custom-RBL zone.
type CustomRBLConfig struct {
	ZoneName    string
	Description string
	Enabled     bool
}

// CustomRBLResult is the outcome of checking an IP against the custom-RBL
// store.
type CustomRBLResult struct {
	Listed   bool
	Response net.IP
	Reason   string
	Network  *net.IPNet
	Err      error
}

// CustomRBLStore is the authoritative CIDR table backing custom-RBL
// queries (component C). It is safe for concurrent use: administrative
// writers take the write lock, the DNS read path takes the read lock, and
// readers always see a consistent snapshot.
type CustomRBLStore struct {
	mu      sync.RWMutex
	config  *CustomRBLConfig
	entries map[int64]*CustomRBLEntry
	nextID  int64
}

// NewCustomRBLStore returns an empty store. Load the configuration and any
// existing entries with SetConfig/Add before serving queries.
func NewCustomRBLStore() *CustomRBLStore {
	return &CustomRBLStore{
		entries: make(map[int64]*CustomRBLEntry),
	}
}

// SetConfig installs the zone configuration read at startup or on
// configuration reload. The DNS engine never writes this itself; it is
// set by whatever administrative surface owns the configuration.
func (s *CustomRBLStore) SetConfig(cfg *CustomRBLConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

// Config returns the current custom-RBL zone configuration, or nil if none
// is configured.
func (s *CustomRBLStore) Config() *CustomRBLConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Check performs a longest-prefix-match lookup of ip against the listed
// entries in the store. Custom-RBL results are never written to the
// two-tier cache; this lookup is cheap enough that the store itself is the
// source of truth.
func (s *CustomRBLStore) Check(ip net.IP) CustomRBLResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := longestPrefixMatch(s.entries, ip)
	if !ok {
		return CustomRBLResult{Listed: false}
	}
	reason := entry.Reason
	if reason == "" {
		reason = "Listed in custom blocklist"
	}
	return CustomRBLResult{
		Listed:   true,
		Response: sentinelListed,
		Reason:   reason,
		Network:  entry.Network,
	}
}

// longestPrefixMatch returns the listed entry whose network contains ip
// with the largest prefix length, ties broken by the smallest id, per
// §4.A. It returns ok=false if no listed entry contains ip.
func longestPrefixMatch(entries map[int64]*CustomRBLEntry, ip net.IP) (*CustomRBLEntry, bool) {
	var best *CustomRBLEntry
	var bestOnes int
	for _, e := range entries {
		if !e.Listed {
			continue
		}
		if !cidrContains(e.Network, ip) {
			continue
		}
		ones, _ := e.Network.Mask.Size()
		switch {
		case best == nil:
			best, bestOnes = e, ones
		case ones > bestOnes:
			best, bestOnes = e, ones
		case ones == bestOnes && e.ID < best.ID:
			best, bestOnes = e, ones
		}
	}
	return best, best != nil
}

// cidrContains is a version-aware containment test: false if the families
// of net and ip differ, otherwise a straight bitwise compare under the
// network's prefix mask.
func cidrContains(network *net.IPNet, ip net.IP) bool {
	netIP4 := network.IP.To4()
	ip4 := ip.To4()
	if (netIP4 == nil) != (ip4 == nil) {
		return false
	}
	return network.Contains(ip)
}

// Add inserts a new custom-RBL entry for the given CIDR. It rejects
// malformed CIDRs and duplicate networks with a *ValidationError.
func (s *CustomRBLStore) Add(cidr string, listed bool, reason, addedBy string) (*CustomRBLEntry, error) {
	network, err := parseCIDRStrict(cidr)
	if err != nil {
		return nil, &ValidationError{Field: "network", Message: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.Network.String() == network.String() {
			return nil, &ValidationError{Field: "network", Message: fmt.Sprintf("duplicate network %s", network)}
		}
	}

	s.nextID++
	now := time.Now()
	entry := &CustomRBLEntry{
		ID:        s.nextID,
		Network:   network,
		Listed:    listed,
		Reason:    reason,
		AddedBy:   addedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.entries[entry.ID] = entry
	return entry, nil
}

// RemoveByID removes an entry by its id. It returns false if no such entry
// exists.
func (s *CustomRBLStore) RemoveByID(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// RemoveByCIDR removes the entry matching the given CIDR exactly. It
// returns false if no such entry exists or the CIDR is malformed.
func (s *CustomRBLStore) RemoveByCIDR(cidr string) bool {
	network, err := parseCIDRStrict(cidr)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.Network.String() == network.String() {
			delete(s.entries, id)
			return true
		}
	}
	return false
}

// Update changes the reason and/or listed flag of an existing entry.
func (s *CustomRBLStore) Update(id int64, listed bool, reason string) (*CustomRBLEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, &ValidationError{Field: "id", Message: fmt.Sprintf("no entry with id %d", id)}
	}
	e.Listed = listed
	e.Reason = reason
	e.UpdatedAt = time.Now()
	return e, nil
}

// List returns entries ordered by id, paginated by offset/limit. A limit
// of 0 returns all remaining entries.
func (s *CustomRBLStore) List(offset, limit int) []*CustomRBLEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*CustomRBLEntry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// parseCIDRStrict parses a CIDR string and enforces the prefix-length
// bounds from the data model: [0,32] for IPv4, [0,128] for IPv6.
func parseCIDRStrict(cidr string) (*net.IPNet, error) {
	ip, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	ones, bits := network.Mask.Size()
	if ip.To4() != nil {
		if bits != 32 || ones < 0 || ones > 32 {
			return nil, fmt.Errorf("invalid IPv4 prefix length in %q", cidr)
		}
	} else if bits != 128 || ones < 0 || ones > 128 {
		return nil, fmt.Errorf("invalid IPv6 prefix length in %q", cidr)
	}
	return network, nil
}
