package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// License status values. A license leaves the active state either lazily on
// validation after its expiry passes, or through an admin revoke. There is no
// transition out of expired or revoked other than issuing a new key.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusRevoked = "revoked"
)

// License plans.
const (
	PlanPro        = "pro"
	PlanTeam       = "team"
	PlanEnterprise = "enterprise"
)

// PlanFeatures returns the feature set derived from a plan. Unknown plans get
// premium-layers only.
func PlanFeatures(plan string) []string {
	switch plan {
	case PlanPro:
		return []string{"premium-layers", "priority-support", "analytics"}
	case PlanTeam:
		return []string{"premium-layers", "priority-support", "analytics", "team-management", "white-label"}
	case PlanEnterprise:
		return []string{
			"premium-layers", "priority-support", "analytics",
			"team-management", "white-label", "custom-integrations", "sla",
		}
	default:
		return []string{"premium-layers"}
	}
}

// LayerScope is the set of layers a license covers: either every layer ("*")
// or an explicit list of layer names. It round-trips the document form, which
// stores the wildcard as a bare string.
type LayerScope struct {
	All    bool
	Layers []string
}

// AllLayers returns a scope covering every layer.
func AllLayers() LayerScope {
	return LayerScope{All: true}
}

// Covers reports whether the scope includes the given layer name. A literal
// "*" entry in the list also covers everything.
func (s LayerScope) Covers(layerID string) bool {
	if s.All {
		return true
	}
	for _, l := range s.Layers {
		if l == "*" || l == layerID {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the wildcard scope as the string "*" and everything
// else as a list, matching the stored document format.
func (s LayerScope) MarshalJSON() ([]byte, error) {
	if s.All {
		return json.Marshal("*")
	}
	if s.Layers == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(s.Layers)
}

// UnmarshalJSON accepts either the string "*" or a list of layer names.
func (s *LayerScope) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str != "*" {
			return fmt.Errorf("invalid layer scope string %q", str)
		}
		*s = LayerScope{All: true}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("layer scope must be \"*\" or a list of layer names")
	}
	*s = LayerScope{Layers: list}
	return nil
}

// License is a credential authorizing downloads of premium layers, scoped by
// plan, layer list, optional domain allow-list, and expiry.
type License struct {
	ID        string     `json:"-"`
	Key       string     `json:"key"`
	UserID    string     `json:"userId"`
	Email     string     `json:"email"`
	Plan      string     `json:"plan"`
	Layers    LayerScope `json:"layers"`
	Domains   []string   `json:"domains"`
	Features  []string   `json:"features"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// MaskKey reduces a license key to its last four characters for audit logs,
// so usage records never disclose a full key.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return key
	}
	return "****" + key[len(key)-4:]
}

// DomainAllowed reports whether a request domain is covered by an allow-list.
// Entries of the form "*.base" match "base" itself and any subdomain of it.
// An empty allow-list permits every domain.
func DomainAllowed(domain string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, entry := range allowed {
		if after, ok := cutWildcard(entry); ok {
			if domain == after || hasDomainSuffix(domain, after) {
				return true
			}
			continue
		}
		if domain == entry {
			return true
		}
	}
	return false
}

func cutWildcard(entry string) (string, bool) {
	if len(entry) > 2 && entry[0] == '*' && entry[1] == '.' {
		return entry[2:], true
	}
	return "", false
}

func hasDomainSuffix(domain, base string) bool {
	return len(domain) > len(base)+1 && domain[len(domain)-len(base)-1] == '.' &&
		domain[len(domain)-len(base):] == base
}

// Usage actions recorded in the audit log.
const (
	ActionDownload = "download"
)

// LicenseUsage is an append-only audit record of a premium download. It is
// never read back for access decisions.
type LicenseUsage struct {
	LicenseID  string    `json:"licenseId"`
	LicenseKey string    `json:"licenseKey"`
	LayerID    string    `json:"layerId"`
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
}
