package exchange

// exchangeRequest is the body POSTed to the exchange endpoint.
type exchangeRequest struct {
	TargetProviderID string `json:"target_provider_id"`
	SourcePseudonym  string `json:"source_pseudonym"`
}

// responseKeyPseudonym is matched exactly. Case variants such as "Pseudonym"
// do not count.
const responseKeyPseudonym = "pseudonym"

const (
	maxResponseBytes   = 1 << 20
	maxPseudonymLength = 256
)
