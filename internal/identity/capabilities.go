package identity

// Capability is a named elevated permission derived from role. Elevated
// capabilities never depend on the verification flag.
type Capability string

const (
	CapListAll          Capability = "list_all"
	CapVerifyProperty   Capability = "verify_property"
	CapReviewKYC        Capability = "review_kyc"
	CapManageCompliance Capability = "manage_compliance"
	CapAdmin            Capability = "admin"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin:      {CapListAll, CapVerifyProperty, CapReviewKYC, CapManageCompliance, CapAdmin},
	RoleGovernment: {CapVerifyProperty, CapReviewKYC, CapManageCompliance},
}

// Capabilities returns the elevated capability set for the actor. All roles
// other than admin and government hold none, regardless of verification.
func Capabilities(a Actor) map[Capability]bool {
	caps := make(map[Capability]bool)
	for _, c := range roleCapabilities[a.Role] {
		caps[c] = true
	}
	return caps
}

// Has reports whether the actor holds the capability.
func Has(a Actor, c Capability) bool {
	for _, held := range roleCapabilities[a.Role] {
		if held == c {
			return true
		}
	}
	return false
}
