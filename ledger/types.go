package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sipfs/policy-escrow-backend/escrow"
	"github.com/sipfs/policy-escrow-backend/interfaces"
	"github.com/sipfs/policy-escrow-backend/policy"
)

// PolicySet is a policy.Set that decodes from any of the historical wire
// shapes (clause list, single clause object, double-encoded string). Every
// record read from the store goes through this normalization, so shape
// guessing happens exactly once, at the codec boundary.
type PolicySet policy.Set

// UnmarshalJSON normalizes the stored encoding into a clause list.
func (ps *PolicySet) UnmarshalJSON(raw []byte) error {
	set, err := policy.Normalize(raw)
	if err != nil {
		return err
	}
	*ps = PolicySet(set)
	return nil
}

// Set converts back to the policy engine's type.
func (ps PolicySet) Set() policy.Set {
	return policy.Set(ps)
}

// User is the per-username ledger record. Users are created once and are
// immutable thereafter.
type User struct {
	Username  string          `json:"username"`
	Role      interfaces.Role `json:"role"`
	CreatedAt time.Time       `json:"createdAt"`
	PublicKey string          `json:"publicKey"`
	PolicySet PolicySet       `json:"policySet"`
}

// Fragment is one share of the split AccessKey, tagged by the hash of the
// policy attribute it is bound to. Fragment order mirrors hashed-attribute
// order; the pairing is positional and must survive storage round trips.
type Fragment struct {
	AttributeHash string       `json:"attributeHash"`
	Share         escrow.Share `json:"share"`
}

// BuildFragments pairs share i with hashed attribute i. The pairing is what
// ties "holding attribute X" to "being entitled to share X", so the two
// lists must line up exactly.
func BuildFragments(shares []escrow.Share, attrs []policy.HashedAttribute) ([]Fragment, error) {
	if len(shares) != len(attrs) {
		return nil, fmt.Errorf("share count %d does not match attribute count %d", len(shares), len(attrs))
	}
	fragments := make([]Fragment, len(shares))
	for i := range shares {
		fragments[i] = Fragment{AttributeHash: attrs[i].Hash, Share: shares[i]}
	}
	return fragments, nil
}

// Requester is one entry in an asset's grant log. The log is advisory
// bookkeeping; it is not an access-control gate by itself.
type Requester struct {
	Username  string    `json:"username"`
	GrantedAt time.Time `json:"grantedAt"`
}

// RevocationPermanent is the only revocation type currently defined.
// Permanent records are append-only and never removed.
const RevocationPermanent = "permanent"

// RevocationRecord denies a (username, asset) pair access forever.
type RevocationRecord struct {
	Username  string    `json:"username"`
	Type      string    `json:"type"`
	RevokedAt time.Time `json:"revokedAt"`
}

// Asset is the per-ID ledger record for one released content version.
// ID never changes across updates; successive content versions are linked
// through PrevContentRef.
type Asset struct {
	ID               string                   `json:"id"`
	Kind             string                   `json:"type,omitempty"`
	MetaData         string                   `json:"metaData,omitempty"`
	PolicySet        PolicySet                `json:"policySet"`
	PublicKeyOwner   string                   `json:"publicKeyOwner"`
	ReleasedAt       time.Time                `json:"releasedAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
	Owner            string                   `json:"owner"`
	Name             string                   `json:"name"`
	ContentRef       string                   `json:"contentRef"`
	PrevContentRef   string                   `json:"prevContentRef,omitempty"`
	AccessKeyHash    string                   `json:"accessKeyHash"`
	FragmentsMap     []Fragment               `json:"fragmentsMap"`
	HashedAttributes []policy.HashedAttribute `json:"hashedAttributes"`
	Requesters       []Requester              `json:"requesters"`
	RevokedAccess    []RevocationRecord       `json:"revokedAccess"`
}

// PermanentlyRevoked reports whether username holds a permanent revocation
// record on the asset.
func (a *Asset) PermanentlyRevoked(username string) bool {
	for _, r := range a.RevokedAccess {
		if r.Username == username && r.Type == RevocationPermanent {
			return true
		}
	}
	return false
}

// AccessDecision is the result of CheckAccess. Key is populated only when
// Access is true.
type AccessDecision struct {
	Access bool   `json:"access"`
	Owner  string `json:"owner,omitempty"`
	Key    []byte `json:"key,omitempty"`
}

// CreateUserParams carries the CreateUser arguments. PolicySet accepts any
// of the wire shapes PolicySet normalizes.
type CreateUserParams struct {
	Username  string
	Role      interfaces.Role
	CreatedAt time.Time
	PublicKey string
	PolicySet json.RawMessage
}

// CreateAssetParams carries the CreateAsset arguments.
type CreateAssetParams struct {
	ID               string
	Kind             string
	MetaData         string
	PolicySet        json.RawMessage
	PublicKeyOwner   string
	ReleasedAt       time.Time
	UpdatedAt        time.Time
	Owner            string
	Name             string
	ContentRef       string
	PrevContentRef   string
	AccessKeyHash    string
	FragmentsMap     []Fragment
	HashedAttributes []policy.HashedAttribute
}

// UpdateAssetParams carries the UpdateAsset arguments. All fields replace
// the asset's current values except Requesters and RevokedAccess, which are
// carried forward from the stored record.
type UpdateAssetParams struct {
	ID               string
	Kind             string
	MetaData         string
	PolicySet        json.RawMessage
	PublicKeyOwner   string
	UpdatedAt        time.Time
	Owner            string
	Name             string
	ContentRef       string
	PrevContentRef   string
	AccessKeyHash    string
	FragmentsMap     []Fragment
	HashedAttributes []policy.HashedAttribute
}
