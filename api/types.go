package api

import (
	"encoding/json"
	"time"

	"github.com/sipfs/policy-escrow-backend/interfaces"
	"github.com/sipfs/policy-escrow-backend/ledger"
)

// RegisterRequest enrolls a new user with a login credential and a policy
// identity.
type RegisterRequest struct {
	Username  string          `json:"username"`
	Password  string          `json:"password"`
	Role      interfaces.Role `json:"role"`
	PublicKey string          `json:"publicKey,omitempty"`
	PolicySet json.RawMessage `json:"policySet"`
}

// LoginRequest authenticates an enrolled user.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token after register or login.
type TokenResponse struct {
	Token    string          `json:"token"`
	Username string          `json:"username"`
	Role     interfaces.Role `json:"role"`
}

// UploadRequest releases a new asset or a new version of one. Content is
// base64 in JSON. Threshold 0 means all fragments are required.
type UploadRequest struct {
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	MetaData  string          `json:"metaData,omitempty"`
	PolicySet json.RawMessage `json:"policySet"`
	Content   []byte          `json:"content"`
	Threshold int             `json:"threshold,omitempty"`
}

// UploadResponse reports where the released asset landed. WrappedKey is
// the AccessKey encrypted to the owner's public key, present only when
// the owner registered one.
type UploadResponse struct {
	AssetID    string `json:"assetId"`
	ContentRef string `json:"contentRef"`
	PrevRef    string `json:"prevContentRef,omitempty"`
	Fragments  int    `json:"fragments"`
	WrappedKey []byte `json:"wrappedKey,omitempty"`
}

// DownloadResponse carries decrypted content after a positive access
// decision.
type DownloadResponse struct {
	AssetID string `json:"assetId"`
	Name    string `json:"name"`
	Owner   string `json:"owner"`
	Content []byte `json:"content"`
}

// AccessResponse reports a denied access decision.
type AccessResponse struct {
	Access bool   `json:"access"`
	Owner  string `json:"owner,omitempty"`
}

// SubjectRequest names the user a grant or revocation applies to.
type SubjectRequest struct {
	Username string `json:"username"`
}

// AssetSummary is the list form of an asset: everything except the
// escrow material.
type AssetSummary struct {
	ID         string    `json:"id"`
	Kind       string    `json:"type,omitempty"`
	MetaData   string    `json:"metaData,omitempty"`
	Owner      string    `json:"owner"`
	Name       string    `json:"name"`
	ContentRef string    `json:"contentRef"`
	PrevRef    string    `json:"prevContentRef,omitempty"`
	ReleasedAt time.Time `json:"releasedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func summarize(a ledger.Asset) AssetSummary {
	return AssetSummary{
		ID:         a.ID,
		Kind:       a.Kind,
		MetaData:   a.MetaData,
		Owner:      a.Owner,
		Name:       a.Name,
		ContentRef: a.ContentRef,
		PrevRef:    a.PrevContentRef,
		ReleasedAt: a.ReleasedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// DownloadCountResponse reports an asset's total download tally.
type DownloadCountResponse struct {
	AssetID string `json:"assetId"`
	Count   int64  `json:"count"`
}
