// Package ledger implements the asset/user/revocation state machine on top
// of an injected transactional key-value store. The engine itself holds no
// state: every operation is a read-modify-write against the store, safe to
// call concurrently, with optimistic-concurrency conflicts surfacing as
// transient store errors for the transaction gateway to retry.
package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sipfs/policy-escrow-backend/escrow"
	"github.com/sipfs/policy-escrow-backend/interfaces"
	"github.com/sipfs/policy-escrow-backend/policy"
)

const (
	userKeyPrefix  = "user/"
	assetKeyPrefix = "asset/"
)

func userKey(username string) string { return userKeyPrefix + username }
func assetKey(id string) string      { return assetKeyPrefix + id }

// Ledger is the policy/secret-escrow engine. All methods are stateless
// transactions against the injected store.
type Ledger struct {
	store interfaces.KVStore
	log   *slog.Logger
}

// New creates a ledger engine over store.
func New(store interfaces.KVStore, log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{store: store, log: log}
}

// CreateUser writes a new user record. Fails with ErrAlreadyExists when the
// username is occupied and ErrInvalidPolicyFormat when the policy set does
// not normalize.
func (l *Ledger) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	if params.Username == "" {
		return nil, errors.New("username must not be empty")
	}
	if !params.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q", params.Role)
	}

	set, err := policy.Normalize(params.PolicySet)
	if err != nil {
		return nil, err
	}

	key := userKey(params.Username)
	if _, err := l.store.Get(ctx, key); err == nil {
		return nil, fmt.Errorf("user %s: %w", params.Username, interfaces.ErrAlreadyExists)
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	user := &User{
		Username:  params.Username,
		Role:      params.Role,
		CreatedAt: params.CreatedAt,
		PublicKey: params.PublicKey,
		PolicySet: PolicySet(set),
	}

	raw, err := canonicalMarshal(user)
	if err != nil {
		return nil, err
	}
	if _, err := l.store.Put(ctx, key, raw, 0); err != nil {
		return nil, err
	}

	l.log.Info("user created",
		slog.String("username", params.Username),
		slog.String("role", string(params.Role)))
	return user, nil
}

// GetUser reads a user record. Fails with ErrNotFound when absent.
func (l *Ledger) GetUser(ctx context.Context, username string) (*User, error) {
	entry, err := l.store.Get(ctx, userKey(username))
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", username, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var user User
	if err := decodeRecord(entry.Value, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UserExists reports whether username is occupied.
func (l *Ledger) UserExists(ctx context.Context, username string) (bool, error) {
	_, err := l.store.Get(ctx, userKey(username))
	if errors.Is(err, interfaces.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateAsset writes a new asset record with empty grant and revocation
// logs. The fragment count must equal the hashed-attribute count; that
// count is the reconstruction threshold of the escrowed key.
func (l *Ledger) CreateAsset(ctx context.Context, params CreateAssetParams) (*Asset, error) {
	if params.ID == "" {
		return nil, errors.New("asset id must not be empty")
	}
	if len(params.FragmentsMap) != len(params.HashedAttributes) {
		return nil, fmt.Errorf("fragment count %d does not match hashed attribute count %d",
			len(params.FragmentsMap), len(params.HashedAttributes))
	}

	set, err := policy.Normalize(params.PolicySet)
	if err != nil {
		return nil, err
	}

	key := assetKey(params.ID)
	if _, err := l.store.Get(ctx, key); err == nil {
		return nil, fmt.Errorf("asset %s: %w", params.ID, interfaces.ErrAlreadyExists)
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}

	asset := &Asset{
		ID:               params.ID,
		Kind:             params.Kind,
		MetaData:         params.MetaData,
		PolicySet:        PolicySet(set),
		PublicKeyOwner:   params.PublicKeyOwner,
		ReleasedAt:       params.ReleasedAt,
		UpdatedAt:        params.UpdatedAt,
		Owner:            params.Owner,
		Name:             params.Name,
		ContentRef:       params.ContentRef,
		PrevContentRef:   params.PrevContentRef,
		AccessKeyHash:    params.AccessKeyHash,
		FragmentsMap:     params.FragmentsMap,
		HashedAttributes: params.HashedAttributes,
		Requesters:       []Requester{},
		RevokedAccess:    []RevocationRecord{},
	}

	raw, err := canonicalMarshal(asset)
	if err != nil {
		return nil, err
	}
	if _, err := l.store.Put(ctx, key, raw, 0); err != nil {
		return nil, err
	}

	l.log.Info("asset created",
		slog.String("asset_id", params.ID),
		slog.String("owner", params.Owner),
		slog.Int("fragments", len(params.FragmentsMap)))
	return asset, nil
}

// ReadAsset reads a single asset record. Fails with ErrNotFound when absent.
func (l *Ledger) ReadAsset(ctx context.Context, id string) (*Asset, error) {
	asset, _, err := l.readAssetVersioned(ctx, id)
	return asset, err
}

func (l *Ledger) readAssetVersioned(ctx context.Context, id string) (*Asset, uint64, error) {
	entry, err := l.store.Get(ctx, assetKey(id))
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, 0, fmt.Errorf("asset %s: %w", id, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, 0, err
	}

	var asset Asset
	if err := decodeRecord(entry.Value, &asset); err != nil {
		return nil, 0, err
	}
	return &asset, entry.Version, nil
}

// GetAllAssets range-scans every asset record.
func (l *Ledger) GetAllAssets(ctx context.Context) ([]Asset, error) {
	var assets []Asset
	err := l.store.Range(ctx, assetKeyPrefix, func(e interfaces.KVEntry) error {
		var asset Asset
		if err := decodeRecord(e.Value, &asset); err != nil {
			// A single undecodable record must not hide the rest.
			l.log.Warn("skipping undecodable asset record",
				slog.String("key", e.Key), "err", err)
			return nil
		}
		assets = append(assets, asset)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// GetAssetsByOwnerAndName returns all versions of an owner's asset with the
// given name, newest first by UpdatedAt. kind filters on the asset kind
// when non-empty. Callers link a new version by taking the first result's
// ContentRef as the PrevContentRef of the record they are about to write.
func (l *Ledger) GetAssetsByOwnerAndName(ctx context.Context, owner, name, kind string) ([]Asset, error) {
	all, err := l.GetAllAssets(ctx)
	if err != nil {
		return nil, err
	}

	var matched []Asset
	for _, a := range all {
		if a.Owner != owner || a.Name != name {
			continue
		}
		if kind != "" && !strings.EqualFold(a.Kind, kind) {
			continue
		}
		matched = append(matched, a)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	return matched, nil
}

// UpdateAsset replaces the asset's mutable fields. The grant and revocation
// logs are carried forward from the stored record: dropping them on update
// would silently erase revocation history.
func (l *Ledger) UpdateAsset(ctx context.Context, params UpdateAssetParams) (*Asset, error) {
	if len(params.FragmentsMap) != len(params.HashedAttributes) {
		return nil, fmt.Errorf("fragment count %d does not match hashed attribute count %d",
			len(params.FragmentsMap), len(params.HashedAttributes))
	}

	current, version, err := l.readAssetVersioned(ctx, params.ID)
	if err != nil {
		return nil, err
	}

	set, err := policy.Normalize(params.PolicySet)
	if err != nil {
		return nil, err
	}

	updated := &Asset{
		ID:               current.ID,
		Kind:             params.Kind,
		MetaData:         params.MetaData,
		PolicySet:        PolicySet(set),
		PublicKeyOwner:   params.PublicKeyOwner,
		ReleasedAt:       current.ReleasedAt,
		UpdatedAt:        params.UpdatedAt,
		Owner:            params.Owner,
		Name:             params.Name,
		ContentRef:       params.ContentRef,
		PrevContentRef:   params.PrevContentRef,
		AccessKeyHash:    params.AccessKeyHash,
		FragmentsMap:     params.FragmentsMap,
		HashedAttributes: params.HashedAttributes,
		Requesters:       current.Requesters,
		RevokedAccess:    current.RevokedAccess,
	}

	raw, err := canonicalMarshal(updated)
	if err != nil {
		return nil, err
	}
	if _, err := l.store.Put(ctx, assetKey(params.ID), raw, version); err != nil {
		return nil, err
	}

	l.log.Info("asset updated",
		slog.String("asset_id", params.ID),
		slog.String("content_ref", params.ContentRef),
		slog.String("prev_content_ref", params.PrevContentRef))
	return updated, nil
}

// RevokePermanentAccess appends a permanent revocation record for username
// on the asset and returns the updated asset. The operation is idempotent:
// an existing permanent record for the same username leaves the asset
// unchanged, which is what makes revocation safe under at-least-once retry.
func (l *Ledger) RevokePermanentAccess(ctx context.Context, username, assetID string, revokedAt time.Time) (*Asset, error) {
	asset, version, err := l.readAssetVersioned(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if asset.PermanentlyRevoked(username) {
		l.log.Debug("revocation already recorded",
			slog.String("asset_id", assetID),
			slog.String("username", username))
		return asset, nil
	}

	asset.RevokedAccess = append(asset.RevokedAccess, RevocationRecord{
		Username:  username,
		Type:      RevocationPermanent,
		RevokedAt: revokedAt,
	})

	raw, err := canonicalMarshal(asset)
	if err != nil {
		return nil, err
	}
	if _, err := l.store.Put(ctx, assetKey(assetID), raw, version); err != nil {
		return nil, err
	}

	l.log.Info("permanent access revoked",
		slog.String("asset_id", assetID),
		slog.String("username", username))
	return asset, nil
}

// GrantAccess appends username to the asset's grant log and returns the
// updated asset. The log is advisory; CheckAccess remains the gate.
func (l *Ledger) GrantAccess(ctx context.Context, username, assetID string, grantedAt time.Time) (*Asset, error) {
	asset, version, err := l.readAssetVersioned(ctx, assetID)
	if err != nil {
		return nil, err
	}

	asset.Requesters = append(asset.Requesters, Requester{
		Username:  username,
		GrantedAt: grantedAt,
	})

	raw, err := canonicalMarshal(asset)
	if err != nil {
		return nil, err
	}
	if _, err := l.store.Put(ctx, assetKey(assetID), raw, version); err != nil {
		return nil, err
	}
	return asset, nil
}

// DeleteAsset removes the asset record. Irreversible; fails with
// ErrNotFound when the asset does not exist.
func (l *Ledger) DeleteAsset(ctx context.Context, id string) error {
	_, version, err := l.readAssetVersioned(ctx, id)
	if err != nil {
		return err
	}

	if err := l.store.Delete(ctx, assetKey(id), version); err != nil {
		return err
	}
	l.log.Info("asset deleted", slog.String("asset_id", id))
	return nil
}

// CheckAccess decides whether username may access the asset and, only when
// the decision is positive, reconstructs the escrowed AccessKey from the
// stored fragments. A permanent revocation denies immediately; a policy
// mismatch returns the owner but neither key nor any reconstruction
// attempt, so a denied caller learns nothing about the escrowed secret.
func (l *Ledger) CheckAccess(ctx context.Context, username, assetID string) (*AccessDecision, error) {
	user, err := l.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}

	asset, _, err := l.readAssetVersioned(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if asset.PermanentlyRevoked(username) {
		l.log.Info("access denied by revocation",
			slog.String("asset_id", assetID),
			slog.String("username", username))
		return &AccessDecision{Access: false, Owner: asset.Owner}, nil
	}

	if !policy.Matches(asset.PolicySet.Set(), user.PolicySet.Set()) {
		l.log.Info("access denied by policy",
			slog.String("asset_id", assetID),
			slog.String("username", username))
		return &AccessDecision{Access: false, Owner: asset.Owner}, nil
	}

	commitment, err := hex.DecodeString(asset.AccessKeyHash)
	if err != nil {
		return nil, fmt.Errorf("asset %s has malformed access key hash: %w", assetID, err)
	}

	shares := make([]escrow.Share, len(asset.FragmentsMap))
	for i, f := range asset.FragmentsMap {
		shares[i] = f.Share
	}

	key, err := escrow.Reconstruct(shares, escrow.Commitment(commitment))
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", assetID, err)
	}

	l.log.Info("access granted",
		slog.String("asset_id", assetID),
		slog.String("username", username))
	return &AccessDecision{Access: true, Owner: asset.Owner, Key: key}, nil
}
