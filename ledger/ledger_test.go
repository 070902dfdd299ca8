package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipfs/policy-escrow-backend/escrow"
	"github.com/sipfs/policy-escrow-backend/interfaces"
	"github.com/sipfs/policy-escrow-backend/kvstore"
	"github.com/sipfs/policy-escrow-backend/policy"
)

var (
	t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(1 * time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func newTestLedger(t *testing.T) (*Ledger, *kvstore.MemoryStore) {
	t.Helper()
	store := kvstore.NewMemoryStore()
	return New(store, nil), store
}

func createRequester(t *testing.T, l *Ledger, username string, policyJSON string) {
	t.Helper()
	_, err := l.CreateUser(context.Background(), CreateUserParams{
		Username:  username,
		Role:      interfaces.RoleRequester,
		CreatedAt: t0,
		PublicKey: "pk-" + username,
		PolicySet: json.RawMessage(policyJSON),
	})
	require.NoError(t, err)
}

// escrowParams splits a fresh access key across the policy's hashed
// attributes the way the upload path does.
func escrowParams(t *testing.T, policyJSON string) (key []byte, hash string, fragments []Fragment, attrs []policy.HashedAttribute) {
	t.Helper()
	set, err := policy.Normalize(json.RawMessage(policyJSON))
	require.NoError(t, err)

	attrs = policy.HashAttributes(set)
	require.NotEmpty(t, attrs)

	key, err = escrow.NewAccessKey()
	require.NoError(t, err)

	shares, commitment, err := escrow.Split(key, len(attrs), len(attrs))
	require.NoError(t, err)

	fragments, err = BuildFragments(shares, attrs)
	require.NoError(t, err)
	return key, hex.EncodeToString(commitment), fragments, attrs
}

func createAsset(t *testing.T, l *Ledger, id, owner, name, policyJSON string) []byte {
	t.Helper()
	key, hash, fragments, attrs := escrowParams(t, policyJSON)
	_, err := l.CreateAsset(context.Background(), CreateAssetParams{
		ID:               id,
		Kind:             "FULL",
		PolicySet:        json.RawMessage(policyJSON),
		PublicKeyOwner:   "pk-" + owner,
		ReleasedAt:       t0,
		UpdatedAt:        t0,
		Owner:            owner,
		Name:             name,
		ContentRef:       "ref-" + id,
		AccessKeyHash:    hash,
		FragmentsMap:     fragments,
		HashedAttributes: attrs,
	})
	require.NoError(t, err)
	return key
}

const (
	aiPythonPolicy = `[{"interest":["AI"],"languages":["Python"]}]`
	webJavaPolicy  = `[{"interest":["Web Design"],"languages":["Java"]}]`
)

func TestCreateUser_AlreadyExists(t *testing.T) {
	l, _ := newTestLedger(t)
	createRequester(t, l, "alice", aiPythonPolicy)

	_, err := l.CreateUser(context.Background(), CreateUserParams{
		Username:  "alice",
		Role:      interfaces.RoleRequester,
		CreatedAt: t1,
		PolicySet: json.RawMessage(aiPythonPolicy),
	})
	assert.ErrorIs(t, err, interfaces.ErrAlreadyExists)
}

func TestCreateUser_InvalidPolicy(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.CreateUser(context.Background(), CreateUserParams{
		Username:  "mallory",
		Role:      interfaces.RoleRequester,
		CreatedAt: t0,
		PolicySet: json.RawMessage(`42`),
	})
	assert.ErrorIs(t, err, interfaces.ErrInvalidPolicyFormat)
}

func TestCreateAsset_Validation(t *testing.T) {
	l, _ := newTestLedger(t)
	createAsset(t, l, "a1", "owner1", "report", aiPythonPolicy)

	// Occupied ID.
	_, hash, fragments, attrs := escrowParams(t, aiPythonPolicy)
	_, err := l.CreateAsset(context.Background(), CreateAssetParams{
		ID: "a1", PolicySet: json.RawMessage(aiPythonPolicy),
		Owner: "owner1", Name: "report",
		AccessKeyHash: hash, FragmentsMap: fragments, HashedAttributes: attrs,
	})
	assert.ErrorIs(t, err, interfaces.ErrAlreadyExists)

	// Fragment/attribute count mismatch.
	_, err = l.CreateAsset(context.Background(), CreateAssetParams{
		ID: "a2", PolicySet: json.RawMessage(aiPythonPolicy),
		Owner: "owner1", Name: "report",
		AccessKeyHash: hash, FragmentsMap: fragments[:1], HashedAttributes: attrs,
	})
	assert.Error(t, err)
}

func TestCheckAccess_EndToEnd(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	createRequester(t, l, "u1", `[{"interest":["AI","Cybersecurity"],"languages":["Python","Java"]}]`)
	key := createAsset(t, l, "a1", "owner1", "report", aiPythonPolicy)

	decision, err := l.CheckAccess(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.True(t, decision.Access)
	assert.Equal(t, "owner1", decision.Owner)
	assert.Equal(t, key, decision.Key)
	assert.Len(t, decision.Key, 32)
}

func TestCheckAccess_PolicyMismatchReturnsNoKey(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	createRequester(t, l, "u2", webJavaPolicy)
	createAsset(t, l, "a1", "owner1", "report", aiPythonPolicy)

	decision, err := l.CheckAccess(ctx, "u2", "a1")
	require.NoError(t, err)
	assert.False(t, decision.Access)
	assert.Equal(t, "owner1", decision.Owner)
	assert.Empty(t, decision.Key, "a denied caller must never see the key")
}

func TestCheckAccess_NotFound(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CheckAccess(ctx, "ghost", "a1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	createRequester(t, l, "u1", aiPythonPolicy)
	_, err = l.CheckAccess(ctx, "u1", "missing-asset")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRevokePermanentAccess_IdempotentAndPermanent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	createRequester(t, l, "u1", aiPythonPolicy)
	createAsset(t, l, "a1", "owner1", "report", aiPythonPolicy)

	// Access is granted before revocation.
	decision, err := l.CheckAccess(ctx, "u1", "a1")
	require.NoError(t, err)
	require.True(t, decision.Access)

	asset, err := l.RevokePermanentAccess(ctx, "u1", "a1", t1)
	require.NoError(t, err)
	require.Len(t, asset.RevokedAccess, 1)
	assert.Equal(t, RevocationPermanent, asset.RevokedAccess[0].Type)

	// Second revocation is a no-op, not a duplicate record.
	asset, err = l.RevokePermanentAccess(ctx, "u1", "a1", t2)
	require.NoError(t, err)
	assert.Len(t, asset.RevokedAccess, 1)
	assert.Equal(t, t1, asset.RevokedAccess[0].RevokedAt)

	decision, err = l.CheckAccess(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, decision.Access)
	assert.Empty(t, decision.Key)

	// Other requesters are unaffected.
	createRequester(t, l, "u3", aiPythonPolicy)
	decision, err = l.CheckAccess(ctx, "u3", "a1")
	require.NoError(t, err)
	assert.True(t, decision.Access)
}

func TestRevokePermanentAccess_AssetNotFound(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.RevokePermanentAccess(context.Background(), "u1", "missing", t1)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestUpdateAsset_VersionChainAndLogCarryForward(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	createRequester(t, l, "u1", aiPythonPolicy)
	createAsset(t, l, "a1", "owner1", "report", aiPythonPolicy)

	_, err := l.RevokePermanentAccess(ctx, "u1", "a1", t1)
	require.NoError(t, err)
	_, err = l.GrantAccess(ctx, "u2", "a1", t1)
	require.NoError(t, err)

	_, hash, fragments, attrs := escrowParams(t, aiPythonPolicy)
	updated, err := l.UpdateAsset(ctx, UpdateAssetParams{
		ID:               "a1",
		Kind:             "FULL",
		PolicySet:        json.RawMessage(aiPythonPolicy),
		PublicKeyOwner:   "pk-owner1",
		UpdatedAt:        t2,
		Owner:            "owner1",
		Name:             "report",
		ContentRef:       "ref-a1-v2",
		PrevContentRef:   "ref-a1",
		AccessKeyHash:    hash,
		FragmentsMap:     fragments,
		HashedAttributes: attrs,
	})
	require.NoError(t, err)

	// Mutable fields replaced, logs carried forward.
	assert.Equal(t, "ref-a1-v2", updated.ContentRef)
	assert.Equal(t, "ref-a1", updated.PrevContentRef)
	assert.Len(t, updated.RevokedAccess, 1, "update must not erase revocation history")
	assert.Len(t, updated.Requesters, 1)
	assert.Equal(t, t0, updated.ReleasedAt, "release time is immutable")

	// Revocation still bites after the update.
	decision, err := l.CheckAccess(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.False(t, decision.Access)
}

func TestUpdateAsset_NotFound(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.UpdateAsset(context.Background(), UpdateAssetParams{ID: "missing"})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestGetAssetsByOwnerAndName_NewestFirst(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	createAsset(t, l, "a1", "owner1", "report", aiPythonPolicy)

	// Release a second version of the same logical document.
	_, hash, fragments, attrs := escrowParams(t, aiPythonPolicy)
	_, err := l.CreateAsset(ctx, CreateAssetParams{
		ID:               "a2",
		Kind:             "FULL",
		PolicySet:        json.RawMessage(aiPythonPolicy),
		ReleasedAt:       t1,
		UpdatedAt:        t1,
		Owner:            "owner1",
		Name:             "report",
		ContentRef:       "ref-a2",
		PrevContentRef:   "ref-a1",
		AccessKeyHash:    hash,
		FragmentsMap:     fragments,
		HashedAttributes: attrs,
	})
	require.NoError(t, err)

	// Unrelated asset is filtered out.
	createAsset(t, l, "b1", "owner2", "report", aiPythonPolicy)

	versions, err := l.GetAssetsByOwnerAndName(ctx, "owner1", "report", "FULL")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "a2", versions[0].ID, "newest version first")
	assert.Equal(t, "ref-a1", versions[0].PrevContentRef)
	assert.Equal(t, "a1", versions[1].ID)

	// Kind filter.
	none, err := l.GetAssetsByOwnerAndName(ctx, "owner1", "report", "DEMO")
	require.NoError(t, err)
	assert.Empty(t, none)

	// Empty kind matches all.
	all, err := l.GetAssetsByOwnerAndName(ctx, "owner1", "report", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteAsset(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	createAsset(t, l, "a1", "owner1", "report", aiPythonPolicy)
	require.NoError(t, l.DeleteAsset(ctx, "a1"))

	_, err := l.ReadAsset(ctx, "a1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	err = l.DeleteAsset(ctx, "a1")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestGetAllAssets(t *testing.T) {
	l, _ := newTestLedger(t)
	createAsset(t, l, "a1", "owner1", "one", aiPythonPolicy)
	createAsset(t, l, "a2", "owner2", "two", aiPythonPolicy)
	createRequester(t, l, "u1", aiPythonPolicy)

	assets, err := l.GetAllAssets(context.Background())
	require.NoError(t, err)
	assert.Len(t, assets, 2, "user records must not leak into asset scans")
}

func TestUserPolicyShapeNormalization(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// A single clause object instead of a list.
	_, err := l.CreateUser(ctx, CreateUserParams{
		Username:  "shapeshifter",
		Role:      interfaces.RoleRequester,
		CreatedAt: t0,
		PolicySet: json.RawMessage(`{"interest":["AI"],"languages":["Python"]}`),
	})
	require.NoError(t, err)

	createAsset(t, l, "a1", "owner1", "report", aiPythonPolicy)

	decision, err := l.CheckAccess(ctx, "shapeshifter", "a1")
	require.NoError(t, err)
	assert.True(t, decision.Access)
}
