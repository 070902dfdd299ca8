package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sipfs/policy-escrow-backend/cryptoutils"
	"github.com/sipfs/policy-escrow-backend/escrow"
	"github.com/sipfs/policy-escrow-backend/gateway"
	"github.com/sipfs/policy-escrow-backend/identity"
	"github.com/sipfs/policy-escrow-backend/interfaces"
	"github.com/sipfs/policy-escrow-backend/ledger"
	"github.com/sipfs/policy-escrow-backend/metrics"
	"github.com/sipfs/policy-escrow-backend/policy"
)

// maxBodySize is the maximum allowed request body size (32MB, content is
// carried inline as base64).
const maxBodySize = 32 * 1024 * 1024

const tokenTTL = 24 * time.Hour

// Handler processes HTTP requests for the escrow service. It routes every
// ledger call through the transaction gateway and treats record-store
// writes as best-effort side effects.
type Handler struct {
	ledger  *ledger.Ledger
	gw      *gateway.Gateway
	blobs   interfaces.BlobStore
	records interfaces.RecordStore
	tokens  *identity.TokenService
	creds   *identity.CredentialStore
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewHandler creates a request handler with the given collaborators.
func NewHandler(l *ledger.Ledger, gw *gateway.Gateway, blobs interfaces.BlobStore, records interfaces.RecordStore, tokens *identity.TokenService, creds *identity.CredentialStore, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{
		ledger:  l,
		gw:      gw,
		blobs:   blobs,
		records: records,
		tokens:  tokens,
		creds:   creds,
		metrics: m,
		log:     log,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("failed to write response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var fatal *interfaces.FatalLedgerError
	if errors.As(err, &fatal) {
		h.metrics.LedgerFailures.Inc()
		if fatal.Attempts > 1 {
			h.metrics.LedgerRetries.Add(float64(fatal.Attempts - 1))
		}
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrInvalidPolicyFormat):
		status = http.StatusBadRequest
	case errors.Is(err, interfaces.ErrAccessDenied):
		status = http.StatusForbidden
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// HandleRegister enrolls a user: a login credential plus a ledger user
// record carrying the policy identity.
//
// POST /api/auth/register
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx := r.Context()
	if err := h.creds.Register(ctx, req.Username, req.Password); err != nil {
		h.writeError(w, err)
		return
	}

	err := h.gw.SubmitWithRetry(ctx, "CreateUser", func(ctx context.Context) error {
		_, err := h.ledger.CreateUser(ctx, ledger.CreateUserParams{
			Username:  req.Username,
			Role:      req.Role,
			CreatedAt: time.Now().UTC(),
			PublicKey: req.PublicKey,
			PolicySet: req.PolicySet,
		})
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	token, err := h.tokens.Issue(interfaces.Identity{
		Username:  req.Username,
		Role:      req.Role,
		PublicKey: req.PublicKey,
	}, tokenTTL)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, TokenResponse{Token: token, Username: req.Username, Role: req.Role})
}

// HandleLogin verifies a credential and mints a bearer token.
//
// POST /api/auth/login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx := r.Context()
	if err := h.creds.Authenticate(ctx, req.Username, req.Password); err != nil {
		// Wrong password and unknown user look the same to the caller.
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	user, err := gateway.EvaluateWithRetry(ctx, h.gw, "GetUser", func(ctx context.Context) (*ledger.User, error) {
		return h.ledger.GetUser(ctx, req.Username)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	token, err := h.tokens.Issue(interfaces.Identity{
		Username:  user.Username,
		Role:      user.Role,
		PublicKey: user.PublicKey,
	}, tokenTTL)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, TokenResponse{Token: token, Username: user.Username, Role: user.Role})
}

// HandleUpload releases an asset: seal the content under a fresh
// AccessKey, store the ciphertext, escrow the key across the policy's
// hashed attributes, and link the record to the previous version of the
// same (owner, name, kind) document.
//
// POST /api/assets/upload
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	var req UploadRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Name == "" || len(req.Content) == 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and content are required"})
		return
	}

	set, err := policy.Normalize(req.PolicySet)
	if err != nil {
		h.writeError(w, err)
		return
	}
	attrs := policy.HashAttributes(set)
	if len(attrs) == 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "policy set must name at least one attribute"})
		return
	}

	threshold := req.Threshold
	if threshold <= 0 || threshold > len(attrs) {
		threshold = len(attrs)
	}

	accessKey, err := escrow.NewAccessKey()
	if err != nil {
		h.writeError(w, err)
		return
	}
	sealed, err := cryptoutils.SealContent(accessKey, req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx := r.Context()
	ref, err := h.blobs.Put(ctx, sealed, interfaces.CiphertextKind)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Link to the most recent version of the same logical document.
	versions, err := gateway.EvaluateWithRetry(ctx, h.gw, "GetAssetsByOwnerAndName", func(ctx context.Context) ([]ledger.Asset, error) {
		return h.ledger.GetAssetsByOwnerAndName(ctx, caller.Username, req.Name, req.Kind)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	var prevRef string
	if len(versions) > 0 {
		prevRef = versions[0].ContentRef
	}

	shares, commitment, err := escrow.Split(accessKey, len(attrs), threshold)
	if err != nil {
		h.writeError(w, err)
		return
	}
	fragments, err := ledger.BuildFragments(shares, attrs)
	if err != nil {
		h.writeError(w, err)
		return
	}

	assetID := uuid.NewString()
	now := time.Now().UTC()
	err = h.gw.SubmitWithRetry(ctx, "CreateAsset", func(ctx context.Context) error {
		_, err := h.ledger.CreateAsset(ctx, ledger.CreateAssetParams{
			ID:               assetID,
			Kind:             req.Kind,
			MetaData:         req.MetaData,
			PolicySet:        req.PolicySet,
			PublicKeyOwner:   caller.PublicKey,
			ReleasedAt:       now,
			UpdatedAt:        now,
			Owner:            caller.Username,
			Name:             req.Name,
			ContentRef:       ref.String(),
			PrevContentRef:   prevRef,
			AccessKeyHash:    commitment.Hex(),
			FragmentsMap:     fragments,
			HashedAttributes: attrs,
		})
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.AssetsReleased.Inc()

	// Best effort: a notification failure never unwinds the release.
	if err := h.records.Notify(ctx, interfaces.Notification{
		ID:        uuid.NewString(),
		AssetID:   assetID,
		AssetKind: req.Kind,
		Message:   fmt.Sprintf("%s released %q", caller.Username, req.Name),
		Uploader:  caller.Username,
		PublicKey: caller.PublicKey,
		CreatedAt: now,
	}); err != nil {
		h.log.Warn("failed to record notification", "err", err, slog.String("asset_id", assetID))
	}

	resp := UploadResponse{
		AssetID:    assetID,
		ContentRef: ref.String(),
		PrevRef:    prevRef,
		Fragments:  len(fragments),
	}
	if caller.PublicKey != "" {
		wrapped, err := cryptoutils.WrapForPublicKey([]byte(caller.PublicKey), accessKey)
		if err != nil {
			h.log.Warn("failed to wrap access key for owner", "err", err, slog.String("asset_id", assetID))
		} else {
			resp.WrappedKey = wrapped
		}
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

// HandleDownload decides access and, when granted, returns the decrypted
// content. A denied caller gets 403 and learns only the owner's name.
//
// GET /api/assets/{id}/download
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	assetID := chi.URLParam(r, "id")
	ctx := r.Context()

	start := time.Now()
	decision, err := gateway.EvaluateWithRetry(ctx, h.gw, "CheckAccess", func(ctx context.Context) (*ledger.AccessDecision, error) {
		return h.ledger.CheckAccess(ctx, caller.Username, assetID)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.ObserveAccessCheck(decision.Access, time.Since(start))

	if !decision.Access {
		h.writeJSON(w, http.StatusForbidden, AccessResponse{Access: false, Owner: decision.Owner})
		return
	}

	asset, err := gateway.EvaluateWithRetry(ctx, h.gw, "ReadAsset", func(ctx context.Context) (*ledger.Asset, error) {
		return h.ledger.ReadAsset(ctx, assetID)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	ref, err := interfaces.NewContentRefFromHex(asset.ContentRef)
	if err != nil {
		h.writeError(w, fmt.Errorf("asset %s has malformed content ref: %w", assetID, err))
		return
	}
	sealed, err := h.blobs.Get(ctx, ref, interfaces.CiphertextKind)
	if err != nil {
		h.writeError(w, err)
		return
	}
	content, err := cryptoutils.OpenContent(decision.Key, sealed)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Best effort tally; the download itself already succeeded.
	if _, err := h.records.IncrementDownload(ctx, interfaces.DownloadRecord{
		AssetID:   assetID,
		Username:  caller.Username,
		LastAt:    time.Now().UTC(),
		FileName:  asset.Name,
		OwnerName: asset.Owner,
	}); err != nil {
		h.log.Warn("failed to record download", "err", err, slog.String("asset_id", assetID))
	}

	h.writeJSON(w, http.StatusOK, DownloadResponse{
		AssetID: assetID,
		Name:    asset.Name,
		Owner:   asset.Owner,
		Content: content,
	})
}

// HandleListAssets returns summaries of every asset.
//
// GET /api/assets
func (h *Handler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := gateway.EvaluateWithRetry(r.Context(), h.gw, "GetAllAssets", func(ctx context.Context) ([]ledger.Asset, error) {
		return h.ledger.GetAllAssets(ctx)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	summaries := make([]AssetSummary, 0, len(assets))
	for _, a := range assets {
		summaries = append(summaries, summarize(a))
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

// HandleGetAsset returns one asset summary.
//
// GET /api/assets/{id}
func (h *Handler) HandleGetAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")

	asset, err := gateway.EvaluateWithRetry(r.Context(), h.gw, "ReadAsset", func(ctx context.Context) (*ledger.Asset, error) {
		return h.ledger.ReadAsset(ctx, assetID)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summarize(*asset))
}

// HandleVersions lists all versions of the caller's document, newest
// first.
//
// GET /api/versions?name=...&kind=...
func (h *Handler) HandleVersions(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	name := r.URL.Query().Get("name")
	kind := r.URL.Query().Get("kind")
	if name == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name query parameter is required"})
		return
	}

	versions, err := gateway.EvaluateWithRetry(r.Context(), h.gw, "GetAssetsByOwnerAndName", func(ctx context.Context) ([]ledger.Asset, error) {
		return h.ledger.GetAssetsByOwnerAndName(ctx, caller.Username, name, kind)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	summaries := make([]AssetSummary, 0, len(versions))
	for _, a := range versions {
		summaries = append(summaries, summarize(a))
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

// ownedAsset loads the asset and confirms the caller owns it.
func (h *Handler) ownedAsset(ctx context.Context, caller interfaces.Identity, assetID string) (*ledger.Asset, error) {
	asset, err := gateway.EvaluateWithRetry(ctx, h.gw, "ReadAsset", func(ctx context.Context) (*ledger.Asset, error) {
		return h.ledger.ReadAsset(ctx, assetID)
	})
	if err != nil {
		return nil, err
	}
	if asset.Owner != caller.Username {
		return nil, fmt.Errorf("only the owner may manage asset %s: %w", assetID, interfaces.ErrAccessDenied)
	}
	return asset, nil
}

// HandleRevoke permanently revokes a user's access to the caller's asset.
//
// POST /api/assets/{id}/revoke
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	assetID := chi.URLParam(r, "id")

	var req SubjectRequest
	if err := decodeBody(r, &req); err != nil || req.Username == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}

	ctx := r.Context()
	if _, err := h.ownedAsset(ctx, caller, assetID); err != nil {
		h.writeError(w, err)
		return
	}

	err := h.gw.SubmitWithRetry(ctx, "RevokePermanentAccess", func(ctx context.Context) error {
		_, err := h.ledger.RevokePermanentAccess(ctx, req.Username, assetID, time.Now().UTC())
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.Revocations.Inc()

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// HandleGrant appends a user to the caller's asset grant log.
//
// POST /api/assets/{id}/grant
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	assetID := chi.URLParam(r, "id")

	var req SubjectRequest
	if err := decodeBody(r, &req); err != nil || req.Username == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}

	ctx := r.Context()
	if _, err := h.ownedAsset(ctx, caller, assetID); err != nil {
		h.writeError(w, err)
		return
	}

	err := h.gw.SubmitWithRetry(ctx, "GrantAccess", func(ctx context.Context) error {
		_, err := h.ledger.GrantAccess(ctx, req.Username, assetID, time.Now().UTC())
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

// HandleDeleteAsset removes the caller's asset record.
//
// DELETE /api/assets/{id}
func (h *Handler) HandleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	assetID := chi.URLParam(r, "id")

	ctx := r.Context()
	if _, err := h.ownedAsset(ctx, caller, assetID); err != nil {
		h.writeError(w, err)
		return
	}

	err := h.gw.SubmitWithRetry(ctx, "DeleteAsset", func(ctx context.Context) error {
		return h.ledger.DeleteAsset(ctx, assetID)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleDownloadCount reports the total download tally for an asset.
//
// GET /api/assets/{id}/downloads
func (h *Handler) HandleDownloadCount(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")

	count, err := h.records.DownloadCount(r.Context(), assetID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, DownloadCountResponse{AssetID: assetID, Count: count})
}

// HandleNotifications returns the most recent release notifications.
//
// GET /api/notifications?limit=N
func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if _, err := fmt.Sscan(raw, &limit); err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
	}

	notifications, err := h.records.Notifications(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, notifications)
}
