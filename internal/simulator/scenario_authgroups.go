package simulator

import (
	"context"
	"fmt"

	"github.com/FranksOps/gofr-dig/internal/apperr"
	"github.com/FranksOps/gofr-dig/internal/session"
)

// AuthGroupsResult carries the three session GUIDs the scenario
// created, for a caller that wants to inspect them further.
type AuthGroupsResult struct {
	SessionAPAC string
	SessionEMEA string
	SessionUS   string
}

// RunAuthGroupsScenario exercises group isolation end to end: it
// creates one session per group directly against store, then asserts
// each group's own requester can read its own session while a
// requester from a different group is denied with PERMISSION_DENIED.
//
// The original scenario (scenarios/auth_groups.py) additionally mints
// a "multi" token via an external Vault-backed token service and
// asserts it can read across all three groups. That service is out of
// scope here (no such dependency exists anywhere in this project's
// stack), and session.Store's group check per §4.I is a strict
// single-group match with no multi-group concept to exercise — so this
// scenario covers the isolation half of the original (own-group allow,
// cross-group deny) and omits the multi-group-token half.
func RunAuthGroupsScenario(ctx context.Context, store *session.Store) (AuthGroupsResult, error) {
	const (
		contentAPAC = "<html><body>apac fixture content</body></html>"
		contentEMEA = "<html><body>emea fixture content</body></html>"
		contentUS   = "<html><body>us fixture content</body></html>"
	)

	guidAPAC, err := store.Create(ctx, contentAPAC, "https://fixtures.local/apac/index.html", "apac", 0)
	if err != nil {
		return AuthGroupsResult{}, fmt.Errorf("create apac session: %w", err)
	}
	guidEMEA, err := store.Create(ctx, contentEMEA, "https://fixtures.local/emea/products.html", "emea", 0)
	if err != nil {
		return AuthGroupsResult{}, fmt.Errorf("create emea session: %w", err)
	}
	guidUS, err := store.Create(ctx, contentUS, "https://fixtures.local/us/product-detail.html", "us", 0)
	if err != nil {
		return AuthGroupsResult{}, fmt.Errorf("create us session: %w", err)
	}

	for _, pair := range []struct {
		guid, group string
	}{
		{guidAPAC, "apac"},
		{guidEMEA, "emea"},
		{guidUS, "us"},
	} {
		if _, err := store.GetInfo(pair.guid, session.Requester{Group: pair.group, Enforce: true}); err != nil {
			return AuthGroupsResult{}, fmt.Errorf("own-group read of %s session failed: %w", pair.group, err)
		}
	}

	_, err = store.GetInfo(guidAPAC, session.Requester{Group: "emea", Enforce: true})
	if err == nil {
		return AuthGroupsResult{}, fmt.Errorf("expected PERMISSION_DENIED reading apac session as emea, got success")
	}
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code != apperr.CodePermissionDenied {
		return AuthGroupsResult{}, fmt.Errorf("expected PERMISSION_DENIED, got: %v", err)
	}

	return AuthGroupsResult{SessionAPAC: guidAPAC, SessionEMEA: guidEMEA, SessionUS: guidUS}, nil
}
