/*
handlers_test.go - HTTP tests for the filing API

Runs requests through the real chi router against the in-memory store,
with bearer tokens issued by TokenIssuer and a fixed clock.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/filing-engine/filing"
	"github.com/warp/filing-engine/filing/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	admin    = filing.Principal{ID: "admin-1", Role: filing.RoleAdmin}
	preparer = filing.Principal{ID: "prep-1", Role: filing.RolePreparer}
	reviewer = filing.Principal{ID: "rev-1", Role: filing.RoleReviewer}
)

const testSecret = "test-secret"

type apiEnv struct {
	t       *testing.T
	now     time.Time
	engine  *filing.Engine
	handler *Handler
	tokens  *TokenIssuer
	router  http.Handler
	hook    *logtest.Hook
}

func newAPIEnv(t *testing.T) *apiEnv {
	return newAPIEnvWithStore(t, store.NewMemory(), nil)
}

func newAPIEnvWithStore(t *testing.T, s filing.Store, limiter *RateLimiter) *apiEnv {
	t.Helper()
	logger, hook := logtest.NewNullLogger()

	env := &apiEnv{
		t:    t,
		now:  time.Date(2025, time.April, 5, 10, 0, 0, 0, time.UTC),
		hook: hook,
	}
	clock := func() time.Time { return env.now }
	env.engine = filing.NewEngine(s, logger, filing.WithClock(clock))
	env.handler = NewHandler(env.engine, logger)
	env.handler.Clock = clock
	env.tokens = NewTokenIssuer(testSecret, time.Hour)
	env.router = NewRouter(env.handler, RouterConfig{
		Tokens:         env.tokens,
		AllowedOrigins: []string{"http://localhost:5173"},
		RateLimiter:    limiter,
	})
	return env
}

func (env *apiEnv) token(p filing.Principal) string {
	env.t.Helper()
	tok, err := env.tokens.Issue(p)
	require.NoError(env.t, err)
	return tok
}

// do sends a request as p (anonymous when p is nil) with body encoded as JSON.
func (env *apiEnv) do(method, path string, p *filing.Principal, body any) *httptest.ResponseRecorder {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		req.Header.Set("Authorization", "Bearer "+env.token(*p))
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (env *apiEnv) createClient(name string) ClientDTO {
	env.t.Helper()
	rec := env.do(http.MethodPost, "/api/clients", &admin, CreateClientRequest{Name: name})
	require.Equal(env.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[ClientDTO](env.t, rec)
}

func (env *apiEnv) openOutward(clientID string) OutwardReturnDTO {
	env.t.Helper()
	rec := env.do(http.MethodPost, "/api/returns/gstr1", &preparer, OpenReturnRequest{ClientID: clientID, Period: "2025-03"})
	require.Equal(env.t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeAs[OutwardReturnDTO](env.t, rec)
}

var workedFigures = map[string]any{
	"b2b":          300000,
	"b2c":          120000,
	"credit_note":  5000,
	"debit_note":   2000,
	"sez_exempted": 0,
	"ledger_total": 415000,
	"tax":          map[string]any{"cgst": "9000", "sgst": "9000", "igst": "0"},
}

// lockOutward takes an open outward return through review to locked.
func (env *apiEnv) lockOutward(id string) {
	env.t.Helper()
	base := "/api/returns/gstr1/" + id
	for _, step := range []struct {
		method string
		path   string
		as     filing.Principal
		body   any
	}{
		{http.MethodPut, base + "/figures", preparer, workedFigures},
		{http.MethodPost, base + "/submit", preparer, SubmitRequest{ReviewerID: string(reviewer.ID)}},
		{http.MethodPost, base + "/review", reviewer, ReviewRequest{Decision: "approve"}},
		{http.MethodPost, base + "/file", preparer, FileRequest{Reference: "AA2704250012345"}},
	} {
		rec := env.do(step.method, step.path, &step.as, step.body)
		require.Equal(env.t, http.StatusOK, rec.Code, "%s %s: %s", step.method, step.path, rec.Body.String())
	}
}

// =============================================================================
// HEALTH AND AUTHENTICATION
// =============================================================================

func TestHealth_NoAuthRequired(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(http.MethodGet, "/healthz", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeAs[map[string]string](t, rec)["status"])
}

func TestHealth_StoreDown(t *testing.T) {
	// GIVEN: A store whose ping fails
	env := newAPIEnv(t)
	env.handler.Ping = func(context.Context) error { return errors.New("database is locked") }

	// WHEN: Checking health
	rec := env.do(http.MethodGet, "/healthz", nil, nil)

	// THEN: 503 without the underlying error
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "locked")
}

func TestAPI_RejectsMissingOrBadTokens(t *testing.T) {
	env := newAPIEnv(t)
	expired := NewTokenIssuer(testSecret, -time.Minute)
	expiredToken, err := expired.Issue(preparer)
	require.NoError(t, err)
	foreignToken, err := NewTokenIssuer("other-secret", time.Hour).Issue(preparer)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":        "",
		"not bearer":     "Basic abc",
		"garbage":        "Bearer not-a-jwt",
		"expired":        "Bearer " + expiredToken,
		"foreign secret": "Bearer " + foreignToken,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAPI_InternalErrorsAreLoggedNotLeaked(t *testing.T) {
	// GIVEN: A store that fails to list clients
	env := newAPIEnvWithStore(t, brokenClientList{store.NewMemory()}, nil)

	// WHEN: Listing clients
	rec := env.do(http.MethodGet, "/api/clients", &admin, nil)

	// THEN: A generic 500 is returned and the cause is logged
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")

	var logged bool
	for _, e := range env.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "disk on fire" {
			logged = true
			assert.Equal(t, "ListClients", e.Data["funcName"])
		}
	}
	assert.True(t, logged, "expected the store error to be logged")
}

type brokenClientList struct{ *store.Memory }

func (brokenClientList) ListClients(context.Context, bool) ([]filing.Client, error) {
	return nil, errors.New("disk on fire")
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestClients_AdminLifecycle(t *testing.T) {
	env := newAPIEnv(t)

	// GIVEN: Two clients
	acme := env.createClient("Acme Traders")
	env.createClient("Bharat Stores")

	// WHEN: The admin deactivates one
	rec := env.do(http.MethodPost, "/api/clients/"+acme.ID+"/deactivate", &admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "inactive", decodeAs[ClientDTO](t, rec).Status)

	// THEN: Only the other is listed as active; both are listed overall
	active := decodeAs[[]ClientDTO](t, env.do(http.MethodGet, "/api/clients?active=true", &preparer, nil))
	require.Len(t, active, 1)
	assert.Equal(t, "Bharat Stores", active[0].Name)

	all := decodeAs[[]ClientDTO](t, env.do(http.MethodGet, "/api/clients", &preparer, nil))
	assert.Len(t, all, 2)
}

func TestClients_PreparerCannotCreate(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(http.MethodPost, "/api/clients", &preparer, CreateClientRequest{Name: "Acme Traders"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeAs[ErrorResponse](t, rec).Code)
}

func TestClients_ValidationDetailsUseJSONNames(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(http.MethodPost, "/api/clients", &admin, CreateClientRequest{Name: "", TaxID: "SHORT"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeAs[struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}](t, rec)
	assert.Equal(t, "validation_failed", resp.Code)
	assert.Equal(t, "required", resp.Details["name"])
	assert.Equal(t, "len", resp.Details["tax_id"])
}

// =============================================================================
// RETURN WORKFLOW
// =============================================================================

func TestReturns_FullCycleOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")

	// GIVEN: A fresh outward return
	r := env.openOutward(client.ID)
	assert.Equal(t, "draft", r.Status)
	assert.Equal(t, "2025-04-11", r.DueDate)
	assert.Equal(t, "yellow", r.DueColor)
	assert.Equal(t, "2024-25", r.FinancialYear)
	assert.True(t, r.CanEdit)
	base := "/api/returns/gstr1/" + r.ID

	// WHEN: Figures are autosaved
	rec := env.do(http.MethodPut, base+"/figures", &preparer, workedFigures)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	totals := decodeAs[OutwardTotalsDTO](t, rec)

	// THEN: The derived totals come back
	assert.Equal(t, "417000", totals.Total.String())
	assert.Equal(t, "2000", totals.Variance.String())

	// WHEN: A checklist item is ticked
	rec = env.do(http.MethodPut, base+"/checklist", &preparer, map[string]any{"item": "sales", "done": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r = decodeAs[OutwardReturnDTO](t, rec)

	// THEN: Only the flag changes
	assert.Equal(t, "draft", r.Status)
	assert.True(t, r.Checklist[0].Done)
	assert.NotNil(t, r.Checklist[0].At)
	assert.False(t, r.ChecklistComplete)

	// WHEN: Submitted, then approved by the reviewer
	rec = env.do(http.MethodPost, base+"/submit", &preparer, SubmitRequest{ReviewerID: "rev-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "under_review", decodeAs[OutwardReturnDTO](t, rec).Status)

	inbox := decodeAs[NotificationsResponse](t, env.do(http.MethodGet, "/api/notifications", &reviewer, nil))
	require.Len(t, inbox.Unread, 1)
	assert.Equal(t, "New Review", inbox.Unread[0].Title)

	rec = env.do(http.MethodPost, base+"/review", &reviewer, ReviewRequest{Decision: "approve"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r = decodeAs[OutwardReturnDTO](t, rec)
	assert.Equal(t, "approved", r.Status)
	assert.Equal(t, "blue", r.DueColor)

	// WHEN: Filed
	rec = env.do(http.MethodPost, base+"/file", &preparer, FileRequest{Reference: "AA2704250012345"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r = decodeAs[OutwardReturnDTO](t, rec)

	// THEN: Locked, green, read-only
	assert.Equal(t, "locked", r.Status)
	assert.Equal(t, "green", r.DueColor)
	assert.Equal(t, "AA2704250012345", r.FilingReference)
	assert.NotNil(t, r.LockedAt)
	assert.False(t, r.CanEdit)

	// WHEN: The liability return is opened and edited
	rec = env.do(http.MethodPost, "/api/returns/gstr3b", &preparer, OpenReturnRequest{ClientID: client.ID, Period: "2025-03"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	l := decodeAs[LiabilityReturnDTO](t, rec)
	assert.Equal(t, "pending", l.Status)
	assert.Equal(t, "417000", l.Carried.Total.String())
	assert.Equal(t, "2000", l.Carried.Variance.String())
	assert.Equal(t, "9000", l.Carried.Tax.CGST.String())

	rec = env.do(http.MethodPut, "/api/returns/gstr3b/"+l.ID+"/figures", &preparer,
		map[string]any{"fields": map[string]any{"tv_tally": "1000", "tv_2b": "800", "late_fee": 50}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	l = decodeAs[LiabilityReturnDTO](t, rec)

	// THEN: The taxable value variance is recomputed
	assert.Equal(t, "200", l.TVVariance.String())
	assert.Equal(t, "50", l.Figures["late_fee"].String())
	assert.True(t, l.Figures["net_cgst"].IsZero())

	// AND: The period summary counts the filed outward return
	summary := decodeAs[SummaryDTO](t, env.do(http.MethodGet, "/api/summary?period=2025-03", &admin, nil))
	assert.Equal(t, 1, summary.ActiveClients)
	assert.Equal(t, KindSummaryDTO{Filed: 1, Pending: 0}, summary.Outward)
	assert.Equal(t, KindSummaryDTO{Filed: 0, Pending: 1}, summary.Liability)
}

func TestReturns_OpenTwiceReturnsSameRecord(t *testing.T) {
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")

	first := env.openOutward(client.ID)
	second := env.openOutward(client.ID)

	assert.Equal(t, first.ID, second.ID)
}

func TestReturns_LiabilityBeforeOutwardLocked(t *testing.T) {
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")
	open := OpenReturnRequest{ClientID: client.ID, Period: "2025-03"}

	type depResponse struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}

	// WHEN: No outward return exists
	rec := env.do(http.MethodPost, "/api/returns/gstr3b", &preparer, open)

	// THEN: 409 with the outward status
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeAs[depResponse](t, rec)
	assert.Equal(t, "dependency_not_met", resp.Code)
	assert.Equal(t, "not_started", resp.Details["outward_status"])

	// WHEN: The outward return is only a draft
	env.openOutward(client.ID)
	rec = env.do(http.MethodPost, "/api/returns/gstr3b", &preparer, open)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "draft", decodeAs[depResponse](t, rec).Details["outward_status"])
}

func TestReturns_LockedReturnRejectsEdits(t *testing.T) {
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")
	r := env.openOutward(client.ID)
	env.lockOutward(r.ID)

	for name, req := range map[string]struct {
		method string
		path   string
		body   any
	}{
		"figures":   {http.MethodPut, "/figures", workedFigures},
		"checklist": {http.MethodPut, "/checklist", map[string]any{"item": "hsn", "done": true}},
		"submit":    {http.MethodPost, "/submit", SubmitRequest{ReviewerID: "rev-1"}},
		"refile":    {http.MethodPost, "/file", FileRequest{Reference: "OTHER"}},
	} {
		t.Run(name, func(t *testing.T) {
			rec := env.do(req.method, "/api/returns/gstr1/"+r.ID+req.path, &preparer, req.body)

			assert.Equal(t, http.StatusConflict, rec.Code)
			assert.Equal(t, "locked", decodeAs[ErrorResponse](t, rec).Code)
		})
	}
}

func TestReturns_ReviewGuards(t *testing.T) {
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")
	r := env.openOutward(client.ID)
	path := "/api/returns/gstr1/" + r.ID + "/review"

	// Not under review yet
	rec := env.do(http.MethodPost, path, &reviewer, ReviewRequest{Decision: "approve"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeAs[ErrorResponse](t, rec).Code)

	rec = env.do(http.MethodPost, "/api/returns/gstr1/"+r.ID+"/submit", &preparer, SubmitRequest{ReviewerID: "rev-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Preparers cannot review
	rec = env.do(http.MethodPost, path, &preparer, ReviewRequest{Decision: "approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Unknown decisions fail validation
	rec = env.do(http.MethodPost, path, &reviewer, ReviewRequest{Decision: "maybe"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details := decodeAs[struct {
		Details map[string]string `json:"details"`
	}](t, rec).Details
	assert.Equal(t, "oneof", details["decision"])

	// Send back clears the reviewer and notifies the preparer
	rec = env.do(http.MethodPost, path, &reviewer, ReviewRequest{Decision: "reject", Remarks: "B2C missing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeAs[OutwardReturnDTO](t, rec)
	assert.Equal(t, "draft", got.Status)
	assert.Empty(t, got.ReviewerID)

	inbox := decodeAs[NotificationsResponse](t, env.do(http.MethodGet, "/api/notifications", &preparer, nil))
	require.NotEmpty(t, inbox.Unread)
	assert.Equal(t, "Sent Back", inbox.Unread[0].Title)
	assert.Contains(t, inbox.Unread[0].Message, "B2C missing")
}

func TestReturns_BadInputIs400(t *testing.T) {
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")
	r := env.openOutward(client.ID)

	t.Run("unknown checklist item", func(t *testing.T) {
		rec := env.do(http.MethodPut, "/api/returns/gstr1/"+r.ID+"/checklist", &preparer, map[string]any{"item": "gst", "done": true})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_input", decodeAs[ErrorResponse](t, rec).Code)
	})

	t.Run("checklist without done", func(t *testing.T) {
		rec := env.do(http.MethodPut, "/api/returns/gstr1/"+r.ID+"/checklist", &preparer, map[string]any{"item": "hsn"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_failed", decodeAs[ErrorResponse](t, rec).Code)
	})

	t.Run("malformed period", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/returns/gstr1", &preparer, OpenReturnRequest{ClientID: client.ID, Period: "2025-13"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("blank reviewer", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/returns/gstr1/"+r.ID+"/submit", &preparer, SubmitRequest{ReviewerID: "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("broken json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/returns/gstr1/"+r.ID+"/figures", bytes.NewBufferString("{"))
		req.Header.Set("Authorization", "Bearer "+env.token(preparer))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestReturns_UnknownLiabilityFieldWritesNothing(t *testing.T) {
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")
	env.lockOutward(env.openOutward(client.ID).ID)
	rec := env.do(http.MethodPost, "/api/returns/gstr3b", &preparer, OpenReturnRequest{ClientID: client.ID, Period: "2025-03"})
	require.Equal(t, http.StatusOK, rec.Code)
	l := decodeAs[LiabilityReturnDTO](t, rec)

	// WHEN: One valid and one unknown field are sent together
	rec = env.do(http.MethodPut, "/api/returns/gstr3b/"+l.ID+"/figures", &preparer,
		map[string]any{"fields": map[string]any{"late_fee": 10, "tv_variance": 5}})

	// THEN: Rejected, and the valid field was not applied
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	got := decodeAs[LiabilityReturnDTO](t, env.do(http.MethodGet, "/api/returns/gstr3b/"+l.ID, &preparer, nil))
	assert.True(t, got.Figures["late_fee"].IsZero())
}

func TestReturns_OversizedBodyIs413(t *testing.T) {
	// GIVEN: An open liability return and a small body cap
	env := newAPIEnv(t)
	env.handler.MaxBodyBytes = 512
	client := env.createClient("Acme Traders")
	env.lockOutward(env.openOutward(client.ID).ID)
	rec := env.do(http.MethodPost, "/api/returns/gstr3b", &preparer, OpenReturnRequest{ClientID: client.ID, Period: "2025-03"})
	require.Equal(t, http.StatusOK, rec.Code)
	l := decodeAs[LiabilityReturnDTO](t, rec)

	// WHEN: The fields map is larger than the cap
	fields := map[string]any{"late_fee": 10}
	for i := 0; i < 100; i++ {
		fields[fmt.Sprintf("padding_field_%03d", i)] = 1
	}
	rec = env.do(http.MethodPut, "/api/returns/gstr3b/"+l.ID+"/figures", &preparer, map[string]any{"fields": fields})

	// THEN: Refused before decoding finishes, nothing written
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	got := decodeAs[LiabilityReturnDTO](t, env.do(http.MethodGet, "/api/returns/gstr3b/"+l.ID, &preparer, nil))
	assert.True(t, got.Figures["late_fee"].IsZero())
}

func TestReturns_GetUnknownIs404(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(http.MethodGet, "/api/returns/gstr1/does-not-exist", &preparer, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeAs[ErrorResponse](t, rec).Code)
}

// =============================================================================
// ASSIGNMENTS, NOTIFICATIONS, ACTIVITY
// =============================================================================

func TestAssignments_UpsertKeepsOmittedPreparer(t *testing.T) {
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")
	prep := "prep-1"
	other := "prep-2"

	rec := env.do(http.MethodPut, "/api/assignments", &admin,
		UpsertAssignmentRequest{ClientID: client.ID, Period: "2025-03", OutwardPreparer: &prep})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPut, "/api/assignments", &admin,
		UpsertAssignmentRequest{ClientID: client.ID, Period: "2025-03", LiabilityPreparer: &other})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeAs[AssignmentDTO](t, rec)
	assert.Equal(t, "prep-1", got.OutwardPreparer)
	assert.Equal(t, "prep-2", got.LiabilityPreparer)

	list := decodeAs[[]AssignmentDTO](t, env.do(http.MethodGet, "/api/assignments?period=2025-03", &preparer, nil))
	assert.Len(t, list, 1)
}

func TestNotifications_MarkReadEmptiesUnreadOnly(t *testing.T) {
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")
	r := env.openOutward(client.ID)
	rec := env.do(http.MethodPost, "/api/returns/gstr1/"+r.ID+"/submit", &preparer, SubmitRequest{ReviewerID: "rev-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodPost, "/api/notifications/read", &reviewer, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	inbox := decodeAs[NotificationsResponse](t, env.do(http.MethodGet, "/api/notifications", &reviewer, nil))
	assert.Empty(t, inbox.Unread)
	assert.Equal(t, 0, inbox.UnreadCount)
	require.Len(t, inbox.Recent, 1)
	assert.True(t, inbox.Recent[0].Read)
}

func TestActivity_FilterAndLimit(t *testing.T) {
	env := newAPIEnv(t)
	acme := env.createClient("Acme Traders")
	env.createClient("Bharat Stores")
	env.openOutward(acme.ID)

	entries := decodeAs[[]ActivityDTO](t, env.do(http.MethodGet, "/api/activity?client_id="+acme.ID, &admin, nil))
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, acme.ID, e.ClientID)
	}

	limited := decodeAs[[]ActivityDTO](t, env.do(http.MethodGet, "/api/activity?limit=1", &admin, nil))
	assert.Len(t, limited, 1)

	rec := env.do(http.MethodGet, "/api/activity?limit=zero", &admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// BOARD AND DUE DATES
// =============================================================================

func TestBoard_DefaultsToCurrentFilingPeriod(t *testing.T) {
	env := newAPIEnv(t)
	env.createClient("Acme Traders")

	board := decodeAs[BoardResponse](t, env.do(http.MethodGet, "/api/board", &preparer, nil))

	assert.Equal(t, "2025-03", board.Period)
	require.Len(t, board.Rows, 1)
	assert.Equal(t, "not_started", board.Rows[0].Outward.Status)
	assert.Equal(t, "yellow", board.Rows[0].Outward.Color)
	assert.Equal(t, "2025-04-20", board.Rows[0].Liability.DueDate)
}

func TestBoard_OverdueDraftIsRed(t *testing.T) {
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")
	env.openOutward(client.ID)
	env.now = time.Date(2025, time.April, 12, 9, 0, 0, 0, time.UTC)

	board := decodeAs[BoardResponse](t, env.do(http.MethodGet, "/api/board?period=2025-03", &preparer, nil))

	require.Len(t, board.Rows, 1)
	assert.Equal(t, "draft", board.Rows[0].Outward.Status)
	assert.Equal(t, "red", board.Rows[0].Outward.Color)
}

func TestDueDates_ListsDueSoon(t *testing.T) {
	// GIVEN: Two days before the outward due date
	env := newAPIEnv(t)
	client := env.createClient("Acme Traders")
	env.now = time.Date(2025, time.April, 9, 9, 0, 0, 0, time.UTC)

	// WHEN: Listing due returns
	items := decodeAs[[]DueItemDTO](t, env.do(http.MethodGet, "/api/due-dates", &preparer, nil))

	// THEN: Only the outward return is within the horizon
	require.Len(t, items, 1)
	assert.Equal(t, client.ID, items[0].ClientID)
	assert.Equal(t, "gstr1", items[0].Kind)
	assert.Equal(t, "2025-04-11", items[0].DueDate)
	assert.False(t, items[0].Overdue)
}

// =============================================================================
// RATE LIMITING
// =============================================================================

func TestRateLimit_Returns429(t *testing.T) {
	env := newAPIEnvWithStore(t, store.NewMemory(), NewRateLimiter(2, time.Minute))

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", nil, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", nil, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodGet, "/healthz", nil, nil).Code)
}

func TestRateLimiter_PruneIdle(t *testing.T) {
	rl := NewRateLimiter(10, time.Minute)
	now := time.Date(2025, time.April, 5, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.GetLimiter("10.0.0.1")
	now = now.Add(30 * time.Minute)
	rl.GetLimiter("10.0.0.2")
	now = now.Add(20 * time.Minute)

	assert.Equal(t, 1, rl.Prune(40*time.Minute))
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "10.0.0.2")
}
