package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	app "github.com/R3E-Network/escrow_layer/internal/app"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/asset"
	"github.com/R3E-Network/escrow_layer/internal/app/domain/project"
	"github.com/R3E-Network/escrow_layer/pkg/testutil"
)

const (
	testOwner    = "owner-address"
	testClient   = "client-address"
	testExecutor = "executor-address"
)

var testSecret = []byte("test-secret")

func newServer(t *testing.T) (*httptest.Server, *testutil.MockToken) {
	t.Helper()
	token := testutil.NewMockToken()
	application, err := app.New(app.Config{
		OwnerAddress: testOwner,
		VaultAddress: "vault-address",
	}, app.Stores{}, token, nil)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	handler := Authenticate(NewHandler(application), testSecret, nil, nil)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, token
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, caller string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if caller != "" {
		token, err := IssueToken(testSecret, caller)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeProject(t *testing.T, resp *http.Response) project.Project {
	t.Helper()
	defer resp.Body.Close()
	var p project.Project
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	return p
}

func createPayload() map[string]interface{} {
	return map[string]interface{}{
		"executor":         testExecutor,
		"budget":           100,
		"milestones":       []int64{30, 69},
		"fee_basis_points": 100,
		"asset":            "native",
		"supplied_value":   100,
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	srv, token := newServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/projects", testClient, createPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	p := decodeProject(t, resp)
	if p.ID == 0 || !p.Funded {
		t.Fatalf("unexpected created project: %+v", p)
	}

	resp = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/projects/%d", p.ID), testClient, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/projects/%d/confirm", p.ID), testClient, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", resp.StatusCode)
	}
	confirmed := decodeProject(t, resp)
	if confirmed.NextMilestone != 1 {
		t.Fatalf("expected next milestone 1, got %d", confirmed.NextMilestone)
	}

	resp = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/projects/%d/cancel", p.ID), testExecutor, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", resp.StatusCode)
	}
	cancelled := decodeProject(t, resp)
	if cancelled.State != project.StateCancelled {
		t.Fatalf("expected cancelled state, got %s", cancelled.State)
	}

	// Client got the unreleased 69 back, executor kept 30.
	if got := token.Balance(confirmed.Asset, testClient); got != 69 {
		t.Fatalf("expected refund 69, got %d", got)
	}
}

func TestStatusMapping(t *testing.T) {
	srv, _ := newServer(t)

	// Missing token.
	resp := doRequest(t, srv, http.MethodPost, "/projects", "", createPayload())
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown project.
	resp = doRequest(t, srv, http.MethodGet, "/projects/99", testClient, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, srv, http.MethodPost, "/projects", testClient, createPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	p := decodeProject(t, resp)

	// Wrong caller on confirm.
	resp = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/projects/%d/confirm", p.ID), testExecutor, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Validation failure.
	bad := createPayload()
	bad["fee_basis_points"] = 10
	resp = doRequest(t, srv, http.MethodPost, "/projects", testClient, bad)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for low fee, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// State conflict: double cancel.
	resp = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/projects/%d/cancel", p.ID), testClient, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/projects/%d/cancel", p.ID), testClient, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for double cancel, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestInitiateAndFundOverHTTP(t *testing.T) {
	srv, _ := newServer(t)

	payload := map[string]interface{}{
		"client":           testClient,
		"budget":           100,
		"milestones":       []int64{99},
		"fee_basis_points": 100,
		"asset":            "native",
	}
	resp := doRequest(t, srv, http.MethodPost, "/projects/initiate", testExecutor, payload)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("initiate: expected 201, got %d", resp.StatusCode)
	}
	p := decodeProject(t, resp)
	if p.Funded {
		t.Fatal("initiated project must not start funded")
	}

	fund := map[string]interface{}{"supplied_value": 100}
	resp = doRequest(t, srv, http.MethodPost, fmt.Sprintf("/projects/%d/fund", p.ID), testClient, fund)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fund: expected 200, got %d", resp.StatusCode)
	}
	funded := decodeProject(t, resp)
	if !funded.Funded {
		t.Fatal("expected funded project")
	}
}

func TestTreasuryEndpoints(t *testing.T) {
	srv, token := newServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/projects", testClient, createPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, srv, http.MethodGet, "/treasury/fees", testOwner, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fees: expected 200, got %d", resp.StatusCode)
	}
	var balances map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&balances); err != nil {
		t.Fatalf("decode balances: %v", err)
	}
	resp.Body.Close()
	if balances["native"] != 1 {
		t.Fatalf("expected native fee balance 1, got %v", balances)
	}

	// Non-owner withdrawal is forbidden.
	withdraw := map[string]string{"asset": "native"}
	resp = doRequest(t, srv, http.MethodPost, "/treasury/withdraw", testClient, withdraw)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, srv, http.MethodPost, "/treasury/withdraw", testOwner, withdraw)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("withdraw: expected 200, got %d", resp.StatusCode)
	}
	var result map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode withdrawal: %v", err)
	}
	resp.Body.Close()
	if result["amount"] != 1 {
		t.Fatalf("expected withdrawal of 1, got %v", result)
	}
	if got := token.Balance(asset.NativeKind(), testOwner); got != 1 {
		t.Fatalf("expected owner paid 1, got %d", got)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, _ := newServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/projects", testClient, createPayload())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doRequest(t, srv, http.MethodGet, "/events?limit=10", testClient, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events: expected 200, got %d", resp.StatusCode)
	}
	var events []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	resp.Body.Close()
	if len(events) != 1 || events[0]["type"] != "project.created" {
		t.Fatalf("expected one creation event, got %v", events)
	}

	resp = doRequest(t, srv, http.MethodGet, "/events?limit=banana", testClient, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRejectsUnknownFields(t *testing.T) {
	srv, _ := newServer(t)

	payload := createPayload()
	payload["surprise"] = true
	resp := doRequest(t, srv, http.MethodPost, "/projects", testClient, payload)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
