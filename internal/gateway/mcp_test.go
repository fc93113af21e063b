// ABOUTME: Tests for the JSON-RPC MCP endpoint against a fake Monarch upstream
// ABOUTME: Covers envelope handling, auth gating, credential resolution, and error mapping

package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/2389/monarch-gateway/internal/config"
	"github.com/2389/monarch-gateway/internal/monarch"
	"github.com/2389/monarch-gateway/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMonarch is a minimal stand-in for the upstream API: a login endpoint
// that issues tokens and a GraphQL endpoint with scriptable responses.
type fakeMonarch struct {
	srv *httptest.Server

	mu            sync.Mutex
	loginCalls    int
	graphqlCalls  int
	lastUsername  string
	lastOperation string
	loginStatus   int
	respond       func(call int) (int, string)
}

func newFakeMonarch(t *testing.T) *fakeMonarch {
	t.Helper()
	f := &fakeMonarch{loginStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.loginCalls++
		call := f.loginCalls
		status := f.loginStatus
		f.lastUsername = body.Username
		f.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"detail":"rejected"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"token":"tok-%d"}`, call)
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			OperationName string `json:"operationName"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.graphqlCalls++
		call := f.graphqlCalls
		respond := f.respond
		f.lastOperation = body.OperationName
		f.mu.Unlock()

		status, payload := http.StatusOK, `{"data":{"accounts":[{"id":"acct-1","displayName":"Checking"}]}}`
		if respond != nil {
			status, payload = respond(call)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeMonarch) counts() (logins, graphqls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.graphqlCalls
}

func (f *fakeMonarch) script(respond func(call int) (int, string)) {
	f.mu.Lock()
	f.respond = respond
	f.mu.Unlock()
}

func testConfig(upstream string) *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Upstream: config.UpstreamConfig{BaseURL: upstream, Timeout: 5 * time.Second},
		Credentials: config.CredentialsConfig{
			Email:    "fallback@example.com",
			Password: "fallback-pw",
		},
	}
}

func newGatewayServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	g, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(g.httpServer.Handler)
	t.Cleanup(srv.Close)
	return srv
}

// rpcResponse mirrors JSONRPCResponse with a raw result so tests can decode
// it into whatever shape they expect.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *JSONRPCError   `json:"error"`
}

func postMCP(t *testing.T, srv *httptest.Server, body string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	return resp, raw
}

func decodeRPC(t *testing.T, raw []byte) rpcResponse {
	t.Helper()
	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decoding JSON-RPC response %q: %v", raw, err)
	}
	return out
}

func callerAuth(email, password string) string {
	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	return "Bearer " + base64.StdEncoding.EncodeToString(payload)
}

func TestInitialize(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	resp, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	out := decodeRPC(t, raw)
	if out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}
	if string(out.ID) != "1" {
		t.Errorf("id = %s, want 1", out.ID)
	}

	var result struct {
		ProtocolVersion string                     `json:"protocolVersion"`
		Capabilities    map[string]json.RawMessage `json:"capabilities"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(out.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.ProtocolVersion != protocolVersion {
		t.Errorf("protocolVersion = %q, want %q", result.ProtocolVersion, protocolVersion)
	}
	if result.ServerInfo.Name != serverName {
		t.Errorf("serverInfo.name = %q, want %q", result.ServerInfo.Name, serverName)
	}
	if _, ok := result.Capabilities["tools"]; !ok {
		t.Error("capabilities missing tools")
	}
}

func TestToolsListFixedCatalog(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, nil)
	out := decodeRPC(t, raw)
	if out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}

	var result ListToolsResult
	if err := json.Unmarshal(out.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}

	want := []string{
		"get_accounts",
		"get_transactions",
		"get_budgets",
		"get_cashflow",
		"get_account_holdings",
		"create_transaction",
		"update_transaction",
		"refresh_accounts",
	}
	if len(result.Tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(result.Tools), len(want))
	}
	for i, name := range want {
		if result.Tools[i].Name != name {
			t.Errorf("tools[%d] = %q, want %q", i, result.Tools[i].Name, name)
		}
		if !json.Valid(result.Tools[i].InputSchema) {
			t.Errorf("tools[%d] inputSchema is not valid JSON", i)
		}
	}

	// Listing alone generates no upstream traffic.
	logins, graphqls := f.counts()
	if logins != 0 || graphqls != 0 {
		t.Errorf("upstream calls = %d logins, %d graphql, want none", logins, graphqls)
	}
}

func TestRequestIDEchoedByteForByte(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	ids := []string{`1`, `"req-7"`, `null`, `"héllo"`, `12345678901234567890`}
	for _, id := range ids {
		body := fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"method":"tools/list"}`, id)
		resp, raw := postMCP(t, srv, body, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("id %s: status = %d, want 200", id, resp.StatusCode)
		}
		out := decodeRPC(t, raw)
		if string(out.ID) != id {
			t.Errorf("id %s: echoed as %s", id, out.ID)
		}
		if out.Result == nil {
			t.Errorf("id %s: no result", id)
		}
	}
}

func TestRequestIDRoundTripProperty(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	rapid.Check(t, func(rt *rapid.T) {
		var idLit string
		switch rapid.IntRange(0, 2).Draw(rt, "kind") {
		case 0:
			idLit = strconv.FormatInt(rapid.Int64().Draw(rt, "num"), 10)
		case 1:
			b, err := json.Marshal(rapid.String().Draw(rt, "str"))
			if err != nil {
				rt.Fatalf("marshaling id: %v", err)
			}
			idLit = string(b)
		default:
			idLit = "null"
		}

		body := fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"method":"tools/list"}`, idLit)
		resp, err := srv.Client().Post(srv.URL+"/mcp", "application/json", strings.NewReader(body))
		if err != nil {
			rt.Fatalf("POST /mcp: %v", err)
		}
		raw, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			rt.Fatalf("reading response: %v", err)
		}

		var out rpcResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			rt.Fatalf("decoding response %q: %v", raw, err)
		}
		if string(out.ID) != idLit {
			rt.Fatalf("id %s echoed as %s", idLit, out.ID)
		}
	})
}

func TestExplicitNullIDIsAnswered(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	resp, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":null,"method":"tools/list"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out := decodeRPC(t, raw)
	if out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}
	if string(out.ID) != "null" {
		t.Errorf("id = %s, want null", out.ID)
	}
	if out.Result == nil {
		t.Error("expected a result for an explicit null id")
	}
}

func TestNotificationGets202(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	resp, raw := postMCP(t, srv, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if len(raw) != 0 {
		t.Errorf("notification response body = %q, want empty", raw)
	}
}

func TestMalformedJSON(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCParseError {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCParseError)
	}
	if string(out.ID) != "null" {
		t.Errorf("id = %s, want null", out.ID)
	}
}

func TestWrongJSONRPCVersion(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"1.0","id":1,"method":"tools/list"}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCInvalidRequest {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCInvalidRequest)
	}
}

func TestMissingMethod(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCInvalidRequest {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCInvalidRequest)
	}
}

func TestUnknownMethod(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCMethodNotFound {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCMethodNotFound)
	}
	if string(out.ID) != "1" {
		t.Errorf("id = %s, want 1", out.ID)
	}
}

func TestOversizedBody(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"pad":"` +
		strings.Repeat("x", MaxRequestBodySize) + `"}}`
	_, raw := postMCP(t, srv, body, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCInvalidRequest {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCInvalidRequest)
	}
	if !strings.Contains(out.Error.Message, "too large") {
		t.Errorf("message = %q, want body-size complaint", out.Error.Message)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/mcp", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /mcp: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow = %q, want POST", allow)
	}
}

func TestGatewayKeyRequired(t *testing.T) {
	f := newFakeMonarch(t)
	cfg := testConfig(f.srv.URL)
	cfg.Auth.GatewayKey = "sekrit"
	srv := newGatewayServer(t, cfg)

	tests := []struct {
		name       string
		header     map[string]string
		wantStatus int
	}{
		{"no key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"right key", map[string]string{"X-API-Key": "sekrit"}, http.StatusOK},
		{"bearer key", map[string]string{"Authorization": "Bearer sekrit"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, tt.header)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			out := decodeRPC(t, raw)
			if tt.wantStatus == http.StatusUnauthorized {
				if out.Error == nil || out.Error.Code != JSONRPCUnauthorized {
					t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCUnauthorized)
				}
			} else if out.Error != nil {
				t.Fatalf("unexpected error: %+v", out.Error)
			}
		})
	}
}

func TestGatewayKeyAbsentMeansOpen(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	resp, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if out := decodeRPC(t, raw); out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}
}

func TestGatewayKeyAndCallerCredentialsCoexist(t *testing.T) {
	f := newFakeMonarch(t)
	cfg := testConfig(f.srv.URL)
	cfg.Auth.GatewayKey = "sekrit"
	srv := newGatewayServer(t, cfg)

	// X-API-Key carries the gateway key, leaving the Authorization header
	// free for upstream credentials.
	header := map[string]string{
		"X-API-Key":     "sekrit",
		"Authorization": callerAuth("caller@example.com", "caller-pw"),
	}
	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_accounts"}}`, header)
	out := decodeRPC(t, raw)
	if out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}

	f.mu.Lock()
	username := f.lastUsername
	f.mu.Unlock()
	if username != "caller@example.com" {
		t.Errorf("upstream login username = %q, want caller@example.com", username)
	}
}

func TestToolsCallWithoutCredentials(t *testing.T) {
	f := newFakeMonarch(t)
	cfg := testConfig(f.srv.URL)
	cfg.Credentials = config.CredentialsConfig{}
	srv := newGatewayServer(t, cfg)

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_accounts"}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCUnauthorized {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCUnauthorized)
	}
	if !strings.Contains(out.Error.Message, "credentials") {
		t.Errorf("message = %q, want credential guidance", out.Error.Message)
	}

	logins, graphqls := f.counts()
	if logins != 0 || graphqls != 0 {
		t.Errorf("upstream calls = %d logins, %d graphql, want none", logins, graphqls)
	}
}

func TestCallerCredentialsBeatFallback(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	header := map[string]string{"Authorization": callerAuth("caller@example.com", "caller-pw")}
	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_accounts"}}`, header)
	if out := decodeRPC(t, raw); out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}

	f.mu.Lock()
	username := f.lastUsername
	f.mu.Unlock()
	if username != "caller@example.com" {
		t.Errorf("upstream login username = %q, want caller@example.com", username)
	}
}

func TestFallbackCredentialsUsed(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_accounts"}}`, nil)
	if out := decodeRPC(t, raw); out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}

	f.mu.Lock()
	username := f.lastUsername
	f.mu.Unlock()
	if username != "fallback@example.com" {
		t.Errorf("upstream login username = %q, want fallback@example.com", username)
	}
}

func TestMalformedAuthorizationFallsBack(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	header := map[string]string{"Authorization": "Bearer not-base64!!!"}
	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_accounts"}}`, header)
	if out := decodeRPC(t, raw); out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}

	f.mu.Lock()
	username := f.lastUsername
	f.mu.Unlock()
	if username != "fallback@example.com" {
		t.Errorf("upstream login username = %q, want fallback@example.com", username)
	}
}

func TestToolsCallReturnsPrettyText(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"get_accounts"}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}

	var result tools.Result
	if err := json.Unmarshal(out.Result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(result.Content) != 1 {
		t.Fatalf("got %d content blocks, want 1", len(result.Content))
	}
	if result.Content[0].Type != "text" {
		t.Errorf("content type = %q, want text", result.Content[0].Type)
	}
	want := "[\n  {\n    \"id\": \"acct-1\",\n    \"displayName\": \"Checking\"\n  }\n]"
	if result.Content[0].Text != want {
		t.Errorf("content text = %q, want %q", result.Content[0].Text, want)
	}
}

func TestMissingToolName(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCInvalidParams {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCInvalidParams)
	}
}

func TestUnknownToolRejected(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"does_not_exist"}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCInvalidParams {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCInvalidParams)
	}
	if !strings.Contains(out.Error.Message, `unknown tool "does_not_exist"`) {
		t.Errorf("message = %q, want unknown-tool detail", out.Error.Message)
	}

	logins, graphqls := f.counts()
	if logins != 0 || graphqls != 0 {
		t.Errorf("upstream calls = %d logins, %d graphql, want none", logins, graphqls)
	}
}

func TestInvalidArgumentsRejected(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_transactions","arguments":{"limit":0}}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCInvalidParams {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCInvalidParams)
	}
	if !strings.Contains(out.Error.Message, "invalid arguments for get_transactions") {
		t.Errorf("message = %q, want argument detail", out.Error.Message)
	}

	logins, graphqls := f.counts()
	if logins != 0 || graphqls != 0 {
		t.Errorf("upstream calls = %d logins, %d graphql, want none", logins, graphqls)
	}
}

func TestHoldingsWithoutAccountID(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_account_holdings","arguments":{}}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCInvalidParams {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCInvalidParams)
	}
	if !strings.Contains(out.Error.Message, "account_id") {
		t.Errorf("message = %q, want the missing field named", out.Error.Message)
	}

	logins, graphqls := f.counts()
	if logins != 0 || graphqls != 0 {
		t.Errorf("upstream calls = %d logins, %d graphql, want none", logins, graphqls)
	}
}

func TestHalfOpenWindowRejected(t *testing.T) {
	f := newFakeMonarch(t)
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_transactions","arguments":{"start_date":"2026-01-01"}}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCInvalidParams {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCInvalidParams)
	}
	want := "invalid date range: start_date supplied without end_date"
	if out.Error.Message != want {
		t.Errorf("message = %q, want %q", out.Error.Message, want)
	}

	// The pair check runs before any upstream traffic, including login.
	logins, graphqls := f.counts()
	if logins != 0 || graphqls != 0 {
		t.Errorf("upstream calls = %d logins, %d graphql, want none", logins, graphqls)
	}
}

func TestUpstreamRetryAfterExpiredSession(t *testing.T) {
	f := newFakeMonarch(t)
	f.script(func(call int) (int, string) {
		if call == 1 {
			return http.StatusUnauthorized, `{"detail":"expired"}`
		}
		return http.StatusOK, `{"data":{"accounts":[]}}`
	})
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_accounts"}}`, nil)
	if out := decodeRPC(t, raw); out.Error != nil {
		t.Fatalf("unexpected error: %+v", out.Error)
	}

	logins, graphqls := f.counts()
	if logins != 2 {
		t.Errorf("logins = %d, want 2", logins)
	}
	if graphqls != 2 {
		t.Errorf("graphql calls = %d, want 2", graphqls)
	}
}

func TestUpstreamSessionExpiredTwice(t *testing.T) {
	f := newFakeMonarch(t)
	f.script(func(call int) (int, string) {
		return http.StatusUnauthorized, `{"detail":"expired"}`
	})
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_accounts"}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCUpstreamError {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCUpstreamError)
	}
	if out.Error.Message != monarch.ErrAuthExpired.Error() {
		t.Errorf("message = %q, want %q", out.Error.Message, monarch.ErrAuthExpired)
	}

	// One replay only, never a third attempt.
	_, graphqls := f.counts()
	if graphqls != 2 {
		t.Errorf("graphql calls = %d, want 2", graphqls)
	}
}

func TestUpstreamLoginFailureSurfaces(t *testing.T) {
	f := newFakeMonarch(t)
	f.loginStatus = http.StatusInternalServerError
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_accounts"}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCUpstreamError {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCUpstreamError)
	}
	if !strings.Contains(out.Error.Message, "upstream login failed") {
		t.Errorf("message = %q, want login failure detail", out.Error.Message)
	}
}

func TestUpstreamMFARequiredSurfaces(t *testing.T) {
	f := newFakeMonarch(t)
	f.loginStatus = http.StatusForbidden
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_accounts"}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCUpstreamError {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCUpstreamError)
	}
	if !strings.Contains(out.Error.Message, "multi-factor authentication required") {
		t.Errorf("message = %q, want MFA detail", out.Error.Message)
	}
}

func TestUpstreamOperationErrorSurfaces(t *testing.T) {
	f := newFakeMonarch(t)
	f.script(func(call int) (int, string) {
		return http.StatusOK, `{"data":null,"errors":[{"message":"Something went wrong"}]}`
	})
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_accounts"}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCUpstreamError {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCUpstreamError)
	}
	if !strings.Contains(out.Error.Message, "Something went wrong") {
		t.Errorf("message = %q, want upstream message preserved", out.Error.Message)
	}
}

func TestUpstreamTransportErrorSurfaces(t *testing.T) {
	f := newFakeMonarch(t)
	f.script(func(call int) (int, string) {
		return http.StatusBadGateway, `upstream melted`
	})
	srv := newGatewayServer(t, testConfig(f.srv.URL))

	_, raw := postMCP(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_accounts"}}`, nil)
	out := decodeRPC(t, raw)
	if out.Error == nil || out.Error.Code != JSONRPCUpstreamError {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCUpstreamError)
	}
	if !strings.Contains(out.Error.Message, "status 502") {
		t.Errorf("message = %q, want transport detail", out.Error.Message)
	}
}

func TestInternalErrorsCollapsedUnlessDebug(t *testing.T) {
	cfg := testConfig("http://unused.invalid")
	s := &mcpServer{cfg: cfg, logger: testLogger()}

	rec := httptest.NewRecorder()
	s.handleToolError(rec, json.RawMessage("1"), "get_accounts", "req-1", errors.New("pq: connection refused"))
	out := decodeRPC(t, rec.Body.Bytes())
	if out.Error == nil || out.Error.Code != JSONRPCInternalError {
		t.Fatalf("error = %+v, want code %d", out.Error, JSONRPCInternalError)
	}
	if out.Error.Message != "internal error" {
		t.Errorf("message = %q, want generic phrase", out.Error.Message)
	}

	cfg.Server.Debug = true
	rec = httptest.NewRecorder()
	s.handleToolError(rec, json.RawMessage("1"), "get_accounts", "req-1", errors.New("pq: connection refused"))
	out = decodeRPC(t, rec.Body.Bytes())
	if out.Error == nil || out.Error.Message != "pq: connection refused" {
		t.Errorf("debug error = %+v, want full detail", out.Error)
	}
}
