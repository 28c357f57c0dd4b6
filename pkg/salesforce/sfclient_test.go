package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSalesforce serves canned REST responses and records PATCH/POST bodies
// so tests can check what the wrapper actually sent.
type stubSalesforce struct {
	client   Client
	lastBody map[string]any
}

func newStubSalesforce(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) *stubSalesforce {
	t.Helper()
	stub := &stubSalesforce{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPatch {
			stub.lastBody = nil
			_ = json.NewDecoder(r.Body).Decode(&stub.lastBody)
		}
		respond(w, r)
	}))
	t.Cleanup(ts.Close)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	stub.client = NewClient(sf)
	return stub
}

func soqlRecords(records ...map[string]any) map[string]any {
	for _, rec := range records {
		rec["attributes"] = map[string]any{"type": "Account"}
	}
	return map[string]any{"totalSize": len(records), "done": true, "records": records}
}

func TestRESTClient_Query(t *testing.T) {
	stub := newStubSalesforce(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(soqlRecords(map[string]any{
			"Id":      "001AA",
			"Name":    "Harbor Freight Logistics",
			"Website": "harborfreightlog.com",
		}))
	})

	var accounts []Account
	err := stub.client.Query(context.Background(), "SELECT Id, Name, Website FROM Account", &accounts)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "001AA", accounts[0].ID)
	assert.Equal(t, "Harbor Freight Logistics", accounts[0].Name)
	assert.Equal(t, "harborfreightlog.com", accounts[0].Website)
}

func TestRESTClient_Query_MalformedSOQL(t *testing.T) {
	stub := newStubSalesforce(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "unexpected token", "errorCode": "MALFORMED_QUERY"},
		})
	})

	var accounts []Account
	err := stub.client.Query(context.Background(), "SELEKT *", &accounts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: query")
}

func TestRESTClient_InsertOne(t *testing.T) {
	stub := newStubSalesforce(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "001NEW", "success": true, "errors": []any{}})
	})

	id, err := stub.client.InsertOne(context.Background(), "Account", map[string]any{
		"Name":     "Cascade Analytics",
		"Industry": "software",
	})
	require.NoError(t, err)
	assert.Equal(t, "001NEW", id)
	assert.Equal(t, "Cascade Analytics", stub.lastBody["Name"])
	assert.Equal(t, "software", stub.lastBody["Industry"])
}

func TestRESTClient_InsertOne_Rejected(t *testing.T) {
	stub := newStubSalesforce(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "",
			"success": false,
			"errors":  []map[string]any{{"message": "REQUIRED_FIELD_MISSING: Name"}},
		})
	})

	_, err := stub.client.InsertOne(context.Background(), "Account", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: insert Account rejected")
}

func TestRESTClient_UpdateOne(t *testing.T) {
	stub := newStubSalesforce(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	err := stub.client.UpdateOne(context.Background(), "Account", "001AA", map[string]any{
		"Description": "Regional freight brokerage, ~120 employees.",
	})
	require.NoError(t, err)

	// The record ID rides along in the PATCH body.
	assert.Equal(t, "001AA", stub.lastBody["Id"])
	assert.Equal(t, "Regional freight brokerage, ~120 employees.", stub.lastBody["Description"])
}

func TestRESTClient_UpdateOne_InvalidField(t *testing.T) {
	stub := newStubSalesforce(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "No such column", "errorCode": "INVALID_FIELD"},
		})
	})

	err := stub.client.UpdateOne(context.Background(), "Account", "001AA", map[string]any{"Nope__c": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: update Account 001AA")
}
