package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coventis/psp-webhooks/internal/domain"
	"github.com/coventis/psp-webhooks/internal/provider"
	"github.com/coventis/psp-webhooks/internal/service"
)

type fakeIngestor struct {
	results []service.Result
	err     error

	gotTenant    string
	gotBody      []byte
	gotSignature string
}

func (f *fakeIngestor) Ingest(_ context.Context, tenantID string, rawBody []byte, signatureHeader string) ([]service.Result, error) {
	f.gotTenant = tenantID
	f.gotBody = rawBody
	f.gotSignature = signatureHeader
	return f.results, f.err
}

func webhookMux(gc, msp ingestor) *http.ServeMux {
	h := NewWebhookHandler(gc, msp)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/gocardless/{companyId}", h.ReceiveGoCardless)
	mux.HandleFunc("POST /webhooks/multisafepay/{companyId}", h.ReceiveMultiSafepay)
	return mux
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestReceiveGoCardlessProcessed(t *testing.T) {
	ing := &fakeIngestor{results: []service.Result{
		{PSPEventID: "EV001", Status: domain.InboxStatusProcessed, InternalStatus: domain.StatusPaid, Message: "mapped payments.confirmed to PAID"},
	}}
	mux := webhookMux(ing, &fakeIngestor{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/gocardless/tenant-1", strings.NewReader(`{"events":[]}`))
	req.Header.Set(provider.SignatureHeaderGoCardless, "abc123")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant-1", ing.gotTenant)
	assert.Equal(t, "abc123", ing.gotSignature)
	assert.Equal(t, `{"events":[]}`, string(ing.gotBody))

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	events, ok := data["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 1)
	first := events[0].(map[string]any)
	assert.Equal(t, "EV001", first["psp_event_id"])
	assert.Equal(t, "processed", first["status"])
	assert.Equal(t, "PAID", first["internal_status"])
}

func TestReceiveMultiSafepayUsesAuthHeader(t *testing.T) {
	ing := &fakeIngestor{results: []service.Result{
		{PSPEventID: "ORDER-1", Status: domain.InboxStatusProcessed, InternalStatus: domain.StatusPaid},
	}}
	mux := webhookMux(&fakeIngestor{}, ing)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/multisafepay/tenant-2", strings.NewReader(`{}`))
	req.Header.Set(provider.SignatureHeaderMultiSafepay, "base64sig")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant-2", ing.gotTenant)
	assert.Equal(t, "base64sig", ing.gotSignature)
}

func TestReceiveDuplicateStillSucceeds(t *testing.T) {
	ing := &fakeIngestor{results: []service.Result{
		{PSPEventID: "EV001", Status: domain.InboxStatusDuplicate, Duplicate: true, Message: "duplicate event"},
	}}
	mux := webhookMux(ing, &fakeIngestor{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/gocardless/tenant-1", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
	events := resp.Data.(map[string]any)["events"].([]any)
	first := events[0].(map[string]any)
	assert.Equal(t, true, first["duplicate"])
}

func TestReceiveErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed payload", domain.ErrMalformedPayload, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown tenant", domain.ErrUnknownTenant, http.StatusNotFound, "UNKNOWN_TENANT"},
		{"invalid signature", domain.ErrSignatureInvalid, http.StatusUnauthorized, "INVALID_SIGNATURE"},
		{"persistence failure", fmt.Errorf("insert: %w", errors.New("connection reset")), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mux := webhookMux(&fakeIngestor{err: tc.err}, &fakeIngestor{})

			req := httptest.NewRequest(http.MethodPost, "/webhooks/gocardless/tenant-1", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestReceiveWrappedErrorStillMatches(t *testing.T) {
	mux := webhookMux(&fakeIngestor{err: fmt.Errorf("Ingest: %w", domain.ErrSignatureInvalid)}, &fakeIngestor{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/gocardless/tenant-1", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
