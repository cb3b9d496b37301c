package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coventis/psp-webhooks/internal/domain"
	"github.com/coventis/psp-webhooks/internal/provider"
)

type fakeInbox struct {
	entries   map[string]*domain.InboxEntry
	createErr error
	updateErr error
	findErr   error
}

func newFakeInbox() *fakeInbox {
	return &fakeInbox{entries: map[string]*domain.InboxEntry{}}
}

func inboxKey(p domain.Provider, eventID string) string {
	return string(p) + "/" + eventID
}

func (f *fakeInbox) FindByKey(_ context.Context, p domain.Provider, pspEventID string) (*domain.InboxEntry, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	entry, ok := f.entries[inboxKey(p, pspEventID)]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (f *fakeInbox) Create(_ context.Context, entry *domain.InboxEntry) error {
	if f.createErr != nil {
		return f.createErr
	}
	key := inboxKey(entry.Provider, entry.PSPEventID)
	if _, ok := f.entries[key]; ok {
		return domain.ErrDuplicateEvent
	}
	cp := *entry
	f.entries[key] = &cp
	return nil
}

func (f *fakeInbox) Update(_ context.Context, entry *domain.InboxEntry) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	key := inboxKey(entry.Provider, entry.PSPEventID)
	if _, ok := f.entries[key]; !ok {
		return domain.ErrNotFound
	}
	cp := *entry
	f.entries[key] = &cp
	return nil
}

func (f *fakeInbox) get(t *testing.T, p domain.Provider, eventID string) *domain.InboxEntry {
	t.Helper()
	entry, ok := f.entries[inboxKey(p, eventID)]
	require.True(t, ok, "inbox entry %s not found", eventID)
	return entry
}

type fakeEvents struct {
	events  []*domain.PaymentEvent
	failOn  map[int]error
	created int
}

func (f *fakeEvents) Create(_ context.Context, event *domain.PaymentEvent) error {
	f.created++
	if err, ok := f.failOn[f.created]; ok {
		return err
	}
	cp := *event
	f.events = append(f.events, &cp)
	return nil
}

type fakeAccounts struct {
	accounts map[string]*domain.PSPAccount
}

func (f *fakeAccounts) FindActiveByTenant(_ context.Context, _ domain.Provider, tenantID string) (*domain.PSPAccount, error) {
	account, ok := f.accounts[tenantID]
	if !ok {
		return nil, domain.ErrUnknownTenant
	}
	return account, nil
}

func accountsWithSecret(tenantID, secret string) *fakeAccounts {
	account := &domain.PSPAccount{TenantID: tenantID, Provider: domain.ProviderGoCardless, Active: true}
	if secret != "" {
		account.WebhookSecret = &secret
	}
	return &fakeAccounts{accounts: map[string]*domain.PSPAccount{tenantID: account}}
}

func signGC(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func gcBody(eventIDs ...string) []byte {
	body := `{"events":[`
	for i, id := range eventIDs {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"id":%q,"resource_type":"payments","action":"confirmed","links":{"payment":"PM-1"}}`, id)
	}
	return []byte(body + `]}`)
}

func newTestIngestor(inbox *fakeInbox, events *fakeEvents, accounts *fakeAccounts) *Ingestor {
	return NewIngestor(provider.NewGoCardless(nil), inbox, events, accounts, slog.New(slog.DiscardHandler))
}

func TestIngestProcessesEvent(t *testing.T) {
	inbox := newFakeInbox()
	events := &fakeEvents{}
	ing := newTestIngestor(inbox, events, accountsWithSecret("tenant-1", "gc-secret"))

	body := gcBody("EV001")
	results, err := ing.Ingest(context.Background(), "tenant-1", body, signGC(body, "gc-secret"))
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "EV001", results[0].PSPEventID)
	assert.Equal(t, domain.InboxStatusProcessed, results[0].Status)
	assert.Equal(t, domain.StatusPaid, results[0].InternalStatus)
	assert.False(t, results[0].Duplicate)

	entry := inbox.get(t, domain.ProviderGoCardless, "EV001")
	assert.Equal(t, domain.InboxStatusProcessed, entry.Status)
	assert.NotNil(t, entry.ProcessedAt)

	require.Len(t, events.events, 1)
	assert.Equal(t, "tenant-1", events.events[0].TenantID)
	assert.Equal(t, domain.PaymentEventTypeSucceeded, events.events[0].EventType)
	assert.Equal(t, "EV001", events.events[0].PSPEventID)
	assert.True(t, events.events[0].Processed)
}

func TestIngestRedeliveryIsIdempotent(t *testing.T) {
	inbox := newFakeInbox()
	events := &fakeEvents{}
	ing := newTestIngestor(inbox, events, accountsWithSecret("tenant-1", "gc-secret"))

	body := gcBody("EV001")
	sig := signGC(body, "gc-secret")

	for n := 0; n < 5; n++ {
		results, err := ing.Ingest(context.Background(), "tenant-1", body, sig)
		require.NoError(t, err)
		require.Len(t, results, 1)
		if n == 0 {
			assert.False(t, results[0].Duplicate)
		} else {
			assert.True(t, results[0].Duplicate)
			assert.Equal(t, domain.InboxStatusDuplicate, results[0].Status)
		}
	}

	assert.Len(t, events.events, 1, "redelivery must not append extra audit rows")
	entry := inbox.get(t, domain.ProviderGoCardless, "EV001")
	assert.Equal(t, domain.InboxStatusDuplicate, entry.Status)
}

func TestIngestInvalidSignature(t *testing.T) {
	inbox := newFakeInbox()
	events := &fakeEvents{}
	ing := newTestIngestor(inbox, events, accountsWithSecret("tenant-1", "gc-secret"))

	body := gcBody("EV001")
	results, err := ing.Ingest(context.Background(), "tenant-1", body, signGC(body, "wrong-secret"))
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
	assert.Nil(t, results)

	entry := inbox.get(t, domain.ProviderGoCardless, "EV001")
	assert.Equal(t, domain.InboxStatusRejected, entry.Status)
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "signature verification failed", *entry.ErrorMessage)
	assert.Empty(t, events.events, "rejected delivery must not produce audit rows")
}

func TestIngestMissingSignatureHeader(t *testing.T) {
	inbox := newFakeInbox()
	events := &fakeEvents{}
	ing := newTestIngestor(inbox, events, accountsWithSecret("tenant-1", "gc-secret"))

	_, err := ing.Ingest(context.Background(), "tenant-1", gcBody("EV001"), "")
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
	assert.Empty(t, events.events)
}

func TestIngestNoSecretSkipsVerification(t *testing.T) {
	inbox := newFakeInbox()
	events := &fakeEvents{}
	ing := newTestIngestor(inbox, events, accountsWithSecret("sandbox-tenant", ""))

	results, err := ing.Ingest(context.Background(), "sandbox-tenant", gcBody("EV001"), "garbage-signature")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.InboxStatusProcessed, results[0].Status)
	assert.Len(t, events.events, 1)
}

func TestIngestUnknownTenant(t *testing.T) {
	ing := newTestIngestor(newFakeInbox(), &fakeEvents{}, &fakeAccounts{accounts: map[string]*domain.PSPAccount{}})

	_, err := ing.Ingest(context.Background(), "nobody", gcBody("EV001"), "sig")
	assert.ErrorIs(t, err, domain.ErrUnknownTenant)
}

func TestIngestMalformedPayload(t *testing.T) {
	ing := newTestIngestor(newFakeInbox(), &fakeEvents{}, accountsWithSecret("tenant-1", "gc-secret"))

	_, err := ing.Ingest(context.Background(), "tenant-1", []byte("{not json"), "sig")
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}

func TestIngestUnknownEventTypeStillRecorded(t *testing.T) {
	inbox := newFakeInbox()
	events := &fakeEvents{}
	ing := newTestIngestor(inbox, events, accountsWithSecret("tenant-1", ""))

	body := []byte(`{"events":[{"id":"EV999","resource_type":"payouts","action":"paid"}]}`)
	results, err := ing.Ingest(context.Background(), "tenant-1", body, "")
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, domain.InboxStatusProcessed, results[0].Status)
	assert.Equal(t, domain.StatusUnknown, results[0].InternalStatus)
	require.Len(t, events.events, 1)
	assert.Equal(t, domain.PaymentEventTypeWebhookReceived, events.events[0].EventType)
}

func TestIngestPerEventIsolation(t *testing.T) {
	inbox := newFakeInbox()
	events := &fakeEvents{failOn: map[int]error{1: fmt.Errorf("storage down")}}
	ing := newTestIngestor(inbox, events, accountsWithSecret("tenant-1", ""))

	results, err := ing.Ingest(context.Background(), "tenant-1", gcBody("EV001", "EV002"), "")
	assert.Error(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, domain.InboxStatusFailed, results[0].Status)
	assert.Equal(t, domain.InboxStatusProcessed, results[1].Status)

	failed := inbox.get(t, domain.ProviderGoCardless, "EV001")
	assert.Equal(t, domain.InboxStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "storage down")

	processed := inbox.get(t, domain.ProviderGoCardless, "EV002")
	assert.Equal(t, domain.InboxStatusProcessed, processed.Status)
	assert.Len(t, events.events, 1)
}

func TestIngestAuditFailureMarksEntryFailed(t *testing.T) {
	inbox := newFakeInbox()
	events := &fakeEvents{failOn: map[int]error{1: fmt.Errorf("insert refused")}}
	ing := newTestIngestor(inbox, events, accountsWithSecret("tenant-1", ""))

	results, err := ing.Ingest(context.Background(), "tenant-1", gcBody("EV001"), "")
	assert.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.InboxStatusFailed, results[0].Status)

	entry := inbox.get(t, domain.ProviderGoCardless, "EV001")
	assert.Equal(t, domain.InboxStatusFailed, entry.Status)
	assert.Empty(t, events.events)
}

type racingInbox struct {
	*fakeInbox
	finds int
}

func (r *racingInbox) FindByKey(ctx context.Context, p domain.Provider, pspEventID string) (*domain.InboxEntry, error) {
	r.finds++
	// First lookup misses; a concurrent delivery inserts before our Create.
	if r.finds == 1 {
		return nil, nil
	}
	return r.fakeInbox.FindByKey(ctx, p, pspEventID)
}

func TestIngestInsertRaceResolvesAsDuplicate(t *testing.T) {
	base := newFakeInbox()
	winner := &domain.InboxEntry{
		Provider:   domain.ProviderGoCardless,
		PSPEventID: "EV001",
		Status:     domain.InboxStatusProcessed,
	}
	require.NoError(t, base.Create(context.Background(), winner))

	events := &fakeEvents{}
	ing := newTestIngestor(nil, events, accountsWithSecret("tenant-1", ""))
	ing.inbox = &racingInbox{fakeInbox: base}

	results, err := ing.Ingest(context.Background(), "tenant-1", gcBody("EV001"), "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Duplicate)
	assert.Equal(t, domain.InboxStatusDuplicate, results[0].Status)
	assert.Empty(t, events.events, "race loser must not append an audit row")
}
