package poller

import (
	"errors"
	"testing"
	"time"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/models"
)

func fastTrackerConfig(max int) TrackerConfig {
	return TrackerConfig{
		PollInterval:  time.Millisecond,
		RetryInterval: time.Millisecond,
		MaxSessions:   max,
		RedirectURL:   "https://shop.example/done",
	}
}

func waitTracked(t *testing.T, tr *Tracker, id string) Update {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		u, err := tr.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		if u.State == config.SessionTerminal {
			return u
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("invoice %s never reached terminal", id)
	return Update{}
}

func TestTracker_TrackToTerminal(t *testing.T) {
	src := newScriptedSource(
		ok(models.Snapshot{"status": "waiting"}),
		ok(models.Snapshot{"status": "confirmed", "txHash": "0xabc"}),
	)
	hub := NewHub()
	events := hub.Subscribe()
	defer hub.Unsubscribe(events)

	tr := NewTracker(src, hub, fastTrackerConfig(5))
	defer tr.Stop()

	u, err := tr.Track(models.Seed{InvoiceID: " inv_1 "})
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if u.InvoiceID != "inv_1" {
		t.Errorf("invoice id = %q, want trimmed", u.InvoiceID)
	}

	final := waitTracked(t, tr, "inv_1")
	if final.View.Status != models.StatusConfirmed {
		t.Errorf("status = %s", final.View.Status)
	}
	if final.RedirectURL != "https://shop.example/done" {
		t.Errorf("redirect url = %q", final.RedirectURL)
	}

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case ev := <-events:
			got = append(got, ev.Type)
		case <-timeout:
			t.Fatalf("events so far %v", got)
		}
	}
	want := []string{config.EventInvoiceUpdate, config.EventInvoiceTerminal, config.EventInvoiceRedirect}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestTracker_RejectsDuplicateWhilePolling(t *testing.T) {
	src := newBlockingSource(models.Snapshot{"status": "expired"})
	tr := NewTracker(src, nil, fastTrackerConfig(5))
	defer tr.Stop()
	defer close(src.release)

	if _, err := tr.Track(models.Seed{InvoiceID: "inv_1"}); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	<-src.started

	_, err := tr.Track(models.Seed{InvoiceID: "inv_1"})
	if !errors.Is(err, config.ErrAlreadyTracking) {
		t.Errorf("error = %v, want ErrAlreadyTracking", err)
	}
}

func TestTracker_MaxSessions(t *testing.T) {
	src := newBlockingSource(models.Snapshot{"status": "expired"})
	tr := NewTracker(src, nil, fastTrackerConfig(1))
	defer tr.Stop()
	defer close(src.release)

	if _, err := tr.Track(models.Seed{InvoiceID: "inv_1"}); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	_, err := tr.Track(models.Seed{InvoiceID: "inv_2"})
	if !errors.Is(err, config.ErrMaxSessions) {
		t.Errorf("error = %v, want ErrMaxSessions", err)
	}
	if tr.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", tr.ActiveCount())
	}
}

func TestTracker_RetrackFinishedInvoice(t *testing.T) {
	src := newScriptedSource(
		ok(models.Snapshot{"status": "expired"}),
		ok(models.Snapshot{"status": "rejected"}),
	)
	tr := NewTracker(src, nil, fastTrackerConfig(1))
	defer tr.Stop()

	if _, err := tr.Track(models.Seed{InvoiceID: "inv_1"}); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	waitTracked(t, tr, "inv_1")

	if _, err := tr.Track(models.Seed{InvoiceID: "inv_1"}); err != nil {
		t.Fatalf("re-Track() error = %v", err)
	}
	final := waitTracked(t, tr, "inv_1")
	if final.View.Status != models.StatusRejected {
		t.Errorf("status = %s, want rejected from the new session", final.View.Status)
	}
}

func TestTracker_CancelAndGet(t *testing.T) {
	src := newBlockingSource(models.Snapshot{"status": "waiting"})
	tr := NewTracker(src, nil, fastTrackerConfig(5))
	defer tr.Stop()
	defer close(src.release)

	if _, err := tr.Track(models.Seed{InvoiceID: "inv_b"}); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if _, err := tr.Track(models.Seed{InvoiceID: "inv_a"}); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	list := tr.List()
	if len(list) != 2 || list[0].InvoiceID != "inv_a" || list[1].InvoiceID != "inv_b" {
		t.Errorf("List() = %+v, want sorted inv_a, inv_b", list)
	}

	if err := tr.Cancel("inv_a"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := tr.Get("inv_a"); !errors.Is(err, config.ErrSessionNotFound) {
		t.Errorf("Get after cancel error = %v, want ErrSessionNotFound", err)
	}
	if err := tr.Cancel("inv_missing"); !errors.Is(err, config.ErrSessionNotFound) {
		t.Errorf("Cancel unknown error = %v, want ErrSessionNotFound", err)
	}
}

func TestTracker_RejectsBlankInvoiceID(t *testing.T) {
	tr := NewTracker(newScriptedSource(), nil, fastTrackerConfig(5))
	defer tr.Stop()

	if _, err := tr.Track(models.Seed{InvoiceID: "  "}); err == nil {
		t.Fatal("expected error for blank invoice id")
	}
}

func TestTracker_StopRefusesNewSessions(t *testing.T) {
	tr := NewTracker(newScriptedSource(ok(models.Snapshot{"status": "expired"})), nil, fastTrackerConfig(5))
	if _, err := tr.Track(models.Seed{InvoiceID: "inv_1"}); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	tr.Stop()

	if tr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() after Stop = %d", tr.ActiveCount())
	}
	if _, err := tr.Track(models.Seed{InvoiceID: "inv_2"}); err == nil {
		t.Error("Track after Stop should fail")
	}
}
