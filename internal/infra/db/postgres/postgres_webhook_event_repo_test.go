//go:build integration

package postgres

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"gym-payments/internal/domain/model"
)

func TestWebhookEventRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewWebhookEventRepo(testPool)

	newEvent := func(eventID string) *model.WebhookEvent {
		return &model.WebhookEvent{
			ID: uuid.NewString(), EventType: model.EventAccountActivated, EventID: eventID,
			ExternalAccountID: "acc_1", Payload: []byte(`{"event":"account.activated"}`),
			CreatedAt: time.Now().Add(-time.Hour),
		}
	}

	t.Run("second delivery returns the stored row", func(t *testing.T) {
		cleanup(t)
		first := newEvent("acc_1@1700000000")
		created, stored, err := repo.CreateIfNotExists(ctx, nil, first)
		if err != nil || !created || stored.ID != first.ID {
			t.Fatalf("first: created=%v stored=%+v err=%v", created, stored, err)
		}
		if err := repo.MarkProcessed(ctx, nil, first.ID, time.Now(), ""); err != nil {
			t.Fatal(err)
		}

		created, stored, err = repo.CreateIfNotExists(ctx, nil, newEvent("acc_1@1700000000"))
		if err != nil || created {
			t.Fatalf("redelivery: created=%v err=%v", created, err)
		}
		if stored.ID != first.ID || !stored.Processed || stored.Attempts != 1 {
			t.Fatalf("unexpected stored row %+v", stored)
		}
	})

	t.Run("payload keeps the delivered bytes", func(t *testing.T) {
		cleanup(t)
		raw := []byte("{\"event\":\"account.activated\",  \"created_at\":1700000000,\"entity\":\"event\"}\n")
		e := newEvent("acc_1@raw")
		e.Payload = raw
		if _, _, err := repo.CreateIfNotExists(ctx, nil, e); err != nil {
			t.Fatal(err)
		}
		stored, err := repo.FindByID(ctx, nil, e.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(stored.Payload, raw) {
			t.Fatalf("payload rewritten: %q", stored.Payload)
		}
	})

	t.Run("failed events are listed for replay", func(t *testing.T) {
		cleanup(t)
		e := newEvent("acc_1@1700000001")
		if _, _, err := repo.CreateIfNotExists(ctx, nil, e); err != nil {
			t.Fatal(err)
		}
		if err := repo.MarkFailed(ctx, nil, e.ID, "persistence error"); err != nil {
			t.Fatal(err)
		}
		list, err := repo.ListUnprocessedOlderThan(ctx, nil, time.Now().Add(-time.Minute), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].ProcessingError != "persistence error" || string(list[0].Payload) == "" {
			t.Fatalf("unexpected list %+v", list)
		}

		if err := repo.MarkProcessed(ctx, nil, e.ID, time.Now(), "unknown account"); err != nil {
			t.Fatal(err)
		}
		list, _ = repo.ListUnprocessedOlderThan(ctx, nil, time.Now().Add(-time.Minute), 10)
		if len(list) != 0 {
			t.Fatalf("processed event still listed: %+v", list)
		}
		got, _ := repo.FindByID(ctx, nil, e.ID)
		if got.Note != "unknown account" || got.ProcessingError != "" {
			t.Fatalf("unexpected event %+v", got)
		}
	})
}
