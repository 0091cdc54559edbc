package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"go.uber.org/zap/zaptest"
)

func TestRedisStoreSaveUsesRecoveryTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, 24*time.Hour, zaptest.NewLogger(t))

	snap := Snapshot{TestID: 9, Answers: map[int]string{2: "C"}, Timestamp: savedAt}
	data, err := encodeSnapshot(snap)
	if err != nil {
		t.Fatalf("encodeSnapshot failed: %v", err)
	}
	mock.ExpectSet("testProgress_9", data, 24*time.Hour).SetVal("OK")

	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet redis expectations: %v", err)
	}
}

func TestRedisStoreLoad(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, time.Hour, nil)

	mock.ExpectGet("testProgress_9").RedisNil()
	mock.ExpectGet("testProgress_9").SetVal(`{"version":1,"testId":9,"answers":{"2":"C"},"markedQuestions":[2],"timestamp":"2026-03-02T09:30:00Z"}`)

	snap, err := store.Load(context.Background(), 9)
	if err != nil || snap != nil {
		t.Fatalf("expected missing snapshot, got %+v err=%v", snap, err)
	}

	snap, err = store.Load(context.Background(), 9)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.Answers[2] != "C" || len(snap.MarkedQuestions) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet redis expectations: %v", err)
	}
}

func TestRedisStoreClearAndRedirect(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, time.Hour, nil)
	ctx := context.Background()

	mock.ExpectDel("testProgress_9").SetVal(1)
	mock.ExpectSet("redirectAfterLogin", "/tests/9/take", time.Hour).SetVal("OK")
	mock.ExpectGet("redirectAfterLogin").SetVal("/tests/9/take")
	mock.ExpectDel("redirectAfterLogin").SetVal(1)

	if err := store.Clear(ctx, 9); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := store.SetRedirect(ctx, "/tests/9/take"); err != nil {
		t.Fatalf("SetRedirect failed: %v", err)
	}
	if path, err := store.Redirect(ctx); err != nil || path != "/tests/9/take" {
		t.Fatalf("expected redirect, got %q err=%v", path, err)
	}
	if err := store.ClearRedirect(ctx); err != nil {
		t.Fatalf("ClearRedirect failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet redis expectations: %v", err)
	}
}

func TestRedisStoreSurfacesErrors(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisStore(client, time.Hour, nil)

	boom := errors.New("connection reset")
	mock.ExpectGet("testProgress_3").SetErr(boom)

	if _, err := store.Load(context.Background(), 3); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped redis error, got %v", err)
	}
}
