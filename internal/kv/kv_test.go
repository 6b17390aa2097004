package kv

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clean-dependency-project/winiso/internal/output"
	"github.com/clean-dependency-project/winiso/internal/resolve"
)

// fakeRedis records commands instead of sending them
type fakeRedis struct {
	hset     map[string][]interface{}
	expireAt map[string]time.Time
	hsetErr  error
	closed   bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hset: map[string][]interface{}{}, expireAt: map[string]time.Time{}}
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.hsetErr != nil {
		cmd.SetErr(f.hsetErr)
		return cmd
	}
	f.hset[key] = values
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (f *fakeRedis) ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	f.expireAt[key] = tm
	cmd.SetVal(true)
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func testEnvelope() output.Envelope {
	return output.NewEnvelope(output.DefaultKeyPrefix, resolve.Result{
		SKU:        "19246",
		Value:      resolve.Value{Outcome: resolve.Success{URL: "https://dl/x.iso?a=1&b=2"}},
		Metadata:   resolve.Metadata{Release: "11", Arch: "x86_64", Edition: "French"},
		Expiration: time.Unix(1740916800, 0),
	})
}

func TestRedisWriter_Put(t *testing.T) {
	fake := newFakeRedis()
	w := NewWriter(fake, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	if err := w.Put(context.Background(), testEnvelope()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	want := []interface{}{
		"value", `{"status":"Success","url":"https://dl/x.iso?a=1&b=2"}`,
		"metadata", `{"release":"11","arch":"x86_64","edition":"French","filename":null,"checksum":null,"error":null}`,
	}
	if got := fake.hset["windows-19246"]; !reflect.DeepEqual(got, want) {
		t.Errorf("HSet values = %v, want %v", got, want)
	}
	if got := fake.expireAt["windows-19246"]; got.Unix() != 1740916800 {
		t.Errorf("ExpireAt = %v", got)
	}
}

func TestRedisWriter_PutError(t *testing.T) {
	fake := newFakeRedis()
	fake.hsetErr = errors.New("READONLY")
	w := NewWriter(fake, nil)

	err := w.Put(context.Background(), testEnvelope())
	if err == nil || !errors.Is(err, fake.hsetErr) {
		t.Fatalf("expected wrapped HSet error, got %v", err)
	}
	if _, ok := fake.expireAt["windows-19246"]; ok {
		t.Error("expiration must not be set when the write failed")
	}
}

func TestRedisWriter_Close(t *testing.T) {
	fake := newFakeRedis()
	if err := NewWriter(fake, nil).Close(); err != nil || !fake.closed {
		t.Errorf("Close() = %v, closed = %v", err, fake.closed)
	}
}

func TestNewRedisWriter_RequiresAddr(t *testing.T) {
	if _, err := NewRedisWriter(context.Background(), Config{}, nil); !errors.Is(err, ErrAddrRequired) {
		t.Errorf("expected ErrAddrRequired, got %v", err)
	}
}
