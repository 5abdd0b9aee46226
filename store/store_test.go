package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/chimerakang/changedesk"
)

// exerciseStore runs the contract shared by every driver.
func exerciseStore(t *testing.T, s changedesk.TokenStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx); err != nil || ok {
		t.Fatalf("empty Get() = ok %v, err %v", ok, err)
	}
	if err := s.Remove(ctx); err != nil {
		t.Fatalf("Remove() on empty store error: %v", err)
	}

	if err := s.Set(ctx, "first"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Set(ctx, "second"); err != nil {
		t.Fatalf("Set() overwrite error: %v", err)
	}
	tok, ok, err := s.Get(ctx)
	if err != nil || !ok || tok != "second" {
		t.Fatalf("Get() = %q, %v, %v; want second, true, nil", tok, ok, err)
	}

	if err := s.Remove(ctx); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := s.Remove(ctx); err != nil {
		t.Fatalf("second Remove() error: %v", err)
	}
	if _, ok, err := s.Get(ctx); err != nil || ok {
		t.Fatalf("Get() after Remove = ok %v, err %v", ok, err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	s, err := NewFile(t.TempDir(), changedesk.TokenKey)
	if err != nil {
		t.Fatalf("NewFile error: %v", err)
	}
	exerciseStore(t, s)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a, _ := NewFile(dir, changedesk.TokenKey)
	if err := a.Set(ctx, "persisted"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	info, err := os.Stat(a.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %v, want 0600", perm)
	}

	b, _ := NewFile(dir, changedesk.TokenKey)
	tok, ok, err := b.Get(ctx)
	if err != nil || !ok || tok != "persisted" {
		t.Fatalf("Get() = %q, %v, %v", tok, ok, err)
	}
}

func TestFileStore_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, _ := NewFile(dir, changedesk.TokenKey)
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.Get(ctx); err == nil {
		t.Fatal("Get() expected error for corrupt document")
	}
	if err := s.Remove(ctx); err != nil {
		t.Fatalf("Remove() should clear a corrupt document: %v", err)
	}
	if _, ok, err := s.Get(ctx); err != nil || ok {
		t.Fatalf("Get() after Remove = ok %v, err %v", ok, err)
	}
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	s, err := NewRedis(Config{Redis: &RedisConfig{Addr: mr.Addr()}})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)

	if err := s.Set(context.Background(), "abc"); err != nil {
		t.Fatal(err)
	}
	if got, _ := mr.Get("changedesk:token"); got != "abc" {
		t.Errorf("redis key value = %q, want abc", got)
	}
	if ttl := mr.TTL("changedesk:token"); ttl != 0 {
		t.Errorf("redis key TTL = %v, want none", ttl)
	}
}

func TestRedisStore_Unreachable(t *testing.T) {
	if _, err := NewRedis(Config{Redis: &RedisConfig{Addr: "127.0.0.1:1"}}); err == nil {
		t.Fatal("NewRedis expected ping error")
	}
}

func TestSQLiteStore(t *testing.T) {
	db, err := OpenSQLite("file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := NewSQLite(db, changedesk.TokenKey)
	if err != nil {
		t.Fatalf("NewSQLite error: %v", err)
	}
	defer s.Close()

	exerciseStore(t, s)
}

func TestFactoryMemory(t *testing.T) {
	s, err := New(Config{}, Dependencies{})
	if err != nil {
		t.Fatalf("New memory store: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("default driver = %T, want *Memory", s)
	}
}

func TestFactoryFile(t *testing.T) {
	if _, err := New(Config{Driver: DriverFile}, Dependencies{}); err == nil {
		t.Fatal("file driver without directory should fail")
	}
	s, err := New(Config{Driver: DriverFile, File: &FileConfig{Dir: t.TempDir()}}, Dependencies{})
	if err != nil {
		t.Fatalf("New file store: %v", err)
	}
	exerciseStore(t, s)
}

func TestFactorySQLite(t *testing.T) {
	if _, err := New(Config{Driver: DriverSQLite}, Dependencies{}); err == nil {
		t.Fatal("sqlite driver without handle or DSN should fail")
	}
	s, err := New(Config{
		Driver: DriverSQLite,
		SQLite: &SQLiteConfig{DSN: "file:factory_sqlite?mode=memory&cache=shared"},
	}, Dependencies{})
	if err != nil {
		t.Fatalf("New sqlite store: %v", err)
	}
	defer s.Close()

	if err := s.Set(context.Background(), "factory-sqlite"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
}

func TestFactoryRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	s, err := New(Config{
		Driver: DriverRedis,
		Key:    "custom",
		Redis:  &RedisConfig{Addr: mr.Addr(), Prefix: "desk:"},
	}, Dependencies{})
	if err != nil {
		t.Fatalf("New redis store: %v", err)
	}
	defer s.Close()

	if err := s.Set(context.Background(), "factory-redis"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if !mr.Exists("desk:custom") {
		t.Error("expected key desk:custom")
	}
}

func TestFactoryUnsupported(t *testing.T) {
	_, err := New(Config{Driver: "etcd"}, Dependencies{})
	if !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("error = %v, want ErrUnsupportedDriver", err)
	}
}
