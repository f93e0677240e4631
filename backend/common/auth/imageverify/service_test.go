package imageverify

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"xiaoyumall/backend/common/utils/datahandle"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"golang.org/x/net/context"
)

type fakeGenerator struct {
	texts []string
	calls int
	err   error
}

func (f *fakeGenerator) Generate() (string, []byte, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	text := f.texts[f.calls%len(f.texts)]
	f.calls++
	return text, []byte("jpeg:" + text), nil
}

func newTestService(t *testing.T, gen *fakeGenerator) (*ImageCodeService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rw := datahandle.NewCommonReadWriteServiceWithClients(client, nil)
	t.Cleanup(rw.Close)

	return NewImageCodeService(rw, gen, 300*time.Second), mr
}

func TestIssueImageCode(t *testing.T) {
	svc, mr := newTestService(t, &fakeGenerator{texts: []string{"AB3F"}})

	image, err := svc.IssueImageCode(context.Background(), "t1")
	if err != nil {
		t.Fatalf("IssueImageCode: %v", err)
	}
	if !bytes.Equal(image, []byte("jpeg:AB3F")) {
		t.Fatalf("image = %q", image)
	}

	got, err := mr.Get("img_t1")
	if err != nil || got != "AB3F" {
		t.Fatalf("stored = %q, %v", got, err)
	}
	if ttl := mr.TTL("img_t1"); ttl != 300*time.Second {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestIssueImageCodeLastWriteWins(t *testing.T) {
	svc, mr := newTestService(t, &fakeGenerator{texts: []string{"AAAA", "BBBB"}})
	ctx := context.Background()

	if _, err := svc.IssueImageCode(ctx, "t1"); err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if _, err := svc.IssueImageCode(ctx, "t1"); err != nil {
		t.Fatalf("second issue: %v", err)
	}

	if got, _ := mr.Get("img_t1"); got != "BBBB" {
		t.Fatalf("stored = %q, want latest text", got)
	}
}

func TestIssueImageCodeMissingToken(t *testing.T) {
	gen := &fakeGenerator{texts: []string{"AAAA"}}
	svc, mr := newTestService(t, gen)

	if _, err := svc.IssueImageCode(context.Background(), ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("err = %v, want ErrMissingToken", err)
	}
	if gen.calls != 0 || len(mr.Keys()) != 0 {
		t.Fatal("missing token must not generate or store anything")
	}
}

func TestIssueImageCodeGeneratorError(t *testing.T) {
	svc, mr := newTestService(t, &fakeGenerator{err: errors.New("font missing")})

	if _, err := svc.IssueImageCode(context.Background(), "t1"); err == nil {
		t.Fatal("expected generator error")
	}
	if mr.Exists("img_t1") {
		t.Fatal("nothing should be stored when generation fails")
	}
}

func TestIssueImageCodeStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	rw := datahandle.NewCommonReadWriteServiceWithClients(client, nil)
	t.Cleanup(rw.Close)
	mr.Close()

	svc := NewImageCodeService(rw, &fakeGenerator{texts: []string{"AAAA"}}, time.Minute)
	_, err := svc.IssueImageCode(context.Background(), "t1")
	if !errors.Is(err, datahandle.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestImageCodeKey(t *testing.T) {
	if got := ImageCodeKey("5a3b"); got != "img_5a3b" {
		t.Fatalf("ImageCodeKey = %q", got)
	}
}
