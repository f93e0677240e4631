package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"xiaoyumall/backend/common/auth/imageverify"
	"xiaoyumall/backend/common/auth/smsverify"
	"xiaoyumall/backend/common/metrics"
	"xiaoyumall/backend/common/utils/datahandle"
	"xiaoyumall/backend/main/users"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type fixedGenerator struct {
	text string
}

func (g fixedGenerator) Generate() (string, []byte, error) {
	return g.text, []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

type recordingGateway struct {
	mu    sync.Mutex
	count int
}

func (g *recordingGateway) SendTemplate(ctx context.Context, to string, templateID string, datas []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.count++
	return nil
}

type fakeCounter struct {
	count int64
}

func (f fakeCounter) QueryCount(ctx context.Context, query string, params ...interface{}) *datahandle.OperationResult {
	return &datahandle.OperationResult{Status: datahandle.StatusSuccess, Data: f.count}
}

type testServer struct {
	handler http.Handler
	mr      *miniredis.Miniredis
	gateway *recordingGateway
}

func newTestServer(t *testing.T, expose bool) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rw := datahandle.NewCommonReadWriteServiceWithClients(client, nil)
	t.Cleanup(rw.Close)

	gateway := &recordingGateway{}
	m := metrics.NewService()
	services := &Services{
		ImageCodes:    imageverify.NewImageCodeService(rw, fixedGenerator{text: "Ab3F"}, 300*time.Second),
		SmsCodes:      smsverify.NewSmsVerifyService(rw, m.InstrumentGateway(gateway), smsverify.DefaultOptions()),
		Users:         users.NewUserService(fakeCounter{count: 1}),
		Metrics:       m,
		ExposeSmsCode: expose,
	}

	return &testServer{handler: NewHandler(services), mr: mr, gateway: gateway}
}

func (s *testServer) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestImageCodeEndpoint(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodGet, "/image_codes/5a3b-11ef/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Header().Get("Cache-Control") != "no-store" || rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("headers = %v", rec.Header())
	}
	if got, _ := s.mr.Get("img_5a3b-11ef"); got != "Ab3F" {
		t.Fatalf("stored = %q", got)
	}
}

func TestSmsCodeFlow(t *testing.T) {
	s := newTestServer(t, true)
	s.do(t, http.MethodGet, "/image_codes/t1/", nil)

	rec := s.do(t, http.MethodGet, "/sms_codes/13800000000/?image_code=aB3f&uuid=t1", nil)
	body := decodeEnvelope(t, rec)
	if body["code"] != RetOK {
		t.Fatalf("body = %v", body)
	}
	smsCode, _ := body["smsCode"].(string)
	if len(smsCode) != 6 || s.gateway.count != 1 {
		t.Fatalf("smsCode = %q, sends = %d", smsCode, s.gateway.count)
	}

	// 同一图形验证码不能再次使用
	s.mr.Del("send_flag_13800000000")
	body = decodeEnvelope(t, s.do(t, http.MethodGet, "/sms_codes/13800000000/?image_code=aB3f&uuid=t1", nil))
	if body["code"] != RetImageCodeErr || body["errmsg"] != "图形验证码失效" {
		t.Fatalf("replay body = %v", body)
	}

	// 校验短信验证码，只能使用一次
	payload, _ := json.Marshal(map[string]string{"smsCode": smsCode})
	body = decodeEnvelope(t, s.do(t, http.MethodPost, "/sms_codes/13800000000/verify/", payload))
	if body["code"] != RetOK {
		t.Fatalf("verify body = %v", body)
	}
	body = decodeEnvelope(t, s.do(t, http.MethodPost, "/sms_codes/13800000000/verify/", payload))
	if body["code"] != RetSmsCodeErr {
		t.Fatalf("second verify body = %v", body)
	}
}

func TestSmsCodeHidesCodeByDefault(t *testing.T) {
	s := newTestServer(t, false)
	s.do(t, http.MethodGet, "/image_codes/t1/", nil)

	body := decodeEnvelope(t, s.do(t, http.MethodGet, "/sms_codes/13800000000/?image_code=AB3F&uuid=t1", nil))
	if body["code"] != RetOK {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["smsCode"]; ok {
		t.Fatal("smsCode must not be exposed")
	}
}

func TestSmsCodeErrors(t *testing.T) {
	s := newTestServer(t, false)

	body := decodeEnvelope(t, s.do(t, http.MethodGet, "/sms_codes/13800000000/?image_code=AB3F", nil))
	if body["code"] != RetNecessaryParamErr {
		t.Fatalf("missing uuid body = %v", body)
	}

	s.do(t, http.MethodGet, "/image_codes/t1/", nil)
	body = decodeEnvelope(t, s.do(t, http.MethodGet, "/sms_codes/13800000000/?image_code=ZZZZ&uuid=t1", nil))
	if body["code"] != RetImageCodeErr || body["errmsg"] != "输入图形验证码有误" {
		t.Fatalf("mismatch body = %v", body)
	}

	s.do(t, http.MethodGet, "/image_codes/t2/", nil)
	s.do(t, http.MethodGet, "/image_codes/t3/", nil)
	decodeEnvelope(t, s.do(t, http.MethodGet, "/sms_codes/13800000000/?image_code=AB3F&uuid=t2", nil))
	body = decodeEnvelope(t, s.do(t, http.MethodGet, "/sms_codes/13800000000/?image_code=AB3F&uuid=t3", nil))
	if body["code"] != RetThrottlingErr {
		t.Fatalf("throttled body = %v", body)
	}
}

func TestSmsCodeInvalidMobile(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodGet, "/sms_codes/12345/?image_code=AB3F&uuid=t1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStoreUnavailable(t *testing.T) {
	s := newTestServer(t, false)
	s.mr.SetError("ERR simulated outage")

	rec := s.do(t, http.MethodGet, "/image_codes/t1/", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["code"] != RetDbErr {
		t.Fatalf("body = %v", body)
	}
}

func TestCountEndpoints(t *testing.T) {
	s := newTestServer(t, false)

	body := decodeEnvelope(t, s.do(t, http.MethodGet, "/usernames/xiaoyu_01/count/", nil))
	if body["code"] != RetOK || body["count"] != float64(1) {
		t.Fatalf("username body = %v", body)
	}
	body = decodeEnvelope(t, s.do(t, http.MethodGet, "/mobiles/13800000000/count/", nil))
	if body["code"] != RetOK || body["count"] != float64(1) {
		t.Fatalf("mobile body = %v", body)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, false)

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = s.do(t, http.MethodGet, "/sms_codes/13800000000/", nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}
}

func TestRootAndMetrics(t *testing.T) {
	s := newTestServer(t, false)

	if rec := s.do(t, http.MethodGet, "/", nil); rec.Code != http.StatusOK {
		t.Fatalf("root status = %d", rec.Code)
	}

	s.do(t, http.MethodGet, "/image_codes/t1/", nil)
	rec := s.do(t, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rec.Body.String(), `xiaoyumall_verify_image_codes_total{result="ok"} 1`) {
		t.Fatalf("metrics output:\n%s", rec.Body.String())
	}
}

func TestImageCodeTokenNotValidated(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodGet, "/image_codes/v2.client~7/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !s.mr.Exists("img_v2.client~7") {
		t.Fatal("image code not stored for token")
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		want       string
	}{
		{"direct client ignores headers", "203.0.113.9:5000", "198.51.100.1", "198.51.100.2", "203.0.113.9"},
		{"proxy uses first forwarded entry", "127.0.0.1:5000", "198.51.100.1, 10.0.0.2", "", "198.51.100.1"},
		{"proxy falls back to real ip", "10.0.0.5:5000", "", "198.51.100.2", "198.51.100.2"},
		{"proxy with garbage header", "10.0.0.5:5000", "not-an-ip", "", "10.0.0.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := clientIP(r); got != tc.want {
				t.Fatalf("clientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	s := newTestServer(t, false)

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/sms_codes/13800000000/", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		last = httptest.NewRecorder()
		s.handler.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}
}
