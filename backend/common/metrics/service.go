// Package metrics 验证码子系统的运行指标，以Prometheus格式在/metrics暴露
package metrics

import (
	"context"
	"net/http"
	"time"

	"xiaoyumall/backend/common/sendsms"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service 持有独立的注册表，方便测试中多次创建
type Service struct {
	registry *prometheus.Registry

	imageCodes   *prometheus.CounterVec
	smsCodes     *prometheus.CounterVec
	smsVerify    *prometheus.CounterVec
	gatewaySends *prometheus.CounterVec
	gatewayTime  prometheus.Histogram
}

// NewService 创建并注册全部指标
func NewService() *Service {
	s := &Service{
		registry: prometheus.NewRegistry(),
		imageCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xiaoyumall",
			Subsystem: "verify",
			Name:      "image_codes_total",
			Help:      "Image verification codes issued, by result.",
		}, []string{"result"}),
		smsCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xiaoyumall",
			Subsystem: "verify",
			Name:      "sms_code_requests_total",
			Help:      "SMS code requests, by outcome.",
		}, []string{"outcome"}),
		smsVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xiaoyumall",
			Subsystem: "verify",
			Name:      "sms_code_checks_total",
			Help:      "SMS code verifications, by result.",
		}, []string{"result"}),
		gatewaySends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xiaoyumall",
			Subsystem: "sms",
			Name:      "gateway_sends_total",
			Help:      "Template SMS sends handed to the gateway, by result.",
		}, []string{"result"}),
		gatewayTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "xiaoyumall",
			Subsystem: "sms",
			Name:      "gateway_send_seconds",
			Help:      "Latency of template SMS sends.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
	}

	s.registry.MustRegister(
		s.imageCodes,
		s.smsCodes,
		s.smsVerify,
		s.gatewaySends,
		s.gatewayTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return s
}

// Handler 返回/metrics处理器
func (s *Service) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Registry 暴露注册表，供测试读取
func (s *Service) Registry() *prometheus.Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

// ImageCodeIssued 记录一次图形验证码签发
func (s *Service) ImageCodeIssued(err error) {
	if s == nil {
		return
	}
	s.imageCodes.WithLabelValues(resultLabel(err)).Inc()
}

// SmsCodeRequested 记录一次短信验证码请求的结果
func (s *Service) SmsCodeRequested(outcome string) {
	if s == nil {
		return
	}
	s.smsCodes.WithLabelValues(outcome).Inc()
}

// SmsCodeChecked 记录一次短信验证码校验
func (s *Service) SmsCodeChecked(ok bool) {
	if s == nil {
		return
	}
	result := "mismatch"
	if ok {
		result = "ok"
	}
	s.smsVerify.WithLabelValues(result).Inc()
}

// InstrumentGateway 包装短信网关，统计发送次数和耗时
func (s *Service) InstrumentGateway(g sendsms.Gateway) sendsms.Gateway {
	if s == nil {
		return g
	}
	return &instrumentedGateway{next: g, metrics: s}
}

type instrumentedGateway struct {
	next    sendsms.Gateway
	metrics *Service
}

func (g *instrumentedGateway) SendTemplate(ctx context.Context, to string, templateID string, datas []string) error {
	start := time.Now()
	err := g.next.SendTemplate(ctx, to, templateID, datas)
	g.metrics.gatewayTime.Observe(time.Since(start).Seconds())
	g.metrics.gatewaySends.WithLabelValues(resultLabel(err)).Inc()
	return err
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
