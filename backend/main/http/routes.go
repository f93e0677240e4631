package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// 路由约束，uuid由前端生成，不校验格式
const (
	mobilePath   = `{mobile:1[3-9]\d{9}}`
	uuidPath     = `{uuid}`
	usernamePath = `{username:[a-zA-Z0-9_-]{5,20}}`
)

// API路由处理
func setupRoutes(services *Services) http.Handler {
	router := mux.NewRouter()
	limiter := newRateLimiter()

	router.HandleFunc("/", handleRoot).Methods("GET")

	// 验证码接口
	router.Handle("/image_codes/"+uuidPath+"/", limiter.rateLimit(handleImageCode(services), 30, 60)).Methods("GET")
	router.Handle("/sms_codes/"+mobilePath+"/", limiter.rateLimit(handleSmsCode(services), 5, 60)).Methods("GET")
	router.Handle("/sms_codes/"+mobilePath+"/verify/", limiter.rateLimit(handleVerifySmsCode(services), 10, 60)).Methods("POST")

	// 注册时的重复检查
	router.Handle("/usernames/"+usernamePath+"/count/", limiter.rateLimit(handleUsernameCount(services), 30, 60)).Methods("GET")
	router.Handle("/mobiles/"+mobilePath+"/count/", limiter.rateLimit(handleMobileCount(services), 30, 60)).Methods("GET")

	router.Handle("/metrics", services.Metrics.Handler()).Methods("GET")

	// 添加CORS支持
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
	})

	return corsHandler.Handler(router)
}

// currentRouteTemplate 返回匹配的路由模板，限流按路由而不是具体路径统计
func currentRouteTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tpl
}
