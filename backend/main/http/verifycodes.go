package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"xiaoyumall/backend/common/auth/imageverify"
	"xiaoyumall/backend/common/auth/smsverify"

	"github.com/gorilla/mux"
)

// handleImageCode 返回图形验证码图片
func handleImageCode(services *Services) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := mux.Vars(r)["uuid"]

		image, err := services.ImageCodes.IssueImageCode(r.Context(), token)
		services.Metrics.ImageCodeIssued(err)
		if errors.Is(err, imageverify.ErrMissingToken) {
			respond(w, RetNecessaryParamErr, "缺少必传参数", nil)
			return
		}
		if err != nil {
			respondWithError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		w.Write(image)
	})
}

// handleSmsCode 校验图形验证码并发送短信验证码
func handleSmsCode(services *Services) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mobile := mux.Vars(r)["mobile"]
		query := r.URL.Query()

		result, err := services.SmsCodes.IssueSmsCode(r.Context(), mobile, query.Get("image_code"), query.Get("uuid"))
		if err != nil {
			services.Metrics.SmsCodeRequested("STORE_UNAVAILABLE")
			respondWithError(w, r, err)
			return
		}
		services.Metrics.SmsCodeRequested(result.Outcome.String())

		switch result.Outcome {
		case smsverify.OutcomeMissingParams:
			respond(w, RetNecessaryParamErr, "缺少必传参数", nil)
		case smsverify.OutcomeThrottled:
			respond(w, RetThrottlingErr, "发送短信过于频繁", nil)
		case smsverify.OutcomeImageCodeExpired:
			respond(w, RetImageCodeErr, "图形验证码失效", nil)
		case smsverify.OutcomeImageCodeMismatch:
			respond(w, RetImageCodeErr, "输入图形验证码有误", nil)
		default:
			var extra map[string]interface{}
			if services.ExposeSmsCode {
				extra = map[string]interface{}{"smsCode": result.SmsCode}
			}
			logger.Printf("[%s] 短信验证码已签发 mobile=%s delivered=%t", requestID(r), mobile, result.Delivered)
			respond(w, RetOK, "发送短信成功", extra)
		}
	})
}

// handleVerifySmsCode 校验短信验证码，验证码只能使用一次
func handleVerifySmsCode(services *Services) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mobile := mux.Vars(r)["mobile"]

		var body struct {
			SmsCode string `json:"smsCode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SmsCode == "" {
			respond(w, RetNecessaryParamErr, "缺少必传参数", nil)
			return
		}

		ok, err := services.SmsCodes.VerifySmsCode(r.Context(), mobile, body.SmsCode)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		services.Metrics.SmsCodeChecked(ok)

		if !ok {
			respond(w, RetSmsCodeErr, "短信验证码有误", nil)
			return
		}
		respond(w, RetOK, "OK", nil)
	})
}
