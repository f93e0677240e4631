package http

import (
	"errors"
	"net/http"

	"xiaoyumall/backend/main/users"

	"github.com/gorilla/mux"
)

// handleUsernameCount 用户名重复注册检查
func handleUsernameCount(services *Services) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := services.Users.CountUsername(r.Context(), mux.Vars(r)["username"])
		if errors.Is(err, users.ErrInvalidParam) {
			respond(w, RetUserErr, "用户名格式错误", nil)
			return
		}
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		respond(w, RetOK, "OK", map[string]interface{}{"count": count})
	})
}

// handleMobileCount 手机号重复注册检查
func handleMobileCount(services *Services) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := services.Users.CountMobile(r.Context(), mux.Vars(r)["mobile"])
		if errors.Is(err, users.ErrInvalidParam) {
			respond(w, RetMobileErr, "手机号格式错误", nil)
			return
		}
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		respond(w, RetOK, "OK", map[string]interface{}{"count": count})
	})
}
