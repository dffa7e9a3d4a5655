package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const authRealm = "NewsRelay"

// BasicAuth 保护除 public 以外的全部路由；public 为空时只放行 /health，
// 部署时可把 /metrics 一并放行给抓取端
func BasicAuth(user, pass string, public ...string) gin.HandlerFunc {
	if len(public) == 0 {
		public = []string{"/health"}
	}
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}
	wantUser, wantPass := []byte(user), []byte(pass)

	return func(c *gin.Context) {
		if _, ok := open[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		// 用户名和密码都做常量时间比较
		userOK := subtle.ConstantTimeCompare([]byte(u), wantUser) == 1
		passOK := subtle.ConstantTimeCompare([]byte(p), wantPass) == 1
		if !ok || !userOK || !passOK {
			c.Header("WWW-Authenticate", `Basic realm="`+authRealm+`", charset="UTF-8"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "unauthorized",
				"message": "authentication required",
			})
			return
		}
		c.Next()
	}
}
