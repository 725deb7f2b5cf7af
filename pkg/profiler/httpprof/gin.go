package httpprof

import (
	"github.com/gin-gonic/gin"
)

// Gin returns gin middleware equivalent to Middleware. Sessions are named after the
// matched route when there is one.
func Gin(cfg *Config) gin.HandlerFunc {
	c := cfg.withDefaults()
	return func(ctx *gin.Context) {
		r := ctx.Request
		if !c.shouldProfile(r) {
			ctx.Next()
			return
		}

		name := c.NameFunc(r)
		if route := ctx.FullPath(); route != "" && cfg.NameFunc == nil {
			name = r.Method + " " + route
		}

		pctx, p, ids := c.begin(r, name)
		if ids != "" {
			ctx.Header(HeaderIDs, ids)
		}
		ctx.Request = r.WithContext(pctx)
		defer func() { c.end(pctx, p, ctx.Request, ctx.Writer.Status()) }()

		ctx.Next()
	}
}
