package service

import (
	"strings"

	"github.com/valyala/fasthttp"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, X-API-Key, X-Request-ID"
)

// corsPolicy allows every origin unless an explicit list is configured
type corsPolicy struct {
	allowAll bool
	origins  map[string]struct{}
}

func newCORSPolicy(allowed []string) *corsPolicy {
	p := &corsPolicy{origins: make(map[string]struct{})}
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			p.allowAll = true
			continue
		}
		if origin != "" {
			p.origins[origin] = struct{}{}
		}
	}
	if len(p.origins) == 0 {
		p.allowAll = true
	}
	return p
}

func (p *corsPolicy) apply(ctx *fasthttp.RequestCtx) {
	if p.allowAll {
		ctx.Response.Header.Set(fasthttp.HeaderAccessControlAllowOrigin, "*")
	} else {
		ctx.Response.Header.Add(fasthttp.HeaderVary, "Origin")
		origin := string(ctx.Request.Header.Peek(fasthttp.HeaderOrigin))
		if _, ok := p.origins[origin]; !ok {
			return
		}
		ctx.Response.Header.Set(fasthttp.HeaderAccessControlAllowOrigin, origin)
	}
	ctx.Response.Header.Set(fasthttp.HeaderAccessControlAllowMethods, corsAllowMethods)
	ctx.Response.Header.Set(fasthttp.HeaderAccessControlAllowHeaders, corsAllowHeaders)
}
