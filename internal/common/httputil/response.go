// Package httputil holds fasthttp response helpers shared by the HTTP servers
package httputil

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// ContentTypeJSON is the content type of every JSON response
const ContentTypeJSON = "application/json"

// WriteJSON marshals v into the response body. Nothing is written when marshalling fails.
func WriteJSON(ctx *fasthttp.RequestCtx, statusCode int, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType(ContentTypeJSON)
	ctx.SetBody(body)
	return nil
}

// WriteRawJSON writes an already encoded JSON body
func WriteRawJSON(ctx *fasthttp.RequestCtx, statusCode int, body string) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType(ContentTypeJSON)
	ctx.SetBodyString(body)
}

// PlainStatus answers with the standard status text, for endpoints that do not speak JSON
func PlainStatus(ctx *fasthttp.RequestCtx, statusCode int) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.SetBodyString(fasthttp.StatusMessage(statusCode))
}
