package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/edgecomet/distill/pkg/pattern"
)

// TrackerPatterns are analytics and advertising hosts that never contribute page content
var TrackerPatterns = []string{
	"*2mdn.net*",
	"*adobestats.com*",
	"*doubleclick.net*",
	"*google-analytics.com*",
	"*analytics.google.com*",
	"*googleadservices.com*",
	"*googlesyndication.com*",
	"*googletagservices.com*",
	"*googletagmanager.com*",
	"*facebook.net*",
	"*connect.facebook.com*",
	"*hotjar.com*",
	"*clarity.ms*",
	"*static.cloudflareinsights.com*",
	"*segment.io*",
	"*mixpanel.com*",
}

const interceptTimeout = 2 * time.Second

// Blocklist decides which subresource requests a tab aborts
type Blocklist struct {
	patterns      []*pattern.Pattern
	resourceTypes map[string]struct{}
}

// NewBlocklist compiles URL rules and resource type names (Image, Font, Media, ...).
// Resource type names are matched case-insensitively.
func NewBlocklist(rules, resourceTypes []string) (*Blocklist, error) {
	bl := &Blocklist{
		patterns:      make([]*pattern.Pattern, 0, len(rules)),
		resourceTypes: make(map[string]struct{}, len(resourceTypes)),
	}

	for _, rule := range rules {
		if strings.TrimSpace(rule) == "" {
			continue
		}
		p, err := pattern.Compile(rule)
		if err != nil {
			return nil, err
		}
		bl.patterns = append(bl.patterns, p)
	}

	for _, rt := range resourceTypes {
		if rt = strings.TrimSpace(rt); rt != "" {
			bl.resourceTypes[strings.ToLower(rt)] = struct{}{}
		}
	}

	return bl, nil
}

// Empty reports whether the blocklist would never block anything
func (bl *Blocklist) Empty() bool {
	return bl == nil || (len(bl.patterns) == 0 && len(bl.resourceTypes) == 0)
}

// Blocks reports whether a request for requestURL of the given resource type should be aborted
func (bl *Blocklist) Blocks(requestURL, resourceType string) bool {
	if bl.Empty() {
		return false
	}
	if _, ok := bl.resourceTypes[strings.ToLower(resourceType)]; ok {
		return true
	}
	for _, p := range bl.patterns {
		if p.Match(requestURL) {
			return true
		}
	}
	return false
}

// String summarizes the blocklist for logs
func (bl *Blocklist) String() string {
	if bl.Empty() {
		return "none"
	}
	return fmt.Sprintf("%d patterns, %d resource types", len(bl.patterns), len(bl.resourceTypes))
}

// intercept installs a fetch.EventRequestPaused handler on tabCtx and returns the action
// that turns interception on. Every paused request is either failed or continued.
func (bl *Blocklist) intercept(tabCtx context.Context, onBlocked func(), logger *zap.Logger) chromedp.Action {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}

		// Handlers must not block the event loop
		go func() {
			c := chromedp.FromContext(tabCtx)
			if c == nil || c.Target == nil {
				return
			}
			cmdCtx, cancel := context.WithTimeout(tabCtx, interceptTimeout)
			defer cancel()
			executor := cdp.WithExecutor(cmdCtx, c.Target)

			if bl.Blocks(paused.Request.URL, string(paused.ResourceType)) {
				if onBlocked != nil {
					onBlocked()
				}
				if err := fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(executor); err != nil {
					logger.Debug("Failed to block request", zap.String("url", paused.Request.URL), zap.Error(err))
				}
				return
			}

			if err := fetch.ContinueRequest(paused.RequestID).Do(executor); err != nil {
				logger.Debug("Failed to continue request, aborting it", zap.String("url", paused.Request.URL), zap.Error(err))
				_ = fetch.FailRequest(paused.RequestID, network.ErrorReasonAborted).Do(executor)
			}
		}()
	})

	return fetch.Enable()
}
