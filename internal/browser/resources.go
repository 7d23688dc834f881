package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceAliases maps config names to CDP resource types.
var resourceAliases = map[string]string{
	"images":      "image",
	"fonts":       "font",
	"stylesheets": "stylesheet",
	"scripts":     "script",
	"media":       "media",
}

// blockSet normalises config names ("images", "Font", ...) to lowercase
// CDP resource types.
func blockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if alias, ok := resourceAliases[t]; ok {
			t = alias
		}
		if t != "" {
			set[t] = true
		}
	}
	return set
}

// shouldBlock never blocks documents: a blocked main document would turn
// every load into a navigation error.
func shouldBlock(set map[string]bool, resType proto.NetworkResourceType) bool {
	t := strings.ToLower(string(resType))
	if t == "document" {
		return false
	}
	return set[t]
}

// applyResourceBlocking fails matching requests before they leave Chrome.
// The returned router must be stopped when the page is closed.
func applyResourceBlocking(page *rod.Page, types []string) (*rod.HijackRouter, error) {
	set := blockSet(types)
	if len(set) == 0 {
		return nil, nil
	}

	router := page.HijackRequests()
	err := router.Add("*", "", func(ctx *rod.Hijack) {
		if shouldBlock(set, ctx.Request.Type()) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}
