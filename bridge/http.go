package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/webtex/encode"
	"github.com/hazyhaar/webtex/frame"
	"github.com/hazyhaar/webtex/kit"
	"github.com/hazyhaar/webtex/shield"
)

// Routes mounts the HTTP API on r:
//
//	POST /load        {"url": "..."}       → 202 {"cycle": n}
//	POST /{action}    reload|back|forward|stop
//	POST /scroll      {"dy": n}            → 202 {"cycle": n}
//	GET  /frame       latest encoded frame (ETag = frame id)
//	GET  /frame/meta  latest frame metadata
//	GET  /status      pipeline snapshot
//	GET  /health
func (b *Bridge) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		for _, mw := range shield.DefaultStack() {
			r.Use(mw)
		}

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, map[string]string{"status": "ok"})
		})

		load := kit.Chain(kit.Logging(b.logger, "http_load"))(func(ctx context.Context, req any) (any, error) {
			return b.dispatch(ctx, req.(*loadReq))
		})

		r.Post("/load", func(w http.ResponseWriter, r *http.Request) {
			var req loadReq
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			req.Action = "load"
			b.serveCommand(w, r, load, &req)
		})

		r.Post("/{action:reload|back|forward|stop}", func(w http.ResponseWriter, r *http.Request) {
			b.serveCommand(w, r, load, &loadReq{Action: chi.URLParam(r, "action")})
		})

		r.Post("/scroll", func(w http.ResponseWriter, r *http.Request) {
			var req loadReq
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
			req.Action = "scroll"
			b.serveCommand(w, r, load, &req)
		})

		r.Get("/frame", func(w http.ResponseWriter, r *http.Request) {
			f, ok := b.LatestFrame()
			if !ok {
				writeError(w, 404, errNoFrame)
				return
			}
			etag := `"` + f.ID + `"`
			w.Header().Set("ETag", etag)
			w.Header().Set("X-Webtex-Cycle", strconv.FormatUint(f.Cycle, 10))
			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("Content-Type", encode.ContentType(f.Format))
			w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
			w.WriteHeader(200)
			w.Write(f.Data)
		})

		r.Get("/frame/meta", func(w http.ResponseWriter, _ *http.Request) {
			f, ok := b.LatestFrame()
			if !ok {
				writeError(w, 404, errNoFrame)
				return
			}
			writeJSON(w, 200, frame.MetaOf(f))
		})

		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, 200, b.Status())
		})
	})
}

func (b *Bridge) serveCommand(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req *loadReq) {
	resp, err := ep(r.Context(), req)
	if err != nil {
		code := 500
		var ce *frame.ConfigError
		if errors.As(err, &ce) {
			code = 400
			if ce.Field == "bridge" || ce.Field == "callback" {
				code = 503
			}
		}
		shield.GetLogger(r.Context()).Warn("bridge: command rejected", "action", req.Action, "error", err)
		writeError(w, code, err)
		return
	}
	writeJSON(w, 202, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
