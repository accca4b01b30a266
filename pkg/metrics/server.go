package metrics

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// StartServer serves /metrics, and /readyz when ready is non-nil, on port
// until the returned shutdown func is called. A long build stays scrapeable
// while it runs.
func StartServer(port int, ready http.Handler) (shutdown func(context.Context) error) {
	routes := map[string]http.Handler{"/metrics": Handler()}
	if ready != nil {
		routes["/readyz"] = ready
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      newMux(routes),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr, "routes", len(routes))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}

// newMux mounts routes and an index page linking to each of them.
func newMux(routes map[string]http.Handler) *http.ServeMux {
	paths := make([]string, 0, len(routes))
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.Handle(path, h)
		paths = append(paths, path)
	}
	sort.Strings(paths)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>bsbi index builder</h1><ul>")
		for _, p := range paths {
			p = html.EscapeString(p)
			fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`, p, p)
		}
		fmt.Fprint(w, "</ul></body></html>")
	})
	return mux
}
