package pagehttp

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/pageman/internal/httpmw"
	"github.com/keithlinneman/pageman/internal/log"
	"github.com/keithlinneman/pageman/internal/pages"
)

// SitePrefix is where published pages are served.
const SitePrefix = "/p/"

// PageVersionHeader carries the published version id, when known.
const PageVersionHeader = "X-Page-Version"

// Site serves published artifacts without credentials.
type Site struct {
	engine *pages.Engine
	logger log.Logger
}

func NewSite(engine *pages.Engine, logger log.Logger) *Site {
	if logger == nil {
		logger = log.Nop()
	}
	return &Site{engine: engine, logger: logger}
}

func (s *Site) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httpmw.Handler("site"))
		r.Get(SitePrefix+"{page}", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, SitePrefix+chi.URLParam(r, "page")+"/", http.StatusMovedPermanently)
		})
		r.Get(SitePrefix+"{page}/*", s.ServePage)
		r.Head(SitePrefix+"{page}/*", s.ServePage)
	})
}

// ServePage writes the published artifact. Names that need sanitizing never
// match a page, so they 404 instead of aliasing another page.
func (s *Site) ServePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := chi.URLParam(r, "page")
	page, err := pages.SanitizeName(raw)
	if err != nil || page != raw || chi.URLParam(r, "*") != "" {
		notFound(w)
		return
	}

	body, err := s.engine.ReadPublished(ctx, page)
	switch {
	case errors.Is(err, pages.ErrNotFound), errors.Is(err, pages.ErrInvalidInput):
		notFound(w)
		return
	case err != nil:
		log.FromContext(ctx).Error(ctx, err, "serve published page", "page", page)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if st, err := s.engine.State(ctx, page); err == nil && st.PublishedVersion != "" {
		w.Header().Set(PageVersionHeader, st.PublishedVersion.String())
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	http.Error(w, "page not found", http.StatusNotFound)
}
