package pagehttp

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/pageman/internal/auth"
	"github.com/keithlinneman/pageman/internal/dispatch"
	"github.com/keithlinneman/pageman/internal/pages"
)

// run dispatches one action for the {page} in the route.
func (api *API) run(w http.ResponseWriter, r *http.Request, status int, action dispatch.Action, p dispatch.Payload) {
	inv := dispatch.Invocation{Action: action, Page: chi.URLParam(r, "page"), Payload: p}
	out, err := api.disp.Dispatch(r.Context(), credential(r), inv)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(r.Context(), w, status, out)
}

// authorized checks the credential for the route's page and returns the
// sanitized name.
func (api *API) authorized(w http.ResponseWriter, r *http.Request, scope auth.Scope) (string, bool) {
	page, _, err := api.disp.Authorize(r.Context(), credential(r), chi.URLParam(r, "page"), scope)
	if err != nil {
		api.fail(w, r, err)
		return "", false
	}
	return page, true
}

// PageSummary is one row of the admin page list.
type PageSummary struct {
	Name   string `json:"name"`
	Secret string `json:"secret,omitempty"`
}

func (api *API) handleListPages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, _, err := api.disp.Authorize(ctx, credential(r), "", auth.ScopeLifecycle); err != nil {
		api.fail(w, r, err)
		return
	}
	names, err := api.life.ListPages(ctx)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	out := make([]PageSummary, 0, len(names))
	for _, n := range names {
		s, _, err := api.life.PageSecret(ctx, n)
		if err != nil {
			api.fail(w, r, err)
			return
		}
		out = append(out, PageSummary{Name: n, Secret: s})
	}
	api.writeJSON(ctx, w, http.StatusOK, out)
}

type createPageRequest struct {
	Name string `json:"name"`
}

func (api *API) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var req createPageRequest
	if err := decodeJSON(r, &req); err != nil {
		api.fail(w, r, err)
		return
	}
	out, err := api.disp.Dispatch(r.Context(), credential(r), dispatch.Invocation{
		Action:  dispatch.CreatePage,
		Payload: dispatch.Payload{NewPageName: req.Name},
	})
	if err != nil {
		api.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	api.writeJSON(r.Context(), w, status, out)
}

func (api *API) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	api.run(w, r, http.StatusOK, dispatch.DeletePage, dispatch.Payload{})
}

func (api *API) handleGenerateSecret(w http.ResponseWriter, r *http.Request) {
	api.run(w, r, http.StatusOK, dispatch.GenerateSecret, dispatch.Payload{})
}

func (api *API) handleResetSecret(w http.ResponseWriter, r *http.Request) {
	api.run(w, r, http.StatusOK, dispatch.ResetSecret, dispatch.Payload{})
}

// pageView is the status-bar state plus history.
type pageView struct {
	State    pages.PageState     `json:"state"`
	Versions []pages.VersionInfo `json:"versions"`
}

func (api *API) handleState(w http.ResponseWriter, r *http.Request) {
	page, ok := api.authorized(w, r, auth.ScopeContent)
	if !ok {
		return
	}
	ctx := r.Context()
	st, err := api.engine.State(ctx, page)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	hist, err := api.engine.History(ctx, page)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(ctx, w, http.StatusOK, pageView{State: st, Versions: hist})
}

func (api *API) handleReadDraft(w http.ResponseWriter, r *http.Request) {
	page, ok := api.authorized(w, r, auth.ScopeContent)
	if !ok {
		return
	}
	b, err := api.engine.ReadDraft(r.Context(), page)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	writeHTML(w, http.StatusOK, b)
}

func (api *API) handleReadPublished(w http.ResponseWriter, r *http.Request) {
	page, ok := api.authorized(w, r, auth.ScopeContent)
	if !ok {
		return
	}
	b, err := api.engine.ReadPublished(r.Context(), page)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	writeHTML(w, http.StatusOK, b)
}

func (api *API) handleReadVersion(w http.ResponseWriter, r *http.Request) {
	page, ok := api.authorized(w, r, auth.ScopeContent)
	if !ok {
		return
	}
	id, err := pages.ParseVersionID(chi.URLParam(r, "version"))
	if err != nil {
		api.fail(w, r, err)
		return
	}
	b, err := api.engine.ReadVersion(r.Context(), page, id)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	writeHTML(w, http.StatusOK, b)
}

// handleSaveDraft takes the raw request body as the draft.
func (api *API) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.run(w, r, http.StatusOK, dispatch.SaveDraft, dispatch.Payload{Content: body})
}

type loadRequest struct {
	Source string `json:"source"`
}

func (api *API) handleLoadDraft(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := decodeJSON(r, &req); err != nil {
		api.fail(w, r, err)
		return
	}
	api.run(w, r, http.StatusOK, dispatch.LoadToDraft, dispatch.Payload{File: req.Source})
}

type publishRequest struct {
	Content *string `json:"content"`
	Comment string  `json:"comment"`
}

func (api *API) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeJSON(r, &req); err != nil {
		api.fail(w, r, err)
		return
	}
	p := dispatch.Payload{Comment: req.Comment}
	if req.Content != nil {
		p.Content = []byte(*req.Content)
	}
	api.run(w, r, http.StatusCreated, dispatch.Publish, p)
}

func (api *API) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	api.run(w, r, http.StatusOK, dispatch.DeleteVersion, dispatch.Payload{File: chi.URLParam(r, "version")})
}

func (api *API) handleRestore(w http.ResponseWriter, r *http.Request) {
	api.run(w, r, http.StatusOK, dispatch.RestorePublish, dispatch.Payload{File: chi.URLParam(r, "version")})
}

type commentRequest struct {
	Comment *string `json:"comment"`
}

func (api *API) handleEditComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		api.fail(w, r, err)
		return
	}
	api.run(w, r, http.StatusOK, dispatch.EditComment, dispatch.Payload{
		File:       chi.URLParam(r, "version"),
		NewComment: req.Comment,
	})
}
