package pagehttp

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/keithlinneman/pageman/internal/dispatch"
	"github.com/keithlinneman/pageman/internal/pages"
	"github.com/keithlinneman/pageman/internal/xerrors"
)

// multipartMemory bounds in-memory multipart parsing; MaxBody caps the total.
const multipartMemory = 1 << 20

// actionRequest mirrors the editor form fields.
type actionRequest struct {
	Action       string  `json:"action"`
	Page         string  `json:"page"`
	Content      *string `json:"content"`
	Comment      string  `json:"comment"`
	File         string  `json:"file"`
	NewComment   *string `json:"new_comment"`
	NewPageName  string  `json:"new_page_name"`
	PageToManage string  `json:"page_to_manage"`
}

// invocation maps the request onto a dispatch call. Lifecycle actions name
// their target in page_to_manage, falling back to page.
func (ar actionRequest) invocation() dispatch.Invocation {
	inv := dispatch.Invocation{
		Action: dispatch.Action(ar.Action),
		Page:   ar.Page,
		Payload: dispatch.Payload{
			Comment:     ar.Comment,
			File:        ar.File,
			NewComment:  ar.NewComment,
			NewPageName: ar.NewPageName,
		},
	}
	if ar.Content != nil {
		inv.Payload.Content = []byte(*ar.Content)
	}
	switch inv.Action {
	case dispatch.DeletePage, dispatch.GenerateSecret, dispatch.ResetSecret:
		if ar.PageToManage != "" {
			inv.Page = ar.PageToManage
		}
	}
	return inv
}

// HandleAction serves POST /api/actions with a JSON, urlencoded or multipart
// body.
func (api *API) HandleAction(w http.ResponseWriter, r *http.Request) {
	ar, err := parseAction(r)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	out, err := api.disp.Dispatch(r.Context(), credential(r), ar.invocation())
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(r.Context(), w, http.StatusOK, out)
}

func parseAction(r *http.Request) (actionRequest, error) {
	var ar actionRequest
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		return ar, decodeJSON(r, &ar)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return ar, err
		}
		return ar, xerrors.Mark(xerrors.Wrap(err, "parse form"), pages.ErrInvalidInput)
	}
	f := r.PostForm
	ar.Action = f.Get("action")
	ar.Page = f.Get("page")
	if v, ok := f["content"]; ok && len(v) > 0 {
		ar.Content = &v[0]
	}
	ar.Comment = f.Get("comment")
	ar.File = f.Get("file")
	if v, ok := f["new_comment"]; ok && len(v) > 0 {
		ar.NewComment = &v[0]
	}
	ar.NewPageName = f.Get("new_page_name")
	ar.PageToManage = f.Get("page_to_manage")
	return ar, nil
}

// decodeJSON reads one JSON object. Syntax errors are invalid input; an
// oversized body keeps its *http.MaxBytesError.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return xerrors.Mark(xerrors.Wrap(err, "decode request"), pages.ErrInvalidInput)
	}
	return nil
}
