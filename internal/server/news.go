package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"newsdesk/internal/apperr"
	"newsdesk/internal/blob"
	"newsdesk/internal/model"
	"newsdesk/internal/services"

	"github.com/gorilla/mux"
)

const maxUploadBytes = 32 << 20

// localLayouts are the HTML datetime-local forms, read in the configured
// location.
var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}

func parseDate(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("invalid date %q", raw)
}

// articleForm is the body of create and update requests. Fields are nil when
// the client did not send them.
type articleForm struct {
	Title       *string `json:"title"`
	Text        *string `json:"text"`
	PublishDate *string `json:"publishDate"`

	image *blob.Object
	file  *blob.Object
	files []multipart.File
}

func (f *articleForm) close() {
	for _, mf := range f.files {
		_ = mf.Close()
	}
}

func (s *Server) readArticleForm(w http.ResponseWriter, r *http.Request) (*articleForm, error) {
	f := &articleForm{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data", "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(maxUploadBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return nil, apperr.Validation("invalid form body")
		}

		f.Title = formValue(r, "title")
		f.Text = formValue(r, "text")
		if f.Text == nil {
			f.Text = formValue(r, "content")
		}
		f.PublishDate = formValue(r, "publishDate")

		if f.image, err = f.attachment(r, "image"); err != nil {
			f.close()
			return nil, err
		}
		if f.file, err = f.attachment(r, "file"); err != nil {
			f.close()
			return nil, err
		}
	default:
		if err := json.NewDecoder(r.Body).Decode(f); err != nil {
			return nil, apperr.Validation("invalid request body")
		}
	}
	return f, nil
}

func formValue(r *http.Request, key string) *string {
	vs, ok := r.PostForm[key]
	if !ok || len(vs) == 0 {
		return nil
	}
	return &vs[0]
}

func (f *articleForm) attachment(r *http.Request, field string) (*blob.Object, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	mf, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	} else if err != nil {
		return nil, apperr.Validation("invalid %s upload", field)
	}
	f.files = append(f.files, mf)
	return &blob.Object{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        mf,
	}, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (s *Server) handleCreateNews(w http.ResponseWriter, r *http.Request) {
	form, err := s.readArticleForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer form.close()

	publishAt, err := parseDate(deref(form.PublishDate), s.opts.Location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	a, err := s.articles.Create(r.Context(), callerFrom(r.Context()), services.CreateArticleInput{
		Title:     deref(form.Title),
		Text:      deref(form.Text),
		PublishAt: publishAt,
		Image:     form.image,
		File:      form.file,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleUpdateNews(w http.ResponseWriter, r *http.Request) {
	form, err := s.readArticleForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer form.close()

	a, err := s.articles.Update(r.Context(), callerFrom(r.Context()), mux.Vars(r)["id"], services.UpdateArticleInput{
		Title: form.Title,
		Text:  form.Text,
		Image: form.image,
		File:  form.file,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type publishBody struct {
	Date string `json:"date"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var body publishBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, apperr.Validation("invalid request body"))
		return
	}

	at, err := parseDate(body.Date, s.opts.Location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	a, err := s.articles.Publish(r.Context(), callerFrom(r.Context()), mux.Vars(r)["id"], at)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteNews(w http.ResponseWriter, r *http.Request) {
	if err := s.articles.Delete(r.Context(), callerFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "article deleted"})
}

func (s *Server) handleGetNews(w http.ResponseWriter, r *http.Request) {
	a, err := s.articles.Get(r.Context(), callerFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleListNews(w http.ResponseWriter, r *http.Request) {
	s.writeList(w, r, s.articles.List)
}

func (s *Server) handleListPublished(w http.ResponseWriter, r *http.Request) {
	s.writeList(w, r, s.articles.ListPublished)
}

func (s *Server) writeList(w http.ResponseWriter, r *http.Request, list func(ctx context.Context) ([]model.Article, error)) {
	articles, err := list(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}
