package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/blog"
)

// ListPosts returns every post, newest first.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.Blog.List(r.Context())
	if err != nil {
		internalError(w, r, "list posts", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range posts {
			encodePost(e, p)
		}
		e.ArrEnd()
	})
}

// GetPost returns the post addressed by slug.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.Blog.Get(r.Context(), r.PathValue("slug"))
	if err != nil {
		blogError(w, r, "get post", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePost(e, *p)
	})
}

// CreatePost publishes a post.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var p blog.Post
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "slug":
			p.Slug, err = d.Str()
		case "title":
			p.Title, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "content":
			p.Content, err = d.Str()
		case "imageUrl":
			p.ImageURL, err = d.Str()
		case "author":
			p.Author, err = d.Str()
		case "tags":
			p.Tags, err = decodeStrings(d)
		case "publishedAt":
			p.PublishedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if !ok {
		return
	}

	created, err := h.Blog.Create(r.Context(), p)
	if err != nil {
		blogError(w, r, "create post", err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodePost(e, *created)
	})
}

// UpdatePost changes the fields present in the body.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var patch blog.Patch
	ok := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "slug":
			return decodeStrPtr(d, &patch.Slug)
		case "title":
			return decodeStrPtr(d, &patch.Title)
		case "description":
			return decodeStrPtr(d, &patch.Description)
		case "content":
			return decodeStrPtr(d, &patch.Content)
		case "imageUrl":
			return decodeStrPtr(d, &patch.ImageURL)
		case "author":
			return decodeStrPtr(d, &patch.Author)
		case "tags":
			tags, err := decodeStrings(d)
			patch.Tags = &tags
			return err
		case "publishedAt":
			t, err := decodeTime(d)
			patch.PublishedAt = &t
			return err
		default:
			return d.Skip()
		}
	})
	if !ok {
		return
	}

	updated, err := h.Blog.Update(r.Context(), r.PathValue("slug"), patch)
	if err != nil {
		blogError(w, r, "update post", err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePost(e, *updated)
	})
}

// DeletePost removes the post addressed by slug.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.Blog.Delete(r.Context(), r.PathValue("slug")); err != nil {
		blogError(w, r, "delete post", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func blogError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var fe *blog.FieldError
	switch {
	case errors.As(err, &fe):
		writeFieldError(w, fe.Field, err.Error())
	case errors.Is(err, blog.ErrNoChanges):
		writeError(w, http.StatusBadRequest, blog.ErrNoChanges.Error())
	case errors.Is(err, blog.ErrNotFound):
		writeError(w, http.StatusNotFound, "post not found")
	case errors.Is(err, blog.ErrSlugTaken):
		writeError(w, http.StatusConflict, "slug already in use")
	default:
		internalError(w, r, op, err)
	}
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

func encodePost(e *jx.Encoder, p blog.Post) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("slug")
	e.Str(p.Slug)
	e.FieldStart("title")
	e.Str(p.Title)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("content")
	e.Str(p.Content)
	if p.ImageURL != "" {
		e.FieldStart("imageUrl")
		e.Str(p.ImageURL)
	}
	e.FieldStart("author")
	e.Str(p.Author)
	e.FieldStart("tags")
	e.ArrStart()
	for _, t := range p.Tags {
		e.Str(t)
	}
	e.ArrEnd()
	e.FieldStart("publishedAt")
	encodeTime(e, p.PublishedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}
