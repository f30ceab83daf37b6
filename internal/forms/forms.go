// Package forms binds and validates the post and comment forms.
package forms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/storage"
)

const (
	MsgRequired      = "This field is required."
	MsgInvalidChoice = "Select a valid choice. That choice is not one of the available choices."
	MsgInvalidImage  = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."
	MsgImageTooLarge = "Image is too large."
)

// Errors maps a field name to its messages.
type Errors map[string][]string

func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Get returns the first message for field, or "".
func (e Errors) Get(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (e Errors) Any() bool { return len(e) > 0 }

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msgs := range e {
		parts = append(parts, field+": "+strings.Join(msgs, " "))
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// GroupFinder resolves the submitted group choice.
type GroupFinder interface {
	GetGroup(ctx context.Context, id int64) (*models.Group, error)
}

// Upload is a file received with a form.
type Upload struct {
	Filename string
	Data     []byte
	TooLarge bool
}

// PostForm carries the raw post fields and, once valid, the cleaned ones.
type PostForm struct {
	Text       string
	GroupID    string
	Image      *Upload
	ClearImage bool

	Group     *models.Group
	ImageInfo *Image
}

// CommentForm carries the comment text.
type CommentForm struct {
	Text string
}

// Validate checks every field and fills Group and ImageInfo on success.
func (f *PostForm) Validate(ctx context.Context, groups GroupFinder) (Errors, error) {
	errs := Errors{}

	f.Text = strings.TrimSpace(f.Text)
	if f.Text == "" {
		errs.Add("text", MsgRequired)
	}

	f.Group = nil
	if raw := strings.TrimSpace(f.GroupID); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs.Add("group", MsgInvalidChoice)
		} else {
			group, err := groups.GetGroup(ctx, id)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				errs.Add("group", MsgInvalidChoice)
			case err != nil:
				return nil, fmt.Errorf("failed to look up group %d: %w", id, err)
			default:
				f.Group = group
			}
		}
	}

	f.ImageInfo = nil
	if f.Image != nil {
		switch {
		case f.Image.TooLarge:
			errs.Add("image", MsgImageTooLarge)
		default:
			info, err := DetectImage(f.Image.Data)
			if err != nil {
				errs.Add("image", MsgInvalidImage)
			} else {
				f.ImageInfo = info
			}
		}
	}

	if errs.Any() {
		return errs, nil
	}
	return nil, nil
}

// GroupIDPtr is the cleaned group id, nil when no group was chosen.
func (f *PostForm) GroupIDPtr() *int64 {
	if f.Group == nil {
		return nil
	}
	id := f.Group.ID
	return &id
}

func (f *CommentForm) Validate() Errors {
	f.Text = strings.TrimSpace(f.Text)
	if f.Text == "" {
		return Errors{"text": {MsgRequired}}
	}
	return nil
}

// formOverhead is the room left for the text fields next to the image.
const formOverhead = 1 << 20

// ParsePost binds a post form from a multipart or urlencoded request.
// Files larger than maxUpload bytes are marked TooLarge, not read. A body
// larger than maxUpload plus the form overhead is cut off while reading and
// yields a form whose image is marked TooLarge.
func ParsePost(w http.ResponseWriter, r *http.Request, maxUpload int64) (*PostForm, error) {
	form := &PostForm{}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+formOverhead)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err = r.ParseMultipartForm(maxUpload + formOverhead); err != nil {
			err = fmt.Errorf("failed to parse multipart form: %w", err)
		}
	} else if err = r.ParseForm(); err != nil {
		err = fmt.Errorf("failed to parse form: %w", err)
	}
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		form.Image = &Upload{TooLarge: true}
		return form, nil
	case err != nil:
		return nil, err
	}

	form.Text = r.PostFormValue("text")
	form.GroupID = r.PostFormValue("group")
	form.ClearImage = r.PostFormValue("image-clear") != ""

	if r.MultipartForm == nil {
		return form, nil
	}
	headers := r.MultipartForm.File["image"]
	if len(headers) == 0 || headers[0].Size == 0 {
		return form, nil
	}
	upload, err := readUpload(headers[0], maxUpload)
	if err != nil {
		return nil, err
	}
	form.Image = upload
	return form, nil
}

func readUpload(h *multipart.FileHeader, maxUpload int64) (*Upload, error) {
	upload := &Upload{Filename: h.Filename}
	if h.Size > maxUpload {
		upload.TooLarge = true
		return upload, nil
	}

	f, err := h.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxUpload {
		upload.TooLarge = true
		return upload, nil
	}
	upload.Data = data
	return upload, nil
}

// ParseComment binds the comment form.
func ParseComment(r *http.Request) (*CommentForm, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	return &CommentForm{Text: r.PostFormValue("text")}, nil
}
