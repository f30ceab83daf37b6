package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ButyrinIA/blog/internal/auth"
	"github.com/ButyrinIA/blog/internal/forms"
	"github.com/ButyrinIA/blog/internal/models"
	"github.com/ButyrinIA/blog/internal/paginate"
	"github.com/ButyrinIA/blog/internal/service"
	"github.com/ButyrinIA/blog/internal/storage"
)

type basePage struct {
	Viewer *models.User
	Path   string
}

type listPage struct {
	basePage
	Title   string
	Group   *models.Group
	Profile *service.Profile
	Page    *paginate.Page[*models.PostView]
}

type postPage struct {
	basePage
	Detail *service.PostDetail
	Form   *forms.CommentForm
	Errors forms.Errors
}

type postFormPage struct {
	basePage
	Action string
	Post   *models.Post
	Form   *forms.PostForm
	Errors forms.Errors
	Groups []*models.Group
}

type authPage struct {
	basePage
	Signup   bool
	Username string
	Next     string
	Error    string
}

func (s *Server) base(r *http.Request) basePage {
	viewer, _ := auth.UserFrom(r.Context())
	return basePage{Viewer: viewer, Path: r.URL.Path}
}

func viewerID(r *http.Request) int64 {
	if viewer, ok := auth.UserFrom(r.Context()); ok {
		return viewer.ID
	}
	return 0
}

// mustViewer is only called behind RequireLogin.
func mustViewer(r *http.Request) *models.User {
	viewer, _ := auth.UserFrom(r.Context())
	return viewer
}

func postID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["post_id"], 10, 64)
	return id, err == nil
}

func postURL(username string, id int64) string {
	return "/" + username + "/" + strconv.FormatInt(id, 10) + "/"
}

func (s *Server) page(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if err := s.render.render(w, status, name, data); err != nil {
		s.logger.Error("failed to render page", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, http.StatusNotFound, "404.html", s.base(r))
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, http.StatusInternalServerError, "500.html", s.base(r))
}

// fail maps a handler error to a response page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.notFound(w, r)
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		s.serverError(w, r)
	}
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	page, err := s.blog.ListAll(r.Context(), r.URL.Query().Get("page"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.page(w, r, http.StatusOK, "list.html", listPage{basePage: s.base(r), Title: "Latest posts", Page: page})
}

func (s *Server) groupPosts(w http.ResponseWriter, r *http.Request) {
	group, page, err := s.blog.ListByGroup(r.Context(), mux.Vars(r)["slug"], r.URL.Query().Get("page"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.page(w, r, http.StatusOK, "list.html", listPage{basePage: s.base(r), Title: group.Title, Group: group, Page: page})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.blog.ListByAuthor(r.Context(), viewerID(r), mux.Vars(r)["username"], r.URL.Query().Get("page"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.page(w, r, http.StatusOK, "list.html", listPage{
		basePage: s.base(r),
		Title:    "Posts by @" + profile.Author.Username,
		Profile:  profile,
		Page:     profile.Page,
	})
}

func (s *Server) followIndex(w http.ResponseWriter, r *http.Request) {
	page, err := s.blog.ListFeed(r.Context(), mustViewer(r).ID, r.URL.Query().Get("page"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.page(w, r, http.StatusOK, "list.html", listPage{basePage: s.base(r), Title: "Following", Page: page})
}

func (s *Server) postView(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	detail, err := s.blog.GetPost(r.Context(), viewerID(r), mux.Vars(r)["username"], id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.page(w, r, http.StatusOK, "post.html", postPage{basePage: s.base(r), Detail: detail, Form: &forms.CommentForm{}})
}

func (s *Server) postForm(w http.ResponseWriter, r *http.Request, status int, data postFormPage) {
	groups, err := s.blog.Groups(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data.basePage = s.base(r)
	data.Groups = groups
	s.page(w, r, status, "post_form.html", data)
}

func (s *Server) newPost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.postForm(w, r, http.StatusOK, postFormPage{Action: "/new/", Form: &forms.PostForm{}})
		return
	}

	form, err := forms.ParsePost(w, r, s.cfg.Media.MaxUploadBytes)
	if err != nil {
		s.logger.Debug("unreadable post form", "error", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err = s.blog.CreatePost(r.Context(), mustViewer(r).ID, form)
	var errs forms.Errors
	switch {
	case errors.As(err, &errs):
		s.postForm(w, r, http.StatusBadRequest, postFormPage{Action: "/new/", Form: form, Errors: errs})
	case err != nil:
		s.fail(w, r, err)
	default:
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func (s *Server) postEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	username := mux.Vars(r)["username"]
	viewer := mustViewer(r)
	action := postURL(username, id) + "edit/"

	post, err := s.blog.PostForEdit(r.Context(), viewer.ID, username, id)
	switch {
	case errors.Is(err, service.ErrForbidden):
		http.Redirect(w, r, postURL(username, id), http.StatusFound)
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}

	if r.Method != http.MethodPost {
		form := &forms.PostForm{Text: post.Text}
		if post.GroupID != nil {
			form.GroupID = strconv.FormatInt(*post.GroupID, 10)
		}
		s.postForm(w, r, http.StatusOK, postFormPage{Action: action, Post: post, Form: form})
		return
	}

	form, err := forms.ParsePost(w, r, s.cfg.Media.MaxUploadBytes)
	if err != nil {
		s.logger.Debug("unreadable post form", "error", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err = s.blog.EditPost(r.Context(), viewer.ID, username, id, form)
	var errs forms.Errors
	switch {
	case errors.As(err, &errs):
		s.postForm(w, r, http.StatusBadRequest, postFormPage{Action: action, Post: post, Form: form, Errors: errs})
	case errors.Is(err, service.ErrForbidden):
		http.Redirect(w, r, postURL(username, id), http.StatusFound)
	case err != nil:
		s.fail(w, r, err)
	default:
		http.Redirect(w, r, postURL(username, id), http.StatusFound)
	}
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	username := mux.Vars(r)["username"]

	err := s.blog.DeletePost(r.Context(), mustViewer(r).ID, username, id)
	switch {
	case errors.Is(err, service.ErrForbidden):
		http.Redirect(w, r, postURL(username, id), http.StatusFound)
	case err != nil:
		s.fail(w, r, err)
	default:
		http.Redirect(w, r, "/"+username+"/", http.StatusFound)
	}
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	username := mux.Vars(r)["username"]

	form, err := forms.ParseComment(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err = s.blog.AddComment(r.Context(), mustViewer(r).ID, username, id, form)
	var errs forms.Errors
	switch {
	case errors.As(err, &errs):
		detail, derr := s.blog.GetPost(r.Context(), viewerID(r), username, id)
		if derr != nil {
			s.fail(w, r, derr)
			return
		}
		s.page(w, r, http.StatusBadRequest, "post.html", postPage{basePage: s.base(r), Detail: detail, Form: form, Errors: errs})
	case err != nil:
		s.fail(w, r, err)
	default:
		http.Redirect(w, r, postURL(username, id), http.StatusFound)
	}
}

func (s *Server) profileFollow(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	res, err := s.blog.Follow(r.Context(), mustViewer(r).ID, username)
	switch {
	case errors.Is(err, service.ErrSelfFollow):
		s.logger.Info("ignoring self follow", "username", username)
	case err != nil:
		s.fail(w, r, err)
		return
	default:
		s.logger.Debug("follow", "username", username, "result", res.String())
	}
	http.Redirect(w, r, "/"+username+"/", http.StatusFound)
}

func (s *Server) profileUnfollow(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	res, err := s.blog.Unfollow(r.Context(), mustViewer(r).ID, username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Debug("unfollow", "username", username, "result", res.String())
	http.Redirect(w, r, "/"+username+"/", http.StatusFound)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	data := authPage{basePage: s.base(r), Next: r.URL.Query().Get("next")}
	if r.Method != http.MethodPost {
		s.page(w, r, http.StatusOK, "auth.html", data)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	data.Username = r.PostFormValue("username")
	data.Next = r.PostFormValue("next")

	user, err := s.users.Authenticate(r.Context(), data.Username, r.PostFormValue("password"))
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		data.Error = "Please enter a correct username and password."
		s.page(w, r, http.StatusBadRequest, "auth.html", data)
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}

	if err := s.sessions.Login(w, r, user.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, auth.SafeNext(data.Next), http.StatusFound)
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	data := authPage{basePage: s.base(r), Signup: true}
	if r.Method != http.MethodPost {
		s.page(w, r, http.StatusOK, "auth.html", data)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	data.Username = r.PostFormValue("username")

	user, err := s.users.SignUp(r.Context(), data.Username, r.PostFormValue("password"))
	switch {
	case errors.Is(err, auth.ErrUsernameTaken),
		errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrReservedUsername),
		errors.Is(err, auth.ErrWeakPassword):
		data.Error = err.Error()
		s.page(w, r, http.StatusBadRequest, "auth.html", data)
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}

	if err := s.sessions.Login(w, r, user.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(w, r); err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("failed to clear page cache", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.logger.Info("page cache cleared")
	w.WriteHeader(http.StatusNoContent)
}
