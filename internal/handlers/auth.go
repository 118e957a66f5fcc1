package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/services"
)

const oauthStateCookie = "oauth_state"

type AuthHandler struct {
	authService *services.AuthService
	renderer    *Renderer
}

func NewAuthHandler(authService *services.AuthService, renderer *Renderer) *AuthHandler {
	return &AuthHandler{authService: authService, renderer: renderer}
}

type authPageData struct {
	SSOEnabled bool
}

func (handler *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if identity, err := handler.authService.CurrentIdentity(r); err == nil {
		http.Redirect(w, r, identity.Role.HomePath(), http.StatusFound)
		return
	}
	handler.renderer.Render(w, r, http.StatusOK, "login", Page{
		Title: "Log in",
		Data:  authPageData{SSOEnabled: handler.authService.OIDCConfigured()},
	})
}

func (handler *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	handler.renderer.Render(w, r, http.StatusOK, "register", Page{Title: "Create an account"})
}

func (handler *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	identity, err := handler.authService.Register(ctx, services.RegisterInput{
		Name:        r.FormValue("name"),
		Email:       r.FormValue("email"),
		Password:    r.FormValue("password"),
		Role:        models.Role(r.FormValue("role")),
		ParentEmail: r.FormValue("parent_email"),
	})

	var validationErrors services.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
	case errors.Is(err, services.ErrEmailTaken):
		validationErrors = services.ValidationErrors{{Field: "email", Message: "this e-mail is already registered"}}
	case errors.Is(err, services.ErrParentNotFound):
		validationErrors = services.ValidationErrors{{Field: "parent_email", Message: "no parent account uses this e-mail"}}
	case err != nil:
		slog.Error("registering user", "error", err)
		handler.renderer.Redirect(w, r, services.FlashError, genericFailure, "/register")
		return
	}
	if validationErrors != nil {
		r.PostForm.Del("password")
		handler.renderer.Render(w, r, http.StatusUnprocessableEntity, "register", Page{
			Title:  "Create an account",
			Errors: validationErrors,
			Form:   r.PostForm,
		})
		return
	}

	handler.startSession(w, r, identity, "Welcome to TaskPay, "+identity.Name+"!")
}

func (handler *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	identity, err := handler.authService.Login(ctx, services.LoginInput{
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		Role:     models.Role(r.FormValue("role")),
	})
	if err != nil {
		page := Page{
			Title: "Log in",
			Form:  r.PostForm,
			Data:  authPageData{SSOEnabled: handler.authService.OIDCConfigured()},
		}
		var validationErrors services.ValidationErrors
		switch {
		case errors.As(err, &validationErrors):
			page.Errors = validationErrors
		case errors.Is(err, services.ErrInvalidCredentials):
			page.Flashes = []services.Flash{{Kind: services.FlashError, Message: "Invalid e-mail or password."}}
		case errors.Is(err, services.ErrRoleMismatch):
			page.Flashes = []services.Flash{{Kind: services.FlashError, Message: "This account has no profile with that role."}}
		default:
			slog.Error("logging in", "error", err)
			page.Flashes = []services.Flash{{Kind: services.FlashError, Message: genericFailure}}
		}
		r.PostForm.Del("password")
		handler.renderer.Render(w, r, http.StatusUnprocessableEntity, "login", page)
		return
	}

	handler.startSession(w, r, identity, "Welcome back, "+identity.Name+"!")
}

func (handler *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, identity models.Identity, greeting string) {
	if err := handler.authService.SetSession(w, r, identity); err != nil {
		slog.Error("setting session", "error", err)
		http.Error(w, "Session error", http.StatusInternalServerError)
		return
	}
	handler.renderer.Redirect(w, r, services.FlashSuccess, greeting, identity.Role.HomePath())
}

func (handler *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	handler.authService.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// SSO starts the OpenID Connect login flow.
func (handler *AuthHandler) SSO(w http.ResponseWriter, r *http.Request) {
	if !handler.authService.OIDCConfigured() {
		handler.renderer.Redirect(w, r, services.FlashError, "Single sign-on is not available.", "/login")
		return
	}

	state, err := handler.authService.GenerateState()
	if err != nil {
		slog.Error("generating state", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})

	http.Redirect(w, r, handler.authService.LoginURL(state), http.StatusFound)
}

func (handler *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing code", http.StatusBadRequest)
		return
	}

	identity, err := handler.authService.HandleCallback(r.Context(), code)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrRoleMismatch):
		handler.renderer.Redirect(w, r, services.FlashError, "No TaskPay account matches that login.", "/login")
		return
	case err != nil:
		slog.Error("handling callback", "error", err)
		handler.renderer.Redirect(w, r, services.FlashError, "Authentication failed.", "/login")
		return
	}

	handler.startSession(w, r, identity, "Welcome back, "+identity.Name+"!")
}
