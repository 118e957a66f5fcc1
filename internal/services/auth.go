package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/securecookie"
	"github.com/samuelogino/taskpay/internal/config"
	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

var (
	ErrEmailTaken         = errors.New("e-mail already registered")
	ErrParentNotFound     = errors.New("no parent account with that e-mail")
	ErrInvalidCredentials = errors.New("invalid e-mail or password")
	ErrRoleMismatch       = errors.New("account has no profile with that role")
	ErrSSONotConfigured   = errors.New("single sign-on not configured")
)

const (
	sessionCookieName  = "session"
	flashCookieName    = "flash"
	calendarCookieName = "calendar"
	sessionMaxAge      = 86400 * 30
)

type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashWarning FlashKind = "warning"
	FlashError   FlashKind = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    FlashKind `json:"kind"`
	Message string    `json:"message"`
}

type SessionData struct {
	UserID   string      `json:"user_id"`
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
	MemberID string      `json:"member_id"`
	FamilyID string      `json:"family_id"`
}

type RegisterInput struct {
	Name        string      `form:"name" validate:"required,max=100"`
	Email       string      `form:"email" validate:"required,email,max=254"`
	Password    string      `form:"password" validate:"required,min=6,max=72"`
	Role        models.Role `form:"role" validate:"required,oneof=PARENT CHILD"`
	ParentEmail string      `form:"parent_email" validate:"omitempty,email"`
}

type LoginInput struct {
	Email    string      `form:"email" validate:"required"`
	Password string      `form:"password" validate:"required"`
	Role     models.Role `form:"role" validate:"required,oneof=PARENT CHILD"`
}

type AuthService struct {
	database       *sql.DB
	oauthConfig    *oauth2.Config
	oidcVerifier   *oidc.IDTokenVerifier
	secureCookie   *securecookie.SecureCookie
	calendarCookie *securecookie.SecureCookie
	userRepo       repository.UserRepository
	memberRepo     repository.MemberRepository
	currency       string
}

func NewAuthService(ctx context.Context, cfg config.Config, db *sql.DB) (*AuthService, error) {
	service := &AuthService{
		database:     db,
		secureCookie: securecookie.New([]byte(cfg.SessionSecret), nil),
		// Calendar subscription links never expire.
		calendarCookie: securecookie.New([]byte(cfg.SessionSecret), nil).MaxAge(0),
		userRepo:       repository.NewUserRepository(db),
		memberRepo:     repository.NewMemberRepository(db),
		currency:       cfg.Currency,
	}
	if service.currency == "" {
		service.currency = "BRL"
	}

	if cfg.OIDCIssuer == "" {
		slog.Info("OIDC not configured, single sign-on disabled")
		return service, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
	if err != nil {
		return nil, fmt.Errorf("creating OIDC provider: %w", err)
	}

	service.oauthConfig = &oauth2.Config{
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	service.oidcVerifier = provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID})
	return service, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(password string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Register creates a user and their member profile. A parent starts a new
// family; a child joins the family of the parent named by ParentEmail.
func (service *AuthService) Register(ctx context.Context, input RegisterInput) (models.Identity, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = repository.NormalizeEmail(input.Email)
	input.ParentEmail = repository.NormalizeEmail(input.ParentEmail)
	if err := validateInput(input); err != nil {
		return models.Identity{}, err
	}
	if input.Role == models.RoleChild && input.ParentEmail == "" {
		return models.Identity{}, ValidationErrors{{Field: "parent_email", Message: "parent e-mail is required"}}
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return models.Identity{}, err
	}

	var identity models.Identity
	err = database.WithTx(ctx, service.database, func(transaction *sql.Tx) error {
		users := repository.NewUserRepository(transaction)
		members := repository.NewMemberRepository(transaction)

		_, err := users.FindByEmail(ctx, input.Email)
		if err == nil {
			return ErrEmailTaken
		}
		if !repository.IsNotFound(err) {
			return err
		}

		var familyID string
		switch input.Role {
		case models.RoleParent:
			family, err := repository.NewFamilyRepository(transaction).Create(ctx, models.Family{
				Name: input.Name + "'s family",
				Plan: models.PlanFree,
			})
			if err != nil {
				return err
			}
			familyID = family.ID
		case models.RoleChild:
			parentUser, err := users.FindByEmail(ctx, input.ParentEmail)
			if repository.IsNotFound(err) {
				return ErrParentNotFound
			}
			if err != nil {
				return err
			}
			parentMember, err := members.FindByUserAndRole(ctx, parentUser.ID, models.RoleParent)
			if repository.IsNotFound(err) {
				return ErrParentNotFound
			}
			if err != nil {
				return err
			}
			familyID = parentMember.FamilyID
		}

		user, err := users.Create(ctx, models.User{
			Name:         input.Name,
			Email:        input.Email,
			PasswordHash: passwordHash,
		})
		if err != nil {
			return err
		}

		member, err := members.Create(ctx, models.Member{
			UserID:   user.ID,
			FamilyID: familyID,
			Role:     input.Role,
		})
		if err != nil {
			return err
		}

		if _, err := repository.NewWalletRepository(transaction).Ensure(ctx, member.ID, service.currency); err != nil {
			return err
		}
		if _, err := repository.NewProgressRepository(transaction).Ensure(ctx, member.ID); err != nil {
			return err
		}

		identity = models.Identity{
			UserID:   user.ID,
			MemberID: member.ID,
			FamilyID: familyID,
			Role:     member.Role,
			Name:     user.Name,
			Email:    user.Email,
		}
		return nil
	})
	if err != nil {
		return models.Identity{}, fmt.Errorf("registering user: %w", err)
	}

	slog.Info("registered user", "user_id", identity.UserID, "role", identity.Role, "family_id", identity.FamilyID)
	return identity, nil
}

// Login checks the password and resolves the member profile for the
// requested role.
func (service *AuthService) Login(ctx context.Context, input LoginInput) (models.Identity, error) {
	if err := validateInput(input); err != nil {
		return models.Identity{}, err
	}

	user, err := service.userRepo.FindByEmail(ctx, input.Email)
	if repository.IsNotFound(err) {
		return models.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("logging in: %w", err)
	}
	if !CheckPassword(input.Password, user.PasswordHash) {
		return models.Identity{}, ErrInvalidCredentials
	}

	member, err := service.memberRepo.FindByUserAndRole(ctx, user.ID, input.Role)
	if repository.IsNotFound(err) {
		return models.Identity{}, ErrRoleMismatch
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("logging in: %w", err)
	}

	return identityOf(member), nil
}

func identityOf(member models.Member) models.Identity {
	return models.Identity{
		UserID:   member.UserID,
		MemberID: member.ID,
		FamilyID: member.FamilyID,
		Role:     member.Role,
		Name:     member.Name,
		Email:    member.Email,
	}
}

func (service *AuthService) OIDCConfigured() bool {
	return service.oauthConfig != nil
}

func (service *AuthService) LoginURL(state string) string {
	if service.oauthConfig == nil {
		return ""
	}
	return service.oauthConfig.AuthCodeURL(state)
}

func (service *AuthService) GenerateState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// HandleCallback signs in an existing user whose e-mail matches the
// verified ID token. Accounts are never created through SSO.
func (service *AuthService) HandleCallback(ctx context.Context, code string) (models.Identity, error) {
	if service.oauthConfig == nil {
		return models.Identity{}, ErrSSONotConfigured
	}

	token, err := service.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return models.Identity{}, fmt.Errorf("exchanging code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return models.Identity{}, errors.New("no id_token in response")
	}

	idToken, err := service.oidcVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return models.Identity{}, fmt.Errorf("verifying id token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return models.Identity{}, fmt.Errorf("parsing claims: %w", err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return models.Identity{}, ErrInvalidCredentials
	}

	user, err := service.userRepo.FindByEmail(ctx, claims.Email)
	if repository.IsNotFound(err) {
		return models.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("finding sso user: %w", err)
	}

	// Parents sort first, so a user holding both profiles signs in as parent.
	members, err := service.memberRepo.FindByUser(ctx, user.ID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("finding sso member: %w", err)
	}
	if len(members) == 0 {
		return models.Identity{}, ErrRoleMismatch
	}
	return identityOf(members[0]), nil
}

func (service *AuthService) SetSession(w http.ResponseWriter, r *http.Request, identity models.Identity) error {
	data := SessionData{
		UserID:   identity.UserID,
		Email:    identity.Email,
		Name:     identity.Name,
		Role:     identity.Role,
		MemberID: identity.MemberID,
		FamilyID: identity.FamilyID,
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	value, err := service.secureCookie.Encode(sessionCookieName, string(encoded))
	if err != nil {
		return fmt.Errorf("encoding session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   sessionMaxAge,
	})
	return nil
}

func (service *AuthService) GetSession(r *http.Request) (SessionData, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return SessionData{}, fmt.Errorf("no session cookie: %w", err)
	}

	var decoded string
	if err := service.secureCookie.Decode(sessionCookieName, cookie.Value, &decoded); err != nil {
		return SessionData{}, fmt.Errorf("decoding session cookie: %w", err)
	}

	var session SessionData
	if err := json.Unmarshal([]byte(decoded), &session); err != nil {
		return SessionData{}, fmt.Errorf("unmarshaling session: %w", err)
	}
	return session, nil
}

func (service *AuthService) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// CurrentIdentity resolves the session against the database so a deleted
// member or a changed name takes effect immediately.
func (service *AuthService) CurrentIdentity(r *http.Request) (models.Identity, error) {
	session, err := service.GetSession(r)
	if err != nil {
		return models.Identity{}, err
	}
	if !session.Role.Valid() {
		return models.Identity{}, fmt.Errorf("invalid session role %q", session.Role)
	}

	member, err := service.memberRepo.FindByID(r.Context(), session.MemberID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("finding session member: %w", err)
	}
	if member.UserID != session.UserID || member.Role != session.Role {
		return models.Identity{}, errors.New("session does not match member")
	}
	return identityOf(member), nil
}

// AddFlash queues a message for the next rendered page.
func (service *AuthService) AddFlash(w http.ResponseWriter, r *http.Request, kind FlashKind, message string) {
	flashes := service.readFlashes(r)
	flashes = append(flashes, Flash{Kind: kind, Message: message})

	encoded, err := json.Marshal(flashes)
	if err != nil {
		slog.Error("marshaling flash", "error", err)
		return
	}
	value, err := service.secureCookie.Encode(flashCookieName, string(encoded))
	if err != nil {
		slog.Error("encoding flash cookie", "error", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlashes returns the queued messages and clears them.
func (service *AuthService) PopFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := service.readFlashes(r)
	if len(flashes) > 0 {
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
		})
	}
	return flashes
}

func (service *AuthService) readFlashes(r *http.Request) []Flash {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return nil
	}

	var decoded string
	if err := service.secureCookie.Decode(flashCookieName, cookie.Value, &decoded); err != nil {
		return nil
	}

	var flashes []Flash
	if err := json.Unmarshal([]byte(decoded), &flashes); err != nil {
		return nil
	}
	return flashes
}

// CalendarToken signs a family id for use in a calendar subscription URL.
func (service *AuthService) CalendarToken(familyID string) (string, error) {
	token, err := service.calendarCookie.Encode(calendarCookieName, familyID)
	if err != nil {
		return "", fmt.Errorf("encoding calendar token: %w", err)
	}
	return token, nil
}

func (service *AuthService) FamilyFromCalendarToken(token string) (string, error) {
	var familyID string
	if err := service.calendarCookie.Decode(calendarCookieName, token, &familyID); err != nil {
		return "", fmt.Errorf("decoding calendar token: %w", err)
	}
	return familyID, nil
}
