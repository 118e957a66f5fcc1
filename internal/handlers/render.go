package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/samuelogino/taskpay/internal/middleware"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/services"
	"github.com/samuelogino/taskpay/templates"
	"github.com/shopspring/decimal"
)

const genericFailure = "Something went wrong. Please try again."

// Page is the value every view is executed with.
type Page struct {
	Title    string
	Identity models.Identity
	Flashes  []services.Flash
	Errors   services.ValidationErrors
	Form     url.Values
	Currency string
	Data     any
}

// FieldError returns the message for one form field, if any.
func (page Page) FieldError(field string) string {
	for _, fieldError := range page.Errors {
		if fieldError.Field == field {
			return fieldError.Message
		}
	}
	return ""
}

type Renderer struct {
	pages       map[string]*template.Template
	authService *services.AuthService
	currency    string
}

// NewRenderer parses every page together with the shared layout.
func NewRenderer(authService *services.AuthService, currency string) (*Renderer, error) {
	names, err := fs.Glob(templates.FS, "pages/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("listing page templates: %w", err)
	}

	renderer := &Renderer{
		pages:       make(map[string]*template.Template, len(names)),
		authService: authService,
		currency:    currency,
	}
	for _, name := range names {
		page, err := template.New("layout.tmpl").Funcs(templateFuncs(currency)).
			ParseFS(templates.FS, "layout.tmpl", name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		renderer.pages[strings.TrimSuffix(path.Base(name), ".tmpl")] = page
	}
	return renderer, nil
}

func templateFuncs(currency string) template.FuncMap {
	return template.FuncMap{
		"money": func(amount decimal.Decimal) string {
			return currency + " " + services.FormatMoney(amount)
		},
		"moneyPtr": func(amount *decimal.Decimal) string {
			if amount == nil {
				return "-"
			}
			return currency + " " + services.FormatMoney(*amount)
		},
		"formatDate": func(moment time.Time) string {
			return moment.Format("Jan 2, 2006")
		},
		"formatDateTime": func(moment time.Time) string {
			return moment.Format("Jan 2, 2006 15:04")
		},
		"deadline": func(moment *time.Time) string {
			if moment == nil {
				return "No deadline"
			}
			return moment.Format("Jan 2, 2006")
		},
		"deref": func(value *string) string {
			if value == nil {
				return ""
			}
			return *value
		},
		"lower": strings.ToLower,
	}
}

// Render writes a full page. Pending flashes are consumed.
func (renderer *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, page Page) {
	view, ok := renderer.pages[name]
	if !ok {
		slog.Error("rendering unknown template", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if page.Identity.UserID == "" {
		page.Identity = middleware.GetIdentity(r.Context())
	}
	page.Currency = renderer.currency
	page.Flashes = append(renderer.authService.PopFlashes(w, r), page.Flashes...)

	var buffer bytes.Buffer
	if err := view.ExecuteTemplate(&buffer, "layout", page); err != nil {
		slog.Error("rendering template", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buffer.WriteTo(w)
}

// Redirect queues a flash and redirects.
func (renderer *Renderer) Redirect(w http.ResponseWriter, r *http.Request, kind services.FlashKind, message string, target string) {
	renderer.authService.AddFlash(w, r, kind, message)
	http.Redirect(w, r, target, http.StatusFound)
}

// Fail turns a service error into a flash and a redirect to target.
// Unexpected errors are logged under action.
func (renderer *Renderer) Fail(w http.ResponseWriter, r *http.Request, err error, target string, action string) {
	kind, message := classify(err)
	if kind == services.FlashError && message == genericFailure {
		slog.Error(action, "error", err, "path", r.URL.Path)
	}
	renderer.Redirect(w, r, kind, message, target)
}

// Sentinels whose message is safe to show as is.
var (
	warningErrors = []error{
		services.ErrAlreadyApproved,
		services.ErrAlreadyFinalized,
		services.ErrRedemptionProcessed,
	}
	userErrors = []error{
		services.ErrTaskNotActive,
		services.ErrPhotoRequired,
		services.ErrPhotoNotRequired,
		services.ErrPhotoMissing,
		services.ErrUnsupportedFile,
		services.ErrInsufficientXP,
		services.ErrRewardUnavailable,
		services.ErrInvalidAmount,
		services.ErrAmountExceedsBalance,
	}
)

func classify(err error) (services.FlashKind, string) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return services.FlashError, "You are not allowed to do that."
	case errors.Is(err, services.ErrNotFound):
		return services.FlashError, "We could not find what you were looking for."
	}
	for _, sentinel := range warningErrors {
		if errors.Is(err, sentinel) {
			return services.FlashWarning, sentence(sentinel)
		}
	}
	for _, sentinel := range userErrors {
		if errors.Is(err, sentinel) {
			return services.FlashError, sentence(sentinel)
		}
	}
	return services.FlashError, genericFailure
}

func sentence(err error) string {
	message := err.Error()
	if message == "" {
		return message
	}
	return strings.ToUpper(message[:1]) + message[1:] + "."
}

// formUpload reads an optional file field. The returned Upload is empty
// when no file was sent; close must be called once the upload is consumed.
func formUpload(r *http.Request, field string) (services.Upload, func(), error) {
	if r.MultipartForm == nil {
		return services.Upload{}, func() {}, nil
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return services.Upload{}, func() {}, nil
	}
	if err != nil {
		return services.Upload{}, func() {}, err
	}
	return services.Upload{Filename: header.Filename, Size: header.Size, Content: file}, func() { file.Close() }, nil
}
