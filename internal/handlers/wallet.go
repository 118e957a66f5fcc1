package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samuelogino/taskpay/internal/middleware"
	"github.com/samuelogino/taskpay/internal/services"
)

type WalletHandler struct {
	walletService *services.WalletService
	renderer      *Renderer
}

func NewWalletHandler(walletService *services.WalletService, renderer *Renderer) *WalletHandler {
	return &WalletHandler{walletService: walletService, renderer: renderer}
}

func (handler *WalletHandler) Pay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	childID := chi.URLParam(r, "childID")

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	amount, err := handler.walletService.PayChild(ctx, identity, childID, r.FormValue("amount"))
	if err != nil {
		handler.renderer.Fail(w, r, err, "/home/parent", "paying child")
		return
	}
	handler.renderer.Redirect(w, r, services.FlashSuccess,
		fmt.Sprintf("Payment of %s %s recorded.", handler.renderer.currency, services.FormatMoney(amount)), "/home/parent")
}

func (handler *WalletHandler) Allowance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	childID := chi.URLParam(r, "childID")

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	amount, err := handler.walletService.GrantAllowance(ctx, identity, childID, r.FormValue("amount"))
	if err != nil {
		handler.renderer.Fail(w, r, err, "/home/parent", "granting allowance")
		return
	}
	handler.renderer.Redirect(w, r, services.FlashSuccess,
		fmt.Sprintf("Allowance of %s %s granted.", handler.renderer.currency, services.FormatMoney(amount)), "/home/parent")
}

func (handler *WalletHandler) Details(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	statement, err := handler.walletService.Statement(ctx, identity, chi.URLParam(r, "childID"))
	if err != nil {
		handler.renderer.Fail(w, r, err, "/home/parent", "loading wallet statement")
		return
	}

	handler.renderer.Render(w, r, http.StatusOK, "wallet_details", Page{
		Title: statement.Child.Name + "'s wallet",
		Data:  statement,
	})
}
