package server

import (
	"context"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/diewo77/helpdesk-billing/internal/auth"
	"github.com/diewo77/helpdesk-billing/internal/config"
	"github.com/diewo77/helpdesk-billing/internal/handlers"
	"github.com/diewo77/helpdesk-billing/internal/httpx"
	"github.com/diewo77/helpdesk-billing/internal/logger"
	"github.com/diewo77/helpdesk-billing/internal/models"
	"github.com/diewo77/helpdesk-billing/internal/services"
)

// New constructs the root http.Handler with all routes and middlewares applied.
func New(db *gorm.DB, cfg config.Config, sender services.Sender) http.Handler {
	mux := http.NewServeMux()

	// Configure a user verifier so RequireAuth can ensure the user still exists.
	auth.SetUserVerifier(func(_ context.Context, uid uint) bool {
		var count int64
		if err := db.Model(&models.User{}).Where("id = ?", uid).Limit(1).Count(&count).Error; err != nil {
			return false
		}
		return count > 0
	})

	// --- Health endpoints ---
	//revive:disable:unused-parameter simple handlers intentionally ignore *http.Request
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	//revive:enable:unused-parameter

	// Auth endpoints
	authHandler := handlers.NewAuthHandler(db)
	authHandler.Register(mux)

	invSvc := services.NewInvoiceService(db, sender, cfg.PublicBase)
	paySvc := services.NewPaymentService(db)
	rateSvc := services.NewRateService(db)

	ih := handlers.NewInvoiceHandler(db, invSvc)
	ph := handlers.NewPaymentHandler(paySvc, invSvc)
	rh := handlers.NewRateHandler(rateSvc)
	bh := handlers.NewBillableItemHandler(db)
	th := handlers.NewTimeEntryHandler(db)

	protect := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(auth.RequireAuth(h))
	}
	getPost := func(get, post http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				get(w, r)
			case http.MethodPost:
				post(w, r)
			default:
				w.Header().Set("Allow", "GET,POST")
				httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
			}
		}
	}
	postOnly := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				w.Header().Set("Allow", "POST")
				httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
				return
			}
			h(w, r)
		}
	}

	// Invoices
	mux.Handle("/invoices", protect(getPost(ih.List, ih.Create)))
	mux.Handle("/invoices/show", protect(ih.Show))
	mux.Handle("/invoices/update", protect(postOnly(ih.Update)))
	mux.Handle("/invoices/delete", protect(postOnly(ih.Delete)))
	mux.Handle("/invoices/send", protect(postOnly(ih.Send)))
	mux.Handle("/invoices/void", protect(postOnly(ih.Void)))
	mux.Handle("/invoices/items", protect(postOnly(ih.AddItems)))
	mux.Handle("/invoices/items/delete", protect(postOnly(ih.RemoveItem)))
	mux.Handle("/invoices/overdue-sweep", protect(postOnly(ih.OverdueSweep)))

	// Payment ledger
	mux.Handle("/invoices/payments", protect(getPost(ph.List, ph.Record)))
	mux.Handle("/invoices/payments/delete", protect(postOnly(ph.Delete)))

	// Rates
	mux.Handle("/rate-categories", protect(getPost(rh.ListCategories, rh.CreateCategory)))
	mux.Handle("/rate-categories/update", protect(postOnly(rh.UpdateCategory)))
	mux.Handle("/rate-categories/delete", protect(postOnly(rh.DeleteCategory)))
	mux.Handle("/project-rates", protect(getPost(rh.ListProjectRates, rh.CreateProjectRate)))
	mux.Handle("/project-rates/effective", protect(rh.EffectiveRate))

	// Catalog
	mux.Handle("/billable-items", protect(getPost(bh.List, bh.Create)))
	mux.Handle("/billable-items/update", protect(postOnly(bh.Update)))
	mux.Handle("/billable-items/delete", protect(postOnly(bh.Delete)))

	// Unbilled time for the invoice editor
	mux.Handle("/time-entries/unbilled", protect(th.ListUnbilled))

	// Public invoice view by unguessable uuid; no session required.
	mux.HandleFunc("/public/invoices", ih.PublicShow)

	return withRecover(withLogging(mux))
}

func withLogging(next http.Handler) http.Handler {
	lg := logger.WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		lg.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func withRecover(next http.Handler) http.Handler {
	lg := logger.WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				lg.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
