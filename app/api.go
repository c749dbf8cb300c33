package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/classwatch/classwatch/config"
	"github.com/classwatch/classwatch/lib"
	"github.com/classwatch/classwatch/lib/models"
	"github.com/classwatch/classwatch/lib/poller"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service, poll *poller.Poller) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc, poll)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service, poll *poller.Poller) http.Handler {
	ctrl := &controller{cfg, log, svc, poll}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/cron/poll", ctrl.runPoll)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", ctrl.login)
			r.Get("/verify", ctrl.verify)
			r.Post("/unsubscribe", ctrl.unsubscribe)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", ctrl.requireAuth(ctrl.listSubscriptions))
			r.Post("/", ctrl.requireAuth(ctrl.createSubscription))
			r.Delete("/{subscription_id}", ctrl.requireAuth(ctrl.deleteSubscription))
		})

		r.Route("/classes", func(r chi.Router) {
			r.Get("/search", ctrl.searchClass)
			r.Get("/sections", ctrl.liveSections)
			r.Get("/cached-sections", ctrl.cachedSections)
		})
	})

	return r
}

type controller struct {
	cfg  *config.Config
	log  *zap.Logger
	svc  *lib.Service
	poll *poller.Poller
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Error("Request failed", "error", err)
		return
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

func (ctrl *controller) rejectFor(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lib.ErrInvalidEmail),
		errors.Is(err, lib.ErrInvalidToken),
		errors.Is(err, lib.ErrAlreadySubscribed):
		status = http.StatusBadRequest
	case errors.Is(err, lib.ErrClassNotFound),
		errors.Is(err, lib.ErrSubscriptionNotFound):
		status = http.StatusNotFound
	}
	ctrl.reject(w, status, err)
}

// runPoll triggers one poll cycle. The shared secret is the whole credential;
// external schedulers are expected to serialize their triggers.
func (ctrl *controller) runPoll(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(ctrl.cfg.CronSecret)) != 1 {
		ctrl.reject(w, http.StatusUnauthorized, errors.New("Unauthorized"))
		return
	}

	result := ctrl.poll.Run(r.Context())
	ctrl.resolve(w, http.StatusOK, PollView{}.From(result))
}

func (ctrl *controller) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ctrl.reject(w, http.StatusBadRequest, errors.New("Email is required"))
		return
	}

	if _, err := ctrl.svc.LoginUser(ctx, body.Email); err != nil {
		ctrl.rejectFor(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Check your email for a login link!",
	})
}

func (ctrl *controller) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.URL.Query().Get("token")

	user, err := ctrl.svc.VerifyToken(ctx, token)
	if err != nil {
		ctrl.rejectFor(w, err)
		return
	}
	if err := ctrl.issueSession(w, user); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"success": true, "email": user.Email})
}

func (ctrl *controller) unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		ctrl.reject(w, http.StatusBadRequest, errors.New("Email is required"))
		return
	}

	if err := ctrl.svc.UnsubscribeAll(ctx, body.Email); err != nil {
		ctrl.rejectFor(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "If this email was registered, it has been unsubscribed.",
	})
}

func (ctrl *controller) listSubscriptions(w http.ResponseWriter, r *http.Request, user *models.User) {
	subs, err := ctrl.svc.ListSubscriptions(r.Context(), user.ID)
	if err != nil {
		ctrl.rejectFor(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"subscriptions": FromMany[lib.SubscriptionStatus, SubscriptionView](subs),
	})
}

func (ctrl *controller) createSubscription(w http.ResponseWriter, r *http.Request, user *models.User) {
	var body struct {
		Subject    string `json:"subject"`
		CatalogNbr string `json:"catalogNbr"`
		Title      string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ctrl.reject(w, http.StatusBadRequest, errors.New("Subject and catalog number are required"))
		return
	}

	sub, err := ctrl.svc.CreateSubscription(r.Context(), user.ID, body.Subject, body.CatalogNbr, body.Title)
	if err != nil {
		ctrl.rejectFor(w, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, map[string]any{
		"subscription": SubscriptionView{}.From(lib.SubscriptionStatus{Subscription: *sub}),
	})
}

func (ctrl *controller) deleteSubscription(w http.ResponseWriter, r *http.Request, user *models.User) {
	id := parseInt(chi.URLParam(r, "subscription_id"))

	if err := ctrl.svc.DeleteSubscription(r.Context(), user.ID, id); err != nil {
		ctrl.rejectFor(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"success": true})
}

func (ctrl *controller) searchClass(w http.ResponseWriter, r *http.Request) {
	subject, catalogNbr, err := classParams(r)
	if err != nil {
		ctrl.reject(w, http.StatusBadRequest, err)
		return
	}

	record, err := ctrl.svc.SearchClass(r.Context(), subject, catalogNbr)
	if err != nil {
		ctrl.rejectFor(w, err)
		return
	}
	if record == nil {
		ctrl.resolve(w, http.StatusOK, map[string]any{"found": false, "message": "Class not found"})
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"found": true,
		"class": ClassView{}.From(record),
	})
}

func (ctrl *controller) liveSections(w http.ResponseWriter, r *http.Request) {
	subject, catalogNbr, err := classParams(r)
	if err != nil {
		ctrl.reject(w, http.StatusBadRequest, err)
		return
	}

	refresh, err := ctrl.svc.RefreshSections(r.Context(), subject, catalogNbr)
	if err != nil {
		ctrl.rejectFor(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"sections":       FromMany[models.SectionStatus, SectionView](refresh.Sections),
		"total":          len(refresh.Sections),
		"cacheUpdated":   true,
		"statusChanged":  refresh.StatusChanged,
		"previousStatus": refresh.PreviousOpen,
		"newStatus":      refresh.NowOpen,
	})
}

func (ctrl *controller) cachedSections(w http.ResponseWriter, r *http.Request) {
	subject, catalogNbr, err := classParams(r)
	if err != nil {
		ctrl.reject(w, http.StatusBadRequest, err)
		return
	}

	secs, err := ctrl.svc.CachedSections(r.Context(), subject, catalogNbr)
	if err != nil {
		ctrl.rejectFor(w, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"sections":  FromMany[models.SectionStatus, SectionView](secs),
		"total":     len(secs),
		"fromCache": true,
	})
}

func classParams(r *http.Request) (subject, catalogNbr string, err error) {
	subject = r.URL.Query().Get("subject")
	catalogNbr = r.URL.Query().Get("catalogNbr")
	if subject == "" || catalogNbr == "" {
		err = errors.New("Subject and catalogNbr are required")
	}
	return
}

func parseInt(s string) uint {
	u, _ := strconv.ParseUint(s, 10, 64)
	return uint(u)
}
