// Package httpapi exposes the lottery services over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/R3E-Network/lottery_layer/internal/app"
	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/metrics"
	"github.com/R3E-Network/lottery_layer/internal/app/services/inventory"
	"github.com/R3E-Network/lottery_layer/internal/app/services/prizes"
	"github.com/R3E-Network/lottery_layer/internal/app/services/validation"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/R3E-Network/lottery_layer/internal/config"
	apperrors "github.com/R3E-Network/lottery_layer/internal/errors"
	"github.com/R3E-Network/lottery_layer/internal/httputil"
	"github.com/R3E-Network/lottery_layer/internal/middleware"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

const (
	dateLayout = "2006-01-02"

	// maxUploadBytes caps combination file uploads.
	maxUploadBytes = 16 << 20
	maxBatchSize   = 50
)

// Options configures the HTTP surface.
type Options struct {
	Auth        config.AuthConfig
	CORSOrigins []string
	// RateLimiter is optional; nil disables per-client limiting.
	RateLimiter *middleware.RateLimiter
	// AuditPath appends admin audit entries as JSON lines when set.
	AuditPath string
	// Health reports backing store health on /healthz.
	Health func(ctx context.Context) error
}

type handler struct {
	app      *app.Application
	log      *logger.Logger
	audit    *auditTrail
	health   func(ctx context.Context) error
	validate *validator.Validate
	now      func() time.Time
}

// NewHandler returns the routed API.
func NewHandler(application *app.Application, opts Options, log *logger.Logger) (http.Handler, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	var sink auditSink
	if opts.AuditPath != "" {
		fs, err := newFileAuditSink(opts.AuditPath)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		sink = fs
	}
	h := &handler{
		app:      application,
		log:      log,
		audit:    newAuditTrail(500, sink),
		health:   opts.Health,
		validate: validator.New(),
		now:      time.Now,
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, apperrors.NotFound("route", ""))
	})
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(metrics.InstrumentHandler)
	if opts.RateLimiter != nil {
		r.Use(opts.RateLimiter.Handler)
	}
	r.Use(middleware.NewAuthMiddleware(opts.Auth.JWTSecret, log, []string{"/healthz", "/metrics"}).Handler)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	user := r.PathPrefix("/v1/me").Subrouter()
	user.Use(middleware.RequireUserID)
	user.HandleFunc("/bets", h.placeBets).Methods(http.MethodPost)
	user.HandleFunc("/bets", h.listBets).Methods(http.MethodGet)
	user.HandleFunc("/bets/{id}", h.getBet).Methods(http.MethodGet)
	user.HandleFunc("/balance", h.getBalance).Methods(http.MethodGet)

	admin := r.PathPrefix("/v1/admin").Subrouter()
	admin.Use(middleware.RequireAdminKey(opts.Auth.AdminKeys))
	admin.Use(h.auditMiddleware)
	admin.HandleFunc("/lotteries", h.createLottery).Methods(http.MethodPost)
	admin.HandleFunc("/lotteries/{id}/combinations", h.uploadCombinations).Methods(http.MethodPost)
	admin.HandleFunc("/lotteries/{id}/plans", h.createPlan).Methods(http.MethodPost)
	admin.HandleFunc("/lotteries/{id}/results", h.deliverResult).Methods(http.MethodPost)
	admin.HandleFunc("/plans/{id}/activate", h.activatePlan).Methods(http.MethodPost)
	admin.HandleFunc("/prize-types", h.createPrizeType).Methods(http.MethodPost)
	admin.HandleFunc("/prize-types", h.listPrizeTypes).Methods(http.MethodGet)
	admin.HandleFunc("/users/{user}/deposits", h.deposit).Methods(http.MethodPost)
	admin.HandleFunc("/sync", h.syncResults).Methods(http.MethodPost)
	admin.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)

	r.HandleFunc("/v1/lotteries", h.listLotteries).Methods(http.MethodGet)
	r.HandleFunc("/v1/lotteries/{id}", h.getLottery).Methods(http.MethodGet)
	r.HandleFunc("/v1/lotteries/{id}/available", h.available).Methods(http.MethodGet)
	r.HandleFunc("/v1/lotteries/{id}/summary", h.summary).Methods(http.MethodGet)
	r.HandleFunc("/v1/lotteries/{id}/results", h.lastResults).Methods(http.MethodGet)
	r.HandleFunc("/v1/lotteries/{id}/results/{date}", h.drawResults).Methods(http.MethodGet)

	return middleware.NewCORSMiddleware(opts.CORSOrigins).Handler(r), nil
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.WithError(err).Warn("health check failed")
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- public -----------------------------------------------------------------

func (h *handler) listLotteries(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	lots, err := h.app.Query.Lotteries(r.Context(), activeOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lots)
}

func (h *handler) getLottery(w http.ResponseWriter, r *http.Request) {
	lot, err := h.app.Query.Lottery(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lot)
}

func (h *handler) available(w http.ResponseWriter, r *http.Request) {
	numbers, err := h.app.Query.AvailableNumbers(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("series"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, numbers)
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fractions, err := intParam(q.Get("fractions"), 1)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.app.Query.Summary(r.Context(), mux.Vars(r)["id"], q.Get("number"), q.Get("series"), fractions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *handler) lastResults(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := h.app.Query.Lottery(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.app.Query.LastResults(r.Context(), id, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *handler) drawResults(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	drawDate, err := parseDate("date", vars["date"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.app.Query.DrawResults(r.Context(), vars["id"], drawDate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// --- user -------------------------------------------------------------------

type placeBetsRequest struct {
	Bets []validation.BetRequest `json:"bets" validate:"required,min=1"`
}

func (h *handler) placeBets(w http.ResponseWriter, r *http.Request) {
	var req placeBetsRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(req.Bets) > maxBatchSize {
		httputil.WriteError(w, apperrors.Validation(fmt.Sprintf("at most %d bets per request", maxBatchSize)))
		return
	}
	receipt, err := h.app.Admission.PlaceBatch(r.Context(), middleware.GetUserID(r.Context()), req.Bets)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *handler) listBets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := lottery.BetFilter{
		UserID:    middleware.GetUserID(r.Context()),
		LotteryID: q.Get("lottery_id"),
		Status:    lottery.BetStatus(strings.ToUpper(q.Get("status"))),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		httputil.WriteError(w, err)
		return
	}
	for name, dst := range map[string]**time.Time{"draw_date": &filter.DrawDate, "from": &filter.From, "to": &filter.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		d, err := parseDate(name, raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if name == "to" {
			d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		*dst = &d
	}

	bets, err := h.app.Query.History(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bets)
}

func (h *handler) getBet(w http.ResponseWriter, r *http.Request) {
	b, err := h.app.Query.Bet(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *handler) getBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	available, err := h.app.Balances.Available(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"), 20)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	txs, err := h.app.Balances.GetTransactions(r.Context(), userID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      userID,
		"balance":      available,
		"transactions": txs,
	})
}

// --- admin ------------------------------------------------------------------

func (h *handler) createLottery(w http.ResponseWriter, r *http.Request) {
	var lot lottery.Lottery
	if err := httputil.DecodeJSON(r.Body, &lot); err != nil {
		httputil.WriteError(w, err)
		return
	}
	lot.Code = strings.ToUpper(strings.TrimSpace(lot.Code))
	lot.Normalize()
	if err := lot.Validate(); err != nil {
		httputil.WriteError(w, apperrors.Validation(err.Error()))
		return
	}

	ctx := r.Context()
	_, err := h.app.Stores.Lotteries.GetLotteryByCode(ctx, lot.Code)
	switch {
	case err == nil:
		httputil.WriteError(w, apperrors.Conflict("LOTTERY_EXISTS", "lottery %s already exists", lot.Code))
		return
	case !errors.Is(err, storage.ErrNotFound):
		httputil.WriteError(w, err)
		return
	}

	created, err := h.app.Stores.Lotteries.CreateLottery(ctx, lot)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.log.WithField("lottery", created.Code).Info("lottery created")
	httputil.WriteJSON(w, http.StatusCreated, created)
}

type combinationUpload struct {
	Report inventory.ImportReport `json:"report"`
	Stats  storage.RefreshStats   `json:"stats"`
}

// uploadCombinations replaces the offered inventory of one draw with a CSV
// body. The draw defaults to the lottery's next draw.
func (h *handler) uploadCombinations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lot, err := h.app.Query.Lottery(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := r.URL.Query()
	layout, err := inventory.LayoutByName(q.Get("layout"))
	if err != nil {
		httputil.WriteError(w, apperrors.Validation(err.Error()))
		return
	}
	drawDate := lot.DrawDateAt(h.now())
	if raw := q.Get("draw_date"); raw != "" {
		if drawDate, err = parseDate("draw_date", raw); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	defer body.Close()
	entries, report, err := inventory.ParseCombinations(body, lot, layout)
	if err != nil {
		httputil.WriteError(w, apperrors.Validation(err.Error()))
		return
	}
	stats, err := h.app.Inventory.Refresh(ctx, lot, drawDate, entries)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, combinationUpload{Report: report, Stats: stats})
}

type prizeRequest struct {
	TypeCode       string          `json:"type_code" validate:"required"`
	Name           string          `json:"name" validate:"max=120"`
	Amount         decimal.Decimal `json:"amount"`
	FractionAmount decimal.Decimal `json:"fraction_amount"`
	Quantity       int             `json:"quantity" validate:"gte=0"`
}

type planRequest struct {
	Name         string         `json:"name" validate:"required,max=120"`
	SorteoNumber int            `json:"sorteo_number" validate:"gte=0"`
	StartDate    string         `json:"start_date" validate:"required"`
	EndDate      string         `json:"end_date"`
	Active       bool           `json:"is_active"`
	Prizes       []prizeRequest `json:"prizes" validate:"required,min=1,dive"`
}

func (h *handler) createPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req planRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	lot, err := h.app.Query.Lottery(ctx, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	plan := lottery.PrizePlan{Name: req.Name, SorteoNumber: req.SorteoNumber, Active: req.Active}
	if plan.StartDate, err = parseDate("start_date", req.StartDate); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.EndDate != "" {
		end, err := parseDate("end_date", req.EndDate)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		plan.EndDate = &end
	}
	for _, pr := range req.Prizes {
		pt, err := h.app.Prizes.PrizeType(ctx, pr.TypeCode)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		p := prizes.NewPrize(pt, pr.Name, pr.Amount, lot.FractionCount)
		if !pr.FractionAmount.IsZero() {
			p.FractionAmount = pr.FractionAmount
		}
		if pr.Quantity > 0 {
			p.Quantity = pr.Quantity
		}
		plan.Prizes = append(plan.Prizes, p)
	}

	created, err := h.app.Prizes.CreatePlan(ctx, lot, plan)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) activatePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.app.Prizes.ActivatePlan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, plan)
}

func (h *handler) createPrizeType(w http.ResponseWriter, r *http.Request) {
	var pt lottery.PrizeType
	if err := httputil.DecodeJSON(r.Body, &pt); err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.app.Prizes.CreatePrizeType(r.Context(), pt)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) listPrizeTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.app.Stores.Prizes.ListPrizeTypes(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, types)
}

type secoRequest struct {
	Number string `json:"number" validate:"required,numeric"`
	Series string `json:"series" validate:"omitempty,numeric"`
	Label  string `json:"label"`
}

type resultRequest struct {
	DrawDate string        `json:"draw_date" validate:"required"`
	Number   string        `json:"number" validate:"required,numeric"`
	Series   string        `json:"series" validate:"omitempty,numeric"`
	Secos    []secoRequest `json:"secos" validate:"dive"`
}

func (h *handler) deliverResult(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	drawDate, err := parseDate("draw_date", req.DrawDate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res := lottery.Result{
		LotteryID: mux.Vars(r)["id"],
		DrawDate:  drawDate,
		Number:    req.Number,
		Series:    req.Series,
	}
	for _, s := range req.Secos {
		res.Secos = append(res.Secos, lottery.SecoPrize{Number: s.Number, Series: s.Series, Label: s.Label})
	}

	delivery, err := h.app.Results.Deliver(r.Context(), res)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if delivery.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, delivery)
}

type depositRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" validate:"max=64"`
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := h.decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !req.Amount.IsPositive() {
		httputil.WriteError(w, apperrors.Validation("amount must be positive"))
		return
	}
	acct, err := h.app.Balances.Deposit(r.Context(), mux.Vars(r)["user"], req.Amount, req.Reference)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acct)
}

func (h *handler) syncResults(w http.ResponseWriter, r *http.Request) {
	report, err := h.app.Results.Sync(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.audit.recent(limit, r.URL.Query().Get("lottery")))
}

// --- helpers ----------------------------------------------------------------

// decode reads a JSON body and checks its validate tags.
func (h *handler) decode(r *http.Request, dst interface{}) error {
	if err := httputil.DecodeJSON(r.Body, dst); err != nil {
		return err
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperrors.Validation(err.Error())
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
		}
		return apperrors.Validation(msgs...)
	}
	return nil
}

func parseDate(name, raw string) (time.Time, error) {
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, apperrors.Validation(fmt.Sprintf("%s must be a YYYY-MM-DD date", name))
	}
	return d, nil
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Validation(fmt.Sprintf("invalid integer %q", raw))
	}
	return n, nil
}
