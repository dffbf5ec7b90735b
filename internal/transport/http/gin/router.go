package httpgin

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ticketera/reserva/internal/domain"
	redisrepo "github.com/ticketera/reserva/internal/repository/redis"
	"github.com/ticketera/reserva/internal/service"
	"github.com/ticketera/reserva/internal/service/admin"
	"github.com/ticketera/reserva/internal/service/checkout"
	"github.com/ticketera/reserva/internal/service/orders"
	"github.com/ticketera/reserva/internal/service/query"
	"github.com/ticketera/reserva/internal/service/reservation"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	webhookSecret string,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/availability", handleGetAvailability(svcs))

	r.POST("/checkout/reserve", handleReserve(svcs, idem))

	r.GET("/reservations/:id", handleGetReservation(svcs))
	r.POST("/reservations/:id/payment", handleInitiatePayment(svcs))
	r.POST("/reservations/:id/cancel", handleCancelReservation(svcs))

	r.POST("/payments/webhook", handleWebhook(svcs, webhookSecret))

	r.GET("/orders/:id", handleGetOrder(svcs))

	// Admin-API
	// TODO: add admin middleware
	adm := r.Group("/admin")
	{
		adm.POST("/events", handleCreateEvent(svcs))
		adm.POST("/events/:id/ticket-types", handleAddTicketTypes(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Get event
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.Event
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Query.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, e, "public, max-age=60", true)
	}
}

// @Summary  Per-ticket-type availability
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.EventAvailability
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		avail, err := svcs.Query.Availability(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 5s, counts go stale fast
		writeJSONWithCache(c, http.StatusOK, avail, "public, max-age=5", true)
	}
}

// @Summary  Reserve tickets (idempotent)
// @Param    req body  ReserveRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} ReserveResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "insufficient inventory / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /checkout/reserve [post]
func handleReserve(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReserveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemReserve(req.UserID, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		items := make([]reservation.ItemRequest, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, reservation.ItemRequest{
				TicketTypeID: it.TicketTypeID,
				Quantity:     it.Quantity,
			})
		}

		res, _, err := svcs.Reservation.Reserve(c.Request.Context(), reservation.ReserveParams{
			UserID:   req.UserID,
			EventID:  req.EventID,
			Items:    items,
			Platform: domain.Platform(req.Platform),
			SellerID: req.SellerID,
			RateKey:  "ip:" + c.ClientIP(),
		})
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if errors.Is(err, reservation.ErrRateLimited) {
				c.Header("Retry-After", "60")
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
				return
			}
			respondErr(c, err)
			return
		}

		resp := ReserveResponse{
			ReservationID: res.ID.String(),
			ExpiresAt:     res.ExpiresAt,
			TotalCents:    res.TotalCents,
			FeeCents:      res.FeeCents,
			Currency:      res.Currency,
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Get reservation
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Success  200 {object} ReservationResponse
// @Failure  404 {object} ErrorResponse
// @Router   /reservations/{id} [get]
func handleGetReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		res, items, err := svcs.Reservation.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ReservationResponse{
			ReservationID: res.ID.String(),
			Status:        res.Status,
			ExpiresAt:     res.ExpiresAt,
			TotalCents:    res.TotalCents,
			FeeCents:      res.FeeCents,
			Currency:      res.Currency,
			Items:         items,
		})
	}
}

// @Summary  Initiate payment for a reservation
// @Param    id   path  string  true  "Reservation ID (uuid)"
// @Param    req  body  InitiatePaymentRequest true "payload"
// @Success  200 {object} InitiatePaymentResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "reservation expired or lapsed"
// @Router   /reservations/{id}/payment [post]
func handleInitiatePayment(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req InitiatePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		session, err := svcs.Checkout.InitiatePayment(c.Request.Context(), id, checkout.Billing{
			Name:  req.BillingName,
			Email: req.BillingEmail,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, InitiatePaymentResponse{
			SessionID:   session.SessionID,
			RedirectURL: session.RedirectURL,
		})
	}
}

// @Summary  Cancel reservation
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Success  200 {object} map[string]string
// @Failure  404 {object} ErrorResponse
// @Router   /reservations/{id}/cancel [post]
func handleCancelReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Reservation.Cancel(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
	}
}

// @Summary  Payment gateway webhook
// @Param    req body  WebhookRequest true "payload"
// @Success  200 {object} WebhookResponse
// @Failure  401 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /payments/webhook [post]
func handleWebhook(svcs *service.Services, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret != "" {
			got := c.GetHeader("X-Webhook-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid webhook secret"})
				return
			}
		}

		var req WebhookRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		out, err := svcs.Checkout.ConfirmPayment(
			c.Request.Context(),
			req.SessionID,
			req.Result == "success",
		)
		if err != nil {
			// The money left the customer but the hold is gone. Acknowledge
			// the delivery so the gateway stops retrying; the case is logged
			// and counted for manual refund.
			if errors.Is(err, checkout.ErrPaymentForLapsedReservation) {
				c.JSON(http.StatusOK, WebhookResponse{Status: "lapsed"})
				return
			}
			respondErr(c, err)
			return
		}

		if out == nil {
			c.JSON(http.StatusOK, WebhookResponse{Status: "ignored"})
			return
		}

		c.JSON(http.StatusOK, WebhookResponse{
			OrderID: out.Order.ID.String(),
			Status:  "paid",
		})
	}
}

// @Summary  Get order with tickets
// @Param    id  path  string  true  "Order ID (uuid)"
// @Success  200 {object} domain.OrderWithTickets
// @Failure  404 {object} ErrorResponse
// @Router   /orders/{id} [get]
func handleGetOrder(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		o, err := svcs.Orders.GetOrderWithTickets(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// @Summary  Create event (optionally with ticket types)
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} CreateEventResponse
// @Failure  409 {object} ErrorResponse
// @Router   /admin/events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		status := domain.EventStatus(req.Status)
		if status == "" {
			status = domain.EventActive
		}

		types := make([]domain.TicketType, 0, len(req.TicketTypes))
		for _, in := range req.TicketTypes {
			types = append(types, in.toDomain())
		}

		id, err := svcs.Admin.CreateEvent(c.Request.Context(), domain.Event{
			OrganizationID: req.OrganizationID,
			Title:          req.Title,
			Status:         status,
			SalesStart:     req.SalesStart,
			SalesEnd:       req.SalesEnd,
		}, types)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEventResponse{EventID: id})
	}
}

// @Summary  Add ticket types to an event
// @Param    id   path  int  true  "Event ID"
// @Param    req  body  AddTicketTypesRequest true "payload"
// @Success  201 {object} map[string]int
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Router   /admin/events/{id}/ticket-types [post]
func handleAddTicketTypes(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req AddTicketTypesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		types := make([]domain.TicketType, 0, len(req.TicketTypes))
		for _, in := range req.TicketTypes {
			types = append(types, in.toDomain())
		}

		if err := svcs.Admin.AddTicketTypes(c.Request.Context(), eventID, types); err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"created": len(types)})
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// admin service
	case errors.Is(err, admin.ErrEventConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event conflict"})
	case errors.Is(err, admin.ErrTicketTypeConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "ticket type conflict"})
	case errors.Is(err, admin.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	// orders service
	case errors.Is(err, orders.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
	// query service
	case errors.Is(err, query.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	// reservation service
	case errors.Is(err, reservation.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, reservation.ErrTicketTypeNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket type not found"})
	case errors.Is(err, reservation.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "reservation not found"})
	case errors.Is(err, reservation.ErrEventNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event is not active"})
	case errors.Is(err, reservation.ErrOutsideSaleWindow):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "outside sale window"})
	case errors.Is(err, reservation.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: quantityMessage(err)})
	case errors.Is(err, reservation.ErrInsufficientInventory):
		c.JSON(http.StatusConflict, ErrorResponse{Error: inventoryMessage(err)})
	// checkout service
	case errors.Is(err, checkout.ErrReservationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "reservation not found"})
	case errors.Is(err, checkout.ErrReservationExpired):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "reservation expired"})
	case errors.Is(err, checkout.ErrReservationLapsed):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "reservation already finished"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func inventoryMessage(err error) string {
	var e reservation.InsufficientInventoryError
	if errors.As(err, &e) {
		return e.Error()
	}
	return "insufficient inventory"
}

func quantityMessage(err error) string {
	var e reservation.InvalidQuantityError
	if errors.As(err, &e) {
		return e.Error()
	}
	return "invalid quantity"
}
