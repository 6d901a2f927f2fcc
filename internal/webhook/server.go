// Package webhook принимает события payment.succeeded от платёжного
// провайдера. Дубликаты получают 200, внутренние сбои 500: провайдеру
// безопасно повторить доставку, идемпотентность обеспечивает журнал.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/axidi/photoai-bot/internal/models"
	"github.com/axidi/photoai-bot/internal/service"
	"github.com/axidi/photoai-bot/utils"
)

type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, ev models.PaymentEvent) error
}

type Server struct {
	echo    *echo.Echo
	service PaymentProcessor
	logger  *utils.Logger
}

type paymentEvent struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}

func NewServer(svc PaymentProcessor, logger *utils.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, service: svc, logger: logger}

	e.POST("/webhook", s.handleWebhook)
	e.POST("/test_webhook", s.handleWebhook)
	e.GET("/health", s.handleHealth)

	return s
}

func (s *Server) Start(addr string) error {
	s.logger.Infof("Webhook server listening on %s", addr)
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler отдаёт http.Handler для тестов.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleWebhook(c echo.Context) error {
	var data paymentEvent
	if err := c.Bind(&data); err != nil {
		s.logger.Errorf("Malformed webhook payload: %v", err)
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": "malformed payload"})
	}

	requestID := uuid.NewString()
	s.logger.Infof("Webhook received: event=%s request_id=%s", data.Event, requestID)

	switch data.Event {
	case "test_event":
		return c.JSON(http.StatusOK, echo.Map{"status": "test_ok"})
	case "payment.succeeded":
	default:
		return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
	}

	ev, err := parsePaymentEvent(&data)
	if err != nil {
		s.logger.Errorf("Invalid payment event (request_id=%s): %v", requestID, err)
		return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": err.Error()})
	}

	if err := s.service.ProcessPayment(c.Request().Context(), *ev); err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicatePayment):
			// Повторная доставка считается успехом для провайдера, без
			// побочных эффектов у нас.
			return c.JSON(http.StatusOK, echo.Map{"status": "success"})
		case errors.Is(err, service.ErrUnknownTariff):
			return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "message": "unknown tariff plan"})
		default:
			s.logger.Errorf("Payment %s processing failed (request_id=%s): %v", ev.PaymentID, requestID, err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"status": "error", "message": "internal error"})
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "success"})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "healthy", "timestamp": time.Now().Unix()})
}

func parsePaymentEvent(data *paymentEvent) (*models.PaymentEvent, error) {
	if data.Object.ID == "" {
		return nil, errors.New("missing payment id")
	}

	userID, err := strconv.ParseInt(data.Object.Metadata["user_id"], 10, 64)
	if err != nil || userID <= 0 {
		return nil, errors.New("missing or invalid user_id in metadata")
	}

	amount, err := decimal.NewFromString(data.Object.Amount.Value)
	if err != nil {
		return nil, errors.New("missing or invalid amount")
	}

	description := data.Object.Metadata["description_for_user"]
	if description == "" {
		description = "Пакет"
	}

	return &models.PaymentEvent{
		PaymentID:   data.Object.ID,
		UserID:      userID,
		Amount:      amount,
		Currency:    data.Object.Amount.Currency,
		Description: description,
		Metadata:    data.Object.Metadata,
	}, nil
}
