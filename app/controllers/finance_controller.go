package controllers

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/colegio-mx/backoffice/app/repository"
	"github.com/colegio-mx/backoffice/internal/pkg/apperr"
	"github.com/colegio-mx/backoffice/internal/pkg/money"
	"github.com/colegio-mx/backoffice/internal/pkg/payments"
)

var (
	financeGateway  payments.Gateway
	financeValidate = validator.New()
)

// InitializeFinanceController wires the payment gateway. Called once from
// router setup.
func InitializeFinanceController(gw payments.Gateway) {
	financeGateway = gw
}

// HandleFinanceBalance returns the current gateway balance.
func HandleFinanceBalance(c *fiber.Ctx) error {
	ctx, cancel := requestContext()
	defer cancel()

	balance, err := financeGateway.GetBalance(ctx)
	if err != nil {
		log.Errorf("[Finance] Balance lookup failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_unavailable"})
	}

	return c.JSON(fiber.Map{
		"available": minorToDisplay(balance.Available),
		"pending":   minorToDisplay(balance.Pending),
		"currency":  balance.Currency,
	})
}

// HandleFinancePayouts lists payouts, by default restricted to the current
// year (?all=1 lifts the filter).
func HandleFinancePayouts(c *fiber.Ctx) error {
	ctx, cancel := requestContext()
	defer cancel()

	onlyThisYear := c.Query("all") != "1"
	payouts, err := financeGateway.GetPayouts(ctx, onlyThisYear)
	if err != nil {
		log.Errorf("[Finance] Payout list failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_unavailable"})
	}

	out := make([]fiber.Map, 0, len(payouts))
	for _, p := range payouts {
		out = append(out, fiber.Map{
			"id":           p.ID,
			"amount":       minorToDisplay(p.Amount),
			"status":       p.Status,
			"currency":     p.Currency,
			"arrival_date": p.ArrivalDate,
			"created_at":   p.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"payouts": out})
}

type createPayoutRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// HandleCreatePayout triggers a payout of the given amount to the school's
// bank account.
func HandleCreatePayout(c *fiber.Ctx) error {
	var req createPayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := financeValidate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount is required"})
	}

	amount, err := money.From(req.Amount)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx, cancel := requestContext()
	defer cancel()

	payout, err := financeGateway.CreatePayout(ctx, amount)
	if err != nil {
		if apperr.IsValidation(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		log.Errorf("[Finance] Payout creation failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway_unavailable"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     payout.ID,
		"amount": minorToDisplay(payout.Amount),
		"status": payout.Status,
	})
}

// HandlePaymentEvents returns the ledger history for one payment, newest
// first.
func HandlePaymentEvents(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payment id"})
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	repos := repository.GetGlobalRepositories()
	events, err := repos.PaymentEvent.ListByPaymentID(uint(id), limit)
	if err != nil {
		log.Errorf("[Finance] Event lookup for payment %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_lookup_failed"})
	}

	return c.JSON(fiber.Map{"events": events})
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func minorToDisplay(units int64) string {
	m, err := money.FromMinorUnits(units, 100)
	if err != nil {
		return "0.00"
	}
	return m.Finalize2()
}
