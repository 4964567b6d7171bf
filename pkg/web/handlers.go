package web

import (
	"net/http"
	"time"

	"github.com/dukex/mintflow/pkg/models"
	"github.com/dukex/mintflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	mintingService *services.Minting
	validator      *validator.Validate
}

func NewAPIHandlers(mintingService *services.Minting, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		mintingService: mintingService,
		validator:      validator,
	}
}

// Register mounts every endpoint on router.
func (h *APIHandlers) Register(router fiber.Router) {
	s := router.Group("/sessions")
	s.Get("/", h.ListSessions)
	s.Post("/", h.CreateSession)
	s.Get("/:id", h.GetSession)
	s.Post("/:id/premint", h.PreMint)
	s.Post("/:id/mint", h.RequestMint)

	router.Get("/addresses/:address/utxos", h.GetUTXOs)
	router.Get("/transactions/:hash", h.GetTransaction)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storeCheck, ok := h.mintingService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Mintflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Mintflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateSession(c fiber.Ctx) error {
	var req CreateSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.mintingService.CreateSession(c.Context(), services.CreateSessionRequest{
		Creator: req.Creator,
		Token:   req.Token(),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ListSessions(c fiber.Ctx) error {
	sessions, err := h.mintingService.List(c.Context(), models.SessionStatus(c.Query("status")))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"sessions":    sessions,
		"total_count": len(sessions),
	})
}

func (h *APIHandlers) GetSession(c fiber.Ctx) error {
	session, err := h.mintingService.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session)
}

func (h *APIHandlers) PreMint(c fiber.Ctx) error {
	session, err := h.mintingService.PreMint(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(session)
}

func (h *APIHandlers) RequestMint(c fiber.Ctx) error {
	var req MintRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	id := c.Params("id")

	event, err := h.mintingService.RequestMint(c.Context(), id, req.RequestedBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(MintAcceptedResponse{
		SessionID: id,
		EventID:   event.ID,
		Status:    "queued",
	})
}

func (h *APIHandlers) GetUTXOs(c fiber.Ctx) error {
	address := c.Params("address")

	utxos, err := h.mintingService.UTXOs(c.Context(), address)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"address": address,
		"utxos":   utxos,
	})
}

func (h *APIHandlers) GetTransaction(c fiber.Ctx) error {
	tx, err := h.mintingService.Transaction(c.Context(), c.Params("hash"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(tx)
}
