package web

import (
	"net/http"
	"time"

	"github.com/dukex/geoimporter/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	importer  *services.Importer
	validator *validator.Validate
}

func NewAPIHandlers(importer *services.Importer, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		importer:  importer,
		validator: validator,
	}
}

func (h *APIHandlers) CreateUpload(c fiber.Ctx) error {
	user := c.Get(UserHeader)
	if user == "" {
		return badRequest(c, "The "+UserHeader+" header is required")
	}

	var req UploadRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	id, err := h.importer.Submit(c.Context(), services.SubmitRequest{User: user, Payload: req.Payload()})
	if err != nil {
		return handleServiceError(c, err, "Execution not found")
	}

	return c.Status(fiber.StatusCreated).JSON(ExecutionResponse{ExecutionID: id})
}

func (h *APIHandlers) CopyResource(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Resource ID is required")
	}

	user := c.Get(UserHeader)
	if user == "" {
		return badRequest(c, "The "+UserHeader+" header is required")
	}

	var req CopyRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executionID, err := h.importer.Copy(c.Context(), services.CopyRequest{ResourceID: id, User: user, Title: req.Title})
	if err != nil {
		return handleServiceError(c, err, "Resource not found")
	}

	return c.Status(fiber.StatusCreated).JSON(ExecutionResponse{ExecutionID: executionID})
}

func (h *APIHandlers) DeleteResource(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Resource ID is required")
	}

	err := h.importer.Delete(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err, "Resource not found")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.importer.GetExecution(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err, "Execution not found")
	}

	return c.JSON(execution)
}

// GetHandlers lists the file formats the importer accepts.
func (h *APIHandlers) GetHandlers(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"supported_file_types": h.importer.Formats(),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	formats := h.importer.Formats()
	registryOk := len(formats) > 0
	repositoryCheck, repOk := h.importer.HealthCheck(c.Context())

	registryCheck := "No handler registered"
	if registryOk {
		registryCheck = "Handlers registered"
	}

	status := "unhealthy"
	message := "Importer API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if registryOk && repOk {
		status = "healthy"
		message = "Importer API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Routes mounts the importer endpoints on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	importer := router.Group("/importer")
	importer.Post("/uploads", h.CreateUpload)
	importer.Get("/executions/:id", h.GetExecution)
	importer.Post("/resources/:id/copy", h.CopyResource)
	importer.Delete("/resources/:id", h.DeleteResource)
	importer.Get("/handlers", h.GetHandlers)

	router.Get("/health", h.HealthCheck)
}
