package apperr

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Status is the HTTP status err is rendered with.
func Status(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}

// Respond is the fiber ErrorHandler: AppErrors are rendered as they are, anything
// else is logged and hidden behind a generic internal error.
func Respond(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= fiber.StatusInternalServerError {
			log.Printf("ERROR: %v", appErr)
		}
		return c.Status(Status(appErr)).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: &AppError{
			Code:    "HTTP_" + strconv.Itoa(fiberErr.Code),
			Message: fiberErr.Message,
		}})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: &AppError{Code: CodeInternal, Message: "Internal server error"},
	})
}
