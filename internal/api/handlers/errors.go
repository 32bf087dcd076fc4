package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/voice-sales-agent/internal/provider"
	"github.com/acme/voice-sales-agent/internal/repository"
	apperrors "github.com/acme/voice-sales-agent/pkg/errors"
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var provErr *provider.Error
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrSignature):
		return fiber.NewError(http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, repository.ErrNotFound) || errors.Is(err, apperrors.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "resource not found")
	case errors.Is(err, apperrors.ErrConflict) || errors.Is(err, repository.ErrConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.As(err, &provErr):
		return fiber.NewError(http.StatusBadGateway, provErr.Error())
	case errors.Is(err, apperrors.ErrUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
