package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/cadastre"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/crm"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/editorial"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/exploration"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/marche"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/media"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/snapshot"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/species"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/elevenlabs"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/gemini"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/n8n"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/replicate"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/sheets"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/whisper"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/xenocanto"
	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/pkg/upstream"
)

// ErrNotConfigured is returned by routes whose backing service has no
// credentials.
var ErrNotConfigured = errors.New("service not configured")

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var (
	notFound = []error{
		marche.ErrNotFound,
		exploration.ErrNotFound,
		snapshot.ErrNotFound,
		crm.ErrNotFound,
		cadastre.ErrNoCandidate,
	}
	badRequest = []error{
		species.ErrTooManyNames,
		editorial.ErrEmptyText,
		media.ErrEmpty,
		whisper.ErrEmptyAudio,
	}
	unprocessable = []error{
		crm.ErrInvalidStage,
		editorial.ErrNothingToSummarize,
		snapshot.ErrNoCoordinates,
	}
	notConfigured = []error{
		ErrNotConfigured,
		xenocanto.ErrMissingKey,
		elevenlabs.ErrMissingKey,
		elevenlabs.ErrMissingVoice,
		replicate.ErrMissingToken,
		whisper.ErrMissingKey,
		gemini.ErrMissingKey,
		n8n.ErrNotConfigured,
		sheets.ErrNotConfigured,
	}
)

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// StatusOf maps an error to its HTTP status and client message.
func StatusOf(err error) (int, string) {
	var (
		bindErr    *echo.BindingError
		httpErr    *echo.HTTPError
		marcheErr  *marche.ValidationError
		crmErr     *crm.ValidationError
		queryErr   *cadastre.InvalidQueryError
		textErr    *elevenlabs.InvalidTextError
		upErr      *upstream.StatusError
		predictErr *replicate.PredictionError
	)
	switch {
	case errors.As(err, &bindErr):
		return http.StatusBadRequest, "invalid " + bindErr.Field
	case errors.As(err, &httpErr):
		if msg, ok := httpErr.Message.(string); ok {
			return httpErr.Code, msg
		}
		return httpErr.Code, http.StatusText(httpErr.Code)
	case isAny(err, notFound):
		return http.StatusNotFound, rootMessage(err, notFound)
	case errors.Is(err, crm.ErrVersionConflict):
		return http.StatusConflict, crm.ErrVersionConflict.Error()
	case errors.Is(err, marche.ErrSlugTaken):
		return http.StatusConflict, marche.ErrSlugTaken.Error()
	case isAny(err, unprocessable):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.As(err, &marcheErr):
		return http.StatusBadRequest, marcheErr.Error()
	case errors.As(err, &crmErr):
		return http.StatusBadRequest, crmErr.Error()
	case errors.As(err, &queryErr):
		return http.StatusBadRequest, queryErr.Error()
	case errors.As(err, &textErr):
		return http.StatusBadRequest, textErr.Error()
	case isAny(err, badRequest):
		return http.StatusBadRequest, rootMessage(err, badRequest)
	case errors.Is(err, whisper.ErrAudioTooLarge):
		return http.StatusRequestEntityTooLarge, whisper.ErrAudioTooLarge.Error()
	case isAny(err, notConfigured):
		return http.StatusServiceUnavailable, ErrNotConfigured.Error()
	case errors.As(err, &upErr):
		return http.StatusBadGateway, upErr.Service + " request failed"
	case errors.As(err, &predictErr):
		return http.StatusBadGateway, predictErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream timeout"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func rootMessage(err error, targets []error) string {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

// ErrorHandler writes err as an ErrorResponse. Server-side failures are
// logged with the request logger.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := StatusOf(err)
	if code >= http.StatusInternalServerError {
		zctx.From(c.Request().Context()).Error("Request failed",
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Code: code, Message: msg})
	}
	if err != nil {
		zctx.From(c.Request().Context()).Warn("Write error response", zap.Error(err))
	}
}
