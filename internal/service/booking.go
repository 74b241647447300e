package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/lessonbook-api/internal/models"
	"github.com/noah-isme/lessonbook-api/internal/repository"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

type bookingStore interface {
	WithinTx(ctx context.Context, fn func(repository.BookingTx) error) error
}

// bookingError maps a failure from a booking transaction onto the API taxonomy.
// Errors already typed by the service pass through untouched.
func bookingError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, repository.ErrConcurrencyConflict):
		return appErrors.Wrap(err, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, appErrors.ErrConcurrencyConflict.Message)
	case errors.Is(err, repository.ErrDuplicate):
		switch repository.ConstraintName(err) {
		case repository.ConstraintEnrollmentPair:
			return appErrors.Wrap(err, appErrors.ErrAlreadyEnrolled.Code, appErrors.ErrAlreadyEnrolled.Status, appErrors.ErrAlreadyEnrolled.Message)
		case repository.ConstraintPaymentExternalTxn:
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "payment already recorded")
		}
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, appErrors.ErrConflict.Message)
	case errors.Is(err, repository.ErrCheckViolation):
		switch repository.ConstraintName(err) {
		case repository.ConstraintStudentCredit, repository.ConstraintLedgerNewCredit:
			return appErrors.Wrap(err, appErrors.ErrInsufficientCredit.Code, appErrors.ErrInsufficientCredit.Status, appErrors.ErrInsufficientCredit.Message)
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, appErrors.ErrValidation.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// notFoundOr turns sql.ErrNoRows into a NOT_FOUND with the given message.
func notFoundOr(err error, notFound string, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return bookingError(err, internal)
}

func requireActor(actor *models.JWTClaims) error {
	if actor == nil || actor.UserID == "" || !actor.Role.Valid() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	return nil
}

func requireTeacher(actor *models.JWTClaims) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsTeacher() {
		return appErrors.Clone(appErrors.ErrForbidden, "only teachers can perform this action")
	}
	return nil
}

func requireStudent(actor *models.JWTClaims) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsStudent() {
		return appErrors.Clone(appErrors.ErrForbidden, "only students can perform this action")
	}
	return nil
}
