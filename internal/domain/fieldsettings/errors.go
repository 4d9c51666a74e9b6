package fieldsettings

import "fieldsettings/internal/core/apperror"

// Sentinels for errors.Is. Returned errors are *apperror.AppError values
// carrying the same code plus details.
var (
	ErrDuplicateName  = &apperror.AppError{Code: apperror.CodeDuplicateFieldName}
	ErrLoadFailure    = &apperror.AppError{Code: apperror.CodeLoadFailed}
	ErrSaveFailure    = &apperror.AppError{Code: apperror.CodeSaveFailed}
	ErrSaveInProgress = &apperror.AppError{Code: apperror.CodeSaveInProgress}
	ErrFieldLocked    = &apperror.AppError{Code: apperror.CodeFieldLocked}
)

func errFieldNotFound(fieldID string) error {
	return apperror.NewNotFound("field", fieldID)
}

func errFieldLocked(fieldID, action string) error {
	return apperror.NewBusinessRule(apperror.CodeFieldLocked, "field cannot be "+action).
		WithDetail("fieldId", fieldID)
}
