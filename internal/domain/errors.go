package domain

import "errors"

// Класи помилок, які перевіряються через errors.Is
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)
