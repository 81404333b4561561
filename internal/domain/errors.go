package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidTitle    = errors.New("invalid title")
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidStageID  = errors.New("invalid stage id")
	ErrInvalidValue    = errors.New("invalid value")
	ErrInvalidCurrency = errors.New("invalid currency")
)
