package service

import "errors"

var (
	// ErrUnauthorized covers both unknown emails and wrong passwords so
	// responses never reveal which half failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrOTPRequired means the credentials were correct but the account
	// has TOTP enabled and no code was supplied.
	ErrOTPRequired = errors.New("otp_required")

	// ErrInvalidOTP means the supplied TOTP code did not verify.
	ErrInvalidOTP = errors.New("invalid_otp")

	// ErrPasswordRequired means an acceptance needed a chosen password
	// but none was supplied and no temporary credential exists.
	ErrPasswordRequired = errors.New("password_required")

	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	ErrExpired  = errors.New("expired")
)
