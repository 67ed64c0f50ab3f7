package errs

import (
	"errors"
	"fmt"
)

// Code is an EPP result code.
type Code int

const (
	CodeCommandUse           Code = 2002
	CodeParameterRange       Code = 2004
	CodeParameterSyntax      Code = 2005
	CodeBillingFailure       Code = 2104
	CodeAuthorization        Code = 2201
	CodeInvalidAuthInfo      Code = 2202
	CodePendingTransfer      Code = 2300
	CodeNotPendingTransfer   Code = 2301
	CodeObjectExists         Code = 2302
	CodeObjectDoesNotExist   Code = 2303
	CodeStatusProhibits      Code = 2304
	CodeDataManagementPolicy Code = 2306
)

// Error is a business failure surfaced to registrars with a stable message.
//
// errors.Is matches on Code and Msg, so an error carrying a Subject still
// matches the exported prototype it was derived from.
type Error struct {
	Code    Code
	Msg     string
	Subject string
}

func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s: %s", e.Msg, e.Subject)
	}
	return e.Msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Msg == t.Msg
}

// About returns a copy naming the offending object.
func (e *Error) About(subject string) *Error {
	return &Error{Code: e.Code, Msg: e.Msg, Subject: subject}
}

func newError(code Code, msg string) *Error { return &Error{Code: code, Msg: msg} }

// As extracts an *Error from a chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Prototypes. Use About to attach the token, domain or registrar involved.
var (
	ErrPremiumDiscount = newError(CodeCommandUse,
		"A nonzero discount code cannot be applied to premium domains")
	ErrTokenNotValidForTLD       = newError(CodeCommandUse, "Alloc token invalid for TLD")
	ErrTokenNotValidForRegistrar = newError(CodeCommandUse, "Alloc token invalid for client")
	ErrTokenAlreadyRedeemed      = newError(CodeCommandUse, "Alloc token was already redeemed")
	ErrUnknownToken              = newError(CodeCommandUse, "The allocation token is invalid")
	ErrNoTransferPending         = newError(CodeCommandUse, "No transfer is pending for this domain")

	ErrFeesMismatch = newError(CodeParameterRange,
		"The fees passed in the transform command do not match the fees that will be charged")
	ErrFeesRequiredForPremium = newError(CodeParameterRange,
		"Fees must be explicitly acknowledged when performing an operation on a premium name")
	ErrCurrencyMismatch       = newError(CodeParameterRange, "The currency specified does not match the TLD's currency")
	ErrBadPeriod              = newError(CodeParameterRange, "Period must be between 1 and 10 years")
	ErrTransferPeriodOneYear  = newError(CodeParameterRange, "Transfer period must be one year")
	ErrExceedsMaxRegistration = newError(CodeParameterRange,
		"Registrations cannot extend for more than 10 years into the future")
	ErrExpirationDateMismatch = newError(CodeParameterRange,
		"The current expiration date is incorrect")
	ErrNegativeFee = newError(CodeParameterRange, "Fee computation produced a negative amount")

	ErrInvalidDomainName = newError(CodeParameterSyntax, "Domain name is not a valid second-level name")
	ErrInvalidStatus     = newError(CodeParameterSyntax, "Unknown status value")

	ErrNotOwner             = newError(CodeAuthorization, "The specified resource belongs to another client")
	ErrSuperuserOnly        = newError(CodeAuthorization, "Only a superuser can perform this operation")
	ErrAlreadySponsor       = newError(CodeStatusProhibits, "Registrar already sponsors the object of this transfer request")
	ErrNotAuthorizedForTLD  = newError(CodeAuthorization, "Registrar is not authorized to access this TLD")
	ErrNotTransferInitiator = newError(CodeAuthorization, "Registrar is not the initiator of this transfer")
	ErrNotTransferParty     = newError(CodeAuthorization, "Registrar is not a party to this transfer")

	ErrBadAuthInfo = newError(CodeInvalidAuthInfo, "Authorization information for accessing resource is invalid")

	ErrAlreadyPendingTransfer = newError(CodePendingTransfer, "The resource is already pending transfer")
	ErrNotPendingTransfer     = newError(CodeNotPendingTransfer, "The resource does not have a pending transfer")

	ErrDomainExists        = newError(CodeObjectExists, "Object with given ID already exists")
	ErrDomainNotFound      = newError(CodeObjectDoesNotExist, "The domain with given ID does not exist")
	ErrTLDNotFound         = newError(CodeObjectDoesNotExist, "Domain name is under a TLD that doesn't exist")
	ErrPollMessageNotFound = newError(CodeObjectDoesNotExist, "Poll message does not exist")

	ErrStatusProhibits   = newError(CodeStatusProhibits, "Resource status prohibits this operation")
	ErrNotInRedemption   = newError(CodeStatusProhibits, "Domain is not eligible for restore")
	ErrPendingDelete     = newError(CodeStatusProhibits, "Domain is pending delete")
	ErrStatusNotSettable = newError(CodeStatusProhibits, "Status value cannot be set by clients")

	ErrPolicy = newError(CodeDataManagementPolicy, "Operation is not allowed by registry policy")
)

// CurrencyMismatch reports arithmetic or validation across two currencies.
func CurrencyMismatch(want, got string) error {
	return ErrCurrencyMismatch.About(fmt.Sprintf("%s != %s", want, got))
}
