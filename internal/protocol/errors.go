package protocol

import (
	"errors"
	"fmt"
)

// Code is the result code returned to the dispatcher for every command.
// Zero means success. The numbering is part of the wire contract.
type Code uint32

const (
	CodeOK Code = iota

	CodePlayerNotFound
	CodePlayerExists
	CodeInsufficientBalance
	CodeIndexOutOfBounds
	CodeInsufficientResource
	CodeRanchNotFound
	CodeRanchFull
	CodeElfNotFound
	CodePropNotFound
	CodeWrongCurrency
	CodeIneligible
	CodeMaxSlots
	CodeAdminRequired
	CodeNonceMismatch
	CodeRevealMismatch
	CodeBadCommand

	CodeInternal Code = 99
)

var codeNames = map[Code]string{
	CodeOK:                   "OK",
	CodePlayerNotFound:       "PlayerNotExist",
	CodePlayerExists:         "PlayerAlreadyExist",
	CodeInsufficientBalance:  "NotGoldBalance",
	CodeIndexOutOfBounds:     "IndexOutofBound",
	CodeInsufficientResource: "NotEnoughResource",
	CodeRanchNotFound:        "NotFoundRanch",
	CodeRanchFull:            "MaxElfCount",
	CodeElfNotFound:          "NotFoundElf",
	CodePropNotFound:         "NotFoundProp",
	CodeWrongCurrency:        "WrongCurrencyForProp",
	CodeIneligible:           "InvalidPurchaseCondition",
	CodeMaxSlots:             "MaxElfSlot",
	CodeAdminRequired:        "AdminRequired",
	CodeNonceMismatch:        "NonceMismatch",
	CodeRevealMismatch:       "RevealMismatch",
	CodeBadCommand:           "InvalidCommand",
	CodeInternal:             "Internal",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "Unknown"
}

// Error is a rule-layer rejection. Commands that fail with an Error leave no
// trace in the store or the event queue.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func Fail(code Code) error { return &Error{Code: code} }

// CodeOf maps an error to its wire code. Anything that is not a rule
// rejection is reported as CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
