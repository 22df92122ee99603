package adapter

import (
	"errors"
	"fmt"
)

// Error codes carried by adapter errors.
const (
	CodeNullInput       = "NULL_INPUT"
	CodeInvalidJSON     = "INVALID_JSON"
	CodeTypeMismatch    = "TYPE_MISMATCH"
	CodeMissingID       = "MISSING_ID"
	CodeUnsupportedKind = "UNSUPPORTED_KIND"
	CodeBase64          = "INVALID_BASE64"
	CodeNotText         = "NOT_TEXT"
)

// Sentinels for errors.Is.
var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrPayloadDecode   = errors.New("payload decode failed")
)

// MalformedRecordError reports a record that cannot become an adapter.
// The record is skipped; it never enters a patient context.
type MalformedRecordError struct {
	Kind    Kind
	ID      string
	Field   string
	Code    string
	Message string
	Cause   error
}

func (e *MalformedRecordError) Error() string {
	ref := string(e.Kind)
	if e.ID != "" {
		ref += "/" + e.ID
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s (%s)", ref, e.Field, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s: %s", ref, e.Field, e.Message)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Cause
}

// Is matches ErrMalformedRecord.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// PayloadDecodeError reports an embedded attachment that is not decodable text.
// Adapters keep it for inspection and render a placeholder instead.
type PayloadDecodeError struct {
	Kind        Kind
	ID          string
	ContentType string
	Code        string
	Message     string
	Cause       error
}

func (e *PayloadDecodeError) Error() string {
	msg := fmt.Sprintf("%s/%s: %s payload: %s", e.Kind, e.ID, e.ContentType, e.Message)
	if e.Cause != nil {
		msg += " (" + e.Cause.Error() + ")"
	}
	return msg
}

func (e *PayloadDecodeError) Unwrap() error {
	return e.Cause
}

// Is matches ErrPayloadDecode.
func (e *PayloadDecodeError) Is(target error) bool {
	return target == ErrPayloadDecode
}
