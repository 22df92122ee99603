package adapter

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// ContentUnavailable stands in for embedded text that could not be decoded.
const ContentUnavailable = "[content unavailable]"

// DecodeAttachment decodes the inline base64 data of att as UTF-8 text.
// An attachment without inline data decodes to "".
func DecodeAttachment(kind Kind, id string, att *r4.Attachment) (string, error) {
	if att == nil || att.Data == "" {
		return "", nil
	}
	data := strings.TrimSpace(att.Data)
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
	}
	if err != nil {
		return "", &PayloadDecodeError{
			Kind:        kind,
			ID:          id,
			ContentType: att.MediaType(),
			Code:        CodeBase64,
			Message:     "invalid base64",
			Cause:       err,
		}
	}
	if !utf8.Valid(raw) {
		return "", &PayloadDecodeError{
			Kind:        kind,
			ID:          id,
			ContentType: att.MediaType(),
			Code:        CodeNotText,
			Message:     "decoded payload is not UTF-8 text",
		}
	}
	return string(raw), nil
}

// cleanText trims every line, drops blank lines and consecutive repeats, and
// joins the rest with " | " so the result stays on one line.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var lines []string
	prev := ""
	for _, line := range strings.Split(s, "\n") {
		line = oneLine(line)
		if line == "" || line == prev {
			continue
		}
		lines = append(lines, line)
		prev = line
	}
	return strings.Join(lines, " | ")
}

// embeddedText returns the cleaned text of the first accepted attachment that
// decodes. When candidates exist but none decodes, it returns the placeholder
// together with the first decode error.
func embeddedText(kind Kind, id string, atts []r4.Attachment, accept func(mediaType string) bool) (string, error) {
	var firstErr error
	for i := range atts {
		att := &atts[i]
		if !accept(att.MediaType()) || att.Data == "" {
			continue
		}
		text, err := DecodeAttachment(kind, id, att)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if cleaned := cleanText(text); cleaned != "" {
			return cleaned, nil
		}
	}
	if firstErr != nil {
		return ContentUnavailable, firstErr
	}
	return "", nil
}

func isPlainText(mediaType string) bool {
	return mediaType == "text/plain"
}

func isText(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/")
}
