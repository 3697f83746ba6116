package filter

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"time"

	"github.com/mikey/mail-triage/internal/core"
)

// parseMessage builds a core.Email from a parsed mail message. The body is
// the concatenated text/plain content; attachments are recorded as metadata
// only, their content is never kept.
func parseMessage(msg *mail.Message, sender string, recipients []string) (*core.Email, error) {
	body, attachments, err := extractContent(msg)
	if err != nil {
		return nil, err
	}

	email := &core.Email{
		From:        sender,
		To:          recipients,
		Body:        body,
		Attachments: attachments,
		ReceivedAt:  time.Now(),
		Headers:     make(map[string][]string),
	}

	for key, values := range msg.Header {
		email.Headers[key] = values
	}

	email.MessageID = strings.Trim(msg.Header.Get("Message-Id"), "<> ")
	if subject := msg.Header.Get("Subject"); subject != "" {
		email.Subject = decodeHeader(subject)
	}
	if email.From == "" {
		email.From = extractAddress(msg.Header.Get("From"))
	}
	if len(email.To) == 0 {
		if toList, err := msg.Header.AddressList("To"); err == nil {
			for _, addr := range toList {
				email.To = append(email.To, addr.Address)
			}
		}
	}
	if ccList, err := msg.Header.AddressList("Cc"); err == nil {
		for _, addr := range ccList {
			email.Cc = append(email.Cc, addr.Address)
		}
	}

	// A reply or forward belongs to the thread of the message it references
	if refs := msg.Header.Get("In-Reply-To"); refs != "" {
		email.ThreadID = strings.Trim(refs, "<> ")
	} else if refs := msg.Header.Get("References"); refs != "" {
		parts := strings.Fields(refs)
		if len(parts) > 0 {
			email.ThreadID = strings.Trim(parts[0], "<> ")
		}
	}

	return email, nil
}

// extractAddress pulls the bare address out of a From-style header value
func extractAddress(value string) string {
	if addr, err := mail.ParseAddress(value); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(value)
}

// decodeHeader decodes RFC 2047 encoded-word headers, returning the raw
// value when decoding fails
func decodeHeader(value string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// extractContent extracts the text content and attachment metadata from an
// email message. For multipart messages it collects text/plain parts and
// records non-text parts as attachments.
func extractContent(msg *mail.Message) (string, []core.Attachment, error) {
	contentType := msg.Header.Get("Content-Type")

	// Non-multipart messages carry the body directly
	if !strings.Contains(strings.ToLower(contentType), "multipart/") {
		bodyBytes, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", nil, err
		}
		return string(bodyBytes), nil, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		bodyBytes, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return "", nil, readErr
		}
		return string(bodyBytes), nil, nil
	}

	boundary, ok := params["boundary"]
	if !ok {
		bodyBytes, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", nil, err
		}
		return string(bodyBytes), nil, nil
	}

	mr := multipart.NewReader(msg.Body, boundary)

	var textContent bytes.Buffer
	var attachments []core.Attachment

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Return what we have so far rather than failing the message
			if textContent.Len() > 0 || len(attachments) > 0 {
				return textContent.String(), attachments, nil
			}
			return "", nil, err
		}

		partContentType := strings.ToLower(part.Header.Get("Content-Type"))
		disposition := part.Header.Get("Content-Disposition")
		filename := part.FileName()

		switch {
		case filename != "" || strings.HasPrefix(strings.ToLower(disposition), "attachment"):
			size, _ := io.Copy(io.Discard, part)
			attachments = append(attachments, core.Attachment{
				Filename:    filename,
				ContentType: partMediaType(partContentType),
				Size:        size,
			})
		case strings.Contains(partContentType, "text/plain"):
			partBytes, err := io.ReadAll(part)
			if err != nil {
				continue
			}
			textContent.Write(partBytes)
			textContent.WriteString("\n")
		default:
			// Nested multiparts and html alternatives are skipped; the
			// text/plain sibling carries the same content
		}
	}

	return textContent.String(), attachments, nil
}

// partMediaType strips parameters from a Content-Type value
func partMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mediaType
}
