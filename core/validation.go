package core

import (
	"fmt"
	"strings"
)

// ParseDocumentStatus converts a status name into a DocumentStatus.
func ParseDocumentStatus(s string) (DocumentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processing":
		return StatusProcessing, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

func ValidateDocumentStatus(s DocumentStatus) error {
	if s != StatusProcessing && s != StatusCompleted && s != StatusFailed {
		return fmt.Errorf("%w: value %d", ErrInvalidStatus, int(s))
	}
	return nil
}

// ParseElementType converts a type name into an ElementType.
func ParseElementType(s string) (ElementType, error) {
	t := ElementType(strings.ToLower(strings.TrimSpace(s)))
	if err := ValidateElementType(t); err != nil {
		return "", err
	}
	return t, nil
}

func ValidateElementType(t ElementType) error {
	switch t {
	case ElementText, ElementTable, ElementImage:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidElementType, string(t))
	}
}

func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyID)
	}
	if err := ValidateDocumentStatus(doc.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc.Progress < 0 || doc.Progress > 100 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrInvalidProgress)
	}
	if doc.Status == StatusCompleted && doc.Progress != 100 {
		return fmt.Errorf("%w: completed document at progress %d", ErrInvalidDocument, doc.Progress)
	}
	return nil
}

// ValidateElement checks that an element has a known type and a payload
// matching that type.
func ValidateElement(e *ContentElement) error {
	if e == nil {
		return fmt.Errorf("%w: element is nil", ErrInvalidElement)
	}
	if err := ValidateElementType(e.Type); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidElement, err)
	}
	switch e.Type {
	case ElementImage:
		if len(e.Image) == 0 {
			return fmt.Errorf("%w: %w", ErrInvalidElement, ErrEmptyContent)
		}
	case ElementTable:
		if e.TableHTML == "" && e.Text == "" {
			return fmt.Errorf("%w: %w", ErrInvalidElement, ErrEmptyContent)
		}
	default:
		if strings.TrimSpace(e.Text) == "" {
			return fmt.Errorf("%w: %w", ErrInvalidElement, ErrEmptyContent)
		}
	}
	if e.PageNumber != nil && *e.PageNumber < 1 {
		return fmt.Errorf("%w: page number %d", ErrInvalidElement, *e.PageNumber)
	}
	return nil
}

func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}
	if msg.SessionID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyID)
	}
	if msg.Role != RoleUser && msg.Role != RoleAssistant {
		return fmt.Errorf("%w: role %q", ErrInvalidMessage, string(msg.Role))
	}
	if msg.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyContent)
	}
	return nil
}

// ClampProgress bounds a progress value to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
