package events

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "github.com/AI-Fresh-Docs/RusTokio/pkg/domain-errors"
)

// Field bounds enforced on event payloads.
const (
	MaxKindLength   = 64
	MaxSKULength    = 64
	MaxTitleLength  = 255
	MaxReasonLength = 255
	MaxSlugLength   = 64
)

// ValidateNotEmpty rejects empty or whitespace-only values.
func ValidateNotEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return dErrors.Newf(dErrors.CodeValidation, "%s must not be empty", field)
	}
	return nil
}

// ValidateMaxLength counts runes, not bytes.
func ValidateMaxLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return dErrors.Newf(dErrors.CodeValidation, "%s must be at most %d characters", field, max)
	}
	return nil
}

func ValidateNotNilUUID(field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return dErrors.Newf(dErrors.CodeValidation, "%s must not be the nil uuid", field)
	}
	return nil
}

// ValidateRange checks min <= value <= max.
func ValidateRange(field string, value, min, max int64) error {
	if value < min || value > max {
		return dErrors.Newf(dErrors.CodeValidation, "%s must be between %d and %d", field, min, max)
	}
	return nil
}

func ValidateNonNegative(field string, amount int64) error {
	if amount < 0 {
		return dErrors.Newf(dErrors.CodeValidation, "%s must not be negative", field)
	}
	return nil
}

// ValidateCurrency accepts ISO 4217 style codes: three upper-case letters.
func ValidateCurrency(field, code string) error {
	if len(code) != 3 {
		return dErrors.Newf(dErrors.CodeValidation, "%s must be a 3-letter currency code", field)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return dErrors.Newf(dErrors.CodeValidation, "%s must be a 3-letter currency code", field)
		}
	}
	return nil
}

// ValidateSlug accepts lower-case letters, digits, and inner hyphens.
func ValidateSlug(field, slug string) error {
	if err := ValidateNotEmpty(field, slug); err != nil {
		return err
	}
	if err := ValidateMaxLength(field, slug, MaxSlugLength); err != nil {
		return err
	}
	if slug[0] == '-' || slug[len(slug)-1] == '-' {
		return dErrors.Newf(dErrors.CodeValidation, "%s must not start or end with a hyphen", field)
	}
	for i := 0; i < len(slug); i++ {
		c := slug[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return dErrors.Newf(dErrors.CodeValidation, "%s may only contain a-z, 0-9 and '-'", field)
		}
	}
	return nil
}

func validateOptionalUUID(field string, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	return ValidateNotNilUUID(field, *id)
}

func validateKind(kind string) error {
	if err := ValidateNotEmpty("kind", kind); err != nil {
		return err
	}
	return ValidateMaxLength("kind", kind, MaxKindLength)
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (e NodeCreated) Validate() error {
	return firstErr(
		ValidateNotNilUUID("node_id", e.NodeID),
		validateKind(e.Kind),
		validateOptionalUUID("author_id", e.AuthorID),
	)
}

func (e NodeUpdated) Validate() error {
	return firstErr(
		ValidateNotNilUUID("node_id", e.NodeID),
		validateKind(e.Kind),
	)
}

func (e NodePublished) Validate() error {
	err := firstErr(
		ValidateNotNilUUID("node_id", e.NodeID),
		validateKind(e.Kind),
		validateOptionalUUID("author_id", e.AuthorID),
	)
	if err != nil {
		return err
	}
	if e.PublishedAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "published_at is required")
	}
	return nil
}

func (e NodeDeleted) Validate() error {
	return firstErr(
		ValidateNotNilUUID("node_id", e.NodeID),
		validateKind(e.Kind),
	)
}

func (e ProductCreated) Validate() error {
	return firstErr(
		ValidateNotNilUUID("product_id", e.ProductID),
		ValidateNotEmpty("sku", e.SKU),
		ValidateMaxLength("sku", e.SKU, MaxSKULength),
		ValidateNotEmpty("title", e.Title),
		ValidateMaxLength("title", e.Title, MaxTitleLength),
		ValidateNonNegative("price", e.Price),
		ValidateCurrency("currency", e.Currency),
	)
}

func (e OrderCreated) Validate() error {
	return firstErr(
		ValidateNotNilUUID("order_id", e.OrderID),
		ValidateNotNilUUID("customer_id", e.CustomerID),
		ValidateNonNegative("total", e.Total),
		ValidateCurrency("currency", e.Currency),
	)
}

func (e OrderPaid) Validate() error {
	return firstErr(
		ValidateNotNilUUID("order_id", e.OrderID),
		ValidateNotNilUUID("payment_id", e.PaymentID),
		ValidateNonNegative("amount", e.Amount),
		ValidateCurrency("currency", e.Currency),
	)
}

func (e InventoryAdjusted) Validate() error {
	err := firstErr(
		ValidateNotNilUUID("product_id", e.ProductID),
		ValidateNotEmpty("reason", e.Reason),
		ValidateMaxLength("reason", e.Reason, MaxReasonLength),
	)
	if err != nil {
		return err
	}
	if e.Delta == 0 {
		return dErrors.New(dErrors.CodeValidation, "delta must not be zero")
	}
	return nil
}

func (e TopicCreated) Validate() error {
	return firstErr(
		ValidateNotNilUUID("topic_id", e.TopicID),
		ValidateNotNilUUID("forum_id", e.ForumID),
		validateOptionalUUID("author_id", e.AuthorID),
	)
}

func (e ReplyCreated) Validate() error {
	return firstErr(
		ValidateNotNilUUID("reply_id", e.ReplyID),
		ValidateNotNilUUID("topic_id", e.TopicID),
		validateOptionalUUID("author_id", e.AuthorID),
	)
}

func (e ModuleEnabled) Validate() error  { return ValidateSlug("module_slug", e.ModuleSlug) }
func (e ModuleDisabled) Validate() error { return ValidateSlug("module_slug", e.ModuleSlug) }
