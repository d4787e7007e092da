package logger

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
)

// Structured log field keys shared by the pipeline stages.
const (
	FieldItemID     = "item_id"
	FieldCompanyKey = "company_key"
	FieldState      = "state"
	FieldSource     = "source"
	FieldDependency = "dependency"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// ItemFields identify one item of a run.
func ItemFields(itemID, companyKey string) []zap.Field {
	return StringFields(
		StringField{Key: FieldItemID, Value: itemID},
		StringField{Key: FieldCompanyKey, Value: companyKey},
	)
}

// PostFields describe where a post came from.
func PostFields(post *lead.Post) []zap.Field {
	if post == nil {
		return nil
	}
	return StringFields(
		StringField{Key: FieldItemID, Value: post.ID},
		StringField{Key: FieldSource, Value: string(post.Source)},
		StringField{Key: "url", Value: post.SourceURL},
	)
}
