package logger

import (
	"encoding/json"
	"reflect"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	redactedJSONEncoding    = "redacted-json"
	redactedConsoleEncoding = "redacted-console"

	// Redacted replaces the value of any sensitive field.
	Redacted = "[REDACTED]"
)

// sensitiveKeys are matched against keys lower-cased with '_' and '-' removed.
var sensitiveKeys = []string{
	"password",
	"passwd",
	"pass",
	"secret",
	"token",
	"authorization",
	"cookie",
	"apikey",
	"credential",
	"privatekey",
}

func init() {
	_ = zap.RegisterEncoder(redactedJSONEncoding, func(cfg zapcore.EncoderConfig) (zapcore.Encoder, error) {
		return NewRedactingEncoder(zapcore.NewJSONEncoder(cfg)), nil
	})
	_ = zap.RegisterEncoder(redactedConsoleEncoding, func(cfg zapcore.EncoderConfig) (zapcore.Encoder, error) {
		return NewRedactingEncoder(zapcore.NewConsoleEncoder(cfg)), nil
	})
}

// IsSensitiveKey reports whether values logged under key must be hidden.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	k = strings.NewReplacer("_", "", "-", "").Replace(k)
	for _, s := range sensitiveKeys {
		if s == "pass" {
			if k == "pass" || strings.HasSuffix(k, "pass") {
				return true
			}
			continue
		}
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// RedactingEncoder wraps a zapcore.Encoder to redact sensitive fields.
type RedactingEncoder struct {
	zapcore.Encoder
}

// NewRedactingEncoder wraps base with key-based redaction.
func NewRedactingEncoder(base zapcore.Encoder) *RedactingEncoder {
	return &RedactingEncoder{Encoder: base}
}

// AddString redacts sensitive field names.
func (e *RedactingEncoder) AddString(key, val string) {
	if IsSensitiveKey(key) {
		e.Encoder.AddString(key, Redacted)
		return
	}
	e.Encoder.AddString(key, val)
}

// AddByteString redacts sensitive field names.
func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if IsSensitiveKey(key) {
		e.Encoder.AddString(key, Redacted)
		return
	}
	e.Encoder.AddByteString(key, val)
}

// AddBinary redacts sensitive field names.
func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if IsSensitiveKey(key) {
		e.Encoder.AddString(key, Redacted)
		return
	}
	e.Encoder.AddBinary(key, val)
}

// AddReflected redacts sensitive keys, including those nested inside maps,
// slices and structs.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if IsSensitiveKey(key) {
		e.Encoder.AddString(key, Redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, RedactValue(val))
}

// AddArray redacts sensitive field names.
func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if IsSensitiveKey(key) {
		e.Encoder.AddString(key, Redacted)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

// AddObject redacts sensitive field names.
func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if IsSensitiveKey(key) {
		e.Encoder.AddString(key, Redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// Clone creates a copy of the encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone()}
}

// EncodeEntry redacts per-call fields. The wrapped encoder writes them to its
// own clone, so the Add* overrides above only see context fields.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	return e.Encoder.EncodeEntry(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		switch {
		case f.Type == zapcore.SkipType:
			out[i] = f
		case IsSensitiveKey(f.Key):
			out[i] = zap.String(f.Key, Redacted)
		case f.Type == zapcore.ReflectType:
			out[i] = zap.Reflect(f.Key, RedactValue(f.Interface))
		default:
			out[i] = f
		}
	}
	return out
}

// RedactValue returns a copy of v with sensitive keys replaced. Maps and
// slices are walked recursively; structs are flattened through their JSON
// representation first.
func RedactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = RedactValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = item
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = RedactValue(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return v
		}
		switch generic.(type) {
		case map[string]interface{}, []interface{}:
			return RedactValue(generic)
		}
		return generic
	}
	return v
}
