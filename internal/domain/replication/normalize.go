package replication

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Normalize приводит поля записи к каноническому виду по схеме:
// булевы поля к bool, поля времени к UTC time.Time с точностью до микросекунды.
// Направление (устройство или сервер) здесь не учитывается, перекодированием
// под конкретное хранилище занимается вызывающий код. Входная запись не меняется,
// повторная нормализация ничего не меняет.
func Normalize(schema TableSchema, rec Record) Record {
	out := rec.Clone()
	for field, v := range out {
		switch {
		case schema.isBool(field):
			if b, ok := asBool(v); ok {
				out[field] = b
			}
		case schema.isTime(field):
			if t, ok := asTime(v); ok {
				out[field] = t
			}
		}
	}
	return out
}

// EncodeLocal кодирует нормализованную запись для SQLite:
// bool -> 0/1, time.Time -> LocalTimeLayout.
func EncodeLocal(rec Record) Record {
	out := make(Record, len(rec))
	for field, v := range rec {
		out[field] = encodeLocalValue(v)
	}
	return out
}

func encodeLocalValue(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return FormatLocalTime(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return FormatLocalTime(*t)
	default:
		return v
	}
}

// FormatLocalTime форматирует время для хранения на устройстве
func FormatLocalTime(t time.Time) string {
	return canonicalTime(t).Format(LocalTimeLayout)
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int:
		return b != 0, true
	case int8:
		return b != 0, true
	case int16:
		return b != 0, true
	case int32:
		return b != 0, true
	case int64:
		return b != 0, true
	case uint:
		return b != 0, true
	case uint8:
		return b != 0, true
	case uint16:
		return b != 0, true
	case uint32:
		return b != 0, true
	case uint64:
		return b != 0, true
	case float32:
		return asBool(float64(b))
	case float64:
		if math.IsNaN(b) {
			return false, false
		}
		return b != 0, true
	case string:
		return parseBool(b)
	case []byte:
		return parseBool(string(b))
	default:
		return false, false
	}
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, true
	case "0", "false", "f", "no", "n", "off", "":
		return false, true
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n != 0, true
	}
	return false, false
}
