package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/shopspring/decimal"
)

// Record is one source row keyed by canonical field name.
type Record map[string]interface{}

// fieldAliases maps slugged source headers to canonical field names.
var fieldAliases = map[string]string{
	"id":                       "id",
	"transaction_id":           "id",
	"external_id":              "id",
	"external_identifier":      "id",
	"status":                   "status",
	"state":                    "status",
	"value_date":               "value_date",
	"date":                     "value_date",
	"made_on":                  "value_date",
	"amount":                   "amount",
	"sum":                      "amount",
	"currency":                 "currency_code",
	"currency_code":            "currency_code",
	"description":              "description",
	"details":                  "description",
	"additional":               "additional",
	"additional_notes":         "additional",
	"notes":                    "additional",
	"extra":                    "additional",
	"duplicated":               "duplicated",
	"duplicate":                "duplicated",
	"is_duplicate":             "duplicated",
	"account":                  "account_name",
	"account_name":             "account_name",
	"account_nature":           "account_nature",
	"nature":                   "account_nature",
	"account_provider":         "account_provider",
	"provider":                 "account_provider",
	"provider_name":            "account_provider",
	"account_uuid":             "account_uuid",
	"account_id":               "account_uuid",
	"account_balance":          "account_balance",
	"account_balance_snapshot": "account_balance",
	"balance":                  "account_balance",
	"payee":                    "payee",
	"payee_information":        "payee_information",
	"payer":                    "payer",
	"payer_information":        "payer_information",
	"original_amount":          "original_amount",
	"original_currency_code":   "original_currency_code",
	"original_currency":        "original_currency_code",
	"exchange_rate":            "exchange_rate",
	"rate":                     "exchange_rate",
	"posting_date":             "posting_date",
	"posting_time":             "posting_time",
	"type":                     "type",
	"transaction_type":         "type",
	"end_to_end_id":            "end_to_end_id",
}

// CanonicalField returns the canonical name for a source header or JSON key.
// Unknown names are returned slugged so they never collide with known fields.
func CanonicalField(name string) string {
	slug := slugify(name)
	if canonical, ok := fieldAliases[slug]; ok {
		return canonical
	}
	return slug
}

// slugify turns "Value Date", "valueDate" and "value-date" into "value_date".
func slugify(name string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(name))
	underscore := false
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) && !underscore {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			underscore = false
		default:
			if b.Len() > 0 && !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// NewRecord builds a Record from header/value pairs such as a spreadsheet or
// CSV row. Cells beyond the header are ignored and missing cells stay absent.
func NewRecord(header []string, values []interface{}) Record {
	rec := make(Record, len(header))
	for i, h := range header {
		if h == "" || i >= len(values) {
			continue
		}
		rec[h] = values[i]
	}
	return rec
}

// RecordFromJSON builds a Record from a decoded JSON object. A nested
// "account" object is flattened into account_* fields and any other nested
// object (for example "extra") is merged without overriding top-level keys.
func RecordFromJSON(obj map[string]interface{}) Record {
	rec := make(Record, len(obj))
	var nested []map[string]interface{}
	for k, v := range obj {
		slug := slugify(k)
		if m, ok := v.(map[string]interface{}); ok {
			if slug == "account" {
				for ak, av := range m {
					field := CanonicalField(ak)
					if !strings.HasPrefix(field, "account_") {
						field = CanonicalField("account_" + slugify(ak))
					}
					rec[field] = av
				}
				continue
			}
			nested = append(nested, m)
			continue
		}
		rec[CanonicalField(k)] = v
	}
	for _, m := range nested {
		for k, v := range m {
			field := CanonicalField(k)
			if _, exists := rec[field]; !exists {
				rec[field] = v
			}
		}
	}
	return rec
}

// Normalize converts a Record into the canonical transaction shape. Numbers
// and booleans never fail; a non-empty date that cannot be parsed does.
func Normalize(rec Record) (*domain.Transaction, error) {
	valueDate, err := ParseDate(rec["value_date"])
	if err != nil {
		return nil, fmt.Errorf("value_date: %w", err)
	}
	postingDate, err := ParseDate(rec["posting_date"])
	if err != nil {
		return nil, fmt.Errorf("posting_date: %w", err)
	}

	return &domain.Transaction{
		ExternalID:  ParseString(rec["id"]),
		Status:      ParseString(rec["status"]),
		ValueDate:   valueDate,
		Amount:      ParseAmount(rec["amount"]),
		Currency:    strings.ToUpper(ParseString(rec["currency_code"])),
		Description: ParseString(rec["description"]),
		Additional:  ParseString(rec["additional"]),
		Duplicated:  ParseBool(rec["duplicated"]),
		Account: domain.Account{
			Name:     ParseString(rec["account_name"]),
			Nature:   ParseString(rec["account_nature"]),
			Provider: ParseString(rec["account_provider"]),
			UUID:     ParseString(rec["account_uuid"]),
			Balance:  ParseAmount(rec["account_balance"]),
		},
		Payee:                ParseString(rec["payee"]),
		PayeeInformation:     ParseString(rec["payee_information"]),
		Payer:                ParseString(rec["payer"]),
		PayerInformation:     ParseString(rec["payer_information"]),
		OriginalAmount:       ParseAmount(rec["original_amount"]),
		OriginalCurrencyCode: strings.ToUpper(ParseString(rec["original_currency_code"])),
		ExchangeRate:         ParseAmount(rec["exchange_rate"]),
		PostingDate:          postingDate,
		PostingTime:          ParseString(rec["posting_time"]),
		Type:                 ParseString(rec["type"]),
		EndToEndID:           ParseString(rec["end_to_end_id"]),
	}, nil
}

// SyntheticID derives a stable external id from the composite key of tx for
// sources that carry no identifier of their own.
func SyntheticID(tx *domain.Transaction) string {
	key := tx.Key()
	sum := sha256.Sum256([]byte(key.Account + "|" + key.ValueDate.String() + "|" + key.Secondary))
	return "csv:" + hex.EncodeToString(sum[:])
}

// ParseString returns v as trimmed text. Missing values become "".
func ParseString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// ParseBool accepts literal booleans and the strings "true"/"false",
// "1"/"0" and "yes"/"no" in any case. Anything else is false.
func ParseBool(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes", "y":
			return true
		}
	}
	return false
}

// ParseAmount parses v leniently. Missing or unparsable input, NaN and
// infinities all become zero.
func ParseAmount(v interface{}) decimal.Decimal {
	switch val := v.(type) {
	case nil, bool:
		return decimal.Zero
	case decimal.Decimal:
		return val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(val)
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case json.Number:
		return parseAmountString(val.String())
	case string:
		return parseAmountString(val)
	default:
		return parseAmountString(fmt.Sprint(val))
	}
}

func parseAmountString(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d
	}

	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			negative = true
		}
	}
	cleaned := normalizeSeparators(b.String())
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	if negative {
		return d.Neg()
	}
	return d
}

// normalizeSeparators resolves "1,234.50", "1.234,50" and "12,5" to a plain
// dot-decimal string.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	}
	return s
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"2006/01/02",
	"02.01.2006",
}

// sheetEpoch is day zero of spreadsheet serial dates.
var sheetEpoch = civil.Date{Year: 1899, Month: time.December, Day: 30}

// ParseDate parses a date in one of the supported layouts. Empty input is the
// zero date; spreadsheet serial numbers are accepted as well.
func ParseDate(v interface{}) (civil.Date, error) {
	switch val := v.(type) {
	case nil:
		return civil.Date{}, nil
	case civil.Date:
		return val, nil
	case time.Time:
		return civil.DateOf(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return civil.Date{}, fmt.Errorf("invalid serial date %v", val)
		}
		return sheetEpoch.AddDays(int(val)), nil
	}

	s := ParseString(v)
	if s == "" {
		return civil.Date{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("unrecognized date %q", s)
}
