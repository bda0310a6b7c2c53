package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	packUnitPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:x\b|seeds?\b|samen\b|stück\b|stk\b|pcs\b|pack\b|korn\b)`)
	integerPattern  = regexp.MustCompile(`\d+`)
	slugSeparators  = regexp.MustCompile(`[^a-z0-9]+`)
)

// PackInfo is the parsed form of a pack-size label.
type PackInfo struct {
	PackSize  string
	SeedCount int
}

// Price parses a retailer price label such as "€12,99" or "1.299,00 EUR".
// The second return value is false when no number can be recovered, so callers
// can reject the record instead of storing zero.
func Price(text string) (float64, bool) {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}

	cleaned := strings.Trim(b.String(), ".,")
	if cleaned == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Whichever separator comes last is the decimal one.
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		cleaned = replaceAllButLast(cleaned, ",")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case lastDot >= 0:
		cleaned = replaceAllButLast(cleaned, ".")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// replaceAllButLast drops every occurrence of sep except the final one.
func replaceAllButLast(s, sep string) string {
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return s
	}
	return strings.ReplaceAll(s[:idx], sep, "") + s[idx:]
}

// PackSize extracts the seed count from a pack label. The raw label is kept
// as PackSize; SeedCount falls back to 1 when no number is present.
func PackSize(text string) PackInfo {
	info := PackInfo{
		PackSize:  strings.TrimSpace(text),
		SeedCount: 1,
	}

	if m := packUnitPattern.FindStringSubmatch(text); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			info.SeedCount = n
		}
		return info
	}

	if m := integerPattern.FindString(text); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			info.SeedCount = n
		}
	}

	return info
}

// Slug builds the canonical identifier used to deduplicate seeds across seedbanks.
func Slug(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}

	folded = strings.ToLower(folded)
	folded = strings.NewReplacer("ß", "ss", "&", " and ", "+", " plus ").Replace(folded)
	folded = slugSeparators.ReplaceAllString(folded, "-")

	return strings.Trim(folded, "-")
}

// Currency maps the symbol found in a price label to an ISO code.
func Currency(text, fallback string) string {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(text, "€") || strings.Contains(upper, "EUR"):
		return "EUR"
	case strings.Contains(text, "£") || strings.Contains(upper, "GBP"):
		return "GBP"
	case strings.Contains(upper, "CHF"):
		return "CHF"
	case strings.Contains(text, "$") || strings.Contains(upper, "USD"):
		return "USD"
	}
	return fallback
}

// Discount returns the reduction of price against original in percentage
// points, rounded to two decimals. Zero when there is no real reduction.
func Discount(price, original float64) float64 {
	if original <= 0 || price >= original {
		return 0
	}

	p := decimal.NewFromFloat(price)
	o := decimal.NewFromFloat(original)
	pct := o.Sub(p).Div(o).Mul(decimal.NewFromInt(100)).Round(2)

	return pct.InexactFloat64()
}
