package services

import (
	"regexp"
	"strings"
)

// Raw backend stock errors are prose, not structured codes. The extraction
// below is deliberately defensive: it looks for an id following a product or
// variant keyword and falls back to a generic message when nothing matches.
// When the backend grows structured error codes, classification should switch
// to those and keep these heuristics only for legacy responses.
var (
	variantIDPattern = regexp.MustCompile(`(?i)variant[\s_#:]*['"]?([A-Za-z0-9][A-Za-z0-9_-]*)`)
	productIDPattern = regexp.MustCompile(`(?i)(?:product|item)[\s_#:]*['"]?([A-Za-z0-9][A-Za-z0-9_-]*)`)
)

const (
	genericStockMessage    = "Some items in your cart are not available in the requested quantity."
	genericStockSuggestion = "Reduce the quantity or remove the item to continue."
)

// FriendlyStockMessage rewrites a raw backend stock error into a
// presentation-ready warning, resolving any referenced product or variant
// against the cart to recover a human-readable name.
func FriendlyStockMessage(raw string, lines []CartLine, locale string) StockWarning {
	warning := StockWarning{
		Message:    genericStockMessage,
		Suggestion: genericStockSuggestion,
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || len(lines) == 0 {
		return warning
	}

	if variantID := firstCapture(variantIDPattern, raw); variantID != "" {
		if line, ok := lineByVariant(lines, variantID); ok {
			warning.ProductTitle = line.Title.Resolve(locale)
			warning.VariantLabel = line.VariantLabel.Resolve(locale)
			warning.Message = shortageMessage(warning.ProductTitle, warning.VariantLabel)
			return warning
		}
	}

	if productID := firstCapture(productIDPattern, raw); productID != "" {
		if line, ok := lineByProduct(lines, productID); ok {
			warning.ProductTitle = line.Title.Resolve(locale)
			warning.Message = shortageMessage(warning.ProductTitle, "")
			return warning
		}
	}

	return warning
}

func shortageMessage(productTitle, variantLabel string) string {
	switch {
	case productTitle != "" && variantLabel != "":
		return productTitle + " (" + variantLabel + ") is low on stock at the selected branch."
	case productTitle != "":
		return productTitle + " is low on stock at the selected branch."
	default:
		return genericStockMessage
	}
}

func firstCapture(pattern *regexp.Regexp, raw string) string {
	match := pattern.FindStringSubmatch(raw)
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}

func lineByVariant(lines []CartLine, variantID string) (CartLine, bool) {
	for _, line := range lines {
		if strings.EqualFold(line.VariantID, variantID) {
			return line, true
		}
		for _, id := range line.VariantIDs {
			if strings.EqualFold(id, variantID) {
				return line, true
			}
		}
	}
	return CartLine{}, false
}

func lineByProduct(lines []CartLine, productID string) (CartLine, bool) {
	for _, line := range lines {
		if strings.EqualFold(line.ProductID, productID) {
			return line, true
		}
	}
	return CartLine{}, false
}
