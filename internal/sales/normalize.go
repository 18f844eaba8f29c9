package sales

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// normalizeRow canonicalises free text so equal values group together in
// statistics regardless of how clients typed them.
func normalizeRow(in RowInput) RowInput {
	in.Carrier = cases.Upper(language.Und).String(strings.TrimSpace(norm.NFC.String(in.Carrier)))
	in.ActivationType = strings.TrimSpace(norm.NFC.String(in.ActivationType))
	in.ModelName = strings.TrimSpace(norm.NFC.String(in.ModelName))
	in.SaleDate = strings.TrimSpace(in.SaleDate)
	return in
}
