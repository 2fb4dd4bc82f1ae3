package engine

import (
	"strings"
	"time"

	"loancrm_backend/platform/apperr"
	"loancrm_backend/platform/clock"
	"loancrm_backend/platform/phone"
)

// Code is a call-outcome marker from the external sheet.
type Code string

const (
	CodeP     Code = "P"
	CodePRS   Code = "PRS"
	CodeRS    Code = "RS"
	CodeR     Code = "R"
	CodeOther Code = "other"
)

// LoanType distinguishes first-time from returning borrower rows.
type LoanType string

const (
	LoanTypeNew    LoanType = "new"
	LoanTypeReloan LoanType = "reloan"
)

// CallOutcome is one normalized external row. Ephemeral, never persisted.
type CallOutcome struct {
	Phone    string
	PhoneKey string
	Name     string
	Code     Code
	UWFilled bool
	LoanType LoanType
	RawDate  string
	Date     time.Time // Singapore-midnight instant; zero when absent or unparseable
}

// Spreadsheet headers are free-form; each field is located by trying a fixed
// alias list so the mapping stays auditable.
var (
	phoneHeaders    = []string{"Phone", "Phone Number", "Mobile", "Mobile Number", "Contact", "Contact Number", "HP", "H/P"}
	nameHeaders     = []string{"Name", "Full Name", "Customer Name", "Client Name"}
	codeHeaders     = []string{"Code", "Status Code", "Outcome", "Call Status"}
	uwHeaders       = []string{"UW", "Underwriter", "UW Name"}
	loanTypeHeaders = []string{"Loan Type", "Type", "Group"}
	dateHeaders     = []string{"Date", "Appointment Date", "Call Date"}
)

var knownCodes = map[Code]bool{CodeP: true, CodePRS: true, CodeRS: true, CodeR: true}

// NormalizeRow parses one raw spreadsheet row into a CallOutcome. A row
// without a usable phone is rejected with a validation error; the batch
// runner records it as a failed row and continues.
func NormalizeRow(row map[string]string) (CallOutcome, error) {
	rawPhone := lookupField(row, phoneHeaders)
	if rawPhone == "" {
		return CallOutcome{}, apperr.Validation("row has no phone column")
	}
	key, err := phone.NormalizeKey(rawPhone)
	if err != nil {
		return CallOutcome{}, apperr.Wrap(apperr.KindValidation, "row has no usable phone", err)
	}

	out := CallOutcome{
		Phone:    strings.TrimSpace(rawPhone),
		PhoneKey: key,
		Name:     lookupField(row, nameHeaders),
		Code:     normalizeCode(lookupField(row, codeHeaders)),
		UWFilled: lookupField(row, uwHeaders) != "",
		LoanType: normalizeLoanType(lookupField(row, loanTypeHeaders)),
		RawDate:  lookupField(row, dateHeaders),
	}
	if out.RawDate != "" {
		if d, err := clock.ParseRowDate(out.RawDate); err == nil {
			out.Date = d
		}
	}
	return out, nil
}

// lookupField tries each alias exactly, then falls back to a
// case-insensitive scan over the row's headers.
func lookupField(row map[string]string, aliases []string) string {
	for _, a := range aliases {
		if v, ok := row[a]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	for k, v := range row {
		trimmed := strings.TrimSpace(k)
		for _, a := range aliases {
			if strings.EqualFold(trimmed, a) {
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func normalizeCode(raw string) Code {
	c := Code(strings.ToUpper(strings.TrimSpace(raw)))
	if knownCodes[c] {
		return c
	}
	return CodeOther
}

// normalizeLoanType matches "New Loan" vs "Re Loan" as substrings so that
// sheets with embedded non-Latin annotations still classify.
func normalizeLoanType(raw string) LoanType {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "re loan") || strings.Contains(lower, "reloan") || strings.Contains(lower, "re-loan") {
		return LoanTypeReloan
	}
	return LoanTypeNew
}
