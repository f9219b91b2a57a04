package bankfeed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseCalendarDate parses a "YYYY-MM-DD" provider date as a UTC midnight
// instant. Providers send calendar days, not instants: parsing them in the
// server's local zone shifts the day near midnight for any non-UTC offset, so
// the date is always rebuilt from explicit UTC year/month/day components.
func ParseCalendarDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid calendar date %q", s)
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid year in date %q: %w", s, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month in date %q: %w", s, err)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day in date %q: %w", s, err)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("calendar date %q out of range", s)
	}

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// Normalize maps a raw provider transaction plus its account metadata into
// the canonical candidate shape.
func Normalize(tx RawTransaction, acct RawAccount) (Candidate, error) {
	date, err := ParseCalendarDate(tx.Date)
	if err != nil {
		return Candidate{}, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}

	name := strings.TrimSpace(tx.Description)
	if name == "" {
		name = tx.MerchantName
	}
	if name == "" {
		name = "Transaction"
	}

	labels := tx.CategoryLabels
	if labels == nil {
		labels = []string{}
	}

	accountName := acct.Name
	if accountName == "" {
		accountName = "Unknown Account"
	}
	institution := acct.InstitutionName
	if institution == "" {
		institution = "Unknown Institution"
	}

	return Candidate{
		ExternalID:      tx.ID,
		Amount:          tx.Amount,
		Date:            date,
		Name:            name,
		MerchantName:    tx.MerchantName,
		CategoryLabels:  labels,
		AccountName:     accountName,
		InstitutionName: institution,
		Pending:         tx.Pending,
		AccountType:     acct.Type,
	}, nil
}
