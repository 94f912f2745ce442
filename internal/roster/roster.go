// Package roster imports member accounts from an XLSX sheet with the columns
// email, name, student number and initial password (header row first).
package roster

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/janicogyle/ccs-membership-sub001/internal/app/model"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/repository"
	"github.com/janicogyle/ccs-membership-sub001/pkg/logger"
	"github.com/janicogyle/ccs-membership-sub001/pkg/util"
	"github.com/xuri/excelize/v2"
)

const (
	colEmail = iota
	colName
	colStudentNumber
	colPassword
	columnCount
)

// Entry is one valid roster row.
type Entry struct {
	Row           int
	Email         string
	Name          string
	StudentNumber string
	Password      string
}

// RowError explains why a row was skipped. Row is 1-based as shown in a
// spreadsheet.
type RowError struct {
	Row    int
	Reason string
}

// Report is the result of parsing a roster.
type Report struct {
	Entries []Entry
	Skipped []RowError
}

// ReadFile parses the first sheet of the workbook at path.
func ReadFile(path string, minPasswordLength int) (*Report, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, minPasswordLength)
}

// Read parses the first sheet of a workbook streamed from r.
func Read(r io.Reader, minPasswordLength int) (*Report, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX data: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, minPasswordLength)
}

func readWorkbook(f *excelize.File, minPasswordLength int) (*Report, error) {
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in XLSX file")
	}

	report := &Report{}
	seenEmails := make(map[string]int)
	seenStudentNumbers := make(map[string]int)

	// First row is the header.
	for i, row := range rows[1:] {
		rowNum := i + 2
		if isBlank(row) {
			continue
		}

		entry, reason := parseRow(row, minPasswordLength)
		if reason != "" {
			report.Skipped = append(report.Skipped, RowError{Row: rowNum, Reason: reason})
			continue
		}
		if first, dup := seenEmails[entry.Email]; dup {
			report.Skipped = append(report.Skipped, RowError{Row: rowNum, Reason: fmt.Sprintf("duplicate email (first seen on row %d)", first)})
			continue
		}
		if entry.StudentNumber != "" {
			if first, dup := seenStudentNumbers[entry.StudentNumber]; dup {
				report.Skipped = append(report.Skipped, RowError{Row: rowNum, Reason: fmt.Sprintf("duplicate student number (first seen on row %d)", first)})
				continue
			}
			seenStudentNumbers[entry.StudentNumber] = rowNum
		}
		seenEmails[entry.Email] = rowNum

		entry.Row = rowNum
		report.Entries = append(report.Entries, entry)
	}

	return report, nil
}

func parseRow(row []string, minPasswordLength int) (Entry, string) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	entry := Entry{
		Email:         model.NormalizeEmail(cell(colEmail)),
		Name:          cell(colName),
		StudentNumber: cell(colStudentNumber),
		Password:      cell(colPassword),
	}

	switch {
	case entry.Email == "":
		return entry, "missing email"
	case !util.IsValidEmail(entry.Email):
		return entry, "invalid email"
	case entry.Name == "":
		return entry, "missing name"
	case utf8.RuneCountInString(entry.Password) < minPasswordLength:
		return entry, "initial password too short"
	case len(entry.Password) > 72:
		return entry, "initial password too long"
	}
	return entry, ""
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Import hashes the initial passwords and bulk-creates the accounts.
// Accounts whose email or student number already exist are left untouched.
// It returns the number of accounts created.
func Import(ctx context.Context, repo repository.AccountRepository, hasher *util.PasswordHasher, entries []Entry, batchSize int) (int64, error) {
	accounts := make([]model.Account, 0, len(entries))
	for _, e := range entries {
		hash, err := hasher.Hash(e.Password)
		if err != nil {
			return 0, fmt.Errorf("hash password for row %d: %w", e.Row, err)
		}

		account := model.Account{
			Email:        e.Email,
			PasswordHash: hash,
			Name:         e.Name,
			Role:         model.RoleMember,
		}
		if e.StudentNumber != "" {
			sn := e.StudentNumber
			account.StudentNumber = &sn
		}
		accounts = append(accounts, account)
	}

	inserted, err := repo.BulkCreate(ctx, accounts, batchSize)
	if err != nil {
		return 0, err
	}

	logger.Info("Roster imported", map[string]interface{}{
		"rows":     len(entries),
		"inserted": inserted,
		"existing": int64(len(entries)) - inserted,
	})
	return inserted, nil
}
