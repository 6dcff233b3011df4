package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"stock-forecaster/models"
	"stock-forecaster/observability"
)

const headerRange = "A1:D1"

// SheetsService writes forecast rows to Google Sheets
type SheetsService struct {
	srv *sheets.Service
}

// NewSheetsService creates a Sheets client authenticated with a service
// account file. A custom endpoint without credentials is used unauthenticated.
func NewSheetsService(ctx context.Context, credentialsFile, endpoint string) (*SheetsService, error) {
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}

	hasCredentials := false
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err == nil {
			hasCredentials = true
		}
	}

	switch {
	case hasCredentials:
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	case endpoint != "":
		opts = append(opts, option.WithoutAuthentication())
	default:
		return nil, fmt.Errorf("google credentials file %q not found", credentialsFile)
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return &SheetsService{srv: srv}, nil
}

// AppendRows makes sure the first sheet carries the forecast header and
// appends rows below the existing data. It returns the number of rows written.
func (s *SheetsService) AppendRows(ctx context.Context, spreadsheetID string, rows [][]string) (int, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerSheets, "append")
	timer := metrics.NewTimer()

	written, err := WithCircuitBreaker(ctx, BreakerSheets, func() (int, error) {
		if err := s.ensureHeader(ctx, spreadsheetID); err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			return 0, nil
		}

		resp, err := s.srv.Spreadsheets.Values.
			Append(spreadsheetID, "A:D", &sheets.ValueRange{Values: toCells(rows)}).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			return 0, fmt.Errorf("failed to append rows: %w", err)
		}
		if resp.Updates != nil && resp.Updates.UpdatedRows > 0 {
			return int(resp.Updates.UpdatedRows), nil
		}
		return len(rows), nil
	})

	timer.ObserveExternalAPI(BreakerSheets, "append")
	if err != nil {
		metrics.RecordExternalAPIError(BreakerSheets, "append", categorizeAPIError(err))
		return written, err
	}
	return written, nil
}

func (s *SheetsService) ensureHeader(ctx context.Context, spreadsheetID string) error {
	current, err := s.srv.Spreadsheets.Values.Get(spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read header row: %w", err)
	}
	if headerMatches(current.Values) {
		return nil
	}

	_, err = s.srv.Spreadsheets.Values.
		Update(spreadsheetID, headerRange, &sheets.ValueRange{Values: toCells([][]string{models.SheetColumns})}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	return nil
}

// WriteNewSheet adds a sheet titled title and writes the header plus rows to it
func (s *SheetsService) WriteNewSheet(ctx context.Context, spreadsheetID, title string, rows [][]string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("sheet title is required")
	}

	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerSheets, "new_sheet")
	timer := metrics.NewTimer()

	_, err := WithCircuitBreaker(ctx, BreakerSheets, func() (struct{}, error) {
		_, err := s.srv.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}}},
			},
		}).Context(ctx).Do()
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to add sheet %q: %w", title, err)
		}

		values := append([][]string{models.SheetColumns}, rows...)
		_, err = s.srv.Spreadsheets.Values.
			Update(spreadsheetID, quoteSheet(title)+"!A1", &sheets.ValueRange{Values: toCells(values)}).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to write sheet %q: %w", title, err)
		}
		return struct{}{}, nil
	})

	timer.ObserveExternalAPI(BreakerSheets, "new_sheet")
	if err != nil {
		metrics.RecordExternalAPIError(BreakerSheets, "new_sheet", categorizeAPIError(err))
	}
	return err
}

func headerMatches(values [][]interface{}) bool {
	if len(values) == 0 || len(values[0]) != len(models.SheetColumns) {
		return false
	}
	for i, col := range models.SheetColumns {
		if fmt.Sprint(values[0][i]) != col {
			return false
		}
	}
	return true
}

func toCells(rows [][]string) [][]interface{} {
	cells := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		r := make([]interface{}, len(row))
		for i, v := range row {
			r[i] = v
		}
		cells = append(cells, r)
	}
	return cells
}

// quoteSheet quotes a sheet title for use in A1 notation
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
