package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"energy-exchange/internal/amount"
	market "energy-exchange/internal/market/domain"
)

// TradeStatement is an account's trade history over a period.
type TradeStatement struct {
	Account     string
	Asset       string
	From        time.Time
	To          time.Time
	GeneratedAt time.Time
	Trades      []market.Trade
}

// StatementTotals summarises a statement from the account's point of view.
type StatementTotals struct {
	EnergySold   uint64
	EnergyBought uint64
	CreditsIn    uint64
	CreditsOut   uint64
}

// Totals sums sold and bought energy and credits.
func (s TradeStatement) Totals() (StatementTotals, error) {
	var (
		totals StatementTotals
		err    error
	)
	for _, trade := range s.Trades {
		if trade.Seller == s.Account {
			if totals.EnergySold, err = amount.Add(totals.EnergySold, trade.EnergyAmount); err != nil {
				return StatementTotals{}, market.ErrOverflow
			}
			if totals.CreditsIn, err = amount.Add(totals.CreditsIn, trade.TotalCost); err != nil {
				return StatementTotals{}, market.ErrOverflow
			}
		}
		if trade.Buyer == s.Account {
			if totals.EnergyBought, err = amount.Add(totals.EnergyBought, trade.EnergyAmount); err != nil {
				return StatementTotals{}, market.ErrOverflow
			}
			if totals.CreditsOut, err = amount.Add(totals.CreditsOut, trade.TotalCost); err != nil {
				return StatementTotals{}, market.ErrOverflow
			}
		}
	}
	return totals, nil
}

func side(account string, trade market.Trade) string {
	if trade.Seller == account {
		return "sell"
	}
	return "buy"
}

func counterparty(account string, trade market.Trade) string {
	if trade.Seller == account {
		return trade.Buyer
	}
	return trade.Seller
}

func periodLabel(from, to time.Time) string {
	if from.IsZero() && to.IsZero() {
		return "all time"
	}
	start, end := "-", "-"
	if !from.IsZero() {
		start = from.Format(time.RFC3339)
	}
	if !to.IsZero() {
		end = to.Format(time.RFC3339)
	}
	return start + " .. " + end
}

// BuildStatementPDF renders a trade statement as PDF.
func BuildStatementPDF(stmt TradeStatement) ([]byte, error) {
	totals, err := stmt.Totals()
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Energy Trade Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Account: %s", stmt.Account))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Asset: %s", stmt.Asset))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", periodLabel(stmt.From, stmt.To)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", stmt.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(8)
	pdf.Cell(0, 6, fmt.Sprintf("Energy sold: %d  Credits received: %d", totals.EnergySold, totals.CreditsIn))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Energy bought: %d  Credits paid: %d", totals.EnergyBought, totals.CreditsOut))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(40, 6, "Executed", "1", 0, "C", false, 0, "")
	pdf.CellFormat(15, 6, "Side", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Offer", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Counterparty", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Energy", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Price", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Total", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, trade := range stmt.Trades {
		pdf.CellFormat(40, 6, trade.ExecutedAt.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(15, 6, side(stmt.Account, trade), "1", 0, "C", false, 0, "")
		pdf.CellFormat(70, 6, trade.OfferID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, counterparty(stmt.Account, trade), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", trade.EnergyAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", trade.PricePerUnit), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%d", trade.TotalCost), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders a trade statement as XLSX with a summary and a trades sheet.
func BuildStatementXLSX(stmt TradeStatement) ([]byte, error) {
	totals, err := stmt.Totals()
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	tradesSheet := "trades"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(tradesSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Energy Trade Statement")
	_ = f.SetCellValue(summarySheet, "A3", "Account")
	_ = f.SetCellValue(summarySheet, "B3", stmt.Account)
	_ = f.SetCellValue(summarySheet, "A4", "Asset")
	_ = f.SetCellValue(summarySheet, "B4", stmt.Asset)
	_ = f.SetCellValue(summarySheet, "A5", "Period")
	_ = f.SetCellValue(summarySheet, "B5", periodLabel(stmt.From, stmt.To))
	_ = f.SetCellValue(summarySheet, "A6", "Generated")
	_ = f.SetCellValue(summarySheet, "B6", stmt.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A7", "Energy Sold")
	_ = f.SetCellValue(summarySheet, "B7", totals.EnergySold)
	_ = f.SetCellValue(summarySheet, "A8", "Credits Received")
	_ = f.SetCellValue(summarySheet, "B8", totals.CreditsIn)
	_ = f.SetCellValue(summarySheet, "A9", "Energy Bought")
	_ = f.SetCellValue(summarySheet, "B9", totals.EnergyBought)
	_ = f.SetCellValue(summarySheet, "A10", "Credits Paid")
	_ = f.SetCellValue(summarySheet, "B10", totals.CreditsOut)

	headers := []string{"Trade", "Executed", "Side", "Offer", "Counterparty", "Energy", "Price", "Total"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(tradesSheet, cell, header)
	}
	for i, trade := range stmt.Trades {
		row := i + 2
		_ = f.SetCellValue(tradesSheet, fmt.Sprintf("A%d", row), trade.ID)
		_ = f.SetCellValue(tradesSheet, fmt.Sprintf("B%d", row), trade.ExecutedAt.Format(time.RFC3339))
		_ = f.SetCellValue(tradesSheet, fmt.Sprintf("C%d", row), side(stmt.Account, trade))
		_ = f.SetCellValue(tradesSheet, fmt.Sprintf("D%d", row), trade.OfferID)
		_ = f.SetCellValue(tradesSheet, fmt.Sprintf("E%d", row), counterparty(stmt.Account, trade))
		_ = f.SetCellValue(tradesSheet, fmt.Sprintf("F%d", row), trade.EnergyAmount)
		_ = f.SetCellValue(tradesSheet, fmt.Sprintf("G%d", row), trade.PricePerUnit)
		_ = f.SetCellValue(tradesSheet, fmt.Sprintf("H%d", row), trade.TotalCost)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
