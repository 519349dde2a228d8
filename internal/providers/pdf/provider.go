// Package pdf renders invoice and receipt documents with maroto.
package pdf

import (
	"context"
	"io"
)

// Provider renders billing documents for download.
type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) (io.Reader, error)
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

// InvoiceData is the flattened, pre-formatted document content. Callers
// format amounts and dates; this layer only lays out the page.
type InvoiceData struct {
	SellerName    string
	InvoiceNumber string
	IssueDate     string
	DueDate       string

	BillToName string

	Items []LineItem

	Subtotal  string
	Total     string
	AmountDue string
}

type LineItem struct {
	Description string
	Qty         string
	UnitPrice   string
	Amount      string
}

// ReceiptData extends InvoiceData with payment confirmation.
type ReceiptData struct {
	InvoiceData
	DatePaid string
}
