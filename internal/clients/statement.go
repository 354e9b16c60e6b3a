package clients

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/altamar-retail/altamar-retail/internal/ledger"
)

// Statement is the replayed view of a client's account: an opening balance
// carried forward from entries older than the window, then every windowed
// entry with its running balance.
type Statement struct {
	Client  Client
	Opening float64
	Lines   []ledger.StatementLine
}

// WriteStatementCSV renders a statement as CSV with formatted amounts.
func WriteStatementCSV(w io.Writer, st Statement) error {
	printer := message.NewPrinter(language.English)
	if _, err := fmt.Fprintf(w, "client,%d,%s\n", st.Client.ID, st.Client.Name); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "occurred_at,seq,reason,reference,amount,running_balance\n"); err != nil {
		return err
	}
	if st.Opening != 0 {
		if _, err := fmt.Fprintf(w, "opening,,,,,%q\n", printer.Sprintf("%.2f", st.Opening)); err != nil {
			return err
		}
	}
	for _, line := range st.Lines {
		e := line.Entry
		// Grouped amounts ("1,234.50") are quoted to stay CSV-safe.
		_, err := fmt.Fprintf(w, "%s,%d,%s,%s,%q,%q\n",
			e.OccurredAt.UTC().Format(time.RFC3339), e.Seq, e.Reason, e.Reference,
			printer.Sprintf("%.2f", e.Amount), printer.Sprintf("%.2f", line.RunningBalance))
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "total,,,,%q,\n", printer.Sprintf("%.2f", st.Client.Balance))
	return err
}
