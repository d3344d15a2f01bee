package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent dispatch history.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show dispatch history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, total, err := store.ListDispatches(ctx, 1, opts.Limit, opts.Status)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no dispatches found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tCreated (UTC)\tProvider\tStatus\tRecipients\tCost\tError")

	for _, rec := range records {
		errMsg := ""
		if rec.Error != nil {
			errMsg = sanitizeInline(*rec.Error)
		}
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.ID,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Provider,
			rec.Status,
			rec.RecipientCount,
			formatDecimal(rec.Cost, 2),
			errMsg,
		)
	}

	writer.Flush()
	fmt.Fprintf(os.Stdout, "showing %d of %d dispatches\n", len(records), total)
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
