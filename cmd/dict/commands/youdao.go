package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"dictsync/internal/apperr"
	"dictsync/internal/clients/youdao"
	"dictsync/internal/records"
	"dictsync/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const youdaoRecordKind = "youdao.words"

type youdaoFlags struct {
	refresh bool
	list    bool
	start   string
	end     string
	offset  int
	table   bool
}

func newYoudaoCmd() *cobra.Command {
	flags := &youdaoFlags{}

	cmd := &cobra.Command{
		Use:   "yd [-r] [-l] [-s YYYY-MM-DD] [-e YYYY-MM-DD] [--offset N]",
		Short: "Exports the youdao wordbook and lists its words.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flags.refresh && !flags.list {
				return cmd.Help()
			}
			return runYoudao(cmd.Context(), getApp(cmd.Context()), flags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&flags.refresh, "refresh", "r", false, "Fetch the wordbook from youdao and save it locally.")
	cmd.Flags().BoolVarP(&flags.list, "list", "l", false, "List words, newest first.")
	cmd.Flags().StringVarP(&flags.start, "start", "s", "", "Only list words modified on or after this date.")
	cmd.Flags().StringVarP(&flags.end, "end", "e", "", "Only list words modified on or before this date.")
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "List the first N words, or the last N when negative.")
	cmd.Flags().BoolVar(&flags.table, "table", false, "List words as a table with their translations.")
	return cmd
}

func runYoudao(ctx context.Context, a *app, flags *youdaoFlags, out io.Writer) error {
	svc := a.cfg.Youdao
	if svc == nil {
		return apperr.Newf(apperr.KindConfiguration, "yd", "youdao is not configured")
	}

	var start, end *time.Time
	if flags.start != "" {
		t, err := timezone.ParseDate(flags.start)
		if err != nil {
			return apperr.Newf(apperr.KindConfiguration, "yd", "invalid start date: %w", err)
		}
		start = &t
	}
	if flags.end != "" {
		t, err := timezone.ParseDate(flags.end)
		if err != nil {
			return apperr.Newf(apperr.KindConfiguration, "yd", "invalid end date: %w", err)
		}
		t = timezone.EndOfDay(t)
		end = &t
	}

	store, err := records.Open[youdao.WordItem](svc.RecordsPath(), youdaoRecordKind)
	if err != nil {
		return err
	}
	defer store.Close()

	var words []youdao.WordItem
	if flags.refresh {
		words, err = fetchWords(ctx, a)
		if err != nil {
			return err
		}
		err = store.Save(ctx, words)
		if err != nil {
			return fmt.Errorf("save wordbook: %w", err)
		}
		a.tel.ReportDebug("wordbook saved", len(words), svc.RecordsPath())
	} else {
		words, err = store.Load(ctx)
		if err != nil {
			return err
		}
	}

	if !flags.list {
		return nil
	}

	modified := func(w youdao.WordItem) time.Time {
		return timezone.FromMillis(w.ModifiedTime)
	}
	words = records.Between(words, start, end, modified)
	records.SortNewestFirst(words, modified)
	words = records.FilterOffset(words, flags.offset)

	if flags.table {
		t := newTable(out)
		t.AppendHeader(table.Row{"Word", "Phonetic", "Translation", "Book", "Modified"})
		for _, w := range words {
			t.AppendRow(table.Row{w.Word, w.Phonetic, w.Trans, w.BookName, modified(w).Format(timezone.DateLayout)})
		}
		t.AppendFooter(table.Row{"", "", "", "Total", len(words)})
		t.Render()
		return nil
	}
	for _, w := range words {
		fmt.Fprintln(out, w.Word)
	}
	return nil
}

func fetchWords(ctx context.Context, a *app) ([]youdao.WordItem, error) {
	svc := a.cfg.Youdao
	client, err := youdao.New(youdao.Options{
		Username: svc.Username,
		Password: svc.Password,
		Session:  svc.SessionOptions(a.output),
	}, a.tel)
	if err != nil {
		return nil, err
	}
	defer closeClient(a, client)

	if !client.HasLoggedIn() {
		err = client.Login(ctx)
		if err != nil {
			return nil, err
		}
	}
	return client.Words(ctx)
}

// closeClient persists the client's cookies, a failure is reported but does not fail the
// command.
func closeClient(a *app, client io.Closer) {
	err := client.Close()
	if err != nil {
		a.tel.ReportBroken("client.close", err)
	}
}
