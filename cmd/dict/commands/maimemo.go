package commands

import (
	"context"
	"fmt"
	"io"

	"dictsync/internal/apperr"
	"dictsync/internal/captcha"
	"dictsync/internal/clients/maimemo"
	"dictsync/internal/prompt"
	"dictsync/internal/records"
	"dictsync/internal/upload"
	"dictsync/lib/htmlutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const maimemoRecordKind = "maimemo.notepads"

type maimemoFlags struct {
	refresh   bool
	list      bool
	id        string
	upload    bool
	timestamp bool
	append    bool
	table     bool
}

func newMaimemoCmd() *cobra.Command {
	flags := &maimemoFlags{}

	cmd := &cobra.Command{
		Use:   "mm [-r] [-l] [--id ID [-u [-t] [-a]]]",
		Short: "Exports maimemo notepads and uploads new contents into them.",
		Long: "Exports maimemo notepads and uploads new contents into them.\n\n" +
			"With -u the new contents are read from stdin, the captcha and any confirmation are\n" +
			"read from the terminal.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flags.refresh && !flags.list && flags.id == "" {
				return cmd.Help()
			}
			if flags.upload && flags.id == "" {
				return apperr.Newf(apperr.KindConfiguration, "mm", "--upload needs --id")
			}
			return runMaimemo(cmd.Context(), getApp(cmd.Context()), flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&flags.refresh, "refresh", "r", false, "Fetch every notepad from maimemo and save them locally.")
	cmd.Flags().BoolVarP(&flags.list, "list", "l", false, "List notepad summaries.")
	cmd.Flags().StringVar(&flags.id, "id", "", "Print the contents of this notepad, or the notepad to upload into.")
	cmd.Flags().BoolVarP(&flags.upload, "upload", "u", false, "Upload stdin into the notepad given by --id.")
	cmd.Flags().BoolVarP(&flags.timestamp, "timestamp", "t", false, "Insert a timestamp line before the uploaded contents.")
	cmd.Flags().BoolVarP(&flags.append, "append", "a", false, "Keep the current contents and append to them.")
	cmd.Flags().BoolVar(&flags.table, "table", false, "List notepads as a table.")
	return cmd
}

func newMaimemoClient(a *app) (*maimemo.Client, error) {
	svc := a.cfg.Maimemo
	return maimemo.New(maimemo.Options{
		Username: svc.Username,
		Password: svc.Password,
		Session:  svc.SessionOptions(a.output),
	}, a.tel)
}

func runMaimemo(ctx context.Context, a *app, flags *maimemoFlags, stdin io.Reader, out io.Writer) error {
	svc := a.cfg.Maimemo
	if svc == nil {
		return apperr.Newf(apperr.KindConfiguration, "mm", "maimemo is not configured")
	}

	store, err := records.Open[maimemo.Notepad](svc.RecordsPath(), maimemoRecordKind)
	if err != nil {
		return err
	}
	defer store.Close()

	var client *maimemo.Client
	if flags.refresh || flags.upload {
		client, err = newMaimemoClient(a)
		if err != nil {
			return err
		}
		defer closeClient(a, client)

		if !client.HasLoggedIn() {
			err = client.Login(ctx)
			if err != nil {
				return err
			}
		}
	}

	var notepads []maimemo.Notepad
	if flags.refresh {
		notepads, err = client.Notepads(ctx)
		if err != nil {
			return err
		}
		err = store.Save(ctx, notepads)
		if err != nil {
			return fmt.Errorf("save notepads: %w", err)
		}
	} else {
		notepads, err = store.Load(ctx)
		if err != nil {
			return err
		}
	}

	if flags.upload {
		err = uploadNotepad(ctx, a, client, notepads, flags, stdin, out)
		if err != nil {
			return err
		}
		err = store.Save(ctx, notepads)
		if err != nil {
			return fmt.Errorf("save notepads: %w", err)
		}
	}

	if flags.list {
		listNotepads(out, notepads, flags.table)
	}
	if flags.id != "" && !flags.upload {
		for _, n := range notepads {
			if n.NotepadId == flags.id {
				fmt.Fprintln(out, n.Contents)
				return nil
			}
		}
		return apperr.Newf(apperr.KindNotFound, "mm", "%w: notepad %s", apperr.ErrRecordNotFound, flags.id)
	}
	return nil
}

func uploadNotepad(
	ctx context.Context,
	a *app,
	client *maimemo.Client,
	notepads []maimemo.Notepad,
	flags *maimemoFlags,
	contents io.Reader,
	out io.Writer,
) error {
	terminal, closeTerminal, err := prompt.OpenTerminal(a.stdin)
	if err != nil {
		return err
	}
	defer closeTerminal()

	workflow := upload.NewWorkflow(upload.Options{
		Service: client,
		Renderer: captcha.NewRenderer(captcha.Options{
			Path: a.cfg.Maimemo.CaptchaFile(),
			Out:  out,
		}, a.tel),
		Prompt: prompt.New(terminal, out),
		Out:    out,
	}, a.tel)

	updated, err := workflow.Upload(ctx, notepads, flags.id, upload.Policy{
		Append:    flags.append,
		Timestamp: flags.timestamp,
	}, contents)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "uploaded notepad %s (%s), %d characters\n", updated.NotepadId, updated.Title, len(updated.Contents))
	return nil
}

func listNotepads(out io.Writer, notepads []maimemo.Notepad, asTable bool) {
	if !asTable {
		for _, n := range notepads {
			fmt.Fprintln(out, n.String())
		}
		return
	}

	t := newTable(out)
	t.AppendHeader(table.Row{"Id", "Title", "Brief", "First line", "Length", "Private", "Updated"})
	for _, n := range notepads {
		t.AppendRow(table.Row{
			n.NotepadId,
			n.Title,
			n.Brief,
			htmlutil.FirstLine(n.Contents),
			len(n.Contents),
			n.IsPrivate,
			n.UpdatedTime,
		})
	}
	t.Render()
}
