// Package upload replaces or extends the contents of a maimemo notepad. Every submission
// needs a captcha solved by the operator, a rejected one is only retried when the operator
// asks for it.
package upload

import (
	"context"
	"fmt"
	"io"

	"dictsync/internal/apperr"
	"dictsync/internal/clients/maimemo"
	"dictsync/internal/components/assert"
	"dictsync/internal/components/chrono"
	"dictsync/internal/components/telemetry"
	"dictsync/internal/records"
)

const report_workflow_upload = "workflow.upload"

const timestampLayout = "2006-01-02 15:04:05"

// Service is the part of the maimemo client an upload needs.
type Service interface {
	HasLoggedIn() bool
	RefreshCaptcha(ctx context.Context) ([]byte, error)
	SaveNotepad(ctx context.Context, notepad maimemo.Notepad, captcha string) error
}

type Renderer interface {
	Render(image []byte) error
}

type Prompter interface {
	ReadLine(question string) (string, error)
	Confirm(question string) (bool, error)
}

// Policy decides how new contents are combined with the existing ones.
type Policy struct {
	// Append keeps the current contents instead of replacing them.
	Append bool
	// Timestamp inserts a marker line with the current time before the new contents.
	Timestamp bool
}

type Options struct {
	Service  Service
	Renderer Renderer
	Prompt   Prompter
	Out      io.Writer
	Clock    chrono.API
}

type Workflow struct {
	tel      telemetry.API
	service  Service
	renderer Renderer
	prompt   Prompter
	out      io.Writer
	time     chrono.API
}

func NewWorkflow(opts Options, tel telemetry.API) *Workflow {
	assert.NotNil(opts.Service)
	assert.NotNil(opts.Renderer)
	assert.NotNil(opts.Prompt)
	assert.NotNil(opts.Out)

	clock := opts.Clock
	if clock == nil {
		clock = chrono.NewStandardImpl()
	}
	return &Workflow{
		tel:      telemetry.NewScopedAPI("upload", tel),
		service:  opts.Service,
		renderer: opts.Renderer,
		prompt:   opts.Prompt,
		out:      opts.Out,
		time:     clock,
	}
}

func notFound(notepads []maimemo.Notepad, id string) error {
	ids := make([]string, len(notepads))
	titles := make(map[string]string, len(notepads))
	for i, n := range notepads {
		ids[i] = n.NotepadId
		titles[n.NotepadId] = n.Title
	}
	suggestion, ok := records.Suggest(id, ids)
	if ok {
		return apperr.Newf(apperr.KindNotFound, "upload", "%w: notepad %s, did you mean %s (%s)?", apperr.ErrRecordNotFound, id, suggestion, titles[suggestion])
	}
	return apperr.Newf(apperr.KindNotFound, "upload", "%w: notepad %s", apperr.ErrRecordNotFound, id)
}

// Build returns a copy of notepad with contents combined according to policy.
func (w *Workflow) Build(notepad maimemo.Notepad, policy Policy, contents io.Reader) (maimemo.Notepad, error) {
	if !policy.Append {
		notepad.Contents = ""
	}
	if policy.Timestamp {
		notepad.Contents += fmt.Sprintf("\n# %s Auto insert\n", w.time.Now().Format(timestampLayout))
	}
	read, err := io.ReadAll(contents)
	if err != nil {
		return maimemo.Notepad{}, fmt.Errorf("read contents: %w", err)
	}
	notepad.Contents += string(read)
	return notepad, nil
}

// Upload submits the notepad id of notepads with the contents read from contents, then
// replaces it in notepads. notepads is left untouched on any error.
func (w *Workflow) Upload(ctx context.Context, notepads []maimemo.Notepad, id string, policy Policy, contents io.Reader) (maimemo.Notepad, error) {
	if !w.service.HasLoggedIn() {
		return maimemo.Notepad{}, apperr.New(apperr.KindAuth, "upload", apperr.ErrNotLoggedIn)
	}

	idx := -1
	for i, n := range notepads {
		if n.NotepadId == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return maimemo.Notepad{}, notFound(notepads, id)
	}

	updated, err := w.Build(notepads[idx], policy, contents)
	if err != nil {
		return maimemo.Notepad{}, err
	}

	for attempt := 1; ; attempt++ {
		err = w.submit(ctx, updated)
		if err == nil {
			w.tel.ReportDebug("notepad uploaded", id, attempt)
			break
		}
		switch apperr.KindOf(err) {
		case apperr.KindProtocol, apperr.KindTransport:
		default:
			return maimemo.Notepad{}, err
		}

		w.tel.ReportWarning(report_workflow_upload, err, id, attempt)
		fmt.Fprintf(w.out, "upload error: %v\n", err)
		again, err := w.prompt.Confirm("try again?")
		if err != nil {
			return maimemo.Notepad{}, fmt.Errorf("read confirmation: %w", err)
		}
		if !again {
			return maimemo.Notepad{}, apperr.New(apperr.KindUserAborted, "upload", apperr.ErrUserAborted)
		}
	}

	notepads[idx] = updated
	return updated, nil
}

func (w *Workflow) submit(ctx context.Context, notepad maimemo.Notepad) error {
	image, err := w.service.RefreshCaptcha(ctx)
	if err != nil {
		return fmt.Errorf("refresh captcha: %w", err)
	}
	err = w.renderer.Render(image)
	if err != nil {
		return err
	}
	captcha, err := w.prompt.ReadLine("please enter captcha: ")
	if err != nil {
		return fmt.Errorf("read captcha: %w", err)
	}
	return w.service.SaveNotepad(ctx, notepad, captcha)
}
