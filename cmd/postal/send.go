package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/postalhq/postal-go/postal"
)

type sendOptions struct {
	from     string
	sender   string
	replyTo  string
	to       []string
	cc       []string
	bcc      []string
	subject  string
	text     string
	html     string
	htmlFile string
	attach   []string
	headers  []string
	tag      string
}

func newSendCmd(a *app) *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message",
		Example: `  postal send --from noreply@example.com --to user@example.com \
    --subject "Hello World" --text "A test message"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := opts.message()
			if err != nil {
				return err
			}
			return a.runSend(cmd, msg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.from, "from", "", "From address")
	f.StringVar(&opts.sender, "sender", "", "Sender header address")
	f.StringVar(&opts.replyTo, "reply-to", "", "Reply-To address")
	f.StringSliceVar(&opts.to, "to", nil, "recipient address (repeatable)")
	f.StringSliceVar(&opts.cc, "cc", nil, "CC address (repeatable)")
	f.StringSliceVar(&opts.bcc, "bcc", nil, "BCC address (repeatable)")
	f.StringVar(&opts.subject, "subject", "", "message subject")
	f.StringVar(&opts.text, "text", "", "plain-text body")
	f.StringVar(&opts.html, "html", "", "HTML body")
	f.StringVar(&opts.htmlFile, "html-file", "", "read the HTML body from a file")
	f.StringArrayVar(&opts.attach, "attach", nil, "file to attach (repeatable)")
	f.StringArrayVar(&opts.headers, "header", nil, "custom header as KEY=VALUE (repeatable)")
	f.StringVar(&opts.tag, "tag", "", "message tag")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func (o sendOptions) message() (postal.Message, error) {
	b := postal.NewMessage().
		To(o.to...).
		From(o.from).
		Sender(o.sender).
		ReplyTo(o.replyTo).
		Subject(o.subject).
		Text(o.text).
		HTML(o.html).
		Tag(o.tag)
	if len(o.cc) > 0 {
		b.CC(o.cc...)
	}
	if len(o.bcc) > 0 {
		b.BCC(o.bcc...)
	}

	if o.htmlFile != "" {
		data, err := os.ReadFile(o.htmlFile)
		if err != nil {
			return postal.Message{}, fmt.Errorf("failed to read html file: %w", err)
		}
		b.HTML(string(data))
	}

	headers, err := parseHeaders(o.headers)
	if err != nil {
		return postal.Message{}, err
	}
	for k, v := range headers {
		b.Header(k, v)
	}

	for _, path := range o.attach {
		data, err := os.ReadFile(path)
		if err != nil {
			return postal.Message{}, fmt.Errorf("failed to read attachment: %w", err)
		}
		name := filepath.Base(path)
		contentType := mime.TypeByExtension(filepath.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		b.Attachment(postal.NewAttachment(name, contentType, data))
	}

	msg := b.Build()
	if errors.Is(msg.Validate(), postal.ErrNoBody) {
		return postal.Message{}, errors.New("one of --text, --html or --html-file is required")
	}
	return msg, nil
}

func (a *app) runSend(cmd *cobra.Command, msg postal.Message) error {
	client, err := a.postalClient()
	if err != nil {
		return err
	}

	ctx, cancel := a.callContext(cmd.Context())
	defer cancel()

	res, err := client.Send(ctx, msg)
	if err != nil {
		return a.reportError(err)
	}
	return a.reportSent(cmd, msg.Subject, res)
}

func newSendRawCmd(a *app) *cobra.Command {
	var (
		from string
		to   []string
		file string
	)

	cmd := &cobra.Command{
		Use:   "send-raw",
		Short: "Send a pre-formatted RFC 2822 message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			client, err := a.postalClient()
			if err != nil {
				return err
			}

			ctx, cancel := a.callContext(cmd.Context())
			defer cancel()

			res, err := client.SendRaw(ctx, postal.NewRawMessage(from, to, data))
			if err != nil {
				return a.reportError(err)
			}
			return a.reportSent(cmd, "", res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&from, "from", "", "envelope sender (MAIL FROM)")
	f.StringSliceVar(&to, "to", nil, "envelope recipient (repeatable)")
	f.StringVar(&file, "file", "-", "message file, - for stdin")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read message file: %w", err)
	}
	return data, nil
}

// reportSent prints the acknowledgment table and records it in history.
func (a *app) reportSent(cmd *cobra.Command, subject string, res *postal.SendResult) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECIPIENT\tID\tTOKEN\tERROR")
	for _, addr := range res.Recipients() {
		rcpt := res.Messages[addr]
		errText := ""
		if rcpt.Error != nil {
			errText = rcpt.Error.Message
			a.log.Rejected(addr, rcpt.Error.Code, rcpt.Error.Message)
		} else {
			a.log.Acknowledged(addr, int64(rcpt.ID), rcpt.Token)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", addr, rcpt.ID, rcpt.Token, errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	store, err := a.historyStore(cmd.Context())
	if err != nil {
		a.log.Warn().Err(err).Msg("history unavailable, send not recorded")
		return nil
	}
	if store != nil {
		if err := store.Record(cmd.Context(), subject, res); err != nil {
			a.log.Warn().Err(err).Msg("failed to record send history")
		}
	}
	return nil
}
