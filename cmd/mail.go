package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/dispatcher"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/gmail"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/server"
)

const emailFlag = "email"

// errOperationFailed makes the process exit non-zero after a failure
// envelope has been printed.
var errOperationFailed = errors.New("operation failed")

// openServerContext builds the ServerContext the mail commands run on.
var openServerContext = func(ctx context.Context) (*server.ServerContext, error) {
	return newServerContext(ctx, cfg, nil)
}

// mailCommand builds a command that runs one dispatcher operation for the
// account named by --email and prints the envelope as JSON.
func mailCommand(use, short string, run func(cmd *cobra.Command, d *dispatcher.Dispatcher, mailbox string) dispatcher.Response) *cobra.Command {
	cmd := &cobra.Command{
		Use:          use,
		Short:        short,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mailbox, _ := cmd.Flags().GetString(emailFlag)
			sc, err := openServerContext(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = sc.Shutdown() }()
			return printEnvelope(cmd, run(cmd, sc.Dispatcher(), mailbox))
		},
	}
	cmd.Flags().String(emailFlag, "", "Gmail account to use")
	_ = cmd.MarkFlagRequired(emailFlag)
	return cmd
}

func printEnvelope(cmd *cobra.Command, resp dispatcher.Response) error {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if !resp.Success() {
		return errOperationFailed
	}
	return nil
}

func newInboxCmd() *cobra.Command {
	return mailCommand("inbox", "Print the 10 most recent inbox messages",
		func(cmd *cobra.Command, d *dispatcher.Dispatcher, mailbox string) dispatcher.Response {
			return d.GetInbox(cmd.Context(), mailbox)
		})
}

func newReadCmd() *cobra.Command {
	var (
		msgID  string
		latest int
	)
	cmd := mailCommand("read", "Print one message, or the newest messages with --latest",
		func(cmd *cobra.Command, d *dispatcher.Dispatcher, mailbox string) dispatcher.Response {
			download, _ := cmd.Flags().GetBool("download")
			if msgID == "" {
				return d.ReadLatest(cmd.Context(), mailbox, latest, download)
			}
			if download {
				return d.DownloadAttachments(cmd.Context(), mailbox, msgID, false)
			}
			return d.GetEmailDetails(cmd.Context(), mailbox, msgID)
		})
	cmd.Flags().StringVar(&msgID, "id", "", "Message ID to read")
	cmd.Flags().IntVar(&latest, "latest", 5, "Number of newest messages to read when --id is not given")
	cmd.Flags().Bool("download", false, "Download attachments of the messages read")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var req dispatcher.SearchRequest
	cmd := mailCommand("search", "Search messages with Gmail query syntax",
		func(cmd *cobra.Command, d *dispatcher.Dispatcher, mailbox string) dispatcher.Response {
			return d.Search(cmd.Context(), mailbox, req)
		})
	cmd.Flags().StringVarP(&req.Query, "query", "q", "", "Gmail search query")
	cmd.Flags().IntVar(&req.MaxResults, "max", 30, "Maximum results per search (0: no limit)")
	cmd.Flags().BoolVar(&req.IncludeConversations, "conversations", true, "Also search conversation threads")
	return cmd
}

func newSendCmd() *cobra.Command {
	var req dispatcher.SendRequest
	cmd := mailCommand("send", "Send an email",
		func(cmd *cobra.Command, d *dispatcher.Dispatcher, mailbox string) dispatcher.Response {
			return d.SendMail(cmd.Context(), mailbox, req)
		})
	cmd.Flags().StringVar(&req.To, "to", "", "Recipient address(es), comma-separated")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "Subject line")
	cmd.Flags().StringVar(&req.Body, "body", "", "Message body")
	cmd.Flags().StringVar(&req.BodyType, "body-type", gmail.BodyTypePlain, "Body format: plain or html")
	cmd.Flags().StringSliceVar(&req.AttachmentPaths, "attach", nil, "File to attach (repeatable)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "accounts",
		Short:        "List the accounts with a stored credential",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := newCredentialStore(cfg, nil)
			if err != nil {
				return err
			}
			mailboxes, err := store.Mailboxes()
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}
			for _, m := range mailboxes {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func newAuthorizeCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:          "authorize",
		Short:        "Authorize an account through the browser and store its credential",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mailbox, _ := cmd.Flags().GetString(emailFlag)
			store, err := newCredentialStore(cfg, nil)
			if err != nil {
				return err
			}
			stored := store.Has(mailbox)
			if force && stored {
				if err := store.Delete(mailbox); err != nil {
					return err
				}
				stored = false
			}
			if _, err := store.Token(cmd.Context(), mailbox); err != nil {
				return err
			}
			path, _ := store.Path(mailbox)
			if stored {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already authorized, credential stored in %s\n", mailbox, path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authorized %s, credential stored in %s\n", mailbox, path)
			return nil
		},
	}
	cmd.Flags().String(emailFlag, "", "Gmail account to authorize")
	cmd.Flags().BoolVar(&force, "force", false, "Discard the stored credential and authorize again")
	_ = cmd.MarkFlagRequired(emailFlag)
	return cmd
}
