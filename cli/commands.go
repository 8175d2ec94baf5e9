package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"chatline/app"
	"chatline/models"
)

type listOptions struct {
	search string
	all    bool
}

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var (
		email      string
		password   string
		printToken bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials and remember the email for the next sign-in",
		Long: "login signs in once to verify the credentials and stores the email in config.json. " +
			"Tokens are never written to disk; use --print-token to export one for later commands.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				email = os.Getenv(app.EmailEnv)
			}
			if password == "" {
				password = os.Getenv(app.PasswordEnv)
			}
			if email == "" || password == "" {
				return errors.New("email and password are required (flags or CHATLINE_EMAIL and CHATLINE_PASSWORD)")
			}

			a, err := openApp(opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s (@%s)\n", user.DisplayName(), user.Username)
			if printToken {
				fmt.Fprintf(out, "export %s=%s\n", app.AccessTokenEnv, a.Session.Token())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&printToken, "print-token", false, "print the access token as a shell export")
	return cmd
}

func newConversationsCmd(opts *globalOptions) *cobra.Command {
	var lo listOptions
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListConversations(cmd, opts, lo)
		},
	}
	cmd.Flags().StringVarP(&lo.search, "search", "s", "", "filter by the other participant's username or name")
	cmd.Flags().BoolVar(&lo.all, "all", false, "fetch every page instead of the first")
	return cmd
}

func runListConversations(cmd *cobra.Command, opts *globalOptions, lo listOptions) error {
	a, err := signedIn(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	list := a.NewConversationList(nil)
	if err := list.Load(ctx); err != nil {
		return err
	}
	for lo.all && list.HasMore() {
		if err := list.LoadMore(ctx); err != nil {
			return err
		}
	}

	convs := list.Filter(lo.search)
	if len(convs) == 0 {
		if lo.search != "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversations found. Try a different search term")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "No conversations yet.")
		}
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), conversationTable(convs, a.Session.Username()))
	if list.HasMore() && !lo.all {
		fmt.Fprintln(cmd.OutOrStdout(), "More conversations available; pass --all to list them.")
	}
	return nil
}

func newMessagesCmd(opts *globalOptions) *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "Print one page of a conversation's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if page < 1 {
				return fmt.Errorf("invalid --page %d", page)
			}
			a, err := signedIn(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = a.Config.MessagePageSize
			}
			res, err := a.Client.Messages(cmd.Context(), models.ID(args[0]), page, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(res.Messages) == 0 {
				fmt.Fprintln(out, "No messages yet.")
				return nil
			}
			self := a.Session.Username()
			for _, msg := range res.Messages {
				fmt.Fprintln(out, formatMessage(msg, self))
			}
			if res.Pagination != nil && res.Pagination.HasNext {
				fmt.Fprintf(out, "Older messages on page %d.\n", page+1)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number, 1 is the newest")
	cmd.Flags().IntVar(&limit, "limit", 0, "messages per page (default: config message_page_size)")
	return cmd
}

func newCountsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Print unread message counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := signedIn(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := a.Client.NotificationCounts(cmd.Context())
			if err != nil {
				return err
			}
			a.Counts.ApplyFetched(*counts)
			fmt.Fprintln(cmd.OutOrStdout(), formatCounts(a.Counts.Snapshot()))
			return nil
		},
	}
}

func newConfigCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the config file location and values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			c := a.Config
			rows := [][2]string{
				{"config_file", a.ConfigPath},
				{"client_id", c.ClientID},
				{"username", c.Username},
				{"base_api_url", c.BaseAPIURL},
				{"base_ws_url", c.BaseWSURL},
				{"message_page_size", strconv.Itoa(c.MessagePageSize)},
				{"conversation_page_size", strconv.Itoa(c.ConversationPageSize)},
				{"reconnect_delay_ms", strconv.Itoa(c.ReconnectDelayMS)},
				{"ping_interval_ms", strconv.Itoa(c.PingIntervalMS)},
				{"request_retries", strconv.Itoa(c.RequestRetries)},
				{"log_level", c.LogLevel},
			}
			var b strings.Builder
			for _, row := range rows {
				fmt.Fprintf(&b, "%-24s %s\n", row[0], row[1])
			}
			fmt.Fprint(cmd.OutOrStdout(), b.String())
			return nil
		},
	}
}
