package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatline/api"
	"chatline/app"
	"chatline/chat"
	"chatline/models"
	"chatline/network"
)

const defaultEchoWait = 5 * time.Second

func newSendCmd(opts *globalOptions) *cobra.Command {
	var (
		phone     string
		audioPath string
		wait      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send [conversation-id] <text...>",
		Short: "Send a message to a conversation, or a first message with --phone",
		Args: func(_ *cobra.Command, args []string) error {
			if phone == "" && len(args) < 1 {
				return errors.New("requires a conversation id")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var clip []byte
			if audioPath != "" {
				raw, err := os.ReadFile(audioPath)
				if err != nil {
					return fmt.Errorf("read audio clip: %w", err)
				}
				clip = raw
			}

			a, err := signedIn(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if phone != "" {
				return sendFirst(cmd, a, phone, strings.Join(args, " "), clip)
			}
			text := strings.Join(args[1:], " ")
			if strings.TrimSpace(text) == "" && clip == nil {
				return chat.ErrEmptyMessage
			}
			return sendToRoom(cmd, a, models.ID(args[0]), text, clip, wait)
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "start or continue a conversation with this phone number")
	cmd.Flags().StringVar(&audioPath, "audio", "", "send this file as an audio clip")
	cmd.Flags().DurationVar(&wait, "wait", defaultEchoWait, "how long to wait for the server to echo the message")
	return cmd
}

func sendFirst(cmd *cobra.Command, a *app.App, phone, text string, clip []byte) error {
	composer := a.NewComposer(phone)
	var (
		res *api.FirstMessageResult
		err error
	)
	if clip != nil {
		res, err = composer.SendAudio(cmd.Context(), clip)
	} else {
		res, err = composer.Send(cmd.Context(), text)
	}
	if err != nil {
		return err
	}

	state := "existing"
	if res.IsNewConversation {
		state = "new"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent #%s to %s conversation %s\n", res.Message.ID, state, res.ConversationID)
	return nil
}

func sendToRoom(cmd *cobra.Command, a *app.App, id models.ID, text string, clip []byte, wait time.Duration) error {
	self := a.Session.Username()
	echoed := make(chan models.Message, 1)
	room := a.NewRoom(id, app.RoomHooks{
		OnNewMessage: func(_ models.ID, msg models.Message) {
			if msg.SenderUsername != self {
				return
			}
			select {
			case echoed <- msg:
			default:
			}
		},
	})
	defer room.Close()

	ctx := cmd.Context()
	if err := room.Open(ctx); err != nil && room.Status() != network.StatusConnected {
		return err
	}

	var err error
	if clip != nil {
		err = room.SendAudio(clip)
	} else {
		err = room.Send(text)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	select {
	case msg := <-echoed:
		fmt.Fprintf(out, "sent #%s\n", msg.ID)
	case <-time.After(wait):
		fmt.Fprintln(out, "sent (no echo from the server yet)")
	case <-ctx.Done():
	}
	return nil
}

func newTailCmd(opts *globalOptions) *cobra.Command {
	var (
		history    int
		withCounts bool
	)
	cmd := &cobra.Command{
		Use:   "tail <conversation-id>...",
		Short: "Follow live messages in one or more conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := signedIn(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := &lockedWriter{w: cmd.OutOrStdout()}
			g, ctx := errgroup.WithContext(cmd.Context())
			for _, raw := range args {
				id := models.ID(raw)
				g.Go(func() error {
					return tailRoom(ctx, a, id, history, out)
				})
			}
			if withCounts {
				g.Go(func() error {
					return watchCounts(ctx, a, out)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().IntVar(&history, "history", 10, "print this many recent messages before following")
	cmd.Flags().BoolVar(&withCounts, "counts", false, "also follow unread counts")
	return cmd
}

func newWatchCountsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch-counts",
		Short: "Follow unread counts from the notifications socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := signedIn(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return watchCounts(cmd.Context(), a, &lockedWriter{w: cmd.OutOrStdout()})
		},
	}
}

// tailRoom prints a conversation until ctx is cancelled.
func tailRoom(ctx context.Context, a *app.App, id models.ID, history int, out io.Writer) error {
	self := a.Session.Username()
	label := "conversation " + id.String()

	incoming := make(chan models.Message, 64)
	events := make(chan chat.EventKind, 16)
	room := a.NewRoom(id, app.RoomHooks{
		OnEvent: func(ev chat.Event) {
			if ev.Kind == chat.EventMessages || ev.Kind == chat.EventTyping {
				return
			}
			select {
			case events <- ev.Kind:
			default:
			}
		},
		OnNewMessage: func(_ models.ID, msg models.Message) {
			select {
			case incoming <- msg:
			default:
				a.Logger.Warnw("tail output is behind, dropping message", "conversation", id.String())
			}
		},
	})
	defer room.Close()

	if err := room.Open(ctx); err != nil {
		if errors.Is(err, chat.ErrFetchMessages) || ctx.Err() != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		fmt.Fprintf(out, "%s: %v (retrying)\n", label, err)
	}

	msgs := room.Messages()
	if history >= 0 && len(msgs) > history {
		msgs = msgs[len(msgs)-history:]
	}
	printed := make(map[models.ID]struct{}, len(msgs))
	for _, msg := range msgs {
		printed[msg.ID] = struct{}{}
		fmt.Fprintf(out, "%s %s\n", label, formatMessage(msg, self))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-incoming:
			if _, seen := printed[msg.ID]; seen {
				continue
			}
			fmt.Fprintf(out, "%s %s\n", label, formatMessage(msg, self))
		case kind := <-events:
			switch kind {
			case chat.EventStatus:
				fmt.Fprintln(out, formatStatus(label, room.Status()))
			case chat.EventError:
				if text := room.Error(); text != "" {
					fmt.Fprintf(out, "%s: %s\n", label, text)
				}
			}
		}
	}
}

// watchCounts prints unread count snapshots until ctx is cancelled.
func watchCounts(ctx context.Context, a *app.App, out io.Writer) error {
	notifier := a.NewNotifier(app.NotifierHooks{
		OnConversationUpdate: func(conv models.Conversation, isNew bool) {
			verb := "updated"
			if isNew {
				verb = "created"
			}
			fmt.Fprintf(out, "conversation %s %s\n", conv.ID, verb)
		},
		OnConversationDelete: func(id models.ID) {
			fmt.Fprintf(out, "conversation %s deleted\n", id)
		},
		OnStatus: func(s network.Status) {
			fmt.Fprintln(out, formatStatus("notifications", s))
		},
	})

	updates, cancel := a.Counts.Subscribe()
	defer cancel()

	if err := notifier.Start(); err != nil {
		a.Logger.Warnw("notifications socket dial failed, retrying", "error", err)
	}
	defer notifier.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			fmt.Fprintln(out, formatCounts(snap))
		}
	}
}

// lockedWriter serialises lines written by concurrent followers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
