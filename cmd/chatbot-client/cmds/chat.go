package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatbot-client/pkg/chatbot"
	"github.com/go-go-golems/chatbot-client/pkg/events"
)

type chatOptions struct {
	newChat    bool
	showEvents bool
	markdown   bool
}

func NewChatCommand() *cobra.Command {
	opts := chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Send a message and stream the reply, or start an interactive session without arguments",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("markdown") {
				opts.markdown = isatty.IsTerminal(os.Stdout.Fd())
			}
			return runChat(cmd.Context(), s, opts, args, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&opts.newChat, "new", false, "Start a new conversation first")
	cmd.Flags().BoolVar(&opts.showEvents, "show-events", false, "Print lifecycle events to stderr")
	cmd.Flags().BoolVar(&opts.markdown, "markdown", false, "Re-render each complete reply as markdown (default: on a terminal)")
	return cmd
}

func runChat(ctx context.Context, s AppSettings, opts chatOptions, args []string, in io.Reader, out, errOut io.Writer) error {
	hooks := chatbot.Hooks{
		OnCheckingAvailability: func(context.Context) error {
			_, err := fmt.Fprintln(errOut, noticeStyle.Render("checking availability..."))
			return err
		},
		OnDoneCheckingAvailability: func(context.Context) error {
			_, err := fmt.Fprintln(errOut, noticeStyle.Render("availability checked"))
			return err
		},
		OnError: func(_ context.Context, err error) {
			_, _ = fmt.Fprintln(errOut, errorStyle.Render(err.Error()))
		},
	}
	cs, err := openClient(ctx, s, opts.showEvents, chatbot.WithHooks(hooks))
	if err != nil {
		return err
	}
	defer cs.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	if opts.showEvents {
		msgs, err := cs.pubsub.Subscribe(ctx, cs.topic)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			for msg := range msgs {
				ev, err := events.Decode(msg)
				msg.Ack()
				if err != nil {
					log.Warn().Err(err).Msg("skipping undecodable event")
					continue
				}
				_, _ = fmt.Fprintln(errOut, eventStyle.Render(fmt.Sprintf("[%s] %s", ev.Type, ev.Content)))
			}
			return nil
		})
	}

	eg.Go(func() error {
		defer cancel()
		if opts.newChat {
			if err := cs.client.NewChat(ctx); err != nil {
				return err
			}
		}
		if len(args) > 0 {
			return sendAndPrint(ctx, cs.client, strings.Join(args, " "), opts, out)
		}
		return repl(ctx, cs.client, opts, in, out)
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func repl(ctx context.Context, client *chatbot.Client, opts chatOptions, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		if _, err := fmt.Fprint(out, promptStyle.Render("> ")); err != nil {
			return err
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			if err := client.NewChat(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, noticeStyle.Render("new chat started"))
			continue
		}
		if err := sendAndPrint(ctx, client, line, opts, out); err != nil {
			var serr *chatbot.ServerError
			if errors.As(err, &serr) {
				// already reported through the error hook
				continue
			}
			return err
		}
	}
}

func sendAndPrint(ctx context.Context, client *chatbot.Client, message string, opts chatOptions, out io.Writer) error {
	var reply strings.Builder
	err := client.FetchChatResponse(ctx, chatbot.ChatRequest{
		NewMessage: message,
		OnNewChunk: func(_ context.Context, chunk string) error {
			reply.WriteString(chunk)
			_, err := io.WriteString(out, chunk)
			return err
		},
		OnDone: func(context.Context) error {
			_, err := fmt.Fprintln(out)
			return err
		},
	})
	if err != nil {
		return err
	}
	if opts.markdown && reply.Len() > 0 {
		_, err = fmt.Fprint(out, renderMarkdown(reply.String()))
	}
	return err
}
