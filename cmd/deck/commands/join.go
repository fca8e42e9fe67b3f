package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dyluth/deck/internal/listing"
	"github.com/dyluth/deck/internal/printer"
	"github.com/dyluth/deck/pkg/client"
	"github.com/dyluth/deck/pkg/deck"
	"github.com/spf13/cobra"
)

var (
	joinURL      string
	joinUserID   string
	joinNickname string
	joinOnce     bool
)

var joinCmd = &cobra.Command{
	Use:   "join ID",
	Short: "Join a presentation on a running server",
	Long: `Join a presentation over the WebSocket protocol and follow it live.

The current outline is printed on join, then one line per change. With
--once the command exits after printing the outline.

Unlike deck watch this goes through the server, so it works with either
store backend, and the user shows up in the presentation's roster.`,
	Args: cobra.ExactArgs(1),
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&joinURL, "url", "", "WebSocket URL (default derived from server.addr)")
	joinCmd.Flags().StringVar(&joinUserID, "user", "", "User id to join as (required)")
	joinCmd.Flags().StringVar(&joinNickname, "nickname", "", "Display name (defaults to --user)")
	joinCmd.Flags().BoolVar(&joinOnce, "once", false, "Print the outline and exit")
	joinCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := joinURL
	if url == "" {
		url = websocketURL(cfg.Server.Addr)
	}
	nickname := joinNickname
	if nickname == "" {
		nickname = joinUserID
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	c, err := client.Dial(dialCtx, url, nil)
	cancel()
	if err != nil {
		return printer.Error(
			"failed to connect",
			err.Error(),
			[]string{"Start the server with:\n  deck serve", "Pass the server's address with --url"},
		)
	}
	defer c.Close()

	documentID := args[0]
	if err := c.Join(documentID, joinUserID, nickname); err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}
	defer c.Leave(documentID, joinUserID)

	editor := client.NewEditor(c, joinUserID, cfg.History.MaxEntries)
	return follow(ctx, editor, c.Events(), cmd.OutOrStdout(), joinOnce)
}

// follow applies events to editor and reports each change to w until the
// connection closes or ctx is done. The first server error before a snapshot
// arrives ends it, since the join itself failed.
func follow(ctx context.Context, editor *client.Editor, events <-chan deck.Envelope, w io.Writer, once bool) error {
	joined := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case env, ok := <-events:
			if !ok {
				return printer.Error("connection closed", "The server closed the connection.", nil)
			}

			if err := editor.Apply(env); err != nil {
				var serverErr *client.ServerError
				if errors.As(err, &serverErr) && !joined {
					return printer.Error("failed to join presentation", serverErr.Message, []string{"List presentations with:\n  deck list"})
				}
				printer.Warning("%v\n", err)
				continue
			}

			doc := editor.Document()
			if doc == nil {
				continue
			}

			if !joined {
				joined = true
				listing.FormatOutline(w, doc, time.Now())
				if once {
					return nil
				}
				fmt.Fprintln(w)
				continue
			}
			fmt.Fprintln(w, describeChange(env.Event, doc, editor.Role()))
		}
	}
}

func describeChange(event string, doc *deck.Document, role deck.Role) string {
	return fmt.Sprintf("%s  %-20s %d slides, %d participants, you are %s",
		time.Now().Format("15:04:05"), event, doc.SlideCount(), len(doc.Users), role)
}

// websocketURL turns a listen address such as ":3001" into a local ws URL.
func websocketURL(addr string) string {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "ws://" + host + "/ws"
}
