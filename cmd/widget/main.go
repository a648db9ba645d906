// CCGPT widget runtime CLI.
//
// `widget chat` mounts the embeddable widget in the terminal against a
// backend; `widget serve` runs the local stub backend. Configuration
// layering matches the library: defaults <- JSON config file <- flags,
// with CCGPT_WIDGET_* environment variables on top.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/config"
	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/devserver"
	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/logger"
	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/store"
	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/widget"
)

func main() {
	root := &cobra.Command{
		Use:           "widget",
		Short:         "Embeddable support-chat widget runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var logLevel string
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error|quiet)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logger.SetLevel(logLevel)
	}

	root.AddCommand(chatCommand(), serveCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func chatCommand() *cobra.Command {
	var (
		codeID     string
		apiBase    string
		wsBase     string
		configPath string
		stateDir   string
		noPush     bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run the widget interactively in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			if codeID != "" {
				overrides.CodeID = codeID
			}
			if apiBase != "" {
				overrides.APIBase = apiBase
			}
			if wsBase != "" {
				overrides.WSBase = wsBase
			}

			cfg, err := config.Resolve(overrides)
			if err != nil {
				return err
			}

			opts := []widget.Option{
				widget.WithRenderer(newTerminalRenderer(cfg.Title)),
			}
			if stateDir != "" {
				opts = append(opts, widget.WithStore(store.NewFileStore(stateDir)))
			}

			wd, err := widget.New(cfg, opts...)
			if err != nil {
				return err
			}
			defer wd.Shutdown()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if !noPush {
				wd.StartPush(ctx)
			}
			wd.Open()

			fmt.Println("Commands: /open, /close, /quit. Anything else is sent to the bot.")

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "/quit":
					return nil
				case "/open":
					wd.Open()
				case "/close":
					wd.Close()
				default:
					if err := wd.SendMessage(ctx, line); err != nil {
						fmt.Println("(open the widget first with /open)")
					}
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&codeID, "code", "", "embed code id (required unless set in config/env)")
	cmd.Flags().StringVar(&apiBase, "api", "", "backend API base URL")
	cmd.Flags().StringVar(&wsBase, "ws", "", "backend WebSocket base URL (empty disables push)")
	cmd.Flags().StringVar(&configPath, "config", "widget.json", "path to JSON config overrides")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "session state directory (default ~/.ccgpt/widget)")
	cmd.Flags().BoolVar(&noPush, "no-push", false, "disable the WebSocket push channel")

	return cmd
}

func serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local stub backend (echo bot)",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := devserver.New(addr, nil)
			if err := srv.Start(); err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig

			return srv.Stop(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0:18800", "listen address")

	return cmd
}

// terminalRenderer prints transcript changes line by line instead of
// repainting, which reads better in a scrollback terminal.
type terminalRenderer struct {
	mu      sync.Mutex
	title   string
	printed int
	typing  bool
	open    bool
}

func newTerminalRenderer(title string) *terminalRenderer {
	return &terminalRenderer{title: title}
}

func (r *terminalRenderer) Render(snap widget.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if open := snap.State == widget.StateOpen; open != r.open {
		r.open = open
		if open {
			fmt.Printf("--- %s ---\n", r.title)
		} else {
			fmt.Println("--- closed ---")
		}
	}

	// Eviction can shrink the transcript below what we already printed.
	if r.printed > len(snap.Messages) {
		r.printed = len(snap.Messages)
	}
	for _, msg := range snap.Messages[r.printed:] {
		prefix := "bot"
		if msg.Role == widget.RoleUser {
			prefix = "you"
		}
		fmt.Printf("[%s] %s\n", prefix, msg.Text)
		for _, src := range msg.Sources {
			fmt.Printf("      source: %s %s\n", src.Title, src.URL)
		}
	}
	r.printed = len(snap.Messages)

	if snap.Typing != r.typing {
		r.typing = snap.Typing
		if r.typing {
			fmt.Println("(bot is typing...)")
		}
	}
}
