// wabotctl - command line client for the WhatsApp bot control API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/adrianva1983/whatsApp-bot/clients/go/wabot"
)

var rootCmd = &cobra.Command{
	Use:          "wabotctl",
	Short:        "Control a running WhatsApp bot",
	SilenceUsage: true,
	Long: `Control a running WhatsApp bot.

Environment:
  WABOT_URL     Server URL (default: http://localhost:3000)
  WABOT_TOKEN   Control token for the protected endpoints`,
}

func init() {
	rootCmd.PersistentFlags().String("url", envOr("WABOT_URL", "http://localhost:3000"), "server URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("WABOT_TOKEN"), "control token")

	messagesCmd.Flags().Int("limit", 20, "number of messages")
	messagesCmd.Flags().Bool("raw", false, "print raw messages")

	rootCmd.AddCommand(statusCmd, healthCmd, messagesCmd, clearCmd, sendCmd, logoutCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newClient(cmd *cobra.Command) *wabot.Client {
	baseURL, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("token")
	return wabot.NewClient(baseURL, token)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newClient(cmd).Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Status: %s\n", s.Status)
		if s.Identity != nil {
			fmt.Printf("Linked: %s %s\n", s.Identity.ID, s.Identity.Name)
		}
		if s.LastError != "" {
			fmt.Printf("Last error: %s\n", s.LastError)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newClient(cmd).Health(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(h)
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <number>",
	Short: "Show buffered messages of a number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		raw, _ := cmd.Flags().GetBool("raw")

		resp, err := newClient(cmd).Messages(cmd.Context(), args[0], limit, raw)
		if err != nil {
			return err
		}
		if resp.Count == 0 {
			fmt.Println("No messages.")
			return nil
		}
		return printJSON(resp.Data)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <number>",
	Short: "Drop buffered messages of a number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).ClearMessages(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Cleared %s\n", args[0])
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <number> <text>",
	Short: "Send a test message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient(cmd).SendTest(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Sent.")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Unlink the device and start a new pairing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := newClient(cmd).Logout(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow session updates and inbound messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err := newClient(cmd).Events(ctx, func(ev wabot.Event) error {
			ts := time.Now().Format("15:04:05")
			switch {
			case ev.State != nil:
				line := ev.State.Status
				if ev.State.LastError != "" {
					line += " (" + ev.State.LastError + ")"
				}
				fmt.Printf("[%s] state: %s\n", ts, line)
			case ev.Message != nil:
				from := ev.Message.Number
				if ev.Message.IsGroup {
					from = ev.Message.GroupID + "/" + from
				}
				fmt.Printf("[%s] %s: %s\n", ts, from, ev.Message.Text)
			}
			return nil
		})
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
