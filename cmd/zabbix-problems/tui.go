package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zabbix-problems/zabbix-problems/internal/tui/app"
	"github.com/zabbix-problems/zabbix-problems/internal/tui/client"
)

var (
	tuiURL   string
	tuiToken string
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Watch a running server in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := client.NewWSClient(tuiURL, tuiToken)
		httpClient := client.NewHTTPClient(client.DeriveHTTPBase(tuiURL), tuiToken)

		p := tea.NewProgram(app.New(ws, httpClient), tea.WithAltScreen())
		_, err := p.Run()
		ws.Close()
		return err
	},
}

func init() {
	tuiCmd.Flags().StringVar(&tuiURL, "url", "ws://127.0.0.1:8123/ws", "WebSocket URL of the server")
	tuiCmd.Flags().StringVar(&tuiToken, "token", "", "Auth token (if the server requires it)")
}
