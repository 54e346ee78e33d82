package commands

import (
	"github.com/urfave/cli/v3"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "seele",
		Usage: "A companion chatbot with persistent memory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "Profile name (data lives under data/<profile>)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewChatCommand(),
			NewTelegramCommand(),
			NewGatewayCommand(),
			NewSessionsCommand(),
			NewTasksCommand(),
			NewStatusCommand(),
		},
		DefaultCommand: "chat",
	}
}
