package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tierboard/internal/auth"
	"github.com/tierboard/internal/config"
	"github.com/tierboard/internal/title"
)

func main() {
	cliApp := &cli.App{
		Name:  "tierctl",
		Usage: "administer a tierboard server",
		Commands: []*cli.Command{
			newTokenCommand(),
			newImportCommand(),
			newTitleCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "mint a signed session token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to the server configuration file"},
			&cli.StringFlag{Name: "secret", EnvVars: []string{"TIERBOARD_AUTH_SECRET"}, Usage: "signing secret, overrides the config file"},
			&cli.StringFlag{Name: "subject", Value: "tierctl", Usage: "session subject"},
			&cli.StringFlag{Name: "role", Value: string(auth.RoleAdmin), Usage: "session role (admin or viewer)"},
			&cli.DurationFlag{Name: "ttl", Usage: "session lifetime, defaults to auth.session_ttl"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				cfg = config.DefaultConfig()
			}
			if s := c.String("secret"); s != "" {
				cfg.Auth.Secret = s
			}

			role := auth.Role(c.String("role"))
			if role != auth.RoleAdmin && role != auth.RoleViewer {
				return fmt.Errorf("unknown role %q", role)
			}

			issuer, err := auth.NewIssuer(&cfg.Auth)
			if err != nil {
				return err
			}
			token, session, err := issuer.Issue(c.String("subject"), role, c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "role %s for %s, expires %s\n", session.Role, session.Subject, session.ExpiresAt.Format(time.RFC3339))
			fmt.Println(token)
			return nil
		},
	}
}

func newImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "submit a placement or registration file as one batch",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", EnvVars: []string{"TIERBOARD_SERVER"}, Usage: "server base URL"},
			&cli.StringFlag{Name: "token", EnvVars: []string{"TIERBOARD_TOKEN"}, Required: true, Usage: "admin session token"},
			&cli.BoolFlag{Name: "players", Usage: "file holds name[,secondaryName] registrations instead of placements"},
			&cli.DurationFlag{Name: "timeout", Value: 2 * time.Minute, Usage: "request timeout"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("import needs a FILE argument")
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			kind := kindPlacements
			if c.Bool("players") {
				kind = kindPlayers
			}
			batch, err := parseImport(f, kind)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			for _, msg := range batch.rejected {
				fmt.Printf("  %s: %s\n", path, msg)
			}
			if batch.len() == 0 {
				return fmt.Errorf("%s: nothing to submit", path)
			}

			client := newAPIClient(c.String("server"), c.String("token"), c.Duration("timeout"))
			result, err := client.submit(c.Context, batch)
			if err != nil {
				return err
			}

			fmt.Printf("%d succeeded, %d failed\n", result.SuccessCount, result.FailureCount+len(batch.rejected))
			for _, e := range result.Errors {
				fmt.Printf("  %s:%d: %s\n", path, batch.fileLine(e.Line), e.Message)
			}
			return nil
		},
	}
}

func newTitleCommand() *cli.Command {
	return &cli.Command{
		Name:      "title",
		Usage:     "print the combat title for a point total",
		ArgsUsage: "POINTS",
		Action: func(c *cli.Context) error {
			points, err := strconv.ParseInt(c.Args().First(), 10, 64)
			if err != nil {
				return fmt.Errorf("points must be an integer: %w", err)
			}
			t, err := title.Default.TitleFor(points)
			if err != nil {
				return err
			}
			fmt.Printf("%s (tier %d, from %d points)\n", t.Name, t.VisualTier, t.MinPoints)
			return nil
		},
	}
}
