package main

import "github.com/urfave/cli/v3"

func adminFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "admin",
		Usage: "Admin username the action is audited under",
	}
}

// exchangesCommand groups ledger maintenance
func exchangesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "exchanges",
		Aliases: []string{"ex"},
		Usage:   "Song exchange ledger maintenance",
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Report paired exchanges without exactly one reciprocal",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CheckExchanges,
			},
			{
				Name:  "dedup",
				Usage: "Remove duplicate exchange rows",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Report what would be removed without deleting",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					adminFlag(),
				},
				Action: r.DedupExchanges,
			},
			{
				Name:  "complete",
				Usage: "Mark a matched exchange and its reciprocal completed",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Exchange ID",
						Required: true,
					},
					adminFlag(),
				},
				Action: r.CompleteExchange,
			},
		},
	}
}

func activitiesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "activities",
		Usage: "Feed maintenance",
		Commands: []*cli.Command{
			{
				Name:  "dedup",
				Usage: "Keep one song_exchange activity set per exchange",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Report what would be removed without deleting",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					adminFlag(),
				},
				Action: r.DedupActivities,
			},
		},
	}
}

func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Account administration",
		Commands: []*cli.Command{
			{
				Name:  "set-type",
				Usage: "Switch a user between basic and premium",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "User ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "type",
						Usage:    "basic or premium",
						Required: true,
					},
					adminFlag(),
				},
				Action: r.SetUserType,
			},
		},
	}
}
