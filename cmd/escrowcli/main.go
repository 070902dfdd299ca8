package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/sipfs/policy-escrow-backend/api"
	"github.com/sipfs/policy-escrow-backend/cmd/flags"
	"github.com/sipfs/policy-escrow-backend/interfaces"
)

var flagUsername = &cli.StringFlag{
	Name:     "username",
	Required: true,
	Usage:    "account username",
}
var flagPassword = &cli.StringFlag{
	Name:     "password",
	Required: true,
	Usage:    "account password",
}
var flagRole = &cli.StringFlag{
	Name:  "role",
	Value: string(interfaces.RoleRequester),
	Usage: "account role: 'Data Owner' or 'Data Requester'",
}
var flagPolicy = &cli.StringFlag{
	Name:  "policy",
	Usage: `policy set as JSON, e.g. '[{"interest":["AI"],"languages":["Python"]}]'`,
}
var flagFile = &cli.StringFlag{
	Name:     "file",
	Required: true,
	Usage:    "path of the content file",
}
var flagName = &cli.StringFlag{
	Name:     "name",
	Required: true,
	Usage:    "logical document name",
}
var flagKind = &cli.StringFlag{
	Name:  "kind",
	Usage: "document kind tag",
}
var flagThreshold = &cli.IntFlag{
	Name:  "threshold",
	Usage: "fragments required to recover the access key (default all)",
}
var flagAsset = &cli.StringFlag{
	Name:     "asset",
	Required: true,
	Usage:    "asset ID",
}
var flagSubject = &cli.StringFlag{
	Name:     "subject",
	Required: true,
	Usage:    "username the grant or revocation applies to",
}

func newClient(cCtx *cli.Context) *api.Client {
	c := api.NewClient(cCtx.String(flags.ServerURLFlag.Name))
	if token := cCtx.String(flags.TokenFlag.Name); token != "" {
		c.SetToken(token)
	}
	return c
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func main() {
	app := &cli.App{
		Name:  "escrowcli",
		Usage: "Command line client for the policy escrow API",
		Flags: []cli.Flag{
			flags.ServerURLFlag,
			flags.TokenFlag,
		},
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Enroll a new account and print its bearer token",
				Flags: []cli.Flag{flagUsername, flagPassword, flagRole, flagPolicy},
				Action: func(cCtx *cli.Context) error {
					resp, err := newClient(cCtx).Register(api.RegisterRequest{
						Username:  cCtx.String(flagUsername.Name),
						Password:  cCtx.String(flagPassword.Name),
						Role:      interfaces.Role(cCtx.String(flagRole.Name)),
						PolicySet: json.RawMessage(cCtx.String(flagPolicy.Name)),
					})
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "login",
				Usage: "Authenticate and print a bearer token",
				Flags: []cli.Flag{flagUsername, flagPassword},
				Action: func(cCtx *cli.Context) error {
					resp, err := newClient(cCtx).Login(cCtx.String(flagUsername.Name), cCtx.String(flagPassword.Name))
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "upload",
				Usage: "Release a file under a policy set",
				Flags: []cli.Flag{flagFile, flagName, flagKind, flagPolicy, flagThreshold},
				Action: func(cCtx *cli.Context) error {
					content, err := os.ReadFile(cCtx.String(flagFile.Name))
					if err != nil {
						return err
					}
					resp, err := newClient(cCtx).Upload(api.UploadRequest{
						Name:      cCtx.String(flagName.Name),
						Kind:      cCtx.String(flagKind.Name),
						PolicySet: json.RawMessage(cCtx.String(flagPolicy.Name)),
						Content:   content,
						Threshold: cCtx.Int(flagThreshold.Name),
					})
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "download",
				Usage: "Download an asset's content after the access decision",
				Flags: []cli.Flag{flagAsset, &cli.StringFlag{
					Name:  "out",
					Usage: "write content to this path instead of stdout",
				}},
				Action: func(cCtx *cli.Context) error {
					resp, err := newClient(cCtx).Download(cCtx.String(flagAsset.Name))
					if err != nil {
						return err
					}
					if out := cCtx.String("out"); out != "" {
						return os.WriteFile(out, resp.Content, 0o644)
					}
					_, err = os.Stdout.Write(resp.Content)
					return err
				},
			},
			{
				Name:  "list",
				Usage: "List all released assets",
				Action: func(cCtx *cli.Context) error {
					assets, err := newClient(cCtx).ListAssets()
					if err != nil {
						return err
					}
					return printJSON(assets)
				},
			},
			{
				Name:  "versions",
				Usage: "List all versions of one of your documents, newest first",
				Flags: []cli.Flag{flagName, flagKind},
				Action: func(cCtx *cli.Context) error {
					versions, err := newClient(cCtx).Versions(cCtx.String(flagName.Name), cCtx.String(flagKind.Name))
					if err != nil {
						return err
					}
					return printJSON(versions)
				},
			},
			{
				Name:  "revoke",
				Usage: "Permanently revoke a user's access to your asset",
				Flags: []cli.Flag{flagAsset, flagSubject},
				Action: func(cCtx *cli.Context) error {
					return newClient(cCtx).Revoke(cCtx.String(flagAsset.Name), cCtx.String(flagSubject.Name))
				},
			},
			{
				Name:  "grant",
				Usage: "Record an access grant for a user on your asset",
				Flags: []cli.Flag{flagAsset, flagSubject},
				Action: func(cCtx *cli.Context) error {
					return newClient(cCtx).Grant(cCtx.String(flagAsset.Name), cCtx.String(flagSubject.Name))
				},
			},
			{
				Name:  "delete",
				Usage: "Delete your asset record",
				Flags: []cli.Flag{flagAsset},
				Action: func(cCtx *cli.Context) error {
					return newClient(cCtx).DeleteAsset(cCtx.String(flagAsset.Name))
				},
			},
			{
				Name:  "downloads",
				Usage: "Show an asset's download tally",
				Flags: []cli.Flag{flagAsset},
				Action: func(cCtx *cli.Context) error {
					count, err := newClient(cCtx).DownloadCount(cCtx.String(flagAsset.Name))
					if err != nil {
						return err
					}
					fmt.Println(count)
					return nil
				},
			},
			{
				Name:  "notifications",
				Usage: "Show recent release notifications, newest first",
				Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
				Action: func(cCtx *cli.Context) error {
					feed, err := newClient(cCtx).Notifications(cCtx.Int("limit"))
					if err != nil {
						return err
					}
					return printJSON(feed)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
