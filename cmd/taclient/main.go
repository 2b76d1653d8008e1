package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ruteri/tee-ta-bridge/client"
	"github.com/ruteri/tee-ta-bridge/ta"
	"github.com/urfave/cli/v2"
)

var flagServer = &cli.StringFlag{
	Name:  "server-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "TA bridge server address",
}
var flagService = &cli.StringFlag{
	Name:  "service",
	Value: "gatekeeper",
	Usage: "service name to send requests to",
}
var flagUID = &cli.UintFlag{
	Name:  "uid",
	Value: 0,
	Usage: "user id",
}
var flagPassword = &cli.StringFlag{
	Name:     "password",
	Required: true,
	Usage:    "password",
}
var flagHandleFile = &cli.StringFlag{
	Name:  "handle-file",
	Value: "handle.json",
	Usage: "file holding the password handle",
}

func newClient(cCtx *cli.Context) *client.Client {
	return client.NewClient(cCtx.String(flagServer.Name), cCtx.String(flagService.Name))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readHandle(path string) (*ta.PasswordHandle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var handle ta.PasswordHandle
	if err := json.Unmarshal(data, &handle); err != nil {
		return nil, fmt.Errorf("failed to parse handle file: %w", err)
	}
	return &handle, nil
}

func writeHandle(path string, handle *ta.PasswordHandle) error {
	data, err := json.Marshal(handle)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func main() {
	app := &cli.App{
		Name:  "taclient",
		Usage: "Send Gatekeeper requests to a TA bridge server",
		Flags: []cli.Flag{flagServer, flagService},
		Commands: []*cli.Command{
			{
				Name:  "services",
				Usage: "list registered services",
				Action: func(cCtx *cli.Context) error {
					services, err := newClient(cCtx).ListServices(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(services)
				},
			},
			{
				Name:  "enroll",
				Usage: "enroll a password, changing it if the handle file exists",
				Flags: []cli.Flag{
					flagUID,
					flagPassword,
					flagHandleFile,
					&cli.StringFlag{Name: "current-password", Usage: "current password when changing it"},
				},
				Action: func(cCtx *cli.Context) error {
					var current *ta.PasswordHandle
					if cCtx.IsSet("current-password") {
						h, err := readHandle(cCtx.String(flagHandleFile.Name))
						if err != nil {
							return err
						}
						current = h
					}

					var currentPassword []byte
					if current != nil {
						currentPassword = []byte(cCtx.String("current-password"))
					}
					handle, err := newClient(cCtx).Enroll(cCtx.Context, uint32(cCtx.Uint(flagUID.Name)),
						[]byte(cCtx.String(flagPassword.Name)), current, currentPassword)
					if err != nil {
						return err
					}
					if err := writeHandle(cCtx.String(flagHandleFile.Name), handle); err != nil {
						return err
					}
					return printJSON(handle)
				},
			},
			{
				Name:  "verify",
				Usage: "verify a password against the stored handle",
				Flags: []cli.Flag{
					flagUID,
					flagPassword,
					flagHandleFile,
					&cli.Uint64Flag{Name: "challenge", Usage: "challenge to bind into the auth token"},
				},
				Action: func(cCtx *cli.Context) error {
					handle, err := readHandle(cCtx.String(flagHandleFile.Name))
					if err != nil {
						return err
					}
					token, err := newClient(cCtx).Verify(cCtx.Context, uint32(cCtx.Uint(flagUID.Name)),
						cCtx.Uint64("challenge"), handle, []byte(cCtx.String(flagPassword.Name)))
					if err != nil {
						return err
					}
					return printJSON(token)
				},
			},
			{
				Name:  "delete-user",
				Usage: "delete the failure record of a user",
				Flags: []cli.Flag{flagUID},
				Action: func(cCtx *cli.Context) error {
					return newClient(cCtx).DeleteUser(cCtx.Context, uint32(cCtx.Uint(flagUID.Name)))
				},
			},
			{
				Name:  "delete-all",
				Usage: "delete every failure record",
				Action: func(cCtx *cli.Context) error {
					deleted, err := newClient(cCtx).DeleteAllUsers(cCtx.Context)
					if err != nil {
						return err
					}
					fmt.Println("deleted", deleted)
					return nil
				},
			},
			{
				Name:  "shared-secret-params",
				Usage: "print this engine's shared secret parameters",
				Action: func(cCtx *cli.Context) error {
					params, err := newClient(cCtx).GetSharedSecretParameters(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(params)
				},
			},
			{
				Name:      "raw",
				Usage:     "send hex-encoded request bytes from stdin and print the hex response",
				ArgsUsage: "< request.hex",
				Action: func(cCtx *cli.Context) error {
					input, err := io.ReadAll(os.Stdin)
					if err != nil {
						return err
					}
					req, err := hex.DecodeString(string(bytes.TrimSpace(input)))
					if err != nil {
						return fmt.Errorf("invalid hex input: %w", err)
					}
					rsp, err := newClient(cCtx).Execute(cCtx.Context, req)
					if err != nil {
						return err
					}
					fmt.Println(hex.EncodeToString(rsp))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
