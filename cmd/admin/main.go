package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ruteri/tee-ta-bridge/client"
	"github.com/ruteri/tee-ta-bridge/hal"
	"github.com/ruteri/tee-ta-bridge/httpserver"
	"github.com/urfave/cli/v2"
)

var flagAdminServer = &cli.StringFlag{
	Name:  "admin-server-addr",
	Value: "http://127.0.0.1:8081/admin",
	Usage: "admin API address",
}
var flagAdminPrivkey = &cli.StringFlag{
	Name:  "admin-privkey-file",
	Value: "admin-private.pem",
	Usage: "Path to admin private key",
}
var flagAdminPubkey = &cli.StringFlag{
	Name:  "admin-pubkey-file",
	Value: "admin-public.pem",
	Usage: "Path to admin public key",
}
var flagAdminsFile = &cli.StringFlag{
	Name:  "admins-file",
	Value: "admins.json",
	Usage: "Path to the admin keys file passed to gatekeeperd --admin-keys-file",
}
var flagShareFile = &cli.StringFlag{
	Name:  "share-file",
	Value: "share-0.json",
	Usage: "Path to a share file written by split-preshared-key",
}

// shareFile is the on-disk form of one preshared key share.
type shareFile struct {
	ShareIndex int    `json:"share_index"`
	Share      string `json:"share"`
}

type adminEntry struct {
	ID     string `json:"id"`
	PubKey string `json:"pubkey"`
}

// adminID identifies an admin by the hash of its public key PEM.
func adminID(publicKeyPEM []byte) string {
	hash := sha256.Sum256(publicKeyPEM)
	return hex.EncodeToString(hash[:])
}

func main() {
	app := &cli.App{
		Name:           "admin",
		Usage:          "Manage Shamir shares of the gatekeeperd preshared key",
		DefaultCommand: "status",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "query the preshared key lock state",
				Flags: []cli.Flag{flagAdminServer},
				Action: func(cCtx *cli.Context) error {
					status, err := client.NewAdminClient(cCtx.String(flagAdminServer.Name), "", nil).Status(cCtx.Context)
					if err != nil {
						return err
					}
					fmt.Printf("unlocked=%t shares_submitted=%d admins=%d\n", status.Unlocked, status.SharesSubmitted, status.Admins)
					return nil
				},
			},
			{
				Name:  "generate-admin",
				Usage: "generate an admin key pair",
				Flags: []cli.Flag{flagAdminPrivkey, flagAdminPubkey},
				Action: func(cCtx *cli.Context) error {
					privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
					if err != nil {
						return fmt.Errorf("failed to generate ECDSA key: %w", err)
					}

					privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
					if err != nil {
						return fmt.Errorf("failed to marshal private key: %w", err)
					}
					privateKeyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privateKeyBytes})

					publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
					if err != nil {
						return fmt.Errorf("failed to marshal public key: %w", err)
					}
					publicKeyPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicKeyBytes})

					if err := os.WriteFile(cCtx.String(flagAdminPrivkey.Name), privateKeyPEM, 0600); err != nil {
						return err
					}
					return os.WriteFile(cCtx.String(flagAdminPubkey.Name), publicKeyPEM, 0600)
				},
			},
			{
				Name:  "generate-admins-config",
				Usage: "collect admin public keys into an admin keys file",
				Flags: []cli.Flag{
					flagAdminsFile,
					&cli.StringSliceFlag{Name: "admin-pubkey-files", Required: true},
				},
				Action: func(cCtx *cli.Context) error {
					var config struct {
						Admins []adminEntry `json:"admins"`
					}
					for _, path := range cCtx.StringSlice("admin-pubkey-files") {
						publicKeyPEM, err := os.ReadFile(path)
						if err != nil {
							return err
						}
						config.Admins = append(config.Admins, adminEntry{ID: adminID(publicKeyPEM), PubKey: string(publicKeyPEM)})
					}

					configBytes, err := json.MarshalIndent(config, "", "  ")
					if err != nil {
						return err
					}
					return os.WriteFile(cCtx.String(flagAdminsFile.Name), configBytes, 0600)
				},
			},
			{
				Name:  "split-preshared-key",
				Usage: "generate (or take) a preshared key and write one share file per admin",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Usage: "hex preshared key, random if unset"},
					&cli.IntFlag{Name: "threshold", Value: 2},
					&cli.IntFlag{Name: "total-shares", Value: 3},
					&cli.StringFlag{Name: "out-dir", Value: "."},
				},
				Action: func(cCtx *cli.Context) error {
					key := make([]byte, hal.KeySize)
					if k := cCtx.String("key"); k != "" {
						var err error
						if key, err = hex.DecodeString(k); err != nil {
							return fmt.Errorf("invalid key: %w", err)
						}
					} else {
						hal.StdRng{}.FillBytes(key)
					}

					shares, err := hal.SplitPresharedKey(key, cCtx.Int("total-shares"), cCtx.Int("threshold"))
					if err != nil {
						return err
					}
					for i, share := range shares {
						data, err := json.Marshal(shareFile{ShareIndex: i, Share: base64.StdEncoding.EncodeToString(share)})
						if err != nil {
							return err
						}
						path := filepath.Join(cCtx.String("out-dir"), fmt.Sprintf("share-%d.json", i))
						if err := os.WriteFile(path, data, 0600); err != nil {
							return err
						}
						fmt.Println("wrote", path)
					}
					return nil
				},
			},
			{
				Name:  "submit-share",
				Usage: "submit this admin's share to a running gatekeeperd",
				Flags: []cli.Flag{flagAdminServer, flagAdminPrivkey, flagAdminPubkey, flagShareFile},
				Action: func(cCtx *cli.Context) error {
					publicKeyPEM, err := os.ReadFile(cCtx.String(flagAdminPubkey.Name))
					if err != nil {
						return err
					}
					privateKeyPEM, err := os.ReadFile(cCtx.String(flagAdminPrivkey.Name))
					if err != nil {
						return err
					}
					privateKey, err := httpserver.ParsePrivateKey(privateKeyPEM)
					if err != nil {
						return err
					}

					data, err := os.ReadFile(cCtx.String(flagShareFile.Name))
					if err != nil {
						return err
					}
					var sf shareFile
					if err := json.Unmarshal(data, &sf); err != nil {
						return fmt.Errorf("failed to parse share file: %w", err)
					}
					share, err := base64.StdEncoding.DecodeString(sf.Share)
					if err != nil {
						return fmt.Errorf("invalid share encoding: %w", err)
					}

					adminClient := client.NewAdminClient(cCtx.String(flagAdminServer.Name), adminID(publicKeyPEM), privateKey)
					unlocked, err := adminClient.SubmitShare(cCtx.Context, sf.ShareIndex, share)
					if err != nil {
						return err
					}
					fmt.Println("share accepted, unlocked:", unlocked)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
