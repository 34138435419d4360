package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ruteri/casper-member-portal/cryptoutils"
	"github.com/ruteri/casper-member-portal/verification"
	"github.com/urfave/cli/v2"
)

var flagKeyFile *cli.StringFlag = &cli.StringFlag{
	Name:  "key",
	Value: "secret_key.hex",
	Usage: "file holding the hex private key",
}
var flagMessageFile *cli.StringFlag = &cli.StringFlag{
	Name:  "message",
	Value: "message.txt",
	Usage: "challenge message downloaded from the portal",
}
var flagSignatureFile *cli.StringFlag = &cli.StringFlag{
	Name:  "out",
	Value: verification.RequiredArtifactName,
	Usage: "file to write the hex signature to",
}

func loadKey(cCtx *cli.Context) (*cryptoutils.CasperPrivateKey, error) {
	data, err := os.ReadFile(cCtx.String(flagKeyFile.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	return cryptoutils.ParseCasperPrivateKeyHex(string(data))
}

func main() {
	app := &cli.App{
		Name:  "casper-signer",
		Usage: "Create node keys and sign portal challenge messages",
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "generate a key pair and print the public key",
				Flags: []cli.Flag{
					flagKeyFile,
					&cli.StringFlag{
						Name:  "algorithm",
						Value: "ed25519",
						Usage: "ed25519 or secp256k1",
					},
				},
				Action: func(cCtx *cli.Context) error {
					var alg cryptoutils.KeyAlgorithm
					switch cCtx.String("algorithm") {
					case "ed25519":
						alg = cryptoutils.Ed25519Algorithm
					case "secp256k1":
						alg = cryptoutils.Secp256k1Algorithm
					default:
						return fmt.Errorf("unknown algorithm %q", cCtx.String("algorithm"))
					}

					key, err := cryptoutils.GenerateCasperKey(alg)
					if err != nil {
						return err
					}
					if err := os.WriteFile(cCtx.String(flagKeyFile.Name), []byte(key.MarshalHex()+"\n"), 0600); err != nil {
						return err
					}
					fmt.Println(key.PublicKey().String())
					return nil
				},
			},
			{
				Name:  "sign",
				Usage: "sign the challenge message and write the signature file",
				Flags: []cli.Flag{flagKeyFile, flagMessageFile, flagSignatureFile},
				Action: func(cCtx *cli.Context) error {
					key, err := loadKey(cCtx)
					if err != nil {
						return err
					}
					message, err := os.ReadFile(cCtx.String(flagMessageFile.Name))
					if err != nil {
						return err
					}
					sig, err := key.SignHex(message)
					if err != nil {
						return err
					}
					return os.WriteFile(cCtx.String(flagSignatureFile.Name), []byte(sig), 0644)
				},
			},
			{
				Name:  "verify",
				Usage: "check a signature file against a public key",
				Flags: []cli.Flag{
					flagMessageFile,
					&cli.StringFlag{Name: "signature", Value: verification.RequiredArtifactName, Usage: "signature file"},
					&cli.StringFlag{Name: "public-key", Required: true, Usage: "hex public key"},
				},
				Action: func(cCtx *cli.Context) error {
					message, err := os.ReadFile(cCtx.String(flagMessageFile.Name))
					if err != nil {
						return err
					}
					sig, err := os.ReadFile(cCtx.String("signature"))
					if err != nil {
						return err
					}
					if !verification.NewCasperVerifier(nil).Verify(sig, cCtx.String("public-key"), string(message)) {
						return fmt.Errorf("signature does not verify")
					}
					fmt.Println("ok")
					return nil
				},
			},
			{
				Name:  "prove",
				Usage: "fetch the challenge from a portal, sign it and submit the signature",
				Flags: []cli.Flag{
					flagKeyFile,
					&cli.StringFlag{Name: "portal-addr", Value: "http://127.0.0.1:8080", Usage: "portal API address"},
					&cli.StringFlag{Name: "token", Required: true, Usage: "member bearer token", EnvVars: []string{"PORTAL_TOKEN"}},
				},
				Action: func(cCtx *cli.Context) error {
					key, err := loadKey(cCtx)
					if err != nil {
						return err
					}
					c := &portalClient{
						addr:   strings.TrimSuffix(cCtx.String("portal-addr"), "/"),
						token:  cCtx.String("token"),
						client: &http.Client{Timeout: 30 * time.Second},
					}
					return c.prove(key)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type portalClient struct {
	addr   string
	token  string
	client *http.Client
}

func (c *portalClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, string(body))
	}
	return body, nil
}

func (c *portalClient) prove(key *cryptoutils.CasperPrivateKey) error {
	req, err := http.NewRequest(http.MethodGet, c.addr+"/api/v1/users/message-content", nil)
	if err != nil {
		return err
	}
	message, err := c.do(req)
	if err != nil {
		return err
	}

	sig, err := key.SignHex(message)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", verification.RequiredArtifactName)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(fw, sig); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err = http.NewRequest(http.MethodPost, c.addr+"/api/v1/users/verify-file-casper-signer", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if _, err := c.do(req); err != nil {
		return err
	}

	fmt.Printf("node %s verified\n", key.PublicKey().String())
	return nil
}
