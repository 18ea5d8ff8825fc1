// Command csctl is an operator tool for course-stream secrets: it generates master keys,
// encrypts and decrypts stored video URLs and inspects capability tokens.
package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"

	"github.com/and161185/course-stream/internal/clock"
	"github.com/and161185/course-stream/internal/config"
	"github.com/and161185/course-stream/internal/crypto"
	"github.com/and161185/course-stream/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const secretEnv = config.EnvPrefix + "_APP_SECRET"

const usageText = `csctl - course-stream operator tool
Usage:
  csctl [--secret KEY] <cmd> [flags]

The master secret defaults to $CS_APP_SECRET (raw or base64:<key>).

Commands:
  version
  keygen                                  print a fresh base64 master secret
  encrypt    --url <url>                  encrypt a video URL for storage
  decrypt    --text <ciphertext>          decrypt a stored video URL
  reencrypt  --from <old-secret> --text   move a ciphertext to the current secret
  inspect    --token <jwt> [--unverified] print capability token claims
`

// errUsage marks missing or malformed subcommand flags.
var errUsage = errors.New("usage")

type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	now    func() time.Time
}

func main() {
	a := &app{stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv, now: time.Now}
	os.Exit(a.run(os.Args[1:]))
}

// run dispatches a subcommand and returns the process exit code.
func (a *app) run(args []string) int {
	global := pflag.NewFlagSet("csctl", pflag.ContinueOnError)
	global.SetOutput(a.stderr)
	global.SetInterspersed(false)
	secret := global.String("secret", "", "master secret (default $"+secretEnv+")")
	global.Usage = func() { fmt.Fprint(a.stderr, usageText) }
	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if global.NArg() < 1 {
		global.Usage()
		return 2
	}
	if *secret == "" {
		*secret = a.getenv(secretEnv)
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	var err error
	switch cmd {
	case "version":
		fmt.Fprintf(a.stdout, "csctl %s (%s)\n", version, buildDate)
	case "keygen":
		err = a.keygen()
	case "encrypt":
		err = a.encrypt(*secret, rest)
	case "decrypt":
		err = a.decrypt(*secret, rest)
	case "reencrypt":
		err = a.reencrypt(*secret, rest)
	case "inspect":
		err = a.inspect(*secret, rest)
	default:
		fmt.Fprintf(a.stderr, "unknown command %q\n", cmd)
		global.Usage()
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(a.stderr, err)
		return 2
	default:
		fmt.Fprintln(a.stderr, err)
		return 1
	}
}

func (a *app) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func required(fs *pflag.FlagSet, names ...string) error {
	for _, n := range names {
		if v, _ := fs.GetString(n); v == "" {
			return fmt.Errorf("%s: --%s is required: %w", fs.Name(), n, errUsage)
		}
	}
	return nil
}

func keysFrom(secret string) (crypto.Keys, error) {
	if secret == "" {
		return crypto.Keys{}, errors.New("no secret: pass --secret or set " + secretEnv)
	}
	raw, err := config.DecodeSecret(secret)
	if err != nil {
		return crypto.Keys{}, err
	}
	return crypto.DeriveKeys(raw)
}

func codecFrom(secret string) (*crypto.Codec, error) {
	keys, err := keysFrom(secret)
	if err != nil {
		return nil, err
	}
	return crypto.NewCodec(keys.URL)
}

func (a *app) keygen() error {
	b, err := crypto.RandBytes(crypto.KeyLen)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "base64:"+base64.StdEncoding.EncodeToString(b))
	return nil
}

func (a *app) encrypt(secret string, args []string) error {
	fs := a.flagSet("encrypt")
	raw := fs.String("url", "", "video URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "url"); err != nil {
		return err
	}
	c, err := codecFrom(secret)
	if err != nil {
		return err
	}
	ct, err := c.Encrypt(strings.TrimSpace(*raw))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, ct)
	return nil
}

func (a *app) decrypt(secret string, args []string) error {
	fs := a.flagSet("decrypt")
	text := fs.String("text", "", "stored ciphertext")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "text"); err != nil {
		return err
	}
	c, err := codecFrom(secret)
	if err != nil {
		return err
	}
	pt, err := c.Decrypt(strings.TrimSpace(*text))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, pt)
	return nil
}

func (a *app) reencrypt(secret string, args []string) error {
	fs := a.flagSet("reencrypt")
	from := fs.String("from", "", "previous master secret")
	text := fs.String("text", "", "ciphertext under the previous secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "from", "text"); err != nil {
		return err
	}
	oldCodec, err := codecFrom(*from)
	if err != nil {
		return fmt.Errorf("previous secret: %w", err)
	}
	newCodec, err := codecFrom(secret)
	if err != nil {
		return err
	}
	pt, err := oldCodec.Decrypt(strings.TrimSpace(*text))
	if err != nil {
		return err
	}
	ct, err := newCodec.Encrypt(pt)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, ct)
	return nil
}

// inspection is the printed view of a capability token.
type inspection struct {
	Verified bool           `json:"verified"`
	Kind     string         `json:"kind,omitempty"`
	Expired  bool           `json:"expired"`
	Claims   map[string]any `json:"claims"`
	VideoURL string         `json:"video_url,omitempty"`
}

func (a *app) inspect(secret string, args []string) error {
	fs := a.flagSet("inspect")
	tok := fs.String("token", "", "capability token")
	unverified := fs.Bool("unverified", false, "decode claims without checking the signature")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "token"); err != nil {
		return err
	}
	raw := strings.TrimSpace(*tok)

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	out := inspection{Claims: claims}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.Expired = !a.now().Before(exp.Time)
	}
	if *unverified {
		return a.printJSON(out)
	}

	keys, err := keysFrom(secret)
	if err != nil {
		return err
	}
	var c clock.Clock = clockFunc(a.now)
	capab, err := token.NewSigner(keys.Capability, token.DefaultIssuer, c).Parse(raw)
	if err != nil {
		return err
	}
	out.Verified = true
	switch capab.Kind {
	case token.KindStream:
		out.Kind = "stream"
		codec, err := crypto.NewCodec(keys.URL)
		if err != nil {
			return err
		}
		if out.VideoURL, err = codec.Decrypt(capab.Stream.Payload.EncryptedURL); err != nil {
			return err
		}
	case token.KindDeepLink:
		out.Kind = "deep_link"
	}
	return a.printJSON(out)
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
