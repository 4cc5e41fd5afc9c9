// authctl es el CLI de authcore: login, administración de usuarios y de la
// configuración de auth de un tenant contra un authd remoto.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authcore/internal/authclient"
	"github.com/dropDatabas3/authcore/internal/http/dto"
	"github.com/dropDatabas3/authcore/internal/util/atomicwrite"
)

// cli es el estado compartido por los subcomandos.
type cli struct {
	BaseURL   string
	TenantID  string
	Token     string
	TokenFile string
	OutFormat string // "json" | "text"
	Timeout   time.Duration

	client *authclient.Client
	out    io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	c := &cli{
		BaseURL:   envOr("AUTHCTL_URL", "http://localhost:8080"),
		TenantID:  envOr("AUTHCTL_TENANT", ""),
		Token:     envOr("AUTHCTL_TOKEN", ""),
		TokenFile: envOr("AUTHCTL_TOKEN_FILE", defaultTokenFile()),
		OutFormat: envOr("AUTHCTL_OUT", "text"),
		Timeout:   30 * time.Second,
		out:       stdout,
	}

	root := &cobra.Command{
		Use:           "authctl",
		Short:         "CLI para authcore (sesión, usuarios, config, OTP)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.BaseURL, "url", c.BaseURL, "URL base de authd (env AUTHCTL_URL)")
	pf.StringVarP(&c.TenantID, "tenant", "t", c.TenantID, "Tenant (env AUTHCTL_TENANT)")
	pf.StringVar(&c.Token, "token", c.Token, "Token de sesión (env AUTHCTL_TOKEN); pisa el guardado")
	pf.StringVar(&c.TokenFile, "token-file", c.TokenFile, "Dónde persistir la sesión (vacío = no persistir)")
	pf.StringVarP(&c.OutFormat, "out", "o", c.OutFormat, "Formato de salida: json|text")
	pf.DurationVar(&c.Timeout, "timeout", c.Timeout, "Timeout por request")

	root.AddCommand(
		c.loginCmd(), c.signupCmd(), c.meCmd(), c.logoutCmd(),
		c.configCmd(), c.examplesCmd(), c.providersCmd(),
		c.usersCmd(), c.otpCmd(),
	)
	return root
}

// init arma el client y engancha la persistencia del token al State: cada
// login lo guarda y cada logout/401 lo borra.
func (c *cli) init() error {
	switch c.OutFormat {
	case "json", "text":
	default:
		return fmt.Errorf("--out must be json or text, got %q", c.OutFormat)
	}
	st := authclient.NewState()
	tok := c.Token
	if tok == "" && c.TokenFile != "" {
		b, err := os.ReadFile(c.TokenFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		tok = strings.TrimSpace(string(b))
	}
	if tok != "" {
		st.Set(tok, dto.UserSummary{})
	}
	if c.TokenFile != "" && c.Token == "" {
		st.Subscribe(c.persist)
	}
	c.client = authclient.New(c.BaseURL,
		authclient.WithState(st),
		authclient.WithHTTPClient(&http.Client{Timeout: c.Timeout}))
	return nil
}

func (c *cli) persist(s authclient.Snapshot) {
	if s.Token == "" {
		_ = os.Remove(c.TokenFile)
		return
	}
	if err := atomicwrite.WriteFile(c.TokenFile, []byte(s.Token+"\n"), 0o600); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not save session:", err)
	}
}

func (c *cli) tenant() (string, error) {
	if c.TenantID != "" {
		return c.TenantID, nil
	}
	if u := c.client.State().Current().User; u != nil && u.TenantID != "" {
		return u.TenantID, nil
	}
	// Token <tenantId>.<random>: el prefijo es el tenant.
	if tok := c.client.State().Current().Token; tok != "" {
		if i := strings.IndexByte(tok, '.'); i > 0 {
			return tok[:i], nil
		}
	}
	return "", errors.New("tenant required (--tenant or AUTHCTL_TENANT)")
}

// print emite v como JSON indentado (out=json) o con text si se pasó.
func (c *cli) print(v any, text func(io.Writer)) error {
	if c.OutFormat == "text" && text != nil {
		text(c.out)
		return nil
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe agrega el código de la API al mensaje de error.
func describe(err error) string {
	var ae *authclient.APIError
	if errors.As(err, &ae) {
		msg := fmt.Sprintf("%s (status=%d code=%s)", ae.Message, ae.Status, ae.Code)
		if len(ae.Details) > 0 {
			msg += "\n  - " + strings.Join(ae.Details, "\n  - ")
		}
		return msg
	}
	return err.Error()
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "authctl", "token")
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
