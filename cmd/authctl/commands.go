package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/http/dto"
)

// ─── sesión ───

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login con email/password; guarda la sesión",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			res, err := c.client.SignIn(cmd.Context(), tenant, email, password)
			if err != nil {
				return err
			}
			return c.print(res, func(w io.Writer) {
				fmt.Fprintf(w, "logged in as %s (tenant %s), expires %s\n",
					res.User.Email, res.User.TenantID, res.ExpiresAt.Format("2006-01-02 15:04"))
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email")
	cmd.Flags().StringVar(&password, "password", os.Getenv("AUTHCTL_PASSWORD"), "Password (env AUTHCTL_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) signupCmd() *cobra.Command {
	var in dto.SignupRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Alta de usuario; queda logueado",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			in.TenantID = tenant
			res, err := c.client.SignUp(cmd.Context(), in)
			if err != nil {
				return err
			}
			return c.print(res, func(w io.Writer) {
				fmt.Fprintf(w, "created %s (id %s)\n", res.Email, res.ID)
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "Email")
	cmd.Flags().StringVar(&in.Password, "password", os.Getenv("AUTHCTL_PASSWORD"), "Password (env AUTHCTL_PASSWORD)")
	cmd.Flags().StringVar(&in.Name, "name", "", "Nombre")
	cmd.Flags().StringVar(&in.Username, "username", "", "Username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Usuario y sesión actuales",
		RunE: func(cmd *cobra.Command, _ []string) error {
			me, err := c.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(me, func(w io.Writer) {
				fmt.Fprintf(w, "%s  %s  tenant=%s superAdmin=%t\n", me.User.ID, me.User.Email, me.User.TenantID, me.User.IsSuperAdmin)
				if me.Session != nil {
					fmt.Fprintf(w, "session expires %s (%s)\n", me.Session.ExpiresAt.Format("2006-01-02 15:04"), me.Session.AuthMethod)
				}
			})
		},
	}
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoca la sesión actual",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.client.SignOut(cmd.Context()); err != nil {
				return err
			}
			return c.print(dto.LogoutResponse{Success: true}, func(w io.Writer) { fmt.Fprintln(w, "logged out") })
		},
	}
}

// ─── config ───

func (c *cli) configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "AuthConfig del tenant"}

	get := &cobra.Command{
		Use:   "get",
		Short: "Muestra el config efectivo",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			cfg, err := c.client.GetConfig(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			// El config es un documento: siempre JSON.
			return c.print(cfg, nil)
		},
	}

	var file string
	set := &cobra.Command{
		Use:   "set [json-patch]",
		Short: "Aplica un patch parcial (argumento, --file o '-' para stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			raw, err := readPatch(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}
			res, err := c.client.UpdateConfig(cmd.Context(), tenant, raw)
			if err != nil {
				return err
			}
			return c.print(res, func(w io.Writer) { fmt.Fprintf(w, "config %s updated\n", res.ID) })
		},
	}
	set.Flags().StringVarP(&file, "file", "f", "", "Archivo JSON con el patch")

	cmd.AddCommand(get, set)
	return cmd
}

func readPatch(stdin io.Reader, args []string, file string) (json.RawMessage, error) {
	var (
		b   []byte
		err error
	)
	switch {
	case file != "":
		b, err = os.ReadFile(file)
	case len(args) == 1 && args[0] == "-":
		b, err = io.ReadAll(stdin)
	case len(args) == 1:
		b = []byte(args[0])
	default:
		return nil, errors.New("patch required: pass JSON, --file or '-'")
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(b) {
		return nil, errors.New("patch is not valid JSON")
	}
	return json.RawMessage(b), nil
}

func (c *cli) examplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Passwords de ejemplo que cumplen la política del tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			ex, err := c.client.PasswordExamples(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			return c.print(dto.ExamplesResponse{Examples: ex}, func(w io.Writer) {
				for _, e := range ex {
					fmt.Fprintln(w, e)
				}
			})
		},
	}
}

func (c *cli) providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Providers habilitados para el tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			ps, err := c.client.Providers(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			return c.print(dto.ProvidersResponse{Providers: ps}, func(w io.Writer) {
				fmt.Fprintln(w, strings.Join(ps, "\n"))
			})
		},
	}
}

// ─── users ───

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Administración de usuarios (super-admin)"}

	var search string
	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "Lista usuarios del tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			us, err := c.client.ListUsers(cmd.Context(), tenant, search, limit, offset)
			if err != nil {
				return err
			}
			return c.print(us, func(w io.Writer) { printUsers(w, us) })
		},
	}
	list.Flags().StringVar(&search, "search", "", "Filtro por email/username/nombre")
	list.Flags().IntVar(&limit, "limit", 0, "Máximo de resultados")
	list.Flags().IntVar(&offset, "offset", 0, "Offset")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Detalle de un usuario con sus sesiones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			d, err := c.client.GetUser(cmd.Context(), tenant, args[0])
			if err != nil {
				return err
			}
			return c.print(d, func(w io.Writer) {
				printUsers(w, []domain.User{*d.User})
				fmt.Fprintf(w, "%d active session(s)\n", len(d.Sessions))
			})
		},
	}

	var in dto.CreateUserRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Crea un usuario (sin --password se genera uno)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			res, err := c.client.CreateUser(cmd.Context(), tenant, in)
			if err != nil {
				return err
			}
			return c.print(res, func(w io.Writer) {
				fmt.Fprintf(w, "created %s (id %s)\n", res.User.Email, res.User.ID)
				if res.GeneratedPassword != "" {
					fmt.Fprintf(w, "generated password (shown once): %s\n", res.GeneratedPassword)
				}
			})
		},
	}
	create.Flags().StringVar(&in.Email, "email", "", "Email")
	create.Flags().StringVar(&in.Password, "password", "", "Password (opcional)")
	create.Flags().StringVar(&in.Username, "username", "", "Username")
	create.Flags().StringVar(&in.Name, "name", "", "Nombre")
	create.Flags().StringVar(&in.Phone, "phone", "", "Teléfono")
	create.Flags().BoolVar(&in.EmailVerified, "verified", false, "Marcar email como verificado")
	create.Flags().BoolVar(&in.IsSuperAdmin, "super-admin", false, "Otorgar super-admin")
	_ = create.MarkFlagRequired("email")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Borra un usuario y sus sesiones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			if err := c.client.DeleteUser(cmd.Context(), tenant, args[0]); err != nil {
				return err
			}
			return c.print(map[string]string{"deleted": args[0]}, func(w io.Writer) { fmt.Fprintf(w, "deleted %s\n", args[0]) })
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoca todas las sesiones del usuario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			n, err := c.client.RevokeSessions(cmd.Context(), tenant, args[0])
			if err != nil {
				return err
			}
			return c.print(dto.RevokeResponse{Revoked: n}, func(w io.Writer) { fmt.Fprintf(w, "revoked %d session(s)\n", n) })
		},
	}

	cmd.AddCommand(list, get, create, del, revoke)
	return cmd
}

func printUsers(w io.Writer, us []domain.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tVERIFIED\tACTIVE\tSUPER-ADMIN")
	for _, u := range us {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%t\n", u.ID, u.Email, u.EmailVerified, u.IsActive, u.IsSuperAdmin)
	}
	_ = tw.Flush()
}

// ─── otp ───

func (c *cli) otpCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "otp", Short: "Códigos de un solo uso"}

	var body dto.OTPRequestBody
	bind := func(cc *cobra.Command) {
		cc.Flags().StringVar(&body.Identifier, "to", "", "Email o teléfono destino")
		cc.Flags().StringVar(&body.Channel, "channel", string(domain.ChannelEmail), "email|sms|whatsapp")
		cc.Flags().StringVar(&body.Purpose, "purpose", string(domain.PurposeLogin), "login|verification")
		_ = cc.MarkFlagRequired("to")
	}

	request := &cobra.Command{
		Use:   "request",
		Short: "Envía un código",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			body.TenantID = tenant
			res, err := c.client.RequestOTP(cmd.Context(), body)
			if err != nil {
				return err
			}
			return c.print(res, func(w io.Writer) { fmt.Fprintf(w, "code sent, expires in %ds\n", res.ExpiresIn) })
		},
	}
	bind(request)

	var code string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verifica un código (purpose=login deja la sesión guardada)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := c.tenant()
			if err != nil {
				return err
			}
			body.TenantID = tenant
			res, err := c.client.VerifyOTP(cmd.Context(), dto.OTPVerifyBody{OTPRequestBody: body, Code: code})
			if err != nil {
				return err
			}
			return c.print(res, func(w io.Writer) {
				if res.User != nil {
					fmt.Fprintf(w, "verified; logged in as %s\n", res.User.Email)
					return
				}
				fmt.Fprintln(w, "verified")
			})
		},
	}
	bind(verify)
	verify.Flags().StringVar(&code, "code", "", "Código recibido")
	_ = verify.MarkFlagRequired("code")

	cmd.AddCommand(request, verify)
	return cmd
}
