package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/and161185/tld-registry/internal/model"
	grpcserver "github.com/and161185/tld-registry/internal/server/grpc"
)

// connector opens a connection. bearer is empty for unauthenticated calls.
type connector func(o connOptions, bearer string) (grpc.ClientConnInterface, func() error, error)

func defaultConnector(o connOptions, bearer string) (grpc.ClientConnInterface, func() error, error) {
	cc, err := dial(o, bearer)
	if err != nil {
		return nil, nil, err
	}
	return cc, cc.Close, nil
}

type cli struct {
	conn    connector
	opts    connOptions
	timeout time.Duration
}

// rpc sends one call with the saved token and prints the response.
func (c *cli) rpc(cmd *cobra.Command, method string, req map[string]any) error {
	tok, err := loadToken()
	if err != nil {
		return err
	}
	return c.send(cmd, tok, method, req)
}

func (c *cli) send(cmd *cobra.Command, bearer, method string, req map[string]any) error {
	conn, closeFn, err := c.conn(c.opts, bearer)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()
	resp, err := invoke(ctx, conn, method, req)
	if err != nil {
		return err
	}
	return printStruct(cmd.OutOrStdout(), resp)
}

func strs(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}

// feeFlags acknowledge the fee of a transform command, as "USD 26.00".
type feeFlags struct{ fee string }

func (f *feeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.fee, "fee", "", `acknowledged fee, e.g. "USD 26.00"`)
}

func (f *feeFlags) apply(req map[string]any) error {
	if f.fee == "" {
		return nil
	}
	m, err := model.ParseMoney(f.fee)
	if err != nil {
		return err
	}
	req["fee"] = map[string]any{"currency": m.Currency, "amount": m.Amount.String()}
	return nil
}

func newRootCmd(conn connector) *cobra.Command {
	c := &cli{conn: conn}
	root := &cobra.Command{
		Use:           "registryctl",
		Short:         "Command line client for the domain registry",
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.opts.addr, "addr", "localhost:8443", "server addr")
	pf.StringVar(&c.opts.caPath, "cacert", "", "CA cert (PEM)")
	pf.BoolVar(&c.opts.insecure, "insecure", false, "skip cert verify (dev)")
	pf.BoolVar(&c.opts.plaintext, "plaintext", false, "connect without TLS (dev)")
	pf.DurationVar(&c.timeout, "timeout", 30*time.Second, "per call timeout")

	root.AddCommand(
		c.loginCmd(),
		c.registrarCmd(),
		c.domainCmd(),
		c.transferCmd(),
		c.feesCmd(),
		c.pollCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) loginCmd() *cobra.Command {
	var id, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and save the access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, closeFn, err := c.conn(c.opts, "")
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
			defer cancel()
			resp, err := invoke(ctx, conn, grpcserver.MethodLogin,
				map[string]any{"registrar_id": id, "password": password})
			if err != nil {
				return err
			}
			f := resp.GetFields()
			exp, err := time.Parse(time.RFC3339, f["expires_at"].GetStringValue())
			if err != nil {
				return fmt.Errorf("expires_at: %w", err)
			}
			if err := saveToken(tokenFile{
				RegistrarID: id,
				AccessToken: f["access_token"].GetStringValue(),
				ExpiresAt:   exp,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s until %s\n", id, exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVarP(&id, "id", "u", "", "registrar id")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) registrarCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "registrar", Short: "Manage registrar accounts"}
	var (
		id, password string
		superuser    bool
		tlds         []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a registrar (superuser)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.rpc(cmd, grpcserver.MethodRegisterRegistrar, map[string]any{
				"registrar_id": id, "password": password, "superuser": superuser, "allowed_tlds": strs(tlds),
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "registrar id")
	create.Flags().StringVar(&password, "password", "", "initial password")
	create.Flags().BoolVar(&superuser, "superuser", false, "grant superuser")
	create.Flags().StringSliceVar(&tlds, "tlds", nil, "TLDs the registrar may access")
	_ = create.MarkFlagRequired("id")
	_ = create.MarkFlagRequired("password")
	cmd.AddCommand(create)
	return cmd
}

func (c *cli) domainCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "domain", Short: "Domain commands"}
	cmd.AddCommand(
		c.domainCreateCmd(),
		c.domainRenewCmd(),
		c.domainUpdateCmd(),
		c.nameOnly("info NAME", "Show a domain", grpcserver.MethodDomainInfo),
		c.nameOnly("delete NAME", "Delete a domain", grpcserver.MethodDeleteDomain),
		c.nameOnly("records NAME", "Show history and billing (superuser)", grpcserver.MethodDomainRecords),
		c.domainRestoreCmd(),
	)
	return cmd
}

func (c *cli) nameOnly(use, short, method string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.rpc(cmd, method, map[string]any{"name": args[0]})
		},
	}
}

func (c *cli) domainCreateCmd() *cobra.Command {
	var (
		years                       int
		authCode, registrant, token string
		nameservers                 []string
		fee                         feeFlags
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Register a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"name": args[0], "years": years, "auth_code": authCode, "registrant": registrant,
				"token": token, "nameservers": strs(nameservers),
			}
			if err := fee.apply(req); err != nil {
				return err
			}
			return c.rpc(cmd, grpcserver.MethodCreateDomain, req)
		},
	}
	cmd.Flags().IntVar(&years, "years", 1, "registration period")
	cmd.Flags().StringVar(&authCode, "auth-code", "", "transfer auth code (generated when empty)")
	cmd.Flags().StringVar(&registrant, "registrant", "", "registrant contact id")
	cmd.Flags().StringVar(&token, "token", "", "allocation token")
	cmd.Flags().StringSliceVar(&nameservers, "ns", nil, "nameservers")
	fee.register(cmd)
	return cmd
}

func (c *cli) domainRenewCmd() *cobra.Command {
	var (
		years   int
		current string
		fee     feeFlags
	)
	cmd := &cobra.Command{
		Use:   "renew NAME",
		Short: "Renew a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"name": args[0], "years": years, "current_expiration": current}
			if err := fee.apply(req); err != nil {
				return err
			}
			return c.rpc(cmd, grpcserver.MethodRenewDomain, req)
		},
	}
	cmd.Flags().IntVar(&years, "years", 1, "renewal period")
	cmd.Flags().StringVar(&current, "current-expiration", "", "current expiration time (RFC 3339)")
	_ = cmd.MarkFlagRequired("current-expiration")
	fee.register(cmd)
	return cmd
}

func (c *cli) domainUpdateCmd() *cobra.Command {
	var (
		addStatus, removeStatus, addNS, removeNS []string
		registrant, authCode, suspend            string
		onBehalf                                 bool
	)
	cmd := &cobra.Command{
		Use:   "update NAME",
		Short: "Update statuses, nameservers, registrant or auth code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"name":                   args[0],
				"add_statuses":           strs(addStatus),
				"remove_statuses":        strs(removeStatus),
				"add_hosts":              strs(addNS),
				"remove_hosts":           strs(removeNS),
				"requested_by_registrar": onBehalf,
			}
			if cmd.Flags().Changed("registrant") {
				req["registrant"] = registrant
			}
			if cmd.Flags().Changed("auth-code") {
				req["auth_code"] = authCode
			}
			switch strings.ToLower(suspend) {
			case "":
			case "true", "yes":
				req["suspend_autorenew"] = true
			case "false", "no":
				req["suspend_autorenew"] = false
			default:
				return fmt.Errorf("--suspend-autorenew: want true or false, got %q", suspend)
			}
			return c.rpc(cmd, grpcserver.MethodUpdateDomain, req)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&addStatus, "add-status", nil, "statuses to add")
	f.StringSliceVar(&removeStatus, "remove-status", nil, "statuses to remove")
	f.StringSliceVar(&addNS, "add-ns", nil, "nameservers to add")
	f.StringSliceVar(&removeNS, "remove-ns", nil, "nameservers to remove")
	f.StringVar(&registrant, "registrant", "", "new registrant contact id")
	f.StringVar(&authCode, "auth-code", "", "new transfer auth code")
	f.StringVar(&suspend, "suspend-autorenew", "", "stop (true) or resume (false) autorenew (superuser)")
	f.BoolVar(&onBehalf, "on-behalf", false, "superuser change requested by the sponsor")
	return cmd
}

func (c *cli) domainRestoreCmd() *cobra.Command {
	var fee feeFlags
	cmd := &cobra.Command{
		Use:   "restore NAME",
		Short: "Restore a domain from redemption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"name": args[0]}
			if err := fee.apply(req); err != nil {
				return err
			}
			return c.rpc(cmd, grpcserver.MethodRestoreDomain, req)
		},
	}
	fee.register(cmd)
	return cmd
}

func (c *cli) transferCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "transfer", Short: "Transfer commands"}
	var (
		authCode, token string
		period          int
		fee             feeFlags
	)
	request := &cobra.Command{
		Use:   "request NAME",
		Short: "Request a transfer to the logged in registrar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"name": args[0], "auth_code": authCode, "period": period, "token": token}
			if err := fee.apply(req); err != nil {
				return err
			}
			return c.rpc(cmd, grpcserver.MethodRequestTransfer, req)
		},
	}
	request.Flags().StringVar(&authCode, "auth-code", "", "domain auth code")
	request.Flags().IntVar(&period, "period", 1, "years added by the transfer (0 for superuser transfers)")
	request.Flags().StringVar(&token, "token", "", "allocation token")
	fee.register(request)

	cmd.AddCommand(
		request,
		c.nameOnly("approve NAME", "Approve a pending transfer (losing registrar)", grpcserver.MethodApproveTransfer),
		c.nameOnly("reject NAME", "Reject a pending transfer (losing registrar)", grpcserver.MethodRejectTransfer),
		c.nameOnly("cancel NAME", "Cancel a pending transfer (gaining registrar)", grpcserver.MethodCancelTransfer),
		c.nameOnly("query NAME", "Show transfer status", grpcserver.MethodQueryTransfer),
	)
	return cmd
}

func (c *cli) feesCmd() *cobra.Command {
	var (
		years int
		token string
	)
	cmd := &cobra.Command{
		Use:       "fees OP NAME",
		Short:     "Price create, renew, restore, transfer or update of a name",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"create", "renew", "restore", "transfer", "update"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.rpc(cmd, grpcserver.MethodCheckFees, map[string]any{
				"op": args[0], "name": args[1], "years": years, "token": token,
			})
		},
	}
	cmd.Flags().IntVar(&years, "years", 1, "period")
	cmd.Flags().StringVar(&token, "token", "", "allocation token")
	return cmd
}

func (c *cli) pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Show the oldest queued message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.rpc(cmd, grpcserver.MethodPollRequest, map[string]any{})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ack ID",
		Short: "Acknowledge a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.rpc(cmd, grpcserver.MethodPollAck, map[string]any{"id": args[0]})
		},
	})
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Manage allocation tokens (superuser)"}
	var (
		typ, renewalBehavior, renewalPrice string
		discount                           float64
		discountYears                      int
		tlds, registrars                   []string
		premiums, anchor                   bool
	)
	put := &cobra.Command{
		Use:   "put CODE",
		Short: "Create or replace a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"code":               args[0],
				"type":               typ,
				"discount_fraction":  discount,
				"discount_years":     discountYears,
				"allowed_tlds":       strs(tlds),
				"allowed_registrars": strs(registrars),
				"discount_premiums":  premiums,
				"anchor_tenant":      anchor,
			}
			if renewalBehavior != "" {
				rp := map[string]any{"behavior": renewalBehavior}
				if renewalPrice != "" {
					m, err := model.ParseMoney(renewalPrice)
					if err != nil {
						return err
					}
					rp["currency"], rp["amount"] = m.Currency, m.Amount.String()
				}
				req["renewal_price"] = rp
			}
			return c.rpc(cmd, grpcserver.MethodPutToken, req)
		},
	}
	f := put.Flags()
	f.StringVar(&typ, "type", "SINGLE_USE", "SINGLE_USE or UNLIMITED_USE")
	f.Float64Var(&discount, "discount", 0, "discount fraction in [0, 1]")
	f.IntVar(&discountYears, "discount-years", 0, "years the discount applies to")
	f.StringSliceVar(&tlds, "tlds", nil, "allowed TLDs (all when empty)")
	f.StringSliceVar(&registrars, "registrars", nil, "allowed registrars (all when empty)")
	f.BoolVar(&premiums, "premiums", false, "discount premium names too")
	f.BoolVar(&anchor, "anchor", false, "anchor tenant token")
	f.StringVar(&renewalBehavior, "renewal-behavior", "", "DEFAULT, NONPREMIUM or SPECIFIED")
	f.StringVar(&renewalPrice, "renewal-price", "", `price for SPECIFIED, e.g. "USD 5"`)
	cmd.AddCommand(put)
	return cmd
}
