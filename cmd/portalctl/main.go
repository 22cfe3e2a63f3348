// portalctl 是dev365后端的命令行客户端，使用与门户相同的查询层
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dev365-portal/internal/apiclient"
	"dev365-portal/internal/config"
	"dev365-portal/internal/models"
	"dev365-portal/internal/query"
	"dev365-portal/internal/ratelimit"
)

// cliOptions 全局参数
type cliOptions struct {
	baseURL string
	token   string
	timeout time.Duration
	asJSON  bool
}

var opts cliOptions

var rootCmd = &cobra.Command{
	Use:           "portalctl",
	Short:         "dev365 client portal CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	_ = config.LoadDotEnv()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.baseURL, "base-url", envOr("API_BASE_URL", "http://localhost:5000/api"), "dev365 API base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("DEV365_TOKEN"), "bearer token issued by the identity provider")
	flags.DurationVar(&opts.timeout, "timeout", 15*time.Second, "per-call timeout")
	flags.BoolVar(&opts.asJSON, "json", false, "print raw JSON")

	rootCmd.AddCommand(newRequestsCmd(), newWebsitesCmd(), newBillingCmd(), newSupportCmd())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// queries 命令行只有一个用户，缓存仅在单次命令内有效
func queries() *query.Queries {
	api := apiclient.New(opts.baseURL, apiclient.WithTimeout(opts.timeout))
	svc := query.NewService(api, query.NewCache())
	var tokens query.TokenSource
	if opts.token != "" {
		tokens = query.StaticToken(opts.token)
	}
	return svc.For("cli", tokens)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRequestsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "requests", Short: "Website requests"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List your website requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			requests, err := queries().Requests(cmd.Context())
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), requests)
			}
			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPROJECT\tTYPE\tSTATUS\tEDIT WINDOW")
			for i := range requests {
				r := &requests[i]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.ProjectName, r.ProjectType, r.Status, r.RemainingEdit(now))
			}
			return tw.Flush()
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one website request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := queries().Request(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check-limit",
		Short: "Check whether a new request can be submitted",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ratelimit.NewGate(queries(), nil).Attempt(cmd.Context())
			if err != nil {
				return err
			}
			if d.Allowed {
				fmt.Fprintln(cmd.OutOrStdout(), "You can submit a new request.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Message)
			return nil
		},
	}

	var form models.CreateWebsiteRequestDTO
	var features, links string
	var pages int
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a new website request",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := queries()
			d, err := ratelimit.NewGate(q, nil).Attempt(cmd.Context())
			if err != nil {
				return err
			}
			if !d.Allowed {
				return errors.New(d.Message)
			}
			form.Features = splitCSV(features)
			form.ReferenceLinks = splitCSV(links)
			if pages > 0 {
				form.PagesRequired = &pages
			}
			created, err := q.CreateRequest(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request %s submitted, editable until %s\n", created.ID, created.EditableUntil.Local().Format(time.RFC1123))
			return nil
		},
	}
	f := createCmd.Flags()
	f.StringVar(&form.ProjectName, "name", "", "project name")
	f.StringVar(&form.Description, "description", "", "project description")
	f.StringVar((*string)(&form.ProjectType), "type", string(models.ProjectTypeBusiness), "project type")
	f.StringVar(&form.ContactName, "contact-name", "", "contact name")
	f.StringVar(&form.ContactEmail, "contact-email", "", "contact email")
	f.StringVar(&form.ContactPhone, "contact-phone", "", "contact phone")
	f.IntVar(&pages, "pages", 0, "number of pages required")
	f.StringVar(&features, "features", "", "comma separated features")
	f.StringVar(&links, "reference-links", "", "comma separated reference links")
	for _, name := range []string{"name", "description", "contact-name", "contact-email", "contact-phone"} {
		_ = createCmd.MarkFlagRequired(name)
	}

	cmd.AddCommand(listCmd, getCmd, checkCmd, createCmd)
	return cmd
}

func newWebsitesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "websites", Short: "Websites built for you"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List your websites",
		RunE: func(cmd *cobra.Command, args []string) error {
			websites, err := queries().Websites(cmd.Context())
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), websites)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPROGRESS\tURL")
			for i := range websites {
				w := &websites[i]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%s\n", w.ID, w.Name, w.Status, w.Progress(), w.DeploymentURL)
			}
			return tw.Flush()
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one website",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := queries().Website(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), w)
		},
	}

	cmd.AddCommand(listCmd, getCmd)
	return cmd
}

func newBillingCmd() *cobra.Command {
	var plan string
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Billing of deployed websites",
		RunE: func(cmd *cobra.Command, args []string) error {
			if plan != "" && !models.BillingPlan(plan).Valid() {
				return fmt.Errorf("unknown plan %q", plan)
			}
			q := queries()
			var (
				websites []models.Website
				err      error
			)
			if plan != "" {
				websites, err = q.WebsitesByPlan(cmd.Context(), plan)
			} else {
				websites, err = q.Websites(cmd.Context())
			}
			if err != nil {
				return err
			}

			now := time.Now()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WEBSITE\tPLAN\tSTATUS\tPRICE\tNEXT DUE\tNOTE")
			for i := range websites {
				b, ok := websites[i].DeployedBilling()
				if !ok {
					continue
				}
				note := ""
				if err := b.Validate(now); err != nil {
					note = err.Error()
				}
				due, price := "-", "-"
				if b.DueAt != nil {
					due = b.DueAt.Local().Format("2006-01-02")
				}
				if b.Price != nil {
					price = fmt.Sprintf("%.0f", *b.Price)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", websites[i].Name, b.Plan, b.Status, price, due, note)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&plan, "plan", "", "only websites on this plan")
	return cmd
}

func newSupportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "support", Short: "Support tickets"}

	var filter models.SupportFilter
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List your support tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q", filter.Status)
			}
			if filter.Category != "" && !filter.Category.Valid() {
				return fmt.Errorf("unknown category %q", filter.Category)
			}
			tickets, err := queries().SupportRequests(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), tickets)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSUBJECT\tCATEGORY\tSTATUS\tCREATED")
			for _, t := range tickets {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Subject, t.Category, t.Status, t.CreatedAt.Local().Format("2006-01-02"))
			}
			return tw.Flush()
		},
	}
	lf := listCmd.Flags()
	lf.StringVar((*string)(&filter.Status), "status", "", "filter by status")
	lf.StringVar(&filter.WebsiteID, "website", "", "filter by website id")
	lf.StringVar((*string)(&filter.Category), "category", "", "filter by category")

	var ticket models.CreateSupportRequestDTO
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Open a support ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket.Subject = strings.TrimSpace(ticket.Subject)
			ticket.Message = strings.TrimSpace(ticket.Message)
			created, err := queries().CreateSupportRequest(cmd.Context(), ticket)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ticket %s opened\n", created.ID)
			return nil
		},
	}
	cf := createCmd.Flags()
	cf.StringVar(&ticket.WebsiteID, "website", "", "website id")
	cf.StringVar((*string)(&ticket.Category), "category", "", "issue type")
	cf.StringVar(&ticket.Subject, "subject", "", "subject")
	cf.StringVar(&ticket.Message, "message", "", "message")
	for _, name := range []string{"website", "category", "subject", "message"} {
		_ = createCmd.MarkFlagRequired(name)
	}

	cmd.AddCommand(listCmd, createCmd)
	return cmd
}

func splitCSV(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
