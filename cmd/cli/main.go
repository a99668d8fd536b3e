package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/service"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var apiURL string
	client := func() *apiClient { return newAPIClient(apiURL, loadToken()) }

	root := &cobra.Command{
		Use:           "assettrack",
		Short:         "AssetTrack admin CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&apiURL, "api", getAPIURL(), "API endpoint (env ASSETTRACK_API)")

	root.AddCommand(
		newLoginCommand(client),
		newLogoutCommand(),
		newWhoAmICommand(client),
		newUsersCommand(client),
		newTenantsCommand(client),
	)
	return root
}

func newLoginCommand(client func() *apiClient) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res service.LoginResult
			err := client().do(cmd.Context(), http.MethodPost, "/auth/login",
				map[string]string{"username": username, "password": password}, &res)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := saveToken(res.Token); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in as: %s (expires %s)\n", username, res.ExpiresAt.Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := removeToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}
}

func newWhoAmICommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var u domain.User
			if err := client().do(cmd.Context(), http.MethodGet, "/users/me", nil, &u); err != nil {
				return err
			}
			printUsers(cmd.OutOrStdout(), []*domain.User{&u})
			return nil
		},
	}
}

func newUsersCommand(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Manage users"}

	var tenantFilter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List users visible to you",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/users"
			if tenantFilter != "" {
				path += "?tenantId=" + tenantFilter
			}
			var users []*domain.User
			if err := client().do(cmd.Context(), http.MethodGet, path, nil, &users); err != nil {
				return err
			}
			printUsers(cmd.OutOrStdout(), users)
			return nil
		},
	}
	list.Flags().StringVar(&tenantFilter, "tenant", "", "only users of this tenant")

	var req service.CreateUserRequest
	var tenantID, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.ConfirmPassword = req.Password
			req.Role = domain.Role(role)
			if tenantID != "" {
				req.TenantID = &tenantID
			}
			var u domain.User
			if err := client().do(cmd.Context(), http.MethodPost, "/users", req, &u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ User created: %s (%s)\n", u.Username, u.ID)
			return nil
		},
	}
	create.Flags().StringVar(&req.Username, "username", "", "username")
	create.Flags().StringVar(&req.Email, "email", "", "email")
	create.Flags().StringVar(&req.Password, "password", "", "password")
	create.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	create.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	create.Flags().StringVar(&role, "role", "", "user, tenantadmin, admin or superadmin")
	create.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().do(cmd.Context(), http.MethodDelete, "/users/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ User deleted: %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}

func newTenantsCommand(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{Use: "tenants", Short: "Manage tenants"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var tenants []*domain.Tenant
			if err := client().do(cmd.Context(), http.MethodGet, "/tenants", nil, &tenants); err != nil {
				return err
			}
			printTenants(cmd.OutOrStdout(), tenants)
			return nil
		},
	}

	var req service.CreateTenantRequest
	var plan string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.SubscriptionPlan = domain.Plan(plan)
			var t domain.Tenant
			if err := client().do(cmd.Context(), http.MethodPost, "/tenants", req, &t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Tenant created: %s (%s)\n", t.Name, t.ID)
			return nil
		},
	}
	create.Flags().StringVar(&req.Name, "name", "", "tenant name")
	create.Flags().StringVar(&plan, "plan", "", "basic, pro or enterprise")
	_ = create.MarkFlagRequired("name")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t domain.Tenant
			if err := client().do(cmd.Context(), http.MethodGet, "/tenants/"+args[0], nil, &t); err != nil {
				return err
			}
			printTenants(cmd.OutOrStdout(), []*domain.Tenant{&t})
			return nil
		},
	}

	cmd.AddCommand(list, create, get)
	return cmd
}

func printUsers(out io.Writer, users []*domain.User) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tROLE\tTENANT")
	for _, u := range users {
		tenant := u.Tenant()
		if tenant == "" {
			tenant = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.Role, tenant)
	}
	w.Flush()
}

func printTenants(out io.Writer, tenants []*domain.Tenant) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPLAN\tSTATUS\tUSERS")
	for _, t := range tenants {
		limit := "unlimited"
		if t.UserLimit != domain.Unlimited {
			limit = fmt.Sprint(t.UserLimit)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%s\n", t.ID, t.Name, t.SubscriptionPlan, t.SubscriptionStatus, t.UserCount, limit)
	}
	w.Flush()
}
