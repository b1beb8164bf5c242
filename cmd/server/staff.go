package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/simp-lee/practiceadmin/internal/config"
	"github.com/simp-lee/practiceadmin/internal/domain"
	"github.com/simp-lee/practiceadmin/internal/module/staff"
)

func staffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage staff accounts",
	}
	cmd.AddCommand(staffCreateCmd(), staffListCmd())
	return cmd
}

func staffCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			role, _ := cmd.Flags().GetString("role")

			return withStaffService(cmd, func(svc domain.StaffService) error {
				account, err := svc.CreateStaff(cmd.Context(), name, email, password, domain.Role(role))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s account %d for %s\n", account.Role, account.ID, account.Email)
				return nil
			})
		},
	}
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("email", "", "sign-in email")
	cmd.Flags().String("password", "", "initial password (at least 8 characters)")
	cmd.Flags().String("role", string(domain.RoleStaff), "account role: admin or staff")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func staffListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staff accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, _ := cmd.Flags().GetInt("page")
			size, _ := cmd.Flags().GetInt("page-size")

			return withStaffService(cmd, func(svc domain.StaffService) error {
				result, err := svc.ListStaff(cmd.Context(), domain.PageRequest{Page: page, PageSize: size, Ordering: "id"})
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE")
				for _, s := range result.Items {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Name, s.Email, s.Role)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d, %d accounts\n", result.CurrentPage, result.TotalPages, result.TotalItems)
				return nil
			})
		},
	}
	cmd.Flags().Int("page", 1, "page number")
	cmd.Flags().Int("page-size", 20, "accounts per page")
	return cmd
}

// withStaffService opens the staff database from the configuration, runs fn
// and closes everything again.
func withStaffService(cmd *cobra.Command, fn func(domain.StaffService) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer log.Close()

	db, err := config.SetupDatabase(&cfg.Database, log.Logger, &domain.Staff{})
	if err != nil {
		return fmt.Errorf("setup database: %w", err)
	}
	defer closeDB(db)

	return fn(staff.NewStaffService(staff.NewStaffRepository(db), 0))
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		slog.Error("database close error", slog.Any("error", err))
	}
}
