package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"memberdir/internal/directory"
	"memberdir/internal/models"
	"memberdir/internal/notifications"
	"memberdir/internal/repository"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const commandTimeout = 30 * time.Second

// app holds what the subcommands operate on.
type app struct {
	profiles repository.ProfileRepository
	notifier *notifications.Notifier
}

func newRootCmd(connect func() (*app, error)) *cobra.Command {
	var a *app

	root := &cobra.Command{
		Use:           "admin",
		Short:         "Operate on member directory profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = connect()
			return err
		},
	}

	var (
		includeHidden bool
		search        string
		category      string
		facet         string
		sortKey       string
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles, newest first",
		Long: `List directory profiles using the same search, category and sort rules
as the member-facing directory. Hidden profiles are only shown with --all.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			var (
				profiles []models.Profile
				err      error
			)
			if includeHidden {
				profiles, err = a.profiles.ListAll(ctx)
			} else {
				profiles, err = a.profiles.ListVisible(ctx)
			}
			if err != nil {
				return fmt.Errorf("list profiles: %w", err)
			}

			view := directory.Apply(profiles, directory.ParseQuery(search, facet, category, sortKey))
			return printProfiles(cmd, view)
		},
	}
	listCmd.Flags().BoolVar(&includeHidden, "all", false, "include hidden profiles")
	listCmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive search text")
	listCmd.Flags().StringVarP(&category, "category", "c", "", "opportunity category token")
	listCmd.Flags().StringVar(&facet, "facet", "", "restrict --category to open_to or can_provide")
	listCmd.Flags().StringVar(&sortKey, "sort", "", "created_at (default) or display_name")

	root.AddCommand(
		listCmd,
		&cobra.Command{
			Use:   "hide <user_id>",
			Short: "Hide a profile from the directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.setVisibility(cmd, args[0], false)
			},
		},
		&cobra.Command{
			Use:   "show <user_id>",
			Short: "Show a hidden profile again",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.setVisibility(cmd, args[0], true)
			},
		},
		&cobra.Command{
			Use:   "delete <user_id>",
			Short: "Permanently delete a profile",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				userID, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid user id %q", args[0])
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
				defer cancel()

				if err := a.profiles.Delete(ctx, userID); err != nil {
					return fmt.Errorf("delete profile: %w", err)
				}
				a.announce(ctx, directory.Change{Kind: directory.MutationDelete, UserID: userID})
				fmt.Fprintf(cmd.OutOrStdout(), "deleted profile of %s\n", userID)
				return nil
			},
		},
	)
	return root
}

func (a *app) setVisibility(cmd *cobra.Command, rawID string, visible bool) error {
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid user id %q", rawID)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	if err := a.profiles.SetVisibility(ctx, userID, visible); err != nil {
		if repository.IsNoRows(err) {
			return fmt.Errorf("no profile for user %s", userID)
		}
		return fmt.Errorf("update visibility: %w", err)
	}
	a.announce(ctx, directory.Change{Kind: directory.MutationUpdate, UserID: userID})

	state := "hidden"
	if visible {
		state = "visible"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "profile of %s is now %s\n", userID, state)
	return nil
}

// announce tells running servers to reload their views.
func (a *app) announce(ctx context.Context, c directory.Change) {
	if a.notifier == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return
	}
	_ = a.notifier.PublishChange(ctx, payload)
}

func printProfiles(cmd *cobra.Command, profiles []models.Profile) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER ID\tNAME\tVISIBLE\tCONTACT\tSKILLS\tCREATED")
	for _, p := range profiles {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n",
			p.UserID,
			p.DisplayName,
			p.IsVisible,
			contact(p),
			strings.Join(p.Skills, ", "),
			p.CreatedAt.Format("2006-01-02"),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d profile(s)\n", len(profiles))
	return nil
}

func contact(p models.Profile) string {
	switch {
	case p.ContactMethod == models.ContactSlack && p.SlackHandle != nil:
		return "slack:" + *p.SlackHandle
	case p.ContactMethod == models.ContactEmail && p.ContactEmail != nil:
		return "email:" + *p.ContactEmail
	}
	return string(p.ContactMethod)
}
