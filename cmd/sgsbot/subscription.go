package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/DominikKuenkele/sgs-housing-bot/db"
	"github.com/DominikKuenkele/sgs-housing-bot/db/models"
	"github.com/DominikKuenkele/sgs-housing-bot/internal/clifmt"
	"github.com/DominikKuenkele/sgs-housing-bot/internal/strutil"
	"github.com/DominikKuenkele/sgs-housing-bot/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const maxListedDestinations = 60

func newSubscriptionCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscription",
		Aliases: []string{"sub"},
		Short:   "Manage subscriptions",
	}
	cmd.AddCommand(newSubscriptionAddCmd(opts))
	cmd.AddCommand(newSubscriptionRemoveCmd(opts))
	cmd.AddCommand(newSubscriptionListCmd())
	return cmd
}

func withStore(ctx context.Context, fn func(*store.GormStore) error) error {
	if err := ensureDataRoot(); err != nil {
		return err
	}
	gdb, err := db.Open(ctx, dbConfigFromViper())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(gdb) }()
	return fn(store.NewGormStore(gdb))
}

func newSubscriptionAddCmd(opts *rootOptions) *cobra.Command {
	var (
		email        string
		maxRent      int64
		minArea      int64
		destinations []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sub := models.Subscription{Email: email, MaxRent: maxRent, MinArea: minArea}
			for _, name := range destinations {
				sub.Destinations = append(sub.Destinations, models.Destination{Name: name})
			}
			return withStore(cmd.Context(), func(st *store.GormStore) error {
				created, err := st.AddSubscription(cmd.Context(), sub)
				if err != nil {
					return err
				}
				opts.logger.Info("subscription_added", "id", created.ID, "email", created.Email, "destinations", len(created.Destinations))
				clifmt.New(cmd.OutOrStdout()).Successf("added subscription %d for %s", created.ID, created.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "subscriber email address")
	cmd.Flags().Int64Var(&maxRent, "max-rent", 100000, "notify only about rents below this value (SEK)")
	cmd.Flags().Int64Var(&minArea, "min-area", 0, "notify only about areas above this value (m²)")
	cmd.Flags().StringArrayVar(&destinations, "destination", nil, "destination to report travel time to (repeatable)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSubscriptionRemoveCmd(opts *rootOptions) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove every subscription of an email address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(st *store.GormStore) error {
				n, err := st.RemoveSubscriptionsByEmail(cmd.Context(), email)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no subscription for %s", strings.TrimSpace(email))
				}
				if err != nil {
					return err
				}
				opts.logger.Info("subscriptions_removed", "email", email, "count", n)
				clifmt.New(cmd.OutOrStdout()).Successf("removed %d subscription(s) for %s", n, strings.TrimSpace(email))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "subscriber email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

type subscriptionView struct {
	ID           uint     `yaml:"id"`
	Email        string   `yaml:"email"`
	MaxRent      int64    `yaml:"max_rent"`
	MinArea      int64    `yaml:"min_area"`
	Destinations []string `yaml:"destinations,omitempty"`
}

func viewOf(s models.Subscription) subscriptionView {
	v := subscriptionView{ID: s.ID, Email: s.Email, MaxRent: s.MaxRent, MinArea: s.MinArea}
	for _, d := range s.Destinations {
		v.Destinations = append(v.Destinations, d.Name)
	}
	return v
}

func newSubscriptionListCmd() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(st *store.GormStore) error {
				subs, err := st.ListSubscriptions(cmd.Context())
				if err != nil {
					return err
				}
				views := make([]subscriptionView, 0, len(subs))
				for _, s := range subs {
					views = append(views, viewOf(s))
				}
				if asYAML {
					enc := yaml.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent(2)
					if err := enc.Encode(views); err != nil {
						return err
					}
					return enc.Close()
				}

				out := clifmt.New(cmd.OutOrStdout())
				if len(views) == 0 {
					out.Warnf("no subscriptions")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						strconv.FormatUint(uint64(v.ID), 10),
						v.Email,
						strconv.FormatInt(v.MaxRent, 10),
						strconv.FormatInt(v.MinArea, 10),
						strutil.Ellipsize(strings.Join(v.Destinations, ", "), maxListedDestinations),
					})
				}
				return out.Table([]string{"ID", "EMAIL", "MAX RENT", "MIN AREA", "DESTINATIONS"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print as YAML")
	return cmd
}
