package main

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/imitation/backend/internal/seed"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSeedCommand() *cobra.Command {
	counts := seed.DefaultCounts
	var seedValue int64

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with generated users, posts and flashcards",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			seeder, err := seed.NewSeeder(seed.Config{
				Users:      app.users,
				Posts:      app.feed,
				Flashcards: app.flashcards,
				Seed:       seedValue,
				Logger:     app.logger,
			})
			if err != nil {
				return err
			}
			summary, err := seeder.Run(cmd.Context(), counts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d posts, %d comments, %d decks, %d cards, %d reviews\n",
				summary.Users, summary.Posts, summary.Comments, summary.Decks, summary.Cards, summary.Reviews)
			return nil
		},
	}

	cmd.Flags().Int64Var(&seedValue, "seed", time.Now().UnixNano(), "Random seed")
	cmd.Flags().IntVar(&counts.Users, "users", counts.Users, "Number of users")
	cmd.Flags().IntVar(&counts.PostsPerUser, "posts-per-user", counts.PostsPerUser, "Posts per user")
	cmd.Flags().IntVar(&counts.CommentsPerPost, "comments-per-post", counts.CommentsPerPost, "Comments per post")
	cmd.Flags().IntVar(&counts.DecksPerUser, "decks-per-user", counts.DecksPerUser, "Decks per user")
	cmd.Flags().IntVar(&counts.CardsPerDeck, "cards-per-deck", counts.CardsPerDeck, "Cards per deck")
	return cmd
}

// newTokenCommand mints an HS256 token with the configured secret for local testing.
func newTokenCommand() *cobra.Command {
	var (
		subject string
		email   string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("auth.jwt_secret")
			if secret == "" {
				return fmt.Errorf("auth.jwt_secret is required to issue tokens")
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(secret),
				Issuer:        viper.GetString("auth.issuer"),
				Audience:      viper.GetString("auth.audience"),
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueToken(auth.Identity{Subject: subject, Email: email})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %d seconds\n", expiresIn)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Token subject")
	cmd.Flags().StringVar(&email, "email", "", "Token email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
