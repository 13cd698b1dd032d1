// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/auth"
)

// actorInput describes an actor created from the command line.
type actorInput struct {
	Username    string
	Email       string
	Password    string
	Roles       []string
	AccountName string
	NoAccount   bool
}

func newActorCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Manage actors",
	}

	var in actorInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an actor and its account",
		Long: `Create an active actor. The password is read from the first line of
standard input unless --password is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, deps)
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			if in.Password == "" {
				if in.Password, err = readPassword(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			hasher, err := deps.passwordHasher(cfg)
			if err != nil {
				return err
			}

			stores, err := deps.OpenActorStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if stores.Close != nil {
				defer stores.Close()
			}

			actor, err := addActor(cmd.Context(), in, stores, hasher)
			if err != nil {
				return err
			}
			cmd.Printf("Created actor %s (%s)\n", actor.Username, actor.ID)
			return nil
		},
	}
	add.Flags().StringVar(&in.Username, "username", "", "login name (required)")
	add.Flags().StringVar(&in.Email, "email", "", "email address (required)")
	add.Flags().StringVar(&in.Password, "password", "", "password (default: read from stdin)")
	add.Flags().StringSliceVar(&in.Roles, "role", nil, "role to grant (repeatable)")
	add.Flags().StringVar(&in.AccountName, "account-name", "", "account display name (default: username)")
	add.Flags().BoolVar(&in.NoAccount, "no-account", false, "skip creating an account")
	_ = add.MarkFlagRequired("username")
	_ = add.MarkFlagRequired("email")

	cmd.AddCommand(add)
	return cmd
}

// addActor hashes the password and stores the actor, then its account.
func addActor(ctx context.Context, in actorInput, stores *ActorStores, hasher auth.PasswordHasher) (*auth.Actor, error) {
	hash, err := hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	actor, err := auth.NewActor(in.Username, in.Email, hash, in.Roles)
	if err != nil {
		return nil, err
	}
	if err := stores.Actors.Create(ctx, actor); err != nil {
		return nil, oops.With("operation", "create actor").With("username", actor.Username).Wrap(err)
	}

	if in.NoAccount {
		return actor, nil
	}
	name := strings.TrimSpace(in.AccountName)
	if name == "" {
		name = actor.Username
	}
	account := &auth.Account{
		ID:        ulid.Make(),
		ActorID:   actor.ID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := stores.Accounts.Create(ctx, account); err != nil {
		return nil, oops.With("operation", "create account").With("actor_id", actor.ID.String()).Wrap(err)
	}
	return actor, nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("INPUT_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", oops.Code(auth.CodeEmptyPassword).Errorf("no password on stdin")
	}
	return password, nil
}
