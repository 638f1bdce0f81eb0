package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/habedi/gigsync/client"
	"github.com/habedi/gigsync/pkg/validation"
	"github.com/spf13/cobra"
)

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Look up members",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a member's profile",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := parseID("user", args[0])
			if err != nil {
				printError(cmd, err)
				return
			}
			withSession(cmd, func(ctx context.Context, s *session) error {
				p, err := s.client.GetUserProfile(ctx, id)
				if err != nil {
					return err
				}
				cmd.Printf("ID: %d\n", p.ID)
				cmd.Printf("Nickname: %s\n", p.NickName)
				cmd.Printf("Email: %s\n", p.Email)
				if p.Bio != "" {
					cmd.Printf("Bio: %s\n", p.Bio)
				}
				if len(p.Instruments) > 0 {
					cmd.Printf("Instruments: %s\n", strings.Join(p.Instruments, ", "))
				}
				if len(p.InterestedGenres) > 0 {
					cmd.Printf("Genres: %s\n", strings.Join(p.InterestedGenres, ", "))
				}
				cmd.Printf("Member since: %s\n", p.CreatedAt)
				return nil
			})
		},
	})

	cmd.AddCommand(usersEditCmd())

	return cmd
}

// usersEditCmd changes the profile fields given as flags and leaves the rest alone.
func usersEditCmd() *cobra.Command {
	var (
		update client.ProfileUpdate
		image  string
	)

	cmd := &cobra.Command{
		Use:   "edit <user-id>",
		Short: "Edit a member profile",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := parseID("user", args[0])
			if err != nil {
				printError(cmd, err)
				return
			}
			if !cmd.Flags().Changed("nickname") && !cmd.Flags().Changed("bio") && !cmd.Flags().Changed("genre") &&
				!cmd.Flags().Changed("instrument") && image == "" {
				printError(cmd, invalid(errors.New("nothing to update: pass at least one of --nickname, --bio, --genre, --instrument, --image")))
				return
			}
			if cmd.Flags().Changed("nickname") {
				if err := validation.ValidateNonEmptyString("nickname", update.NickName); err != nil {
					printError(cmd, invalid(err))
					return
				}
			}
			withSession(cmd, func(ctx context.Context, s *session) error {
				if _, err := s.client.UpdateUserProfile(ctx, id, update, image); err != nil {
					return err
				}
				cmd.Printf("Updated profile of user %d.\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&update.NickName, "nickname", "n", "", "New nickname")
	cmd.Flags().StringVarP(&update.Bio, "bio", "b", "", "Short introduction")
	cmd.Flags().StringSliceVarP(&update.InterestedGenres, "genre", "g", nil, "Genres you are into (repeatable)")
	cmd.Flags().StringSliceVarP(&update.Instruments, "instrument", "i", nil, "Instruments you play (repeatable)")
	cmd.Flags().StringVar(&image, "image", "", "Path to a new profile picture")

	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative actions (admins only)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "promote <user-id>",
		Short: "Grant the admin role to a member",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := parseID("user", args[0])
			if err != nil {
				printError(cmd, err)
				return
			}
			withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.client.RegisterAdmin(ctx, id); err != nil {
					return err
				}
				cmd.Printf("User %d is now an admin.\n", id)
				return nil
			})
		},
	})

	return cmd
}
