package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/habedi/gigsync/pkg/clierr"
	"github.com/habedi/gigsync/pkg/pool"
	"github.com/habedi/gigsync/pkg/validation"
	"github.com/spf13/cobra"
)

func commentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Read and write comments on board posts",
	}

	cmd.AddCommand(
		commentsListCmd(),
		commentsAddCmd(),
		commentsEditCmd(),
		commentsDeleteCmd(),
	)

	return cmd
}

func commentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <board-id>",
		Short: "Show the comments on a board post",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			boardID, err := parseID("board", args[0])
			if err != nil {
				printError(cmd, err)
				return
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				comments, err := s.client.ListComments(ctx, boardID)
				if err != nil {
					return err
				}
				if len(comments) == 0 {
					cmd.Println("No comments yet.")
					return nil
				}

				table := newTable(cmd.OutOrStdout(), []string{"ID", "Author", "Comment", "Created"})
				table.SetColMinWidth(2, 40)
				for _, c := range comments {
					table.Append([]string{
						strconv.FormatInt(c.ID, 10),
						c.UserName,
						oneLine(c.Text, 80),
						c.CreatedAt,
					})
				}
				table.Render()
				return nil
			})
		},
	}
}

func commentsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <board-id> <text>",
		Short: "Comment on a board post",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			boardID, err := parseID("board", args[0])
			if err != nil {
				printError(cmd, err)
				return
			}
			text := strings.Join(args[1:], " ")
			if err := validation.ValidateNonEmptyString("comment", text); err != nil {
				printError(cmd, invalid(err))
				return
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				c, err := s.client.AddComment(ctx, boardID, text)
				if err != nil {
					return err
				}
				cmd.Printf("Added comment %d to board %d.\n", c.ID, boardID)
				return nil
			})
		},
	}
}

func commentsEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <board-id> <comment-id> <text>",
		Short: "Change one of your comments",
		Args:  cobra.MinimumNArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			boardID, commentID, err := parseCommentArgs(args)
			if err != nil {
				printError(cmd, err)
				return
			}
			text := strings.Join(args[2:], " ")
			if err := validation.ValidateNonEmptyString("comment", text); err != nil {
				printError(cmd, invalid(err))
				return
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				if _, err := s.client.UpdateComment(ctx, boardID, commentID, text); err != nil {
					return err
				}
				cmd.Printf("Updated comment %d.\n", commentID)
				return nil
			})
		},
	}
}

// commentsDeleteCmd removes one or more comments of a board, several at a time.
func commentsDeleteCmd() *cobra.Command {
	var numWorkers int

	cmd := &cobra.Command{
		Use:   "delete <board-id> <comment-id>...",
		Short: "Delete one or more of your comments",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			boardID, err := parseID("board", args[0])
			if err != nil {
				printError(cmd, err)
				return
			}
			commentIDs := make([]int64, 0, len(args)-1)
			for _, arg := range args[1:] {
				id, err := parseID("comment", arg)
				if err != nil {
					printError(cmd, err)
					return
				}
				commentIDs = append(commentIDs, id)
			}
			if err := validation.ValidateWorkerCount(numWorkers); err != nil {
				printError(cmd, invalid(err))
				return
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				errs := pool.Run(ctx, commentIDs, numWorkers, func(ctx context.Context, id int64) error {
					if err := s.client.DeleteComment(ctx, boardID, id); err != nil {
						ce := clierr.FromAPI(err)
						return clierr.New(ce.Type, fmt.Sprintf("comment %d: %s", id, ce.Message), err)
					}
					return nil
				})
				for _, err := range errs {
					printError(cmd, err)
				}

				deleted := len(commentIDs) - len(errs)
				switch {
				case len(commentIDs) == 1 && deleted == 1:
					cmd.Printf("Deleted comment %d.\n", commentIDs[0])
				case len(commentIDs) > 1:
					cmd.Printf("Deleted %d of %d comments.\n", deleted, len(commentIDs))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&numWorkers, "workers", "w", 4, "Number of comments to delete at the same time")

	return cmd
}

func parseCommentArgs(args []string) (int64, int64, error) {
	boardID, err := parseID("board", args[0])
	if err != nil {
		return 0, 0, err
	}
	commentID, err := parseID("comment", args[1])
	if err != nil {
		return 0, 0, err
	}
	return boardID, commentID, nil
}
