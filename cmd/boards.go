package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/habedi/gigsync/client"
	"github.com/habedi/gigsync/pkg/hasher"
	"github.com/habedi/gigsync/pkg/pool"
	"github.com/habedi/gigsync/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func boardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "Browse and manage board posts",
	}

	cmd.AddCommand(
		boardsListCmd(),
		boardsShowCmd(),
		boardsCreateCmd(),
		boardsEditCmd(),
		boardsDeleteCmd(),
		boardsExportCmd(),
	)

	return cmd
}

func boardsListCmd() *cobra.Command {
	var sortType string
	var page, size int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one page of board posts",
		Run: func(cmd *cobra.Command, args []string) {
			if err := validation.ValidateSortType(sortType); err != nil {
				printError(cmd, invalid(err))
				return
			}
			if err := validation.ValidatePage(page, size); err != nil {
				printError(cmd, invalid(err))
				return
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				result, err := s.client.ListBoards(ctx, sortType, page, size)
				if err != nil {
					return err
				}
				if len(result.Content) == 0 {
					cmd.Println("No boards found.")
					return nil
				}

				table := newTable(cmd.OutOrStdout(), []string{"ID", "Type", "Title", "Author", "Views", "Created"})
				table.SetColMinWidth(2, 40)
				for _, b := range result.Content {
					table.Append([]string{
						strconv.FormatInt(b.ID, 10),
						string(b.BoardType),
						oneLine(b.Title, 60),
						b.UserName,
						strconv.FormatInt(b.ViewCount, 10),
						b.CreatedAt,
					})
				}
				table.Render()
				cmd.Printf("Page %d of %d (%d boards in total)\n", result.Number+1, result.TotalPages, result.TotalElements)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sortType, "sort", "s", client.SortLatest, "Sort order: latest or popular")
	cmd.Flags().IntVarP(&page, "page", "p", 0, "Page number, starting at 0")
	cmd.Flags().IntVarP(&size, "size", "n", 20, "Number of boards per page")

	return cmd
}

func boardsShowCmd() *cobra.Command {
	var withComments bool

	cmd := &cobra.Command{
		Use:   "show <board-id>",
		Short: "Show a board post",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := parseID("board", args[0])
			if err != nil {
				printError(cmd, err)
				return
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				b, err := s.client.GetBoard(ctx, id)
				if err != nil {
					return err
				}
				cmd.Printf("ID: %d\n", b.ID)
				cmd.Printf("Title: %s\n", b.Title)
				cmd.Printf("Type: %s\n", b.BoardType)
				cmd.Printf("Author: %s\n", b.UserName)
				cmd.Printf("Views: %d\n", b.ViewCount)
				cmd.Printf("Created: %s\n", b.CreatedAt)
				for _, f := range b.FileURLs {
					cmd.Printf("File: %s\n", f)
				}
				cmd.Printf("\n%s\n", b.Text)

				if !withComments {
					return nil
				}
				comments, err := s.client.ListComments(ctx, id)
				if err != nil {
					return err
				}
				cmd.Printf("\nComments (%d):\n", len(comments))
				for _, c := range comments {
					cmd.Printf("  #%d %s: %s\n", c.ID, c.UserName, oneLine(c.Text, 200))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&withComments, "comments", "c", false, "Also show the comments")

	return cmd
}

func boardsCreateCmd() *cobra.Command {
	var title, text, boardType string
	var files []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a new board post",
		Run: func(cmd *cobra.Command, args []string) {
			if err := validation.ValidateTitle(title); err != nil {
				printError(cmd, invalid(err))
				return
			}
			if err := validation.ValidateNonEmptyString("text", text); err != nil {
				printError(cmd, invalid(err))
				return
			}
			bt, err := parseBoardType(boardType)
			if err != nil {
				printError(cmd, err)
				return
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				b, err := s.client.CreateBoard(ctx, client.BoardRequest{Title: title, Text: text, BoardType: bt}, files)
				if err != nil {
					return err
				}
				cmd.Printf("Created board %d.\n", b.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Title of the post (required)")
	cmd.Flags().StringVarP(&text, "text", "x", "", "Body of the post (required)")
	cmd.Flags().StringVarP(&boardType, "type", "y", string(client.BoardFree),
		"Board type: "+strings.Join(boardTypeNames(), ", "))
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "File to attach; repeat for several files")

	return cmd
}

// boardsEditCmd updates only the fields given on the command line.
func boardsEditCmd() *cobra.Command {
	var title, text, boardType string
	var files []string
	var deleteFiles []int64

	cmd := &cobra.Command{
		Use:   "edit <board-id>",
		Short: "Edit one of your board posts",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := parseID("board", args[0])
			if err != nil {
				printError(cmd, err)
				return
			}
			if cmd.Flags().Changed("title") {
				if err := validation.ValidateTitle(title); err != nil {
					printError(cmd, invalid(err))
					return
				}
			}
			var bt client.BoardType
			if cmd.Flags().Changed("type") {
				if bt, err = parseBoardType(boardType); err != nil {
					printError(cmd, err)
					return
				}
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				current, err := s.client.GetBoard(ctx, id)
				if err != nil {
					return err
				}
				req := client.BoardRequest{
					Title:         current.Title,
					Text:          current.Text,
					BoardType:     current.BoardType,
					DeleteFileIDs: deleteFiles,
				}
				if cmd.Flags().Changed("title") {
					req.Title = title
				}
				if cmd.Flags().Changed("text") {
					req.Text = text
				}
				if bt != "" {
					req.BoardType = bt
				}

				if _, err := s.client.UpdateBoard(ctx, id, req, files); err != nil {
					return err
				}
				cmd.Printf("Updated board %d.\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&text, "text", "x", "", "New body")
	cmd.Flags().StringVarP(&boardType, "type", "y", "", "New board type")
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "File to add; repeat for several files")
	cmd.Flags().Int64SliceVarP(&deleteFiles, "delete-file", "d", nil, "ID of an attachment to remove")

	return cmd
}

func boardsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <board-id>",
		Short: "Delete one of your board posts",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := parseID("board", args[0])
			if err != nil {
				printError(cmd, err)
				return
			}
			withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.client.DeleteBoard(ctx, id); err != nil {
					return err
				}
				cmd.Printf("Deleted board %d.\n", id)
				return nil
			})
		},
	}
}

// boardsExportCmd saves full board posts to a JSON or CSV file.
func boardsExportCmd() *cobra.Command {
	var exportDir, exportFormat, sortType, checksum string
	var pages, size, numWorkers int

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export board posts to a file",
		Run: func(cmd *cobra.Command, args []string) {
			if exportDir == "" {
				printError(cmd, invalid(fmt.Errorf("export directory is required")))
				return
			}
			if exportFormat != "json" && exportFormat != "csv" {
				printError(cmd, invalid(fmt.Errorf("invalid export format: %s (must be one of: json, csv)", exportFormat)))
				return
			}
			for _, err := range []error{
				validation.ValidateSortType(sortType),
				validation.ValidatePage(0, size),
				validation.ValidateWorkerCount(numWorkers),
			} {
				if err != nil {
					printError(cmd, invalid(err))
					return
				}
			}
			if checksum != "" && !hasher.IsValidHashAlgo(checksum) {
				printError(cmd, invalid(fmt.Errorf("invalid checksum algorithm: %s (must be one of: %s)", checksum, strings.Join(hasher.HashAlgorithms, ", "))))
				return
			}
			if pages < 1 {
				printError(cmd, invalid(fmt.Errorf("pages must be at least 1, got %d", pages)))
				return
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				return exportBoards(ctx, cmd, s.client, exportOptions{
					dir:        exportDir,
					format:     exportFormat,
					sortType:   sortType,
					checksum:   checksum,
					pages:      pages,
					size:       size,
					numWorkers: numWorkers,
				})
			})
		},
	}

	cmd.Flags().StringVarP(&exportDir, "dir", "d", "", "Directory to write the export file to (required)")
	cmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Export format: json or csv")
	cmd.Flags().StringVarP(&sortType, "sort", "s", client.SortLatest, "Sort order: latest or popular")
	cmd.Flags().IntVarP(&pages, "pages", "p", 5, "Maximum number of pages to export")
	cmd.Flags().IntVarP(&size, "size", "n", 50, "Number of boards per page")
	cmd.Flags().IntVarP(&numWorkers, "workers", "w", 5, "Number of boards to fetch at the same time")
	cmd.Flags().StringVarP(&checksum, "checksum", "c", "", "Also write a checksum file: "+strings.Join(hasher.HashAlgorithms, ", "))

	return cmd
}

type exportOptions struct {
	dir, format, sortType, checksum string
	pages, size, numWorkers         int
}

func exportBoards(ctx context.Context, cmd *cobra.Command, c *client.Client, opts exportOptions) error {
	log.Info().Str("dir", opts.dir).Str("format", opts.format).Msg("Exporting boards...")

	var ids []int64
	for page := 0; page < opts.pages; page++ {
		result, err := c.ListBoards(ctx, opts.sortType, page, opts.size)
		if err != nil {
			return err
		}
		for _, b := range result.Content {
			ids = append(ids, b.ID)
		}
		if len(result.Content) == 0 || page+1 >= result.TotalPages {
			break
		}
	}
	if len(ids) == 0 {
		cmd.Println("No boards to export.")
		return nil
	}

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Fetching boards..."),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	)

	results := pool.Map(ctx, ids, opts.numWorkers, func(ctx context.Context, id int64) (*client.Board, error) {
		defer func() { _ = bar.Add(1) }()
		return c.GetBoard(ctx, id)
	})
	_ = bar.Finish()

	boards := make([]client.Board, 0, len(results))
	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			log.Warn().Err(r.Err).Int64("board_id", ids[i]).Msg("Failed to fetch board")
			continue
		}
		boards = append(boards, *r.Value)
	}
	if len(boards) == 0 {
		return results[0].Err
	}

	if err := os.MkdirAll(opts.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(opts.dir, fmt.Sprintf("gigsync_boards_%s.%s", timestamp, opts.format))

	var err error
	if opts.format == "json" {
		err = writeBoardsJSON(path, boards)
	} else {
		err = writeBoardsCSV(path, boards)
	}
	if err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	if opts.checksum != "" {
		sumPath, err := hasher.WriteChecksumFile(path, opts.checksum)
		if err != nil {
			return err
		}
		log.Info().Str("path", sumPath).Msg("Checksum written")
	}

	if failed > 0 {
		cmd.PrintErrf("Warning: %d boards could not be fetched and were skipped.\n", failed)
	}
	cmd.Printf("Exported %d boards to %s\n", len(boards), path)
	return nil
}

func writeBoardsJSON(path string, boards []client.Board) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(boards)
}

func writeBoardsCSV(path string, boards []client.Board) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"ID", "Type", "Title", "Author", "Views", "Created", "Text"}); err != nil {
		return err
	}
	for _, b := range boards {
		if err := w.Write([]string{
			strconv.FormatInt(b.ID, 10),
			string(b.BoardType),
			b.Title,
			b.UserName,
			strconv.FormatInt(b.ViewCount, 10),
			b.CreatedAt,
			b.Text,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
