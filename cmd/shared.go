package cmd

import (
	"io"
	"strconv"
	"strings"

	"github.com/habedi/gigsync/client"
	"github.com/habedi/gigsync/pkg/clierr"
	"github.com/habedi/gigsync/pkg/validation"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// printError logs err and prints its user-facing message.
func printError(cmd *cobra.Command, err error) {
	ce := clierr.FromAPI(err)
	log.Error().Err(err).Str("command", cmd.CommandPath()).Msg(ce.Message)
	cmd.PrintErrln("Error:", ce.Message)
}

// invalid marks err as bad user input.
func invalid(err error) error {
	return clierr.New(clierr.Validation, err.Error(), err)
}

// parseID reads a positive numeric id from a command argument.
func parseID(kind, arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return 0, invalid(validation.ValidateID(kind, 0))
	}
	if err := validation.ValidateID(kind, id); err != nil {
		return 0, invalid(err)
	}
	return id, nil
}

// boardTypeNames lists the board categories for help texts and validation.
func boardTypeNames() []string {
	names := make([]string, len(client.BoardTypes))
	for i, bt := range client.BoardTypes {
		names[i] = string(bt)
	}
	return names
}

func parseBoardType(s string) (client.BoardType, error) {
	if err := validation.ValidateBoardType(s, boardTypeNames()); err != nil {
		return "", invalid(err)
	}
	return client.ParseBoardType(s)
}

// newTable returns a left-aligned table without row lines or wrapping.
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetRowLine(false)
	return table
}

// oneLine flattens s and cuts it to at most max characters.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if max > 3 && len(r) > max {
		return string(r[:max-3]) + "..."
	}
	return s
}
