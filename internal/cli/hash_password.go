package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/prudhvinik1/lansync/internal/utils"
	"github.com/spf13/cobra"
)

// NewHashPasswordCommand creates the hash-password command.
func NewHashPasswordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for OPERATOR_PASSWORD_HASH",
		Long: `Read the operator password from the first line of stdin and print the
bcrypt hash the daemon expects in OPERATOR_PASSWORD_HASH.

Example:
  read -s pw && echo "$pw" | lansyncctl hash-password`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read password", err)
				}
				return NewExitError(ExitCommandError, "password is empty")
			}

			hash, err := utils.HashPassword(password)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to hash password", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	return cmd
}
