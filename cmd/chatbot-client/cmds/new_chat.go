package cmds

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewNewChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new-chat",
		Short: "Start a new conversation and wait for the backend to acknowledge it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			cs, err := openClient(cmd.Context(), s, false)
			if err != nil {
				return err
			}
			defer cs.close()

			if err := cs.client.NewChat(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), noticeStyle.Render("new chat started"))
			return err
		},
	}
}
