package cmds

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatbot-client/pkg/chatconfig"
)

func NewConfigCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Fetch and print the chatbot configuration for the current locale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			return runConfig(cmd.Context(), s, cmd.OutOrStdout(), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (yaml, json)")
	return cmd
}

func runConfig(ctx context.Context, s AppSettings, w io.Writer, output string) error {
	cs, err := openClient(ctx, s, false)
	if err != nil {
		return err
	}
	defer cs.close()

	data, err := cs.client.GetChatConfig(ctx)
	if err != nil {
		return err
	}
	return writeConfig(w, data, output)
}

func writeConfig(w io.Writer, data *chatconfig.ChatbotData, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(data), "encode json")
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return errors.Wrap(enc.Close(), "encode yaml")
	default:
		return errors.Errorf("unknown output format %q", output)
	}
}
