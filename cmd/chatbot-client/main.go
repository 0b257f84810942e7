package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/chatbot-client/cmd/chatbot-client/cmds"
	"github.com/go-go-golems/chatbot-client/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "chatbot-client",
	Short: "chatbot-client talks to a hosted chatbot backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		// reinitialize the logger now that --log-level and co are parsed
		ls := logging.DefaultSettings()
		if err := viper.Unmarshal(&ls); err != nil {
			return errors.Wrap(err, "decode logging settings")
		}
		return logging.Init(ls, os.Stderr)
	},
	SilenceUsage: true,
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env")
	}

	viper.SetEnvPrefix("CHATBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config %s", path)
		}
		log.Debug().Str("config_path", viper.ConfigFileUsed()).Msg("using config file")
	}
	return nil
}

func main() {
	cmds.AddGlobalFlags(rootCmd)
	cobra.CheckErr(viper.BindPFlags(rootCmd.PersistentFlags()))

	rootCmd.AddCommand(
		cmds.NewConfigCommand(),
		cmds.NewNewChatCommand(),
		cmds.NewChatCommand(),
		cmds.NewSchemaCommand(),
	)

	err := rootCmd.Execute()
	cobra.CheckErr(err)
}
