package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shelfplay-cli/shelfplay/auth"
	"github.com/shelfplay-cli/shelfplay/color"
	"github.com/shelfplay-cli/shelfplay/icon"
	"github.com/shelfplay-cli/shelfplay/key"
	"github.com/shelfplay-cli/shelfplay/style"
)

func init() {
	rootCmd.AddCommand(authCmd)
}

// authCmd is the parent for credential management.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the audiobook server connection and credentials",
}

func init() {
	authCmd.AddCommand(authLoginCmd)

	authLoginCmd.Flags().StringP("address", "a", "", "Server address, e.g. https://shelf.example.com")
	authLoginCmd.Flags().StringP("token", "t", "", "API token (prompted for when omitted)")
}

// authLoginCmd stores the server address in config and the token in the
// system keyring.
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Connect to an audiobook server",
	Run: func(cmd *cobra.Command, args []string) {
		address := strings.TrimSpace(lo.Must(cmd.Flags().GetString("address")))
		token := lo.Must(cmd.Flags().GetString("token"))

		if address == "" {
			if !interactive() {
				handleErr(errors.New("--address is required"))
			}
			handleErr(survey.AskOne(&survey.Input{Message: "Server address:"}, &address, survey.WithValidator(survey.Required)))
		}

		if token == "" {
			if !interactive() {
				handleErr(errors.New("--token is required"))
			}
			handleErr(survey.AskOne(&survey.Password{Message: "API token:"}, &token, survey.WithValidator(survey.Required)))
		}

		viper.Set(key.ServerAddress, strings.TrimRight(address, "/"))
		switch err := viper.WriteConfig(); err.(type) {
		case viper.ConfigFileNotFoundError:
			handleErr(viper.SafeWriteConfig())
		default:
			handleErr(err)
		}

		handleErr(auth.SetToken(token))

		fmt.Printf("%s connected to %s\n",
			icon.Get(icon.Success),
			style.Fg(color.Yellow)(viper.GetString(key.ServerAddress)),
		)
	},
}

func init() {
	authCmd.AddCommand(authLogoutCmd)
}

// authLogoutCmd removes the stored token.
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored API token",
	Run: func(cmd *cobra.Command, args []string) {
		handleErr(auth.DeleteToken())
		fmt.Printf("%s token removed\n", icon.Get(icon.Success))
	},
}

func init() {
	authCmd.AddCommand(authStatusCmd)
}

// authStatusCmd reports whether the server is reachable with the stored
// credentials.
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the configured server connection",
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		handleErr(err)

		if client.Online(cmd.Context()) {
			fmt.Printf("%s %s is reachable\n", icon.Get(icon.Success), client.BaseURL())
			return
		}
		handleErr(fmt.Errorf("%s is not reachable", client.BaseURL()))
	},
}
