package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/color"
	"github.com/shelfplay-cli/shelfplay/library"
	"github.com/shelfplay-cli/shelfplay/style"
	"github.com/shelfplay-cli/shelfplay/util"
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().BoolP("json", "j", false, "Format the command output as a JSON array")
}

// searchCmd looks up books on the server and prints the matches.
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the server library by title or author",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		handleErr(err)

		results, err := client.Search(cmd.Context(), strings.Join(args, " "))
		handleErr(err)

		if lo.Must(cmd.Flags().GetBool("json")) {
			handleErr(json.NewEncoder(os.Stdout).Encode(results))
			return
		}

		if len(results) == 0 {
			fmt.Println(style.Faint("nothing found"))
			return
		}

		fmt.Println(style.Faint(util.Quantify(len(results), "match", "matches")))
		for _, b := range results {
			downloaded := ""
			if library.Has(b.ID) {
				downloaded = " " + style.Fg(color.Green)("(downloaded)")
			}
			fmt.Printf("%s %s%s\n", style.Bold(b.Title), style.Faint(b.Author), downloaded)
			fmt.Printf("  %s\n", style.Fg(color.Yellow)(b.ID))
		}
	},
}

func init() {
	searchCmd.AddCommand(searchSchemaCmd)
}

// searchSchemaCmd generates the JSON schema for search result objects.
var searchSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate the JSON schema for search result objects",
	Run: func(cmd *cobra.Command, args []string) {
		reflector := new(jsonschema.Reflector)
		reflector.Anonymous = true
		reflector.Namer = func(t reflect.Type) string {
			name := t.Name()
			switch strings.ToLower(name) {
			case "book":
				return filepath.Base(t.PkgPath()) + "." + name
			}

			return name
		}

		schema := reflector.Reflect([]book.Book{})
		handleErr(json.NewEncoder(os.Stdout).Encode(schema))
	},
}
