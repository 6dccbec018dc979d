package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/shelfplay-cli/shelfplay/auth"
	"github.com/shelfplay-cli/shelfplay/book"
	"github.com/shelfplay-cli/shelfplay/color"
	"github.com/shelfplay-cli/shelfplay/engine"
	"github.com/shelfplay-cli/shelfplay/icon"
	"github.com/shelfplay-cli/shelfplay/key"
	"github.com/shelfplay-cli/shelfplay/log"
	"github.com/shelfplay-cli/shelfplay/playback"
	"github.com/shelfplay-cli/shelfplay/progress"
	"github.com/shelfplay-cli/shelfplay/shelf"
	"github.com/shelfplay-cli/shelfplay/style"
	"github.com/shelfplay-cli/shelfplay/timeline"
	"github.com/shelfplay-cli/shelfplay/util"
)

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().BoolP("continue", "c", false, "Resume the most recently played book")
	playCmd.Flags().Bool("id", false, "Treat the argument as a library item id instead of a title query")
	playCmd.Flags().Float64("speed", 0, "Playback speed (1.0 is normal)")
}

// playCmd starts audiobook playback by title search, item id or warm start.
var playCmd = &cobra.Command{
	Use:   "play [title or id]",
	Short: "Play an audiobook, resuming where you left off",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleErr(runPlay(cmd, args))
	},
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := newClient()
	if err != nil {
		return err
	}
	store := progress.NewStore()

	if speed := lo.Must(cmd.Flags().GetFloat64("speed")); speed > 0 {
		viper.Set(key.PlayerSpeed, speed)
	}

	bookID, title, err := pickBook(ctx, cmd, args, client, store)
	if err != nil {
		return err
	}

	var resolver progress.Resolver
	if interactive() {
		resolver = promptResolver{}
	}

	e := engine.NewMPV(title)
	orchestrator := playback.New(e, client, store, resolver)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	snapshots := orchestrator.Feed().Subscribe()

	if err = orchestrator.PlayItem(ctx, bookID, ""); err != nil {
		if errors.Is(err, playback.ErrCancelled) {
			return nil
		}
		return err
	}

	erase := func() {}
	for {
		select {
		case <-interrupts:
			erase()
			return orchestrator.Stop(ctx)
		case snapshot, ok := <-snapshots:
			if !ok || snapshot == nil {
				erase()
				return nil
			}
			erase()
			erase = util.PrintErasable(statusLine(snapshot))
		}
	}
}

// pickBook resolves the play argument to a concrete library item.
func pickBook(ctx context.Context, cmd *cobra.Command, args []string, client *shelf.Client, store *progress.Store) (id, title string, err error) {
	if lo.Must(cmd.Flags().GetBool("continue")) {
		last, err := store.LastPlayed()
		if err != nil || last == "" {
			return "", "", errors.New("no previous book to continue")
		}
		if record, err := store.Position(last); err == nil && record != nil {
			title = record.Title
		}
		return last, title, nil
	}

	if len(args) == 0 {
		return "", "", errors.New("give a title to search for, or use --continue")
	}
	query := args[0]

	if lo.Must(cmd.Flags().GetBool("id")) {
		return query, query, nil
	}

	results, err := client.Search(ctx, query)
	if err != nil {
		return "", "", fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 {
		return "", "", fmt.Errorf("nothing found for %q", query)
	}

	chosen := results[0]
	if len(results) > 1 && interactive() {
		titles := lo.Map(results, func(b book.Book, _ int) string { return b.String() })

		var answer string
		if err = survey.AskOne(&survey.Select{
			Message: "Which book?",
			Options: titles,
		}, &answer); err != nil {
			return "", "", err
		}
		chosen = results[lo.IndexOf(titles, answer)]
	}

	return chosen.ID, chosen.Title, nil
}

// statusLine renders the one-line playback status for the terminal.
func statusLine(snapshot *playback.NowPlaying) string {
	stateIcon := icon.Get(icon.Play)
	if snapshot.State == playback.Paused {
		stateIcon = icon.Get(icon.Pause)
	}

	source := "streaming"
	if snapshot.Local {
		source = "local"
	}

	detail := fmt.Sprintf("track %d/%d", snapshot.CurrentTrack+1, len(snapshot.Tracks))
	if global, ok := timeline.Global(snapshot.Tracks, snapshot.CurrentTrack, 0).Get(); ok {
		if chapter := snapshot.CurrentChapter(global); chapter != nil && chapter.Title != "" {
			detail += ", " + chapter.Title
		}
	}

	return fmt.Sprintf("%s %s %s",
		stateIcon,
		style.Bold(snapshot.Book.String()),
		style.Faint(fmt.Sprintf("%s, %s, %s", detail, source, snapshot.State)),
	)
}

// promptResolver asks the user what to do about an apparent progress reset.
type promptResolver struct{}

func (promptResolver) Resolve(b *book.Book, serverSeconds, localSeconds float64) (progress.Choice, error) {
	name := b.Title
	if name == "" {
		name = b.ID
	}

	options := []string{
		fmt.Sprintf("Follow the server (%s)", util.FormatSeconds(serverSeconds)),
		fmt.Sprintf("Resume from this device (%s)", util.FormatSeconds(localSeconds)),
		"Cancel",
	}

	var answer string
	err := survey.AskOne(&survey.Select{
		Message: fmt.Sprintf("Server progress for %s was reset.", name),
		Options: options,
	}, &answer)
	if err != nil {
		return progress.UseServer, err
	}

	switch answer {
	case options[1]:
		return progress.UseLocal, nil
	case options[2]:
		return progress.Cancel, nil
	default:
		return progress.UseServer, nil
	}
}

// newClient builds the media server client from configuration and keyring.
func newClient() (*shelf.Client, error) {
	address := strings.TrimSpace(viper.GetString(key.ServerAddress))
	if address == "" {
		return nil, fmt.Errorf("no server configured, run %s first", style.Fg(color.Yellow)("shelfplay auth login"))
	}

	token, err := auth.Token()
	if err != nil {
		log.Warnf("no stored token: %v", err)
	}

	return shelf.New(address, token), nil
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
