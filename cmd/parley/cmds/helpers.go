package cmds

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/parley/pkg/completion"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/settings"
	"github.com/go-go-golems/parley/pkg/store"
	"github.com/go-go-golems/parley/pkg/tokens"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AddSettingsFlags registers the flags that map onto settings.Settings.
func AddSettingsFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("api-key", "", "API key of the completion endpoint (env PARLEY_API_KEY or TOGETHER_API_KEY)")
	flags.String("base-url", "", "Completion endpoint URL (default "+settings.DefaultBaseURL+")")
	flags.String("model", "", "Model identifier (default "+settings.DefaultModel+")")
	flags.Float64("temperature", 0, "Sampling temperature (default 0.5)")
	flags.Int("max-tokens", 0, "Maximum response tokens (default 128)")
	flags.Int("token-budget", 0, "Token budget of the history (default 1280)")
	flags.String("history-file", "", "History file, .json or .yaml (default "+settings.DefaultHistoryFile+")")
	flags.String("persona", "", "Initial persona (default "+settings.DefaultPersona+")")
	flags.String("tokenizer", "", "Tokenizer backend (tiktoken-go, weaviate)")
	flags.Int("timeout", 0, "Completion timeout in seconds (default 60)")
	flags.Bool("echo", false, "Echo prompts instead of calling the completion endpoint")
	flags.Bool("show-events", false, "Log conversation events such as evictions")
}

func RegisterCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(NewAskCommand())
	rootCmd.AddCommand(NewChatCommand())
	rootCmd.AddCommand(NewPersonaCommand())
	rootCmd.AddCommand(NewHistoryCommand())
	rootCmd.AddCommand(NewTokensCommand())
}

// loadSettings resolves flags, environment and config file into defaulted
// settings. This is the only place defaults are applied.
func loadSettings() (*settings.Settings, error) {
	s, err := settings.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return s.WithDefaults(), nil
}

type session struct {
	Manager  *conversation.ManagerImpl
	Settings *settings.Settings
	close    func()
}

func (s *session) Close() {
	if s.close != nil {
		s.close()
	}
}

func newSession(ctx context.Context) (*session, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}

	var client completion.Client
	if viper.GetBool("echo") {
		client = completion.NewEchoClient()
	} else {
		if s.APIKey == "" {
			log.Warn().Str("base_url", s.BaseURL).Msg("No API key configured")
		}
		client = completion.NewOpenAIClient(s.APIKey,
			completion.WithBaseURL(s.BaseURL),
			completion.WithTimeout(s.Timeout),
		)
	}

	counter, err := tokens.NewCounter(tokens.Backend(s.Tokenizer))
	if err != nil {
		return nil, err
	}

	st, err := store.NewFileStore(s.HistoryFile)
	if err != nil {
		return nil, err
	}

	ret := &session{Settings: s}
	options := []conversation.ManagerOption{}

	if viper.GetBool("show-events") {
		ensureEventLogLevel()
		sink, closeSink, err := newLoggingSink(ctx)
		if err != nil {
			return nil, err
		}
		ret.close = closeSink
		options = append(options, conversation.WithEventSink(sink))
	}

	m, err := conversation.NewManager(s, client, counter, st, options...)
	if err != nil {
		ret.Close()
		return nil, err
	}
	if loadErr := m.LoadError(); loadErr != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: %v. Starting with an initial history.\n", loadErr)
	}
	ret.Manager = m

	return ret, nil
}

// ensureEventLogLevel lowers the global log level to info so that events
// logged by the sink are visible with the default warn level.
func ensureEventLogLevel() {
	if zerolog.GlobalLevel() > zerolog.InfoLevel {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// newLoggingSink publishes conversation events on an in-process watermill
// channel and logs them from a subscriber.
func newLoggingSink(ctx context.Context) (events.Sink, func(), error) {
	logger := events.NewWatermill(log.Logger)
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)

	ctx, cancel := context.WithCancel(ctx)
	msgs, err := pubSub.Subscribe(ctx, events.DefaultTopic)
	if err != nil {
		cancel()
		return nil, nil, errors.Wrap(err, "could not subscribe to conversation events")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			e, err := events.NewEventFromMessage(msg)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Msg("Could not decode conversation event")
				continue
			}
			log.Info().
				Str("type", string(e.Type)).
				Str("persona", e.Persona).
				Int("evicted", e.Evicted).
				Int("tokens", e.Tokens).
				Str("error", e.Error).
				Msg("Conversation event")
		}
	}()

	closeSink := func() {
		_ = pubSub.Close()
		cancel()
		<-done
	}

	return events.NewWatermillSink(pubSub, events.DefaultTopic), closeSink, nil
}

// printResponse renders markdown when writing to a terminal.
func printResponse(w io.Writer, text string) {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		rendered, err := renderMarkdown(text)
		if err == nil {
			_, _ = fmt.Fprint(w, rendered)
			return
		}
		log.Debug().Err(err).Msg("Could not render markdown, printing raw response")
	}
	_, _ = fmt.Fprintln(w, text)
}

func renderMarkdown(text string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}

// reportSubmitError prints a submit failure. It returns true when a response
// was still produced.
func reportSubmitError(w io.Writer, err error) bool {
	var cerr *conversation.CompletionError
	if errors.As(err, &cerr) {
		_, _ = fmt.Fprintf(w, "Failed to generate a response: %v\n", cerr.Err)
		return false
	}
	var werr *conversation.StorageWriteError
	if errors.As(err, &werr) {
		_, _ = fmt.Fprintf(w, "Warning: %v\n", werr)
		return true
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return false
}
