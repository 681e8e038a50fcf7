package cmds

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/go-go-golems/parley/pkg/settings"
	"github.com/go-go-golems/parley/pkg/tokens"
	"github.com/spf13/cobra"
)

type TokensCountSettings struct {
	Text []string `glazed.parameter:"text"`
}

type TokensCountCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*TokensCountCommand)(nil)

func NewTokensCountCommand() (*TokensCountCommand, error) {
	return &TokensCountCommand{
		CommandDescription: cmds.NewCommandDescription(
			"count",
			cmds.WithShort("Count the tokens of a text for the configured model"),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"text",
					parameters.ParameterTypeStringList,
					parameters.WithHelp("Text to count"),
					parameters.WithRequired(true),
				),
			),
		),
	}, nil
}

func (c *TokensCountCommand) RunIntoWriter(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	w io.Writer,
) error {
	ts := &TokensCountSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, ts); err != nil {
		return fmt.Errorf("error initializing settings: %w", err)
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}
	return writeTokenCount(w, s, strings.Join(ts.Text, " "))
}

func writeTokenCount(w io.Writer, s *settings.Settings, text string) error {
	counter, err := tokens.NewCounter(tokens.Backend(s.Tokenizer))
	if err != nil {
		return err
	}

	count := counter.Count(s.Model, text)
	if _, err := fmt.Fprintf(w, "Model: %s\n", s.Model); err != nil {
		return fmt.Errorf("error writing to output: %w", err)
	}
	if _, err := fmt.Fprintf(w, "Tokenizer: %s\n", s.Tokenizer); err != nil {
		return fmt.Errorf("error writing to output: %w", err)
	}
	if _, err := fmt.Fprintf(w, "Total tokens: %d\n", count); err != nil {
		return fmt.Errorf("error writing to output: %w", err)
	}
	return nil
}

type TokensUsageCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*TokensUsageCommand)(nil)

func NewTokensUsageCommand() (*TokensUsageCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, fmt.Errorf("could not create Glazed parameter layer: %w", err)
	}

	return &TokensUsageCommand{
		CommandDescription: cmds.NewCommandDescription(
			"usage",
			cmds.WithShort("Print the token usage of the stored conversation"),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *TokensUsageCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return addUsageRow(ctx, gp, s.Manager)
}

func addUsageRow(ctx context.Context, gp middlewares.Processor, m *conversation.ManagerImpl) error {
	return gp.AddRow(ctx, types.NewRow(
		types.MRP("persona", string(m.ActivePersona())),
		types.MRP("messages", len(m.History())),
		types.MRP("tokens", m.TotalTokens()),
		types.MRP("budget", m.Settings().TokenBudget),
	))
}

func NewTokensCommand() *cobra.Command {
	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Commands related to tokens",
	}

	countCmdInstance, err := NewTokensCountCommand()
	cobra.CheckErr(err)
	countCmd, err := cli.BuildCobraCommandFromWriterCommand(countCmdInstance)
	cobra.CheckErr(err)
	tokensCmd.AddCommand(countCmd)

	usageCmdInstance, err := NewTokensUsageCommand()
	cobra.CheckErr(err)
	usageCmd, err := cli.BuildCobraCommandFromGlazeCommand(usageCmdInstance)
	cobra.CheckErr(err)
	tokensCmd.AddCommand(usageCmd)

	return tokensCmd
}
