package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/spf13/cobra"
)

type HistoryShowCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*HistoryShowCommand)(nil)

func NewHistoryShowCommand() (*HistoryShowCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, fmt.Errorf("could not create Glazed parameter layer: %w", err)
	}

	return &HistoryShowCommand{
		CommandDescription: cmds.NewCommandDescription(
			"show",
			cmds.WithShort("Print the stored conversation"),
			cmds.WithLong("Print one row per message of the stored conversation. Use --output to pick json, yaml, csv or a table."),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *HistoryShowCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return addHistoryRows(ctx, gp, s.Manager)
}

// addHistoryRows emits one row per message. The tokens column includes the
// per-message overhead, so it sums up to the total the budget is checked
// against.
func addHistoryRows(ctx context.Context, gp middlewares.Processor, m *conversation.ManagerImpl) error {
	for i, msg := range m.History() {
		row := types.NewRow(
			types.MRP("index", i),
			types.MRP("role", string(msg.Role)),
			types.MRP("content", msg.Content),
			types.MRP("tokens", m.CountTokens(msg.Content)+conversation.MessageOverhead),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func NewHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or reset the stored conversation",
	}

	showCmdInstance, err := NewHistoryShowCommand()
	cobra.CheckErr(err)
	showCmd, err := cli.BuildCobraCommandFromGlazeCommand(showCmdInstance)
	cobra.CheckErr(err)
	historyCmd.AddCommand(showCmd)

	historyCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset the conversation to the system message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Manager.Reset(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Conversation history reset.")
			return nil
		},
	})

	return historyCmd
}
