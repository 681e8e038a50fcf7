package cmds

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/spf13/cobra"
)

type PersonaListCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*PersonaListCommand)(nil)

func NewPersonaListCommand() (*PersonaListCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, fmt.Errorf("could not create Glazed parameter layer: %w", err)
	}

	return &PersonaListCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list",
			cmds.WithShort("List the available personas"),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *PersonaListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return addPersonaRows(ctx, gp, s.Manager)
}

func addPersonaRows(ctx context.Context, gp middlewares.Processor, m *conversation.ManagerImpl) error {
	for _, name := range m.Personas() {
		text, _ := m.PersonaText(name)
		row := types.NewRow(
			types.MRP("name", string(name)),
			types.MRP("active", name == m.ActivePersona()),
			types.MRP("system_message", text),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func NewPersonaCommand() *cobra.Command {
	personaCmd := &cobra.Command{
		Use:   "persona",
		Short: "List and switch personas",
	}

	listCmdInstance, err := NewPersonaListCommand()
	cobra.CheckErr(err)
	listCmd, err := cli.BuildCobraCommandFromGlazeCommand(listCmdInstance)
	cobra.CheckErr(err)
	personaCmd.AddCommand(listCmd)

	personaCmd.AddCommand(&cobra.Command{
		Use:   "set NAME",
		Short: "Switch the persona of the stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Manager.SetPersona(conversation.PersonaName(args[0])); err != nil {
				return err
			}
			return s.Manager.Save()
		},
	})

	personaCmd.AddCommand(&cobra.Command{
		Use:   "custom TEXT...",
		Short: "Set the custom persona of the stored conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Manager.SetCustomMessage(strings.Join(args, " ")); err != nil {
				return err
			}
			return s.Manager.Save()
		},
	})

	return personaCmd
}
