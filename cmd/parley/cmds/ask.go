package cmds

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/parley/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask PROMPT...",
		Short: "Send a single prompt and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if persona, _ := cmd.Flags().GetString("as"); persona != "" {
				if err := s.Manager.SetPersona(conversation.PersonaName(persona)); err != nil {
					return err
				}
			}

			options := []conversation.SubmitOption{}
			if cmd.Flags().Changed("temperature") {
				t, _ := cmd.Flags().GetFloat64("temperature")
				options = append(options, conversation.WithTemperature(t))
			}

			text, err := s.Manager.Submit(cmd.Context(), strings.Join(args, " "), options...)
			var werr *conversation.StorageWriteError
			if err != nil && !errors.As(err, &werr) {
				return err
			}
			if werr != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", werr)
			}
			printResponse(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().String("as", "", "Persona to switch to before asking")
	return cmd
}
