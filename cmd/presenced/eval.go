package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-presence/pkg/evidence"
)

func newEvalCmd() *cobra.Command {
	var rulesPath string

	cmd := &cobra.Command{
		Use:   "eval [json]",
		Short: "Evaluate a label->confidence map against the rule table",
		Long: `eval reads a JSON object of label confidences, from the argument or
stdin, and prints the evidence decision. Use it to tune rule files.

  presenced eval '{"Fridge":0.65,"Kettle":0.5}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules := evidence.DefaultKitchenRules()
			if rulesPath != "" {
				r, err := evidence.LoadRules(rulesPath)
				if err != nil {
					return err
				}
				rules = r
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				in = strings.NewReader(args[0])
			}
			var conf map[string]float64
			if err := json.NewDecoder(in).Decode(&conf); err != nil {
				return fmt.Errorf("decode confidences: %w", err)
			}

			res := evidence.New(rules).Evaluate(conf)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "YAML rule table (default is the built-in kitchen table)")
	return cmd
}
