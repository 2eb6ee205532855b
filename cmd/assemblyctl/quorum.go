package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"condo-manager/backend/internal/quorum"
	"condo-manager/backend/pkg/models"
)

func quorumCmd(root *rootOptions) *cobra.Command {
	var file, call string
	cmd := &cobra.Command{
		Use:   "quorum",
		Short: "Compute the quorum of an assembly file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.validate(); err != nil {
				return err
			}
			f, err := readAssembly(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if call != "" {
				if err := f.Call.UnmarshalText([]byte(call)); err != nil {
					return err
				}
			}
			res := quorum.Calculate(f.Members)

			out := cmd.OutOrStdout()
			if root.output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					models.QuorumResult
					Call models.AssemblyCall `json:"call"`
					Met  bool                `json:"met"`
				}{res, f.Call, res.Met(f.Call)})
			}

			p, err := root.printer()
			if err != nil {
				return err
			}
			p.Fprintf(out, "Present:     %d (%s)\n", res.PresentCount, weight(p, res.PresentWeight))
			p.Fprintf(out, "Represented: %d (%s)\n", res.RepresentedCount, weight(p, res.RepresentedWeight))
			p.Fprintf(out, "Absent:      %d\n", res.AbsentCount)
			p.Fprintf(out, "Attending:   %s of %s (%s)\n", weight(p, res.CombinedWeight), weight(p, res.TotalWeight), percent(p, res.CombinedWeight, res.TotalWeight))
			verdict := "NOT MET"
			if res.Met(f.Call) {
				verdict = "MET"
			}
			fmt.Fprintf(out, "Quorum (%s call): %s\n", f.Call, verdict)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Assembly YAML file, - for stdin")
	cmd.Flags().StringVar(&call, "call", "", "Override the call: first or second")
	return cmd
}
