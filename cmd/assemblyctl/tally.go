package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"condo-manager/backend/internal/tally"
	"condo-manager/backend/pkg/models"
)

func tallyCmd(root *rootOptions) *cobra.Command {
	var file string
	var item int
	var strict bool
	cmd := &cobra.Command{
		Use:   "tally",
		Short: "Tally the votable items of an assembly file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.validate(); err != nil {
				return err
			}
			f, err := readAssembly(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			agenda := f.Agenda
			if item > 0 {
				agenda = nil
				for _, it := range f.Agenda {
					if it.Number == item {
						agenda = []models.AgendaItem{it}
					}
				}
				if agenda == nil {
					return fmt.Errorf("agenda item %d not found", item)
				}
				if !agenda[0].Votable() {
					return fmt.Errorf("agenda item %d: %w", item, tally.ErrNotVotable)
				}
			}
			if strict {
				if missing := tally.Missing(agenda, f.Members, f.Votes); len(missing) > 0 {
					return fmt.Errorf("%d votes missing, first on item %d by %s", len(missing), missing[0].ItemNumber, missing[0].MemberID)
				}
			}
			records, err := tally.CountAll(agenda, f.Members, f.Votes)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if root.output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			p, err := root.printer()
			if err != nil {
				return err
			}
			for _, rec := range records {
				verdict := "REJECTED"
				if rec.Passed {
					verdict = "PASSED"
				}
				fmt.Fprintf(out, "Item %d (%s majority): %s\n", rec.ItemNumber, rec.Majority, verdict)
				p.Fprintf(out, "  favor   %s %s\n", weight(p, rec.FavorWeight), names(rec.FavorNames))
				p.Fprintf(out, "  against %s %s\n", weight(p, rec.AgainstWeight), names(rec.AgainstNames))
				p.Fprintf(out, "  abstain %s %s\n", weight(p, rec.AbstainWeight), names(rec.AbstainNames))
				if rec.Majority == models.MajorityQualified {
					p.Fprintf(out, "  favor is %s of the building\n", percent(p, rec.FavorWeight, rec.TotalBuildingWeight))
				} else {
					p.Fprintf(out, "  favor is %s of the votes cast\n", percent(p, rec.FavorWeight, rec.FavorWeight+rec.AgainstWeight))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Assembly YAML file, - for stdin")
	cmd.Flags().IntVar(&item, "item", 0, "Tally only this agenda item")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when an attending member has not voted")
	return cmd
}

func names(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return "(" + strings.Join(list, ", ") + ")"
}
