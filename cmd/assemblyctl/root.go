package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"condo-manager/backend/pkg/models"
)

type rootOptions struct {
	lang   string
	output string
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "assemblyctl",
		Short:         "Owners' assembly calculators",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.lang, "lang", "pt", "Language tag used to format numbers")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")

	cmd.AddCommand(quorumCmd(opts), tallyCmd(opts), workflowsCmd(opts))
	return cmd
}

func (o *rootOptions) printer() (*message.Printer, error) {
	tag, err := language.Parse(o.lang)
	if err != nil {
		return nil, fmt.Errorf("invalid --lang %q: %w", o.lang, err)
	}
	return message.NewPrinter(tag), nil
}

func (o *rootOptions) validate() error {
	if o.output != "text" && o.output != "json" {
		return fmt.Errorf("unknown output format %q", o.output)
	}
	return nil
}

// assemblyFile is the YAML description of one assembly.
type assemblyFile struct {
	Call    models.AssemblyCall `yaml:"call"`
	Members []models.Attendee   `yaml:"members"`
	Agenda  []models.AgendaItem `yaml:"agenda"`
	Votes   models.Votes        `yaml:"votes"`
}

func readAssembly(path string, stdin io.Reader) (*assemblyFile, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var f assemblyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.Call == "" {
		f.Call = models.FirstCall
	}
	return &f, nil
}

// percent renders part/total with the printer's decimal conventions.
func percent(p *message.Printer, part, total models.Permille) string {
	return p.Sprintf("%.2f%%", models.Percent(part, total))
}

func weight(p *message.Printer, w models.Permille) string {
	return p.Sprintf("%.3f‰", w.Float())
}
