package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"example.com/segdgate/internal/common"
	"example.com/segdgate/internal/manifest"
	"example.com/segdgate/internal/report"
	"example.com/segdgate/internal/rules"
	"example.com/segdgate/internal/segd"
)

const profileSEGD = "segd"

// resolveRulePack picks a pack file, an installed pack, or the repository
// default for SEG-D, in that order.
func resolveRulePack(path, id, version string) (rules.RulePack, error) {
	if path != "" && id != "" {
		return rules.RulePack{}, errors.New("--rules and --rulepack-id cannot be used together")
	}
	if version != "" && id == "" {
		return rules.RulePack{}, errors.New("--rulepack-version requires --rulepack-id")
	}
	if path != "" {
		return rules.LoadRulePack(path)
	}
	repo, err := rules.DefaultRepository()
	if err != nil {
		if id != "" {
			return rules.RulePack{}, fmt.Errorf("open repository: %w", err)
		}
		return rules.DefaultRulePack(), nil
	}
	if id != "" {
		return repo.Load(id, version)
	}
	return repo.ForProfile(profileSEGD)
}

type validation struct {
	Report      rules.AcceptanceReport
	Diagnostics int
}

// runValidation evaluates rp against in and writes the diagnostics stream,
// the acceptance JSON and, when pdfPath is set, its PDF rendering.
func runValidation(in string, rp rules.RulePack, diagPath, accPath, pdfPath string, timestamps bool) (validation, error) {
	engine := rules.NewEngine(rp)
	engine.RegisterBuiltins()
	engine.SetConfigValue("diag.include_timestamps", timestamps)
	diags, err := engine.Eval(&rules.Context{InputFile: in})
	if err != nil {
		return validation{}, fmt.Errorf("eval: %w", err)
	}
	if err := engine.WriteDiagnosticsNDJSON(diagPath); err != nil {
		return validation{}, fmt.Errorf("write diagnostics: %w", err)
	}
	rep := engine.MakeAcceptance()
	if err := report.SaveAcceptanceJSON(rep, accPath); err != nil {
		return validation{}, fmt.Errorf("write acceptance: %w", err)
	}
	if pdfPath != "" {
		sha, _, err := common.Sha256OfFile(in)
		if err != nil {
			return validation{}, fmt.Errorf("hash input: %w", err)
		}
		if err := report.SaveAcceptancePDF(rep, report.Source{File: in, SHA256: sha}, pdfPath); err != nil {
			return validation{}, fmt.Errorf("write pdf: %w", err)
		}
	}
	return validation{Report: rep, Diagnostics: len(diags)}, nil
}

func validateCmd() *cli.Command {
	var (
		rulesPath       string
		rulePackID      string
		rulePackVersion string
		diagPath        string
		accPath         string
		pdfPath         string
		timestamps      bool
	)
	return &cli.Command{
		Name:  "validate",
		Usage: "Run an acceptance rule pack against a record",
		Flags: []cli.Flag{
			inputFlag(),
			&cli.StringFlag{Name: "rules", Usage: "rule pack file (YAML or JSON)", Destination: &rulesPath},
			&cli.StringFlag{Name: "rulepack-id", Usage: "installed rule pack identifier", Destination: &rulePackID},
			&cli.StringFlag{Name: "rulepack-version", Usage: "installed rule pack version", Destination: &rulePackVersion},
			&cli.StringFlag{Name: "diag", Usage: "diagnostics output", Value: "diagnostics.ndjson", Destination: &diagPath},
			&cli.StringFlag{Name: "acceptance", Usage: "acceptance report output", Value: "acceptance_report.json", Destination: &accPath},
			&cli.StringFlag{Name: "pdf", Usage: "acceptance report PDF output", Destination: &pdfPath},
			&cli.BoolFlag{Name: "diag-include-timestamps", Usage: "include timestamp metadata in diagnostics", Value: true, Destination: &timestamps},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			rp, err := resolveRulePack(rulesPath, rulePackID, rulePackVersion)
			if err != nil {
				return fmt.Errorf("resolve rulepack: %w", err)
			}
			res, err := runValidation(inputPath, rp, diagPath, accPath, pdfPath, timestamps)
			if err != nil {
				return err
			}
			sum := res.Report.Summary
			fmt.Printf("PASS=%v, errors=%d, warnings=%d, diagnostics=%d\n", sum.Pass, sum.Errors, sum.Warnings, res.Diagnostics)
			if pdfPath != "" {
				fmt.Println("Wrote PDF:", pdfPath)
			}
			return nil
		},
	}
}

func summaryCmd() *cli.Command {
	var out string
	return &cli.Command{
		Name:  "summary",
		Usage: "Render a PDF summary of the record headers and traces",
		Flags: append([]cli.Flag{
			inputFlag(),
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output PDF", Value: "summary.pdf", Destination: &out},
		}, decodeFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			data, err := common.ReadInput(inputPath)
			if err != nil {
				return err
			}
			f, err := segd.Decode(data, decodeOptions()...)
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			sha, _, err := common.Sha256OfFile(inputPath)
			if err != nil {
				return err
			}
			if err := report.SaveDecodePDF(f, report.Source{File: inputPath, SHA256: sha}, out); err != nil {
				return err
			}
			fmt.Println("Wrote PDF:", out)
			return nil
		},
	}
}

func manifestCmd() *cli.Command {
	var (
		inputs string
		out    string
	)
	return &cli.Command{
		Name:  "manifest",
		Usage: "Hash and describe a delivery of records and reports",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "inputs", Usage: "comma-separated paths", Required: true, Destination: &inputs},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (.json or .yaml)", Value: "manifest.json", Destination: &out},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			paths := splitList(inputs)
			if len(paths) == 0 {
				return errors.New("no input paths specified")
			}
			m, err := manifest.Build(paths)
			if err != nil {
				return fmt.Errorf("manifest build: %w", err)
			}
			if err := manifest.Save(m, out); err != nil {
				return fmt.Errorf("manifest save: %w", err)
			}
			fmt.Println("Wrote", out)
			return nil
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func rulesCmd() *cli.Command {
	var (
		id      string
		version string
		file    string
	)
	openRepo := func() (*rules.Repository, error) {
		repo, err := rules.DefaultRepository()
		if err != nil {
			return nil, fmt.Errorf("open repository: %w", err)
		}
		return repo, nil
	}
	return &cli.Command{
		Name:  "rules",
		Usage: "Manage installed rule packs",
		Commands: []*cli.Command{
			{
				Name:  "install",
				Usage: "Install a rule pack file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "rule pack (YAML or JSON)", Required: true, Destination: &file},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					repo, err := openRepo()
					if err != nil {
						return err
					}
					installed, err := repo.Install(file)
					if err != nil {
						return fmt.Errorf("install rule pack: %w", err)
					}
					fmt.Printf("Installed %s@%s\n", installed.RulePack.RulePackId, installed.RulePack.Version)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List installed rule packs",
				Action: func(ctx context.Context, c *cli.Command) error {
					repo, err := openRepo()
					if err != nil {
						return err
					}
					entries, err := repo.ListInstalled()
					if err != nil {
						return fmt.Errorf("list rule packs: %w", err)
					}
					if len(entries) == 0 {
						fmt.Println("No rule packs installed")
						return nil
					}
					def, hasDefault, err := repo.DefaultForProfile(profileSEGD)
					if err != nil {
						return fmt.Errorf("load defaults: %w", err)
					}
					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tVERSION\tRULES\tDEFAULT")
					for _, e := range entries {
						mark := ""
						if hasDefault && def.RulePackId == e.RulePack.RulePackId && def.Version == e.RulePack.Version {
							mark = "*"
						}
						fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.RulePack.RulePackId, e.RulePack.Version, len(e.RulePack.Rules), mark)
					}
					return w.Flush()
				},
			},
			{
				Name:  "remove",
				Usage: "Remove an installed rule pack",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true, Destination: &id},
					&cli.StringFlag{Name: "version", Required: true, Destination: &version},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					repo, err := openRepo()
					if err != nil {
						return err
					}
					if err := repo.Remove(id, version); err != nil {
						if errors.Is(err, os.ErrNotExist) {
							return cli.Exit("rule pack not found", 1)
						}
						return fmt.Errorf("remove rule pack: %w", err)
					}
					fmt.Printf("Removed %s@%s\n", id, version)
					return nil
				},
			},
			{
				Name:  "default",
				Usage: "Use an installed rule pack when validate is given none",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true, Destination: &id},
					&cli.StringFlag{Name: "version", Required: true, Destination: &version},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					repo, err := openRepo()
					if err != nil {
						return err
					}
					if _, err := repo.Load(id, version); err != nil {
						return fmt.Errorf("load rule pack: %w", err)
					}
					if err := repo.SetDefaultForProfile(profileSEGD, rules.RulePackRef{RulePackId: id, Version: version}); err != nil {
						return fmt.Errorf("set default: %w", err)
					}
					fmt.Printf("Default rule pack set to %s@%s\n", id, version)
					return nil
				},
			},
		},
	}
}
