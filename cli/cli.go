package cli

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Config holds all the command-line flag values.
type Config struct {
	Complete      bool
	Interrupt     bool
	Reset         bool
	Status        bool
	Print         bool
	ChangeLog     bool
	Tasks         bool
	OutputDiffFix bool
	NoAnimation   bool
	Verbose       bool

	// Empty or zero values leave the project configuration in charge.
	Backend    string
	Writer     string
	LineBudget int
	ConfigPath string

	// Args is the request line, split by the shell.
	Args []string
}

// ParseFlags defines and parses command-line flags using pflag.
func ParseFlags() (*Config, error) {
	return Parse(os.Args[1:])
}

// Parse parses args without touching the global flag set.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	flags := pflag.NewFlagSet("pfx", pflag.ContinueOnError)

	// Define flags
	flags.BoolVarP(&cfg.Complete, "complete", "c", false, "Complete the outstanding dispatch with a response read from stdin (pipe) or the clipboard.")
	flags.BoolVarP(&cfg.Interrupt, "interrupt", "i", false, "Interrupt the outstanding dispatch.")
	flags.BoolVar(&cfg.Reset, "reset", false, "Clear the session.")
	flags.BoolVarP(&cfg.Status, "status", "s", false, "Show the session state.")
	flags.BoolVarP(&cfg.Print, "print", "p", false, "Print the prompt to stdout instead of sending it to the backend.")
	flags.BoolVar(&cfg.ChangeLog, "changelog", false, "Render the change log.")
	flags.BoolVar(&cfg.Tasks, "tasks", false, "List task files and their progress.")
	flags.BoolVarP(&cfg.OutputDiffFix, "output-diff-fix", "o", false, "Print the diffs of a response with corrected start and count.")
	flags.BoolVar(&cfg.NoAnimation, "no-animation", false, "Disable loading spinner and progress updates.")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log at debug level to .pfx/pfx.log.")
	flags.StringVar(&cfg.Backend, "backend", "", "Backend command the prompt is piped to, or 'clipboard' (default from config).")
	flags.StringVar(&cfg.Writer, "writer", "", "How files are written: disk or nvim (default from config).")
	flags.IntVar(&cfg.LineBudget, "line-budget", 0, "Largest change in lines dispatched in one pass (default from config).")
	flags.StringVar(&cfg.ConfigPath, "config", "", "Path to the config file (default .pfx/config.toml).")

	flags.Usage = func() {
		fmt.Println("Usage: pfx [flags] [request line...]")
		fmt.Println("\nInterpret a prefixed request, dispatch it to the backend and apply the answer.")
		fmt.Println("\nExample: pfx '[fix:keep]<file:ConnectionManager.swift:10-40> Memory leak'")
		fmt.Println("\nFlags:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	cfg.Args = flags.Args()

	// Validate mutually exclusive flags
	modes := 0
	for _, set := range []bool{cfg.Complete, cfg.Interrupt, cfg.Reset, cfg.Status, cfg.ChangeLog, cfg.Tasks, cfg.OutputDiffFix} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return nil, fmt.Errorf("error: --complete, --interrupt, --reset, --status, --changelog, --tasks and --output-diff-fix are mutually exclusive")
	}
	if modes > 0 && len(cfg.Args) > 0 {
		return nil, fmt.Errorf("error: a request line cannot be combined with --complete, --interrupt, --reset, --status, --changelog, --tasks or --output-diff-fix")
	}
	if cfg.Writer != "" && cfg.Writer != "disk" && cfg.Writer != "nvim" {
		return nil, fmt.Errorf("error: --writer must be disk or nvim")
	}
	if cfg.LineBudget < 0 {
		return nil, fmt.Errorf("error: --line-budget must be positive")
	}
	return cfg, nil
}
