package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"mtsgrab/internal/manifest"
	"mtsgrab/internal/session"
)

// promptOptions fills in the session options interactively from stdin.
// Values already provided on the command line are kept as defaults.
func promptOptions(opts *session.Options) error {
	in := bufio.NewScanner(os.Stdin)

	for opts.URL == "" {
		url, err := prompt(in, "Enter recording URL: ")
		if err != nil {
			return err
		}
		if _, _, err := manifest.ExtractIDs(url); err != nil {
			fmt.Println("Invalid URL format. Expected something like:")
			fmt.Println("  https://my.mts-link.ru/12345678/987654321/record-new/123456789")
			continue
		}
		opts.URL = url
	}

	if opts.SessionID == "" {
		answer, err := prompt(in, "Is this a private recording requiring a session id? (y/N): ")
		if err != nil {
			return err
		}
		if isYes(answer) {
			opts.SessionID, err = prompt(in, "Enter session id (from browser cookies): ")
			if err != nil {
				return err
			}
		}
	}

	if opts.OutputDir == "" {
		dir, err := prompt(in, "Output directory (press Enter for default): ")
		if err != nil {
			return err
		}
		opts.OutputDir = dir
	}

	if opts.MaxDuration == 0 {
		answer, err := prompt(in, "Maximum duration in seconds (press Enter for no limit): ")
		if err != nil {
			return err
		}
		if answer != "" {
			d, err := strconv.ParseFloat(answer, 64)
			if err != nil || d <= 0 {
				fmt.Println("Invalid number, using no limit.")
			} else {
				opts.MaxDuration = d
			}
		}
	}

	if !opts.KeepFiles {
		answer, err := prompt(in, "Keep downloaded segment files after compiling? (y/N): ")
		if err != nil {
			return err
		}
		opts.KeepFiles = isYes(answer)
	}

	return nil
}

func prompt(in *bufio.Scanner, label string) (string, error) {
	fmt.Print(label)
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return "", fmt.Errorf("input closed")
	}
	return strings.TrimSpace(in.Text()), nil
}

func isYes(s string) bool {
	switch strings.ToLower(s) {
	case "y", "yes":
		return true
	}
	return false
}
