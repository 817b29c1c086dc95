package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mtsgrab/internal/config"
	"mtsgrab/internal/fetch"
	"mtsgrab/internal/manifest"
	"mtsgrab/internal/media"
	"mtsgrab/internal/session"
)

var (
	sessionID   string
	outputDir   string
	maxDuration float64
	keepFiles   bool
	interactive bool
	quiet       bool
	debug       bool
)

var runCmd = &cobra.Command{
	Use:   "run [url]",
	Short: "Download a recording and compile it into a single MP4",
	Long: `Downloads every media segment referenced by the recording's manifest,
reconstructs the session timeline (filling gaps, truncating overlaps) and
compiles a continuous MP4 with audio attached.

Private recordings need --session-id with the sessionId cookie value from a
logged-in browser session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSession,
}

func init() {
	runCmd.Flags().StringVar(&sessionID, "session-id", "", "sessionId cookie for private recordings")
	runCmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory (default \"downloads\")")
	runCmd.Flags().Float64Var(&maxDuration, "max-duration", 0, "truncate the output to this many seconds")
	runCmd.Flags().BoolVar(&keepFiles, "keep-files", false, "keep downloaded segment files after compiling")
	runCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "prompt for the URL and options on stdin")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	runCmd.Flags().BoolVarP(&debug, "debug", "d", false, "dump the raw manifest when no content is found")

	rootCmd.AddCommand(runCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	opts := session.Options{
		SessionID:   sessionID,
		OutputDir:   outputDir,
		MaxDuration: maxDuration,
		KeepFiles:   keepFiles,
		Debug:       debug,
	}
	if len(args) > 0 {
		opts.URL = args[0]
	}

	if interactive || opts.URL == "" {
		if quiet {
			return errors.New("a recording URL is required in quiet mode")
		}
		if err := promptOptions(&opts); err != nil {
			return err
		}
	}

	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if opts.OutputDir == "" {
		opts.OutputDir = settings.OutputDir
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := manifest.NewClient(log, settings.HTTPTimeout, settings.UserAgent)
	prober := media.NewFFprobe(settings.FFprobePath, log)
	fetcher := fetch.NewFetcher(fetch.NewHTTPClient(settings.HTTPTimeout), log, settings.UserAgent, settings.Workers, prober)
	compiler := media.NewFFmpegCompiler(
		settings.FFmpegPath, log,
		settings.FillerWidth, settings.FillerHeight, settings.FillerFPS, settings.FillerSampleRate,
	)

	orch := session.New(log, client, fetcher, compiler)
	if !quiet {
		orch.Progress = newProgressReporter()
	}

	res, err := orch.Run(ctx, opts)
	if err != nil {
		if session.IsCancelled(err) {
			log.Warnf("Interrupted by user")
		}
		if res != nil && res.LostSegments > 0 {
			log.Warnf("%d of %d segments were lost to fetch/probe errors", res.LostSegments, res.TotalSegments)
		}
		return err
	}

	if !quiet {
		fmt.Printf("Created %s (%d video clips, %d audio clips", res.OutputPath, res.VideoClips, res.AudioClips)
		if res.LostSegments > 0 {
			fmt.Printf(", %d of %d segments lost", res.LostSegments, res.TotalSegments)
		}
		fmt.Println(")")
	}
	return nil
}

// newProgressReporter logs transfer progress per segment, throttled to every
// 25% when the size is known and every 8 MiB otherwise. Safe for concurrent
// use by the fetch workers.
func newProgressReporter() fetch.ProgressFunc {
	var mu sync.Mutex
	last := make(map[string]int64)

	const step = 8 << 20

	return func(name string, transferred, total int64) {
		mu.Lock()
		defer mu.Unlock()

		if total > 0 {
			pct := transferred * 100 / total
			if pct < last[name]+25 && transferred < total {
				return
			}
			last[name] = pct
			log.Infof("Downloading %s: %d%% (%d/%d bytes)", name, pct, transferred, total)
			return
		}

		if transferred < last[name]+step {
			return
		}
		last[name] = transferred
		log.Infof("Downloading %s: %d bytes", name, transferred)
	}
}
