package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"audiograph/internal/config"
	"audiograph/pkg/build"
)

// ParseArgs builds the runtime configuration from the command line,
// optionally layered over a YAML config file.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.Info()
	options := config.NewConfig()
	configFile := ""

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return nil
			}
			loaded, err := config.LoadFile(configFile)
			if err != nil {
				return err
			}
			// Flags set on the command line win over the file.
			merge(cmd, options, loaded)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = "serve"
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	renderCmd := &cobra.Command{
		Use:   "render [graph-file]",
		Short: "Render a graph offline to a WAV file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = "render"
			if len(args) == 1 {
				options.GraphFile = args[0]
			}
			return nil
		},
	}
	rootCmd.AddCommand(renderCmd)

	serveCmd := &cobra.Command{
		Use:   "serve [graph-file]",
		Short: "Render to the output device and accept graph updates over websocket",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = "serve"
			if len(args) == 1 {
				options.GraphFile = args[0]
			}
			return nil
		},
	}
	rootCmd.AddCommand(serveCmd)

	// Audio Device Configuration
	rootCmd.PersistentFlags().IntVarP(&options.DeviceID, "device", "d", config.DefaultDeviceID,
		"Specify output device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().IntVarP(&options.Channels, "channels", "c", config.DefaultChannels,
		"Number of output channels (1=mono, 2=stereo)")
	rootCmd.PersistentFlags().Float64VarP(&options.SampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().BoolVarP(&options.LowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time rendering")

	// Offline Render Configuration
	rootCmd.PersistentFlags().DurationVarP(&options.Duration, "duration", "t", time.Second,
		"Length of the offline render")
	rootCmd.PersistentFlags().StringVarP(&options.OutputFile, "output", "o", "",
		"Output file name. Default is render-MM-DD-YYYY-HHMMSS.wav")

	// Transport Configuration
	rootCmd.PersistentFlags().StringVarP(&options.ListenAddr, "listen", "a", options.ListenAddr,
		"Address the websocket graph transport listens on")
	rootCmd.PersistentFlags().StringVar(&options.MeterTarget, "meter-target", "",
		"UDP address to stream analyser meter packets to (empty disables)")
	rootCmd.PersistentFlags().Uint64Var(&options.MeterNode, "meter-node", 0,
		"Node ID of the analyser the meter stream reads")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", "",
		"Path to a YAML config file")

	// Debug Configuration
	rootCmd.PersistentFlags().BoolVarP(&options.Verbose, "verbose", "v", false,
		"Show verbose output")

	if options.OutputFile == "" {
		options.OutputFile = "render-" +
			time.Now().UTC().Format("02-01-2006-150405") +
			".wav"
	}

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// merge copies file-sourced values into options for every flag the user
// did not set explicitly.
func merge(cmd *cobra.Command, options, loaded *config.Config) {
	flags := cmd.Flags()
	if !flags.Changed("device") {
		options.DeviceID = loaded.DeviceID
	}
	if !flags.Changed("channels") {
		options.Channels = loaded.Channels
	}
	if !flags.Changed("sample-rate") {
		options.SampleRate = loaded.SampleRate
	}
	if !flags.Changed("low-latency") {
		options.LowLatency = loaded.LowLatency
	}
	if !flags.Changed("duration") {
		options.Duration = loaded.Duration
	}
	if !flags.Changed("output") && loaded.OutputFile != "" {
		options.OutputFile = loaded.OutputFile
	}
	if !flags.Changed("listen") {
		options.ListenAddr = loaded.ListenAddr
	}
	if !flags.Changed("meter-target") {
		options.MeterTarget = loaded.MeterTarget
	}
	if !flags.Changed("meter-node") {
		options.MeterNode = loaded.MeterNode
	}
	if !flags.Changed("verbose") {
		options.Verbose = loaded.Verbose
	}
	if options.GraphFile == "" {
		options.GraphFile = loaded.GraphFile
	}
}
