package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tilecraft/dzgen/internal/imagetool"
	"github.com/tilecraft/dzgen/internal/pyramid"
)

const version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dzgen [image]",
	Short: "Generate Deep Zoom image pyramids from a single source image",
	Long: `dzgen slices a large source image into a Deep Zoom pyramid: a tree of
progressively halved, tiled copies plus a .dzi XML descriptor that viewers
like OpenSeadragon consume directly.

Pixel work is delegated to an image backend. The default backend shells out
to ImageMagick (convert/identify); the native backend decodes and encodes
in-process and needs no external tools.

Examples:
  # Generate photo.dzi and photo_files/ next to the source
  dzgen photo.tif

  # Custom name, output directory and tile size
  dzgen --name atlas --dir ./out --tile-size 512 scan.png

  # Legacy overlap-aware layout (254px tiles, 1px overlap)
  dzgen --strategy overlap archive.tif

  # Pure-Go backend, no ImageMagick required
  dzgen --backend native photo.jpg

  # Remove a previously generated pyramid
  dzgen remove photo

  # Serve generated pyramids over HTTP
  dzgen serve --port 8080`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no args, show help
		if len(args) == 0 {
			return cmd.Help()
		}
		return runGenerate(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dzgen.yaml)")
	rootCmd.PersistentFlags().StringP("dir", "d", ".", "output base directory")
	rootCmd.PersistentFlags().String("backend", "magick", "image backend (magick|native)")
	rootCmd.PersistentFlags().String("convert-bin", "convert", "convert binary for the magick backend")
	rootCmd.PersistentFlags().String("identify-bin", "identify", "identify binary for the magick backend")

	// Generation options
	rootCmd.Flags().StringP("name", "n", "", "output name (default: source file name without extension)")
	rootCmd.Flags().StringP("format", "f", "jpg", "tile image format")
	rootCmd.Flags().String("ext", "dzi", "descriptor file extension")
	rootCmd.Flags().IntP("tile-size", "t", 0, "tile size in pixels (default 256, or 254 with overlap)")
	rootCmd.Flags().Int("overlap", 0, "overlap in pixels (overlap strategy, default 1)")
	rootCmd.Flags().StringP("strategy", "s", "grid", "tiling strategy (grid|overlap)")
	rootCmd.Flags().Float64P("quality", "q", 0, "encode quality; (0,1] is a fraction, >1 absolute")
	rootCmd.Flags().Bool("strip", false, "strip source metadata")
	rootCmd.Flags().String("profile", "", "ICC profile path applied while normalizing")
	rootCmd.Flags().String("filter", "", "resize filter name for the halving chain")

	// Bind flags to viper for root command
	viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("convert-bin", rootCmd.PersistentFlags().Lookup("convert-bin"))
	viper.BindPFlag("identify-bin", rootCmd.PersistentFlags().Lookup("identify-bin"))
	viper.BindPFlag("name", rootCmd.Flags().Lookup("name"))
	viper.BindPFlag("format", rootCmd.Flags().Lookup("format"))
	viper.BindPFlag("ext", rootCmd.Flags().Lookup("ext"))
	viper.BindPFlag("tile-size", rootCmd.Flags().Lookup("tile-size"))
	viper.BindPFlag("overlap", rootCmd.Flags().Lookup("overlap"))
	viper.BindPFlag("strategy", rootCmd.Flags().Lookup("strategy"))
	viper.BindPFlag("quality", rootCmd.Flags().Lookup("quality"))
	viper.BindPFlag("strip", rootCmd.Flags().Lookup("strip"))
	viper.BindPFlag("profile", rootCmd.Flags().Lookup("profile"))
	viper.BindPFlag("filter", rootCmd.Flags().Lookup("filter"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".dzgen" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".dzgen")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newTool builds the configured image backend.
func newTool() (imagetool.Tool, error) {
	switch backend := viper.GetString("backend"); backend {
	case "", "magick":
		m := imagetool.NewMagick()
		if bin := viper.GetString("convert-bin"); bin != "" {
			m.ConvertBin = bin
		}
		if bin := viper.GetString("identify-bin"); bin != "" {
			m.IdentifyBin = bin
		}
		return m, nil
	case "native":
		return imagetool.NewImaging(), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use magick or native)", backend)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	src := args[0]

	name := viper.GetString("name")
	if name == "" {
		base := filepath.Base(src)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	strategy := pyramid.Strategy(viper.GetString("strategy"))
	switch strategy {
	case pyramid.StrategyGrid, pyramid.StrategyOverlap:
	default:
		return fmt.Errorf("unknown strategy: %s (use grid or overlap)", strategy)
	}

	tool, err := newTool()
	if err != nil {
		return err
	}

	gen := pyramid.New(pyramid.Options{
		Name:     name,
		Dir:      viper.GetString("dir"),
		Format:   viper.GetString("format"),
		Ext:      viper.GetString("ext"),
		TileSize: viper.GetInt("tile-size"),
		Overlap:  viper.GetInt("overlap"),
		Quality:  viper.GetFloat64("quality"),
		Strip:    viper.GetBool("strip"),
		Profile:  viper.GetString("profile"),
		Filter:   viper.GetString("filter"),
		Strategy: strategy,
	}, tool)

	result, err := gen.Generate(cmd.Context(), src)
	if err != nil {
		return err
	}

	if result.Replaced {
		fmt.Fprintf(cmd.ErrOrStderr(), "Replaced previous output for %s\n", result.Name)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s: %d levels, %d tiles\n",
		gen.DescriptorPath(), result.Levels, result.Tiles)
	return nil
}
