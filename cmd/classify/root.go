package main

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Brownie44l1/fire-detect/internal/config"
	"github.com/Brownie44l1/fire-detect/internal/logging"
	"github.com/Brownie44l1/fire-detect/internal/model"
	"github.com/Brownie44l1/fire-detect/internal/report"
)

// Version is the application version.
const Version = "0.1.0"

// loadClassifier is replaced in tests so the command runs without onnxruntime.
var loadClassifier = func(cfg *config.Config, meta model.Metadata, logger *zap.Logger) (*model.Classifier, error) {
	model.SetSharedLibraryPath(cfg.Model.SharedLibrary)
	return model.Load(cfg.Model.Path, meta, logger)
}

var now = time.Now

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"model":         "model.path",
	"metadata":      "model.metadata_path",
	"labels":        "model.labels",
	"input-name":    "model.input_name",
	"output-name":   "model.output_name",
	"ort-lib":       "model.shared_library",
	"image-size":    "image.size",
	"layout":        "image.layout",
	"interpolation": "image.interpolation",
	"format":        "output.format",
	"annotate":      "output.annotate",
	"log-mode":      "log.mode",
}

func newRootCmd(out io.Writer) *cobra.Command {
	var configPath string
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "classify [image]",
		Short: "Classify a single image with a pre-trained ONNX model",
		Long: `Loads an image classification model, runs one image through it and
prints the predicted class with the confidence score of every class.

The image path is taken from the argument or from image.path in the config.`,
		Version:       Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Image.Path = args[0]
			}
			if cfg.Image.Path == "" {
				return fmt.Errorf("no image given: pass a path or set image.path")
			}
			return run(cmd, cfg, out)
		},
	}

	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "YAML config file")
	f.StringP("model", "m", "", "ONNX model file (default fire_cnn_model.onnx)")
	f.String("metadata", "", "JSON metadata sidecar describing the model")
	f.StringSlice("labels", nil, "class labels in model output order (default Smoke,fire_images,non_fire_images)")
	f.String("input-name", "", "model input tensor name (default: first input)")
	f.String("output-name", "", "model output tensor name (default: first output)")
	f.String("ort-lib", "", "path to the onnxruntime shared library")
	f.Int("image-size", 0, "square input resolution expected by the model (default 128)")
	f.String("layout", "", "input tensor layout: nhwc or nchw (default nhwc)")
	f.String("interpolation", "", "resize filter: nearest, bilinear or lanczos3 (default nearest)")
	f.StringP("format", "o", "", "report format: text, json or yaml (default text)")
	f.String("annotate", "", "write the image captioned with the prediction to this .png/.jpg file")
	f.String("log-mode", "", "debug or release (default debug)")

	return cmd
}

// bindFlags binds only flags set on the command line so that unset flags do
// not mask config file and environment values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func run(cmd *cobra.Command, cfg *config.Config, out io.Writer) error {
	logger, err := logging.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logging.Sync(logger)

	meta, err := cfg.ResolveMetadata()
	if err != nil {
		return err
	}

	logger.Info("loading model",
		zap.String("path", cfg.Model.Path),
		zap.Strings("classes", meta.Classes),
		zap.Int("image_size", meta.ImageSize))

	classifier, err := loadClassifier(cfg, meta, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := classifier.Close(); err != nil {
			logger.Warn("failed to release model", zap.String("path", cfg.Model.Path), zap.Error(err))
		}
	}()

	logger.Info("model loaded", zap.String("path", cfg.Model.Path))

	if err := cmd.Context().Err(); err != nil {
		return err
	}

	start := time.Now()
	result, img, err := classifier.PredictImage(cfg.Image.Path)
	if err != nil {
		return err
	}

	logger.Info("image classified",
		zap.String("image", cfg.Image.Path),
		zap.String("class", result.Class),
		zap.Float32("confidence", result.Confidence),
		zap.Duration("cost", time.Since(start)))

	// Nothing reaches out until every output has been produced.
	var buf bytes.Buffer
	rep := report.New(cfg.Image.Path, result, now(), cfg.Output.Statuses)
	if err := report.Write(&buf, cfg.Output.Format, rep); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if cfg.Output.Annotate != "" {
		if err := report.Annotate(img, "Predicted: "+result.Class, cfg.Output.Annotate); err != nil {
			return err
		}
		logger.Info("annotated image written", zap.String("path", cfg.Output.Annotate))
	}

	_, err = buf.WriteTo(out)
	return err
}
