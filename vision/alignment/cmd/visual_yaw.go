// Package main estimates the visual yaw between a reference frame and one or more frames of the
// same place, and prints their consensus.
package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/visualalign/logging"
	"go.viam.com/visualalign/vision/alignment"
)

func main() {
	utils.ContextualMain(mainWithArgs, logging.NewLogger("visual-yaw"))
}

// Arguments for the command.
type Arguments struct {
	Reference string `flag:"0,required,usage=reference frame json"`
	Frames    string `flag:"1,required,usage=comma separated frame jsons to align to the reference"`
	Config    string `flag:"config,usage=alignment config json"`
	Detector  string `flag:"detector,usage=feature detector: orb or akaze (akaze needs the withcv build tag)"`
	DebugDir  string `flag:"debug_dir,usage=directory to write the matched keypoints of each frame to"`
}

// frameFile describes a capture on disk. The image path is relative to the frame file.
type frameFile struct {
	Image      string    `json:"image"`
	Intrinsics []float64 `json:"intrinsics"`
	Pose       []float64 `json:"pose,omitempty"`
}

func loadFrame(path string) (*alignment.Frame, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var ff frameFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, errors.Wrapf(err, "error parsing frame %q", path)
	}
	imgPath := ff.Image
	if !filepath.IsAbs(imgPath) {
		imgPath = filepath.Join(filepath.Dir(path), imgPath)
	}
	img, err := imaging.Open(imgPath)
	if err != nil {
		return nil, err
	}
	return alignment.NewFrameFromColumnMajor(img, ff.Intrinsics, ff.Pose)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg := alignment.DefaultConfig()
	if argsParsed.Config != "" {
		var err error
		if cfg, err = alignment.LoadConfig(argsParsed.Config); err != nil {
			return err
		}
	}
	if argsParsed.Detector != "" {
		cfg.Detector = argsParsed.Detector
	}
	cfg.DebugImage = argsParsed.DebugDir != ""
	aligner, err := alignment.NewAligner(cfg, logger.Sublogger("aligner"))
	if err != nil {
		return err
	}

	reference, err := loadFrame(argsParsed.Reference)
	if err != nil {
		return err
	}
	paths := lo.Compact(lo.Map(strings.Split(argsParsed.Frames, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	}))

	var yaws []float64
	for i, path := range paths {
		frame, err := loadFrame(path)
		if err != nil {
			return err
		}
		res, err := aligner.VisualYaw(ctx, reference, frame)
		if err != nil {
			return errors.Wrapf(err, "aligning %q", path)
		}
		est := res.Estimate
		logger.Infow("aligned frame",
			"frame", path,
			"yaw", est.Yaw,
			"inliers", est.NumInliers,
			"matches", est.NumMatches,
			"valid", est.Valid,
		)
		if res.DebugImage != nil {
			out := filepath.Join(argsParsed.DebugDir, filepath.Base(strings.TrimSuffix(path, filepath.Ext(path)))+".png")
			if err := imaging.Save(res.DebugImage, out); err != nil {
				return err
			}
		}
		if !est.Valid {
			continue
		}
		yaws = append(yaws, est.Yaw)
		if reference.Pose != nil && frame.Pose != nil {
			relative, err := alignment.RelativeTransform(frame.Pose, reference.Pose, est)
			if err != nil {
				return err
			}
			logger.Infow("relative heading", "frame", i, "yaw", alignment.RelativeYaw(relative))
		}
	}
	if len(yaws) == 0 {
		return errors.New("no frame could be aligned to the reference")
	}
	consensus, err := alignment.ConsensusYaw(yaws)
	if err != nil {
		return err
	}
	logger.Infow("consensus", "yaw", consensus, "aligned", len(yaws), "frames", len(paths))
	return nil
}
