package alignment

import (
	"context"
	"fmt"
	"image"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/visualalign/logging"
	"go.viam.com/visualalign/rimage"
	"go.viam.com/visualalign/rimage/transform"
	"go.viam.com/visualalign/spatialmath"
	"go.viam.com/visualalign/vision/keypoints"
)

// Frame is one camera capture: the image, the intrinsics it was taken with and, optionally, the 4x4
// camera to world pose of the device at capture time.
type Frame struct {
	Image      image.Image
	Intrinsics *transform.PinholeCameraIntrinsics
	Pose       mat.Matrix
}

// NewFrameFromColumnMajor builds a frame from intrinsics packed as [fx, fy, ppx, ppy] and a
// column-major 4x4 pose. A nil pose leaves the frame without one.
func NewFrameFromColumnMajor(img image.Image, intrinsics, pose []float64) (*Frame, error) {
	intr, err := transform.NewPinholeCameraIntrinsicsFromVector(intrinsics)
	if err != nil {
		return nil, err
	}
	frame := &Frame{Image: img, Intrinsics: intr}
	if pose != nil {
		if frame.Pose, err = transform.PoseFromColumnMajor(pose); err != nil {
			return nil, err
		}
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	return frame, nil
}

// Validate checks that the frame can be processed.
func (f *Frame) Validate() error {
	if f == nil {
		return errors.New("frame is nil")
	}
	if f.Image == nil {
		return errors.New("frame has no image")
	}
	if err := f.Intrinsics.CheckValid(); err != nil {
		return err
	}
	if f.Pose != nil {
		if r, c := f.Pose.Dims(); r != 4 || c != 4 {
			return errors.Errorf("frame pose must be 4x4, got %dx%d", r, c)
		}
	}
	return nil
}

// Result is the outcome of VisualYaw.
type Result struct {
	Estimate     *transform.PoseEstimate
	NumFeatures1 int
	NumFeatures2 int
	// DebugImage shows the matched keypoints of both prepared frames, when requested.
	DebugImage image.Image
}

// Aligner runs the alignment pipeline. It holds no per-call state and is safe for concurrent use.
type Aligner struct {
	cfg      *Config
	detector keypoints.Detector
	logger   logging.Logger
}

// Option configures an Aligner.
type Option func(*Aligner)

// WithDetector replaces the detector built from the configuration.
func WithDetector(detector keypoints.Detector) Option {
	return func(a *Aligner) {
		a.detector = detector
	}
}

// NewAligner validates cfg and builds an Aligner. A nil cfg uses DefaultConfig.
func NewAligner(cfg *Config, logger logging.Logger, opts ...Option) (*Aligner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate("alignment"); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("alignment")
	}
	a := &Aligner{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if a.detector == nil {
		detector, err := newConfiguredDetector(cfg)
		if err != nil {
			return nil, err
		}
		a.detector = detector
	}
	return a, nil
}

// ErrDetectorUnavailable is returned when the configured detector was not compiled in.
var ErrDetectorUnavailable = errors.New("detector is not available in this build")

// newAKAZEDetector is set by builds with the withcv tag.
var newAKAZEDetector func() keypoints.Detector

func newConfiguredDetector(cfg *Config) (keypoints.Detector, error) {
	if cfg.Detector == DetectorAKAZE {
		if newAKAZEDetector == nil {
			return nil, errors.Wrapf(ErrDetectorUnavailable, "%q needs the withcv build tag", cfg.Detector)
		}
		return newAKAZEDetector(), nil
	}
	return keypoints.NewORBDetector(cfg.KeyPointCfg)
}

// preparedFrame is a frame after downsampling, leveling and feature extraction.
type preparedFrame struct {
	image          image.Image
	intrinsics     *transform.PinholeCameraIntrinsics
	squareRotation *mat.Dense
	kps            *keypoints.KeypointSet
}

// idealRotation returns the leveling rotation of a frame, or nil when the frame is not leveled.
func (a *Aligner) idealRotation(f *Frame) *spatialmath.R4AA {
	if !a.cfg.Canonicalize || f.Pose == nil {
		return nil
	}
	ideal, err := transform.IdealRotation(f.Pose)
	if err != nil {
		a.logger.Warnw("frame cannot be leveled, using it as is", "error", err)
		return nil
	}
	return ideal
}

func (a *Aligner) prepareFrame(ctx context.Context, f *Frame) (*preparedFrame, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	p := &preparedFrame{
		image:          rimage.Downsample(f.Image, a.cfg.DownsampleFactor),
		intrinsics:     f.Intrinsics,
		squareRotation: spatialmath.Identity3(),
	}
	if a.cfg.DownsampleFactor > 1 {
		p.intrinsics = f.Intrinsics.Scale(a.cfg.DownsampleFactor)
	}
	if ideal := a.idealRotation(f); ideal != nil {
		warped, err := transform.WarpToCanonical(p.image, p.intrinsics, transform.PoseRotation(f.Pose), ideal)
		if err != nil {
			return nil, err
		}
		p.image = warped
		p.squareRotation = spatialmath.NewRotationMatrixFromR4AA(ideal)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kps, err := a.detector.Detect(p.image)
	if err != nil {
		return nil, err
	}
	p.kps = kps
	return p, nil
}

func (a *Aligner) prepareFrames(ctx context.Context, f1, f2 *Frame) (*preparedFrame, *preparedFrame, error) {
	var p1, p2 *preparedFrame
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		p1, err = a.prepareFrame(gctx, f1)
		return errors.Wrap(err, "first frame")
	})
	g.Go(func() error {
		var err error
		p2, err = a.prepareFrame(gctx, f2)
		return errors.Wrap(err, "second frame")
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return p1, p2, nil
}

// VisualYaw estimates the yaw of f2 relative to f1. Frames with a pose are leveled first, so the yaw
// is about world up. An estimate is always returned for well formed frames; Estimate.Valid tells
// whether it can be trusted.
func (a *Aligner) VisualYaw(ctx context.Context, f1, f2 *Frame) (*Result, error) {
	p1, p2, err := a.prepareFrames(ctx, f1, f2)
	if err != nil {
		return nil, err
	}
	matches, err := keypoints.MatchKeypoints(p1.kps.Descriptors, p2.kps.Descriptors, a.cfg.MatchingCfg)
	if err != nil {
		return nil, err
	}
	pts1, pts2, err := keypoints.GetMatchingKeyPoints(matches, p1.kps, p2.kps)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cs, err := transform.NewCorrespondenceSet(pts1, pts2)
	if err != nil {
		return nil, err
	}
	est, err := transform.EstimateYawWithIntrinsics(cs, p1.intrinsics, p2.intrinsics, *a.cfg.PoseCfg)
	if err != nil {
		return nil, err
	}
	est.SquareRotation1 = p1.squareRotation
	est.SquareRotation2 = p2.squareRotation

	res := &Result{
		Estimate:     est,
		NumFeatures1: p1.kps.Len(),
		NumFeatures2: p2.kps.Len(),
	}
	if a.cfg.DebugImage {
		label := fmt.Sprintf("matches: %d inliers: %d yaw: %.4f", est.NumMatches, est.NumInliers, est.Yaw)
		res.DebugImage = rimage.PlotMatchedLines(p1.image, p2.image, pts1, pts2, label)
	}
	a.logger.Debugw("visual yaw",
		"numFeatures1", res.NumFeatures1,
		"numFeatures2", res.NumFeatures2,
		"numMatches", est.NumMatches,
		"numInliers", est.NumInliers,
		"residualAngle", est.ResidualAngle,
		"yaw", est.Yaw,
		"rotationOnly", est.RotationOnly,
		"valid", est.Valid,
	)
	return res, nil
}

// detectRaw downsamples img and extracts its features. No intrinsics are needed and no perspective
// correction is applied.
func (a *Aligner) detectRaw(ctx context.Context, img image.Image) (*keypoints.KeypointSet, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	small := rimage.Downsample(img, a.cfg.DownsampleFactor)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.detector.Detect(small)
}

// NumFeatures counts the features of an image as a quick gauge of how well it can be aligned to. The
// image is only downsampled, never leveled.
func (a *Aligner) NumFeatures(ctx context.Context, img image.Image) (int, error) {
	kps, err := a.detectRaw(ctx, img)
	if err != nil {
		return 0, err
	}
	return kps.Len(), nil
}

// NumMatches counts the ratio tested matches between two images. Like NumFeatures, it applies no
// perspective correction and needs no intrinsics.
func (a *Aligner) NumMatches(ctx context.Context, img1, img2 image.Image) (int, error) {
	var kps1, kps2 *keypoints.KeypointSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		kps1, err = a.detectRaw(gctx, img1)
		return errors.Wrap(err, "first image")
	})
	g.Go(func() error {
		var err error
		kps2, err = a.detectRaw(gctx, img2)
		return errors.Wrap(err, "second image")
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return keypoints.CountMatches(kps1, kps2, a.cfg.MatchingCfg)
}
