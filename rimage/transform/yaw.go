package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/visualalign/spatialmath"
)

// ErrMismatchedCorrespondences is returned when the two sides of a correspondence set differ in length.
var ErrMismatchedCorrespondences = errors.New("correspondence sequences must have the same length")

// CorrespondenceSet holds index-aligned pixel positions of the same scene points in two images.
type CorrespondenceSet struct {
	Points1 []r2.Point
	Points2 []r2.Point
}

// NewCorrespondenceSet pairs up two point sequences.
func NewCorrespondenceSet(pts1, pts2 []r2.Point) (*CorrespondenceSet, error) {
	cs := &CorrespondenceSet{Points1: pts1, Points2: pts2}
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return cs, nil
}

// Validate checks that both sides have the same length.
func (cs *CorrespondenceSet) Validate() error {
	if cs == nil {
		return errors.New("correspondence set is nil")
	}
	if len(cs.Points1) != len(cs.Points2) {
		return errors.Wrapf(ErrMismatchedCorrespondences, "%d != %d", len(cs.Points1), len(cs.Points2))
	}
	return nil
}

// Len returns the number of correspondences.
func (cs *CorrespondenceSet) Len() int {
	return len(cs.Points1)
}

// DefaultMinCorrespondenceSpread rejects inliers whose minor spread is under about 3% of their major spread.
const DefaultMinCorrespondenceSpread = 1e-3

// PoseConfig tunes the relative pose estimator.
type PoseConfig struct {
	// ThresholdPx is the Sampson inlier threshold of the essential matrix fit, in pixels.
	ThresholdPx float64 `json:"threshold_px"`
	// RotationOnlyThresholdPx is the reprojection inlier threshold of the pure rotation fit, in pixels.
	RotationOnlyThresholdPx float64 `json:"rotation_only_threshold_px"`
	// RotationOnlyInlierRatio is the fraction of the essential inliers the pure rotation fit must
	// explain to be preferred.
	RotationOnlyInlierRatio float64 `json:"rotation_only_inlier_ratio"`
	Confidence              float64 `json:"confidence"`
	MaxIterations           int     `json:"max_iterations"`
	MaxTriangulationDepth   float64 `json:"max_triangulation_depth"`
	// MinInliers is exclusive: a valid estimate has more inliers than this.
	MinInliers       int     `json:"min_inliers"`
	MaxResidualAngle float64 `json:"max_residual_angle"`
	// MinCorrespondenceSpread is the smallest ratio between the minor and major variance of the
	// inliers, in normalized coordinates, of either image. Below it the inliers lie near a line and
	// the estimate is not valid.
	MinCorrespondenceSpread float64 `json:"min_correspondence_spread"`
	Seed                    int64   `json:"seed"`
	Diagnostics             bool    `json:"diagnostics"`
}

// DefaultPoseConfig returns the estimator defaults.
func DefaultPoseConfig() PoseConfig {
	return PoseConfig{
		ThresholdPx:             1.0,
		RotationOnlyThresholdPx: 2.0,
		RotationOnlyInlierRatio: 0.9,
		Confidence:              0.999,
		MaxIterations:           1000,
		MaxTriangulationDepth:   DefaultMaxTriangulationDepth,
		MinInliers:              20,
		MaxResidualAngle:        0.01,
		MinCorrespondenceSpread: DefaultMinCorrespondenceSpread,
		Seed:                    1,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *PoseConfig) Validate(path string) error {
	if cfg.ThresholdPx <= 0 {
		return utils.NewConfigValidationError(path, errors.New("threshold_px must be positive"))
	}
	if cfg.RotationOnlyThresholdPx <= 0 {
		return utils.NewConfigValidationError(path, errors.New("rotation_only_threshold_px must be positive"))
	}
	if cfg.RotationOnlyInlierRatio <= 0 {
		return utils.NewConfigValidationError(path, errors.New("rotation_only_inlier_ratio must be positive"))
	}
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		return utils.NewConfigValidationError(path, errors.New("confidence must be in (0, 1)"))
	}
	if cfg.MaxIterations < 1 {
		return utils.NewConfigValidationError(path, errors.New("max_iterations must be at least 1"))
	}
	if cfg.MaxTriangulationDepth <= 0 {
		return utils.NewConfigValidationError(path, errors.New("max_triangulation_depth must be positive"))
	}
	if cfg.MinInliers < minPointsEightPoint {
		return utils.NewConfigValidationError(path, errors.Errorf("min_inliers must be at least %d", minPointsEightPoint))
	}
	if cfg.MaxResidualAngle <= 0 {
		return utils.NewConfigValidationError(path, errors.New("max_residual_angle must be positive"))
	}
	if cfg.MinCorrespondenceSpread < 0 || cfg.MinCorrespondenceSpread >= 1 {
		return utils.NewConfigValidationError(path, errors.New("min_correspondence_spread must be in [0, 1)"))
	}
	return nil
}

// PoseEstimate is the relative pose between two views. Rotation maps points in the first camera
// frame to the second, and Translation is its unit direction (zero for a pure rotation).
type PoseEstimate struct {
	Yaw           float64
	Rotation      *mat.Dense
	Translation   r3.Vector
	Valid         bool
	NumInliers    int
	ResidualAngle float64
	RotationOnly  bool
	// NumMatches is the number of correspondences the estimate was computed from.
	NumMatches int
	// SquareRotation1 and SquareRotation2 are the canonicalization rotations applied to each image,
	// when the estimate came from canonicalized images.
	SquareRotation1 *mat.Dense
	SquareRotation2 *mat.Dense
	Diagnostics     *PoseDiagnostics
}

// PoseDiagnostics are the intermediate results of an estimate, filled in on request.
type PoseDiagnostics struct {
	EssentialMatrix     *mat.Dense
	EssentialInliers    []bool
	NumEssentialInliers int
	RotationInliers     []bool
	NumRotationInliers  int
	Iterations          int
	CheiralityInliers   []bool
}

func newInvalidPoseEstimate(numMatches int) *PoseEstimate {
	return &PoseEstimate{
		Rotation:   spatialmath.Identity3(),
		NumMatches: numMatches,
	}
}

// YawFromRotation rotates the forward axis by rot and returns its heading atan2(x, z).
func YawFromRotation(rot mat.Matrix) float64 {
	forward := spatialmath.Column(rot, 2)
	return math.Atan2(forward.X, forward.Z)
}

// ResidualAngle is |yaw| minus the total rotation angle of rot. It is near zero when rot is a pure yaw.
func ResidualAngle(rot mat.Matrix, yaw float64) float64 {
	return math.Abs(yaw) - spatialmath.RotationAngle(rot)
}

// EstimateYaw recovers the relative rotation between two views taken with the same camera and
// reports its yaw. Degenerate inputs give an estimate with Valid unset and a nil error; malformed
// inputs give an error.
func EstimateYaw(cs *CorrespondenceSet, intrinsics *PinholeCameraIntrinsics, cfg PoseConfig) (*PoseEstimate, error) {
	return EstimateYawWithIntrinsics(cs, intrinsics, intrinsics, cfg)
}

// EstimateYawWithIntrinsics is EstimateYaw for views with different intrinsics.
func EstimateYawWithIntrinsics(
	cs *CorrespondenceSet,
	intrinsics1, intrinsics2 *PinholeCameraIntrinsics,
	cfg PoseConfig,
) (*PoseEstimate, error) {
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	if err := intrinsics1.CheckValid(); err != nil {
		return nil, err
	}
	if err := intrinsics2.CheckValid(); err != nil {
		return nil, err
	}
	if err := cfg.Validate("pose"); err != nil {
		return nil, err
	}
	n := cs.Len()
	if n < minPointsEightPoint {
		return newInvalidPoseEstimate(n), nil
	}

	pts1 := make([]r2.Point, n)
	pts2 := make([]r2.Point, n)
	for i := 0; i < n; i++ {
		pts1[i] = intrinsics1.PixelToNormalized(cs.Points1[i])
		pts2[i] = intrinsics2.PixelToNormalized(cs.Points2[i])
	}
	focal := (intrinsics1.MeanFocal() + intrinsics2.MeanFocal()) / 2

	essential, err := EstimateEssentialMatrixRANSAC(pts1, pts2, RANSACParams{
		Threshold:     cfg.ThresholdPx / focal,
		Confidence:    cfg.Confidence,
		MaxIterations: cfg.MaxIterations,
		Seed:          cfg.Seed,
	})
	if err != nil {
		if errors.Is(err, ErrDegenerateCorrespondences) {
			return newInvalidPoseEstimate(n), nil
		}
		return nil, err
	}
	camPose, numInliers, cheirality, err := RecoverPose(essential.Model, pts1, pts2, essential.Inliers, cfg.MaxTriangulationDepth)
	if err != nil {
		return nil, err
	}

	inliers := cheirality
	est := &PoseEstimate{
		Rotation:    camPose.Rotation,
		Translation: camPose.Translation.Normalize(),
		NumInliers:  numInliers,
		NumMatches:  n,
	}
	var diag *PoseDiagnostics
	if cfg.Diagnostics {
		diag = &PoseDiagnostics{
			EssentialMatrix:     essential.Model,
			EssentialInliers:    essential.Inliers,
			NumEssentialInliers: essential.NumInliers,
			Iterations:          essential.Iterations,
			CheiralityInliers:   cheirality,
		}
	}

	// Without parallax the essential matrix is undetermined; prefer a pure rotation when it explains
	// the data nearly as well.
	rotation, err := EstimateRotationRANSAC(pts1, pts2, RANSACParams{
		Threshold:     cfg.RotationOnlyThresholdPx / focal,
		Confidence:    cfg.Confidence,
		MaxIterations: cfg.MaxIterations,
		Seed:          cfg.Seed,
	})
	if err == nil {
		if diag != nil {
			diag.RotationInliers = rotation.Inliers
			diag.NumRotationInliers = rotation.NumInliers
			diag.Iterations += rotation.Iterations
		}
		if float64(rotation.NumInliers) >= cfg.RotationOnlyInlierRatio*float64(essential.NumInliers) {
			est.Rotation = rotation.Model
			est.Translation = r3.Vector{}
			est.NumInliers = rotation.NumInliers
			est.RotationOnly = true
			inliers = rotation.Inliers
		}
	}

	est.Yaw = YawFromRotation(est.Rotation)
	est.ResidualAngle = ResidualAngle(est.Rotation, est.Yaw)
	est.Valid = est.NumInliers > cfg.MinInliers &&
		math.Abs(est.ResidualAngle) <= cfg.MaxResidualAngle &&
		CorrespondenceSpread(pts1, inliers) >= cfg.MinCorrespondenceSpread &&
		CorrespondenceSpread(pts2, inliers) >= cfg.MinCorrespondenceSpread
	est.Diagnostics = diag
	return est, nil
}

// CorrespondenceSpread is the ratio of the smallest to the largest eigenvalue of the covariance of the
// points selected by mask (all points for a nil mask). It is 0 for collinear points and 1 for
// isotropic ones.
func CorrespondenceSpread(pts []r2.Point, mask []bool) float64 {
	selected := mat.NewDense(len(pts)+1, 2, nil)
	n := 0
	for i, p := range pts {
		if mask != nil && !mask[i] {
			continue
		}
		selected.Set(n, 0, p.X)
		selected.Set(n, 1, p.Y)
		n++
	}
	if n < 3 {
		return 0
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, selected.Slice(0, n, 0, 2), nil)
	var eig mat.EigenSym
	if !eig.Factorize(&cov, false) {
		return 0
	}
	// ascending
	values := eig.Values(nil)
	if values[1] <= 0 {
		return 0
	}
	return math.Max(values[0], 0) / values[1]
}
