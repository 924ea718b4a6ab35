// Package alignment estimates the yaw between two camera frames of the same place: each frame is
// leveled with its pose, ORB features are matched, and the relative rotation is recovered from the
// essential matrix.
package alignment

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/visualalign/rimage/transform"
	"go.viam.com/visualalign/vision/keypoints"
)

// Feature detectors a Config can select.
const (
	DetectorORB   = "orb"
	DetectorAKAZE = "akaze"
)

// Config contains the parameters of the alignment pipeline.
type Config struct {
	// Detector names the feature detector. "akaze" needs a build with the withcv tag.
	Detector string `json:"detector"`
	// DownsampleFactor shrinks both frames, and their intrinsics, before anything else. 1 keeps the
	// full resolution.
	DownsampleFactor float64 `json:"downsample_factor"`
	// Canonicalize warps frames that carry a pose to an upright virtual camera before matching.
	Canonicalize bool `json:"canonicalize"`
	// DebugImage requests a side by side image of the matched keypoints in the result.
	DebugImage  bool                      `json:"debug_image"`
	KeyPointCfg *keypoints.ORBConfig      `json:"kps"`
	MatchingCfg *keypoints.MatchingConfig `json:"matching"`
	PoseCfg     *transform.PoseConfig     `json:"pose"`
}

// DefaultConfig returns the configuration used on phone imagery: half resolution, canonicalized.
func DefaultConfig() *Config {
	poseCfg := transform.DefaultPoseConfig()
	return &Config{
		Detector:         DetectorORB,
		DownsampleFactor: 2,
		Canonicalize:     true,
		KeyPointCfg:      keypoints.DefaultORBConfig(),
		MatchingCfg:      keypoints.DefaultMatchingConfig(),
		PoseCfg:          &poseCfg,
	}
}

// LoadConfig reads a json configuration. Fields missing from the file keep their default value.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	configFile, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(config); err != nil {
		return nil, errors.Wrapf(err, "error parsing alignment config %q", path)
	}
	if err := config.Validate(path); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate ensures all parts of the Config are valid. Every invalid part is reported.
func (config *Config) Validate(path string) error {
	var err error
	if config.Detector != DetectorORB && config.Detector != DetectorAKAZE {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("detector must be %q or %q, got %q", DetectorORB, DetectorAKAZE, config.Detector)))
	}
	if config.DownsampleFactor < 1 {
		err = multierr.Append(err, utils.NewConfigValidationError(path, errors.New("downsample_factor should be >= 1")))
	}
	if config.KeyPointCfg == nil {
		err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "kps"))
	} else {
		err = multierr.Append(err, config.KeyPointCfg.Validate(path+".kps"))
	}
	if config.MatchingCfg == nil {
		err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "matching"))
	} else {
		err = multierr.Append(err, config.MatchingCfg.Validate(path+".matching"))
	}
	if config.PoseCfg == nil {
		err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "pose"))
	} else {
		err = multierr.Append(err, config.PoseCfg.Validate(path+".pose"))
	}
	return err
}
